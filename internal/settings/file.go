package settings

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// FileStore keeps settings as a flat YAML mapping in a single file. Reads and
// read-modify-write cycles hold an advisory lock on path+".lock", so a CLI
// and a running daemon can share the file.
type FileStore struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (f *FileStore) Load(_ context.Context) (Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.acquire(f.lock.RLock); err != nil {
		return Default(), err
	}
	defer f.release()

	return f.read()
}

func (f *FileStore) Save(_ context.Context, changes ...Change) (Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.acquire(f.lock.Lock); err != nil {
		return Default(), err
	}
	defer f.release()

	current, err := f.read()
	if err != nil {
		return current, err
	}

	next := current.Apply(changes...)
	if err := next.Validate(); err != nil {
		return current, err
	}

	if err := f.write(next); err != nil {
		return current, err
	}

	return next, nil
}

func (f *FileStore) acquire(lock func() error) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "settings: create %s", dir)
	}

	return errors.Wrapf(lock(), "settings: lock %s", f.lock.Path())
}

func (f *FileStore) release() {
	if err := f.lock.Unlock(); err != nil {
		logrus.Errorf("settings: unlock %s: %s", f.lock.Path(), err)
	}
}

func (f *FileStore) read() (Settings, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		logrus.Debugf("settings: %s does not exist yet, using defaults", f.path)
		return Default(), nil
	}
	if err != nil {
		return Default(), errors.Wrapf(err, "settings: read %s", f.path)
	}

	kv := map[string]string{}
	if err := yaml.Unmarshal(data, &kv); err != nil {
		return Default(), errors.Wrapf(err, "settings: parse %s", f.path)
	}

	return decode(kv)
}

func (f *FileStore) write(s Settings) error {
	data, err := yaml.Marshal(encode(s))
	if err != nil {
		return errors.Wrap(err, "settings: encode")
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "settings: create temporary file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "settings: write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "settings: write %s", tmp.Name())
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrapf(err, "settings: chmod %s", tmp.Name())
	}

	return errors.Wrapf(os.Rename(tmp.Name(), f.path), "settings: replace %s", f.path)
}
