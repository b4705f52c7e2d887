package settings

import (
	"strconv"

	"github.com/pkg/errors"
)

// Keys of the flat key/value record. A missing key falls back to Default.
const (
	KeyCloseAtDawn = "close_at_dawn"
	KeyOpenAt      = "open_at"
	KeyDepression  = "depression"
	KeyLatest      = "latest"
)

func encode(s Settings) map[string]string {
	kv := map[string]string{
		KeyCloseAtDawn: strconv.FormatBool(s.CloseAtDawn),
		KeyDepression:  strconv.FormatFloat(s.Depression, 'g', -1, 64),
	}
	if s.OpenAt != nil {
		kv[KeyOpenAt] = s.OpenAt.String()
	}
	if s.Latest != nil {
		kv[KeyLatest] = s.Latest.String()
	}
	return kv
}

func decode(kv map[string]string) (Settings, error) {
	s := Default()

	if v, ok := kv[KeyCloseAtDawn]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return s, errors.Wrapf(err, "decode %s", KeyCloseAtDawn)
		}
		s.CloseAtDawn = b
	}
	if v, ok := kv[KeyDepression]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return s, errors.Wrapf(err, "decode %s", KeyDepression)
		}
		s.Depression = f
	}
	if v, ok := kv[KeyOpenAt]; ok && v != "" {
		t, err := ParseTimeOfDay(v)
		if err != nil {
			return s, errors.Wrapf(err, "decode %s", KeyOpenAt)
		}
		s.OpenAt = &t
	}
	if v, ok := kv[KeyLatest]; ok && v != "" {
		t, err := ParseTimeOfDay(v)
		if err != nil {
			return s, errors.Wrapf(err, "decode %s", KeyLatest)
		}
		s.Latest = &t
	}

	return s, nil
}
