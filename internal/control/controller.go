package control

import (
	"context"

	"github.com/jkaflik/shuttercontrol/internal/scheduler"
	"github.com/jkaflik/shuttercontrol/internal/settings"
	"github.com/jkaflik/shuttercontrol/internal/shutter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Engine is the part of scheduler.Engine the controller drives.
type Engine interface {
	Reschedule(ctx context.Context) (*scheduler.Event, error)
	Actuate(ctx context.Context, action scheduler.Action) error
	Current() *scheduler.Event
}

// Reply is a message to send back to whoever issued a command.
// Markdown replies are formatted as Telegram MarkdownV2.
type Reply struct {
	Text     string
	Markdown bool
}

func plain(text string) Reply {
	return Reply{Text: text}
}

// Status is a point in time snapshot of what the user can query.
type Status struct {
	Settings settings.Settings
	Next     *scheduler.Event
	Shutter  shutter.State
}

type Controller struct {
	store   settings.Store
	engine  Engine
	shutter shutter.Shutter
}

// NewController returns a controller. sh may be nil when the shutter state
// is not known to the caller.
func NewController(store settings.Store, engine Engine, sh shutter.Shutter) *Controller {
	return &Controller{
		store:   store,
		engine:  engine,
		shutter: sh,
	}
}

// Handle parses and executes text. Errors never escape: they are turned into
// replies the user can act upon.
func (c *Controller) Handle(ctx context.Context, text string) []Reply {
	cmd, err := Parse(text)
	switch errors.Cause(err) {
	case nil:
	case ErrInvalidArgument:
		log.Debugf("control: %q: %s", text, err)
		return []Reply{plain("Wrong argument format"), HelpReply()}
	default:
		log.Debugf("control: %q: %s", text, err)
		return []Reply{plain("Unknown command"), HelpReply()}
	}

	replies, err := c.Execute(ctx, cmd)
	if err != nil {
		log.Errorf("control: %q: %s", text, err)
		return append(replies, plain(err.Error()))
	}

	return replies
}

// Execute runs a parsed command.
func (c *Controller) Execute(ctx context.Context, cmd Command) ([]Reply, error) {
	switch cmd.Kind {
	case KindChange:
		s, err := c.store.Save(ctx, cmd.Changes...)
		if err != nil {
			return nil, errors.Wrap(err, "settings not saved")
		}
		next, err := c.engine.Reschedule(ctx)
		if err != nil {
			log.Errorf("control: no event determined: %s", err)
		}
		return []Reply{StatusReply(c.status(s, next))}, nil
	case KindOpen:
		return c.actuate(ctx, scheduler.Open, "OK, opening shutters...")
	case KindClose:
		return c.actuate(ctx, scheduler.Close, "OK, closing shutters...")
	case KindStatus:
		return c.statusReplies(ctx)
	case KindHelp:
		return []Reply{HelpReply()}, nil
	}

	return nil, errors.Errorf("unsupported command kind %d", cmd.Kind)
}

func (c *Controller) actuate(ctx context.Context, action scheduler.Action, ack string) ([]Reply, error) {
	if err := c.engine.Actuate(ctx, action); err != nil {
		return nil, errors.Wrapf(err, "%s failed", action)
	}

	return []Reply{plain(ack)}, nil
}

func (c *Controller) statusReplies(ctx context.Context) ([]Reply, error) {
	st, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}

	return []Reply{StatusReply(st)}, nil
}

// Status reads the persisted settings and the engine's cached next event.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	s, err := c.store.Load(ctx)
	if err != nil {
		return Status{}, errors.Wrap(err, "settings not loaded")
	}

	return c.status(s, c.engine.Current()), nil
}

func (c *Controller) status(s settings.Settings, next *scheduler.Event) Status {
	st := Status{
		Settings: s,
		Next:     next,
		Shutter:  shutter.ShutterUnknownState,
	}
	if c.shutter != nil {
		st.Shutter = c.shutter.State()
	}

	return st
}
