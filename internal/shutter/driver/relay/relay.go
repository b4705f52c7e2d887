package relay

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type Relay interface {
	EnableFor(ctx context.Context, duration time.Duration) error
}

// PoolProxy limits how many relays sharing pool are enabled at once.
type PoolProxy struct {
	r Relay
	c chan struct{}
}

func NewPoolProxy(r Relay, pool chan struct{}) *PoolProxy {
	return &PoolProxy{r: r, c: pool}
}

func (p *PoolProxy) EnableFor(ctx context.Context, duration time.Duration) error {
	select {
	case p.c <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() {
		<-p.c
	}()

	return p.r.EnableFor(ctx, duration)
}

// Dumb only logs, it stands in for a relay on machines without outputs.
type Dumb struct {
	Name string
}

func (r *Dumb) EnableFor(ctx context.Context, duration time.Duration) error {
	t := time.NewTimer(duration)
	defer t.Stop()

	logrus.Infof("%s: dumb relay on (for %s)", r.Name, duration.String())

	select {
	case <-t.C:
		logrus.Debugf("%s: dumb relay off", r.Name)
		return nil
	case <-ctx.Done():
		logrus.Debugf("%s: dumb relay interrupted", r.Name)
		return ctx.Err()
	}
}
