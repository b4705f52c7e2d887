package relay

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type overlapRelay struct {
	mu      *sync.Mutex
	active  *int
	maxSeen *int
}

func (r overlapRelay) EnableFor(ctx context.Context, duration time.Duration) error {
	r.mu.Lock()
	*r.active++
	if *r.active > *r.maxSeen {
		*r.maxSeen = *r.active
	}
	r.mu.Unlock()

	time.Sleep(duration)

	r.mu.Lock()
	*r.active--
	r.mu.Unlock()
	return nil
}

func TestPairedRelayNeverOverlaps(t *testing.T) {
	var mu sync.Mutex
	var active, maxSeen int
	up, down := NewRelayPair(
		overlapRelay{&mu, &active, &maxSeen},
		overlapRelay{&mu, &active, &maxSeen},
	)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, up.EnableFor(context.Background(), 2*time.Millisecond))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, down.EnableFor(context.Background(), 2*time.Millisecond))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestPairedRelayWaitHonoursContext(t *testing.T) {
	up, down := NewRelayPair(&Dumb{Name: "open"}, &Dumb{Name: "close"})

	started := make(chan struct{})
	go func() {
		close(started)
		_ = up.EnableFor(context.Background(), 100*time.Millisecond)
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := down.EnableFor(ctx, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, context.DeadlineExceeded, err)
}
