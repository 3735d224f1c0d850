package daemon

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// tickInterval is how often the host loop drives the state machine.
const tickInterval = 200 * time.Millisecond

type ticker interface {
	Begin(ctx context.Context) error
	Tick(ctx context.Context)
}

// runLoop starts provisioning and then ticks until ctx is done. It is the
// only caller of Tick.
func runLoop(ctx context.Context, t ticker, interval time.Duration) {
	if err := t.Begin(ctx); err != nil {
		logrus.Errorf("failed to start provisioning: %v", err)
	}

	tk := time.NewTicker(interval)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Debug("main loop stopped")
			return
		case <-tk.C:
			t.Tick(ctx)
		}
	}
}
