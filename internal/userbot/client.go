package userbot

import (
	"context"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
)

// conn is one live MTProto connection. gotd requires all API calls to
// happen while Run is active, so the run loop is parked on a context and
// Stop cancels it.
type conn struct {
	client  *telegram.Client
	stop    context.CancelFunc
	ready   chan struct{}
	runDone chan error
}

const dialTimeout = 30 * time.Second

// dial opens a connection backed by the given session storage and waits
// until it is usable.
func dial(ctx context.Context, appID int, appHash string, storage session.Storage) (*conn, error) {
	client := telegram.NewClient(appID, appHash, telegram.Options{
		SessionStorage: storage,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	c := &conn{
		client:  client,
		stop:    cancel,
		ready:   make(chan struct{}),
		runDone: make(chan error, 1),
	}

	go func() {
		c.runDone <- client.Run(runCtx, func(ctx context.Context) error {
			close(c.ready)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case <-c.ready:
		return c, nil
	case err := <-c.runDone:
		cancel()
		return nil, err
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	case <-time.After(dialTimeout):
		cancel()
		return nil, context.DeadlineExceeded
	}
}

func (c *conn) Close() {
	c.stop()
	<-c.runDone
}
