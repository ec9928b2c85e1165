package worker

import (
	"context"
	"testing"
	"time"

	"telepost/internal/providers/telegram"
	sqsqueue "telepost/internal/queue/sqs"
	"telepost/internal/store"
)

func subscribers(n int) []store.Subscriber {
	subs := make([]store.Subscriber, n)
	for i := range subs {
		subs[i] = store.Subscriber{BotID: "b1", ExternalUserID: int64(i + 1), Status: "active"}
	}
	return subs
}

func TestFanoutCountsAndBlocksUnreachable(t *testing.T) {
	st := newFakeStore()
	sn := &fakeSender{
		sendErr: func(chatID int64) error {
			if chatID == 7 || chatID == 31 {
				return &telegram.APIError{Code: 403, Description: "Forbidden: bot was blocked by the user"}
			}
			return nil
		},
	}

	var pauses int
	p := newProcessor(st, sn)
	p.PauseFn = func(context.Context, time.Duration) { pauses++ }

	res := p.fanOut(context.Background(), sqsqueue.PublishJob{JobID: "j1", BotID: "b1"}, "tok", "hello", subscribers(45))

	if res.Success != 43 {
		t.Errorf("success = %d, want 43", res.Success)
	}
	if res.Failed != 2 || res.Blocked != 2 {
		t.Errorf("failed = %d blocked = %d, want 2/2", res.Failed, res.Blocked)
	}
	if len(st.blocked) != 2 || st.blocked[0] != 7 || st.blocked[1] != 31 {
		t.Errorf("blocked subscribers = %v, want [7 31]", st.blocked)
	}
	// floor(43/20) pauses, after the 20th and 40th success.
	if pauses != 2 {
		t.Errorf("pauses = %d, want 2", pauses)
	}
}

func TestFanoutPauseCountIndependentOfFailures(t *testing.T) {
	cases := []struct {
		n, blockedEveryNth, wantPauses int
	}{
		{19, 0, 0},
		{20, 0, 1},
		{45, 0, 2},
		{100, 0, 5},
	}
	for _, c := range cases {
		st := newFakeStore()
		sn := &fakeSender{}
		var pauses int
		p := newProcessor(st, sn)
		p.PauseFn = func(context.Context, time.Duration) { pauses++ }

		p.fanOut(context.Background(), sqsqueue.PublishJob{JobID: "j", BotID: "b1"}, "tok", "x", subscribers(c.n))
		if pauses != c.wantPauses {
			t.Errorf("n=%d: pauses = %d, want %d", c.n, pauses, c.wantPauses)
		}
	}
}

func TestFanoutTransientFailureDoesNotBlock(t *testing.T) {
	st := newFakeStore()
	sn := &fakeSender{
		sendErr: func(chatID int64) error {
			if chatID == 2 {
				return &telegram.APIError{Code: 500, Description: "Internal Server Error"}
			}
			return nil
		},
	}
	p := newProcessor(st, sn)

	res := p.fanOut(context.Background(), sqsqueue.PublishJob{JobID: "j1", BotID: "b1"}, "tok", "hello", subscribers(3))
	if res.Success != 2 || res.Failed != 1 || res.Blocked != 0 {
		t.Errorf("got %+v", res)
	}
	if len(st.blocked) != 0 {
		t.Errorf("transient failure must not block: %v", st.blocked)
	}
}
