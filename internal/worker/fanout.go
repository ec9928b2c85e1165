package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"telepost/internal/domain"
	"telepost/internal/observability"
	"telepost/internal/providers/telegram"
	sqsqueue "telepost/internal/queue/sqs"
	"telepost/internal/store"
)

type FanoutResult struct {
	Success int
	Failed  int
	Blocked int
}

// fanOut sends text to each subscriber individually. Per-recipient
// failures never abort the batch: unreachable recipients are flipped to
// blocked, everything else is counted and logged. After every PaceEvery
// successful sends the loop pauses to stay under the platform ceiling.
func (p *Processor) fanOut(ctx context.Context, job sqsqueue.PublishJob, token, text string, subs []store.Subscriber) FanoutResult {
	var res FanoutResult

	for _, sub := range subs {
		_, _, err := p.sendOnce(ctx, token, telegram.SendRequest{
			ChatID:    sub.ExternalUserID,
			Text:      text,
			ParseMode: "Markdown",
		})
		if err != nil {
			res.Failed++
			if telegram.Unreachable(err) {
				res.Blocked++
				observability.FanoutRecipients.WithLabelValues("blocked").Inc()
				slog.Info("subscriber marked blocked",
					"job_id", job.JobID, "bot_id", job.BotID, "user_id", sub.ExternalUserID,
					"err", fmt.Errorf("%w: %v", domain.ErrRecipientUnreachable, err))
				if mErr := p.Store.MarkSubscriberBlocked(ctx, job.BotID, sub.ExternalUserID, time.Now()); mErr != nil {
					slog.Warn("subscriber not marked blocked",
						"bot_id", job.BotID, "user_id", sub.ExternalUserID, "err", mErr)
				}
			} else {
				observability.FanoutRecipients.WithLabelValues("error").Inc()
				slog.Warn("fan-out send failed",
					"job_id", job.JobID, "bot_id", job.BotID, "user_id", sub.ExternalUserID, "err", err)
			}
			continue
		}

		res.Success++
		observability.FanoutRecipients.WithLabelValues("ok").Inc()
		if p.PaceEvery > 0 && res.Success%p.PaceEvery == 0 {
			observability.FanoutPauses.Inc()
			p.pause(ctx)
		}
	}
	return res
}

func (p *Processor) pause(ctx context.Context) {
	if p.PauseFn != nil {
		p.PauseFn(ctx, p.Pause)
		return
	}
	d := p.Pause
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
