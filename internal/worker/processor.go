package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"telepost/internal/domain"
	"telepost/internal/observability"
	"telepost/internal/providers/telegram"
	sqsqueue "telepost/internal/queue/sqs"
	"telepost/internal/store"
)

type Store interface {
	GetPost(ctx context.Context, postID string) (store.Post, bool, error)
	SetPostDelivery(ctx context.Context, in store.PostDelivery) error
	MarkPostFailed(ctx context.Context, postID, lastError string, now time.Time) error
	GetBot(ctx context.Context, botID string) (store.Bot, bool, error)
	SetBotChannel(ctx context.Context, botID string, channelID int64, username, title string, now time.Time) error
	IncrementBotPostCount(ctx context.Context, botID string, now time.Time) error
	ListActiveSubscribers(ctx context.Context, botID string) ([]store.Subscriber, error)
	MarkSubscriberBlocked(ctx context.Context, botID string, externalUserID int64, now time.Time) error
}

type Sender interface {
	SendMessage(ctx context.Context, token string, req telegram.SendRequest) (telegram.SentMessage, int, error)
	GetChat(ctx context.Context, token, chat string) (telegram.Chat, int, error)
}

type Processor struct {
	Store  Store
	Sender Sender

	// Single-tenant legacy fallback: used when the bot row carries no
	// credential of its own. Deliberate backward-compatibility shim.
	DefaultToken string

	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker

	PaceEvery int
	Pause     time.Duration
	// pause is swappable in tests so pacing can be counted without sleeping.
	PauseFn func(ctx context.Context, d time.Duration)
}

// Process handles one publish job. fatal=true means the job must not be
// redriven: the failure is recorded on the post and retrying cannot help.
func (p *Processor) Process(ctx context.Context, job sqsqueue.PublishJob) (fatal bool, err error) {
	post, found, err := p.Store.GetPost(ctx, job.PostID)
	if err != nil {
		return false, err
	}
	if !found {
		// Nothing to record the failure on; the content is gone.
		slog.Error("publish job for missing post",
			"job_id", job.JobID, "post_id", job.PostID, "bot_id", job.BotID)
		return true, domain.ErrPostNotFound
	}

	fatal, err = p.dispatch(ctx, job, post)
	if err != nil && fatal {
		_ = p.Store.MarkPostFailed(ctx, post.ID, err.Error(), time.Now())
		slog.Error("publish job failed",
			"job_id", job.JobID, "post_id", job.PostID, "bot_id", job.BotID, "err", err)
	}
	return fatal, err
}

func (p *Processor) dispatch(ctx context.Context, job sqsqueue.PublishJob, post store.Post) (bool, error) {
	bot, found, err := p.Store.GetBot(ctx, job.BotID)
	if err != nil {
		return false, err
	}

	token, err := p.resolveToken(bot, found)
	if err != nil {
		return true, err
	}

	text := RenderText(post.Title, post.Content)
	if text == "" {
		return true, domain.ErrEmptyContent
	}

	switch domain.PublishTarget(post.PublishTarget) {
	case domain.TargetSubscribers:
		return p.dispatchSubscribers(ctx, job, token, text)
	default:
		return p.dispatchChannel(ctx, job, bot, token, text)
	}
}

// resolveToken picks the send credential: the bot's own token when
// present, otherwise the process-wide legacy default.
func (p *Processor) resolveToken(bot store.Bot, found bool) (string, error) {
	if found && bot.Credential != "" {
		return bot.Credential, nil
	}
	if p.DefaultToken != "" {
		return p.DefaultToken, nil
	}
	return "", domain.ErrNoCredential
}

func (p *Processor) dispatchChannel(ctx context.Context, job sqsqueue.PublishJob, bot store.Bot, token, text string) (bool, error) {
	chatID, err := p.resolveChannel(ctx, token, bot)
	if err != nil {
		if domain.Fatal(err) {
			observability.Dispatches.WithLabelValues("channel", "failed").Inc()
			return true, err
		}
		return false, err
	}

	sent, err := p.sendWithRetry(ctx, token, telegram.SendRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		if telegram.NotFound(err) {
			observability.Dispatches.WithLabelValues("channel", "failed").Inc()
			return true, fmt.Errorf("%w: chat %d", domain.ErrChannelUnreachable, chatID)
		}
		return false, err
	}

	now := time.Now()
	if err := p.Store.SetPostDelivery(ctx, store.PostDelivery{
		ID:        job.PostID,
		MessageID: sent.MessageID,
		SentAt:    now,
	}); err != nil {
		return false, err
	}
	if err := p.Store.IncrementBotPostCount(ctx, job.BotID, now); err != nil {
		return false, err
	}

	observability.Dispatches.WithLabelValues("channel", "ok").Inc()
	slog.Info("post published to channel",
		"job_id", job.JobID, "post_id", job.PostID, "bot_id", job.BotID,
		"chat_id", chatID, "message_id", sent.MessageID)
	return false, nil
}

func (p *Processor) dispatchSubscribers(ctx context.Context, job sqsqueue.PublishJob, token, text string) (bool, error) {
	subs, err := p.Store.ListActiveSubscribers(ctx, job.BotID)
	if err != nil {
		// Total inability to enumerate recipients is fatal to the job.
		observability.Dispatches.WithLabelValues("subscribers", "failed").Inc()
		return true, fmt.Errorf("list subscribers: %w", err)
	}
	if len(subs) == 0 {
		observability.Dispatches.WithLabelValues("subscribers", "empty").Inc()
		slog.Info("no active subscribers, completing as no-op",
			"job_id", job.JobID, "post_id", job.PostID, "bot_id", job.BotID)
		return false, nil
	}

	res := p.fanOut(ctx, job, token, text, subs)
	observability.Dispatches.WithLabelValues("subscribers", "ok").Inc()
	slog.Info("fan-out finished",
		"job_id", job.JobID, "post_id", job.PostID, "bot_id", job.BotID,
		"total", len(subs), "success", res.Success, "failed", res.Failed, "blocked", res.Blocked)
	return false, nil
}

// sendWithRetry sends one message with the limiter, the breaker and a
// small bounded retry for transient provider errors. Breaker-open is
// returned as-is: the job goes back to the queue instead of failing.
func (p *Processor) sendWithRetry(ctx context.Context, token string, req telegram.SendRequest) (telegram.SentMessage, error) {
	var lastErr error
	start := time.Now()

	for attempt := 0; attempt < 3; attempt++ {
		sent, status, err := p.sendOnce(ctx, token, req)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.BotSend.WithLabelValues("cb_open", "0").Inc()
			return telegram.SentMessage{}, err
		}
		if err == nil {
			observability.BotSend.WithLabelValues("ok", strconv.Itoa(status)).Inc()
			observability.BotSendLatency.Observe(time.Since(start).Seconds())
			return sent, nil
		}

		lastErr = err
		observability.BotSend.WithLabelValues("error", strconv.Itoa(status)).Inc()
		if !telegram.ShouldRetry(err, status) {
			return telegram.SentMessage{}, err
		}
		select {
		case <-ctx.Done():
			return telegram.SentMessage{}, ctx.Err()
		case <-time.After(telegram.Backoff(attempt)):
		}
	}
	return telegram.SentMessage{}, lastErr
}

func (p *Processor) sendOnce(ctx context.Context, token string, req telegram.SendRequest) (telegram.SentMessage, int, error) {
	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return telegram.SentMessage{}, 0, err
		}
	}

	call := func() (any, error) {
		sent, status, err := p.Sender.SendMessage(ctx, token, req)
		if err != nil {
			return nil, sendError{err: err, status: status}
		}
		return sendResult{sent: sent, status: status}, nil
	}

	var resAny any
	var err error
	if p.Breaker != nil {
		resAny, err = p.Breaker.Execute(call)
	} else {
		resAny, err = call()
	}
	if err != nil {
		var se sendError
		if errors.As(err, &se) {
			return telegram.SentMessage{}, se.status, se.err
		}
		return telegram.SentMessage{}, 0, err
	}
	r := resAny.(sendResult)
	return r.sent, r.status, nil
}

// RenderText combines a post's title and content into the outbound text.
// The title goes out as a bold markdown line.
func RenderText(title, content string) string {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	switch {
	case title != "" && content != "":
		return "*" + title + "*\n\n" + content
	case title != "":
		return "*" + title + "*"
	default:
		return content
	}
}

type sendResult struct {
	sent   telegram.SentMessage
	status int
}

type sendError struct {
	err    error
	status int
}

func (e sendError) Error() string { return e.err.Error() }
func (e sendError) Unwrap() error { return e.err }
