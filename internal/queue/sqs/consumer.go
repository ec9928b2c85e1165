package sqsqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type Consumer struct {
	SQS      *sqs.Client
	QueueURL string

	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout int32
}

// Handler processes one publish job. fatal=true acknowledges the message
// even on error: the job cannot succeed on redrive (post gone, empty
// content, destination forbidden) and failure is already recorded on the
// post. Transient errors leave the message for SQS redrive/DLQ.
type Handler func(ctx context.Context, job PublishJob) (fatal bool, err error)

func (c *Consumer) Poll(ctx context.Context, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		out, err := c.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            &c.QueueURL,
			MaxNumberOfMessages: c.MaxMessages,
			WaitTimeSeconds:     c.WaitTimeSeconds,
			VisibilityTimeout:   c.VisibilityTimeout,
		})
		if err != nil {
			slog.Error("sqs receive message failed", "err", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		for _, m := range out.Messages {
			c.handleOne(ctx, m, handler)
		}
	}
}

func (c *Consumer) handleOne(ctx context.Context, m types.Message, handler Handler) {
	// Always delete poison / invalid payloads so they don't loop forever.
	if m.Body == nil {
		c.delete(ctx, m)
		return
	}
	var job PublishJob
	if err := json.Unmarshal([]byte(*m.Body), &job); err != nil {
		slog.Error("dropping malformed job payload", "err", err)
		c.delete(ctx, m)
		return
	}

	fatal, err := handler(ctx, job)
	if err == nil || fatal {
		c.delete(ctx, m)
		return
	}
	// Transient: do NOT delete, SQS redrive/DLQ handles it.
	slog.Error("job left for redrive", "job_id", job.JobID, "err", err)
}

func (c *Consumer) delete(ctx context.Context, m types.Message) {
	_, _ = c.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.QueueURL,
		ReceiptHandle: m.ReceiptHandle,
	})
}

// PollConcurrent processes messages with a worker pool. Messages are
// deleted only after the handler completes.
func (c *Consumer) PollConcurrent(ctx context.Context, workers int, handler Handler) error {
	if workers <= 1 {
		return c.Poll(ctx, handler)
	}

	jobs := make(chan types.Message, workers*2)
	errCh := make(chan error, 1)

	sendErr := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				c.handleOne(ctx, m, handler)
			}
		}()
	}

	go func() {
		defer close(jobs)

		for {
			if ctx.Err() != nil {
				sendErr(ctx.Err())
				return
			}

			out, err := c.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            &c.QueueURL,
				MaxNumberOfMessages: c.MaxMessages,
				WaitTimeSeconds:     c.WaitTimeSeconds,
				VisibilityTimeout:   c.VisibilityTimeout,
			})
			if err != nil {
				slog.Error("sqs receive message failed", "err", err)
				time.Sleep(500 * time.Millisecond)
				continue
			}

			for _, m := range out.Messages {
				select {
				case jobs <- m:
				case <-ctx.Done():
					sendErr(ctx.Err())
					return
				}
			}
		}
	}()

	err := <-errCh
	wg.Wait()
	return err
}
