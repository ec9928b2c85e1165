package service

import (
	"context"
	"fmt"
	"time"

	"telepost/internal/domain"
	"telepost/internal/observability"
	"telepost/internal/store"
)

type Store interface {
	GetPost(ctx context.Context, postID string) (store.Post, bool, error)
	MarkPostPublishing(ctx context.Context, postID string, now time.Time) (bool, error)
	GetBot(ctx context.Context, botID string) (store.Bot, bool, error)
}

type Queue interface {
	EnqueuePublish(ctx context.Context, jobID, botID, postID string) error
}

type PublishService struct {
	Store Store
	Queue Queue
}

// Publish flips the post to published and enqueues exactly one delivery
// job. A post that is already published is returned as-is without a new
// job, which makes retrying the request safe.
func (s *PublishService) Publish(ctx context.Context, req domain.PublishRequest, jobID string, now time.Time) (domain.PublishResponse, error) {
	post, found, err := s.Store.GetPost(ctx, req.PostID)
	if err != nil {
		return domain.PublishResponse{}, err
	}
	if !found || post.BotID != req.BotID {
		return domain.PublishResponse{}, domain.ErrPostNotFound
	}

	transitioned, err := s.Store.MarkPostPublishing(ctx, req.PostID, now)
	if err != nil {
		return domain.PublishResponse{}, err
	}
	if !transitioned {
		return domain.PublishResponse{PostID: req.PostID, Status: string(domain.PostPublished)}, nil
	}

	if err := s.Queue.EnqueuePublish(ctx, jobID, req.BotID, req.PostID); err != nil {
		observability.Enqueues.WithLabelValues("error").Inc()
		return domain.PublishResponse{}, fmt.Errorf("enqueue publish job: %w", err)
	}
	observability.Enqueues.WithLabelValues("ok").Inc()

	return domain.PublishResponse{JobID: jobID, PostID: req.PostID, Status: string(domain.PostPublished)}, nil
}
