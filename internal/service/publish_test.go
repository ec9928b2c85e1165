package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"telepost/internal/domain"
	"telepost/internal/store"
)

type fakePublishStore struct {
	posts  map[string]store.Post
	marked []string
}

func (f *fakePublishStore) GetPost(_ context.Context, id string) (store.Post, bool, error) {
	p, ok := f.posts[id]
	return p, ok, nil
}

func (f *fakePublishStore) MarkPostPublishing(_ context.Context, id string, _ time.Time) (bool, error) {
	p := f.posts[id]
	if p.Status == string(domain.PostPublished) {
		return false, nil
	}
	p.Status = string(domain.PostPublished)
	f.posts[id] = p
	f.marked = append(f.marked, id)
	return true, nil
}

func (f *fakePublishStore) GetBot(_ context.Context, id string) (store.Bot, bool, error) {
	return store.Bot{ID: id}, true, nil
}

type fakeQueue struct {
	enqueued []string
	err      error
}

func (f *fakeQueue) EnqueuePublish(_ context.Context, jobID, _, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, jobID)
	return nil
}

func TestPublishEnqueuesOnce(t *testing.T) {
	st := &fakePublishStore{posts: map[string]store.Post{
		"p1": {ID: "p1", BotID: "b1", Status: string(domain.PostDraft)},
	}}
	q := &fakeQueue{}
	svc := &PublishService{Store: st, Queue: q}
	req := domain.PublishRequest{BotID: "b1", PostID: "p1"}

	resp, err := svc.Publish(context.Background(), req, "job_1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if resp.JobID != "job_1" || resp.Status != string(domain.PostPublished) {
		t.Fatalf("resp = %+v", resp)
	}

	// Retrying the same request finds the post already published and
	// must not enqueue a second job.
	resp, err = svc.Publish(context.Background(), req, "job_2", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if resp.JobID != "" || resp.Status != string(domain.PostPublished) {
		t.Fatalf("second resp = %+v", resp)
	}
	if len(q.enqueued) != 1 {
		t.Errorf("enqueued %d jobs, want 1", len(q.enqueued))
	}
}

func TestPublishRetryAfterFatalFailure(t *testing.T) {
	st := &fakePublishStore{posts: map[string]store.Post{
		"p1": {ID: "p1", BotID: "b1", Status: string(domain.PostFailed)},
	}}
	q := &fakeQueue{}
	svc := &PublishService{Store: st, Queue: q}

	resp, err := svc.Publish(context.Background(), domain.PublishRequest{BotID: "b1", PostID: "p1"}, "job_1", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if resp.JobID != "job_1" || len(q.enqueued) != 1 {
		t.Fatalf("failed post not re-publishable: resp=%+v enqueued=%v", resp, q.enqueued)
	}
}

func TestPublishUnknownPost(t *testing.T) {
	svc := &PublishService{Store: &fakePublishStore{posts: map[string]store.Post{}}, Queue: &fakeQueue{}}
	_, err := svc.Publish(context.Background(), domain.PublishRequest{BotID: "b1", PostID: "nope"}, "j", time.Now())
	if !errors.Is(err, domain.ErrPostNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestPublishWrongBotIsNotFound(t *testing.T) {
	st := &fakePublishStore{posts: map[string]store.Post{
		"p1": {ID: "p1", BotID: "owner", Status: string(domain.PostDraft)},
	}}
	svc := &PublishService{Store: st, Queue: &fakeQueue{}}
	_, err := svc.Publish(context.Background(), domain.PublishRequest{BotID: "intruder", PostID: "p1"}, "j", time.Now())
	if !errors.Is(err, domain.ErrPostNotFound) {
		t.Fatalf("err = %v", err)
	}
	if len(st.marked) != 0 {
		t.Error("ownership mismatch must not transition the post")
	}
}

func TestPublishEnqueueFailureSurfaces(t *testing.T) {
	st := &fakePublishStore{posts: map[string]store.Post{
		"p1": {ID: "p1", BotID: "b1", Status: string(domain.PostDraft)},
	}}
	svc := &PublishService{Store: st, Queue: &fakeQueue{err: errors.New("queue unavailable")}}
	_, err := svc.Publish(context.Background(), domain.PublishRequest{BotID: "b1", PostID: "p1"}, "j", time.Now())
	if err == nil {
		t.Fatal("expected error")
	}
}
