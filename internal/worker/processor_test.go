package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"telepost/internal/domain"
	"telepost/internal/providers/telegram"
	sqsqueue "telepost/internal/queue/sqs"
	"telepost/internal/store"
)

type fakeStore struct {
	posts map[string]store.Post
	bots  map[string]store.Bot
	subs  []store.Subscriber

	listErr error

	delivered  []store.PostDelivery
	failed     map[string]string
	blocked    []int64
	botChannel *store.Bot
	postCount  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		posts:  map[string]store.Post{},
		bots:   map[string]store.Bot{},
		failed: map[string]string{},
	}
}

func (f *fakeStore) GetPost(_ context.Context, id string) (store.Post, bool, error) {
	p, ok := f.posts[id]
	return p, ok, nil
}

func (f *fakeStore) SetPostDelivery(_ context.Context, in store.PostDelivery) error {
	f.delivered = append(f.delivered, in)
	return nil
}

func (f *fakeStore) MarkPostFailed(_ context.Context, id, lastError string, _ time.Time) error {
	f.failed[id] = lastError
	return nil
}

func (f *fakeStore) GetBot(_ context.Context, id string) (store.Bot, bool, error) {
	b, ok := f.bots[id]
	return b, ok, nil
}

func (f *fakeStore) SetBotChannel(_ context.Context, botID string, channelID int64, username, title string, _ time.Time) error {
	b := f.bots[botID]
	b.ChannelID = channelID
	b.ChannelUsername = username
	b.ChannelTitle = title
	f.bots[botID] = b
	f.botChannel = &b
	return nil
}

func (f *fakeStore) IncrementBotPostCount(_ context.Context, _ string, _ time.Time) error {
	f.postCount++
	return nil
}

func (f *fakeStore) ListActiveSubscribers(_ context.Context, _ string) ([]store.Subscriber, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.subs, nil
}

func (f *fakeStore) MarkSubscriberBlocked(_ context.Context, _ string, userID int64, _ time.Time) error {
	f.blocked = append(f.blocked, userID)
	return nil
}

type sentCall struct {
	ChatID int64
	Text   string
}

type fakeSender struct {
	sent     []sentCall
	getChats int
	chat     telegram.Chat
	chatErr  error
	// sendErr returns the error for a given chat id, nil for success.
	sendErr func(chatID int64) error
}

func (f *fakeSender) SendMessage(_ context.Context, _ string, req telegram.SendRequest) (telegram.SentMessage, int, error) {
	if f.sendErr != nil {
		if err := f.sendErr(req.ChatID); err != nil {
			return telegram.SentMessage{}, 400, err
		}
	}
	f.sent = append(f.sent, sentCall{ChatID: req.ChatID, Text: req.Text})
	return telegram.SentMessage{MessageID: int64(1000 + len(f.sent))}, 200, nil
}

func (f *fakeSender) GetChat(_ context.Context, _, _ string) (telegram.Chat, int, error) {
	f.getChats++
	if f.chatErr != nil {
		return telegram.Chat{}, 400, f.chatErr
	}
	return f.chat, 200, nil
}

func newProcessor(st *fakeStore, sn *fakeSender) *Processor {
	return &Processor{
		Store:     st,
		Sender:    sn,
		PaceEvery: 20,
		PauseFn:   func(context.Context, time.Duration) {},
	}
}

func TestChannelDispatchSendsRenderedText(t *testing.T) {
	st := newFakeStore()
	st.posts["p1"] = store.Post{ID: "p1", BotID: "b1", Title: "Hi", Content: "world", PublishTarget: "channel"}
	st.bots["b1"] = store.Bot{ID: "b1", Credential: "tok", ChannelID: -100123}
	sn := &fakeSender{}

	p := newProcessor(st, sn)
	fatal, err := p.Process(context.Background(), sqsqueue.PublishJob{JobID: "j1", BotID: "b1", PostID: "p1"})
	if err != nil || fatal {
		t.Fatalf("unexpected result: fatal=%v err=%v", fatal, err)
	}

	if len(sn.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(sn.sent))
	}
	if sn.sent[0].ChatID != -100123 {
		t.Errorf("sent to %d, want -100123", sn.sent[0].ChatID)
	}
	if sn.sent[0].Text != "*Hi*\n\nworld" {
		t.Errorf("sent text %q", sn.sent[0].Text)
	}
	if len(st.delivered) != 1 || st.delivered[0].MessageID == 0 {
		t.Fatalf("delivery not recorded: %+v", st.delivered)
	}
	if st.postCount != 1 {
		t.Errorf("post counter = %d, want 1", st.postCount)
	}
	if sn.getChats != 0 {
		t.Errorf("resolved channel remotely despite stored id")
	}
}

func TestMissingPostIsFatal(t *testing.T) {
	p := newProcessor(newFakeStore(), &fakeSender{})
	fatal, err := p.Process(context.Background(), sqsqueue.PublishJob{JobID: "j1", BotID: "b1", PostID: "gone"})
	if !fatal {
		t.Fatal("expected fatal")
	}
	if !errors.Is(err, domain.ErrPostNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestNoCredentialIsFatal(t *testing.T) {
	st := newFakeStore()
	st.posts["p1"] = store.Post{ID: "p1", BotID: "b1", Content: "text", PublishTarget: "channel"}
	st.bots["b1"] = store.Bot{ID: "b1", ChannelID: 5}

	p := newProcessor(st, &fakeSender{})
	fatal, err := p.Process(context.Background(), sqsqueue.PublishJob{JobID: "j1", BotID: "b1", PostID: "p1"})
	if !fatal || !errors.Is(err, domain.ErrNoCredential) {
		t.Fatalf("fatal=%v err=%v", fatal, err)
	}
	if st.failed["p1"] == "" {
		t.Error("failure not recorded on post")
	}
}

func TestDefaultTokenFallback(t *testing.T) {
	st := newFakeStore()
	st.posts["p1"] = store.Post{ID: "p1", BotID: "b1", Content: "text", PublishTarget: "channel"}
	st.bots["b1"] = store.Bot{ID: "b1", ChannelID: 5}
	sn := &fakeSender{}

	p := newProcessor(st, sn)
	p.DefaultToken = "legacy"
	fatal, err := p.Process(context.Background(), sqsqueue.PublishJob{JobID: "j1", BotID: "b1", PostID: "p1"})
	if err != nil || fatal {
		t.Fatalf("fatal=%v err=%v", fatal, err)
	}
	if len(sn.sent) != 1 {
		t.Fatalf("expected send via default token")
	}
}

func TestEmptyContentIsFatal(t *testing.T) {
	st := newFakeStore()
	st.posts["p1"] = store.Post{ID: "p1", BotID: "b1", Title: "  ", Content: "", PublishTarget: "channel"}
	st.bots["b1"] = store.Bot{ID: "b1", Credential: "tok", ChannelID: 5}

	p := newProcessor(st, &fakeSender{})
	fatal, err := p.Process(context.Background(), sqsqueue.PublishJob{JobID: "j1", BotID: "b1", PostID: "p1"})
	if !fatal || !errors.Is(err, domain.ErrEmptyContent) {
		t.Fatalf("fatal=%v err=%v", fatal, err)
	}
}

func TestEmptySubscriberSetCompletesAsNoOp(t *testing.T) {
	st := newFakeStore()
	st.posts["p1"] = store.Post{ID: "p1", BotID: "b1", Content: "hello", PublishTarget: "subscribers"}
	st.bots["b1"] = store.Bot{ID: "b1", Credential: "tok"}
	sn := &fakeSender{}

	p := newProcessor(st, sn)
	fatal, err := p.Process(context.Background(), sqsqueue.PublishJob{JobID: "j1", BotID: "b1", PostID: "p1"})
	if err != nil || fatal {
		t.Fatalf("fatal=%v err=%v", fatal, err)
	}
	if len(sn.sent) != 0 {
		t.Errorf("expected zero sends, got %d", len(sn.sent))
	}
}

func TestSubscriberEnumerationFailureIsFatal(t *testing.T) {
	st := newFakeStore()
	st.posts["p1"] = store.Post{ID: "p1", BotID: "b1", Content: "hello", PublishTarget: "subscribers"}
	st.bots["b1"] = store.Bot{ID: "b1", Credential: "tok"}
	st.listErr = errors.New("relation subscribers does not exist")

	p := newProcessor(st, &fakeSender{})
	fatal, err := p.Process(context.Background(), sqsqueue.PublishJob{JobID: "j1", BotID: "b1", PostID: "p1"})
	if !fatal || err == nil {
		t.Fatalf("fatal=%v err=%v", fatal, err)
	}
}

func TestRenderText(t *testing.T) {
	cases := []struct {
		title, content, want string
	}{
		{"Hi", "world", "*Hi*\n\nworld"},
		{"", "world", "world"},
		{"Hi", "", "*Hi*"},
		{" ", " ", ""},
	}
	for _, c := range cases {
		if got := RenderText(c.title, c.content); got != c.want {
			t.Errorf("RenderText(%q, %q) = %q, want %q", c.title, c.content, got, c.want)
		}
	}
}
