package userbot

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gotd/td/tg"

	"telepost/internal/domain"
	"telepost/internal/observability"
	"telepost/internal/store"
)

type HistoryStore interface {
	SessionStore
	UpdateTrackedChannel(ctx context.Context, in store.TrackedChannelUpdate) error
	UpsertParsedMessage(ctx context.Context, m store.ParsedMessage) (bool, error)
	GetTrackedChannel(ctx context.Context, ownerID string, channelID int64) (store.TrackedChannel, bool, error)
	CountParsedMessages(ctx context.Context, channelID int64) (int64, error)
}

// historyBatch is one fetched page plus the channel metadata needed for
// bookkeeping.
type historyBatch struct {
	channelID int64
	username  string
	title     string
	messages  []tg.MessageClass
}

type fetchFunc func(ctx context.Context, ownerID, channel string, offsetID, limit int) (historyBatch, error)

// Puller pages through a public channel's history with an owner's
// authenticated session and persists normalized records.
type Puller struct {
	AppID   int
	AppHash string
	Store   HistoryStore

	// FetchFn overrides the gotd history fetch in tests.
	FetchFn fetchFunc
}

type HistoryPage struct {
	ChannelID int64                 `json:"channelId"`
	Messages  []store.ParsedMessage `json:"messages"`
	Inserted  int                   `json:"inserted"`
	HasMore   bool                  `json:"hasMore"`
}

const maxPageSize = 100

// ParseChannel fetches up to req.Limit messages (capped at 100) starting
// at req.OffsetID, persists them idempotently and advances the tracked
// channel's resume cursor. HasMore is true when the page came back full.
func (p *Puller) ParseChannel(ctx context.Context, req domain.ParseRequest) (HistoryPage, error) {
	if p.AppID == 0 || p.AppHash == "" {
		return HistoryPage{}, domain.ErrNotConfigured
	}

	sess, found, err := p.Store.GetSession(ctx, req.OwnerID)
	if err != nil {
		return HistoryPage{}, err
	}
	if !found || !sess.IsActive {
		return HistoryPage{}, domain.ErrNotAuthenticated
	}

	limit := req.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	batch, err := p.fetch(ctx, req.OwnerID, req.Channel, req.OffsetID, limit)
	if err != nil {
		return HistoryPage{}, err
	}

	page := HistoryPage{ChannelID: batch.channelID, HasMore: len(batch.messages) == limit}
	var cursor int64
	for _, mc := range batch.messages {
		msg, ok := mc.(*tg.Message)
		if !ok {
			continue // service messages and holes carry no content
		}
		if req.MinDate > 0 && int64(msg.Date) < req.MinDate {
			continue
		}
		rec := normalizeMessage(batch.channelID, msg)
		inserted, err := p.Store.UpsertParsedMessage(ctx, rec)
		if err != nil {
			return HistoryPage{}, fmt.Errorf("persist message %d: %w", rec.MessageID, err)
		}
		if inserted {
			page.Inserted++
			observability.ParsedMessages.Inc()
		}
		if rec.MessageID > cursor {
			cursor = rec.MessageID
		}
		page.Messages = append(page.Messages, rec)
	}

	if err := p.Store.UpdateTrackedChannel(ctx, store.TrackedChannelUpdate{
		OwnerID:             req.OwnerID,
		ChannelID:           batch.channelID,
		Username:            batch.username,
		Title:               batch.title,
		LastParsedMessageID: cursor,
		ParsedDelta:         int64(page.Inserted),
		Now:                 time.Now(),
	}); err != nil {
		return HistoryPage{}, err
	}
	_ = p.Store.TouchSession(ctx, req.OwnerID, time.Now())

	slog.Info("channel history parsed",
		"owner_id", req.OwnerID, "channel", req.Channel, "channel_id", batch.channelID,
		"fetched", len(page.Messages), "inserted", page.Inserted, "has_more", page.HasMore)
	return page, nil
}

func (p *Puller) fetch(ctx context.Context, ownerID, channel string, offsetID, limit int) (historyBatch, error) {
	if p.FetchFn != nil {
		return p.FetchFn(ctx, ownerID, channel, offsetID, limit)
	}
	return p.fetchLive(ctx, ownerID, channel, offsetID, limit)
}

func (p *Puller) fetchLive(ctx context.Context, ownerID, channel string, offsetID, limit int) (historyBatch, error) {
	c, err := dial(ctx, p.AppID, p.AppHash, &pgSessionStorage{store: p.Store, ownerID: ownerID})
	if err != nil {
		return historyBatch{}, fmt.Errorf("connect: %w", err)
	}
	defer c.Close()

	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return historyBatch{}, err
	}
	if !status.Authorized {
		// Rehydration failed authorization: the blob is dead, not the caller.
		_ = p.Store.DeactivateSession(ctx, ownerID, time.Now())
		return historyBatch{}, domain.ErrNotAuthenticated
	}

	api := c.client.API()
	peer, ch, err := resolveChannelPeer(ctx, api, channel)
	if err != nil {
		return historyBatch{}, err
	}

	history, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:     peer,
		OffsetID: offsetID,
		Limit:    limit,
	})
	if err != nil {
		return historyBatch{}, fmt.Errorf("get history for %s: %w", channel, err)
	}

	raw, err := historyMessages(history)
	if err != nil {
		return historyBatch{}, err
	}
	return historyBatch{
		channelID: ch.ID,
		username:  ch.Username,
		title:     ch.Title,
		messages:  raw,
	}, nil
}

// SendAs posts text to a channel through the owner's personal session.
func (p *Puller) SendAs(ctx context.Context, ownerID, channel, text string) error {
	if p.AppID == 0 || p.AppHash == "" {
		return domain.ErrNotConfigured
	}
	sess, found, err := p.Store.GetSession(ctx, ownerID)
	if err != nil {
		return err
	}
	if !found || !sess.IsActive {
		return domain.ErrNotAuthenticated
	}

	c, err := dial(ctx, p.AppID, p.AppHash, &pgSessionStorage{store: p.Store, ownerID: ownerID})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer c.Close()

	api := c.client.API()
	peer, _, err := resolveChannelPeer(ctx, api, channel)
	if err != nil {
		return err
	}

	_, err = api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: randomID(),
	})
	if err != nil {
		return fmt.Errorf("send as %s: %w", ownerID, err)
	}
	_ = p.Store.TouchSession(ctx, ownerID, time.Now())
	return nil
}

type ChannelStats struct {
	ChannelID           int64  `json:"channelId"`
	Username            string `json:"username,omitempty"`
	Title               string `json:"title,omitempty"`
	LastParsedMessageID int64  `json:"lastParsedMessageId"`
	TotalParsed         int64  `json:"totalParsed"`
	StoredCount         int64  `json:"storedCount"`
}

// ChannelStats reports the resume cursor and persisted message volume for
// a channel the owner has parsed before.
func (p *Puller) ChannelStats(ctx context.Context, ownerID string, channelID int64) (ChannelStats, error) {
	tc, found, err := p.Store.GetTrackedChannel(ctx, ownerID, channelID)
	if err != nil {
		return ChannelStats{}, err
	}
	if !found {
		return ChannelStats{}, domain.ErrChannelNotTracked
	}
	n, err := p.Store.CountParsedMessages(ctx, channelID)
	if err != nil {
		return ChannelStats{}, err
	}
	return ChannelStats{
		ChannelID:           tc.ChannelID,
		Username:            tc.Username,
		Title:               tc.Title,
		LastParsedMessageID: tc.LastParsedMessageID,
		TotalParsed:         tc.TotalParsed,
		StoredCount:         n,
	}, nil
}

// resolveChannelPeer turns a handle into an input peer plus the channel
// metadata needed for bookkeeping.
func resolveChannelPeer(ctx context.Context, api *tg.Client, channel string) (tg.InputPeerClass, *tg.Channel, error) {
	username := strings.TrimPrefix(strings.TrimSpace(channel), "@")
	resolved, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
		Username: username,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", username, err)
	}

	peerChannel, ok := resolved.Peer.(*tg.PeerChannel)
	if !ok {
		return nil, nil, fmt.Errorf("%s is not a channel", username)
	}
	for _, chat := range resolved.Chats {
		if ch, ok := chat.(*tg.Channel); ok && ch.ID == peerChannel.ChannelID {
			return &tg.InputPeerChannel{
				ChannelID:  ch.ID,
				AccessHash: ch.AccessHash,
			}, ch, nil
		}
	}
	return nil, nil, fmt.Errorf("channel %s missing from resolve response", username)
}

func historyMessages(res tg.MessagesMessagesClass) ([]tg.MessageClass, error) {
	switch v := res.(type) {
	case *tg.MessagesMessages:
		return v.Messages, nil
	case *tg.MessagesMessagesSlice:
		return v.Messages, nil
	case *tg.MessagesChannelMessages:
		return v.Messages, nil
	default:
		return nil, fmt.Errorf("unexpected history result type %T", res)
	}
}

func randomID() int64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return int64(binary.LittleEndian.Uint64(b[:]) &^ (1 << 63))
}
