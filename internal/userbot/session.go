package userbot

import (
	"context"
	"time"

	"github.com/gotd/td/session"

	"telepost/internal/store"
)

type SessionStore interface {
	GetSession(ctx context.Context, ownerID string) (store.Session, bool, error)
	UpsertSession(ctx context.Context, in store.SessionUpsert) error
	SaveSessionBlob(ctx context.Context, ownerID string, blob []byte, now time.Time) error
	TouchSession(ctx context.Context, ownerID string, now time.Time) error
	DeactivateSession(ctx context.Context, ownerID string, now time.Time) error
	DeleteSession(ctx context.Context, ownerID string) error
}

// pgSessionStorage adapts the sessions table to gotd's session.Storage so
// a persisted credential blob rehydrates a connection after restart.
// StoreSession keeps the row fresh when gotd rotates keys mid-run.
type pgSessionStorage struct {
	store   SessionStore
	ownerID string
}

func (s *pgSessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	sess, found, err := s.store.GetSession(ctx, s.ownerID)
	if err != nil {
		return nil, err
	}
	if !found || len(sess.CredentialBlob) == 0 {
		return nil, session.ErrNotFound
	}
	return sess.CredentialBlob, nil
}

func (s *pgSessionStorage) StoreSession(ctx context.Context, data []byte) error {
	return s.store.SaveSessionBlob(ctx, s.ownerID, data, time.Now())
}
