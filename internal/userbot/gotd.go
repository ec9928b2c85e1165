package userbot

import (
	"context"
	"fmt"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"

	"telepost/internal/domain"
)

// gotdLoginConn backs the login state machine with a real MTProto
// connection whose session lives only in memory until the flow completes.
type gotdLoginConn struct {
	conn    *conn
	storage *session.StorageMemory
}

func dialTransient(ctx context.Context, appID int, appHash string) (loginConn, error) {
	storage := &session.StorageMemory{}
	c, err := dial(ctx, appID, appHash, storage)
	if err != nil {
		return nil, err
	}
	return &gotdLoginConn{conn: c, storage: storage}, nil
}

func (g *gotdLoginConn) SendCode(ctx context.Context, phone string) (string, string, error) {
	sent, err := g.conn.client.Auth().SendCode(ctx, phone, auth.SendCodeOptions{})
	if err != nil {
		return "", "", err
	}
	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return "", "", fmt.Errorf("unexpected sent code response %T", sent)
	}
	return code.PhoneCodeHash, deliveryHint(code.Type), nil
}

func (g *gotdLoginConn) SignIn(ctx context.Context, phone, code, codeHash string) error {
	_, err := g.conn.client.Auth().SignIn(ctx, phone, code, codeHash)
	return err
}

func (g *gotdLoginConn) Password(ctx context.Context, password string) error {
	_, err := g.conn.client.Auth().Password(ctx, password)
	return err
}

func (g *gotdLoginConn) Self(ctx context.Context) (domain.Identity, error) {
	u, err := g.conn.client.Self(ctx)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{
		UserID:    u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		Phone:     u.Phone,
	}, nil
}

func (g *gotdLoginConn) SessionBlob(ctx context.Context) ([]byte, error) {
	return g.storage.LoadSession(ctx)
}

func (g *gotdLoginConn) Close() { g.conn.Close() }

func deliveryHint(t tg.AuthSentCodeTypeClass) string {
	switch t.(type) {
	case *tg.AuthSentCodeTypeApp:
		return "app"
	case *tg.AuthSentCodeTypeCall, *tg.AuthSentCodeTypeFlashCall:
		return "call"
	default:
		return "sms"
	}
}

func (m *Manager) remoteLogout(ctx context.Context, ownerID string) error {
	storage := &pgSessionStorage{store: m.Store, ownerID: ownerID}
	c, err := dial(ctx, m.AppID, m.AppHash, storage)
	if err != nil {
		return err
	}
	defer c.Close()
	_, err = c.client.API().AuthLogOut(ctx)
	return err
}
