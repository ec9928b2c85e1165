package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"telepost/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// MarkPostPublishing flips a draft/scheduled/failed post to published.
// Returns false when the post was already published, which makes the
// publish trigger idempotent: the caller must not enqueue a second job.
// A fatally failed post may be re-published after the operator fixes it.
func (s *Store) MarkPostPublishing(ctx context.Context, postID string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE posts SET status='published', updated_at=$2
		WHERE id=$1 AND status IN ('draft','scheduled','failed')
	`, postID, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) GetPost(ctx context.Context, postID string) (store.Post, bool, error) {
	var p store.Post
	row := s.DB.QueryRow(ctx, `
		SELECT id, bot_id, COALESCE(title,''), COALESCE(content,''), status, publish_target,
		       COALESCE(message_id,0), sent_at, COALESCE(last_error,''), created_at, updated_at
		FROM posts WHERE id=$1
	`, postID)
	err := row.Scan(&p.ID, &p.BotID, &p.Title, &p.Content, &p.Status, &p.PublishTarget,
		&p.MessageID, &p.SentAt, &p.LastError, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return store.Post{}, false, nil
		}
		return store.Post{}, false, err
	}
	return p, true, nil
}

func (s *Store) SetPostDelivery(ctx context.Context, in store.PostDelivery) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE posts SET message_id=$2, sent_at=$3, last_error=NULL, updated_at=$3 WHERE id=$1
	`, in.ID, in.MessageID, in.SentAt)
	return err
}

// MarkPostFailed records a fatal delivery failure: status plus the error
// string, so the dashboard can show why and offer a re-publish.
func (s *Store) MarkPostFailed(ctx context.Context, postID, lastError string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE posts SET status='failed', last_error=$2, updated_at=$3 WHERE id=$1
	`, postID, lastError, now)
	return err
}

func (s *Store) GetBot(ctx context.Context, botID string) (store.Bot, bool, error) {
	var b store.Bot
	row := s.DB.QueryRow(ctx, `
		SELECT id, owner_id, COALESCE(credential,''), is_active, COALESCE(channel_id,0),
		       COALESCE(channel_username,''), COALESCE(channel_title,''), post_count
		FROM bots WHERE id=$1
	`, botID)
	err := row.Scan(&b.ID, &b.OwnerID, &b.Credential, &b.IsActive, &b.ChannelID,
		&b.ChannelUsername, &b.ChannelTitle, &b.PostCount)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return store.Bot{}, false, nil
		}
		return store.Bot{}, false, err
	}
	return b, true, nil
}

// SetBotChannel persists a freshly resolved numeric channel id so future
// dispatches skip the remote lookup.
func (s *Store) SetBotChannel(ctx context.Context, botID string, channelID int64, username, title string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE bots SET channel_id=$2, channel_username=$3, channel_title=$4, updated_at=$5 WHERE id=$1
	`, botID, channelID, nullIfEmpty(username), nullIfEmpty(title), now)
	return err
}

func (s *Store) IncrementBotPostCount(ctx context.Context, botID string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE bots SET post_count=post_count+1, updated_at=$2 WHERE id=$1
	`, botID, now)
	return err
}

func (s *Store) ListActiveSubscribers(ctx context.Context, botID string) ([]store.Subscriber, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT bot_id, external_user_id, status, COALESCE(tags,'{}')
		FROM subscribers WHERE bot_id=$1 AND status='active'
		ORDER BY external_user_id
	`, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Subscriber
	for rows.Next() {
		var sub store.Subscriber
		if err := rows.Scan(&sub.BotID, &sub.ExternalUserID, &sub.Status, &sub.Tags); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) MarkSubscriberBlocked(ctx context.Context, botID string, externalUserID int64, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE subscribers SET status='blocked', updated_at=$3
		WHERE bot_id=$1 AND external_user_id=$2
	`, botID, externalUserID, now)
	return err
}

func (s *Store) UpsertSession(ctx context.Context, in store.SessionUpsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO sessions (owner_id, credential_blob, phone_number, external_user_id, is_active, last_used_at, created_at)
		VALUES ($1,$2,$3,$4,TRUE,$5,$5)
		ON CONFLICT (owner_id)
		DO UPDATE SET credential_blob=$2, phone_number=$3, external_user_id=$4, is_active=TRUE, last_used_at=$5
	`, in.OwnerID, in.CredentialBlob, in.PhoneNumber, in.ExternalUserID, in.Now)
	return err
}

func (s *Store) GetSession(ctx context.Context, ownerID string) (store.Session, bool, error) {
	var sess store.Session
	row := s.DB.QueryRow(ctx, `
		SELECT owner_id, credential_blob, phone_number, COALESCE(external_user_id,0), is_active, last_used_at
		FROM sessions WHERE owner_id=$1
	`, ownerID)
	err := row.Scan(&sess.OwnerID, &sess.CredentialBlob, &sess.PhoneNumber,
		&sess.ExternalUserID, &sess.IsActive, &sess.LastUsedAt)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return store.Session{}, false, nil
		}
		return store.Session{}, false, err
	}
	return sess, true, nil
}

func (s *Store) SaveSessionBlob(ctx context.Context, ownerID string, blob []byte, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE sessions SET credential_blob=$2, last_used_at=$3 WHERE owner_id=$1
	`, ownerID, blob, now)
	return err
}

func (s *Store) TouchSession(ctx context.Context, ownerID string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE sessions SET last_used_at=$2 WHERE owner_id=$1
	`, ownerID, now)
	return err
}

// DeactivateSession marks a session unusable without deleting it, used
// when rehydration fails authorization.
func (s *Store) DeactivateSession(ctx context.Context, ownerID string, now time.Time) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE sessions SET is_active=FALSE, last_used_at=$2 WHERE owner_id=$1
	`, ownerID, now)
	return err
}

func (s *Store) DeleteSession(ctx context.Context, ownerID string) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM sessions WHERE owner_id=$1`, ownerID)
	return err
}

func (s *Store) UpdateTrackedChannel(ctx context.Context, in store.TrackedChannelUpdate) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO tracked_channels (owner_id, channel_id, username, title, last_parsed_message_id, total_parsed, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (owner_id, channel_id)
		DO UPDATE SET username=COALESCE($3, tracked_channels.username),
		              title=COALESCE($4, tracked_channels.title),
		              last_parsed_message_id=GREATEST(tracked_channels.last_parsed_message_id, $5),
		              total_parsed=tracked_channels.total_parsed + $6,
		              updated_at=$7
	`, in.OwnerID, in.ChannelID, nullIfEmpty(in.Username), nullIfEmpty(in.Title),
		in.LastParsedMessageID, in.ParsedDelta, in.Now)
	return err
}

func (s *Store) GetTrackedChannel(ctx context.Context, ownerID string, channelID int64) (store.TrackedChannel, bool, error) {
	var tc store.TrackedChannel
	row := s.DB.QueryRow(ctx, `
		SELECT owner_id, channel_id, COALESCE(username,''), COALESCE(title,''),
		       COALESCE(last_parsed_message_id,0), total_parsed
		FROM tracked_channels WHERE owner_id=$1 AND channel_id=$2
	`, ownerID, channelID)
	err := row.Scan(&tc.OwnerID, &tc.ChannelID, &tc.Username, &tc.Title,
		&tc.LastParsedMessageID, &tc.TotalParsed)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return store.TrackedChannel{}, false, nil
		}
		return store.TrackedChannel{}, false, err
	}
	return tc, true, nil
}

// UpsertParsedMessage persists one normalized message. Re-pulling the same
// window updates in place; inserted reports whether the row is new
// (xmax=0 only holds for freshly inserted tuples).
func (s *Store) UpsertParsedMessage(ctx context.Context, m store.ParsedMessage) (bool, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO parsed_messages (channel_id, message_id, date, text, has_media, media_type, views, forwards, hashtags, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		ON CONFLICT (channel_id, message_id)
		DO UPDATE SET text=$4, has_media=$5, media_type=$6, views=$7, forwards=$8, hashtags=$9
		RETURNING (xmax = 0)
	`, m.ChannelID, m.MessageID, m.Date, m.Text, m.HasMedia, nullIfEmpty(m.MediaType),
		m.Views, m.Forwards, m.Hashtags)
	var inserted bool
	if err := row.Scan(&inserted); err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *Store) CountParsedMessages(ctx context.Context, channelID int64) (int64, error) {
	var n int64
	err := s.DB.QueryRow(ctx, `
		SELECT COUNT(*) FROM parsed_messages WHERE channel_id=$1
	`, channelID).Scan(&n)
	return n, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
