package pg

import "context"

// Migrate creates the tables this service owns. Posts, bots and
// subscribers are shared with the dashboard, so their DDL stays additive.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL,
		title TEXT,
		content TEXT,
		status TEXT NOT NULL DEFAULT 'draft',
		publish_target TEXT NOT NULL DEFAULT 'channel',
		message_id BIGINT,
		sent_at TIMESTAMPTZ,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS bots (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		credential TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		channel_id BIGINT,
		channel_username TEXT,
		channel_title TEXT,
		post_count INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS subscribers (
		bot_id TEXT NOT NULL,
		external_user_id BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		tags TEXT[] NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (bot_id, external_user_id)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		owner_id TEXT PRIMARY KEY,
		credential_blob BYTEA NOT NULL,
		phone_number TEXT NOT NULL,
		external_user_id BIGINT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_used_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS tracked_channels (
		owner_id TEXT NOT NULL,
		channel_id BIGINT NOT NULL,
		username TEXT,
		title TEXT,
		last_parsed_message_id BIGINT DEFAULT 0,
		total_parsed BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (owner_id, channel_id)
	);

	CREATE TABLE IF NOT EXISTS parsed_messages (
		channel_id BIGINT NOT NULL,
		message_id BIGINT NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		text TEXT,
		has_media BOOLEAN NOT NULL DEFAULT FALSE,
		media_type TEXT,
		views INT NOT NULL DEFAULT 0,
		forwards INT NOT NULL DEFAULT 0,
		hashtags TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (channel_id, message_id)
	);

	CREATE INDEX IF NOT EXISTS idx_subscribers_bot_status ON subscribers (bot_id, status);
	CREATE INDEX IF NOT EXISTS idx_parsed_messages_date ON parsed_messages (channel_id, date DESC);
	`
	_, err := s.DB.Exec(ctx, schema)
	return err
}
