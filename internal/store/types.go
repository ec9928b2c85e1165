package store

import "time"

type Post struct {
	ID            string
	BotID         string
	Title         string
	Content       string
	Status        string
	PublishTarget string
	MessageID     int64
	SentAt        *time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Bot struct {
	ID              string
	OwnerID         string
	Credential      string
	IsActive        bool
	ChannelID       int64
	ChannelUsername string
	ChannelTitle    string
	PostCount       int
}

type Subscriber struct {
	BotID          string
	ExternalUserID int64
	Status         string
	Tags           []string
}

type Session struct {
	OwnerID        string
	CredentialBlob []byte
	PhoneNumber    string
	ExternalUserID int64
	IsActive       bool
	LastUsedAt     time.Time
}

type SessionUpsert struct {
	OwnerID        string
	CredentialBlob []byte
	PhoneNumber    string
	ExternalUserID int64
	Now            time.Time
}

type TrackedChannel struct {
	OwnerID             string
	ChannelID           int64
	Username            string
	Title               string
	LastParsedMessageID int64
	TotalParsed         int64
}

type TrackedChannelUpdate struct {
	OwnerID             string
	ChannelID           int64
	Username            string
	Title               string
	LastParsedMessageID int64
	ParsedDelta         int64
	Now                 time.Time
}

// ParsedMessage is returned on the parse endpoint, so unlike the other
// row structs it carries JSON tags matching the API's key style.
type ParsedMessage struct {
	ChannelID int64     `json:"channelId"`
	MessageID int64     `json:"messageId"`
	Date      time.Time `json:"date"`
	Text      string    `json:"text"`
	HasMedia  bool      `json:"hasMedia"`
	MediaType string    `json:"mediaType,omitempty"`
	Views     int       `json:"views"`
	Forwards  int       `json:"forwards"`
	Hashtags  []string  `json:"hashtags,omitempty"`
}

type PostDelivery struct {
	ID        string
	MessageID int64
	SentAt    time.Time
}
