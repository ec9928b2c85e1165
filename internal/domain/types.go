package domain

type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostScheduled PostStatus = "scheduled"
	PostPublished PostStatus = "published"
	PostFailed    PostStatus = "failed"
)

type PublishTarget string

const (
	TargetChannel     PublishTarget = "channel"
	TargetSubscribers PublishTarget = "subscribers"
)

type SubscriberStatus string

const (
	SubscriberActive  SubscriberStatus = "active"
	SubscriberBlocked SubscriberStatus = "blocked"
	SubscriberLeft    SubscriberStatus = "left"
)

type PublishRequest struct {
	BotID  string `json:"botId"`
	PostID string `json:"postId"`
}

func (r PublishRequest) Validate() error {
	if r.BotID == "" || r.PostID == "" {
		return ErrMissingFields
	}
	return nil
}

type PublishResponse struct {
	JobID  string `json:"jobId"`
	PostID string `json:"postId"`
	Status string `json:"status"`
}

type StartAuthRequest struct {
	OwnerID string `json:"ownerId"`
	Phone   string `json:"phone"`
}

func (r StartAuthRequest) Validate() error {
	if r.OwnerID == "" || r.Phone == "" {
		return ErrMissingFields
	}
	return nil
}

type StartAuthResponse struct {
	CodeHash     string `json:"codeHash"`
	DeliveryHint string `json:"deliveryHint"`
}

type CompleteAuthRequest struct {
	OwnerID  string `json:"ownerId"`
	Phone    string `json:"phone"`
	CodeHash string `json:"codeHash"`
	Code     string `json:"code"`
	Password string `json:"password,omitempty"`
}

func (r CompleteAuthRequest) Validate() error {
	if r.OwnerID == "" || r.Phone == "" || r.CodeHash == "" || r.Code == "" {
		return ErrMissingFields
	}
	return nil
}

// Identity summarizes the account a session is authenticated as.
type Identity struct {
	UserID    int64  `json:"userId"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	Phone     string `json:"phone"`
}

type ParseRequest struct {
	OwnerID  string `json:"ownerId"`
	Channel  string `json:"channel"`
	Limit    int    `json:"limit,omitempty"`
	OffsetID int    `json:"offsetId,omitempty"`
	// MinDate is a unix timestamp; messages older than it are skipped.
	MinDate int64 `json:"minDate,omitempty"`
}

func (r ParseRequest) Validate() error {
	if r.OwnerID == "" || r.Channel == "" {
		return ErrMissingFields
	}
	return nil
}

type ChannelCheck struct {
	ChannelID   int64  `json:"channelId"`
	Title       string `json:"title,omitempty"`
	Username    string `json:"username,omitempty"`
	MemberCount int    `json:"memberCount"`
	BotIsAdmin  bool   `json:"botIsAdmin"`
}
