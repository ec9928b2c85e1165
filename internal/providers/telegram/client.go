package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// Client talks to the Telegram Bot API. The token is passed per call:
// which bot sends is decided per job, not per client.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

type SendRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type SentMessage struct {
	MessageID int64 `json:"message_id"`
	Date      int64 `json:"date"`
}

type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Username string `json:"username"`
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// APIError is a non-ok Bot API response, kept distinguishable so the
// dispatcher can classify blocked recipients and missing chats.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

func (c *Client) SendMessage(ctx context.Context, token string, req SendRequest) (SentMessage, int, error) {
	var out SentMessage
	status, err := c.call(ctx, token, "sendMessage", req, &out)
	return out, status, err
}

func (c *Client) GetChat(ctx context.Context, token, chat string) (Chat, int, error) {
	var out Chat
	status, err := c.call(ctx, token, "getChat", map[string]string{"chat_id": chat}, &out)
	return out, status, err
}

func (c *Client) GetChatMemberCount(ctx context.Context, token string, chatID int64) (int, error) {
	var out int
	_, err := c.call(ctx, token, "getChatMemberCount", map[string]int64{"chat_id": chatID}, &out)
	return out, err
}

// GetChatMemberStatus returns the member's role in the chat
// ("creator", "administrator", "member", ...).
func (c *Client) GetChatMemberStatus(ctx context.Context, token string, chatID, userID int64) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	_, err := c.call(ctx, token, "getChatMember", map[string]int64{"chat_id": chatID, "user_id": userID}, &out)
	return out.Status, err
}

// GetMe resolves the bot's own numeric id from its token.
func (c *Client) GetMe(ctx context.Context, token string) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	_, err := c.call(ctx, token, "getMe", struct{}{}, &out)
	return out.ID, err
}

func (c *Client) call(ctx context.Context, token, method string, body, result any) (int, error) {
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	endpoint := baseURL + "/bot" + token + "/" + method

	b, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp.StatusCode, fmt.Errorf("telegram: bad response (%d): %w", resp.StatusCode, err)
	}
	if !env.OK {
		return resp.StatusCode, &APIError{Code: env.ErrorCode, Description: env.Description}
	}
	if result != nil {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// Unreachable reports whether an error means the recipient can never be
// reached with this credential: the bot was blocked, the user is gone, or
// the chat rejects the bot. These flip a subscriber to blocked.
func Unreachable(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	if ae.Code == 403 {
		return true
	}
	desc := strings.ToLower(ae.Description)
	return ae.Code == 400 && (strings.Contains(desc, "chat not found") ||
		strings.Contains(desc, "user is deactivated"))
}

// NotFound reports a destination the credential cannot resolve at all.
func NotFound(err error) bool {
	var ae *APIError
	if !errors.As(err, &ae) {
		return false
	}
	desc := strings.ToLower(ae.Description)
	return ae.Code == 403 || strings.Contains(desc, "chat not found") ||
		strings.Contains(desc, "not found")
}

// Retry decision for transient errors.
func ShouldRetry(err error, httpStatus int) bool {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return true
		}
		var ae *APIError
		if errors.As(err, &ae) {
			return ae.Code == 429 || (ae.Code >= 500 && ae.Code <= 599)
		}
		return false
	}
	if httpStatus == 429 || httpStatus == 408 {
		return true
	}
	return httpStatus >= 500 && httpStatus <= 599
}

func Backoff(attempt int) time.Duration {
	base := []time.Duration{200 * time.Millisecond, 600 * time.Millisecond, 1400 * time.Millisecond}
	if attempt <= 0 {
		return base[0]
	}
	if attempt >= len(base) {
		return base[len(base)-1]
	}
	return base[attempt]
}
