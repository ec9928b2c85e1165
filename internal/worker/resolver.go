package worker

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"telepost/internal/domain"
	"telepost/internal/observability"
	"telepost/internal/providers/telegram"
	"telepost/internal/store"
)

var numericChatID = regexp.MustCompile(`^-?\d+$`)

// resolveChannel turns the bot's configured destination into a numeric
// chat id. A previously resolved id wins outright; a numeric specifier is
// used as-is; a handle goes through getChat, and the resolved id is
// written back onto the bot row so the next dispatch skips the lookup.
func (p *Processor) resolveChannel(ctx context.Context, token string, bot store.Bot) (int64, error) {
	if bot.ChannelID != 0 {
		return bot.ChannelID, nil
	}

	spec := strings.TrimSpace(bot.ChannelUsername)
	if spec == "" {
		return 0, domain.ErrChannelNotConfigured
	}

	if numericChatID.MatchString(spec) {
		id, err := strconv.ParseInt(spec, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: bad numeric id %q", domain.ErrChannelNotConfigured, spec)
		}
		return id, nil
	}

	handle := NormalizeHandle(spec)
	chat, _, err := p.Sender.GetChat(ctx, token, handle)
	if err != nil {
		if telegram.NotFound(err) {
			observability.ChannelResolutions.WithLabelValues("not_found").Inc()
			return 0, fmt.Errorf("%w: %s", domain.ErrChannelUnreachable, handle)
		}
		observability.ChannelResolutions.WithLabelValues("error").Inc()
		return 0, err
	}

	// Self-heal: persist the numeric id so it is authoritative from now on.
	if err := p.Store.SetBotChannel(ctx, bot.ID, chat.ID, chat.Username, chat.Title, time.Now()); err != nil {
		slog.Warn("resolved channel id not persisted", "bot_id", bot.ID, "chat_id", chat.ID, "err", err)
	}
	observability.ChannelResolutions.WithLabelValues("ok").Inc()
	return chat.ID, nil
}

// NormalizeHandle ensures exactly one leading @ and strips t.me prefixes.
func NormalizeHandle(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(h, "https://t.me/")
	h = strings.TrimPrefix(h, "t.me/")
	for strings.HasPrefix(h, "@") {
		h = strings.TrimPrefix(h, "@")
	}
	return "@" + h
}
