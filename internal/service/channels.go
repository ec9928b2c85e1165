package service

import (
	"context"
	"fmt"

	"telepost/internal/domain"
	"telepost/internal/providers/telegram"
	"telepost/internal/worker"
)

type BotAPI interface {
	GetChat(ctx context.Context, token, chat string) (telegram.Chat, int, error)
	GetChatMemberCount(ctx context.Context, token string, chatID int64) (int, error)
	GetChatMemberStatus(ctx context.Context, token string, chatID, userID int64) (string, error)
	GetMe(ctx context.Context, token string) (int64, error)
}

type ChannelService struct {
	Store        Store
	API          BotAPI
	DefaultToken string
}

// Check resolves a channel handle with the bot's credential and reports
// member count and whether the bot holds an admin role there. Used by the
// dashboard before it lets an operator pick a publish destination.
func (s *ChannelService) Check(ctx context.Context, botID, handle string) (domain.ChannelCheck, error) {
	bot, found, err := s.Store.GetBot(ctx, botID)
	if err != nil {
		return domain.ChannelCheck{}, err
	}
	token := s.DefaultToken
	if found && bot.Credential != "" {
		token = bot.Credential
	}
	if token == "" {
		return domain.ChannelCheck{}, domain.ErrNoCredential
	}

	chat, _, err := s.API.GetChat(ctx, token, worker.NormalizeHandle(handle))
	if err != nil {
		if telegram.NotFound(err) {
			return domain.ChannelCheck{}, fmt.Errorf("%w: %s", domain.ErrChannelUnreachable, handle)
		}
		return domain.ChannelCheck{}, err
	}

	out := domain.ChannelCheck{ChannelID: chat.ID, Title: chat.Title, Username: chat.Username}

	if n, err := s.API.GetChatMemberCount(ctx, token, chat.ID); err == nil {
		out.MemberCount = n
	}
	if botUserID, err := s.API.GetMe(ctx, token); err == nil {
		status, err := s.API.GetChatMemberStatus(ctx, token, chat.ID, botUserID)
		if err == nil {
			out.BotIsAdmin = status == "administrator" || status == "creator"
		} else if !telegram.NotFound(err) {
			return out, err
		}
	}
	return out, nil
}
