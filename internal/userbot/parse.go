package userbot

import (
	"regexp"
	"time"

	"github.com/gotd/td/tg"

	"telepost/internal/store"
)

var hashtagPattern = regexp.MustCompile(`#\w+`)

// ExtractHashtags returns the distinct hashtags in text, in order of
// first appearance.
func ExtractHashtags(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tag := range hashtagPattern.FindAllString(text, -1) {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func normalizeMessage(channelID int64, m *tg.Message) store.ParsedMessage {
	hasMedia, kind := mediaKind(m.Media)
	return store.ParsedMessage{
		ChannelID: channelID,
		MessageID: int64(m.ID),
		Date:      time.Unix(int64(m.Date), 0).UTC(),
		Text:      m.Message,
		HasMedia:  hasMedia,
		MediaType: kind,
		Views:     m.Views,
		Forwards:  m.Forwards,
		Hashtags:  ExtractHashtags(m.Message),
	}
}

func mediaKind(media tg.MessageMediaClass) (bool, string) {
	switch md := media.(type) {
	case nil, *tg.MessageMediaEmpty:
		return false, ""
	case *tg.MessageMediaPhoto:
		return true, "photo"
	case *tg.MessageMediaDocument:
		if doc, ok := md.Document.(*tg.Document); ok {
			for _, attr := range doc.Attributes {
				switch attr.(type) {
				case *tg.DocumentAttributeVideo:
					return true, "video"
				case *tg.DocumentAttributeAudio:
					return true, "audio"
				}
			}
		}
		return true, "document"
	case *tg.MessageMediaWebPage:
		return true, "webpage"
	case *tg.MessageMediaPoll:
		return true, "poll"
	case *tg.MessageMediaGeo, *tg.MessageMediaGeoLive, *tg.MessageMediaVenue:
		return true, "geo"
	default:
		return true, "other"
	}
}
