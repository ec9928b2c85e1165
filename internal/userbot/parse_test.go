package userbot

import (
	"reflect"
	"testing"
	"time"

	"github.com/gotd/td/tg"
)

func TestExtractHashtags(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"no tags here", nil},
		{"#go is fun", []string{"#go"}},
		{"#go #sql #go again #sql", []string{"#go", "#sql"}},
		{"mid#word and #real", []string{"#word", "#real"}},
		{"", nil},
	}
	for _, c := range cases {
		if got := ExtractHashtags(c.text); !reflect.DeepEqual(got, c.want) {
			t.Errorf("ExtractHashtags(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestNormalizeMessage(t *testing.T) {
	msg := &tg.Message{
		ID:       918,
		Date:     1735689600,
		Message:  "release notes #go #release",
		Views:    1200,
		Forwards: 34,
	}

	got := normalizeMessage(-100123, msg)
	if got.ChannelID != -100123 || got.MessageID != 918 {
		t.Errorf("ids = %d/%d", got.ChannelID, got.MessageID)
	}
	if want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC); !got.Date.Equal(want) {
		t.Errorf("date = %v, want %v", got.Date, want)
	}
	if got.HasMedia || got.MediaType != "" {
		t.Errorf("text message classified as media: %+v", got)
	}
	if got.Views != 1200 || got.Forwards != 34 {
		t.Errorf("counters = %d/%d", got.Views, got.Forwards)
	}
	if !reflect.DeepEqual(got.Hashtags, []string{"#go", "#release"}) {
		t.Errorf("hashtags = %v", got.Hashtags)
	}
}

func TestMediaKind(t *testing.T) {
	video := &tg.MessageMediaDocument{}
	video.Document = &tg.Document{Attributes: []tg.DocumentAttributeClass{
		&tg.DocumentAttributeFilename{FileName: "clip.mp4"},
		&tg.DocumentAttributeVideo{},
	}}
	audio := &tg.MessageMediaDocument{}
	audio.Document = &tg.Document{Attributes: []tg.DocumentAttributeClass{
		&tg.DocumentAttributeAudio{},
	}}
	plainDoc := &tg.MessageMediaDocument{}
	plainDoc.Document = &tg.Document{}

	cases := []struct {
		name  string
		media tg.MessageMediaClass
		has   bool
		kind  string
	}{
		{"none", nil, false, ""},
		{"empty", &tg.MessageMediaEmpty{}, false, ""},
		{"photo", &tg.MessageMediaPhoto{}, true, "photo"},
		{"video", video, true, "video"},
		{"audio", audio, true, "audio"},
		{"document", plainDoc, true, "document"},
		{"webpage", &tg.MessageMediaWebPage{}, true, "webpage"},
		{"poll", &tg.MessageMediaPoll{}, true, "poll"},
		{"geo", &tg.MessageMediaGeo{}, true, "geo"},
		{"other", &tg.MessageMediaContact{}, true, "other"},
	}
	for _, c := range cases {
		has, kind := mediaKind(c.media)
		if has != c.has || kind != c.kind {
			t.Errorf("%s: got (%v, %q), want (%v, %q)", c.name, has, kind, c.has, c.kind)
		}
	}
}
