package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ThatHunky/gryag-sub007/chat"
)

func TestFilterMediaDropsUnsupportedKinds(t *testing.T) {
	msg := chat.UserMessage("look at this")
	msg.AddMedia(chat.MediaPart{Kind: chat.MediaImage, MIMEType: "image/png"})
	msg.AddMedia(chat.MediaPart{Kind: chat.MediaVideo, MIMEType: "video/mp4"})
	msg.AddMedia(chat.MediaPart{Kind: chat.MediaAudio, MIMEType: "audio/ogg"})

	caps := chat.Capabilities{Audio: false, Video: false, Tools: true}
	filtered := filterMedia(msg, caps)

	media := filtered.GetMedia()
	assert.Len(t, media, 1)
	assert.Equal(t, chat.MediaImage, media[0].Kind)
	assert.True(t, filtered.HasText())
}

func TestFilterMediaKeepsEverythingWhenSupported(t *testing.T) {
	msg := chat.UserMessage("hi")
	msg.AddMedia(chat.MediaPart{Kind: chat.MediaAudio, MIMEType: "audio/ogg"})
	msg.AddMedia(chat.MediaPart{Kind: chat.MediaVideo, MIMEType: "video/mp4"})

	caps := chat.Capabilities{Audio: true, Video: true}
	filtered := filterMedia(msg, caps)

	assert.Len(t, filtered.GetMedia(), 2)
}
