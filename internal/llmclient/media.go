package llmclient

import (
	"github.com/ThatHunky/gryag-sub007/chat"
	"github.com/ThatHunky/gryag-sub007/internal/logging"
)

// filterMedia drops attachment kinds the target model's capabilities
// don't support, logging a single aggregated count rather than one line
// per dropped part. It never fails the request: an unsupported
// attachment is silently omitted, not an error.
func filterMedia(msg chat.Message, caps chat.Capabilities) chat.Message {
	dropped := 0
	out := make([]chat.Content, 0, len(msg.Contents))
	for _, c := range msg.Contents {
		if c.Media != nil && !mediaSupported(c.Media.Kind, caps) {
			dropped++
			continue
		}
		out = append(out, c)
	}
	if dropped > 0 {
		logging.Logger().With("component", "llmclient").
			Warn("dropped unsupported media parts", "count", dropped)
	}
	msg.Contents = out
	return msg
}

func mediaSupported(kind chat.MediaKind, caps chat.Capabilities) bool {
	switch kind {
	case chat.MediaImage:
		return true // every provider we target accepts inline images
	case chat.MediaAudio:
		return caps.Audio
	case chat.MediaVideo:
		return caps.Video
	case chat.MediaDocument:
		return true
	default:
		return false
	}
}
