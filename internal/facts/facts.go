// Package facts extracts durable assertions about users and chats from
// conversation windows, via a high-precision rule-based pass and an
// optional, guarded LLM pass, then fuses them into the durable fact
// store's confidence-weighted history.
package facts

import (
	"database/sql"
	"time"

	"github.com/ThatHunky/gryag-sub007/internal/store"
)

// Allowed categories; anything else returned by the LLM pass is dropped.
const (
	CategoryLocation     = "location"
	CategoryProfession   = "profession"
	CategoryPreference   = "preference"
	CategoryRelationship = "relationship"
	CategoryPossession   = "possession"
	CategoryOther        = "other"
)

var allowedCategories = map[string]bool{
	CategoryLocation:     true,
	CategoryProfession:   true,
	CategoryPreference:   true,
	CategoryRelationship: true,
	CategoryPossession:   true,
	CategoryOther:        true,
}

// Message is the minimal shape the extractor needs from a stored
// message; callers adapt from store.Message.
type Message struct {
	ID     int64
	UserID int64
	Text   string
}

// ConversationWindow is the input to extraction: an ordered set of
// messages from one chat, with its distinct participants.
type ConversationWindow struct {
	ChatID       int64
	Messages     []Message
	Participants []int64
}

// Candidate is a fact observation prior to persistence; EntityID is
// resolved by the caller (the speaking user, or the chat itself for
// chat-scoped facts).
type Candidate struct {
	EntityType   store.EntityType
	EntityID     int64
	ChatContext  sql.NullInt64
	Category     string
	Key          string
	Value        string
	Confidence   float64
	EvidenceText string
	SourceMsgID  sql.NullInt64
}

// ToStoreFact converts c into a store.Fact ready for FactRepo.Upsert.
func (c Candidate) ToStoreFact(now time.Time) store.Fact {
	return store.Fact{
		EntityType:     c.EntityType,
		EntityID:       c.EntityID,
		ChatContext:    c.ChatContext,
		Category:       c.Category,
		Key:            c.Key,
		Value:          c.Value,
		Confidence:     c.Confidence,
		EvidenceCount:  1,
		EvidenceText:   c.EvidenceText,
		SourceMsgID:    c.SourceMsgID,
		FirstObserved:  now,
		LastReinforced: now,
		DecayRate:      0.01,
	}
}
