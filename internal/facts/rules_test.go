package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRulesLocation(t *testing.T) {
	w := ConversationWindow{ChatID: 1, Messages: []Message{
		{ID: 10, UserID: 42, Text: "i live in Kyiv these days"},
	}}
	got := extractRules(w)
	require.Len(t, got, 1)
	assert.Equal(t, CategoryLocation, got[0].Category)
	assert.Equal(t, "lives_in", got[0].Key)
	assert.Equal(t, int64(42), got[0].EntityID)
	assert.GreaterOrEqual(t, got[0].Confidence, 0.8)
}

func TestExtractRulesPreference(t *testing.T) {
	w := ConversationWindow{ChatID: 1, Messages: []Message{
		{ID: 11, UserID: 7, Text: "honestly I love hiking on weekends"},
	}}
	got := extractRules(w)
	require.Len(t, got, 1)
	assert.Equal(t, CategoryPreference, got[0].Category)
	assert.Equal(t, "likes", got[0].Key)
}

func TestExtractRulesUkrainianLocationScenario(t *testing.T) {
	// Literal scenario 1 input: chat 100, user 42, "@bot привіт, я з Києва".
	w := ConversationWindow{ChatID: 100, Messages: []Message{
		{ID: 1, UserID: 42, Text: "@bot привіт, я з Києва"},
	}}
	got := extractRules(w)
	require.Len(t, got, 1)
	assert.Equal(t, CategoryLocation, got[0].Category)
	assert.Equal(t, "from", got[0].Key)
	assert.Equal(t, "Києва", got[0].Value)
	assert.Equal(t, int64(42), got[0].EntityID)
	assert.GreaterOrEqual(t, got[0].Confidence, 0.8)
}

func TestExtractRulesRussianPreferenceScenario(t *testing.T) {
	// Literal scenario 2 input: chat 100, user 43, "люблю пиццу" (pro-drop,
	// no explicit "я" subject).
	w := ConversationWindow{ChatID: 100, Messages: []Message{
		{ID: 2, UserID: 43, Text: "люблю пиццу"},
	}}
	got := extractRules(w)
	require.Len(t, got, 1)
	assert.Equal(t, CategoryPreference, got[0].Category)
	assert.Equal(t, "likes", got[0].Key)
	assert.Equal(t, "пиццу", got[0].Value)
	assert.Equal(t, int64(43), got[0].EntityID)
}

func TestExtractRulesUkrainianLivesIn(t *testing.T) {
	w := ConversationWindow{ChatID: 1, Messages: []Message{
		{ID: 3, UserID: 5, Text: "я живу в Львові"},
	}}
	got := extractRules(w)
	require.Len(t, got, 1)
	assert.Equal(t, CategoryLocation, got[0].Category)
	assert.Equal(t, "lives_in", got[0].Key)
}

func TestExtractRulesNoMatch(t *testing.T) {
	w := ConversationWindow{ChatID: 1, Messages: []Message{
		{ID: 12, UserID: 7, Text: "what time is the meeting tomorrow?"},
	}}
	assert.Empty(t, extractRules(w))
}

func TestExtractRulesSkipsEmptyText(t *testing.T) {
	w := ConversationWindow{ChatID: 1, Messages: []Message{{ID: 13, UserID: 7, Text: "   "}}}
	assert.Empty(t, extractRules(w))
}
