// Package transport defines the wire-agnostic boundary between the core
// and a messaging platform: the normalized inbound Message the turn
// orchestrator consumes, and the outbound Sender it calls. No concrete
// platform client lives here; a thin platform-specific adapter maps the
// transport's own JSON into Message and implements Sender against the
// platform's API, per spec.md §1 and §6.
package transport

import "context"

// Media is a binary attachment carried by an inbound message, before it
// has been fetched or persisted.
type Media struct {
	FileID   string
	MIMEType string
	Size     int64
	Duration int
	Width    int
	Height   int
}

// Message is the normalized shape every platform adapter produces for
// an inbound event, per spec.md §6.
type Message struct {
	ChatID    int64
	ThreadID  *int64
	MessageID int64
	UserID    *int64
	UserIsBot bool

	// ReplyTo is the message_id this message replies to, if any.
	ReplyTo *int64
	// ReplyToIsBot is true when ReplyTo names a message the bot itself
	// sent; the adapter resolves this since only it knows message
	// authorship on the wire.
	ReplyToIsBot bool
	// IsDirect is true when the chat is a one-on-one conversation with
	// the bot rather than a group.
	IsDirect bool

	Text     string
	Caption  string
	Entities []string

	Photo    []Media
	Document *Media
	Audio    *Media
	Video    *Media
}

// Sender is every outbound call the core makes back to the platform.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, replyTo *int64) error
	SendMedia(ctx context.Context, chatID int64, kind string, data []byte, fileID string, caption string) error
	AnswerCallback(ctx context.Context, id string, text string, alert bool) error
	SetCommands(ctx context.Context, commands []string) error
}
