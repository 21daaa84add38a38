// Package stdio is the demo transport adapter: it maps a line-oriented
// stdin/stdout REPL onto internal/transport's wire-agnostic Message and
// Sender, in the teacher's examples/agent-cli REPL idiom
// (bufio.Reader loop, "exit"/"quit" to end). Real deployments
// substitute their own adapter against a platform's actual API; the
// core never depends on this package.
package stdio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ThatHunky/gryag-sub007/internal/transport"
)

// ChatID is the single fixed chat every line of stdin belongs to; a
// one-process demo has no concept of multiple rooms.
const ChatID int64 = 1

// UserID is the single fixed user stdin lines are attributed to.
const UserID int64 = 1

// Handler is whatever drives a normalized Message, satisfied by
// *orchestrator.Orchestrator.
type Handler interface {
	HandleMessage(ctx context.Context, msg transport.Message) error
}

// Sender implements transport.Sender by writing to an io.Writer.
type Sender struct {
	out io.Writer
}

// NewSender wraps out as a transport.Sender.
func NewSender(out io.Writer) *Sender {
	return &Sender{out: out}
}

func (s *Sender) SendText(_ context.Context, _ int64, text string, _ *int64) error {
	_, err := fmt.Fprintf(s.out, "bot: %s\n", text)
	return err
}

func (s *Sender) SendMedia(_ context.Context, _ int64, kind string, _ []byte, fileID string, caption string) error {
	_, err := fmt.Fprintf(s.out, "bot: [%s %s] %s\n", kind, fileID, caption)
	return err
}

func (s *Sender) AnswerCallback(_ context.Context, _ string, text string, _ bool) error {
	_, err := fmt.Fprintf(s.out, "bot (callback): %s\n", text)
	return err
}

func (s *Sender) SetCommands(_ context.Context, _ []string) error { return nil }

var _ transport.Sender = (*Sender)(nil)

// Run reads lines from in until EOF or a line of "exit"/"quit",
// building a normalized Message per line and handing it to handler.
// Every line is treated as a direct message (IsDirect: true) so the
// orchestrator always considers it addressed without needing a trigger
// pattern configured.
func Run(ctx context.Context, handler Handler, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	var messageID int64

	fmt.Fprintln(out, "gryag demo console. Type a message and press Enter; 'exit' to quit.")
	for {
		fmt.Fprint(out, "> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		trimmed := strings.TrimSpace(line)
		if trimmed == "exit" || trimmed == "quit" {
			return nil
		}
		if trimmed == "" {
			continue
		}

		messageID++
		userID := UserID
		msg := transport.Message{
			ChatID:    ChatID,
			MessageID: messageID,
			UserID:    &userID,
			IsDirect:  true,
			Text:      line,
		}
		if err := handler.HandleMessage(ctx, msg); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}
