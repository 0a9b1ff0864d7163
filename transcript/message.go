package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/randalmurphal/chatcount/snapshot"
)

// Roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one user or assistant message.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// line is the union of the supported line shapes.
type line struct {
	Type    string          `json:"type"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Message *body           `json:"message,omitempty"`
}

type body struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ParseLine parses one transcript line. It returns false for lines that
// carry no user or assistant text.
func ParseLine(data []byte) (Message, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Message{}, false
	}

	var l line
	if err := json.Unmarshal(data, &l); err != nil {
		return Message{}, false
	}

	role, content := l.Role, l.Content
	if l.Message != nil {
		role, content = l.Message.Role, l.Message.Content
	}
	if role == "" {
		role = l.Type
	}
	if role != RoleUser && role != RoleAssistant {
		return Message{}, false
	}

	text, ok := contentText(content)
	if !ok {
		return Message{}, false
	}
	return Message{Role: role, Text: text}, true
}

// contentText returns the text of a string or content block array.
// Multiple text blocks are joined with a newline.
func contentText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", false
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

// maxLineSize caps a single transcript line. Longer lines are skipped.
var maxLineSize = 10 * 1024 * 1024

// Parse reads every message from r. A final line without a newline is
// read too; lines longer than 10MB are skipped.
func Parse(r io.Reader) ([]Message, error) {
	var messages []Message
	reader := bufio.NewReaderSize(r, 64*1024)

	for {
		l, err := readLine(reader)
		if err != nil {
			return nil, fmt.Errorf("read transcript: %w", err)
		}
		if l.n == 0 {
			return messages, nil
		}
		if l.over {
			continue
		}
		if msg, ok := ParseLine(l.data); ok {
			messages = append(messages, msg)
		}
	}
}

// rawLine is one line read by readLine.
type rawLine struct {
	data     []byte // nil when over
	n        int64  // bytes consumed, newline included
	complete bool   // ended with a newline
	over     bool   // longer than maxLineSize
}

// readLine reads up to and including the next newline, buffering at most
// maxLineSize bytes. At end of input it returns what is left with
// complete unset, and n == 0 when nothing is left.
func readLine(r *bufio.Reader) (rawLine, error) {
	var l rawLine
	for {
		chunk, err := r.ReadSlice('\n')
		l.n += int64(len(chunk))
		if !l.over {
			if len(l.data)+len(chunk) > maxLineSize {
				l.over = true
				l.data = nil
			} else {
				l.data = append(l.data, chunk...)
			}
		}

		switch {
		case err == nil:
			l.complete = true
			return l, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			return l, nil
		default:
			return l, err
		}
	}
}

// ReadFile reads every message from the transcript at path.
func ReadFile(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Snapshot groups messages by role in order.
func Snapshot(messages []Message) snapshot.Snapshot {
	var b snapshot.Builder
	for _, m := range messages {
		add(&b, m)
	}
	return b.Snapshot()
}

func add(b *snapshot.Builder, m Message) {
	switch m.Role {
	case RoleUser:
		b.AddUser(m.Text)
	case RoleAssistant:
		b.AddAssistant(m.Text)
	}
}

// Summary contains message counts of a transcript.
type Summary struct {
	Messages          int `json:"messages"`
	UserMessages      int `json:"user_messages"`
	AssistantMessages int `json:"assistant_messages"`
}

// Summarize counts messages by role.
func Summarize(messages []Message) Summary {
	var s Summary
	for _, m := range messages {
		s.Messages++
		switch m.Role {
		case RoleUser:
			s.UserMessages++
		case RoleAssistant:
			s.AssistantMessages++
		}
	}
	return s
}
