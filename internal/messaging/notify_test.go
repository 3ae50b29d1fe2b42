package messaging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haimi-h/shopify-clone-sub000/internal/models"
)

func TestTemplateMessage(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"alert {{.Text}}", `alert "$HELPLINE_TEXT"`},
		{"alert '{{.Sender}}' {{.ID}}", `alert "$HELPLINE_SENDER" "$HELPLINE_MESSAGE_ID"`},
		{"echo 'from {{.Conversation}}'", `echo 'from "$HELPLINE_CONVERSATION"'`},
		{"no placeholders", "no placeholders"},
	}
	for _, tt := range tests {
		if got := templateMessage(tt.command); got != tt.want {
			t.Errorf("templateMessage(%q) = %q, want %q", tt.command, got, tt.want)
		}
	}
}

func TestShouldNotify(t *testing.T) {
	tests := []struct {
		name string
		msg  models.ChatMessage
		want bool
	}{
		{"customer message", models.ChatMessage{ConversationID: "42", SenderID: "42"}, true},
		{"agent reply", models.ChatMessage{ConversationID: "42", SenderID: "agent-1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldNotify(&tt.msg); got != tt.want {
				t.Errorf("ShouldNotify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNotify_RunsCommand(t *testing.T) {
	out := filepath.Join(t.TempDir(), "notified")
	msg := &models.ChatMessage{ID: 3, ConversationID: "42", SenderID: "42", Text: "hello"}

	Notify(context.Background(), msg, NotifyConfig{Command: "printf '%s' '{{.Text}}' > " + out}, nil)

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(data)) != "hello" {
		t.Errorf("notified = %q, want %q", data, "hello")
	}
}

func TestNotify_EmptyCommandIsNoop(t *testing.T) {
	Notify(context.Background(), &models.ChatMessage{}, NotifyConfig{}, nil)
}

func TestNotify_HostileValuesAreNotExecuted(t *testing.T) {
	dir := t.TempDir()
	pwned := filepath.Join(dir, "pwned")
	out := filepath.Join(dir, "notified")
	hostileID := "x'; touch " + pwned + "; echo '"
	msg := &models.ChatMessage{
		ID:             4,
		ConversationID: hostileID,
		SenderID:       hostileID,
		Text:           "$(touch " + pwned + ") `touch " + pwned + "` it's \"quoted\"",
	}

	commands := []string{
		"echo 'from {{.Sender}}' >/dev/null",
		"echo \"{{.Conversation}}\" >/dev/null",
		"printf '%s|%s' {{.Sender}} '{{.Text}}' > " + out,
	}
	for _, command := range commands {
		Notify(context.Background(), msg, NotifyConfig{Command: command}, nil)
	}

	if _, err := os.Stat(pwned); err == nil {
		t.Fatalf("message values were executed by the shell: %s exists", pwned)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if want := hostileID + "|" + msg.Text; string(data) != want {
		t.Errorf("notified = %q, want %q", data, want)
	}
}
