package messaging

import (
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/haimi-h/shopify-clone-sub000/internal/logging"
	"github.com/haimi-h/shopify-clone-sub000/internal/models"
)

// NotifyConfig controls how support staff are alerted to customer messages.
type NotifyConfig struct {
	// Command is run with sh -c. The placeholders {{.Conversation}},
	// {{.Sender}}, {{.Text}} and {{.ID}} expand to quoted references to the
	// HELPLINE_* variables set for the command, never to the raw values,
	// e.g. "notify-send Support {{.Text}}".
	Command string
}

var placeholders = []struct {
	name string
	env  string
}{
	{"{{.Conversation}}", "HELPLINE_CONVERSATION"},
	{"{{.Sender}}", "HELPLINE_SENDER"},
	{"{{.Text}}", "HELPLINE_TEXT"},
	{"{{.ID}}", "HELPLINE_MESSAGE_ID"},
}

// Notify runs the configured command for a message. Best-effort: errors are
// logged, not returned.
func Notify(ctx context.Context, msg *models.ChatMessage, cfg NotifyConfig, log *logging.Logger) {
	if cfg.Command == "" {
		return
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", templateMessage(cfg.Command))
	cmd.Env = append(os.Environ(), notifyEnv(msg)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		logging.OrNop(log).Warn("notify command failed", "error", err, "output", strings.TrimSpace(string(out)))
	}
}

// ShouldNotify reports whether msg was written by the customer rather than
// by an agent replying in their conversation.
func ShouldNotify(msg *models.ChatMessage) bool {
	return msg.SenderID == msg.ConversationID
}

// templateMessage rewrites placeholders into "$HELPLINE_*" references. A
// placeholder already wrapped in single quotes loses them, since the shell
// would not expand a variable there.
func templateMessage(command string) string {
	pairs := make([]string, 0, len(placeholders)*4)
	for _, p := range placeholders {
		ref := `"$` + p.env + `"`
		pairs = append(pairs, "'"+p.name+"'", ref, p.name, ref)
	}
	return strings.NewReplacer(pairs...).Replace(command)
}

// notifyEnv carries the message values to the command. NUL bytes cannot be
// passed in the environment and are dropped.
func notifyEnv(msg *models.ChatMessage) []string {
	values := map[string]string{
		"HELPLINE_CONVERSATION": msg.ConversationID,
		"HELPLINE_SENDER":       msg.SenderID,
		"HELPLINE_TEXT":         msg.Text,
		"HELPLINE_MESSAGE_ID":   msg.PublicID(),
	}
	env := make([]string, 0, len(placeholders))
	for _, p := range placeholders {
		env = append(env, p.env+"="+strings.ReplaceAll(values[p.env], "\x00", ""))
	}
	return env
}
