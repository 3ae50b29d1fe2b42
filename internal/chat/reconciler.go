package chat

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// IDSource generates ids that are unique within a chat session.
type IDSource interface {
	NewID() string
}

// UUIDs is the default IDSource.
type UUIDs struct{}

func (UUIDs) NewID() string { return uuid.NewString() }

// SequenceIDs yields "1", "2", ... and is meant for deterministic output.
type SequenceIDs struct {
	n atomic.Uint64
}

func (s *SequenceIDs) NewID() string {
	return strconv.FormatUint(s.n.Add(1), 10)
}

// Reconciler merges optimistic local sends with inbound messages into one
// Transcript. It is not safe for concurrent use; the Controller owns it
// from a single goroutine.
type Reconciler struct {
	transcript Transcript
	pending    map[string]struct{}
	welcomed   bool
	ids        IDSource
	now        func() time.Time
}

// NewReconciler creates an empty Reconciler. Nil arguments fall back to
// UUIDs and time.Now.
func NewReconciler(ids IDSource, now func() time.Time) *Reconciler {
	if ids == nil {
		ids = UUIDs{}
	}
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		pending: make(map[string]struct{}),
		ids:     ids,
		now:     now,
	}
}

// Send records a local message before it reaches the transport. It is a
// no-op returning false when the trimmed text is empty, the local user is
// unknown, or the connection is not open. On success the returned message
// carries the optimistic id to emit.
func (r *Reconciler) Send(text, localUserID string, connected bool) (Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" || localUserID == "" || !connected {
		return Message{}, false
	}
	msg := Message{
		ID:        OptimisticPrefix + r.ids.NewID(),
		Text:      text,
		Sender:    SenderLocal,
		SenderID:  localUserID,
		Timestamp: r.now(),
	}
	r.pending[msg.ID] = struct{}{}
	r.transcript.Append(msg)
	return msg, true
}

// Receive applies an inbound message. If it confirms a pending optimistic
// entry, that entry is replaced in place and Receive returns true;
// otherwise the message is appended.
func (r *Reconciler) Receive(msg Message) bool {
	for _, key := range []string{msg.ClientID, msg.ID} {
		if key == "" {
			continue
		}
		if _, ok := r.pending[key]; !ok {
			continue
		}
		delete(r.pending, key)
		r.transcript.Replace(key, msg)
		return true
	}
	r.transcript.Append(msg)
	return false
}

// Welcome resets the transcript to a single greeting from the counterparty.
// Only the first welcome of a session is applied; later ones return false.
// Entries received before the welcome, pending ones included, are dropped.
func (r *Reconciler) Welcome(text string) bool {
	if r.welcomed {
		return false
	}
	r.welcomed = true
	for id := range r.pending {
		delete(r.pending, id)
	}
	r.transcript.Reset(Message{
		ID:        "welcome-" + r.ids.NewID(),
		Text:      text,
		Sender:    SenderRemote,
		Timestamp: r.now(),
	})
	return true
}

// Reset drops all state, as when the chat surface closes.
func (r *Reconciler) Reset() {
	r.transcript.Clear()
	r.pending = make(map[string]struct{})
	r.welcomed = false
}

// Messages returns a copy of the transcript.
func (r *Reconciler) Messages() []Message { return r.transcript.Messages() }

// Len returns the transcript length.
func (r *Reconciler) Len() int { return r.transcript.Len() }

// Pending returns the number of unconfirmed local sends.
func (r *Reconciler) Pending() int { return len(r.pending) }

// PendingIDs returns a copy of the unconfirmed ids.
func (r *Reconciler) PendingIDs() map[string]bool {
	out := make(map[string]bool, len(r.pending))
	for id := range r.pending {
		out[id] = true
	}
	return out
}
