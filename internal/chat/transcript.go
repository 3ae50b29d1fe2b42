package chat

// Transcript is the ordered list of messages shown to the user. Order is
// append order; nothing is ever re-sorted.
type Transcript struct {
	msgs []Message
}

// Append adds msg at the end.
func (t *Transcript) Append(msg Message) {
	t.msgs = append(t.msgs, msg)
}

// Replace overwrites the entry whose ID is id with msg, keeping its
// position. It reports whether an entry was found.
func (t *Transcript) Replace(id string, msg Message) bool {
	for i := len(t.msgs) - 1; i >= 0; i-- {
		if t.msgs[i].ID == id {
			t.msgs[i] = msg
			return true
		}
	}
	return false
}

// Reset replaces the whole transcript with msgs.
func (t *Transcript) Reset(msgs ...Message) {
	t.msgs = append([]Message(nil), msgs...)
}

// Clear empties the transcript.
func (t *Transcript) Clear() {
	t.msgs = nil
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	return len(t.msgs)
}

// Messages returns a copy of the entries.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}
