package thread

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// UserIDField is the per-message field holding the stored author digest.
const UserIDField = "user_id"

// ErrMalformedRecord is wrapped by every record decoding failure.
var ErrMalformedRecord = errors.New("malformed record")

// ErrMissingUserID is wrapped by MissingUserIDError.
var ErrMissingUserID = errors.New("message has no user_id")

// Message is one utterance. Values are decoded with json.Number so numeric
// literals survive re-encoding.
type Message map[string]any

// Thread is an ordered conversation. Order is significant.
type Thread []Message

// Record is one decoded corpus line.
type Record struct {
	Thread Thread
}

// MissingUserIDError reports the position of a message lacking user_id.
type MissingUserIDError struct {
	Index int
}

func (e *MissingUserIDError) Error() string {
	return fmt.Sprintf("message %d: %v", e.Index, ErrMissingUserID)
}

func (e *MissingUserIDError) Unwrap() error {
	return ErrMissingUserID
}

// ParseRecord decodes one JSONL line into a Record.
//
// CRITICAL: anything the publishing pipeline could not have hashed the same
// way is rejected instead of being decoded lossily. That covers invalid
// UTF-8 and unpaired surrogate escapes, both of which Go's decoder would
// silently replace with U+FFFD. The bare NaN, Infinity and -Infinity
// literals that Python emits are accepted and decoded as float64.
func ParseRecord(line []byte) (Record, error) {
	if !utf8.Valid(line) {
		return Record{}, fmt.Errorf("%w: invalid UTF-8", ErrMalformedRecord)
	}
	if hasUnpairedSurrogate(line) {
		return Record{}, fmt.Errorf("%w: unpaired UTF-16 surrogate escape", ErrMalformedRecord)
	}

	v, err := decodeValue(line)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	top, ok := v.(map[string]any)
	if !ok {
		return Record{}, fmt.Errorf("%w: record is not a JSON object", ErrMalformedRecord)
	}

	// Exact key lookup; struct tags would match "Thread" case-insensitively.
	raw, ok := top["thread"]
	if !ok {
		return Record{}, fmt.Errorf("%w: missing \"thread\" field", ErrMalformedRecord)
	}
	if raw == nil {
		return Record{}, fmt.Errorf("%w: thread is null", ErrMalformedRecord)
	}
	items, ok := raw.([]any)
	if !ok {
		return Record{}, fmt.Errorf("%w: thread is not a JSON array", ErrMalformedRecord)
	}

	t := make(Thread, len(items))
	for i, item := range items {
		msg, ok := item.(map[string]any)
		if !ok {
			return Record{}, fmt.Errorf("%w: message %d: message is not a JSON object", ErrMalformedRecord, i)
		}
		t[i] = Message(msg)
	}
	return Record{Thread: t}, nil
}

// decodeValue decodes exactly one JSON value from line. Trailing data other
// than whitespace is an error.
func decodeValue(line []byte) (any, error) {
	src, nonFinite := substituteNonFinite(line)
	dec := json.NewDecoder(bytes.NewReader(src))
	dec.UseNumber()

	d := &valueDecoder{dec: dec, nonFinite: nonFinite}
	v, err := d.value()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty record")
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after record")
	}
	return v, nil
}

// StripUserIDs returns a copy of the thread with user_id removed from every
// message, plus the removed values in message order. The receiver is not
// modified; nested values are shared, not copied.
func (t Thread) StripUserIDs() (Thread, []any, error) {
	stripped := make(Thread, len(t))
	removed := make([]any, len(t))
	for i, msg := range t {
		uid, ok := msg[UserIDField]
		if !ok {
			return nil, nil, &MissingUserIDError{Index: i}
		}
		cp := make(Message, len(msg))
		for k, v := range msg {
			if k != UserIDField {
				cp[k] = v
			}
		}
		stripped[i] = cp
		removed[i] = uid
	}
	return stripped, removed, nil
}

// UserIDs returns the stored user_id of every message that has a string one.
func (t Thread) UserIDs() []string {
	ids := make([]string, 0, len(t))
	for _, msg := range t {
		if s, ok := msg[UserIDField].(string); ok {
			ids = append(ids, s)
		}
	}
	return ids
}

// Values converts the thread to plain []any / map[string]any values.
func (t Thread) Values() []any {
	out := make([]any, len(t))
	for i, msg := range t {
		out[i] = map[string]any(msg)
	}
	return out
}
