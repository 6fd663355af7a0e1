// Package testutil builds deterministic fixtures: corpus records carrying
// correct stored digests, and a step clock for timestamped stores.
package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/threadscrub/internal/digest"
	"github.com/roach88/threadscrub/internal/thread"
)

// Message describes one fixture message. Author is the raw identifier whose
// digest becomes the stored user_id.
type Message struct {
	Author string         `yaml:"author"`
	Text   string         `yaml:"text"`
	Fields map[string]any `yaml:"fields,omitempty"`
}

// RecordBuilder renders corpus lines the way the publishing pipeline would
// have for a given secret.
type RecordBuilder struct {
	hasher *digest.Hasher
}

// NewRecordBuilder creates a builder for secret.
func NewRecordBuilder(secret string) (*RecordBuilder, error) {
	h, err := digest.NewHasher(secret)
	if err != nil {
		return nil, err
	}
	return &RecordBuilder{hasher: h}, nil
}

// Hasher returns the builder's hasher.
func (b *RecordBuilder) Hasher() *digest.Hasher {
	return b.hasher
}

// Line returns one compact JSON record without a line terminator.
//
// The thread is encoded and parsed back before hashing, so stored digests
// are computed from exactly the values a reader of the line will see.
func (b *RecordBuilder) Line(msgs ...Message) ([]byte, error) {
	draft := make([]map[string]any, len(msgs))
	for i, m := range msgs {
		obj := make(map[string]any, len(m.Fields)+2)
		for k, v := range m.Fields {
			obj[k] = v
		}
		obj["text"] = m.Text
		obj[thread.UserIDField] = ""
		draft[i] = obj
	}

	raw, err := json.Marshal(map[string]any{"thread": draft})
	if err != nil {
		return nil, fmt.Errorf("encode fixture: %w", err)
	}
	rec, err := thread.ParseRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	enc, err := b.hasher.Encode(rec.Thread)
	if err != nil {
		return nil, err
	}
	for i, msg := range rec.Thread {
		msg[thread.UserIDField] = b.hasher.Sum(msgs[i].Author, enc)
	}
	return json.Marshal(map[string]any{"thread": rec.Thread})
}

// MustLine is Line for test setup. It panics on error.
func (b *RecordBuilder) MustLine(msgs ...Message) string {
	line, err := b.Line(msgs...)
	if err != nil {
		panic(err)
	}
	return string(line)
}
