package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/roach88/threadscrub/internal/canonical"
	"github.com/roach88/threadscrub/internal/thread"
)

// ErrEmptySecret is returned when no hashing secret is configured. Without
// the secret every recomputed digest misses and a removal would report
// success while removing nothing.
var ErrEmptySecret = errors.New("hash secret is empty")

// Hasher recomputes digests under one secret.
type Hasher struct {
	secret []byte
}

// NewHasher returns a Hasher for secret.
func NewHasher(secret string) (*Hasher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Hasher{secret: []byte(secret)}, nil
}

// Encode returns the canonical encoding of t with every user_id removed.
// t itself is left untouched.
func (h *Hasher) Encode(t thread.Thread) ([]byte, error) {
	stripped, _, err := t.StripUserIDs()
	if err != nil {
		return nil, err
	}
	enc, err := canonical.Marshal(stripped.Values())
	if err != nil {
		return nil, fmt.Errorf("encode thread: %w", err)
	}
	return enc, nil
}

// Sum computes the digest for rawID over an already encoded thread.
// Format: hex(SHA256(rawID + encoding + secret)), no separators.
func (h *Hasher) Sum(rawID string, encoding []byte) string {
	s := sha256.New()
	s.Write([]byte(rawID))
	s.Write(encoding)
	s.Write(h.secret)
	return hex.EncodeToString(s.Sum(nil))
}

// Recompute returns the digest the publishing pipeline would have stored for
// rawID on thread t.
func (h *Hasher) Recompute(rawID string, t thread.Thread) (string, error) {
	enc, err := h.Encode(t)
	if err != nil {
		return "", err
	}
	return h.Sum(rawID, enc), nil
}

// Belongs reports whether any message of t carries the digest of rawID.
// A match on any participant's message claims the whole thread.
func (h *Hasher) Belongs(rawID string, t thread.Thread) (bool, error) {
	i, err := h.Match([]string{rawID}, t)
	return i == 0, err
}

// Match returns the index of the first target whose digest appears on any
// message of t, or -1. The thread is encoded once for all targets.
func (h *Hasher) Match(targets []string, t thread.Thread) (int, error) {
	enc, err := h.Encode(t)
	if err != nil {
		return -1, err
	}
	stored := t.UserIDs()
	for i, target := range targets {
		want := h.Sum(target, enc)
		for _, got := range stored {
			if got == want {
				return i, nil
			}
		}
	}
	return -1, nil
}

// MustRecompute is like Recompute but panics on error.
// Use only in tests or when inputs are known to be valid.
func (h *Hasher) MustRecompute(rawID string, t thread.Thread) string {
	d, err := h.Recompute(rawID, t)
	if err != nil {
		panic(err)
	}
	return d
}
