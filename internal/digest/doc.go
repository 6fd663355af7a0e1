// Package digest recomputes the keyed author digests stored in the corpus
// and tests thread membership against them.
//
// A digest is SHA256(rawID + canonical(thread without user_id) + secret),
// rendered as 64 lowercase hex characters. The scheme belongs to the
// publishing pipeline and is reproduced here, never changed.
package digest
