// Package thread defines the corpus data model: messages, threads and the
// JSONL records that carry them.
//
// Records are produced by an external anonymization pipeline. Every message
// carries a user_id that is a keyed digest of its author, never a raw
// identifier. Decoding keeps numeric literals as json.Number so that a
// thread can be re-serialized exactly as the pipeline serialized it.
package thread
