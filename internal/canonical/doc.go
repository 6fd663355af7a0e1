// Package canonical serializes decoded JSON values into the byte form the
// publishing pipeline hashed.
//
// The format is fixed by an external, immutable anonymization scheme: sorted
// keys, Python-style separators, ASCII-only string escapes and Python float
// repr. Any deviation makes every recomputed digest silently miss.
package canonical
