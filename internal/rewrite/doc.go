// Package rewrite filters one corpus file against a removal request.
//
// The file is streamed record by record. Records whose thread belongs to a
// target identifier are dropped; every other line is copied byte for byte,
// terminator included. A file is replaced only through a staged rewrite, and
// only when at least one record was dropped.
//
// The staging file is created lazily at the first match: the prefix already
// scanned is copied from the original by byte offset. Files with nothing to
// remove are still read completely but never get a staging file.
package rewrite
