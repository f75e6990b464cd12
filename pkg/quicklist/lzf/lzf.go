// Package lzf is the opaque compressor pkg/quicklist consumes (spec §6
// "Listpack and LZF"). The original pairs a packed-array Node with an
// LZF-specific wrapper; we keep the same {compress, decompress} shape but
// implement it over github.com/pierrec/lz4/v4, a real, maintained
// LZ77-family codec from the teacher's own dependency graph, rather than
// hand-rolling LZF (spec §1 Non-goals: "designing the compression codec
// is an opaque dependency").
package lzf

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Compress fills dst with the compressed form of src and returns the
// number of bytes written. Per spec §4.2 Compression policy ("best
// effort... if LZF would not shrink the payload the Node stays RAW"), it
// returns (0, nil) when compression would not shrink the payload — the
// exact contract spec §6 requires of the opaque {compress} hook — rather
// than an error.
func Compress(src []byte, dst []byte) (int, error) {
	if len(dst) < lz4.CompressBlockBound(len(src)) {
		dst = make([]byte, lz4.CompressBlockBound(len(src)))
	}

	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil {
		return 0, err
	}
	if n == 0 || n >= len(src) {
		// not beneficial: caller keeps the Node RAW.
		return 0, nil
	}
	return n, nil
}

// CompressAppend is a convenience used by pkg/quicklist: it allocates a
// worst-case-sized buffer and returns the compressed prefix of it, or nil
// if compression wasn't beneficial.
func CompressAppend(src []byte) []byte {
	buf := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := Compress(src, buf)
	if err != nil || n == 0 {
		return nil
	}
	return buf[:n]
}

// Decompress expands src (previously produced by Compress) into a buffer
// of exactly uncompressedSize bytes.
func Decompress(src []byte, uncompressedSize int) ([]byte, error) {
	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("lzf: decompress: %w", err)
	}
	if n != uncompressedSize {
		return nil, fmt.Errorf("lzf: decompress: got %d bytes, want %d", n, uncompressedSize)
	}
	return dst, nil
}
