// Package zfserr defines the error kinds shared by every layer of the
// pool-inspection pipeline (vdev I/O, block-pointer resolution, DMU
// decode, ZAP decode, NV-list/label parsing).
//
// Callers distinguish a kind with errors.Is(err, zfserr.Unsupported)
// etc.; each kind is a plain sentinel, and constructors wrap it with
// fmt.Errorf("...: %w", ...) so the original sentinel survives
// unwrapping while the message carries the specifics.
package zfserr

import "errors"

var (
	// MalformedInput covers bad NV-list terminators, unexpected
	// block-type words, wrong magic numbers, oversize LZ4 headers,
	// and truncated reads.
	MalformedInput = errors.New("malformed input")

	// Unsupported covers encrypted block pointers, a fat-ZAP with
	// an external pointer table, unknown compression algorithms,
	// and DMU types beyond the remap window.
	Unsupported = errors.New("unsupported")

	// ChecksumMismatch is returned when the Fletcher-4 of a
	// physical payload disagrees with the checksum stored in its
	// block pointer.
	ChecksumMismatch = errors.New("checksum mismatch")

	// IOError wraps a backing-device read failure or short read.
	IOError = errors.New("I/O error")

	// NotFound covers an absent object id, ZAP key, or vdev id.
	NotFound = errors.New("not found")
)
