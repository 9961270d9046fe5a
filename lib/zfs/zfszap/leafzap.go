package zfszap

import (
	"encoding/binary"
	"fmt"

	"github.com/lukeshu-ng/zfs-progs-ng/lib/zfs/zfserr"
)

// leafZapHeaderLen is the fixed zap_leaf_header_t prefix (spec.md
// §4.7 "LeafZap"): block_type(8) + pad(8) + prefix(8) + magic(4) +
// nfree(2) + nentries(2) + prefix_len(2) + freelist(2) + flags(1) +
// padding out to 48 bytes, where the chunk-index table begins.
const leafZapHeaderLen = 48

// chunkLen is the fixed stride of a leaf chunk (spec.md §4.7 "chunks
// begin ... in 24-byte strides").
const chunkLen = 24

// leafEntryFree marks an empty chunk-index-table slot.
const leafEntryFree = 0xFFFF

// Chunk type tags (spec.md §4.7).
const (
	tagEntry = 252 // Zle: zap_leaf_entry_t
	tagArray = 251 // Zla: zap_leaf_array_t
)

// decodeLeafZap implements spec.md §4.7 "LeafZap": a chunk-index table
// of u16 slots at offset 48, each either 0xFFFF (empty) or the index
// of the head chunk of one entry's hash chain; entry chunks (tag 252)
// point at a name-array chain and a value-array chain (tag 251),
// reassembled here into name/value pairs.
func decodeLeafZap(blk []byte) ([]Entry, error) {
	if len(blk) < leafZapHeaderLen {
		return nil, fmt.Errorf("zfszap: %w: leaf-ZAP block shorter than its 48-byte header", zfserr.MalformedInput)
	}

	maxChunks := len(blk) / 32
	tableEnd := leafZapHeaderLen + maxChunks*2
	if tableEnd > len(blk) {
		return nil, fmt.Errorf("zfszap: %w: leaf-ZAP chunk-index table overruns block", zfserr.MalformedInput)
	}
	chunksOff := maxChunks*2 + leafZapHeaderLen

	chunkAt := func(idx uint16) ([]byte, error) {
		off := chunksOff + int(idx)*chunkLen
		if off+chunkLen > len(blk) {
			return nil, fmt.Errorf("zfszap: %w: leaf-ZAP chunk index %d out of range", zfserr.MalformedInput, idx)
		}
		return blk[off : off+chunkLen], nil
	}

	var out []Entry
	for slot := 0; slot < maxChunks; slot++ {
		// Native/little-endian, matching the original's chunk-index
		// table (struct.unpack_from("H", ...),
		// _examples/original_source/zdb_zap.py:65).
		head := binary.LittleEndian.Uint16(blk[leafZapHeaderLen+slot*2 : leafZapHeaderLen+slot*2+2])
		if head == leafEntryFree {
			continue
		}
		// head chains through le_next to every other entry sharing
		// this hash bucket (spec.md §4.7 "le_next").
		idx := head
		for idx != leafEntryFree {
			entry, next, err := readLeafEntry(chunkAt, idx)
			if err != nil {
				return nil, err
			}
			if entry != nil {
				out = append(out, *entry)
			}
			idx = next
		}
	}
	return out, nil
}

// readLeafEntry decodes the entry chunk at idx and returns its
// successor in the hash chain (le_next), or leafEntryFree if idx did
// not name an entry chunk at all.
func readLeafEntry(chunkAt func(uint16) ([]byte, error), idx uint16) (*Entry, uint16, error) {
	chunk, err := chunkAt(idx)
	if err != nil {
		return nil, leafEntryFree, err
	}
	tag := chunk[0]
	if tag != tagEntry {
		return nil, leafEntryFree, nil
	}

	// Native/little-endian, matching the original's zap_leaf_entry_t
	// unpack ("2B5HIQ", _examples/original_source/zdb_zap.py:79).
	intLen := chunk[1]
	next := binary.LittleEndian.Uint16(chunk[2:4])
	nameChunk := binary.LittleEndian.Uint16(chunk[4:6])
	nameNumInts := binary.LittleEndian.Uint16(chunk[6:8])
	valueChunk := binary.LittleEndian.Uint16(chunk[8:10])
	valueNumInts := binary.LittleEndian.Uint16(chunk[10:12])

	nameBytes, err := readLeafArrayChain(chunkAt, nameChunk, int(nameNumInts))
	if err != nil {
		return nil, leafEntryFree, fmt.Errorf("zfszap: read entry name: %w", err)
	}
	name := cstring(nameBytes)

	valueBytes, err := readLeafArrayChain(chunkAt, valueChunk, int(valueNumInts)*int(intLen))
	if err != nil {
		return nil, leafEntryFree, fmt.Errorf("zfszap: read entry value: %w", err)
	}
	value := unpackValue(valueBytes, int(intLen), int(valueNumInts))

	return &Entry{Name: name, Value: value}, next, nil
}

// readLeafArrayChain walks a chain of tag-251 array chunks, each
// holding 21 bytes of payload and a la_next link, until wantLen bytes
// have been collected or the chain terminates at 0xFFFF.
func readLeafArrayChain(chunkAt func(uint16) ([]byte, error), head uint16, wantLen int) ([]byte, error) {
	var out []byte
	idx := head
	for idx != leafEntryFree && len(out) < wantLen {
		chunk, err := chunkAt(idx)
		if err != nil {
			return nil, err
		}
		if chunk[0] != tagArray {
			return nil, fmt.Errorf("zfszap: %w: expected array chunk, got tag %d", zfserr.MalformedInput, chunk[0])
		}
		payload := chunk[1:22]
		remaining := wantLen - len(out)
		if remaining < len(payload) {
			payload = payload[:remaining]
		}
		out = append(out, payload...)
		// la_next, native/little-endian like the rest of zap_leaf_array_t
		// (struct.unpack_from("B21sH", ...), zdb_zap.py:84).
		idx = binary.LittleEndian.Uint16(chunk[22:24])
	}
	return out, nil
}

// unpackValue decodes numInts big-endian words of width intLen
// (spec.md §4.7 "value unpacked big-endian as le_value_numints words
// of width le_value_intlen"). A single word is returned as a scalar
// uint64; more than one is returned as []uint64.
func unpackValue(buf []byte, intLen, numInts int) any {
	words := make([]uint64, 0, numInts)
	for i := 0; i < numInts; i++ {
		off := i * intLen
		if off+intLen > len(buf) {
			break
		}
		var w uint64
		for _, b := range buf[off : off+intLen] {
			w = w<<8 | uint64(b)
		}
		words = append(words, w)
	}
	if len(words) == 1 {
		return words[0]
	}
	return words
}
