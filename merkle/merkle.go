// Package merkle computes the content address of a payload. A payload is
// split into fixed-size chunks and the chunks form the leaves of a Merkle
// tree; the root of the tree is the payload's address on the storage network.
package merkle

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"gitlab.com/NebulousLabs/merkletree"
)

// ChunkSize is the number of bytes per leaf chunk. It is a parameter of the
// storage network and must not change, or addresses stop matching the
// on-chain commitments.
const ChunkSize = 256

// ErrEmptyPayload is returned when hashing a zero-length payload. An empty
// payload has no leaves and therefore no root.
var ErrEmptyPayload = errors.New("empty payload")

// A Root is the Merkle root that addresses a payload on the storage network.
type Root [32]byte

// String returns the root as 0x-prefixed lowercase hex.
func (r Root) String() string {
	return "0x" + hex.EncodeToString(r[:])
}

// MarshalText implements encoding.TextMarshaler.
func (r Root) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Root) UnmarshalText(b []byte) error {
	parsed, err := ParseRoot(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRoot parses a root from its hex form. The 0x prefix is optional.
func ParseRoot(s string) (Root, error) {
	s = strings.TrimPrefix(s, "0x")
	var r Root
	if len(s) != len(r)*2 {
		return Root{}, fmt.Errorf("invalid root length %d", len(s))
	}
	if _, err := hex.Decode(r[:], []byte(s)); err != nil {
		return Root{}, fmt.Errorf("failed to decode root: %w", err)
	}
	return r, nil
}

// SumReader returns the root of the data read from r. The same bytes always
// produce the same root regardless of how the reader chunks its reads.
func SumReader(r io.Reader) (Root, error) {
	sum, err := merkletree.ReaderRoot(r, crypto.NewKeccakState(), ChunkSize)
	if err != nil {
		return Root{}, fmt.Errorf("failed to hash payload: %w", err)
	} else if sum == nil {
		return Root{}, ErrEmptyPayload
	}
	var root Root
	copy(root[:], sum)
	return root, nil
}

// Sum returns the root of the payload.
func Sum(data []byte) (Root, error) {
	return SumReader(bytes.NewReader(data))
}
