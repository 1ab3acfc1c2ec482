package id

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"sync"
	"time"
)

// ErrInvalid is returned by Parse for malformed input.
var ErrInvalid = errors.New("id: invalid")

// ID is a 128-bit sortable identifier.
type ID [16]byte

// String returns the 32-digit hex form.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

// Time returns the generation time at millisecond precision.
func (i ID) Time() time.Time {
	return time.UnixMilli(int64(binary.BigEndian.Uint64(i[0:8])))
}

// Sequence returns the per-millisecond counter.
func (i ID) Sequence() uint64 { return binary.BigEndian.Uint64(i[8:16]) }

// Compare returns -1, 0, 1 based on byte order.
func (i ID) Compare(other ID) int { return bytes.Compare(i[:], other[:]) }

// Parse decodes the String form.
func Parse(s string) (ID, error) {
	var i ID
	if hex.DecodedLen(len(s)) != len(i) {
		return ID{}, ErrInvalid
	}
	if _, err := hex.Decode(i[:], []byte(s)); err != nil {
		return ID{}, ErrInvalid
	}
	return i, nil
}

// Generator produces monotonically increasing IDs per process.
type Generator struct {
	mu       sync.Mutex
	lastMs   int64
	sequence uint64
}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator { return &Generator{} }

// NowMs returns current time in milliseconds since Unix epoch.
var NowMs = func() int64 { return time.Now().UnixMilli() }

// Next returns a new ID. If the clock goes backwards it stays on the last
// millisecond; if the sequence would overflow it waits for the next one.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := NowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}

	switch {
	case ms != g.lastMs:
		g.sequence = 0
	case g.sequence == math.MaxUint64:
		for ms <= g.lastMs {
			time.Sleep(time.Millisecond / 8)
			ms = NowMs()
		}
		g.sequence = 0
	default:
		g.sequence++
	}

	g.lastMs = ms
	var i ID
	binary.BigEndian.PutUint64(i[0:8], uint64(ms))
	binary.BigEndian.PutUint64(i[8:16], g.sequence)
	return i
}

// Member returns prefix followed by a new ID.
func (g *Generator) Member(prefix string) string { return prefix + g.Next().String() }

var std = NewGenerator()

// NewMember generates a member from the process-wide generator.
func NewMember(prefix string) string { return std.Member(prefix) }
