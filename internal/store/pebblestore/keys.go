package pebblestore

import (
	"encoding/binary"
	"errors"
	"math"
)

// Key layout. k is the set name, length-prefixed so that no set's keyspace is
// a prefix of another's.
//
//	z <len:u16> <k> m <member>             -> score (u64 float bits)
//	z <len:u16> <k> s <score:sortable> <member> -> empty
//	v <len:u16> <k>                        -> version u64 | card u64
const (
	setPrefix  = 'z'
	metaPrefix = 'v'
	memberTag  = 'm'
	scoreTag   = 's'
)

var errCorrupt = errors.New("pebblestore: corrupt record")

func setKey(prefix byte, key string) []byte {
	b := make([]byte, 0, 3+len(key)+1)
	b = append(b, prefix)
	b = binary.BigEndian.AppendUint16(b, uint16(len(key)))
	return append(b, key...)
}

func memberKey(key, member string) []byte {
	b := append(setKey(setPrefix, key), memberTag)
	return append(b, member...)
}

func memberBounds(key string) (lower, upper []byte) {
	base := setKey(setPrefix, key)
	return append(append([]byte(nil), base...), memberTag), append(append([]byte(nil), base...), memberTag+1)
}

func scoreKey(key string, score float64, member string) []byte {
	b := append(setKey(setPrefix, key), scoreTag)
	b = binary.BigEndian.AppendUint64(b, sortableBits(score))
	return append(b, member...)
}

func scoreBounds(key string) (lower, upper []byte) {
	base := setKey(setPrefix, key)
	return append(append([]byte(nil), base...), scoreTag), append(append([]byte(nil), base...), scoreTag+1)
}

// decodeScoreKey extracts score and member from a score-index key of key.
func decodeScoreKey(key string, raw []byte) (float64, string, error) {
	off := 3 + len(key) + 1
	if len(raw) < off+8 {
		return 0, "", errCorrupt
	}
	bits := binary.BigEndian.Uint64(raw[off : off+8])
	return fromSortableBits(bits), string(raw[off+8:]), nil
}

func metaKey(key string) []byte { return setKey(metaPrefix, key) }

type meta struct {
	version uint64
	card    int64
}

func (m meta) encode() []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], m.version)
	binary.BigEndian.PutUint64(b[8:], uint64(m.card))
	return b
}

func decodeMeta(b []byte) (meta, error) {
	if len(b) != 16 {
		return meta{}, errCorrupt
	}
	return meta{
		version: binary.BigEndian.Uint64(b[:8]),
		card:    int64(binary.BigEndian.Uint64(b[8:])),
	}, nil
}

func encodeScore(score float64) []byte {
	return binary.BigEndian.AppendUint64(nil, math.Float64bits(score))
}

func decodeScore(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, errCorrupt
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// sortableBits maps a float64 onto a uint64 whose unsigned order matches the
// numeric order of the input, infinities included.
func sortableBits(f float64) uint64 {
	if f == 0 {
		f = 0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		return ^bits
	}
	return bits | 1<<63
}

func fromSortableBits(u uint64) float64 {
	if u&(1<<63) != 0 {
		return math.Float64frombits(u &^ (1 << 63))
	}
	return math.Float64frombits(^u)
}
