package store

import (
	"math"

	"github.com/tidwall/btree"
)

// ZSet is an in-memory sorted set used by the memory and Pebble backends to
// evaluate mutations. The zero value is not usable; call NewZSet.
type ZSet struct {
	tree   *btree.BTreeG[Item]
	scores map[string]float64
}

func itemLess(a, b Item) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

// NewZSet returns an empty set.
func NewZSet(items ...Item) *ZSet {
	z := &ZSet{
		tree:   btree.NewBTreeG[Item](itemLess),
		scores: make(map[string]float64, len(items)),
	}
	for _, it := range items {
		z.Add(it)
	}
	return z
}

// Len returns the number of members.
func (z *ZSet) Len() int { return len(z.scores) }

// Score returns the member's score.
func (z *ZSet) Score(member string) (float64, bool) {
	s, ok := z.scores[member]
	return s, ok
}

// Add inserts or updates a member. added reports a new member, changed any
// modification.
func (z *ZSet) Add(it Item) (added, changed bool) {
	if it.Score == 0 {
		it.Score = 0 // fold -0 into +0
	}
	old, ok := z.scores[it.Member]
	if ok {
		if old == it.Score {
			return false, false
		}
		z.tree.Delete(Item{Score: old, Member: it.Member})
	}
	z.scores[it.Member] = it.Score
	z.tree.Set(it)
	return !ok, true
}

// AddNX inserts a member only if it is absent.
func (z *ZSet) AddNX(it Item) bool {
	if _, ok := z.scores[it.Member]; ok {
		return false
	}
	z.Add(it)
	return true
}

// Remove deletes a member and reports whether it was present.
func (z *ZSet) Remove(member string) bool {
	old, ok := z.scores[member]
	if !ok {
		return false
	}
	delete(z.scores, member)
	z.tree.Delete(Item{Score: old, Member: member})
	return true
}

// Range returns the items with rank in [start, stop] following Reader.Range semantics.
func (z *ZSet) Range(start, stop int64, reverse bool) []Item {
	n := z.Len()
	lo, hi, ok := NormalizeRange(n, start, stop)
	if !ok {
		return nil
	}
	out := make([]Item, 0, hi-lo+1)
	for rank := lo; rank <= hi; rank++ {
		idx := rank
		if reverse {
			idx = n - 1 - rank
		}
		it, ok := z.tree.GetAt(idx)
		if !ok {
			break
		}
		out = append(out, it)
	}
	return out
}

// Items returns every member in ascending order.
func (z *ZSet) Items() []Item {
	out := make([]Item, 0, z.Len())
	z.tree.Scan(func(it Item) bool {
		out = append(out, it)
		return true
	})
	return out
}

// Clone returns an independent copy. The tree copy is copy-on-write.
func (z *ZSet) Clone() *ZSet {
	scores := make(map[string]float64, len(z.scores))
	for k, v := range z.scores {
		scores[k] = v
	}
	return &ZSet{tree: z.tree.Copy(), scores: scores}
}

// Equal reports whether both sets hold the same members with the same scores.
func (z *ZSet) Equal(o *ZSet) bool {
	if z.Len() != o.Len() {
		return false
	}
	for m, s := range z.scores {
		if os, ok := o.scores[m]; !ok || os != s {
			return false
		}
	}
	return true
}

// UnionSum returns a new set holding every member of sets with scores summed.
// Adding +Inf and -Inf yields 0, as Redis does, so the result never holds NaN.
func UnionSum(sets ...*ZSet) *ZSet {
	acc := make(map[string]float64)
	for _, s := range sets {
		if s == nil {
			continue
		}
		for m, score := range s.scores {
			sum := acc[m] + score
			if math.IsNaN(sum) {
				sum = 0
			}
			acc[m] = sum
		}
	}
	out := NewZSet()
	for m, score := range acc {
		out.Add(Item{Score: score, Member: m})
	}
	return out
}
