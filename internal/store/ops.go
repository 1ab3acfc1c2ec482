package store

// OpKind identifies a buffered transaction write.
type OpKind uint8

const (
	OpAdd OpKind = iota + 1
	OpAddNX
	OpRemove
	OpUnionStore
)

func (k OpKind) String() string {
	switch k {
	case OpAdd:
		return "add"
	case OpAddNX:
		return "addnx"
	case OpRemove:
		return "remove"
	case OpUnionStore:
		return "unionstore"
	default:
		return "unknown"
	}
}

// Op is one buffered write. Key is the destination for every kind.
type Op struct {
	Kind    OpKind
	Key     string
	Items   []Item
	Members []string
	Sources []string
}

// Batch records writes in order. It implements Writer and is embedded by the
// transaction types of every backend.
type Batch struct {
	ops []Op
}

func (b *Batch) Add(key string, items ...Item) {
	if len(items) == 0 {
		return
	}
	b.ops = append(b.ops, Op{Kind: OpAdd, Key: key, Items: append([]Item(nil), items...)})
}

func (b *Batch) AddNX(key string, items ...Item) {
	if len(items) == 0 {
		return
	}
	b.ops = append(b.ops, Op{Kind: OpAddNX, Key: key, Items: append([]Item(nil), items...)})
}

func (b *Batch) Remove(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	b.ops = append(b.ops, Op{Kind: OpRemove, Key: key, Members: append([]string(nil), members...)})
}

func (b *Batch) UnionStore(dest string, keys ...string) {
	b.ops = append(b.ops, Op{Kind: OpUnionStore, Key: dest, Sources: append([]string(nil), keys...)})
}

// Ops returns the buffered writes in submission order.
func (b *Batch) Ops() []Op { return b.ops }

// Len returns the number of buffered writes.
func (b *Batch) Len() int { return len(b.ops) }

// Reset drops all buffered writes.
func (b *Batch) Reset() { b.ops = b.ops[:0] }

// Validate rejects writes carrying unstorable items.
func (b *Batch) Validate() error {
	for _, op := range b.ops {
		for _, it := range op.Items {
			if err := it.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Result is the outcome of applying ops to working copies of the touched sets.
type Result struct {
	// Sets holds the post-image of every key read or written while applying.
	Sets map[string]*ZSet
	// Changed lists keys whose content was modified. Only these need writing.
	Changed map[string]bool
	// Counts holds, per op, the number of members added, removed or stored.
	Counts []int64
}

// Apply evaluates ops in order, the way a MULTI block runs: later ops observe
// the effects of earlier ones. load returns the committed set for a key (nil
// when absent) and is called at most once per key; the returned set is never
// modified.
func Apply(ops []Op, load func(key string) *ZSet) *Result {
	res := &Result{
		Sets:    make(map[string]*ZSet),
		Changed: make(map[string]bool),
		Counts:  make([]int64, len(ops)),
	}
	get := func(key string) *ZSet {
		if z, ok := res.Sets[key]; ok {
			return z
		}
		z := load(key)
		if z == nil {
			z = NewZSet()
		} else {
			z = z.Clone()
		}
		res.Sets[key] = z
		return z
	}

	for i, op := range ops {
		switch op.Kind {
		case OpAdd:
			z := get(op.Key)
			for _, it := range op.Items {
				added, changed := z.Add(it)
				if added {
					res.Counts[i]++
				}
				if changed {
					res.Changed[op.Key] = true
				}
			}
		case OpAddNX:
			z := get(op.Key)
			for _, it := range op.Items {
				if z.AddNX(it) {
					res.Counts[i]++
					res.Changed[op.Key] = true
				}
			}
		case OpRemove:
			z := get(op.Key)
			for _, m := range op.Members {
				if z.Remove(m) {
					res.Counts[i]++
					res.Changed[op.Key] = true
				}
			}
		case OpUnionStore:
			srcs := make([]*ZSet, 0, len(op.Sources))
			for _, k := range op.Sources {
				srcs = append(srcs, get(k))
			}
			u := UnionSum(srcs...)
			prev := get(op.Key)
			if prev.Len() > 0 || u.Len() > 0 {
				res.Changed[op.Key] = true
			}
			res.Sets[op.Key] = u
			res.Counts[i] = int64(u.Len())
		}
	}
	return res
}
