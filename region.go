package dse

import (
	"fmt"

	"github.com/benbjohnson/immutable"
)

// Key addresses a single cell of a memory region: a container (object
// address, array address or frame) and a sub-index inside it.
type Key struct {
	Container uint64
	Index     uint64
}

// String returns the string representation of the key.
func (k Key) String() string {
	return fmt.Sprintf("%d[%d]", k.Container, k.Index)
}

type keyHasher struct{}

func (keyHasher) Hash(k Key) uint32 {
	h := k.Container*0x9e3779b97f4a7c15 ^ k.Index
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	return uint32(h ^ h>>32)
}

func (keyHasher) Equal(a, b Key) bool { return a == b }

// Region is a persistent mapping of keys to symbolic values tagged with the
// ownership token of its last writer.
type Region struct {
	name   string
	values *immutable.Map[Key, Expr]
	owner  *Ownership
}

// NewRegion returns an empty region owned by owner. Name prefixes the
// canonical symbols returned for unwritten cells.
func NewRegion(name string, owner *Ownership) *Region {
	return &Region{
		name:   name,
		values: immutable.NewMap[Key, Expr](keyHasher{}),
		owner:  owner,
	}
}

// Name returns the region name.
func (r *Region) Name() string { return r.name }

// Owner returns the token of the region's last writer.
func (r *Region) Owner() *Ownership { return r.owner }

// Len returns the number of written cells.
func (r *Region) Len() int { return r.values.Len() }

// Get returns the value written at key, if any.
func (r *Region) Get(key Key) (Expr, bool) {
	return r.values.Get(key)
}

// Read returns the value at key. Unwritten cells read as a canonical input
// symbol of the given width, so repeated reads agree.
func (r *Region) Read(key Key, width uint) Expr {
	if v, ok := r.values.Get(key); ok {
		return v
	}
	return r.DefaultValue(key, width)
}

// DefaultValue returns the canonical symbol for an unwritten cell.
func (r *Region) DefaultValue(key Key, width uint) Expr {
	return NewSymbolExpr(fmt.Sprintf("%s#%d[%d]", r.name, key.Container, key.Index), width)
}

// Write stores value at key. A non-nil, non-true guard makes the write
// conditional: the cell becomes ite(guard, value, old).
//
// If owner matches the region's owner the region is updated in place and
// returned. Otherwise the region is left untouched and a structurally shared
// copy tagged with owner is returned.
func (r *Region) Write(key Key, value Expr, guard Expr, owner *Ownership) *Region {
	if guard != nil && !IsConstantTrue(guard) {
		if IsConstantFalse(guard) {
			return r
		}
		value = NewIteExpr(guard, value, r.Read(key, ExprWidth(value)))
	}

	if owner != nil && owner == r.owner {
		r.values = r.values.Set(key, value)
		return r
	}
	return &Region{
		name:   r.name,
		values: r.values.Set(key, value),
		owner:  owner,
	}
}

// Each calls fn for every written cell until fn returns false.
func (r *Region) Each(fn func(key Key, value Expr) bool) {
	itr := r.values.Iterator()
	for !itr.Done() {
		k, v, _ := itr.Next()
		if !fn(k, v) {
			return
		}
	}
}
