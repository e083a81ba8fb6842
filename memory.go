package dse

import (
	"bytes"
	"fmt"

	"github.com/benbjohnson/immutable"
)

// PointerWidth is the width of addresses produced by the heap.
const PointerWidth = Width64

// RegionID names a heap region, e.g. one per field or per array element type.
type RegionID string

type regionIDHasher struct{}

func (regionIDHasher) Hash(id RegionID) uint32 {
	// FNV-1a
	h := uint32(2166136261)
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= 16777619
	}
	return h
}

func (regionIDHasher) Equal(a, b RegionID) bool { return a == b }

// Allocation describes a container in the heap address space.
type Allocation struct {
	Addr uint64
	Size uint64

	// Input containers come from outside the analyzed code. Their unwritten
	// cells read as symbolic inputs; other containers read as zero.
	Input bool
}

// Contains returns true if addr lies inside the allocation.
func (a Allocation) Contains(addr uint64) bool {
	return addr >= a.Addr && addr < a.Addr+a.Size
}

// Memory is the symbolic memory of a single state: heap regions, an address
// allocation table, a stack of register frames and static storage.
//
// A Memory value belongs to exactly one state. Clone gives both sides fresh
// tokens so that every region shared at clone time is copied on first write.
type Memory struct {
	owner   *Ownership
	regions *immutable.Map[RegionID, *Region]
	allocs  *immutable.SortedMap[uint64, Allocation]
	stack   *immutable.List[*registerFrame]
	statics *Region
}

// NewMemory returns an empty memory owned by owner.
func NewMemory(owner *Ownership) *Memory {
	return &Memory{
		owner:   owner,
		regions: immutable.NewMap[RegionID, *Region](regionIDHasher{}),
		allocs:  immutable.NewSortedMap[uint64, Allocation](uint64Comparer{}),
		stack:   immutable.NewList[*registerFrame](),
		statics: NewRegion("static", owner),
	}
}

// Owner returns the memory's current ownership token.
func (m *Memory) Owner() *Ownership { return m.owner }

// Clone returns a copy of the memory. The receiver takes thisOwner and the
// copy takes cloneOwner. No values are copied.
func (m *Memory) Clone(thisOwner, cloneOwner *Ownership) *Memory {
	assert(thisOwner != cloneOwner, "memory clone: owners must differ")
	other := *m
	m.owner, other.owner = thisOwner, cloneOwner
	return &other
}

// Allocate reserves size bytes of concrete, zero initialized memory and
// returns the base address.
func (m *Memory) Allocate(size uint64) uint64 {
	return m.alloc(size, false)
}

// AllocateInput reserves a container whose contents are symbolic inputs.
func (m *Memory) AllocateInput(size uint64) uint64 {
	return m.alloc(size, true)
}

func (m *Memory) alloc(size uint64, input bool) uint64 {
	if size == 0 {
		size = 1
	}
	addr := m.nextAddr()
	m.allocs = m.allocs.Set(addr, Allocation{Addr: addr, Size: size, Input: input})
	return addr
}

// nextAddr returns the next available address on the heap.
// Ensures the address is always non-zero and pointer aligned.
func (m *Memory) nextAddr() uint64 {
	const align = PointerWidth / 8

	itr := m.allocs.Iterator()
	itr.Last()
	if k, v, ok := itr.Prev(); ok {
		next := k + v.Size
		return (next + align - 1) &^ (align - 1)
	}
	return align
}

// Allocation returns the allocation containing addr.
func (m *Memory) Allocation(addr uint64) (Allocation, bool) {
	// Seek to the given address or the next available address.
	itr := m.allocs.Iterator()
	if itr.Seek(addr); itr.Done() {
		itr.Last()
	}

	// Move backwards until address range too low.
	for !itr.Done() {
		_, a, _ := itr.Prev()
		if a.Contains(addr) {
			return a, true
		} else if addr >= a.Addr+a.Size {
			break
		}
	}
	return Allocation{}, false
}

// Allocations returns the number of live allocations.
func (m *Memory) Allocations() int { return m.allocs.Len() }

// Free removes the allocation based at addr. Region cells are left in place
// and become unreachable.
func (m *Memory) Free(addr uint64) {
	m.allocs = m.allocs.Delete(addr)
}

// Region returns the heap region with the given id, if it exists.
func (m *Memory) Region(id RegionID) (*Region, bool) {
	return m.regions.Get(id)
}

// Read returns the value at key in region id. Unwritten cells of concrete
// allocations read as zero; all other unwritten cells read as the region's
// canonical input symbol.
func (m *Memory) Read(id RegionID, key Key, width uint) Expr {
	r, ok := m.regions.Get(id)
	if ok {
		if v, ok := r.Get(key); ok {
			return v
		}
	}

	if a, ok := m.Allocation(key.Container); ok && !a.Input {
		return NewConstantExpr(0, width)
	} else if r == nil {
		r = NewRegion(string(id), m.owner)
	}
	return r.DefaultValue(key, width)
}

// Write stores value at key in region id under guard. A nil guard is an
// unconditional write.
func (m *Memory) Write(id RegionID, key Key, value, guard Expr) {
	if guard != nil && !IsConstantTrue(guard) {
		if IsConstantFalse(guard) {
			return
		}
		value = NewIteExpr(guard, value, m.Read(id, key, ExprWidth(value)))
	}

	r, ok := m.regions.Get(id)
	if !ok {
		r = NewRegion(string(id), m.owner)
		m.regions = m.regions.Set(id, r)
	}
	if other := r.Write(key, value, nil, m.owner); other != r {
		m.regions = m.regions.Set(id, other)
	}
}

// ReadStatic returns the value of the static slot.
func (m *Memory) ReadStatic(slot uint64, width uint) Expr {
	return m.statics.Read(Key{Index: slot}, width)
}

// WriteStatic updates the static slot under guard.
func (m *Memory) WriteStatic(slot uint64, value, guard Expr) {
	m.statics = m.statics.Write(Key{Index: slot}, value, guard, m.owner)
}

// registerFrame holds the arguments followed by the locals of one call.
type registerFrame struct {
	regs *immutable.List[Expr]
}

// PushFrame pushes a register frame holding args followed by locals
// unwritten local slots.
func (m *Memory) PushFrame(args []Expr, locals int) {
	regs := immutable.NewList[Expr](args...)
	for i := 0; i < locals; i++ {
		regs = regs.Append(nil)
	}
	m.stack = m.stack.Append(&registerFrame{regs: regs})
}

// PopFrame removes the top register frame.
func (m *Memory) PopFrame() {
	assert(m.stack.Len() > 0, "pop frame: empty register stack")
	m.stack = m.stack.Slice(0, m.stack.Len()-1)
}

// FrameDepth returns the number of register frames.
func (m *Memory) FrameDepth() int { return m.stack.Len() }

// ReadRegister returns register i of the top frame. An unwritten local reads
// as a canonical symbol.
func (m *Memory) ReadRegister(i int, width uint) Expr {
	f := m.topFrame()
	assert(i >= 0 && i < f.regs.Len(), "read register: index out of range: %d", i)
	if v := f.regs.Get(i); v != nil {
		return v
	}
	return NewSymbolExpr(fmt.Sprintf("reg#%d[%d]", m.stack.Len()-1, i), width)
}

// WriteRegister updates register i of the top frame.
func (m *Memory) WriteRegister(i int, value Expr) {
	f := m.topFrame()
	assert(i >= 0 && i < f.regs.Len(), "write register: index out of range: %d", i)
	m.stack = m.stack.Set(m.stack.Len()-1, &registerFrame{regs: f.regs.Set(i, value)})
}

func (m *Memory) topFrame() *registerFrame {
	assert(m.stack.Len() > 0, "empty register stack")
	return m.stack.Get(m.stack.Len() - 1)
}

// Dump returns the allocation table and written cells as a string.
func (m *Memory) Dump() string {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, "== HEAP")
	itr := m.allocs.Iterator()
	for !itr.Done() {
		_, a, _ := itr.Next()
		kind := "alloc"
		if a.Input {
			kind = "input"
		}
		fmt.Fprintf(&buf, "%08d %s size=%d\n", a.Addr, kind, a.Size)
	}

	ritr := m.regions.Iterator()
	for !ritr.Done() {
		id, r, _ := ritr.Next()
		fmt.Fprintf(&buf, "region %s\n", id)
		r.Each(func(k Key, v Expr) bool {
			fmt.Fprintf(&buf, "  %s = %s\n", k, v)
			return true
		})
	}

	fmt.Fprintln(&buf, "== STATICS")
	m.statics.Each(func(k Key, v Expr) bool {
		fmt.Fprintf(&buf, "  %d = %s\n", k.Index, v)
		return true
	})
	return buf.String()
}

// uint64Comparer compares two 64-bit unsigned integers. Implements immutable.Comparer.
type uint64Comparer struct{}

// Compare returns -1 if a is less than b, returns 1 if a is greater than b, and
// returns 0 if a is equal to b.
func (uint64Comparer) Compare(a, b uint64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
