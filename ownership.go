package dse

import (
	"fmt"
	"sync/atomic"
)

var ownershipSeq atomic.Uint64

// Ownership is an identity token deciding whether a mutable container may be
// updated in place. Tokens compare by pointer; the id is only used for
// printing.
type Ownership struct {
	id uint64
}

// NewOwnership returns a fresh, unique ownership token.
func NewOwnership() *Ownership {
	return &Ownership{id: ownershipSeq.Add(1)}
}

// String returns a short name for the token.
func (o *Ownership) String() string {
	if o == nil {
		return "owner<nil>"
	}
	return fmt.Sprintf("owner<%d>", o.id)
}
