package ps_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/benbjohnson/dse/ps"
	"github.com/google/go-cmp/cmp"
)

// drain pops every state in selection order.
func drain(sel ps.PathSelector[int]) []int {
	var a []int
	for !sel.IsEmpty() {
		v := sel.Peek()
		sel.Remove(v)
		a = append(a, v)
	}
	return a
}

func mustPanicEmpty(tb testing.TB, fn func()) {
	tb.Helper()
	defer func() {
		r := recover()
		if err, ok := r.(error); !ok || !errors.Is(err, ps.ErrEmpty) {
			tb.Fatalf("unexpected panic: %v", r)
		}
	}()
	fn()
}

func TestDFS(t *testing.T) {
	t.Run("Order", func(t *testing.T) {
		sel := ps.NewDFS[int]()
		sel.Add(1, 2)
		sel.Add(3)
		if diff := cmp.Diff([]int{3, 2, 1}, drain(sel)); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("UpdateKeepsPosition", func(t *testing.T) {
		sel := ps.NewDFS[int]()
		sel.Add(1, 2)
		sel.Update(2)
		if v := sel.Peek(); v != 2 {
			t.Fatalf("unexpected state: %d", v)
		}
	})

	t.Run("PeekEmpty", func(t *testing.T) {
		mustPanicEmpty(t, func() { ps.NewDFS[int]().Peek() })
	})
}

func TestBFS(t *testing.T) {
	t.Run("Order", func(t *testing.T) {
		sel := ps.NewBFS[int]()
		sel.Add(1, 2, 3)
		if diff := cmp.Diff([]int{1, 2, 3}, drain(sel)); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("UpdateMovesToBack", func(t *testing.T) {
		sel := ps.NewBFS[int]()
		sel.Add(1, 2, 3)
		sel.Update(sel.Peek())
		if diff := cmp.Diff([]int{2, 3, 1}, drain(sel)); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestRandom(t *testing.T) {
	t.Run("PeekIsStable", func(t *testing.T) {
		sel := ps.NewRandom[int](rand.New(rand.NewSource(0)))
		sel.Add(1, 2, 3, 4, 5)
		v := sel.Peek()
		for i := 0; i < 10; i++ {
			if other := sel.Peek(); other != v {
				t.Fatalf("peek changed: %d != %d", other, v)
			}
		}
	})

	t.Run("DrainsAll", func(t *testing.T) {
		sel := ps.NewRandom[int](rand.New(rand.NewSource(1)))
		sel.Add(1, 2, 3, 4, 5)
		sel.Add(3) // duplicate

		seen := make(map[int]bool)
		for _, v := range drain(sel) {
			if seen[v] {
				t.Fatalf("state returned twice: %d", v)
			}
			seen[v] = true
		}
		if len(seen) != 5 {
			t.Fatalf("unexpected count: %d", len(seen))
		}
	})
}

func TestWeighted(t *testing.T) {
	t.Run("LowestWeightFirst", func(t *testing.T) {
		weights := map[int]float64{1: 5, 2: 1, 3: 3, 4: 1}
		sel := ps.NewWeighted(func(v int) float64 { return weights[v] })
		sel.Add(1, 2, 3, 4)
		if diff := cmp.Diff([]int{2, 4, 3, 1}, drain(sel)); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("UpdateReweighs", func(t *testing.T) {
		weights := map[int]float64{1: 1, 2: 2}
		sel := ps.NewWeighted(func(v int) float64 { return weights[v] })
		sel.Add(1, 2)
		weights[1] = 10
		sel.Update(1)
		if v := sel.Peek(); v != 2 {
			t.Fatalf("unexpected state: %d", v)
		}
	})

	t.Run("RandomZeroWeightNeverChosen", func(t *testing.T) {
		weights := map[int]float64{1: 0, 2: 1}
		sel := ps.NewRandomWeighted(func(v int) float64 { return weights[v] }, rand.New(rand.NewSource(0)))
		sel.Add(1, 2)
		for i := 0; i < 20; i++ {
			if v := sel.Peek(); v != 2 {
				t.Fatalf("unexpected state: %d", v)
			}
			sel.Update(2)
		}
	})
}

func TestParallel(t *testing.T) {
	t.Run("AddRoundRobin", func(t *testing.T) {
		a, b, c := ps.NewDFS[int](), ps.NewDFS[int](), ps.NewDFS[int]()
		sel := ps.NewParallel[int](a, b, c)

		for i, v := range []int{10, 11, 12} {
			if sel.Pointer() != i {
				t.Fatalf("unexpected pointer: %d", sel.Pointer())
			}
			sel.Add(v)
		}

		if diff := cmp.Diff([]int{10}, drain(a)); diff != "" {
			t.Fatal(diff)
		} else if diff := cmp.Diff([]int{11}, drain(b)); diff != "" {
			t.Fatal(diff)
		} else if diff := cmp.Diff([]int{12}, drain(c)); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("PeekAfterWrap", func(t *testing.T) {
		sel := ps.NewParallel[int](ps.NewDFS[int](), ps.NewDFS[int](), ps.NewDFS[int]())
		sel.Add(10)
		sel.Add(11)
		if v := sel.Peek(); v != 10 {
			t.Fatalf("unexpected state: %d", v) // child 2 empty, skipped to 0
		}

		sel = ps.NewParallel[int](ps.NewDFS[int](), ps.NewDFS[int](), ps.NewDFS[int]())
		sel.Add(10)
		sel.Add(11)
		sel.Add(12)
		if sel.Pointer() != 0 {
			t.Fatalf("unexpected pointer: %d", sel.Pointer())
		} else if v := sel.Peek(); v != 10 {
			t.Fatalf("unexpected state: %d", v)
		}
	})

	t.Run("SkipsEmptyChildren", func(t *testing.T) {
		a, b := ps.NewDFS[int](), ps.NewDFS[int]()
		sel := ps.NewParallel[int](a, b)
		b.Add(7)
		if v := sel.Peek(); v != 7 {
			t.Fatalf("unexpected state: %d", v)
		} else if sel.Pointer() != 1 {
			t.Fatalf("unexpected pointer: %d", sel.Pointer())
		}
		sel.Remove(7)
		if !sel.IsEmpty() {
			t.Fatal("expected empty")
		}
	})

	t.Run("IsEmpty", func(t *testing.T) {
		a, b := ps.NewDFS[int](), ps.NewDFS[int]()
		sel := ps.NewParallel[int](a, b)
		if !sel.IsEmpty() {
			t.Fatal("expected empty")
		}
		b.Add(1)
		if sel.IsEmpty() {
			t.Fatal("expected non-empty")
		}
	})

	t.Run("PeekEmpty", func(t *testing.T) {
		sel := ps.NewParallel[int](ps.NewDFS[int](), ps.NewDFS[int]())
		mustPanicEmpty(t, func() { sel.Peek() })
	})
}

func TestInterleaved(t *testing.T) {
	t.Run("Independent", func(t *testing.T) {
		a, b := ps.NewDFS[int](), ps.NewDFS[int]()
		sel := ps.NewInterleaved[int](true, a, b)
		sel.Add(1)
		sel.Add(2)
		if diff := cmp.Diff([]int{1}, drain(a)); diff != "" {
			t.Fatal(diff)
		} else if diff := cmp.Diff([]int{2}, drain(b)); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Broadcast", func(t *testing.T) {
		a, b := ps.NewDFS[int](), ps.NewBFS[int]()
		sel := ps.NewInterleaved[int](false, a, b)
		sel.Add(1, 2, 3)

		// Pointer moved to the BFS child.
		if v := sel.Peek(); v != 1 {
			t.Fatalf("unexpected state: %d", v)
		}
		sel.Remove(1)
		sel.Add()

		// Pointer back on the DFS child, which also lost state 1.
		if v := sel.Peek(); v != 3 {
			t.Fatalf("unexpected state: %d", v)
		}
		if diff := cmp.Diff([]int{3, 2}, drain(a)); diff != "" {
			t.Fatal(diff)
		} else if diff := cmp.Diff([]int{2, 3}, drain(b)); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestFair(t *testing.T) {
	a, b := ps.NewDFS[int](), ps.NewDFS[int]()
	a.Add(1)
	b.Add(2)
	sel := ps.NewFair[int](2, a, b)

	var got []int
	for i := 0; i < 6; i++ {
		v := sel.Peek()
		got = append(got, v)
		sel.Update(v)
	}
	if diff := cmp.Diff([]int{1, 1, 2, 2, 1, 1}, got); diff != "" {
		t.Fatal(diff)
	}

	// The last step came from a, so its fork stays there while b takes
	// the next turn.
	sel.Add(3)
	if v := sel.Peek(); v != 2 {
		t.Fatalf("unexpected state: %d", v)
	} else if v := a.Peek(); v != 3 {
		t.Fatalf("unexpected state in a: %d", v)
	}

	t.Run("AddToProducer", func(t *testing.T) {
		a, b := ps.NewDFS[int](), ps.NewDFS[int]()
		a.Add(1)
		b.Add(2)
		sel := ps.NewFair[int](1, a, b)

		if v := sel.Peek(); v != 1 {
			t.Fatalf("unexpected state: %d", v)
		}
		sel.Update(1)
		sel.Add(10)

		if diff := cmp.Diff([]int{10, 1}, drain(a)); diff != "" {
			t.Fatalf("a mismatch (-want +got):\n%s", diff)
		} else if diff := cmp.Diff([]int{2}, drain(b)); diff != "" {
			t.Fatalf("b mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("AddAfterRemove", func(t *testing.T) {
		a, b := ps.NewDFS[int](), ps.NewDFS[int]()
		a.Add(1)
		b.Add(2)
		sel := ps.NewFair[int](1, a, b)

		sel.Remove(sel.Peek())
		sel.Add(10, 11)

		if diff := cmp.Diff([]int{11, 10}, drain(a)); diff != "" {
			t.Fatalf("a mismatch (-want +got):\n%s", diff)
		} else if diff := cmp.Diff([]int{2}, drain(b)); diff != "" {
			t.Fatalf("b mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestStopping(t *testing.T) {
	var stop bool
	inner := ps.NewDFS[int]()
	sel := ps.NewStopping[int](inner, ps.StopperFunc(func() bool { return stop }))
	sel.Add(1)

	if sel.IsEmpty() {
		t.Fatal("expected non-empty")
	}
	stop = true
	if !sel.IsEmpty() {
		t.Fatal("expected empty after stop")
	} else if inner.IsEmpty() {
		t.Fatal("inner selector must keep its states")
	}
}
