package comm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/morphidx/internal/conv"
)

// NewLocalGroup creates an in-process communicator group of size n and
// returns one handle per rank. Each handle must be driven by its own
// goroutine; collectives rendezvous through shared state.
func NewLocalGroup(n int) []Comm {
	if n < 1 {
		n = 1
	}
	g := newLocalState(n)

	comms := make([]Comm, n)
	for r := 0; r < n; r++ {
		comms[r] = &Local{rank: r, g: g}
	}
	return comms
}

// Local is one rank's handle of an in-process communicator.
type Local struct {
	rank int
	g    *localState
}

type localState struct {
	size int
	coll *rendezvous

	mu    sync.Mutex
	boxes map[[2]int]chan []byte // (from, to) -> mailbox
}

func newLocalState(n int) *localState {
	return &localState{
		size:  n,
		coll:  newRendezvous(n),
		boxes: make(map[[2]int]chan []byte),
	}
}

func (c *Local) Rank() int { return c.rank }

func (c *Local) Size() int { return c.g.size }

func (c *Local) AllReduceSum(v uint64) (uint64, error) {
	vals := c.g.coll.exchange(c.rank, v)
	var sum uint64
	for _, x := range vals {
		sum += x.(uint64)
	}
	return sum, nil
}

func (c *Local) AllGatherCounts(n int) ([]int, error) {
	// The wire primitives carry counts as 32-bit integers; one rank might
	// also end up receiving all the big slabs, so the total is checked too.
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrCountOverflow, n)
	}
	if _, err := conv.IntToInt32(n); err != nil {
		return nil, fmt.Errorf("%w: %d", ErrCountOverflow, n)
	}
	vals := c.g.coll.exchange(c.rank, n)
	counts := make([]int, len(vals))
	total := 0
	for i, x := range vals {
		counts[i] = x.(int)
		total += counts[i]
		if _, err := conv.IntToInt32(total); err != nil {
			return nil, fmt.Errorf("%w: total %d", ErrCountOverflow, total)
		}
	}
	return counts, nil
}

func (c *Local) AllGatherBytes(b []byte) ([][]byte, error) {
	vals := c.g.coll.exchange(c.rank, b)
	out := make([][]byte, len(vals))
	for i, x := range vals {
		out[i] = x.([]byte)
	}
	return out, nil
}

func (c *Local) AllToAllv(send [][]byte) ([][]byte, error) {
	if len(send) != c.g.size {
		return nil, fmt.Errorf("comm: alltoallv expects %d send buffers, got %d", c.g.size, len(send))
	}
	vals := c.g.coll.exchange(c.rank, send)
	recv := make([][]byte, c.g.size)
	for from, x := range vals {
		recv[from] = x.([][]byte)[c.rank]
	}
	return recv, nil
}

func (c *Local) Send(to int, b []byte) error {
	if to < 0 || to >= c.g.size {
		return fmt.Errorf("%w: %d", ErrInvalidRank, to)
	}
	c.g.mailbox(c.rank, to) <- b
	return nil
}

func (c *Local) Recv(from int) ([]byte, error) {
	if from < 0 || from >= c.g.size {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRank, from)
	}
	return <-c.g.mailbox(from, c.rank), nil
}

type member struct {
	rank, color, key int
}

type subState struct {
	color int
	owner int
	state *localState
}

func (c *Local) Split(color, key int) (Comm, error) {
	vals := c.g.coll.exchange(c.rank, member{rank: c.rank, color: color, key: key})

	var group []member
	for _, x := range vals {
		m := x.(member)
		if color >= 0 && m.color == color {
			group = append(group, m)
		}
	}
	sort.Slice(group, func(i, j int) bool {
		if group[i].key != group[j].key {
			return group[i].key < group[j].key
		}
		return group[i].rank < group[j].rank
	})

	// The first member of each sub-group in (key, rank) order allocates its shared state
	// and publishes it through a second rendezvous round. Opted-out ranks
	// still take part in that round so the collective stays aligned.
	var publish *subState
	if len(group) > 0 && group[0].rank == c.rank {
		publish = &subState{color: color, owner: c.rank, state: newLocalState(len(group))}
	}
	states := c.g.coll.exchange(c.rank, publish)

	if color < 0 {
		return nil, nil
	}

	var shared *localState
	for _, x := range states {
		if s, ok := x.(*subState); ok && s != nil && s.color == color && s.owner == group[0].rank {
			shared = s.state
		}
	}
	if shared == nil {
		return nil, fmt.Errorf("comm: split failed to establish sub-group state")
	}

	for i, m := range group {
		if m.rank == c.rank {
			return &Local{rank: i, g: shared}, nil
		}
	}
	return nil, nil
}

func (g *localState) mailbox(from, to int) chan []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := [2]int{from, to}
	box, ok := g.boxes[key]
	if !ok {
		box = make(chan []byte, 64)
		g.boxes[key] = box
	}
	return box
}

// rendezvous implements a reusable all-to-all exchange: every rank deposits
// one value per round and receives the full round's values.
type rendezvous struct {
	mu    sync.Mutex
	cond  *sync.Cond
	size  int
	vals  []any
	out   []any
	n     int
	round int
}

func newRendezvous(n int) *rendezvous {
	r := &rendezvous{size: n, vals: make([]any, n)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *rendezvous) exchange(rank int, v any) []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	round := r.round
	r.vals[rank] = v
	r.n++

	if r.n == r.size {
		r.out = append([]any(nil), r.vals...)
		r.n = 0
		r.round++
		r.cond.Broadcast()
		return r.out
	}

	for r.round == round {
		r.cond.Wait()
	}
	return r.out
}
