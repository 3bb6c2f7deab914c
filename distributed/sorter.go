// Package distributed implements bulk multi-index construction across a set
// of ranks: a balanced distributed sort, two-level sort-tile-recursion and
// the bulk builder that writes sub-trees and assembles the top tree.
package distributed

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/hupe1980/morphidx/comm"
	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/model"
)

// KeyFunc extracts the sort key of a value.
type KeyFunc[V any] func(v V) geometry.CoordType

// SortAndBalance sorts values across all ranks of c by key and balances the
// rank sizes. On return, the concatenation of the per-rank slices in rank
// order is globally sorted, and each rank holds exactly its balanced target
// size (total/N, remainder spread to the low ranks). The relative order of
// equal keys is unspecified.
//
// The exchange runs in two collective phases: a splitter-based partition
// that makes the concatenation globally sorted, then an interval-intersection
// shuffle that moves elements between neighboring ranks to hit the exact
// balanced sizes. Any communication error aborts the sort.
func SortAndBalance[V any](c comm.Comm, values []V, key KeyFunc[V], codec model.Codec[V]) ([]V, error) {
	sort.SliceStable(values, func(i, j int) bool {
		return key(values[i]) < key(values[j])
	})

	sorted, err := partitionBySplitters(c, values, key, codec)
	if err != nil {
		return nil, err
	}

	return balance(c, sorted, codec)
}

// partitionBySplitters redistributes locally sorted values so that the
// global concatenation is sorted: every rank samples N-1 splitters by
// position, the samples are gathered and sorted, and the global splitters
// are read off at the balanced cumulative positions of the sample array.
func partitionBySplitters[V any](c comm.Comm, values []V, key KeyFunc[V], codec model.Codec[V]) ([]V, error) {
	size := c.Size()
	if size == 1 {
		return values, nil
	}

	samples := make([]byte, 0, (size-1)*4)
	for i := 1; i < size; i++ {
		pos := i * len(values) / size
		k := geometry.CoordType(math.Inf(1))
		if pos < len(values) {
			k = key(values[pos])
		}
		samples = binary.LittleEndian.AppendUint32(samples, math.Float32bits(float32(k)))
	}

	gathered, err := c.AllGatherBytes(samples)
	if err != nil {
		return nil, fmt.Errorf("distributed: gathering splitters: %w", err)
	}

	var allSamples []geometry.CoordType
	for _, b := range gathered {
		for off := 0; off+4 <= len(b); off += 4 {
			allSamples = append(allSamples,
				math.Float32frombits(binary.LittleEndian.Uint32(b[off:])))
		}
	}
	sort.Slice(allSamples, func(i, j int) bool { return allSamples[i] < allSamples[j] })

	splitters := make([]geometry.CoordType, size-1)
	for i := 1; i < size; i++ {
		splitters[i-1] = allSamples[i*len(allSamples)/size]
	}

	// Partition the local sorted run by the global splitters.
	send := make([][]byte, size)
	begin := 0
	for dest := 0; dest < size; dest++ {
		end := len(values)
		if dest < size-1 {
			end = begin + sort.Search(len(values)-begin, func(i int) bool {
				return key(values[begin+i]) >= splitters[dest]
			})
		}
		buf := make([]byte, 0, (end-begin)*codec.Size())
		for _, v := range values[begin:end] {
			buf = codec.Append(buf, v)
		}
		send[dest] = buf
		begin = end
	}

	recv, err := c.AllToAllv(send)
	if err != nil {
		return nil, fmt.Errorf("distributed: exchanging values: %w", err)
	}

	runs := make([][]V, 0, size)
	for _, buf := range recv {
		run, err := decodeRun(buf, codec)
		if err != nil {
			return nil, err
		}
		if len(run) > 0 {
			runs = append(runs, run)
		}
	}
	return mergeRuns(runs, key), nil
}

// balance moves elements between neighboring ranks so every rank ends up
// with its balanced target size. Global order is preserved: the send counts
// are the intersections of the current and the balanced index intervals.
func balance[V any](c comm.Comm, values []V, codec model.Codec[V]) ([]V, error) {
	size := c.Size()
	rank := c.Rank()

	counts, err := c.AllGatherCounts(len(values))
	if err != nil {
		return nil, fmt.Errorf("distributed: gathering counts: %w", err)
	}

	total := 0
	localStart := 0
	for r, n := range counts {
		if r < rank {
			localStart += n
		}
		total += n
	}
	localEnd := localStart + len(values)

	balanced := BalancedChunkSizes(total, size)

	send := make([][]byte, size)
	balancedStart := 0
	for dest := 0; dest < size; dest++ {
		balancedEnd := balancedStart + balanced[dest]

		var buf []byte
		if balancedStart < localEnd && localStart < balancedEnd {
			from := maxInt(balancedStart, localStart) - localStart
			to := minInt(balancedEnd, localEnd) - localStart
			buf = make([]byte, 0, (to-from)*codec.Size())
			for _, v := range values[from:to] {
				buf = codec.Append(buf, v)
			}
		}
		send[dest] = buf

		balancedStart = balancedEnd
	}

	recv, err := c.AllToAllv(send)
	if err != nil {
		return nil, fmt.Errorf("distributed: balancing exchange: %w", err)
	}

	// Received slabs are contiguous in global order; rank order concatenation
	// keeps them sorted.
	out := make([]V, 0, balanced[rank])
	for _, buf := range recv {
		run, err := decodeRun(buf, codec)
		if err != nil {
			return nil, err
		}
		out = append(out, run...)
	}
	return out, nil
}

// BalancedChunkSizes splits total into n chunks differing by at most one,
// with the remainder spread over the low ranks.
func BalancedChunkSizes(total, n int) []int {
	sizes := make([]int, n)
	base, rem := total/n, total%n
	for i := range sizes {
		sizes[i] = base
		if i < rem {
			sizes[i]++
		}
	}
	return sizes
}

func decodeRun[V any](buf []byte, codec model.Codec[V]) ([]V, error) {
	size := codec.Size()
	if len(buf)%size != 0 {
		return nil, fmt.Errorf("distributed: received %d bytes, not a multiple of the %d-byte record", len(buf), size)
	}
	run := make([]V, 0, len(buf)/size)
	for off := 0; off < len(buf); off += size {
		v, err := codec.Decode(buf[off:])
		if err != nil {
			return nil, err
		}
		run = append(run, v)
	}
	return run, nil
}

// mergeRuns k-way merges sorted runs into one sorted slice.
func mergeRuns[V any](runs [][]V, key KeyFunc[V]) []V {
	total := 0
	for _, r := range runs {
		total += len(r)
	}
	out := make([]V, 0, total)

	heads := make([]int, len(runs))
	for len(out) < total {
		best := -1
		for i, r := range runs {
			if heads[i] >= len(r) {
				continue
			}
			if best < 0 || key(r[heads[i]]) < key(runs[best][heads[best]]) {
				best = i
			}
		}
		out = append(out, runs[best][heads[best]])
		heads[best]++
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
