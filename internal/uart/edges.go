package uart

import (
	"sort"

	"github.com/hpungsan/uartscope/internal/capture"
)

// EdgeSequence is the ordered set of sample indices at which one channel
// changes level. Levels are post-inversion: 1 is the idle (mark) state.
type EdgeSequence struct {
	// Channel is the capture channel the sequence was scanned from
	Channel int

	// Initial is the level at the first sample
	Initial uint32

	// Edges are strictly increasing sample indices of level changes
	Edges []int64

	// End is the first sample index past the capture
	End int64
}

// ScanEdges extracts the edges of one channel. The first sample only sets the
// initial level; a line that never changes yields an empty sequence.
func ScanEdges(c *capture.Capture, channel int, inverted bool) EdgeSequence {
	seq := EdgeSequence{
		Channel: channel,
		End:     c.End(),
	}
	if c.Len() == 0 {
		return seq
	}

	var invert uint32
	if inverted {
		invert = 1
	}

	prev := c.Bit(0, channel) ^ invert
	seq.Initial = prev
	for i := 1; i < c.Len(); i++ {
		level := c.Bit(i, channel) ^ invert
		if level != prev {
			seq.Edges = append(seq.Edges, c.Indices[i])
			prev = level
		}
	}
	return seq
}

// Len returns the number of edges.
func (s EdgeSequence) Len() int {
	return len(s.Edges)
}

// LevelAt returns the line level at sample index t.
func (s EdgeSequence) LevelAt(t int64) uint32 {
	n := s.edgesUpTo(t)
	return s.Initial ^ uint32(n&1)
}

// edgesUpTo returns how many edges occur at or before t; it is also the
// position in Edges of the first edge after t.
func (s EdgeSequence) edgesUpTo(t int64) int {
	return sort.Search(len(s.Edges), func(i int) bool { return s.Edges[i] > t })
}

// levelAfter returns the level immediately after the i-th edge.
func (s EdgeSequence) levelAfter(i int) uint32 {
	return s.Initial ^ uint32((i+1)&1)
}
