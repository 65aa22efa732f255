package uart

import (
	"encoding/json"
	"sort"
)

// DecodeLog is the time-ordered result of one decode run. It is built once
// and never modified; accessors return copies.
type DecodeLog struct {
	symbols   []Symbol
	byteCount int
	errCount  int
	baud      BaudEstimate
}

// NewDecodeLog merges symbol streams into one log ordered by start sample,
// then scope (Both, Rx, Tx), then stream order.
func NewDecodeLog(baud BaudEstimate, streams ...[]Symbol) *DecodeLog {
	total := 0
	for _, s := range streams {
		total += len(s)
	}

	merged := make([]Symbol, 0, total)
	for _, s := range streams {
		merged = append(merged, s...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Start != merged[j].Start {
			return merged[i].Start < merged[j].Start
		}
		return merged[i].Scope < merged[j].Scope
	})

	l := &DecodeLog{symbols: merged, baud: baud}
	for _, s := range merged {
		if s.IsData() {
			l.byteCount++
		}
		if s.HasError() {
			l.errCount++
		}
	}
	return l
}

// Len returns the number of symbols.
func (l *DecodeLog) Len() int {
	return len(l.symbols)
}

// At returns the i-th symbol.
func (l *DecodeLog) At(i int) Symbol {
	return l.symbols[i]
}

// Symbols returns a copy of all symbols in log order.
func (l *DecodeLog) Symbols() []Symbol {
	out := make([]Symbol, len(l.symbols))
	copy(out, l.symbols)
	return out
}

// ByteCount returns the number of decoded data symbols.
func (l *DecodeLog) ByteCount() int {
	return l.byteCount
}

// ErrorCount returns the number of symbols carrying an error kind.
func (l *DecodeLog) ErrorCount() int {
	return l.errCount
}

// Baud returns the timing estimate the run used.
func (l *DecodeLog) Baud() BaudEstimate {
	return l.baud
}

// Data returns the decoded values of one line, in order.
func (l *DecodeLog) Data(scope Scope) []byte {
	var out []byte
	for _, s := range l.symbols {
		if s.IsData() && s.Scope == scope {
			out = append(out, byte(s.Value))
		}
	}
	return out
}

type decodeLogJSON struct {
	Baud       BaudEstimate `json:"baud"`
	ByteCount  int          `json:"byte_count"`
	ErrorCount int          `json:"error_count"`
	Symbols    []Symbol     `json:"symbols"`
}

// MarshalJSON implements json.Marshaler.
func (l *DecodeLog) MarshalJSON() ([]byte, error) {
	symbols := l.symbols
	if symbols == nil {
		symbols = []Symbol{}
	}
	return json.Marshal(decodeLogJSON{
		Baud:       l.baud,
		ByteCount:  l.byteCount,
		ErrorCount: l.errCount,
		Symbols:    symbols,
	})
}

// concurrentEdges returns a Both-scoped event for every sample index at
// which both lines change level. Two falling edges, or two lines already
// active at the first sample, are a CONCURRENT_START; any other coincident
// pair is a CONCURRENT_EDGE.
func concurrentEdges(rx, tx EdgeSequence, first int64) []Symbol {
	var out []Symbol
	if rx.Initial == 0 && tx.Initial == 0 {
		out = append(out, eventSymbol(ScopeBoth, EventConcurrentStart, first, first, ErrorNone))
	}

	i, j := 0, 0
	for i < len(rx.Edges) && j < len(tx.Edges) {
		switch {
		case rx.Edges[i] < tx.Edges[j]:
			i++
		case rx.Edges[i] > tx.Edges[j]:
			j++
		default:
			name := EventConcurrentEdge
			if rx.levelAfter(i) == 0 && tx.levelAfter(j) == 0 {
				name = EventConcurrentStart
			}
			at := rx.Edges[i]
			out = append(out, eventSymbol(ScopeBoth, name, at, at, ErrorNone))
			i++
			j++
		}
	}
	return out
}
