package uart

import (
	"context"
	"math"
	"math/bits"
)

// cancelCheckInterval is how many frames are decoded between context checks.
const cancelCheckInterval = 4096

type frameState int

const (
	stateIdle frameState = iota
	stateStartBit
	stateDataBits
	stateParityBit
	stateStopBits
)

// frame is the scratch state of the frame being decoded.
type frame struct {
	startEdge int
	start     int64
	value     int
	parityErr bool
	framedErr bool
}

// frameDecoder runs the UART receive state machine over one line.
type frameDecoder struct {
	seq       EdgeSequence
	scope     Scope
	bits      int
	parity    Parity
	cells     float64 // frame length in bit periods
	bitLength float64
	tolerance float64

	state frameState
	next  int
	out   []Symbol
}

func newFrameDecoder(seq EdgeSequence, scope Scope, cfg ChannelConfig, bitLength float64, opts Options) *frameDecoder {
	return &frameDecoder{
		seq:       seq,
		scope:     scope,
		bits:      cfg.Bits(),
		parity:    cfg.Parity(),
		cells:     cfg.frameCells(),
		bitLength: bitLength,
		tolerance: opts.StartBitTolerance,
	}
}

// run decodes the line to the end of the capture. Malformed frames are
// annotated and skipped; only cancellation stops it early.
func (d *frameDecoder) run(ctx context.Context) ([]Symbol, error) {
	if d.bitLength <= 0 {
		return nil, nil
	}
	for n := 0; d.step(); n++ {
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	return d.out, nil
}

// step consumes edges until one symbol is emitted. It returns false when
// the line holds no further complete frame.
func (d *frameDecoder) step() bool {
	var f frame
	d.state = stateIdle

	for {
		switch d.state {
		case stateIdle:
			if d.next >= len(d.seq.Edges) {
				return false
			}
			i := d.next
			d.next++
			if d.seq.levelAfter(i) != 0 {
				continue
			}
			f = frame{startEdge: i, start: d.seq.Edges[i]}
			d.state = stateStartBit

		case stateStartBit:
			if float64(f.start)+d.cells*d.bitLength > float64(d.seq.End) {
				d.next = len(d.seq.Edges)
				return false
			}
			held := d.seq.End
			if f.startEdge+1 < len(d.seq.Edges) {
				held = d.seq.Edges[f.startEdge+1]
			}
			lowFor := float64(held - f.start)
			if lowFor < d.bitLength*(1-d.tolerance) {
				d.out = append(d.out, eventSymbol(d.scope, EventStartError, f.start, held-1, FramingError))
				return true
			}
			if lowFor >= d.cells*d.bitLength {
				d.out = append(d.out, eventSymbol(d.scope, EventBreak, f.start, held-1, ErrorNone))
				return true
			}
			d.state = stateDataBits

		case stateDataBits:
			for n := 0; n < d.bits; n++ {
				if d.sample(f.start, float64(n)+1.5) == 1 {
					f.value |= 1 << n
				}
			}
			if d.parity == ParityNone {
				d.state = stateStopBits
			} else {
				d.state = stateParityBit
			}

		case stateParityBit:
			ones := bits.OnesCount(uint(f.value)) + int(d.sample(f.start, float64(d.bits)+1.5))
			switch d.parity {
			case ParityEven:
				f.parityErr = ones%2 != 0
			case ParityOdd:
				f.parityErr = ones%2 == 0
			}
			d.state = stateStopBits

		case stateStopBits:
			from, to := d.stopWindow(f.start)
			if d.seq.LevelAt(from) != 1 || d.seq.edgesUpTo(to) != d.seq.edgesUpTo(from) {
				f.framedErr = true
			}

			errKind := ErrorNone
			switch {
			case f.framedErr:
				errKind = FramingError
			case f.parityErr:
				errKind = ParityError
			}
			end := int64(math.Ceil(float64(f.start)+d.cells*d.bitLength)) - 1
			d.out = append(d.out, dataSymbol(d.scope, f.value, f.start, end, errKind))

			// A start bit that cut the stop region short begins the next frame.
			d.next = d.seq.edgesUpTo(from)
			d.state = stateIdle
			return true
		}
	}
}

// stopWindow returns the sample range [from, to] over which the line must
// stay high for the frame starting at start. The stop region is shrunk by
// the start-bit tolerance at both ends to absorb clock drift.
func (d *frameDecoder) stopWindow(start int64) (int64, int64) {
	stopStart := float64(start) + float64(1+d.bits+d.parity.bits())*d.bitLength
	stopEnd := float64(start) + d.cells*d.bitLength
	margin := d.tolerance * d.bitLength

	from := int64(math.Floor(stopStart + margin))
	to := int64(math.Ceil(stopEnd-margin)) - 1
	if to < from {
		to = from
	}
	return from, to
}

// sample reads the line at start + cells bit periods.
func (d *frameDecoder) sample(start int64, cells float64) uint32 {
	t := float64(start) + cells*d.bitLength
	return d.seq.LevelAt(int64(math.Floor(t)))
}
