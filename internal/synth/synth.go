// Package synth builds captures of UART traffic with exactly known timing,
// optionally injecting parity or framing faults into chosen frames.
package synth

import (
	"fmt"
	"math"
	"math/bits"
	"sort"

	"github.com/hpungsan/uartscope/internal/capture"
	"github.com/hpungsan/uartscope/internal/uart"
)

// Fault is a deliberate corruption of one frame.
type Fault struct {
	flipBit   int
	dropStop  bool
	shortStop float64
}

// FlipBit inverts data bit n (LSB = 0) after the parity bit was computed.
func FlipBit(n int) Fault {
	return Fault{flipBit: n}
}

// DropStop holds the line low for the whole stop region.
func DropStop() Fault {
	return Fault{flipBit: -1, dropStop: true}
}

// ShortStop cuts the stop region to frac of its length and starts the next
// frame immediately after it, skipping the inter-frame gap.
func ShortStop(frac float64) Fault {
	return Fault{flipBit: -1, shortStop: frac}
}

// Combine applies several faults to the same frame.
func Combine(faults ...Fault) Fault {
	out := Fault{flipBit: -1}
	for _, f := range faults {
		if f.flipBit >= 0 {
			out.flipBit = f.flipBit
		}
		out.dropStop = out.dropStop || f.dropStop
		if f.shortStop > 0 {
			out.shortStop = f.shortStop
		}
	}
	return out
}

// Line is the traffic of one data line.
type Line struct {
	Channel int
	Data    []byte
	// Faults maps a frame index to the corruption applied to it
	Faults map[int]Fault
	// Offset delays the line's first frame by this many bit periods
	Offset float64
}

// Toggle sets a channel to the logical Level at sample index At. Like the
// data lines, toggled channels are inverted on the wire when Config.Inverted is set.
type Toggle struct {
	Channel int
	At      int64
	Level   uint32
}

// Config describes the capture to synthesise.
type Config struct {
	SampleRate int
	BaudRate   int
	Channels   int
	Bits       int
	Parity     uart.Parity
	Stop       uart.StopBits
	Inverted   bool

	// LeadIn is the idle time before the first frame, in bit periods
	LeadIn float64
	// Gap is the idle time between frames, in bit periods
	Gap float64
	// Tail is the idle time after the last frame, in bit periods
	Tail float64

	Lines   []Line
	Toggles []Toggle
}

// transition is a logical level change on one channel.
type transition struct {
	at    int64
	level uint32
}

// Encode renders cfg into a Capture. Cell boundaries are placed at the
// nearest sample to k * SampleRate/BaudRate.
func Encode(cfg Config) (*capture.Capture, error) {
	if cfg.SampleRate <= 0 || cfg.BaudRate <= 0 {
		return nil, fmt.Errorf("sample rate and baud rate must be positive")
	}
	if cfg.Bits < 5 || cfg.Bits > 8 {
		return nil, fmt.Errorf("bit count must be between 5 and 8, got %d", cfg.Bits)
	}
	if cfg.Channels == 0 {
		cfg.Channels = 8
	}
	period := float64(cfg.SampleRate) / float64(cfg.BaudRate)

	// idle holds the logical rest level of every channel the capture drives
	idle := make(map[int]uint32)
	changes := make(map[int][]transition)
	var end float64

	for _, line := range cfg.Lines {
		if line.Channel < 0 || line.Channel >= cfg.Channels {
			return nil, fmt.Errorf("line channel %d out of range", line.Channel)
		}
		idle[line.Channel] = 1
		cells, lineEnd := frameCells(cfg, line)
		if lineEnd > end {
			end = lineEnd
		}
		for _, c := range cells {
			changes[line.Channel] = append(changes[line.Channel], transition{
				at:    int64(math.Round(c.start * period)),
				level: c.level,
			})
		}
	}
	last := int64(math.Round(end * period))

	for _, tg := range cfg.Toggles {
		if tg.Channel < 0 || tg.Channel >= cfg.Channels {
			return nil, fmt.Errorf("toggle channel %d out of range", tg.Channel)
		}
		if _, ok := idle[tg.Channel]; !ok {
			idle[tg.Channel] = 0
		}
		changes[tg.Channel] = append(changes[tg.Channel], transition{at: tg.At, level: tg.Level & 1})
		if tg.At > last {
			last = tg.At
		}
	}

	return render(cfg, idle, changes, last+1), nil
}

// cell is a run of constant logical level starting at a bit-period offset.
type cell struct {
	start float64
	level uint32
}

// frameCells lays out every frame of line as level runs, in bit periods.
func frameCells(cfg Config, line Line) ([]cell, float64) {
	var out []cell
	t := cfg.LeadIn + line.Offset

	for i, value := range line.Data {
		fault, hasFault := line.Faults[i]

		v := uint32(value) & (1<<cfg.Bits - 1)
		parityBit := parityFor(cfg.Parity, v)
		if hasFault && fault.flipBit >= 0 {
			v ^= 1 << fault.flipBit
		}

		out = append(out, cell{start: t, level: 0})
		t++
		for n := 0; n < cfg.Bits; n++ {
			out = append(out, cell{start: t, level: (v >> n) & 1})
			t++
		}
		if cfg.Parity != uart.ParityNone {
			out = append(out, cell{start: t, level: parityBit})
			t++
		}
		stopLevel := uint32(1)
		if hasFault && fault.dropStop {
			stopLevel = 0
		}
		out = append(out, cell{start: t, level: stopLevel})
		if hasFault && fault.shortStop > 0 {
			t += cfg.Stop.Periods() * fault.shortStop
			continue
		}
		t += cfg.Stop.Periods()
		if stopLevel == 0 {
			out = append(out, cell{start: t, level: 1})
		}
		t += cfg.Gap
	}
	return out, t + cfg.Tail
}

func parityFor(p uart.Parity, v uint32) uint32 {
	ones := uint32(bits.OnesCount32(v))
	switch p {
	case uart.ParityEven:
		return ones & 1
	case uart.ParityOdd:
		return (ones & 1) ^ 1
	}
	return 0
}

// render merges per-channel transitions into sparse sample vectors.
func render(cfg Config, idle map[int]uint32, changes map[int][]transition, length int64) *capture.Capture {
	var invert uint32
	if cfg.Inverted {
		invert = 1
	}

	level := make([]uint32, cfg.Channels)
	for ch := range level {
		level[ch] = idle[ch]
	}

	byIndex := make(map[int64][]struct {
		ch    int
		level uint32
	})
	indices := []int64{0}
	for ch, ts := range changes {
		for _, tr := range ts {
			if _, seen := byIndex[tr.at]; !seen && tr.at != 0 {
				indices = append(indices, tr.at)
			}
			byIndex[tr.at] = append(byIndex[tr.at], struct {
				ch    int
				level uint32
			}{ch, tr.level})
		}
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	c := &capture.Capture{
		Rate:           cfg.SampleRate,
		Channels:       cfg.Channels,
		AbsoluteLength: length,
	}
	var prev uint32
	for i, at := range indices {
		// Apply in channel order so later runs on the same sample win deterministically.
		updates := byIndex[at]
		sort.SliceStable(updates, func(a, b int) bool { return updates[a].ch < updates[b].ch })
		for _, u := range updates {
			level[u.ch] = u.level
		}

		var vec uint32
		for ch, l := range level {
			if _, active := idle[ch]; active {
				l ^= invert
			}
			vec |= l << uint(ch)
		}
		if i > 0 && vec == prev {
			continue
		}
		c.Values = append(c.Values, vec)
		c.Indices = append(c.Indices, at)
		prev = vec
	}
	if c.AbsoluteLength <= c.Indices[len(c.Indices)-1] {
		c.AbsoluteLength = c.Indices[len(c.Indices)-1] + 1
	}
	return c
}
