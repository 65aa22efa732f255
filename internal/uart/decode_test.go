package uart_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/uartscope/internal/capture"
	"github.com/hpungsan/uartscope/internal/errors"
	"github.com/hpungsan/uartscope/internal/synth"
	"github.com/hpungsan/uartscope/internal/uart"
)

// payload always contains 0x55 so a single-bit interval is present.
var payload = []byte("U\x55Hello, 0x55!\x00\xffU")

func mustConfig(t *testing.T, s uart.Settings) uart.ChannelConfig {
	t.Helper()
	cfg, err := uart.NewChannelConfig(s)
	require.NoError(t, err)
	return cfg
}

func mustEncode(t *testing.T, cfg synth.Config) *capture.Capture {
	t.Helper()
	c, err := synth.Encode(cfg)
	require.NoError(t, err)
	return c
}

func TestDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		bits     int
		parity   uart.Parity
		stop     uart.StopBits
		inverted bool
		gap      float64
	}{
		{"8N1", 8, uart.ParityNone, uart.StopBits1, false, 2},
		{"8E1", 8, uart.ParityEven, uart.StopBits1, false, 2},
		{"8O2", 8, uart.ParityOdd, uart.StopBits2, false, 1},
		{"7E1", 7, uart.ParityEven, uart.StopBits1, false, 3},
		{"5N1.5", 5, uart.ParityNone, uart.StopBits15, false, 2},
		{"6O1 inverted", 6, uart.ParityOdd, uart.StopBits1, true, 2},
		{"8N1 back to back", 8, uart.ParityNone, uart.StopBits1, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustEncode(t, synth.Config{
				SampleRate: 9600 * 100,
				BaudRate:   9600,
				Channels:   4,
				Bits:       tt.bits,
				Parity:     tt.parity,
				Stop:       tt.stop,
				Inverted:   tt.inverted,
				LeadIn:     4,
				Gap:        tt.gap,
				Tail:       4,
				Lines:      []synth.Line{{Channel: 1, Data: payload}},
			})
			cfg := mustConfig(t, uart.Settings{
				Roles:    map[uart.Role]int{uart.RoleRxD: 1},
				Bits:     tt.bits,
				Parity:   tt.parity,
				Stop:     tt.stop,
				Inverted: tt.inverted,
			})

			log, err := uart.Decode(context.Background(), c, cfg)
			require.NoError(t, err)

			mask := byte(1<<tt.bits - 1)
			want := make([]byte, len(payload))
			for i, b := range payload {
				want[i] = b & mask
			}
			require.Equal(t, want, log.Data(uart.ScopeRx))
			require.Equal(t, len(payload), log.ByteCount())
			require.Zero(t, log.ErrorCount())

			baud := log.Baud()
			require.True(t, baud.Valid)
			require.Equal(t, 100.0, baud.BitLength)
			require.Equal(t, 9600, baud.BaudRate)
			require.Equal(t, 9600, baud.StandardRate)
			require.False(t, baud.LowConfidence)
		})
	}
}

func TestDecode_ParityError(t *testing.T) {
	c := mustEncode(t, synth.Config{
		SampleRate: 19200 * 50,
		BaudRate:   19200,
		Bits:       8,
		Parity:     uart.ParityEven,
		LeadIn:     2,
		Gap:        2,
		Lines: []synth.Line{{
			Channel: 0,
			Data:    payload,
			Faults:  map[int]synth.Fault{3: synth.FlipBit(2)},
		}},
	})
	cfg := mustConfig(t, uart.Settings{
		Roles:  map[uart.Role]int{uart.RoleRxD: 0},
		Bits:   8,
		Parity: uart.ParityEven,
	})

	log, err := uart.Decode(context.Background(), c, cfg)
	require.NoError(t, err)
	require.Equal(t, len(payload), log.ByteCount())
	require.Equal(t, 1, log.ErrorCount())

	var data []uart.Symbol
	for _, s := range log.Symbols() {
		if s.IsData() {
			data = append(data, s)
		}
	}
	for i, s := range data {
		if i == 3 {
			require.Equal(t, uart.ParityError, s.Error)
			require.Equal(t, int(payload[3]^0x04), s.Value)
			continue
		}
		require.Equal(t, uart.ErrorNone, s.Error, "frame %d", i)
		require.Equal(t, int(payload[i]), s.Value, "frame %d", i)
	}
}

func TestDecode_FramingError(t *testing.T) {
	data := []byte{0x55, 0x41, 0x41, 0x41, 0x55}
	c := mustEncode(t, synth.Config{
		SampleRate: 9600 * 40,
		BaudRate:   9600,
		Bits:       8,
		LeadIn:     2,
		Gap:        2,
		Tail:       2,
		Lines: []synth.Line{{
			Channel: 0,
			Data:    data,
			Faults:  map[int]synth.Fault{2: synth.DropStop()},
		}},
	})
	cfg := mustConfig(t, uart.Settings{
		Roles: map[uart.Role]int{uart.RoleRxD: 0},
		Bits:  8,
	})

	log, err := uart.Decode(context.Background(), c, cfg)
	require.NoError(t, err)
	require.Equal(t, data, log.Data(uart.ScopeRx))
	require.Equal(t, 1, log.ErrorCount())

	for i, s := range log.Symbols() {
		if i == 2 {
			require.Equal(t, uart.FramingError, s.Error)
		} else {
			require.Equal(t, uart.ErrorNone, s.Error, "symbol %d", i)
		}
	}
}

func TestDecode_FramingTakesPrecedenceOverParity(t *testing.T) {
	c := mustEncode(t, synth.Config{
		SampleRate: 9600 * 40,
		BaudRate:   9600,
		Bits:       8,
		Parity:     uart.ParityOdd,
		LeadIn:     2,
		Gap:        2,
		Tail:       2,
		Lines: []synth.Line{{
			Channel: 0,
			Data:    []byte{0x55, 0x41, 0x55},
			Faults:  map[int]synth.Fault{1: synth.Combine(synth.FlipBit(2), synth.DropStop())},
		}},
	})
	cfg := mustConfig(t, uart.Settings{
		Roles:  map[uart.Role]int{uart.RoleRxD: 0},
		Bits:   8,
		Parity: uart.ParityOdd,
	})

	log, err := uart.Decode(context.Background(), c, cfg)
	require.NoError(t, err)
	require.Equal(t, 3, log.Len())
	require.Equal(t, uart.FramingError, log.At(1).Error)
	require.Equal(t, 0x45, log.At(1).Value)
	require.Equal(t, 1, log.ErrorCount())
}

func TestDecode_BaudAccuracy(t *testing.T) {
	tests := []struct {
		rate int
		baud int
	}{
		{24_000_000, 115200},
		{1_000_000, 9600},
		{10_000_000, 57600},
		{4_000_000, 38400},
	}

	for _, tt := range tests {
		c := mustEncode(t, synth.Config{
			SampleRate: tt.rate,
			BaudRate:   tt.baud,
			Bits:       8,
			LeadIn:     2,
			Gap:        1,
			Lines:      []synth.Line{{Channel: 0, Data: payload}},
		})
		cfg := mustConfig(t, uart.Settings{Roles: map[uart.Role]int{uart.RoleRxD: 0}, Bits: 8})

		log, err := uart.Decode(context.Background(), c, cfg)
		require.NoError(t, err)

		baud := log.Baud()
		require.True(t, baud.Valid)
		ideal := math.Round(float64(tt.rate) / float64(tt.baud))
		require.LessOrEqual(t, math.Abs(baud.BitLength-ideal), 1.0, "rate %d baud %d", tt.rate, tt.baud)
		require.Equal(t, tt.baud, baud.StandardRate)
		require.Equal(t, payload, log.Data(uart.ScopeRx))
	}
}

func TestDecode_IdleLine(t *testing.T) {
	c := &capture.Capture{
		Rate:           1_000_000,
		Channels:       2,
		Values:         []uint32{0x3},
		Indices:        []int64{0},
		AbsoluteLength: 50_000,
	}
	cfg := mustConfig(t, uart.Settings{
		Roles: map[uart.Role]int{uart.RoleRxD: 0, uart.RoleTxD: 1},
		Bits:  8,
	})

	require.Zero(t, uart.ScanEdges(c, 0, false).Len())

	log, err := uart.Decode(context.Background(), c, cfg)
	require.NoError(t, err)
	require.False(t, log.Baud().Valid)
	require.Zero(t, log.Baud().BaudRate)
	require.Zero(t, log.ByteCount())
	require.Zero(t, log.ErrorCount())
	require.Zero(t, log.Len())
}

func TestDecode_RejectsOutOfRangeChannel(t *testing.T) {
	c := &capture.Capture{Rate: 1000, Channels: 2, Values: []uint32{0}, Indices: []int64{0}}
	cfg := mustConfig(t, uart.Settings{
		Roles: map[uart.Role]int{uart.RoleRxD: 0, uart.RoleCTS: 5},
		Bits:  8,
	})

	log, err := uart.Decode(context.Background(), c, cfg)
	require.Nil(t, log)
	require.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestDecode_Deterministic(t *testing.T) {
	c := mustEncode(t, synth.Config{
		SampleRate: 115200 * 16,
		BaudRate:   115200,
		Bits:       8,
		Parity:     uart.ParityEven,
		LeadIn:     1,
		Gap:        0.5,
		Lines: []synth.Line{
			{Channel: 0, Data: payload, Faults: map[int]synth.Fault{2: synth.FlipBit(7)}},
			{Channel: 1, Data: []byte("response U"), Offset: 3.5},
		},
		Toggles: []synth.Toggle{{Channel: 2, At: 10, Level: 1}, {Channel: 2, At: 900, Level: 0}},
	})
	cfg := mustConfig(t, uart.Settings{
		Roles:  map[uart.Role]int{uart.RoleRxD: 0, uart.RoleTxD: 1, uart.RoleRTS: 2},
		Bits:   8,
		Parity: uart.ParityEven,
	})

	first, err := uart.Decode(context.Background(), c, cfg)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := uart.Decode(context.Background(), c, cfg)
		require.NoError(t, err)
		require.Equal(t, first.Symbols(), again.Symbols())
		require.Equal(t, first.Baud(), again.Baud())

		a, err := first.MarshalJSON()
		require.NoError(t, err)
		b, err := again.MarshalJSON()
		require.NoError(t, err)
		require.Equal(t, a, b)
	}
}

func TestDecode_OrderingAndConcurrentEdges(t *testing.T) {
	data := []byte("UU")
	c := mustEncode(t, synth.Config{
		SampleRate: 9600 * 20,
		BaudRate:   9600,
		Bits:       8,
		LeadIn:     2,
		Gap:        2,
		Lines: []synth.Line{
			{Channel: 0, Data: data},
			{Channel: 1, Data: data},
		},
	})
	cfg := mustConfig(t, uart.Settings{
		Roles: map[uart.Role]int{uart.RoleRxD: 0, uart.RoleTxD: 1},
		Bits:  8,
	})

	log, err := uart.Decode(context.Background(), c, cfg)
	require.NoError(t, err)
	require.Equal(t, 4, log.ByteCount())
	// Identical lines share all 10 edges of each 0x55 frame: 5 falling, 5 rising
	require.Equal(t, 24, log.Len())

	events := map[string]int{}
	for i, s := range log.Symbols() {
		if s.IsEvent() {
			require.Equal(t, uart.ScopeBoth, s.Scope)
			events[s.Event]++
			continue
		}
		if s.Scope != uart.ScopeRx {
			continue
		}
		both, tx := log.At(i-1), log.At(i+1)
		require.Equal(t, uart.EventConcurrentStart, both.Event)
		require.Equal(t, s.Start, both.Start)
		require.Equal(t, uart.ScopeTx, tx.Scope)
		require.Equal(t, s.Start, tx.Start)
	}
	require.Equal(t, map[string]int{uart.EventConcurrentStart: 10, uart.EventConcurrentEdge: 10}, events)

	for i := 1; i < log.Len(); i++ {
		require.LessOrEqual(t, log.At(i-1).Start, log.At(i).Start)
	}
}

func TestDecode_ConcurrentEdgesWithoutFrames(t *testing.T) {
	// Both lines start active and return to idle together at sample 50.
	c := &capture.Capture{
		Rate:           1000,
		Channels:       2,
		Values:         []uint32{0x0, 0x3},
		Indices:        []int64{0, 50},
		AbsoluteLength: 100,
	}
	cfg := mustConfig(t, uart.Settings{
		Roles: map[uart.Role]int{uart.RoleRxD: 0, uart.RoleTxD: 1},
		Bits:  8,
	})

	log, err := uart.Decode(context.Background(), c, cfg)
	require.NoError(t, err)
	require.Equal(t, 2, log.Len())
	require.Zero(t, log.ByteCount())
	require.Zero(t, log.ErrorCount())

	require.Equal(t, uart.EventConcurrentStart, log.At(0).Event)
	require.Equal(t, int64(0), log.At(0).Start)
	require.Equal(t, uart.EventConcurrentEdge, log.At(1).Event)
	require.Equal(t, int64(50), log.At(1).Start)
	require.Equal(t, uart.ScopeBoth, log.At(1).Scope)
}

func TestDecode_ShortStopBit(t *testing.T) {
	tests := []struct {
		name string
		stop uart.StopBits
		data byte
		frac float64
	}{
		{"1 stop bit", uart.StopBits1, 0xC1, 0.6},
		{"1.5 stop bits", uart.StopBits15, 0xC1, 0.6},
		{"2 stop bits", uart.StopBits2, 0xC1, 0.6},
		{"2 stop bits cut to 1.2", uart.StopBits2, 0x41, 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const bit = 20.0
			data := []byte{0x55, tt.data, 0x55}
			c := mustEncode(t, synth.Config{
				SampleRate: 9600 * bit,
				BaudRate:   9600,
				Bits:       8,
				Stop:       tt.stop,
				LeadIn:     2,
				Gap:        2,
				Tail:       2,
				Lines: []synth.Line{{
					Channel: 0,
					Data:    data,
					Faults:  map[int]synth.Fault{1: synth.ShortStop(tt.frac)},
				}},
			})
			cfg := mustConfig(t, uart.Settings{
				Roles: map[uart.Role]int{uart.RoleRxD: 0},
				Bits:  8,
				Stop:  tt.stop,
			})

			log, err := uart.Decode(context.Background(), c, cfg)
			require.NoError(t, err)
			require.Equal(t, bit, log.Baud().BitLength)
			require.Equal(t, 3, log.Len())
			require.Equal(t, data, log.Data(uart.ScopeRx))
			require.Equal(t, 1, log.ErrorCount())

			stop := tt.stop.Periods()
			second := 2 + 9 + stop + 2
			third := second + 9 + stop*tt.frac

			require.Equal(t, uart.ErrorNone, log.At(0).Error)
			require.Equal(t, uart.FramingError, log.At(1).Error)
			require.Equal(t, int64(math.Round(second*bit)), log.At(1).Start)
			require.Equal(t, uart.ErrorNone, log.At(2).Error)
			require.Equal(t, int64(math.Round(third*bit)), log.At(2).Start)
		})
	}
}

func TestDecode_ControlEvents(t *testing.T) {
	for _, inverted := range []bool{false, true} {
		c := mustEncode(t, synth.Config{
			SampleRate: 9600 * 20,
			BaudRate:   9600,
			Bits:       8,
			Inverted:   inverted,
			LeadIn:     10,
			Lines:      []synth.Line{{Channel: 0, Data: []byte("U")}},
			Toggles: []synth.Toggle{
				{Channel: 3, At: 50, Level: 1},
				{Channel: 3, At: 400, Level: 0},
			},
		})
		cfg := mustConfig(t, uart.Settings{
			Roles:    map[uart.Role]int{uart.RoleRxD: 0, uart.RoleCTS: 3},
			Bits:     8,
			Inverted: inverted,
		})

		log, err := uart.Decode(context.Background(), c, cfg)
		require.NoError(t, err)
		require.Equal(t, 3, log.Len(), "inverted=%v", inverted)

		high := log.At(0)
		require.Equal(t, "CTS_HIGH", high.Event, "inverted=%v", inverted)
		require.Equal(t, uart.ScopeBoth, high.Scope)
		require.Equal(t, int64(50), high.Start)

		require.True(t, log.At(1).IsData())
		require.Equal(t, int64(200), log.At(1).Start)

		low := log.At(2)
		require.Equal(t, "CTS_LOW", low.Event, "inverted=%v", inverted)
		require.Equal(t, int64(400), low.Start)
		require.Zero(t, log.ErrorCount())
	}
}

// lineCapture builds a single-channel capture that starts high and toggles
// at each of the given edges.
func lineCapture(rate int, end int64, edges ...int64) *capture.Capture {
	c := &capture.Capture{Rate: rate, Channels: 1, AbsoluteLength: end}
	c.Values = append(c.Values, 1)
	c.Indices = append(c.Indices, 0)
	level := uint32(1)
	for _, e := range edges {
		level ^= 1
		c.Values = append(c.Values, level)
		c.Indices = append(c.Indices, e)
	}
	return c
}

func TestDecode_Break(t *testing.T) {
	// 0x55 at sample 100 with a 10-sample bit, then 20 bit periods low.
	c := lineCapture(1000, 600, 100, 110, 120, 130, 140, 150, 160, 170, 180, 190, 300, 500)
	cfg := mustConfig(t, uart.Settings{Roles: map[uart.Role]int{uart.RoleRxD: 0}, Bits: 8})

	log, err := uart.Decode(context.Background(), c, cfg)
	require.NoError(t, err)
	require.Equal(t, 2, log.Len())

	data := log.At(0)
	require.True(t, data.IsData())
	require.Equal(t, 0x55, data.Value)
	require.Equal(t, int64(100), data.Start)
	require.Equal(t, int64(199), data.End)

	brk := log.At(1)
	require.True(t, brk.IsEvent())
	require.Equal(t, uart.EventBreak, brk.Event)
	require.Equal(t, uart.ScopeRx, brk.Scope)
	require.Equal(t, int64(300), brk.Start)
	require.Equal(t, int64(499), brk.End)
	require.Zero(t, log.ErrorCount())
	require.Equal(t, 1, log.ByteCount())
}

func TestDecode_TrailingPartialFrame(t *testing.T) {
	// A start bit 30 samples before the end cannot hold a 100-sample frame.
	c := lineCapture(1000, 600, 100, 110, 120, 130, 140, 150, 160, 170, 180, 190, 570)
	cfg := mustConfig(t, uart.Settings{Roles: map[uart.Role]int{uart.RoleRxD: 0}, Bits: 8})

	log, err := uart.Decode(context.Background(), c, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, log.Len())
	require.Equal(t, []byte{0x55}, log.Data(uart.ScopeRx))
}

func TestDecode_LowConfidence(t *testing.T) {
	c := mustEncode(t, synth.Config{
		SampleRate: 9600 * 8,
		BaudRate:   9600,
		Bits:       8,
		LeadIn:     2,
		Gap:        1,
		Lines:      []synth.Line{{Channel: 0, Data: payload}},
	})
	cfg := mustConfig(t, uart.Settings{Roles: map[uart.Role]int{uart.RoleRxD: 0}, Bits: 8})

	log, err := uart.Decode(context.Background(), c, cfg)
	require.NoError(t, err)
	require.True(t, log.Baud().Valid)
	require.True(t, log.Baud().LowConfidence)
	require.Equal(t, payload, log.Data(uart.ScopeRx))
}

func TestDecode_DegenerateBitLength(t *testing.T) {
	c := lineCapture(1000, 100, 10, 11, 40, 60)
	cfg := mustConfig(t, uart.Settings{Roles: map[uart.Role]int{uart.RoleRxD: 0}, Bits: 8})

	log, err := uart.Decode(context.Background(), c, cfg)
	require.NoError(t, err)
	require.False(t, log.Baud().Valid)
	require.Equal(t, 1.0, log.Baud().BitLength)
	require.Zero(t, log.Baud().BaudRate)
}

func TestDecode_Cancelled(t *testing.T) {
	c := mustEncode(t, synth.Config{
		SampleRate: 9600 * 20,
		BaudRate:   9600,
		Bits:       8,
		Lines:      []synth.Line{{Channel: 0, Data: payload}},
	})
	cfg := mustConfig(t, uart.Settings{Roles: map[uart.Role]int{uart.RoleRxD: 0}, Bits: 8})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log, err := uart.Decode(ctx, c, cfg)
	require.Nil(t, log)
	require.True(t, errors.Is(err, errors.ErrCancelled))
}

func TestDecode_InvalidConfigBeforeCancel(t *testing.T) {
	c := &capture.Capture{Rate: 1000, Channels: 1, Values: []uint32{1}, Indices: []int64{0}}
	cfg := mustConfig(t, uart.Settings{Roles: map[uart.Role]int{uart.RoleTxD: 0, uart.RoleDSR: 3}, Bits: 8})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := uart.Decode(ctx, c, cfg)
	require.True(t, errors.Is(err, errors.ErrConfiguration))
}
