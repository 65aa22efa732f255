package uart

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/uartscope/internal/capture"
	"github.com/hpungsan/uartscope/internal/errors"
)

// Options tunes the timing heuristics of a decode run.
type Options struct {
	// MinBitLength is the smallest bit period (samples) accepted as a valid estimate
	MinBitLength float64

	// LowConfidenceBitLength flags estimates with fewer samples per bit
	LowConfidenceBitLength float64

	// StartBitTolerance is the fraction of a bit period a start bit may fall short by
	StartBitTolerance float64
}

// DefaultOptions returns the standard decoder heuristics.
func DefaultOptions() Options {
	return Options{
		MinBitLength:           2,
		LowConfidenceBitLength: 15,
		StartBitTolerance:      0.25,
	}
}

// dataLine is one active data line with its scanned edges.
type dataLine struct {
	role  Role
	scope Scope
	seq   EdgeSequence
}

// Decode runs the full decode with DefaultOptions.
func Decode(ctx context.Context, c *capture.Capture, cfg ChannelConfig) (*DecodeLog, error) {
	return DecodeWithOptions(ctx, c, cfg, DefaultOptions())
}

// DecodeWithOptions validates cfg against the capture, scans edges, estimates
// the bit period, decodes each data line and merges the results. The context
// is checked between phases; a cancelled run returns no log.
func DecodeWithOptions(ctx context.Context, c *capture.Capture, cfg ChannelConfig, opts Options) (*DecodeLog, error) {
	if err := cfg.Validate(c.Channels); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, errors.NewCancelled("decode")
	}

	// Edge scan
	var lines []dataLine
	for _, l := range []struct {
		role  Role
		scope Scope
	}{{RoleRxD, ScopeRx}, {RoleTxD, ScopeTx}} {
		if ch, ok := cfg.Channel(l.role); ok {
			lines = append(lines, dataLine{role: l.role, scope: l.scope, seq: ScanEdges(c, ch, cfg.Inverted())})
		}
	}
	if ctx.Err() != nil {
		return nil, errors.NewCancelled("decode")
	}

	// Baud estimate
	seqs := make([]EdgeSequence, len(lines))
	for i, l := range lines {
		seqs[i] = l.seq
	}
	baud := EstimateBaud(c.Rate, opts, seqs...)
	if ctx.Err() != nil {
		return nil, errors.NewCancelled("decode")
	}

	// Frame decode, one goroutine per line plus one for control lines
	streams := make([][]Symbol, len(lines)+1)
	g, gctx := errgroup.WithContext(ctx)
	for i, l := range lines {
		g.Go(func() error {
			syms, err := newFrameDecoder(l.seq, l.scope, cfg, baud.BitLength, opts).run(gctx)
			if err != nil {
				return err
			}
			streams[i] = syms
			return nil
		})
	}
	g.Go(func() error {
		syms, err := controlEvents(gctx, c, cfg)
		if err != nil {
			return err
		}
		streams[len(lines)] = syms
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, errors.NewCancelled("decode")
	}
	if ctx.Err() != nil {
		return nil, errors.NewCancelled("decode")
	}

	if len(lines) == 2 {
		var first int64
		if c.Len() > 0 {
			first = c.Indices[0]
		}
		streams = append(streams, concurrentEdges(lines[0].seq, lines[1].seq, first))
	}
	return NewDecodeLog(baud, streams...), nil
}

// controlEvents reports every transition of the assigned flow-control lines
// as a Both-scoped event named "<ROLE>_HIGH" or "<ROLE>_LOW".
func controlEvents(ctx context.Context, c *capture.Capture, cfg ChannelConfig) ([]Symbol, error) {
	var out []Symbol
	for _, role := range ControlRoles {
		ch, ok := cfg.Channel(role)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seq := ScanEdges(c, ch, cfg.Inverted())
		for i, e := range seq.Edges {
			state := "LOW"
			if seq.levelAfter(i) == 1 {
				state = "HIGH"
			}
			out = append(out, eventSymbol(ScopeBoth, fmt.Sprintf("%s_%s", role, state), e, e, ErrorNone))
		}
	}
	return out, nil
}
