// Package capture holds acquired logic-analyser data and reads/writes it in
// the supported on-disk formats.
package capture

import (
	"fmt"

	"github.com/hpungsan/uartscope/internal/errors"
)

// MaxChannels is the width of a sample vector.
const MaxChannels = 32

// Capture is a time-ordered, sparse sequence of sample vectors. Values[i]
// holds the channel bitmask that is valid from sample Indices[i] up to (but
// not including) Indices[i+1], or AbsoluteLength for the last entry.
//
// A Capture is treated as immutable once loaded; decoders only read it.
type Capture struct {
	// Rate is the sample rate in Hz
	Rate int `cbor:"1,keyasint" json:"rate"`

	// Channels is the number of monitored channels (1..32)
	Channels int `cbor:"2,keyasint" json:"channels"`

	// Values are the sample vectors, one bit per channel
	Values []uint32 `cbor:"3,keyasint" json:"values"`

	// Indices are the sample indices of Values, strictly increasing
	Indices []int64 `cbor:"4,keyasint" json:"indices"`

	// AbsoluteLength is the total number of samples spanned by the capture
	AbsoluteLength int64 `cbor:"5,keyasint,omitempty" json:"absolute_length,omitempty"`
}

// Len returns the number of stored sample vectors.
func (c *Capture) Len() int {
	return len(c.Values)
}

// Bit extracts channel ch from the i-th sample vector.
func (c *Capture) Bit(i, ch int) uint32 {
	return (c.Values[i] >> uint(ch)) & 1
}

// End returns the first sample index past the capture.
func (c *Capture) End() int64 {
	if c.AbsoluteLength > 0 {
		return c.AbsoluteLength
	}
	if n := len(c.Indices); n > 0 {
		return c.Indices[n-1] + 1
	}
	return 0
}

// Validate checks the structural invariants of the capture.
// AbsoluteLength is defaulted to the last index + 1 when unset.
func (c *Capture) Validate() error {
	if c.Rate <= 0 {
		return errors.NewInvalidCapture(fmt.Sprintf("sample rate must be positive, got %d", c.Rate))
	}
	if c.Channels < 1 || c.Channels > MaxChannels {
		return errors.NewInvalidCapture(fmt.Sprintf("channel count must be between 1 and %d, got %d", MaxChannels, c.Channels))
	}
	if len(c.Values) != len(c.Indices) {
		return errors.NewInvalidCapture(fmt.Sprintf("values/indices length mismatch: %d vs %d", len(c.Values), len(c.Indices)))
	}
	for i := range c.Indices {
		if c.Indices[i] < 0 {
			return errors.NewInvalidCapture(fmt.Sprintf("negative sample index at position %d", i))
		}
		if i > 0 && c.Indices[i] <= c.Indices[i-1] {
			return errors.NewInvalidCapture(fmt.Sprintf("sample indices must be strictly increasing (position %d)", i))
		}
	}
	if n := len(c.Indices); n > 0 {
		last := c.Indices[n-1]
		if c.AbsoluteLength == 0 {
			c.AbsoluteLength = last + 1
		} else if c.AbsoluteLength <= last {
			return errors.NewInvalidCapture(fmt.Sprintf("absolute length %d does not cover last sample index %d", c.AbsoluteLength, last))
		}
	}
	return nil
}
