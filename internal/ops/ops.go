package ops

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/uartscope/internal/config"
	"github.com/hpungsan/uartscope/internal/db"
	"github.com/hpungsan/uartscope/internal/errors"
	"github.com/hpungsan/uartscope/internal/uart"
)

// Pagination limits
const (
	DefaultListLimit   = 20
	MaxListLimit       = 100
	DefaultSymbolLimit = 500
	MaxSymbolLimit     = 5000
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// clampLimit applies the default and upper bound to a requested page size.
func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}

// RunSummary is the stored metadata of a decode run, without its symbols.
type RunSummary struct {
	ID          string            `json:"id,omitempty"`
	CapturePath string            `json:"capture_path"`
	SampleRate  int               `json:"sample_rate"`
	Channels    int               `json:"channels"`
	SampleCount int64             `json:"sample_count"`
	Settings    uart.Settings     `json:"settings"`
	Profile     string            `json:"profile,omitempty"`
	Baud        uart.BaudEstimate `json:"baud"`
	ByteCount   int               `json:"byte_count"`
	ErrorCount  int               `json:"error_count"`
	SymbolCount int               `json:"symbol_count"`
	CreatedAt   int64             `json:"created_at"`
}

func summaryFromRun(r *db.Run) RunSummary {
	s := RunSummary{
		ID:          r.ID,
		CapturePath: r.CapturePath,
		SampleRate:  r.SampleRate,
		Channels:    r.Channels,
		SampleCount: r.SampleCount,
		Settings:    r.Settings,
		Baud:        r.Baud,
		ByteCount:   r.ByteCount,
		ErrorCount:  r.ErrorCount,
		SymbolCount: r.SymbolCount,
		CreatedAt:   r.CreatedAt,
	}
	if r.Profile != nil {
		s.Profile = *r.Profile
	}
	return s
}

// entropy is shared so ids minted within one millisecond still increase.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// newRunID returns a ULID so run ids sort by creation time.
func newRunID(now time.Time) (string, error) {
	entropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), entropy)
	entropyMu.Unlock()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to generate run id: %w", err))
	}
	return id.String(), nil
}

// requireID trims id and rejects an empty one.
func requireID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest("id is required")
	}
	return id, nil
}

// LineSettings is a partial decoder configuration. Zero-valued fields fall
// through to the next layer (profile, then config defaults).
type LineSettings struct {
	Roles    map[string]int `yaml:"roles,omitempty" json:"roles,omitempty"`
	Bits     int            `yaml:"bits,omitempty" json:"bits,omitempty"`
	Parity   string         `yaml:"parity,omitempty" json:"parity,omitempty"`
	StopBits string         `yaml:"stop_bits,omitempty" json:"stop_bits,omitempty"`
	Inverted *bool          `yaml:"inverted,omitempty" json:"inverted,omitempty"`
}

// ResolveSettings layers ls over the config defaults, later layers winning.
// A non-empty role map replaces the previous one entirely.
func ResolveSettings(cfg *config.Config, layers ...LineSettings) (uart.Settings, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	bits := cfg.DefaultBits
	parity := cfg.DefaultParity
	stop := cfg.DefaultStopBits
	inverted := false
	var roles map[string]int

	for _, l := range layers {
		if len(l.Roles) > 0 {
			roles = l.Roles
		}
		if l.Bits != 0 {
			bits = l.Bits
		}
		if l.Parity != "" {
			parity = l.Parity
		}
		if l.StopBits != "" {
			stop = l.StopBits
		}
		if l.Inverted != nil {
			inverted = *l.Inverted
		}
	}

	s := uart.Settings{
		Roles:    make(map[uart.Role]int, len(roles)),
		Bits:     bits,
		Inverted: inverted,
	}
	for name, ch := range roles {
		role, err := uart.ParseRole(name)
		if err != nil {
			return uart.Settings{}, errors.NewConfiguration("role", err.Error())
		}
		s.Roles[role] = ch
	}

	var err error
	if s.Parity, err = uart.ParseParity(parity); err != nil {
		return uart.Settings{}, errors.NewConfiguration("parity", err.Error())
	}
	if s.Stop, err = uart.ParseStopBits(stop); err != nil {
		return uart.Settings{}, errors.NewConfiguration("stop_bits", err.Error())
	}
	return s, nil
}

// decodeOptions maps the config thresholds onto decoder options, keeping the
// decoder defaults for unset values.
func decodeOptions(cfg *config.Config) uart.Options {
	opts := uart.DefaultOptions()
	if cfg == nil {
		return opts
	}
	if cfg.MinBitLength > 0 {
		opts.MinBitLength = cfg.MinBitLength
	}
	if cfg.LowConfidenceBitLength > 0 {
		opts.LowConfidenceBitLength = cfg.LowConfidenceBitLength
	}
	if cfg.StartBitTolerance > 0 {
		opts.StartBitTolerance = cfg.StartBitTolerance
	}
	return opts
}
