package ops

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/uartscope/internal/capture"
	"github.com/hpungsan/uartscope/internal/config"
	"github.com/hpungsan/uartscope/internal/db"
	"github.com/hpungsan/uartscope/internal/errors"
	"github.com/hpungsan/uartscope/internal/export"
	"github.com/hpungsan/uartscope/internal/metrics"
	"github.com/hpungsan/uartscope/internal/uart"
)

// DecodeInput contains parameters for the Decode operation.
type DecodeInput struct {
	CapturePath string       // required
	Profile     string       // optional named profile
	ProfileDir  string       // directory holding profiles; required with Profile
	Settings    LineSettings // explicit settings, override the profile
	NoStore     bool         // decode only, do not persist the run
}

// DecodeOutput contains the result of the Decode operation.
type DecodeOutput struct {
	Run      RunSummary      `json:"run"`
	Stored   bool            `json:"stored"`
	Warnings []string        `json:"warnings,omitempty"`
	Log      *uart.DecodeLog `json:"log"`
}

// Decode loads a capture, decodes it and, unless NoStore is set, records the
// run. Metrics are recorded for every outcome when m is non-nil.
func Decode(ctx context.Context, database *sql.DB, cfg *config.Config, m *metrics.Metrics, input DecodeInput) (*DecodeOutput, error) {
	path := strings.TrimSpace(input.CapturePath)
	if path == "" {
		m.ObserveFailure(metrics.ResultRejected)
		return nil, errors.NewInvalidRequest("capture path is required")
	}
	if database == nil && !input.NoStore {
		m.ObserveFailure(metrics.ResultFailed)
		return nil, errors.NewInternal(fmt.Errorf("no database to store the run"))
	}

	layers := []LineSettings{}
	var profileName *string
	if input.Profile != "" {
		p, err := LoadProfile(input.ProfileDir, input.Profile)
		if err != nil {
			m.ObserveFailure(metrics.ResultRejected)
			return nil, err
		}
		layers = append(layers, p.LineSettings)
		profileName = &p.Name
	}
	layers = append(layers, input.Settings)

	settings, err := ResolveSettings(cfg, layers...)
	if err != nil {
		m.ObserveFailure(metrics.ResultRejected)
		return nil, err
	}
	chCfg, err := uart.NewChannelConfig(settings)
	if err != nil {
		m.ObserveFailure(metrics.ResultRejected)
		return nil, err
	}

	c, err := capture.Open(path)
	if err != nil {
		m.ObserveFailure(metrics.ResultRejected)
		return nil, err
	}

	start := time.Now()
	log, err := uart.DecodeWithOptions(ctx, c, chCfg, decodeOptions(cfg))
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrCancelled):
			m.ObserveFailure(metrics.ResultCancelled)
		case errors.Is(err, errors.ErrConfiguration):
			m.ObserveFailure(metrics.ResultRejected)
		default:
			m.ObserveFailure(metrics.ResultFailed)
		}
		return nil, err
	}
	m.ObserveRun(log, time.Since(start))

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	run := &db.Run{
		CapturePath: path,
		SampleRate:  c.Rate,
		Channels:    c.Channels,
		SampleCount: c.End(),
		Settings:    chCfg.Settings(),
		Profile:     profileName,
		Baud:        log.Baud(),
		ByteCount:   log.ByteCount(),
		ErrorCount:  log.ErrorCount(),
		SymbolCount: log.Len(),
		CreatedAt:   start.Unix(),
	}

	out := &DecodeOutput{Log: log, Warnings: decodeWarnings(log.Baud())}
	if !input.NoStore {
		if run.ID, err = newRunID(start); err != nil {
			return nil, err
		}
		if err := db.InsertRun(ctx, database, run, log.Symbols()); err != nil {
			return nil, err
		}
		out.Stored = true
	}
	out.Run = summaryFromRun(run)
	return out, nil
}

func decodeWarnings(b uart.BaudEstimate) []string {
	var out []string
	if !b.Valid {
		out = append(out, export.BaudText(b))
	}
	if w := export.LowConfidenceWarning(b); w != "" {
		out = append(out, w)
	}
	return out
}
