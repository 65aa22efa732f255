package export

import (
	"encoding/json"
	"io"

	"github.com/hpungsan/uartscope/internal/uart"
)

// SchemaVersion is the version of the JSONL export layout.
const SchemaVersion = "1"

// Header is the first line of a JSONL export.
type Header struct {
	UartscopeExport bool              `json:"_uartscope_export"`
	SchemaVersion   string            `json:"schema_version"`
	RunID           string            `json:"run_id,omitempty"`
	CapturePath     string            `json:"capture_path,omitempty"`
	SampleRate      int               `json:"sample_rate"`
	Settings        uart.Settings     `json:"settings"`
	Baud            uart.BaudEstimate `json:"baud"`
	ByteCount       int               `json:"byte_count"`
	ErrorCount      int               `json:"error_count"`
	SymbolCount     int               `json:"symbol_count"`
}

// Line is one symbol line of a JSONL export.
type Line struct {
	Index int `json:"index"`
	uart.Symbol
	StartSeconds float64 `json:"start_seconds"`
	EndSeconds   float64 `json:"end_seconds"`
}

func writeJSONL(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)

	header := Header{
		UartscopeExport: true,
		SchemaVersion:   SchemaVersion,
		RunID:           r.RunID,
		CapturePath:     r.CapturePath,
		SampleRate:      r.SampleRate,
		Settings:        r.Settings,
		Baud:            r.Log.Baud(),
		ByteCount:       r.Log.ByteCount(),
		ErrorCount:      r.Log.ErrorCount(),
		SymbolCount:     r.Log.Len(),
	}
	if err := enc.Encode(header); err != nil {
		return err
	}

	for i := 0; i < r.Log.Len(); i++ {
		s := r.Log.At(i)
		line := Line{
			Index:        i,
			Symbol:       s,
			StartSeconds: Seconds(s.Start, r.SampleRate),
			EndSeconds:   Seconds(s.End, r.SampleRate),
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}
