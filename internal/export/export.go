// Package export renders a decode log as CSV, HTML or JSON Lines.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/hpungsan/uartscope/internal/errors"
	"github.com/hpungsan/uartscope/internal/uart"
)

// Format is an export file format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatHTML  Format = "html"
	FormatJSONL Format = "jsonl"
)

// Formats lists the supported formats in display order.
var Formats = []Format{FormatCSV, FormatHTML, FormatJSONL}

// ParseFormat accepts a format name with or without a leading dot.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")))
	if _, ok := writers[f]; !ok {
		return "", errors.NewInvalidRequest(fmt.Sprintf("unsupported export format %q (want csv, html or jsonl)", s))
	}
	return f, nil
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	}
	return "application/x-ndjson"
}

// Report is a decode log plus the context needed to present it.
type Report struct {
	RunID       string
	CapturePath string
	SampleRate  int
	Settings    uart.Settings
	Log         *uart.DecodeLog
}

// writer renders a report to w.
type writer func(w io.Writer, r *Report) error

var writers = map[Format]writer{
	FormatCSV:   writeCSV,
	FormatHTML:  writeHTML,
	FormatJSONL: writeJSONL,
}

// Write renders r to w in the given format.
func Write(w io.Writer, format Format, r *Report) error {
	fn, ok := writers[format]
	if !ok {
		return errors.NewInvalidRequest(fmt.Sprintf("unsupported export format %q", format))
	}
	return fn(w, r)
}

// DisplayTime converts a sample index to seconds with an SI prefix, e.g. "1.25 ms".
func DisplayTime(sample int64, rate int) string {
	if rate <= 0 {
		return fmt.Sprintf("#%d", sample)
	}
	return humanize.SIWithDigits(float64(sample)/float64(rate), 3, "s")
}

// Seconds converts a sample index to seconds.
func Seconds(sample int64, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(sample) / float64(rate)
}

// BaudText formats a baud estimate the way reports show it.
func BaudText(b uart.BaudEstimate) string {
	if !b.Valid {
		return "Baudrate calculation failed!"
	}
	text := fmt.Sprintf("%d (exact: %.2f)", b.BaudRate, b.ExactBaudRate)
	if b.StandardRate != 0 && b.StandardRate != b.BaudRate {
		text += fmt.Sprintf(", nearest standard %d", b.StandardRate)
	}
	return text
}

// LowConfidenceWarning returns the warning for an estimate derived from too
// few samples per bit, or "" if none applies.
func LowConfidenceWarning(b uart.BaudEstimate) string {
	if !b.LowConfidence || b.BitLength <= 0 {
		return ""
	}
	return fmt.Sprintf("The bit length (%.1f samples) is too short for a reliable baud rate estimate. Use a higher sample rate.", b.BitLength)
}

// HexValue formats v with one digit per started nibble of bits.
func HexValue(v, bits int) string {
	width := bits / 4
	if bits%4 != 0 {
		width++
	}
	return fmt.Sprintf("0x%0*X", width, v)
}

// BinValue formats v as a bits-wide binary string.
func BinValue(v, bits int) string {
	return fmt.Sprintf("0b%0*b", bits, v)
}

// ASCIIValue returns the printable character for an 8-bit value, or "".
func ASCIIValue(v, bits int) string {
	if bits != 8 || v < 32 || v > 126 {
		return ""
	}
	return string(rune(v))
}

// IsErrorEvent reports whether an event name denotes a line error.
func IsErrorEvent(name string) bool {
	return strings.HasSuffix(name, "_ERR")
}
