package export

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hpungsan/uartscope/internal/uart"
)

// md renders GFM tables; raw HTML in the source stays escaped.
var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// Markdown builds the report document: statistics first, then one table row
// per symbol.
func Markdown(r *Report) string {
	var b strings.Builder
	baud := r.Log.Baud()

	b.WriteString("# UART decode report\n\n")
	if r.RunID != "" {
		fmt.Fprintf(&b, "Run `%s`", r.RunID)
		if r.CapturePath != "" {
			fmt.Fprintf(&b, " of `%s`", r.CapturePath)
		}
		b.WriteString("\n\n")
	}

	b.WriteString("## Statistics\n\n")
	b.WriteString("| Statistic | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Decoded bytes | %d |\n", r.Log.ByteCount())
	fmt.Fprintf(&b, "| Detected bus errors | %d |\n", r.Log.ErrorCount())
	fmt.Fprintf(&b, "| Baudrate | %s |\n", BaudText(baud))
	if baud.Valid {
		fmt.Fprintf(&b, "| Bit length | %.2f samples |\n", baud.BitLength)
		fmt.Fprintf(&b, "| Jitter | %.3f bit |\n", baud.Jitter)
	}
	fmt.Fprintf(&b, "| Settings | %s |\n", SettingsText(r.Settings))
	b.WriteString("\n")

	if warn := LowConfidenceWarning(baud); warn != "" {
		fmt.Fprintf(&b, "**Warning:** %s\n\n", warn)
	}

	b.WriteString("## Data\n\n")
	if r.Log.Len() == 0 {
		b.WriteString("No symbols decoded.\n")
		return b.String()
	}

	b.WriteString("| # | Time | RxD Hex | RxD Bin | RxD Dec | RxD ASCII | TxD Hex | TxD Bin | TxD Dec | TxD ASCII | Event | Error |\n")
	b.WriteString("|---:|---|---|---|---:|---|---|---|---:|---|---|---|\n")
	for i := 0; i < r.Log.Len(); i++ {
		s := r.Log.At(i)
		rx := make([]string, 4)
		tx := make([]string, 4)
		var event string

		if s.IsData() {
			cells := []string{
				HexValue(s.Value, r.Settings.Bits),
				BinValue(s.Value, r.Settings.Bits),
				fmt.Sprintf("%d", s.Value),
				escapeMarkdown(ASCIIValue(s.Value, r.Settings.Bits)),
			}
			if s.Scope == uart.ScopeTx {
				tx = cells
			} else {
				rx = cells
			}
		} else {
			event = s.Event
			if s.Scope != uart.ScopeBoth {
				event = fmt.Sprintf("%s (%s)", s.Event, s.Scope)
			}
			if IsErrorEvent(s.Event) {
				event = "**" + event + "**"
			}
		}

		errText := string(s.Error)
		if errText != "" {
			errText = "**" + errText + "**"
		}

		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s |\n",
			i, DisplayTime(s.Start, r.SampleRate),
			strings.Join(rx, " | "), strings.Join(tx, " | "),
			event, errText)
	}
	return b.String()
}

// RenderMarkdown converts markdown to an HTML fragment.
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func writeHTML(w io.Writer, r *Report) error {
	body, err := RenderMarkdown(Markdown(r))
	if err != nil {
		return err
	}

	title := "UART decode report"
	if r.RunID != "" {
		title += " " + r.RunID
	}
	_, err = fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 2px 6px; font-family: monospace; }
strong { color: #b00; }
</style>
</head>
<body>
%s</body>
</html>
`, html.EscapeString(title), body)
	return err
}

// SettingsText renders protocol parameters in the usual short form, e.g. "8E1".
func SettingsText(s uart.Settings) string {
	parity := "N"
	switch s.Parity {
	case uart.ParityOdd:
		parity = "O"
	case uart.ParityEven:
		parity = "E"
	}
	text := fmt.Sprintf("%d%s%s", s.Bits, parity, s.Stop)
	if s.Inverted {
		text += ", inverted"
	}
	return text
}

// escapeMarkdown backslash-escapes ASCII punctuation so single characters
// render literally inside a table cell.
func escapeMarkdown(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < 128 && strings.ContainsRune("\\`*_{}[]()#+-.!|<>&~\"'", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
