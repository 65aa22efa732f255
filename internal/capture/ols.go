package capture

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hpungsan/uartscope/internal/errors"
)

// maxLineBytes bounds a single line of an OLS file.
const maxLineBytes = 1 << 16

// readOLS parses the OpenBench LogicSniffer text format:
//
//	;Rate: 1000000
//	;Channels: 8
//	;AbsoluteLength: 4096
//	00000001@0
//	00000000@120
//
// Header keys other than Rate, Channels and AbsoluteLength are ignored.
func readOLS(r io.Reader) (*Capture, error) {
	c := &Capture{Channels: MaxChannels}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ";") {
			if err := parseOLSHeader(c, line[1:], lineNo); err != nil {
				return nil, err
			}
			continue
		}

		value, index, err := parseOLSSample(line)
		if err != nil {
			return nil, errors.NewInvalidCapture(fmt.Sprintf("line %d: %v", lineNo, err))
		}
		c.Values = append(c.Values, value)
		c.Indices = append(c.Indices, index)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewInvalidCapture(fmt.Sprintf("read capture: %v", err))
	}

	return c, nil
}

// parseOLSHeader applies a "Key: value" header line to c.
func parseOLSHeader(c *Capture, header string, lineNo int) error {
	key, value, ok := strings.Cut(header, ":")
	if !ok {
		return nil
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	switch key {
	case "Rate":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errors.NewInvalidCapture(fmt.Sprintf("line %d: invalid rate %q", lineNo, value))
		}
		c.Rate = n
	case "Channels":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errors.NewInvalidCapture(fmt.Sprintf("line %d: invalid channel count %q", lineNo, value))
		}
		c.Channels = n
	case "AbsoluteLength":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errors.NewInvalidCapture(fmt.Sprintf("line %d: invalid absolute length %q", lineNo, value))
		}
		c.AbsoluteLength = n
	}
	return nil
}

// parseOLSSample parses a "hexvalue@index" data line.
func parseOLSSample(line string) (uint32, int64, error) {
	valueStr, indexStr, ok := strings.Cut(line, "@")
	if !ok {
		return 0, 0, fmt.Errorf("missing @ separator")
	}
	value, err := strconv.ParseUint(strings.TrimSpace(valueStr), 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid sample value %q", valueStr)
	}
	index, err := strconv.ParseInt(strings.TrimSpace(indexStr), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid sample index %q", indexStr)
	}
	return uint32(value), index, nil
}

// writeOLS writes c in the OLS text format.
func writeOLS(w io.Writer, c *Capture) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, ";Size: %d\n", len(c.Values))
	fmt.Fprintf(bw, ";Rate: %d\n", c.Rate)
	fmt.Fprintf(bw, ";Channels: %d\n", c.Channels)
	fmt.Fprintf(bw, ";EnabledChannels: -1\n")
	fmt.Fprintf(bw, ";Compressed: true\n")
	fmt.Fprintf(bw, ";AbsoluteLength: %d\n", c.End())
	for i := range c.Values {
		fmt.Fprintf(bw, "%08x@%d\n", c.Values[i], c.Indices[i])
	}

	return bw.Flush()
}
