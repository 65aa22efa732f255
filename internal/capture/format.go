package capture

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/hpungsan/uartscope/internal/errors"
)

// Format identifies the encoding of a capture file.
type Format string

const (
	FormatOLS  Format = "ols"  // OLS text, "hexvalue@index" lines
	FormatCBOR Format = "cbor" // CBOR-encoded Capture
)

// Compression identifies an optional outer compression layer.
type Compression string

const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gz"
	CompressionZstd Compression = "zst"
)

// DetectFormat derives format and compression from a file name, e.g.
// "bus.ols", "bus.cbor.zst", "bus.ols.gz".
func DetectFormat(path string) (Format, Compression, error) {
	name := strings.ToLower(filepath.Base(path))

	comp := CompressionNone
	switch {
	case strings.HasSuffix(name, ".gz"):
		comp = CompressionGzip
		name = strings.TrimSuffix(name, ".gz")
	case strings.HasSuffix(name, ".zst"):
		comp = CompressionZstd
		name = strings.TrimSuffix(name, ".zst")
	}

	switch filepath.Ext(name) {
	case ".ols", ".txt":
		return FormatOLS, comp, nil
	case ".cbor":
		return FormatCBOR, comp, nil
	}
	return "", comp, errors.NewInvalidRequest(fmt.Sprintf("unrecognised capture file extension: %s", filepath.Base(path)))
}

// Open reads and validates the capture stored at path.
func Open(path string) (*Capture, error) {
	format, comp, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}
	defer f.Close()

	r, closeFn, err := decompress(f, comp)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	return Read(r, format)
}

// Read decodes a capture from r and validates it.
func Read(r io.Reader, format Format) (*Capture, error) {
	var (
		c   *Capture
		err error
	)
	switch format {
	case FormatOLS:
		c, err = readOLS(r)
	case FormatCBOR:
		c = &Capture{}
		if decErr := cbor.NewDecoder(r).Decode(c); decErr != nil {
			err = errors.NewInvalidCapture(fmt.Sprintf("decode cbor capture: %v", decErr))
		}
	default:
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unsupported capture format: %q", format))
	}
	if err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Write encodes c to w in the given format.
func Write(w io.Writer, c *Capture, format Format) error {
	switch format {
	case FormatOLS:
		return writeOLS(w, c)
	case FormatCBOR:
		return cbor.NewEncoder(w).Encode(c)
	}
	return errors.NewInvalidRequest(fmt.Sprintf("unsupported capture format: %q", format))
}

// Save writes c to path, choosing format and compression from the file name.
func Save(path string, c *Capture) error {
	format, comp, err := DetectFormat(path)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("create capture file: %w", err))
	}
	defer f.Close()

	var w io.WriteCloser
	switch comp {
	case CompressionGzip:
		w = gzip.NewWriter(f)
	case CompressionZstd:
		zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return errors.NewInternal(err)
		}
		w = zw
	default:
		w = nopWriteCloser{f}
	}

	if err := Write(w, c, format); err != nil {
		w.Close()
		return errors.NewInternal(err)
	}
	if err := w.Close(); err != nil {
		return errors.NewInternal(err)
	}
	return f.Close()
}

// decompress wraps r according to comp. The returned func releases decoder resources.
func decompress(r io.Reader, comp Compression) (io.Reader, func(), error) {
	switch comp {
	case CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, errors.NewInvalidCapture(fmt.Sprintf("open gzip stream: %v", err))
		}
		return gr, func() { gr.Close() }, nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, errors.NewInvalidCapture(fmt.Sprintf("open zstd stream: %v", err))
		}
		return zr, zr.Close, nil
	}
	return r, func() {}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
