package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/uartscope/internal/config"
	"github.com/hpungsan/uartscope/internal/errors"
	"github.com/hpungsan/uartscope/internal/export"
)

// ExportRunInput contains parameters for the ExportRun operation.
type ExportRunInput struct {
	ID     string // required
	Format string // csv, html or jsonl; default: from Path extension, else csv
	Path   string // optional, default: ~/.uartscope/exports/<id>-<timestamp>.<format>
}

// ExportRunOutput contains the result of the ExportRun operation.
type ExportRunOutput struct {
	Path        string        `json:"path"`
	Format      export.Format `json:"format"`
	SymbolCount int           `json:"symbol_count"`
	ExportedAt  int64         `json:"exported_at"`
}

// ExportRun writes a stored run to a file in the requested format.
func ExportRun(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportRunInput) (*ExportRunOutput, error) {
	now := time.Now()

	format, err := exportFormat(input.Format, input.Path)
	if err != nil {
		return nil, err
	}

	report, err := LoadReport(ctx, database, input.ID)
	if err != nil {
		return nil, err
	}

	exportPath := input.Path
	if exportPath == "" {
		exportPath, err = defaultExportPath(report.RunID, format, now)
		if err != nil {
			return nil, err
		}
	}
	if filepath.Ext(exportPath) != format.Extension() {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("path extension must match format %s", format))
	}

	// Validate ALL paths (both user-provided and default)
	if err := ValidatePath(exportPath, cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	if ctx.Err() != nil {
		return nil, errors.NewCancelled("export")
	}

	err = writeAtomic(exportPath, func(w io.Writer) error {
		return export.Write(w, format, report)
	})
	if err != nil {
		return nil, err
	}

	return &ExportRunOutput{
		Path:        exportPath,
		Format:      format,
		SymbolCount: report.Log.Len(),
		ExportedAt:  now.Unix(),
	}, nil
}

// exportFormat picks the explicit format, else the one implied by path.
func exportFormat(format, path string) (export.Format, error) {
	if format != "" {
		return export.ParseFormat(format)
	}
	if path != "" {
		return export.ParseFormat(filepath.Ext(path))
	}
	return export.FormatCSV, nil
}

// defaultExportPath generates the default export path.
// Format: ~/.uartscope/exports/<run id>-<timestamp>.<ext>
func defaultExportPath(runID string, format export.Format, now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s-%s%s", SanitizeForFilename(runID), now.Format("2006-01-02T150405"), format.Extension())
	return filepath.Join(dir, filename), nil
}

// writeFileAtomic replaces path with data.
func writeFileAtomic(path string, data []byte) error {
	return writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// writeAtomic writes to a temp file next to path, then renames it into place
// so an existing file survives a failed write.
func writeAtomic(path string, fill func(w io.Writer) error) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidRequest) {
			return err
		}
		return errors.NewInternal(fmt.Errorf("failed to create file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	bw := bufio.NewWriter(file)
	if err := fill(bw); err != nil {
		if _, ok := err.(*errors.ScopeError); ok {
			return err
		}
		return errors.NewInternal(err)
	}
	if err := bw.Flush(); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}

	// Close before rename (required on Windows; fine elsewhere).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("destination is a symlink")
	}

	// On Windows, os.Rename fails if the destination exists. Fail safely
	// instead of a non-atomic delete+rename.
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("destination already exists; overwriting is not supported on Windows yet")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize file: %w", err))
	}

	success = true
	return nil
}
