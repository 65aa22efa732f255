package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/uartscope/internal/db"
	"github.com/hpungsan/uartscope/internal/export"
	"github.com/hpungsan/uartscope/internal/uart"
)

// ListRunsInput contains parameters for the ListRuns operation.
type ListRunsInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// ListRunsOutput contains the result of the ListRuns operation.
type ListRunsOutput struct {
	Items      []RunSummary `json:"items"`
	Pagination Pagination   `json:"pagination"`
	Sort       string       `json:"sort"`
}

// ListRuns retrieves stored run summaries, newest first.
func ListRuns(ctx context.Context, database *sql.DB, input ListRunsInput) (*ListRunsOutput, error) {
	limit := clampLimit(input.Limit, DefaultListLimit, MaxListLimit)
	offset := max(input.Offset, 0)

	runs, total, err := db.ListRuns(ctx, database, limit, offset)
	if err != nil {
		return nil, err
	}

	items := make([]RunSummary, 0, len(runs))
	for i := range runs {
		items = append(items, summaryFromRun(&runs[i]))
	}

	return &ListRunsOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}

// FetchRunInput contains parameters for the FetchRun operation.
type FetchRunInput struct {
	ID     string // required
	Limit  int    // symbols per page, default: 500, max: 5000
	Offset int
}

// FetchRunOutput contains the result of the FetchRun operation.
type FetchRunOutput struct {
	Run        RunSummary    `json:"run"`
	Symbols    []uart.Symbol `json:"symbols"`
	Pagination Pagination    `json:"pagination"`
}

// FetchRun retrieves a run summary and one page of its symbols.
func FetchRun(ctx context.Context, database *sql.DB, input FetchRunInput) (*FetchRunOutput, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}

	run, err := db.GetRun(ctx, database, id)
	if err != nil {
		return nil, err
	}

	limit := clampLimit(input.Limit, DefaultSymbolLimit, MaxSymbolLimit)
	offset := max(input.Offset, 0)
	symbols, err := db.ListSymbols(ctx, database, id, limit, offset)
	if err != nil {
		return nil, err
	}

	return &FetchRunOutput{
		Run:     summaryFromRun(run),
		Symbols: symbols,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(symbols) < run.SymbolCount,
			Total:   run.SymbolCount,
		},
	}, nil
}

// LoadReport rebuilds the complete decode log of a stored run.
func LoadReport(ctx context.Context, database *sql.DB, id string) (*export.Report, error) {
	id, err := requireID(id)
	if err != nil {
		return nil, err
	}

	run, err := db.GetRun(ctx, database, id)
	if err != nil {
		return nil, err
	}
	symbols, err := db.ListSymbols(ctx, database, id, 0, 0)
	if err != nil {
		return nil, err
	}

	return &export.Report{
		RunID:       run.ID,
		CapturePath: run.CapturePath,
		SampleRate:  run.SampleRate,
		Settings:    run.Settings,
		Log:         uart.NewDecodeLog(run.Baud, symbols),
	}, nil
}

// DeleteRunInput contains parameters for the DeleteRun operation.
type DeleteRunInput struct {
	ID string
}

// DeleteRunOutput contains the result of the DeleteRun operation.
type DeleteRunOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// DeleteRun permanently removes a run and its symbols.
func DeleteRun(ctx context.Context, database *sql.DB, input DeleteRunInput) (*DeleteRunOutput, error) {
	id, err := requireID(input.ID)
	if err != nil {
		return nil, err
	}

	if err := db.DeleteRun(ctx, database, id); err != nil {
		return nil, err
	}

	return &DeleteRunOutput{
		Deleted: true,
		ID:      id,
	}, nil
}
