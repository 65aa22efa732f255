package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/uartscope/internal/config"
	"github.com/hpungsan/uartscope/internal/errors"
	"github.com/hpungsan/uartscope/internal/metrics"
	"github.com/hpungsan/uartscope/internal/ops"
	"github.com/hpungsan/uartscope/internal/uart"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db         *sql.DB
	cfg        *config.Config
	metrics    *metrics.Metrics
	profileDir string
}

// NewHandlers creates a new Handlers instance. m may be nil.
func NewHandlers(db *sql.DB, cfg *config.Config, m *metrics.Metrics, profileDir string) *Handlers {
	return &Handlers{db: db, cfg: cfg, metrics: m, profileDir: profileDir}
}

// DecodeRequest represents the arguments for uart_decode.
type DecodeRequest struct {
	CapturePath    string         `json:"capture_path"`
	Profile        string         `json:"profile,omitempty"`
	Roles          map[string]int `json:"roles,omitempty"`
	Bits           int            `json:"bits,omitempty"`
	Parity         string         `json:"parity,omitempty"`
	StopBits       string         `json:"stop_bits,omitempty"`
	Inverted       *bool          `json:"inverted,omitempty"`
	NoStore        bool           `json:"no_store,omitempty"`
	IncludeSymbols bool           `json:"include_symbols,omitempty"`
}

// DecodeResponse is the uart_decode result. Log is present only when
// include_symbols was set.
type DecodeResponse struct {
	Run      ops.RunSummary  `json:"run"`
	Stored   bool            `json:"stored"`
	Warnings []string        `json:"warnings,omitempty"`
	Log      *uart.DecodeLog `json:"log,omitempty"`
}

// ListRequest represents the arguments for uart_runs_list.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// FetchRequest represents the arguments for uart_run_fetch.
type FetchRequest struct {
	ID     string `json:"id"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// DeleteRequest represents the arguments for uart_run_delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// ExportRequest represents the arguments for uart_run_export.
type ExportRequest struct {
	ID     string `json:"id"`
	Format string `json:"format,omitempty"`
	Path   string `json:"path,omitempty"`
}

// HandleDecode handles the uart_decode tool call.
func (h *Handlers) HandleDecode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DecodeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Decode(ctx, h.db, h.cfg, h.metrics, ops.DecodeInput{
		CapturePath: input.CapturePath,
		Profile:     input.Profile,
		ProfileDir:  h.profileDir,
		Settings: ops.LineSettings{
			Roles:    input.Roles,
			Bits:     input.Bits,
			Parity:   input.Parity,
			StopBits: input.StopBits,
			Inverted: input.Inverted,
		},
		NoStore: input.NoStore,
	})
	if err != nil {
		return errorResult(err), nil
	}

	resp := DecodeResponse{
		Run:      result.Run,
		Stored:   result.Stored,
		Warnings: result.Warnings,
	}
	if input.IncludeSymbols {
		resp.Log = result.Log
	}
	return successResult(resp)
}

// HandleList handles the uart_runs_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListRuns(ctx, h.db, ops.ListRunsInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFetch handles the uart_run_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FetchRun(ctx, h.db, ops.FetchRunInput{
		ID:     input.ID,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the uart_run_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeleteRun(ctx, h.db, ops.DeleteRunInput{ID: input.ID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the uart_run_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ExportRun(ctx, h.db, h.cfg, ops.ExportRunInput{
		ID:     input.ID,
		Format: input.Format,
		Path:   input.Path,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// errorResult creates an MCP error result from an error.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var sErr *errors.ScopeError
	if stderrors.As(err, &sErr) {
		// Keep any wrapping context in front of the structured message
		message := sErr.Message
		if prefix := strings.TrimSuffix(err.Error(), sErr.Error()); prefix != err.Error() {
			message = prefix + message
		}

		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": message,
			"status":  sErr.Status,
		}
		// Internal details may carry file paths or SQL errors
		if sErr.Code != errors.ErrInternal && sErr.Details != nil {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
