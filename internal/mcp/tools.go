package mcp

import "github.com/mark3labs/mcp-go/mcp"

var decodeToolDef = mcp.NewTool("uart_decode",
	mcp.WithDescription("Decode the UART traffic in a logic-analyser capture (.ols, .ols.gz, .cbor, .cbor.zst). "+
		"Returns run statistics, the baud rate estimate and any warnings. The run is stored unless no_store is set."),
	mcp.WithString("capture_path",
		mcp.Required(),
		mcp.Description("Path to the capture file"),
	),
	mcp.WithString("profile",
		mcp.Description("Named settings profile applied before the explicit settings below"),
	),
	mcp.WithObject("roles",
		mcp.Description(`Channel index per line role, e.g. {"rxd": 0, "txd": 1, "cts": 2}. `+
			"Roles: rxd, txd, rts, cts, dtr, dsr, dcd, ri. At least one of rxd or txd is required."),
	),
	mcp.WithNumber("bits",
		mcp.Description("Data bits per frame, 5-8 (default: 8)"),
	),
	mcp.WithString("parity",
		mcp.Description("Parity: none, odd or even (default: none)"),
		mcp.Enum("none", "odd", "even"),
	),
	mcp.WithString("stop_bits",
		mcp.Description("Stop bits: 1, 1.5 or 2 (default: 1)"),
		mcp.Enum("1", "1.5", "2"),
	),
	mcp.WithBoolean("inverted",
		mcp.Description("Treat all lines as idle-low"),
	),
	mcp.WithBoolean("no_store",
		mcp.Description("Decode without recording the run"),
	),
	mcp.WithBoolean("include_symbols",
		mcp.Description("Include every decoded symbol in the response (default: false)"),
	),
)

var runsListToolDef = mcp.NewTool("uart_runs_list",
	mcp.WithDescription("List stored decode runs, newest first."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithNumber("limit",
		mcp.Description("Maximum runs to return (default: 20, max: 100)"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Runs to skip"),
	),
)

var runFetchToolDef = mcp.NewTool("uart_run_fetch",
	mcp.WithDescription("Fetch a stored decode run with one page of its symbols."),
	mcp.WithReadOnlyHintAnnotation(true),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Run ID"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Symbols per page (default: 500, max: 5000)"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Symbols to skip"),
	),
)

var runDeleteToolDef = mcp.NewTool("uart_run_delete",
	mcp.WithDescription("Permanently delete a stored decode run and its symbols."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Run ID"),
	),
)

var runExportToolDef = mcp.NewTool("uart_run_export",
	mcp.WithDescription("Write a stored decode run to a CSV, HTML or JSON Lines file. "+
		"Paths outside ~/.uartscope/exports must be allowed in the configuration."),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Run ID"),
	),
	mcp.WithString("format",
		mcp.Description("csv, html or jsonl (default: from the path extension, else csv)"),
		mcp.Enum("csv", "html", "jsonl"),
	),
	mcp.WithString("path",
		mcp.Description("Output file (default: ~/.uartscope/exports/<id>-<timestamp>.<format>)"),
	),
)
