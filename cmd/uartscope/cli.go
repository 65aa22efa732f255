package main

import (
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/uartscope/internal/capture"
	"github.com/hpungsan/uartscope/internal/config"
	"github.com/hpungsan/uartscope/internal/errors"
	"github.com/hpungsan/uartscope/internal/export"
	"github.com/hpungsan/uartscope/internal/mcp"
	"github.com/hpungsan/uartscope/internal/metrics"
	"github.com/hpungsan/uartscope/internal/ops"
	"github.com/hpungsan/uartscope/internal/synth"
	"github.com/hpungsan/uartscope/internal/uart"
	"github.com/hpungsan/uartscope/internal/web"
)

// roleNames are the line roles accepted as channel flags, e.g. --rxd 0.
var roleNames = []string{"rxd", "txd", "cts", "rts", "dtr", "dsr", "dcd", "ri"}

// newCLIApp creates the CLI application with all commands.
// baseDir holds the profiles directory; db may be nil for commands that never store.
func newCLIApp(db *sql.DB, cfg *config.Config, baseDir string) *cli.App {
	app := &cli.App{
		Name:    "uartscope",
		Usage:   "Decode UART traffic from logic-analyser captures",
		Version: Version,
		Commands: []*cli.Command{
			decodeCmd(db, cfg, baseDir),
			synthCmd(),
			runsCmd(db),
			showCmd(db),
			deleteCmd(db),
			exportCmd(db, cfg),
			profileCmd(cfg, baseDir),
			serveCmd(db, cfg),
			mcpCmd(db, cfg, baseDir),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// lineFlags are the channel and protocol flags shared by decode and profile save.
func lineFlags() []cli.Flag {
	flags := make([]cli.Flag, 0, len(roleNames)+4)
	for _, role := range roleNames {
		flags = append(flags, &cli.IntFlag{Name: role, Usage: "Channel carrying " + strings.ToUpper(role)})
	}
	return append(flags,
		&cli.IntFlag{Name: "bits", Aliases: []string{"b"}, Usage: "Data bits per frame (5-8)"},
		&cli.StringFlag{Name: "parity", Aliases: []string{"p"}, Usage: "Parity: none|odd|even"},
		&cli.StringFlag{Name: "stop-bits", Aliases: []string{"s"}, Usage: "Stop bits: 1|1.5|2"},
		&cli.BoolFlag{Name: "inverted", Usage: "Lines idle low"},
	)
}

// lineSettings collects the line flags that were set explicitly.
func lineSettings(c *cli.Context) ops.LineSettings {
	var s ops.LineSettings
	for _, role := range roleNames {
		if c.IsSet(role) {
			if s.Roles == nil {
				s.Roles = make(map[string]int)
			}
			s.Roles[role] = c.Int(role)
		}
	}
	s.Bits = c.Int("bits")
	s.Parity = c.String("parity")
	s.StopBits = c.String("stop-bits")
	if c.IsSet("inverted") {
		inverted := c.Bool("inverted")
		s.Inverted = &inverted
	}
	return s
}

// decodeResult is the decode command output. Log is present only with --symbols.
type decodeResult struct {
	Run      ops.RunSummary  `json:"run"`
	Stored   bool            `json:"stored"`
	Warnings []string        `json:"warnings,omitempty"`
	Log      *uart.DecodeLog `json:"log,omitempty"`
}

// decodeCmd creates the decode command.
func decodeCmd(db *sql.DB, cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode a capture file and store the run",
		ArgsUsage: "<capture>",
		Flags: append(lineFlags(),
			&cli.StringFlag{Name: "profile", Usage: "Named settings profile (explicit flags override it)"},
			&cli.BoolFlag{Name: "no-store", Usage: "Decode without recording the run"},
			&cli.BoolFlag{Name: "symbols", Usage: "Include every decoded symbol in the output"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Suppress warnings on stderr"},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one capture file is required"))
			}

			output, err := ops.Decode(c.Context, db, cfg, nil, ops.DecodeInput{
				CapturePath: c.Args().First(),
				Profile:     c.String("profile"),
				ProfileDir:  ops.ProfilesDir(baseDir),
				Settings:    lineSettings(c),
				NoStore:     c.Bool("no-store"),
			})
			if err != nil {
				return outputError(err)
			}

			if !c.Bool("quiet") {
				for _, w := range output.Warnings {
					fmt.Fprintf(c.App.ErrWriter, "WARN: %s\n", w)
				}
			}

			result := decodeResult{
				Run:      output.Run,
				Stored:   output.Stored,
				Warnings: output.Warnings,
			}
			if c.Bool("symbols") {
				result.Log = output.Log
			}
			return outputJSON(c.App.Writer, result)
		},
	}
}

// synthCmd creates the synth command.
func synthCmd() *cli.Command {
	return &cli.Command{
		Name:  "synth",
		Usage: "Write a synthetic UART capture, optionally with injected faults",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Required: true, Usage: "Capture file (.ols, .cbor, optionally .gz or .zst)"},
			&cli.IntFlag{Name: "rate", Value: 1_000_000, Usage: "Sample rate in Hz"},
			&cli.IntFlag{Name: "baud", Value: 9600, Usage: "Baud rate"},
			&cli.IntFlag{Name: "channels", Value: 4, Usage: "Channel count"},
			&cli.IntFlag{Name: "bits", Aliases: []string{"b"}, Value: 8, Usage: "Data bits per frame (5-8)"},
			&cli.StringFlag{Name: "parity", Aliases: []string{"p"}, Value: "none", Usage: "Parity: none|odd|even"},
			&cli.StringFlag{Name: "stop-bits", Aliases: []string{"s"}, Value: "1", Usage: "Stop bits: 1|1.5|2"},
			&cli.BoolFlag{Name: "inverted", Usage: "Lines idle low"},
			&cli.StringFlag{Name: "rx-text", Usage: "Bytes sent on RxD"},
			&cli.StringFlag{Name: "tx-text", Usage: "Bytes sent on TxD"},
			&cli.IntFlag{Name: "rxd", Value: 0, Usage: "RxD channel"},
			&cli.IntFlag{Name: "txd", Value: 1, Usage: "TxD channel"},
			&cli.Float64Flag{Name: "tx-offset", Value: 0.5, Usage: "TxD delay in bit periods"},
			&cli.Float64Flag{Name: "gap", Value: 1, Usage: "Idle bit periods between frames"},
			&cli.StringSliceFlag{Name: "fault", Usage: "Fault as line:frame:kind, kind is stop, short (half stop bit, next frame follows) or bitN (e.g. rx:2:stop)"},
			&cli.StringSliceFlag{Name: "toggle", Usage: "Control edge as channel:sample:level (e.g. 2:5000:1)"},
		},
		Action: func(c *cli.Context) error {
			parity, err := uart.ParseParity(c.String("parity"))
			if err != nil {
				return outputError(errors.NewConfiguration("parity", err.Error()))
			}
			stop, err := uart.ParseStopBits(c.String("stop-bits"))
			if err != nil {
				return outputError(errors.NewConfiguration("stop_bits", err.Error()))
			}

			rx := synth.Line{Channel: c.Int("rxd"), Data: []byte(c.String("rx-text")), Faults: map[int]synth.Fault{}}
			tx := synth.Line{Channel: c.Int("txd"), Data: []byte(c.String("tx-text")), Offset: c.Float64("tx-offset"), Faults: map[int]synth.Fault{}}
			for _, arg := range c.StringSlice("fault") {
				line, frame, fault, err := parseFault(arg)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				target := rx.Faults
				if line == "tx" {
					target = tx.Faults
				}
				if prev, ok := target[frame]; ok {
					fault = synth.Combine(prev, fault)
				}
				target[frame] = fault
			}

			cfg := synth.Config{
				SampleRate: c.Int("rate"),
				BaudRate:   c.Int("baud"),
				Channels:   c.Int("channels"),
				Bits:       c.Int("bits"),
				Parity:     parity,
				Stop:       stop,
				Inverted:   c.Bool("inverted"),
				LeadIn:     2,
				Gap:        c.Float64("gap"),
				Tail:       2,
			}
			if len(rx.Data) > 0 {
				cfg.Lines = append(cfg.Lines, rx)
			}
			if len(tx.Data) > 0 {
				cfg.Lines = append(cfg.Lines, tx)
			}
			if len(cfg.Lines) == 0 {
				return outputError(errors.NewInvalidRequest("at least one of --rx-text or --tx-text is required"))
			}
			for _, arg := range c.StringSlice("toggle") {
				tg, err := parseToggle(arg)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				cfg.Toggles = append(cfg.Toggles, tg)
			}

			capt, err := synth.Encode(cfg)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			path := c.String("output")
			if err := capture.Save(path, capt); err != nil {
				return outputError(err)
			}

			return outputJSON(c.App.Writer, map[string]any{
				"path":        path,
				"sample_rate": capt.Rate,
				"channels":    capt.Channels,
				"samples":     capt.Len(),
				"length":      capt.End(),
				"duration":    export.DisplayTime(capt.End(), capt.Rate),
			})
		},
	}
}

// runsCmd creates the runs command.
func runsCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List stored decode runs, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Usage: "Skip results"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ListRuns(c.Context, db, ops.ListRunsInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// showCmd creates the show command.
func showCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a stored run with one page of its symbols",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultSymbolLimit, Usage: "Symbols per page"},
			&cli.IntFlag{Name: "offset", Usage: "Skip symbols"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.FetchRun(c.Context, db, ops.FetchRunInput{
				ID:     c.Args().First(),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Permanently delete a stored run",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.DeleteRun(c.Context, db, ops.DeleteRunInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export a stored run to CSV, HTML or JSON Lines",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "csv|html|jsonl (default: from --output, else csv)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output path (default: ~/.uartscope/exports/<id>-<timestamp>.<format>)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ExportRun(c.Context, db, cfg, ops.ExportRunInput{
				ID:     c.Args().First(),
				Format: c.String("format"),
				Path:   c.String("output"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, output)
		},
	}
}

// profileCmd creates the profile command and its subcommands.
func profileCmd(cfg *config.Config, baseDir string) *cli.Command {
	dir := ops.ProfilesDir(baseDir)
	return &cli.Command{
		Name:  "profile",
		Usage: "Manage named channel and protocol settings",
		Subcommands: []*cli.Command{
			{
				Name:      "save",
				Usage:     "Save or replace a profile",
				ArgsUsage: "<name>",
				Flags:     lineFlags(),
				Action: func(c *cli.Context) error {
					output, err := ops.SaveProfile(cfg, ops.SaveProfileInput{
						Dir:      dir,
						Name:     c.Args().First(),
						Settings: lineSettings(c),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, output)
				},
			},
			{
				Name:      "show",
				Usage:     "Show a profile",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					p, err := ops.LoadProfile(dir, c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, p)
				},
			},
			{
				Name:  "list",
				Usage: "List profile names",
				Action: func(c *cli.Context) error {
					names, err := ops.ListProfiles(dir)
					if err != nil {
						return outputError(err)
					}
					return outputJSON(c.App.Writer, map[string]any{"profiles": names})
				},
			},
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Browse stored runs in a web UI",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "Port to listen on"},
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind to"},
			&cli.BoolFlag{Name: "no-metrics", Usage: "Disable the /metrics endpoint"},
		},
		Action: func(c *cli.Context) error {
			var m *metrics.Metrics
			if !c.Bool("no-metrics") {
				m = metrics.New()
			}
			srv := web.NewServer(db, cfg, m, Version, c.String("bind"), c.Int("port"))
			if err := web.Run(srv); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// mcpCmd creates the mcp command.
func mcpCmd(db *sql.DB, cfg *config.Config, baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the decode tools over MCP (stdio)",
		Action: func(c *cli.Context) error {
			return runMCP(db, cfg, baseDir)
		},
	}
}

// runMCP warns about unknown disabled tools and serves MCP over stdio.
func runMCP(db *sql.DB, cfg *config.Config, baseDir string) error {
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Printf("WARNING: unknown disabled_tools ignored: %s", strings.Join(unknown, ", "))
	}
	return mcp.Run(db, cfg, metrics.New(), ops.ProfilesDir(baseDir), Version)
}

// Helper functions

// outputJSON writes v to w as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var sErr *errors.ScopeError
	if stderrors.As(err, &sErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// parseFault parses "line:frame:kind" where line is rx or tx and kind is
// "stop" or "bitN".
func parseFault(s string) (string, int, synth.Fault, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return "", 0, synth.Fault{}, fmt.Errorf("invalid fault %q: want line:frame:kind", s)
	}
	line := strings.ToLower(parts[0])
	if line != "rx" && line != "tx" {
		return "", 0, synth.Fault{}, fmt.Errorf("invalid fault %q: line must be rx or tx", s)
	}
	frame, err := strconv.Atoi(parts[1])
	if err != nil || frame < 0 {
		return "", 0, synth.Fault{}, fmt.Errorf("invalid fault %q: frame must be a non-negative integer", s)
	}

	kind := strings.ToLower(parts[2])
	switch kind {
	case "stop":
		return line, frame, synth.DropStop(), nil
	case "short":
		return line, frame, synth.ShortStop(0.5), nil
	}
	if n, ok := strings.CutPrefix(kind, "bit"); ok {
		bit, err := strconv.Atoi(n)
		if err == nil && bit >= 0 && bit < 9 {
			return line, frame, synth.FlipBit(bit), nil
		}
	}
	return "", 0, synth.Fault{}, fmt.Errorf("invalid fault %q: kind must be stop, short or bit0-bit8", s)
}

// parseToggle parses "channel:sample:level".
func parseToggle(s string) (synth.Toggle, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return synth.Toggle{}, fmt.Errorf("invalid toggle %q: want channel:sample:level", s)
	}
	ch, err1 := strconv.Atoi(parts[0])
	at, err2 := strconv.ParseInt(parts[1], 10, 64)
	level, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || at < 0 || (level != 0 && level != 1) {
		return synth.Toggle{}, fmt.Errorf("invalid toggle %q: want channel:sample:level with level 0 or 1", s)
	}
	return synth.Toggle{Channel: ch, At: at, Level: uint32(level)}, nil
}
