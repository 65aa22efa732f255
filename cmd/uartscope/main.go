package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/uartscope/internal/config"
	"github.com/hpungsan/uartscope/internal/db"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"decode": true, "synth": true, "runs": true, "show": true,
	"delete": true, "export": true, "profile": true,
	"serve": true, "mcp": true,
	"help": true,
}

// noStoreCommands run without opening the database.
var noStoreCommands = map[string]bool{
	"synth": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a short usage note when run interactively without args.
func printBanner() {
	fmt.Println(`
  uartscope: UART decoder for logic-analyser captures

  Usage: uartscope <command> [options]
         uartscope --help

  MCP server mode requires piped input.`)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Help, version and synth need neither database nor config
	if isHelpOrVersion() || (len(os.Args) >= 2 && noStoreCommands[os.Args[1]]) {
		app := newCLIApp(nil, config.DefaultConfig(), "")
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode() && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'uartscope --help' for usage.\n")
		os.Exit(1)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	baseDir := filepath.Join(homeDir, config.DirName)

	wd, err := os.Getwd()
	if err != nil {
		wd = baseDir
	}
	cfg, err := config.LoadWithRepo(baseDir, wd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	if isCLIMode() {
		app := newCLIApp(database, cfg, baseDir)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			database.Close()
			os.Exit(1)
		}
		return
	}

	// MCP server mode (default when stdin is piped)
	if err := runMCP(database, cfg, baseDir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		database.Close()
		os.Exit(1)
	}
}
