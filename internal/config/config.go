package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// DirName is the name of both the global (~/.uartscope) and repo (.uartscope) config directories.
const DirName = ".uartscope"

// Config holds application configuration.
type Config struct {
	// DefaultBits is the data bit count used when a decode request gives none
	DefaultBits int `json:"default_bits"`

	// DefaultParity is "none", "odd" or "even"
	DefaultParity string `json:"default_parity,omitempty"`

	// DefaultStopBits is "1", "1.5" or "2"
	DefaultStopBits string `json:"default_stop_bits,omitempty"`

	// LowConfidenceBitLength is the samples-per-bit count below which a baud
	// estimate is flagged as low confidence.
	LowConfidenceBitLength float64 `json:"low_confidence_bit_length,omitempty"`

	// MinBitLength is the smallest bit period, in samples, accepted as a valid estimate.
	MinBitLength float64 `json:"min_bit_length,omitempty"`

	// StartBitTolerance is the fraction of a bit period a start bit may fall short by.
	StartBitTolerance float64 `json:"start_bit_tolerance,omitempty"`

	// AllowedPaths is an allowlist of directories for export operations.
	// Paths outside ~/.uartscope/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export.
	// When true, any directory is allowed (but symlink and extension checks still apply).
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultBits:            8,
		DefaultParity:          "none",
		DefaultStopBits:        "1",
		LowConfidenceBitLength: 15,
		MinBitLength:           2,
		StartBitTolerance:      0.25,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.uartscope.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.uartscope) and repo (.uartscope) directories.
// Repo config is found by walking upward from startDir to find the nearest .uartscope/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .uartscope/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, DirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		DefaultBits:            pick(overlay.DefaultBits, base.DefaultBits),
		DefaultParity:          pick(overlay.DefaultParity, base.DefaultParity),
		DefaultStopBits:        pick(overlay.DefaultStopBits, base.DefaultStopBits),
		LowConfidenceBitLength: pick(overlay.LowConfidenceBitLength, base.LowConfidenceBitLength),
		MinBitLength:           pick(overlay.MinBitLength, base.MinBitLength),
		StartBitTolerance:      pick(overlay.StartBitTolerance, base.StartBitTolerance),
		DBMaxOpenConns:         pick(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:         pick(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// pick returns overlay if it is non-zero, else base.
func pick[T comparable](overlay, base T) T {
	var zero T
	if overlay != zero {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
