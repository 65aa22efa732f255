package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/uartscope/internal/config"
	"github.com/hpungsan/uartscope/internal/errors"
)

func TestValidatePath_TraversalRejected(t *testing.T) {
	cfg := config.DefaultConfig()

	tests := []struct {
		name string
		path string
	}{
		{"parent traversal", "../report.csv"},
		{"deep traversal", "../../etc/report.html"},
		{"mid-path traversal", "/tmp/../etc/report.jsonl"},
		{"hidden in path", "/tmp/safe/../../../etc/shadow.csv"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePath(tc.path, cfg)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestValidatePath_ExtensionRequired(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true

	tmpDir := t.TempDir()
	for _, name := range []string{"report", "report.json", "report.txt", "report.ols"} {
		t.Run(name, func(t *testing.T) {
			err := ValidatePath(filepath.Join(tmpDir, name), cfg)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}

	for _, name := range []string{"report.csv", "report.html", "report.jsonl"} {
		if err := ValidatePath(filepath.Join(tmpDir, name), cfg); err != nil {
			t.Errorf("ValidatePath(%s) = %v, want nil", name, err)
		}
	}
}

func TestValidatePath_DefaultExportsDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	cfg := config.DefaultConfig()

	dir, err := DefaultExportsDir()
	if err != nil {
		t.Fatalf("DefaultExportsDir failed: %v", err)
	}
	if dir != filepath.Join(home, ".uartscope", "exports") {
		t.Errorf("DefaultExportsDir = %q", dir)
	}

	if err := ValidatePath(filepath.Join(dir, "run.csv"), cfg); err != nil {
		t.Errorf("expected success in default exports dir, got: %v", err)
	}

	err = ValidatePath(filepath.Join(t.TempDir(), "run.csv"), cfg)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest outside allowed dirs, got: %v", err)
	}
}

func TestValidatePath_AllowedPaths(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	tmpDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{tmpDir, "relative/ignored"}

	if err := ValidatePath(filepath.Join(tmpDir, "run.html"), cfg); err != nil {
		t.Errorf("expected success for path in AllowedPaths, got: %v", err)
	}

	err := ValidatePath(filepath.Join(t.TempDir(), "run.html"), cfg)
	if err == nil {
		t.Error("expected error for path outside AllowedPaths, got nil")
	}
}

func TestValidatePath_NestedPathRejected(t *testing.T) {
	allowedDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowedDir}

	subDir := filepath.Join(allowedDir, "subdir")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	err := ValidatePath(filepath.Join(subDir, "out.jsonl"), cfg)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}
}

func TestValidatePath_SymlinkFileRejected(t *testing.T) {
	allowedDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{allowedDir}

	targetFile := filepath.Join(t.TempDir(), "secret.csv")
	if err := os.WriteFile(targetFile, []byte("x"), 0600); err != nil {
		t.Fatalf("failed to create target file: %v", err)
	}

	symlink := filepath.Join(allowedDir, "out.csv")
	if err := os.Symlink(targetFile, symlink); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}

	err := ValidatePath(symlink, cfg)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest, got: %v", err)
	}

	// AllowUnsafePaths lifts directory restrictions, not symlink ones
	cfg.AllowUnsafePaths = true
	err = ValidatePath(symlink, cfg)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("expected ErrInvalidRequest with unsafe paths, got: %v", err)
	}
}

func TestContainsTraversal(t *testing.T) {
	tests := []struct {
		path     string
		contains bool
	}{
		{"/home/user/file.csv", false},
		{"../file.csv", true},
		{"/home/../etc/passwd", true},
		{"./file.csv", false},
		{"/home/user/.hidden/file.csv", false},
		{"file..name.csv", false},
		{"/tmp/a/b/../c.jsonl", true},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			if got := containsTraversal(tc.path); got != tc.contains {
				t.Errorf("containsTraversal(%q) = %v, want %v", tc.path, got, tc.contains)
			}
		})
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ulid", "01HRUN00000000000000000001", "01HRUN00000000000000000001"},
		{"forward slash", "path/to/file", "path-to-file"},
		{"backslash", "path\\to\\file", "path-to-file"},
		{"double dots", "foo..bar", "foo-bar"},
		{"traversal attempt", "../../../etc/passwd", "etc-passwd"},
		{"null bytes", "foo\x00bar", "foobar"},
		{"empty after sanitize", "../../..", "unnamed"},
		{"multiple dashes collapse", "a---b", "a-b"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeForFilename(tc.input); got != tc.expected {
				t.Errorf("SanitizeForFilename(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}
