package ops

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/uartscope/internal/config"
	"github.com/hpungsan/uartscope/internal/errors"
	"github.com/hpungsan/uartscope/internal/uart"
)

// profileExt is the file extension of stored channel profiles.
const profileExt = ".yaml"

var profileNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Profile is a named, reusable decoder configuration.
type Profile struct {
	Name         string `yaml:"-" json:"name"`
	LineSettings `yaml:",inline"`
}

// ProfilesDir returns the profile directory under a uartscope base directory.
func ProfilesDir(baseDir string) string {
	return filepath.Join(baseDir, "profiles")
}

// normalizeProfileName lowercases and validates a profile name. Names map
// directly to file names, so only [a-z0-9_-] is accepted.
func normalizeProfileName(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", errors.NewInvalidRequest("profile name is required")
	}
	if !profileNameRe.MatchString(n) {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid profile name %q (use letters, digits, '-' and '_')", name))
	}
	return n, nil
}

// SaveProfileInput contains parameters for the SaveProfile operation.
type SaveProfileInput struct {
	Dir      string
	Name     string
	Settings LineSettings
}

// SaveProfileOutput contains the result of the SaveProfile operation.
type SaveProfileOutput struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// SaveProfile validates and writes a profile, replacing any profile of the
// same name.
func SaveProfile(cfg *config.Config, input SaveProfileInput) (*SaveProfileOutput, error) {
	name, err := normalizeProfileName(input.Name)
	if err != nil {
		return nil, err
	}
	if len(input.Settings.Roles) == 0 {
		return nil, errors.NewInvalidRequest("profile must assign at least one role")
	}

	// Reject profiles that could never produce a valid channel config
	s, err := ResolveSettings(cfg, input.Settings)
	if err != nil {
		return nil, err
	}
	if _, err := uart.NewChannelConfig(s); err != nil {
		return nil, err
	}

	data, err := yaml.Marshal(Profile{Name: name, LineSettings: input.Settings})
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := os.MkdirAll(input.Dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create profile directory: %w", err))
	}
	path := filepath.Join(input.Dir, name+profileExt)
	if err := writeFileAtomic(path, data); err != nil {
		return nil, err
	}

	return &SaveProfileOutput{Name: name, Path: path}, nil
}

// LoadProfile reads the named profile from dir.
func LoadProfile(dir, name string) (*Profile, error) {
	n, err := normalizeProfileName(name)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, n+profileExt)
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.NewConfiguration("profile", fmt.Sprintf("invalid profile %s: %v", n, err))
	}
	p.Name = n
	return &p, nil
}

// ListProfiles returns the names of all profiles in dir, sorted. A missing
// directory yields an empty list.
func ListProfiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, errors.NewInternal(err)
	}

	names := []string{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != profileExt {
			continue
		}
		name := strings.TrimSuffix(e.Name(), profileExt)
		if profileNameRe.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
