package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/uartscope/internal/errors"
)

func TestProfile_SaveLoadList(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "profiles")

	names, err := ListProfiles(dir)
	require.NoError(t, err)
	require.Empty(t, names)

	out, err := SaveProfile(nil, SaveProfileInput{
		Dir:  dir,
		Name: " Bench-8E1 ",
		Settings: LineSettings{
			Roles:    map[string]int{"RxD": 0, "txd": 1, "cts": 3},
			Bits:     8,
			Parity:   "even",
			StopBits: "1.5",
			Inverted: boolPtr(true),
		},
	})
	require.NoError(t, err)
	require.Equal(t, "bench-8e1", out.Name)
	require.Equal(t, filepath.Join(dir, "bench-8e1.yaml"), out.Path)

	p, err := LoadProfile(dir, "BENCH-8E1")
	require.NoError(t, err)
	require.Equal(t, "bench-8e1", p.Name)
	require.Equal(t, map[string]int{"RxD": 0, "txd": 1, "cts": 3}, p.Roles)
	require.Equal(t, "even", p.Parity)
	require.Equal(t, "1.5", p.StopBits)
	require.NotNil(t, p.Inverted)
	require.True(t, *p.Inverted)

	_, err = SaveProfile(nil, SaveProfileInput{Dir: dir, Name: "alpha", Settings: LineSettings{Roles: map[string]int{"rxd": 0}}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))

	names, err = ListProfiles(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "bench-8e1"}, names)
}

func TestProfile_SaveReplaces(t *testing.T) {
	dir := t.TempDir()
	for _, parity := range []string{"odd", "none"} {
		_, err := SaveProfile(nil, SaveProfileInput{
			Dir:      dir,
			Name:     "bus",
			Settings: LineSettings{Roles: map[string]int{"rxd": 0}, Parity: parity},
		})
		require.NoError(t, err)
	}

	p, err := LoadProfile(dir, "bus")
	require.NoError(t, err)
	require.Equal(t, "none", p.Parity)
}

func TestProfile_Rejections(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		profile  string
		settings LineSettings
		code     errors.ErrorCode
	}{
		{"empty name", "", LineSettings{Roles: map[string]int{"rxd": 0}}, errors.ErrInvalidRequest},
		{"path in name", "../evil", LineSettings{Roles: map[string]int{"rxd": 0}}, errors.ErrInvalidRequest},
		{"dot in name", "a.b", LineSettings{Roles: map[string]int{"rxd": 0}}, errors.ErrInvalidRequest},
		{"no roles", "bus", LineSettings{Bits: 8}, errors.ErrInvalidRequest},
		{"control only", "bus", LineSettings{Roles: map[string]int{"cts": 0}}, errors.ErrConfiguration},
		{"bad role", "bus", LineSettings{Roles: map[string]int{"clk": 0}}, errors.ErrConfiguration},
		{"bad bits", "bus", LineSettings{Roles: map[string]int{"rxd": 0}, Bits: 4}, errors.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SaveProfile(nil, SaveProfileInput{Dir: dir, Name: tt.profile, Settings: tt.settings})
			require.True(t, errors.Is(err, tt.code), "err = %v", err)
		})
	}

	names, err := ListProfiles(dir)
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestLoadProfile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadProfile(dir, "missing")
	require.True(t, errors.Is(err, errors.ErrFileNotFound))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("roles: [1, 2"), 0600))
	_, err = LoadProfile(dir, "broken")
	require.True(t, errors.Is(err, errors.ErrConfiguration))
}
