package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsZeroPrefs(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Prefs{}, p)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "prefs.yaml")

	want := Prefs{PlayerID: "p2", Theme: "dark"}
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSave_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")

	require.NoError(t, Save(path, Prefs{PlayerID: "p1"}))
	require.NoError(t, Save(path, Prefs{PlayerID: "p2", Theme: "light"}))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Prefs{PlayerID: "p2", Theme: "light"}, got)
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("player_id: [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
