package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestDefaultListensLikeMAVProxyRelay(t *testing.T) {
	cfg := Default()
	require.Equal(t, "udpin:0.0.0.0:5760", cfg.Endpoint)
	require.Equal(t, uint8(255), cfg.SystemID)
	require.Equal(t, uint8(230), cfg.ComponentID)
	require.Equal(t, uint8(1), cfg.LinkID)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mavsign.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
endpoint: udpin:0.0.0.0:14551
sys_id: 1
link_id: 3
gps:
  interval: 500ms
  lat: 515000000
log:
  level: DEBUG
  file: mavsign.log
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "udpin:0.0.0.0:14551", cfg.Endpoint)
	require.Equal(t, uint8(1), cfg.SystemID)
	require.Equal(t, uint8(230), cfg.ComponentID)
	require.Equal(t, uint8(3), cfg.LinkID)
	require.Equal(t, 500*time.Millisecond, cfg.GPS.Interval)
	require.Equal(t, 50*time.Millisecond, cfg.GPS.FastInterval)
	require.Equal(t, int32(515000000), cfg.GPS.Lat)
	require.Equal(t, int32(-26083820), cfg.GPS.Lon)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "mavsign.log", cfg.Log.File)
	require.Equal(t, 25, cfg.Log.MaxSizeMB)
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestParseErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown key":   "passphrase: secret\n",
		"bad interval":  "gps:\n  interval: -1s\n",
		"sys_id range":  "sys_id: 300\n",
		"not a mapping": "- a\n- b\n",
	} {
		_, err := Parse([]byte(doc))
		require.Error(t, err, name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
