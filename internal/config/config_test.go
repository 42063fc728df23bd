package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	t.Cleanup(viper.Reset)
	return dir
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := writeConfigFile(t, "host: 192.168.1.50\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "192.168.1.50", cfg.Host)
	require.Equal(t, 4545, cfg.Port)
	require.True(t, cfg.AutoReconnect)
	require.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	dir := writeConfigFile(t, "host: 10.0.0.1\nport: 4546\nauto_reconnect: false\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 4546, cfg.Port)
	require.False(t, cfg.AutoReconnect)
}

func TestLoadRejectsMissingHost(t *testing.T) {
	dir := writeConfigFile(t, "port: 4545\n")

	_, err := Load(dir)
	require.Error(t, err)
}

func TestLoadHonorsEnvironmentOverride(t *testing.T) {
	dir := writeConfigFile(t, "host: 10.0.0.1\nport: 4545\n")
	t.Setenv("NUTRUNNER_PORT", "7000")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 7000, cfg.Port)
}
