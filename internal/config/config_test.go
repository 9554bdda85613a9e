package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `{
	"port": 8080,
	"jwt_secret": "s",
	"webhook_token": "t",
	"database": {"dsn": "postgres://localhost/docqa"},
	"search": {"backend": "http"},
	"indexer": {"endpoint": "http://search.local", "name": "docs-indexer"},
	"ai": {"provider": "gemini", "model": "m", "embed_model": "e"}
}`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Search.OverFetch)
	require.Equal(t, 5, cfg.Search.TopN)
	require.Equal(t, 10, cfg.Indexer.PollIntervalSeconds)
	require.Equal(t, 300, cfg.Indexer.MaxWaitSeconds)
	require.Equal(t, 3, cfg.Indexer.TriggerMaxAttempts)
	require.Equal(t, 12000, cfg.AI.MaxContextChars)
	require.Equal(t, "*/10 * * * *", cfg.Jobs.StaleSweepSpec)
	require.Equal(t, 30, cfg.Jobs.StaleAgeMinutes)
	require.Equal(t, "local", cfg.FileStore.Type)
	require.Equal(t, "info", cfg.LogConfig.Level)
}

func TestLoad_RejectsIncomplete(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{name: "missing port", content: `{"jwt_secret":"s","webhook_token":"t","database":{"dsn":"x"},"search":{"backend":"http"},"indexer":{"endpoint":"e","name":"n"},"ai":{"provider":"p","model":"m","embed_model":"e"}}`},
		{name: "missing jwt secret", content: `{"port":1,"webhook_token":"t","database":{"dsn":"x"},"search":{"backend":"http"},"indexer":{"endpoint":"e","name":"n"},"ai":{"provider":"p","model":"m","embed_model":"e"}}`},
		{name: "missing webhook token", content: `{"port":1,"jwt_secret":"s","database":{"dsn":"x"},"search":{"backend":"http"},"indexer":{"endpoint":"e","name":"n"},"ai":{"provider":"p","model":"m","embed_model":"e"}}`},
		{name: "missing database", content: `{"port":1,"jwt_secret":"s","webhook_token":"t","search":{"backend":"http"},"indexer":{"endpoint":"e","name":"n"},"ai":{"provider":"p","model":"m","embed_model":"e"}}`},
		{name: "missing search backend", content: `{"port":1,"jwt_secret":"s","webhook_token":"t","database":{"dsn":"x"},"indexer":{"endpoint":"e","name":"n"},"ai":{"provider":"p","model":"m","embed_model":"e"}}`},
		{name: "missing indexer", content: `{"port":1,"jwt_secret":"s","webhook_token":"t","database":{"dsn":"x"},"search":{"backend":"http"},"ai":{"provider":"p","model":"m","embed_model":"e"}}`},
		{name: "missing ai model", content: `{"port":1,"jwt_secret":"s","webhook_token":"t","database":{"dsn":"x"},"search":{"backend":"http"},"indexer":{"endpoint":"e","name":"n"},"ai":{"provider":"p"}}`},
		{name: "not json", content: `nope`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			require.Error(t, err)
		})
	}
}
