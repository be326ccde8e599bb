package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "appsync.db", cfg.DB)
	assert.Equal(t, "sqlite3", cfg.Driver)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, Namespace{Scope: "employees", Collection: "profiles"}, cfg.Namespace)
	assert.Equal(t, SeedDemo, cfg.Seed.Source)
	assert.False(t, cfg.Sync.Enabled)
	assert.Equal(t, RemoteMemory, cfg.Sync.Remote)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 100, cfg.Sync.Batch)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Full(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "full.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Config{
		DB:        "/var/lib/appsync/profiles.db",
		Driver:    "sqlite",
		Timeout:   2 * time.Second,
		Namespace: Namespace{Scope: "contractors", Collection: "people"},
		Seed:      Seed{Source: SeedFile, File: "seeds.yaml"},
		Sync: Sync{
			Enabled:  true,
			Remote:   RemotePostgres,
			Name:     "central",
			DSN:      "postgres://appsync@localhost:5432/appsync",
			Interval: 90 * time.Second,
			Batch:    50,
			Timeout:  10 * time.Second,
		},
	}, cfg)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "partial.yaml"))
	require.NoError(t, err)

	want := Default()
	want.DB = "other.db"
	want.Sync.Enabled = true
	assert.Equal(t, want, cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "nope.yaml"))
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeRead))
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "unknown_key.yaml"))
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeSchema))
	assert.Contains(t, err.Error(), "databse")
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode string
	}{
		{name: "empty document", input: "   \n"},
		{name: "driver pure go", input: "driver: sqlite\n"},
		{name: "unknown driver", input: "driver: postgres\n", wantCode: ErrCodeSchema},
		{name: "bad duration", input: "timeout: soon\n", wantCode: ErrCodeSchema},
		{name: "batch out of range", input: "sync:\n  batch: 0\n", wantCode: ErrCodeSchema},
		{name: "wrong type", input: "sync:\n  enabled: maybe\n", wantCode: ErrCodeSchema},
		{name: "unknown nested key", input: "namespace:\n  table: x\n", wantCode: ErrCodeSchema},
		{name: "empty scope", input: "namespace:\n  scope: \"\"\n", wantCode: ErrCodeSchema},
		{name: "invalid yaml", input: "db: [unclosed\n", wantCode: ErrCodeSyntax},
		{name: "file seed without file", input: "seed:\n  source: file\n", wantCode: ErrCodeSemantic},
		{name: "postgres without dsn", input: "sync:\n  enabled: true\n  remote: postgres\n", wantCode: ErrCodeSemantic},
		{name: "postgres disabled without dsn", input: "sync:\n  remote: postgres\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test.yaml", []byte(tt.input))
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsCode(err, tt.wantCode), "got %v, want code %s", err, tt.wantCode)
		})
	}
}

func TestError_Format(t *testing.T) {
	err := &Error{Code: ErrCodeSemantic, Message: "sync.dsn is required"}
	assert.Equal(t, "E204: sync.dsn is required", err.Error())
}
