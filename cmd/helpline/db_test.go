package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBMigrate_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "relay.db")
	cfgPath, _ := writeConfig(t, "relay:\n  database:\n    driver: sqlite\n    path: "+dbPath+"\n")

	out, err := runCmd(t, "", "db", "migrate", "-c", cfgPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Migrated 1 tables (sqlite)")

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestDBMigrate_CreateRequiresMySQL(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "relay.db")
	cfgPath, _ := writeConfig(t, "relay:\n  database:\n    path: "+dbPath+"\n")

	_, err := runCmd(t, "", "db", "migrate", "-c", cfgPath, "--create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--create only applies to the mysql driver")
}

func TestRelay_InvalidRetentionSchedule(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "relay.db")
	cfgPath, _ := writeConfig(t, "relay:\n  database:\n    path: "+dbPath+
		"\n  retention:\n    cron: \"not a schedule\"\n    max_age_hours: 24\n")

	_, err := runCmd(t, "", "relay", "-c", cfgPath, "--port", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retention schedule")
}

func TestRelay_BadConfig(t *testing.T) {
	cfgPath, _ := writeConfig(t, "relay:\n  database:\n    driver: postgres\n")

	_, err := runCmd(t, "", "relay", "-c", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
