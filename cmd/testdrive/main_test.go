package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testdrive/internal/schedule"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
http:
  api_key: test
database:
  driver: sqlite
  path: ` + filepath.Join(dir, "testdrive.db") + `
booking:
  slot_minutes: 60
  max_advance_days: 60
  timezone: UTC
logging:
  level: error
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestSlotsCommand(t *testing.T) {
	cfgPath := writeConfig(t)

	day := schedule.DateOf(time.Now().UTC()).AddDate(0, 0, 7)
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, 1)
	}

	out, err := run(t, cfgPath, "slots", "--resource", "car-1", "--date", day.Format(schedule.DateLayout))
	require.NoError(t, err)
	assert.Contains(t, out, "09:00 - 10:00")
	assert.Contains(t, out, "9 h")

	_, err = run(t, cfgPath, "slots", "--resource", "car-1", "--date", "tomorrow")
	assert.Error(t, err)
}

func TestAdminCommands(t *testing.T) {
	cfgPath := writeConfig(t)

	_, err := run(t, cfgPath, "admin", "grant", "boss")
	require.NoError(t, err)
	_, err = run(t, cfgPath, "admin", "link-telegram", "boss", "4242")
	require.NoError(t, err)

	out, err := run(t, cfgPath, "admin", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "boss\ttelegram 4242")

	_, err = run(t, cfgPath, "admin", "revoke", "boss")
	assert.Error(t, err, "last administrator must stay")
}

func TestExportCommand(t *testing.T) {
	cfgPath := writeConfig(t)
	target := filepath.Join(t.TempDir(), "out.xlsx")

	_, err := run(t, cfgPath, "export", "--from", "2030-01-01", "--out", target)
	require.NoError(t, err)
	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	_, err = run(t, cfgPath, "export", "--status", "LOST")
	assert.Error(t, err)
}
