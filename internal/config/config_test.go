package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testdrive/internal/schedule"
)

func TestParse_Defaults(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "app.db")
	cfg, err := Parse([]byte("http:\n  api_key: k\ndatabase:\n  path: " + dbPath + "\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Address)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "default", cfg.Dealership.ID)
	assert.Equal(t, 60, cfg.Booking.SlotMinutes)
	assert.Equal(t, time.Duration(0), cfg.BookingMinAdvance())
	assert.Equal(t, 30*24*time.Hour, cfg.BookingMaxAdvance())
	assert.Equal(t, 10*time.Second, cfg.LockTTL())
	assert.Equal(t, 24*time.Hour, cfg.ReminderLead())
	assert.Equal(t, 10, cfg.RateLimitMax())
	assert.Equal(t, time.Minute, cfg.RateLimitPeriod())
	assert.Equal(t, 24*time.Hour, cfg.Backup.Interval())

	_, ok := cfg.InitialSchedule()
	assert.False(t, ok)

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("TESTDRIVE_TEST_KEY", "s3cret")
	t.Setenv("TESTDRIVE_TEST_PG", "postgres://localhost/testdrive")

	cfg, err := Parse([]byte(`
http:
  api_key: "${TESTDRIVE_TEST_KEY}"
database:
  driver: Postgres
  url: "${TESTDRIVE_TEST_PG}"
booking:
  min_advance_minutes: 90
  timezone: Europe/Berlin
`))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.HTTP.APIKey)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/testdrive", cfg.Database.URL)
	assert.Equal(t, 90*time.Minute, cfg.BookingMinAdvance())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestParse_DealershipHours(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "app.db")
	cfg, err := Parse([]byte(`
http:
  api_key: k
database:
  path: ` + dbPath + `
dealership:
  id: north
  hours:
    - { day_of_week: MONDAY, is_open: true, open_time: "08:00", close_time: "12:00" }
    - { day_of_week: TUESDAY, is_open: false, open_time: "00:00", close_time: "00:00" }
    - { day_of_week: WEDNESDAY, is_open: false, open_time: "00:00", close_time: "00:00" }
    - { day_of_week: THURSDAY, is_open: false, open_time: "00:00", close_time: "00:00" }
    - { day_of_week: FRIDAY, is_open: false, open_time: "00:00", close_time: "00:00" }
    - { day_of_week: SATURDAY, is_open: false, open_time: "00:00", close_time: "00:00" }
    - { day_of_week: SUNDAY, is_open: false, open_time: "00:00", close_time: "00:00" }
`))
	require.NoError(t, err)

	s, ok := cfg.InitialSchedule()
	require.True(t, ok)
	open, closing, ok := s.WindowFor(schedule.Monday)
	require.True(t, ok)
	assert.Equal(t, "08:00", open.String())
	assert.Equal(t, "12:00", closing.String())
	assert.False(t, s.IsOpenOn(schedule.Tuesday))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown driver", "database:\n  driver: mysql\n"},
		{"postgres without url", "database:\n  driver: postgres\n"},
		{"bad timezone", "database:\n  driver: postgres\n  url: x\nbooking:\n  timezone: Mars/Olympus\n"},
		{"telegram without token", "database:\n  driver: postgres\n  url: x\ntelegram:\n  enabled: true\n"},
		{"incomplete hours", "database:\n  driver: postgres\n  url: x\ndealership:\n  hours:\n    - { day_of_week: MONDAY, is_open: true, open_time: \"09:00\", close_time: \"18:00\" }\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte("http:\n  api_key: k\n" + tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_RequiresAPIKey(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "app.db")
	base := "database:\n  path: " + dbPath + "\n"

	_, err := Parse([]byte(base))
	assert.Error(t, err)

	// An unset placeholder expands to an empty key.
	_, err = Parse([]byte(base + "http:\n  api_key: \"${TESTDRIVE_UNSET_KEY}\"\n"))
	assert.Error(t, err)

	cfg, err := Parse([]byte(base + "http:\n  insecure: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.HTTP.Insecure)
}

func TestLoad_FromEnvPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: "+filepath.Join(dir, "db.sqlite")+"\nhttp:\n  address: \":9999\"\n  api_key: k\n"), 0o600))
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTP.Address)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
