package app

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/IbrahimAbdAlrasol-SS/drs-bot/core/bootstrap"
	coreconfig "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/config"
	coredatabase "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/database"
	tg "github.com/IbrahimAbdAlrasol-SS/drs-bot/core/telegram"
	"github.com/IbrahimAbdAlrasol-SS/drs-bot/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
telegram:
  token: t
  owner_id: 1000
  bot_username: "@drs_bot"
database:
  host: localhost
  name: drs
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "drs_bot", cfg.Telegram.BotUsername)
	assert.Equal(t, 50, cfg.Academic.MaxMembers)
	assert.Equal(t, []string{"morning", "evening"}, cfg.Academic.StudyTypes)
	assert.Equal(t, []string{"A", "B"}, cfg.Academic.Divisions)
	assert.Equal(t, 50*time.Millisecond, cfg.Notifications.Delay)
	assert.Equal(t, 1, cfg.Notifications.Workers)
	assert.Equal(t, 64, cfg.Notifications.QueueSize)
	assert.Zero(t, cfg.Conversation.SessionTTL)
	assert.Equal(t, "drsbot:", cfg.Redis.KeyPrefix)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "Asia/Baghdad", cfg.Location().String())
	assert.Same(t, &cfg.Config, cfg.CoreConfig())

	opts := cfg.academicOptions()
	assert.Equal(t, "drs_bot", opts.BotUsername)
	assert.Equal(t, []models.StudyType{models.StudyMorning, models.StudyEvening}, opts.StudyTypes)
}

func TestLoadConfigOverlaysEnv(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
academic:
  divisions: [a]
notifications:
  delay: 1s
conversation:
  session_ttl: 30m
timezone: UTC
`)
	t.Setenv("SECTION_DIVISIONS", "a,b,c")
	t.Setenv("NOTIFY_DELAY", "-1s")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, cfg.Academic.Divisions)
	assert.Equal(t, -time.Second, cfg.Notifications.Delay)
	assert.Equal(t, 30*time.Minute, cfg.Conversation.SessionTTL)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"study type":  "academic:\n  study_types: [night]\n",
		"division":    "academic:\n  divisions: [A_B]\n",
		"timezone":    "timezone: Mars/Olympus\n",
		"session ttl": "conversation:\n  session_ttl: -1s\n",
		"retries":     "notifications:\n  max_retries: -2\n",
	}
	for name, extra := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, minimalConfig+extra))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(writeConfig(t, "telegram:\n  token: t\n  owner_id: 1\n"))
	assert.ErrorContains(t, err, "database.host is required")
}

// Every value Normalize accepts must also pass the sections table checks.
func TestAcademicValuesFitSchema(t *testing.T) {
	schema, err := os.ReadFile(filepath.Join("..", "..", "migrations", "000001_init_schema.up.sql"))
	require.NoError(t, err)

	m := regexp.MustCompile(`division\s+TEXT\s+NOT NULL CHECK \(division ~ '([^']+)'\)`).FindSubmatch(schema)
	require.Len(t, m, 2, "division check not found")
	divisionRule := regexp.MustCompile(string(m[1]))

	cfg, err := LoadConfig(writeConfig(t, minimalConfig+"academic:\n  divisions: [a, B, c2, \"  d \"]\n"))
	require.NoError(t, err)
	for _, d := range cfg.Academic.Divisions {
		assert.True(t, divisionRule.MatchString(d), d)
	}
	assert.False(t, divisionRule.MatchString("A_B"))

	for _, st := range []models.StudyType{models.StudyMorning, models.StudyEvening} {
		assert.Contains(t, string(schema), "'"+string(st)+"'")
	}
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		Config: coreconfig.Config{Telegram: coreconfig.TelegramConfig{
			Token: "t", OwnerID: 1000, BotUsername: "drs_bot",
		}},
		Database: coredatabase.Config{Host: "localhost", Name: "drs"},
		Timezone: "UTC",
	}
	require.NoError(t, cfg.Normalize())
	return cfg
}

func TestNewWiresHandlersAndLifecycle(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	res := &bootstrap.Result{DB: sqlx.NewDb(raw, "postgres")}

	a, err := New(testConfig(t), res)
	require.NoError(t, err)

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.NotEmpty(t, opts.Middlewares)
	endpoints := map[any]bool{}
	for _, r := range opts.Routes {
		endpoints[r.Endpoint] = true
	}
	for _, want := range []any{"/start", "/create_section", "/pending", tele.OnCallback, tele.OnText} {
		assert.True(t, endpoints[want], "route %v", want)
	}
	_, ok := opts.Registry.GetCallback("approve")
	assert.True(t, ok)

	ctx := context.Background()
	require.NoError(t, a.start(ctx, tg.Runtime{}))
	mock.ExpectClose()
	require.NoError(t, a.stop(ctx, tg.Runtime{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRequiresDatabase(t *testing.T) {
	_, err := New(testConfig(t), &bootstrap.Result{})
	assert.Error(t, err)
}

func TestOwnerSeeder(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer raw.Close()
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users (telegram_id, username, full_name, role)")).
		WithArgs(int64(1000), nil, "Owner", models.RoleOwner).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "telegram_id", "username", "full_name", "role", "is_active", "is_blocked", "created_at", "last_active", "inserted",
		}).AddRow(1, 1000, nil, "Owner", "owner", true, false, now, now, true))

	seeder := OwnerSeeder(1000)
	assert.Equal(t, "owner", seeder.Name())
	require.NoError(t, seeder.Seed(context.Background(), &bootstrap.Result{DB: sqlx.NewDb(raw, "postgres")}))
	require.NoError(t, mock.ExpectationsWereMet())
}
