package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "config.yaml", `
environment: production
server:
  addr: ":9000"
broker:
  api_url: https://demo.tradovateapi.com/v1
  symbol: MESU5
  token_refresh_interval: 15m
storage:
  path: data/state.db
strategies_file: strategies.json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "MESU5", cfg.Broker.Symbol)
	assert.Equal(t, 15*time.Minute, cfg.GetTokenRefreshInterval())
	assert.Equal(t, "strategies.json", cfg.StrategiesFile)
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("TEST_SYMBOL", "ESU5")
	path := writeFile(t, "config.yaml", `
broker:
  api_url: https://demo.tradovateapi.com/v1
  symbol: ${TEST_SYMBOL}
storage:
  path: data/state.db
strategies_file: strategies.json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ESU5", cfg.Broker.Symbol)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "config.yaml", `
storage:
  path: data/state.db
strategies_file: strategies.json
no_such_key: true
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateDefaults(t *testing.T) {
	cfg := &Config{
		Broker:         BrokerConfig{Paper: true},
		Storage:        StorageConfig{Path: "state.db"},
		StrategiesFile: "strategies.json",
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.NotZero(t, cfg.GetTokenRefreshInterval())
}

func TestValidateLiveRequiresBrokerFields(t *testing.T) {
	cfg := &Config{
		Storage:        StorageConfig{Path: "state.db"},
		StrategiesFile: "strategies.json",
	}
	assert.Error(t, cfg.Validate(), "live mode needs api_url and symbol")

	cfg.Broker.APIURL = "https://demo.tradovateapi.com/v1"
	cfg.Broker.Symbol = "MESU5"
	assert.NoError(t, cfg.Validate())
}

func TestLoadStrategies(t *testing.T) {
	path := writeFile(t, "strategies.json", `[
  {
    "name": "mes-long",
    "entry_offset": 8,
    "take_profit_offset": 40,
    "stop_loss_offset": 100,
    "trail_trigger": 2,
    "re_entry_distance": 2,
    "max_open_trades": 3,
    "max_contracts_per_trade": 3,
    "symbol_size": 5,
    "use_trading_hours": true,
    "early_close_calendar": {"2025-11-28": [12, 15]},
    "static_levels": [5881, 5939.5, 5998, 6056.5],
    "long_date_ranges": [{"start": "2025-01-01", "end": "2025-12-31"}]
  },
  {
    "name": "mes-short",
    "entry_offset": 8,
    "take_profit_offset": 40,
    "stop_loss_offset": 100,
    "trail_trigger": 2,
    "re_entry_distance": 2,
    "max_open_trades": 1,
    "max_contracts_per_trade": 1,
    "symbol_size": 5,
    "is_trading_long": false,
    "static_levels": [5881, 5939.5, 5998, 6056.5]
  }
]`)

	params, err := LoadStrategies(path, true)
	require.NoError(t, err)
	require.Len(t, params, 2)

	long := params[0]
	assert.Equal(t, "mes-long", long.Name)
	assert.True(t, long.IsTradingLong, "default direction applied")
	assert.True(t, long.UseTradingHours)
	assert.Equal(t, 8.0, long.EntryOffsetTicks)
	require.Contains(t, long.EarlyCloseCalendar, "2025-11-28")
	assert.Equal(t, 12, long.EarlyCloseCalendar["2025-11-28"].Hour)
	require.Len(t, long.LongDateRanges, 1)

	short := params[1]
	assert.False(t, short.IsTradingLong, "explicit direction wins over default")
}

func TestLoadStrategiesRejectsDuplicates(t *testing.T) {
	path := writeFile(t, "strategies.json", `[
  {"name": "dup", "entry_offset": 8, "take_profit_offset": 40, "stop_loss_offset": 100,
   "trail_trigger": 2, "re_entry_distance": 2, "max_open_trades": 1,
   "max_contracts_per_trade": 1, "symbol_size": 5, "static_levels": [100, 105]},
  {"name": "dup", "entry_offset": 8, "take_profit_offset": 40, "stop_loss_offset": 100,
   "trail_trigger": 2, "re_entry_distance": 2, "max_open_trades": 1,
   "max_contracts_per_trade": 1, "symbol_size": 5, "static_levels": [100, 105]}
]`)
	_, err := LoadStrategies(path, true)
	assert.Error(t, err)
}

func TestLoadStrategiesRejectsInvalidParams(t *testing.T) {
	path := writeFile(t, "strategies.json", `[
  {"name": "bad", "entry_offset": 8, "take_profit_offset": 40, "stop_loss_offset": 100,
   "trail_trigger": 0, "re_entry_distance": 2, "max_open_trades": 1,
   "max_contracts_per_trade": 1, "symbol_size": 5, "static_levels": [100, 105]}
]`)
	_, err := LoadStrategies(path, true)
	assert.Error(t, err)
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv("TRADOVATE_USERNAME", "u")
	t.Setenv("TRADOVATE_PASSWORD", "p")
	t.Setenv("TRADOVATE_CLIENT_ID", "app")
	t.Setenv("TRADOVATE_CID", "1")
	t.Setenv("TRADOVATE_SECRET", "s")
	t.Setenv("IS_LONG_ONLY_TRADE", "false")

	creds, err := LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "u", creds.Broker.Username)
	assert.False(t, creds.IsLongOnly)
	require.NoError(t, creds.ValidateLive())
}

func TestValidateLiveReportsMissing(t *testing.T) {
	creds := &Credentials{}
	err := creds.ValidateLive()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRADOVATE_USERNAME")
	assert.Contains(t, err.Error(), "TRADOVATE_SECRET")
}

func TestLoadCredentialsBadBool(t *testing.T) {
	t.Setenv("IS_LONG_ONLY_TRADE", "maybe")
	_, err := LoadCredentials()
	assert.Error(t, err)
}
