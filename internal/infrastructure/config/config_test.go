package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withEnv clears the given variables for the test and restores them after
func withEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			t.Cleanup(func() { os.Setenv(k, v) })
		} else {
			t.Cleanup(func() { os.Unsetenv(k) })
		}
		os.Unsetenv(k)
	}
}

var envKeys = []string{
	"BIZBOOK_APP_NAME",
	"BIZBOOK_APP_ENV",
	"BIZBOOK_DATABASE_HOST",
	"BIZBOOK_DATABASE_PASSWORD",
	"BIZBOOK_DATABASE_SSLMODE",
	"BIZBOOK_DATABASE_MAX_OPEN_CONNS",
	"BIZBOOK_DATABASE_MAX_IDLE_CONNS",
	"BIZBOOK_JWT_SECRET",
	"BIZBOOK_WAAFIPAY_MERCHANT_UID",
	"BIZBOOK_WAAFIPAY_API_USER_ID",
	"BIZBOOK_WAAFIPAY_API_KEY",
	"BIZBOOK_WAAFIPAY_TIMEOUT",
	"BIZBOOK_OFFLINE_ENABLED",
	"BIZBOOK_SWEEPER_RUN_AT_HOUR",
	"BIZBOOK_NOTIFICATION_SENDER",
	"BIZBOOK_NOTIFICATION_POSTMARK_TOKEN",
	"BIZBOOK_NOTIFICATION_FROM_ADDRESS",
	"BIZBOOK_TELEMETRY_PROFILING_ENABLED",
	"BIZBOOK_TELEMETRY_PROFILING_SERVER_ADDRESS",
	"BIZBOOK_HTTP_DOCS_ENABLED",
	"BIZBOOK_HTTP_DOCS_REQUIRE_AUTH",
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		withEnv(t, envKeys...)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "bizbook-billing", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, "USD", cfg.WaafiPay.Currency)
		assert.Equal(t, 30*time.Second, cfg.WaafiPay.Timeout)
		assert.False(t, cfg.WaafiPay.Configured())
		assert.True(t, cfg.Offline.Enabled)
		assert.Equal(t, 10, cfg.Offline.RateLimit)
		assert.Equal(t, time.Minute, cfg.Offline.RateLimitWindow)
		assert.Equal(t, 14*24*time.Hour, cfg.Subscription.TrialLength)
		assert.Equal(t, 3*24*time.Hour, cfg.Subscription.WarningWindow)
		assert.Equal(t, 2, cfg.Sweeper.RunAtHour)
		assert.Equal(t, 100, cfg.Sweeper.BatchSize)
		assert.Equal(t, "log", cfg.Notification.Sender)
		assert.False(t, cfg.Storage.Configured())
		assert.False(t, cfg.Telemetry.Profiling.Enabled)
		assert.Contains(t, cfg.Telemetry.Profiling.ProfileTypes, "cpu")
		assert.True(t, cfg.HTTP.Docs.Enabled)
	})

	t.Run("loads values from environment variables with BIZBOOK prefix", func(t *testing.T) {
		withEnv(t, envKeys...)
		os.Setenv("BIZBOOK_APP_NAME", "billing-test")
		os.Setenv("BIZBOOK_DATABASE_HOST", "db.internal")
		os.Setenv("BIZBOOK_WAAFIPAY_MERCHANT_UID", "M0910291")
		os.Setenv("BIZBOOK_WAAFIPAY_API_USER_ID", "1000416")
		os.Setenv("BIZBOOK_WAAFIPAY_API_KEY", "API-675418888AHX")
		os.Setenv("BIZBOOK_WAAFIPAY_TIMEOUT", "20s")
		os.Setenv("BIZBOOK_OFFLINE_ENABLED", "false")
		os.Setenv("BIZBOOK_SWEEPER_RUN_AT_HOUR", "-1")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "billing-test", cfg.App.Name)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.True(t, cfg.WaafiPay.Configured())
		assert.Equal(t, 20*time.Second, cfg.WaafiPay.Timeout)
		assert.False(t, cfg.Offline.Enabled)
		assert.Equal(t, -1, cfg.Sweeper.RunAtHour)
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		withEnv(t, envKeys...)
		os.Setenv("BIZBOOK_DATABASE_MAX_OPEN_CONNS", "10")
		os.Setenv("BIZBOOK_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects out of range sweeper hour", func(t *testing.T) {
		withEnv(t, envKeys...)
		os.Setenv("BIZBOOK_SWEEPER_RUN_AT_HOUR", "24")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sweeper.run_at_hour")
	})

	t.Run("postmark sender needs credentials", func(t *testing.T) {
		withEnv(t, envKeys...)
		os.Setenv("BIZBOOK_NOTIFICATION_SENDER", "postmark")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "postmark_token")

		os.Setenv("BIZBOOK_NOTIFICATION_POSTMARK_TOKEN", "server-token")
		os.Setenv("BIZBOOK_NOTIFICATION_FROM_ADDRESS", "billing@bizbook.app")
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "postmark", cfg.Notification.Sender)
	})

	t.Run("profiling needs a server address", func(t *testing.T) {
		withEnv(t, envKeys...)
		os.Setenv("BIZBOOK_TELEMETRY_PROFILING_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry.profiling.server_address")

		os.Setenv("BIZBOOK_TELEMETRY_PROFILING_SERVER_ADDRESS", "http://pyroscope:4040")
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Telemetry.Profiling.Enabled)
		assert.Equal(t, "http://pyroscope:4040", cfg.Telemetry.Profiling.ServerAddress)
	})

	t.Run("rejects unknown sender", func(t *testing.T) {
		withEnv(t, envKeys...)
		os.Setenv("BIZBOOK_NOTIFICATION_SENDER", "carrier-pigeon")

		_, err := Load()
		require.Error(t, err)
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func() {
		os.Setenv("BIZBOOK_APP_ENV", "production")
		os.Setenv("BIZBOOK_JWT_SECRET", "this-is-a-very-secure-jwt-secret-key-32chars")
		os.Setenv("BIZBOOK_DATABASE_PASSWORD", "secure-password")
		os.Setenv("BIZBOOK_DATABASE_SSLMODE", "require")
		os.Setenv("BIZBOOK_HTTP_DOCS_REQUIRE_AUTH", "true")
	}

	tests := []struct {
		name    string
		mutate  func()
		wantErr string
	}{
		{"valid production config", func() {}, ""},
		{"short jwt secret", func() { os.Setenv("BIZBOOK_JWT_SECRET", "short-secret") }, "jwt.secret must be at least 32 characters"},
		{"missing database password", func() { os.Unsetenv("BIZBOOK_DATABASE_PASSWORD") }, "database.password is required in production"},
		{"ssl disabled", func() { os.Setenv("BIZBOOK_DATABASE_SSLMODE", "disable") }, "database.sslmode cannot be 'disable' in production"},
		{"open api docs", func() { os.Setenv("BIZBOOK_HTTP_DOCS_REQUIRE_AUTH", "false") }, "http.docs must be disabled"},
		{"api docs disabled", func() {
			os.Setenv("BIZBOOK_HTTP_DOCS_REQUIRE_AUTH", "false")
			os.Setenv("BIZBOOK_HTTP_DOCS_ENABLED", "false")
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, envKeys...)
			setValidProductionBase()
			tt.mutate()

			cfg, err := Load()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "production", cfg.App.Env)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "user", Password: "pass@word#123", DBName: "db", SSLMode: "disable"}
		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})
}

func TestRedisConfig_Addr(t *testing.T) {
	cfg := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", cfg.Addr())
}
