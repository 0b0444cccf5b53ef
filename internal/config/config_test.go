package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noDotenv(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/compliance")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REFRESH_SECRET", "")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(noDotenv(t))
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTokenTTL)
	assert.Equal(t, "compliance-api", cfg.JWTIssuer)
	assert.Equal(t, "http://localhost:8000/auth/google/callback", cfg.GoogleRedirectURI)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.MigrateOnStart)
	assert.False(t, cfg.GoogleEnabled())

	assert.Equal(t, []byte("s3cret"), cfg.RefreshKey(), "refresh secret falls back to JWT_SECRET")
	iss := cfg.TokenIssuer()
	assert.Equal(t, 15*time.Minute, iss.AccessTTL)
}

func TestLoad_RequiresSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/compliance")
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	_, err := Load(noDotenv(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_RejectsInconsistentValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/compliance")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ACCESS_TOKEN_TTL", "2h")
	t.Setenv("REFRESH_TOKEN_TTL", "1h")
	t.Setenv("GOOGLE_CLIENT_ID", "only-the-id")

	_, err := Load(noDotenv(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REFRESH_TOKEN_TTL")
	assert.Contains(t, err.Error(), "GOOGLE_CLIENT_SECRET")
}
