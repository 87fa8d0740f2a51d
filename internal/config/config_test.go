package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigWithNestedRoutes 验证嵌套的路由配置能被正确加载，未填写的字段使用默认值
func TestLoadConfigWithNestedRoutes(t *testing.T) {
	content := `
collaborators:
  base_url: "http://collab.internal/api"
  timeout_seconds: 12
  routes:
    match: "v2/match"
scheduling:
  utc_offset: "-03:00"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644), "无法写入临时配置文件")

	config, err := LoadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, "http://collab.internal/api", config.Collaborators.BaseURL)
	assert.Equal(t, 12*time.Second, config.Collaborators.Timeout())
	assert.Equal(t, "v2/match", config.Collaborators.Routes.Match)
	// 未配置的路由回落到默认值
	assert.Equal(t, "schedule-meeting", config.Collaborators.Routes.ScheduleMeeting)
	assert.Equal(t, "applicant-tracking/{applicantId}", config.Collaborators.Routes.ApplicantTracking)

	loc, err := config.Scheduling.Location()
	require.NoError(t, err)
	_, offset := time.Date(2025, 3, 1, 10, 0, 0, 0, loc).Zone()
	assert.Equal(t, -3*3600, offset)
}

// TestLoadConfigDefaults 空路径返回默认配置
func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultServerAddress, config.Server.Address)
	assert.Equal(t, 30*time.Second, config.Collaborators.Timeout())
	assert.Equal(t, 30*time.Minute, GetDuration(config.SearchCache.TTL, 0))
	assert.Equal(t, "+05:30", config.Scheduling.UTCOffset)
	assert.Equal(t, 60, config.Scheduling.DurationMinutes)
	assert.Equal(t, "memory", config.SessionStore.SessionBackend)
	assert.Equal(t, "recruit.events", config.RabbitMQ.EventsExchange)
}

// TestLoadConfigEnvOverrides 环境变量覆盖密钥类字段
func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("RECRUIT_API_KEY", "from-env")
	t.Setenv("COLLABORATOR_BASE_URL", "http://env-collab/api")
	t.Setenv("MYSQL_PASSWORD", "secret")

	config, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", config.Auth.APIKey)
	assert.Equal(t, "http://env-collab/api", config.Collaborators.BaseURL)
	assert.Equal(t, "secret", config.MySQL.Password)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "配置文件不存在")
}

func TestLoadConfigInvalidOffset(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("scheduling:\n  utc_offset: \"IST\"\n"), 0644))

	_, err := LoadConfig(configPath)
	require.Error(t, err)
}

func TestParseUTCOffset(t *testing.T) {
	loc, err := ParseUTCOffset("+05:30")
	require.NoError(t, err)
	_, offset := time.Date(2025, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 5*3600+30*60, offset)

	for _, bad := range []string{"", "05:30", "+5:30", "+05:75", "+99:00"} {
		_, err := ParseUTCOffset(bad)
		assert.Error(t, err, bad)
	}
}

// TestLoadDotEnvMissingFile 缺失的 .env 不算错误
func TestLoadDotEnvMissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RECRUIT_DESK_TEST_VAR=hello\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("RECRUIT_DESK_TEST_VAR") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "hello", os.Getenv("RECRUIT_DESK_TEST_VAR"))
}

func TestMySQLDSN(t *testing.T) {
	dsn := MySQLConfig{Username: "u", Password: "p", Host: "db", Port: 3307, Database: "d", ConnectTimeoutSeconds: 5}.DSN()
	assert.Equal(t, "u:p@tcp(db:3307)/d?charset=utf8mb4&parseTime=True&loc=Local&timeout=5s", dsn)
}
