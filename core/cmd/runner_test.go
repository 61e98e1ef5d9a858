package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membo/vtubot/core/config"
)

func TestResolveConfigPath(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(existing, []byte("app: {}\n"), 0o600))

	t.Setenv("VTUBOT_TEST_CONFIG", "")
	assert.Equal(t, existing, resolveConfigPath(Options{ConfigEnvVar: "VTUBOT_TEST_CONFIG", DefaultConfigPath: existing}))
	assert.Empty(t, resolveConfigPath(Options{ConfigEnvVar: "VTUBOT_TEST_CONFIG", DefaultConfigPath: filepath.Join(dir, "missing.yaml")}))

	t.Setenv("VTUBOT_TEST_CONFIG", "/etc/vtubot.yaml")
	assert.Equal(t, "/etc/vtubot.yaml", resolveConfigPath(Options{ConfigEnvVar: "VTUBOT_TEST_CONFIG", DefaultConfigPath: existing}))
}

func TestRunLoadsEnvFileAndConfig(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("VTUBOT_RUNNER_MARKER=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("VTUBOT_RUNNER_MARKER") })

	var gotPath string
	ran := false
	err := Run(Options{
		ConfigEnvVar: "VTUBOT_RUNNER_CONFIG",
		EnvFiles:     []string{envFile, filepath.Join(dir, "absent.env")},
		LoadConfig: func(path string) (*config.Config, error) {
			gotPath = path
			return &config.Config{}, nil
		},
		Run: func(ctx context.Context, cfg *config.Config) error {
			ran = true
			assert.NotNil(t, cfg)
			assert.NoError(t, ctx.Err())
			return nil
		},
		ShutdownLogger: func() error { return nil },
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Empty(t, gotPath)
	assert.Equal(t, "from-dotenv", os.Getenv("VTUBOT_RUNNER_MARKER"))
}

func TestRunRequiresRun(t *testing.T) {
	assert.Error(t, Run(Options{}))
}
