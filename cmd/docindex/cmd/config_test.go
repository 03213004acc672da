package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOVA-ALLRounder/main-sub002/configs"
	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
)

func TestConfigInit_UserConfig(t *testing.T) {
	// Given: no user config
	setupCorpus(t, nil)
	path := config.GetUserConfigPath()

	// When: config init runs
	out, err := execute(t, "config", "init")
	require.NoError(t, err)

	// Then: the template is written to the user config path
	assert.Contains(t, out, "Created configuration: "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, configs.ConfigTemplate, string(data))
}

func TestConfigInit_ProjectTemplateLoads(t *testing.T) {
	// Given: a project config written from the template
	setupCorpus(t, nil)
	_, err := execute(t, "config", "init", "--project")
	require.NoError(t, err)
	require.FileExists(t, projectConfigName)

	// When: the configuration is loaded
	cfg, err := readConfig()

	// Then: the template is valid and matches the defaults
	require.NoError(t, err)
	defaults := config.NewConfig()
	assert.Equal(t, defaults.Cache.Backend, cfg.Cache.Backend)
	assert.Equal(t, defaults.Search.TopK, cfg.Search.TopK)
	assert.Equal(t, defaults.Policy.SensitivePatterns, cfg.Policy.SensitivePatterns)
	assert.Equal(t, defaults.Policy.DeniedTypes, cfg.Policy.DeniedTypes)
}

func TestConfigInit_ExistingKeptWithoutForce(t *testing.T) {
	setupCorpus(t, map[string]string{projectConfigName: "search:\n  top_k: 4\n"})

	out, err := execute(t, "config", "init", "--project")
	require.NoError(t, err)

	assert.Contains(t, out, "already exists")
	data, err := os.ReadFile(projectConfigName)
	require.NoError(t, err)
	assert.Equal(t, "search:\n  top_k: 4\n", string(data))
}

func TestConfigInit_ForceKeepsBackup(t *testing.T) {
	// Given: an existing project config
	dir := setupCorpus(t, map[string]string{projectConfigName: "search:\n  top_k: 4\n"})

	// When: init is forced
	out, err := execute(t, "config", "init", "--project", "--force")
	require.NoError(t, err)

	// Then: the old file is backed up and replaced
	assert.Contains(t, out, "Backup: ")
	backups, err := config.ListBackups(filepath.Join(dir, projectConfigName))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	old, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "search:\n  top_k: 4\n", string(old))

	data, err := os.ReadFile(projectConfigName)
	require.NoError(t, err)
	assert.Equal(t, configs.ConfigTemplate, string(data))
}

func TestConfigShow_Defaults(t *testing.T) {
	setupCorpus(t, map[string]string{projectConfigName: "cache:\n  backend: bolt\n"})

	out, err := execute(t, "config", "show", "--defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: json")

	out, err = execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: bolt")
}

func TestConfigPath(t *testing.T) {
	setupCorpus(t, nil)

	out, err := execute(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, config.GetUserConfigPath()+"\n", out)
}
