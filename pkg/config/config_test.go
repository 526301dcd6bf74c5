package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"servers": [{"name": "render-1", "url": "http://render-1:8188"}],
		"http": {"port": 9090, "mode": "debug", "api_key": "secret"},
		"generation": {"ckpt_name": "sd15.safetensors"},
		"dispatch": {"max_task_queue": 5},
		"open_time_ranges": ["09:00-18:00"]
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "render-1", cfg.Servers[0].Name)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "secret", cfg.HTTP.APIKey)
	assert.Equal(t, "sd15.safetensors", cfg.Generation.CkptName)
	assert.Equal(t, 5, cfg.Dispatch.MaxTaskQueue)
	assert.Equal(t, []string{"09:00-18:00"}, cfg.OpenTimeRanges)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
servers:
  - name: render-1
    url: http://render-1:8188
http:
  port: 9090
lora_config:
  Detail Tweaker: detail_tweaker.safetensors
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "http://render-1:8188", cfg.Servers[0].URL)
	assert.Equal(t, "detail_tweaker.safetensors", cfg.LoraConfig["Detail Tweaker"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadInvalidSyntax(t *testing.T) {
	path := writeConfig(t, "config.json", `{"servers": [`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "config.json", `{}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8188, cfg.HTTP.Port)
	assert.Equal(t, "release", cfg.HTTP.Mode)
	assert.Equal(t, "workflow", cfg.Workflow.Dir)
	assert.Equal(t, DefaultGenerationConfig(), cfg.Generation)
	assert.Equal(t, DefaultDispatchConfig(), cfg.Dispatch)
}

func TestValidateRepairsBrokenKnobs(t *testing.T) {
	cfg := &Config{}
	cfg.Generation.DefaultDenoise = 1.5 // out of (0, 1]
	cfg.Generation.MinWidth = 100
	cfg.Generation.MaxWidth = 50 // below the minimum
	cfg.Dispatch.MaxRetries = -1

	validateAndApplyDefaults(cfg)

	assert.Equal(t, DefaultGenerationConfig().DefaultDenoise, cfg.Generation.DefaultDenoise)
	assert.Equal(t, 100, cfg.Generation.MinWidth)
	assert.Equal(t, DefaultGenerationConfig().MaxWidth, cfg.Generation.MaxWidth)
	assert.Equal(t, DefaultDispatchConfig().MaxRetries, cfg.Dispatch.MaxRetries)
}

func TestValidateKeepsExplicitKnobs(t *testing.T) {
	cfg := &Config{}
	cfg.Dispatch.MaxRetries = 0 // explicit zero means no retries
	cfg.Dispatch.MaxTaskQueue = 100

	validateAndApplyDefaults(cfg)

	assert.Equal(t, 0, cfg.Dispatch.MaxRetries)
	assert.Equal(t, 100, cfg.Dispatch.MaxTaskQueue)
}

func TestBackendsMergesLegacyURLs(t *testing.T) {
	cfg := &Config{
		Servers:    []BackendConfig{{Name: "render-1", URL: "http://render-1:8188"}},
		ComfyUIURL: StringList{"http://legacy-a:8188", "http://legacy-b:8188"},
	}

	backends := cfg.Backends()
	require.Len(t, backends, 3)
	assert.Equal(t, "render-1", backends[0].Name)
	assert.Equal(t, "comfyui-1", backends[1].Name)
	assert.Equal(t, "http://legacy-b:8188", backends[2].URL)
}

func TestStringListUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want StringList
	}{
		{name: "single string", in: `"http://a:8188"`, want: StringList{"http://a:8188"}},
		{name: "empty string", in: `""`, want: nil},
		{name: "array", in: `["http://a:8188", "http://b:8188"]`, want: StringList{"http://a:8188", "http://b:8188"}},
		{name: "empty array", in: `[]`, want: StringList{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s StringList
			require.NoError(t, json.Unmarshal([]byte(tt.in), &s))
			assert.Equal(t, tt.want, s)
		})
	}

	var s StringList
	assert.Error(t, json.Unmarshal([]byte(`42`), &s))
}

func TestDurationAccessors(t *testing.T) {
	d := DispatchConfig{PollTimeout: 600, RetrySleep: 2}
	assert.Equal(t, "10m0s", d.PollTimeoutDuration().String())
	assert.Equal(t, "2s", d.RetrySleepDuration().String())
}
