package config

import (
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Servers    []BackendConfig  `json:"servers,omitempty"`     // back-end render servers
	ComfyUIURL StringList       `json:"comfyui_url,omitempty"` // legacy single/multi URL form
	HTTP       HTTPConfig       `json:"http"`
	Logger     LoggerConfig     `json:"logger"`
	Generation GenerationConfig `json:"generation"`
	Dispatch   DispatchConfig   `json:"dispatch"`
	Workflow   WorkflowConfig   `json:"workflow"`

	ModelConfig map[string]string `json:"model_config,omitempty"` // description -> checkpoint filename
	LoraConfig  map[string]string `json:"lora_config,omitempty"`  // description -> lora filename

	OpenTimeRanges []string `json:"open_time_ranges,omitempty"` // "HH:MM-HH:MM", end<=start wraps midnight
	GroupWhitelist []string `json:"group_whitelist,omitempty"`
}

// BackendConfig one back-end render server
type BackendConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// HTTPConfig HTTP adapter configuration
type HTTPConfig struct {
	Port   int    `json:"port"`
	Mode   string `json:"mode"`    // debug, release
	APIKey string `json:"api_key"` // bearer token for the HTTP adapter (optional, empty disables auth)
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `json:"level"`  // debug, info, warn, error
	Output string           `json:"output"` // console, file, both
	File   LoggerFileConfig `json:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `json:"path"`
}

// GenerationConfig defaults and ranges for the built-in txt2img/img2img templates
type GenerationConfig struct {
	CkptName          string  `json:"ckpt_name"`
	SamplerName       string  `json:"sampler_name"`
	Scheduler         string  `json:"scheduler"`
	CFG               float64 `json:"cfg"`
	NegativePrompt    string  `json:"negative_prompt"`
	DefaultWidth      int     `json:"default_width"`
	DefaultHeight     int     `json:"default_height"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	Seed              int64   `json:"seed"` // -1 draws a fresh random seed per job
	DefaultDenoise    float64 `json:"default_denoise"`

	EnableImageEncrypt bool `json:"enable_image_encrypt"`

	Txt2ImgBatchSize int `json:"txt2img_batch_size"`
	Img2ImgBatchSize int `json:"img2img_batch_size"`
	MaxTxt2ImgBatch  int `json:"max_txt2img_batch"`
	MaxImg2ImgBatch  int `json:"max_img2img_batch"`
	MaxLoraCount     int `json:"max_lora_count"`

	MinWidth  int `json:"min_width"`
	MaxWidth  int `json:"max_width"`
	MinHeight int `json:"min_height"`
	MaxHeight int `json:"max_height"`
}

// DispatchConfig policy knobs for the dispatch core
type DispatchConfig struct {
	MaxTaskQueue              int `json:"max_task_queue"`
	MaxConcurrentTasksPerUser int `json:"max_concurrent_tasks_per_user"`

	MaxRetries      int `json:"max_retries"`       // per-server retries for transient failures
	MaxFailureCount int `json:"max_failure_count"` // consecutive failures before a server goes unhealthy
	RetryDelay      int `json:"retry_delay"`       // cool-down after failing out (seconds)
	FailureCooldown int `json:"failure_cooldown"`  // short cool-down after an intermediate failure (seconds)

	ServerCheckInterval int `json:"server_check_interval"` // health probe period (seconds)
	ProbeTimeout        int `json:"probe_timeout"`         // single health probe timeout (seconds)
	PollTimeout         int `json:"poll_timeout"`          // per-job completion deadline (seconds)
	PollInterval        int `json:"poll_interval"`         // history poll period (seconds)

	QueueCheckDelay    int `json:"queue_check_delay"`    // seconds after submit before queue checks start
	QueueCheckInterval int `json:"queue_check_interval"` // seconds between queue checks
	EmptyQueueMaxRetry int `json:"empty_queue_max_retry"`

	WorkerIdlePoll int `json:"worker_idle_poll"` // queue take timeout (seconds)
	DrainTimeout   int `json:"drain_timeout"`    // worker drain window on unhealthy transition (seconds)
	RetrySleep     int `json:"retry_sleep"`      // sleep between transient retries (seconds)
}

// WorkflowConfig workflow descriptor storage
type WorkflowConfig struct {
	Dir string `json:"dir"` // each subdirectory holds config.json + workflow.json
}

// Init initializes configuration from CONFIG_PATH (default config/config.json).
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.json"
	}

	cfg, err := Load(configPath)
	if err != nil {
		return err
	}

	GlobalConfig = cfg
	return nil
}

// Load reads and validates a configuration file.
// The loader accepts both JSON and YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	validateAndApplyDefaults(&cfg)
	return &cfg, nil
}

// Backends merges the servers section with the legacy comfyui_url form.
func (c *Config) Backends() []BackendConfig {
	backends := make([]BackendConfig, 0, len(c.Servers)+len(c.ComfyUIURL))
	backends = append(backends, c.Servers...)
	for i, url := range c.ComfyUIURL {
		backends = append(backends, BackendConfig{
			Name: fmt.Sprintf("comfyui-%d", i+1),
			URL:  url,
		})
	}
	return backends
}

// PollTimeoutDuration per-job completion deadline
func (d DispatchConfig) PollTimeoutDuration() time.Duration {
	return time.Duration(d.PollTimeout) * time.Second
}

// PollIntervalDuration history poll period
func (d DispatchConfig) PollIntervalDuration() time.Duration {
	return time.Duration(d.PollInterval) * time.Second
}

// RetryDelayDuration cool-down applied when a server fails out
func (d DispatchConfig) RetryDelayDuration() time.Duration {
	return time.Duration(d.RetryDelay) * time.Second
}

// FailureCooldownDuration short cool-down after an intermediate failure
func (d DispatchConfig) FailureCooldownDuration() time.Duration {
	return time.Duration(d.FailureCooldown) * time.Second
}

// ServerCheckIntervalDuration health probe period
func (d DispatchConfig) ServerCheckIntervalDuration() time.Duration {
	return time.Duration(d.ServerCheckInterval) * time.Second
}

// ProbeTimeoutDuration single health probe timeout
func (d DispatchConfig) ProbeTimeoutDuration() time.Duration {
	return time.Duration(d.ProbeTimeout) * time.Second
}

// QueueCheckDelayDuration delay before empty-queue checks start
func (d DispatchConfig) QueueCheckDelayDuration() time.Duration {
	return time.Duration(d.QueueCheckDelay) * time.Second
}

// QueueCheckIntervalDuration period between empty-queue checks
func (d DispatchConfig) QueueCheckIntervalDuration() time.Duration {
	return time.Duration(d.QueueCheckInterval) * time.Second
}

// WorkerIdlePollDuration queue take timeout in the worker loop
func (d DispatchConfig) WorkerIdlePollDuration() time.Duration {
	return time.Duration(d.WorkerIdlePoll) * time.Second
}

// DrainTimeoutDuration worker drain window
func (d DispatchConfig) DrainTimeoutDuration() time.Duration {
	return time.Duration(d.DrainTimeout) * time.Second
}

// RetrySleepDuration sleep between transient retries
func (d DispatchConfig) RetrySleepDuration() time.Duration {
	return time.Duration(d.RetrySleep) * time.Second
}
