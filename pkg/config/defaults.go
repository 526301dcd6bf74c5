package config

// DefaultGenerationConfig returns the built-in generation defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		SamplerName:       "euler",
		Scheduler:         "normal",
		CFG:               7.0,
		DefaultWidth:      512,
		DefaultHeight:     512,
		NumInferenceSteps: 25,
		Seed:              -1,
		DefaultDenoise:    0.75,
		Txt2ImgBatchSize:  1,
		Img2ImgBatchSize:  1,
		MaxTxt2ImgBatch:   4,
		MaxImg2ImgBatch:   4,
		MaxLoraCount:      5,
		MinWidth:          64,
		MaxWidth:          2048,
		MinHeight:         64,
		MaxHeight:         2048,
	}
}

// DefaultDispatchConfig returns the built-in dispatch policy defaults.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		MaxTaskQueue:              20,
		MaxConcurrentTasksPerUser: 3,
		MaxRetries:                2,
		MaxFailureCount:           3,
		RetryDelay:                300,
		FailureCooldown:           10,
		ServerCheckInterval:       60,
		ProbeTimeout:              10,
		PollTimeout:               600,
		PollInterval:              3,
		QueueCheckDelay:           30,
		QueueCheckInterval:        10,
		EmptyQueueMaxRetry:        3,
		WorkerIdlePoll:            10,
		DrainTimeout:              30,
		RetrySleep:                2,
	}
}

// validateAndApplyDefaults replaces invalid or missing knobs with defaults.
// A config that parses always yields an operational dispatcher.
func validateAndApplyDefaults(cfg *Config) {
	genDefaults := DefaultGenerationConfig()
	dispDefaults := DefaultDispatchConfig()

	g := &cfg.Generation
	if g.SamplerName == "" {
		g.SamplerName = genDefaults.SamplerName
	}
	if g.Scheduler == "" {
		g.Scheduler = genDefaults.Scheduler
	}
	if g.CFG <= 0 {
		g.CFG = genDefaults.CFG
	}
	if g.DefaultWidth <= 0 {
		g.DefaultWidth = genDefaults.DefaultWidth
	}
	if g.DefaultHeight <= 0 {
		g.DefaultHeight = genDefaults.DefaultHeight
	}
	if g.NumInferenceSteps <= 0 {
		g.NumInferenceSteps = genDefaults.NumInferenceSteps
	}
	if g.Seed == 0 {
		g.Seed = genDefaults.Seed
	}
	if g.DefaultDenoise <= 0 || g.DefaultDenoise > 1 {
		g.DefaultDenoise = genDefaults.DefaultDenoise
	}
	if g.Txt2ImgBatchSize <= 0 {
		g.Txt2ImgBatchSize = genDefaults.Txt2ImgBatchSize
	}
	if g.Img2ImgBatchSize <= 0 {
		g.Img2ImgBatchSize = genDefaults.Img2ImgBatchSize
	}
	if g.MaxTxt2ImgBatch <= 0 {
		g.MaxTxt2ImgBatch = genDefaults.MaxTxt2ImgBatch
	}
	if g.MaxImg2ImgBatch <= 0 {
		g.MaxImg2ImgBatch = genDefaults.MaxImg2ImgBatch
	}
	if g.MaxLoraCount <= 0 {
		g.MaxLoraCount = genDefaults.MaxLoraCount
	}
	if g.MinWidth <= 0 {
		g.MinWidth = genDefaults.MinWidth
	}
	if g.MaxWidth < g.MinWidth {
		g.MaxWidth = genDefaults.MaxWidth
	}
	if g.MinHeight <= 0 {
		g.MinHeight = genDefaults.MinHeight
	}
	if g.MaxHeight < g.MinHeight {
		g.MaxHeight = genDefaults.MaxHeight
	}

	d := &cfg.Dispatch
	if d.MaxTaskQueue <= 0 {
		d.MaxTaskQueue = dispDefaults.MaxTaskQueue
	}
	if d.MaxConcurrentTasksPerUser <= 0 {
		d.MaxConcurrentTasksPerUser = dispDefaults.MaxConcurrentTasksPerUser
	}
	if d.MaxRetries < 0 {
		d.MaxRetries = dispDefaults.MaxRetries
	}
	if d.MaxFailureCount <= 0 {
		d.MaxFailureCount = dispDefaults.MaxFailureCount
	}
	if d.RetryDelay <= 0 {
		d.RetryDelay = dispDefaults.RetryDelay
	}
	if d.FailureCooldown <= 0 {
		d.FailureCooldown = dispDefaults.FailureCooldown
	}
	if d.ServerCheckInterval <= 0 {
		d.ServerCheckInterval = dispDefaults.ServerCheckInterval
	}
	if d.ProbeTimeout <= 0 {
		d.ProbeTimeout = dispDefaults.ProbeTimeout
	}
	if d.PollTimeout <= 0 {
		d.PollTimeout = dispDefaults.PollTimeout
	}
	if d.PollInterval <= 0 {
		d.PollInterval = dispDefaults.PollInterval
	}
	if d.QueueCheckDelay <= 0 {
		d.QueueCheckDelay = dispDefaults.QueueCheckDelay
	}
	if d.QueueCheckInterval <= 0 {
		d.QueueCheckInterval = dispDefaults.QueueCheckInterval
	}
	if d.EmptyQueueMaxRetry <= 0 {
		d.EmptyQueueMaxRetry = dispDefaults.EmptyQueueMaxRetry
	}
	if d.WorkerIdlePoll <= 0 {
		d.WorkerIdlePoll = dispDefaults.WorkerIdlePoll
	}
	if d.DrainTimeout <= 0 {
		d.DrainTimeout = dispDefaults.DrainTimeout
	}
	if d.RetrySleep <= 0 {
		d.RetrySleep = dispDefaults.RetrySleep
	}

	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8188
	}
	if cfg.HTTP.Mode == "" {
		cfg.HTTP.Mode = "release"
	}
	if cfg.Workflow.Dir == "" {
		cfg.Workflow.Dir = "workflow"
	}
}
