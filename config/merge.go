package config

// mergeConfigs layers override on top of base. Set fields in override win;
// extension sections are merged one level deep.
func mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Version != "" {
		result.Version = override.Version
	}

	result.Worker = mergeWorker(base.Worker, override.Worker)

	if override.Queue.Debounce != 0 {
		result.Queue.Debounce = override.Queue.Debounce
	}
	if override.Queue.AutoHide != 0 {
		result.Queue.AutoHide = override.Queue.AutoHide
	}

	if override.Graph.MissingNodePolicy != "" {
		result.Graph.MissingNodePolicy = override.Graph.MissingNodePolicy
	}
	if override.Graph.Snapshot != "" {
		result.Graph.Snapshot = override.Graph.Snapshot
	}

	if override.Daemon.Socket != "" {
		result.Daemon.Socket = override.Daemon.Socket
	}
	if override.Daemon.PidFile != "" {
		result.Daemon.PidFile = override.Daemon.PidFile
	}

	result.Extensions = mergeExtensions(base.Extensions, override.Extensions)
	return &result
}

func mergeWorker(base, override WorkerConfig) WorkerConfig {
	result := base

	// A new command replaces the whole invocation.
	if override.Command != "" {
		result.Command = override.Command
		result.Args = override.Args
	} else if override.Args != nil {
		result.Args = override.Args
	}
	if override.Wrapper != nil {
		result.Wrapper = override.Wrapper
	}
	if override.WorkingDir != "" {
		result.WorkingDir = override.WorkingDir
	}
	if len(override.Env) > 0 {
		result.Env = append(append([]string{}, base.Env...), override.Env...)
	}
	if override.OutputFlag != "" {
		result.OutputFlag = override.OutputFlag
	}
	if override.OutputEnv != "" {
		result.OutputEnv = override.OutputEnv
	}
	if override.Sentinel != "" {
		result.Sentinel = override.Sentinel
	}
	if override.Timeout != 0 {
		result.Timeout = override.Timeout
	}
	if override.ReadTimeout != 0 {
		result.ReadTimeout = override.ReadTimeout
	}
	if override.ReadCommands != nil {
		result.ReadCommands = override.ReadCommands
	}
	return result
}

func mergeExtensions(base, override map[string]interface{}) map[string]interface{} {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}

	result := make(map[string]interface{}, len(base)+len(override))
	for key, value := range base {
		result[key] = value
	}
	for key, value := range override {
		baseMap, baseOk := result[key].(map[string]interface{})
		overrideMap, overrideOk := value.(map[string]interface{})
		if !baseOk || !overrideOk {
			result[key] = value
			continue
		}

		merged := make(map[string]interface{}, len(baseMap)+len(overrideMap))
		for k, v := range baseMap {
			merged[k] = v
		}
		for k, v := range overrideMap {
			merged[k] = v
		}
		result[key] = merged
	}
	return result
}
