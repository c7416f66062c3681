package metrics

import (
	"dexarb/internal/config"

	"github.com/grafana/pyroscope-go"
)

// InitPProf starts continuous profiling; nil profiler when disabled
func InitPProf(cfg *config.PyroscopeConfig, instanceID string) (*pyroscope.Profiler, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	tags := map[string]string{"instance": instanceID}
	for k, v := range cfg.Tags {
		tags[k] = v
	}

	appName := cfg.AppName
	if appName == "" {
		appName = "dexarb"
	}

	return pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   cfg.ServerAddr,
		AuthToken:       cfg.AuthToken,
		Logger:          pyroscope.StandardLogger,
		Tags:            tags,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockDuration,
		},
	})
}
