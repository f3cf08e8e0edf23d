package main

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/posthog/cymbal/pkg/cymbal"
)

type configParams struct {
	File      string
	ExpandEnv bool
}

func addConfigParams(cmd commander) *configParams {
	params := new(configParams)
	cmd.Flag("config.file", "Configuration file to load.").Envar("CYMBAL_CONFIG_FILE").StringVar(&params.File)
	cmd.Flag("config.expand-env", "Expand ${VAR} references in the configuration file.").Default("false").BoolVar(&params.ExpandEnv)
	return params
}

func (p *configParams) load() (cymbal.Config, error) {
	cfg := cymbal.DefaultConfig()
	if p.File == "" {
		return cfg, nil
	}
	if err := cymbal.LoadConfig(p.File, p.ExpandEnv, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// serviceLogger replaces the command line filter with the configured level.
func serviceLogger(cfg cymbal.Config) log.Logger {
	l := log.With(baseLogger, "ts", log.DefaultTimestampUTC)
	if cfg.LogLevel.String() == "" {
		return level.NewFilter(l, level.AllowInfo())
	}
	return level.NewFilter(l, levelFilter(cfg.LogLevel.String()))
}

func levelFilter(l string) level.Option {
	switch l {
	case "debug":
		return level.AllowDebug()
	case "info":
		return level.AllowInfo()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowAll()
	}
}
