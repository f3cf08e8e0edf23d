package cymbal

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/drone/envsubst"
	dslog "github.com/grafana/dskit/log"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/posthog/cymbal/pkg/symbolstore"
	"github.com/posthog/cymbal/pkg/symbolstore/sourcemap"
	"github.com/posthog/cymbal/pkg/symbolstore/storage"
)

type Config struct {
	Server      ServerConfig       `yaml:"server"`
	SymbolStore symbolstore.Config `yaml:"symbol_store"`
	Sourcemap   sourcemap.Config   `yaml:"sourcemap"`
	Storage     storage.Config     `yaml:"storage"`
	LogLevel    dslog.Level        `yaml:"log_level"`
}

type ServerConfig struct {
	HTTPListenAddress       string        `yaml:"http_listen_address"`
	ResolveConcurrency      int           `yaml:"resolve_concurrency"`
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout" category:"advanced"`
}

func (cfg *ServerConfig) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&cfg.HTTPListenAddress, "server.http-listen-address", ":3301", "Address the HTTP API listens on.")
	f.IntVar(&cfg.ResolveConcurrency, "server.resolve-concurrency", 16, "Maximum number of frames of a single request resolved concurrently.")
	f.DurationVar(&cfg.GracefulShutdownTimeout, "server.graceful-shutdown-timeout", 30*time.Second, "Time to wait for in-flight requests on shutdown.")
}

func (cfg *ServerConfig) Validate() error {
	if cfg.ResolveConcurrency < 1 {
		return errors.New("invalid server resolve-concurrency value, must be positive")
	}
	return nil
}

// RegisterFlags registers every flag and sets the defaults of cfg.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.Server.RegisterFlags(f)
	cfg.SymbolStore.RegisterFlags(f)
	cfg.Sourcemap.RegisterFlags(f)
	cfg.Storage.RegisterFlags(f)
	cfg.LogLevel.RegisterFlags(f)
}

func (cfg *Config) Validate() error {
	var errs *multierror.Error
	for _, v := range []interface{ Validate() error }{
		&cfg.Server,
		&cfg.SymbolStore,
		&cfg.Sourcemap,
		&cfg.Storage,
	} {
		if err := v.Validate(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// DefaultConfig returns the configuration with all flag defaults applied.
func DefaultConfig() Config {
	var cfg Config
	cfg.RegisterFlags(flag.NewFlagSet("defaults", flag.ContinueOnError))
	return cfg
}

// LoadConfig overlays the YAML file at path onto cfg. Unknown keys are
// rejected. With expandEnv, ${VAR} references are substituted first.
func LoadConfig(path string, expandEnv bool, cfg *Config) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return ParseConfig(buf, expandEnv, cfg)
}

func ParseConfig(buf []byte, expandEnv bool, cfg *Config) error {
	if expandEnv {
		s, err := envsubst.EvalEnv(string(buf))
		if err != nil {
			return fmt.Errorf("expand environment variables: %w", err)
		}
		buf = []byte(s)
	}
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
