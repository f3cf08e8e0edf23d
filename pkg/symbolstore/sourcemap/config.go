package sourcemap

import (
	"errors"
	"flag"
	"time"

	"github.com/posthog/cymbal/pkg/util/bytesize"
)

type Config struct {
	AllowInternalIPs  bool              `yaml:"allow_internal_ips"`
	Timeout           time.Duration     `yaml:"timeout"`
	MaxFetchBytes     bytesize.ByteSize `yaml:"max_fetch_bytes"`
	UserAgent         string            `yaml:"user_agent"`
	MaxRetries        int               `yaml:"max_retries"`
	MinBackoff        time.Duration     `yaml:"min_backoff" category:"advanced"`
	MaxBackoff        time.Duration     `yaml:"max_backoff" category:"advanced"`
	MaxRedirects      int               `yaml:"max_redirects" category:"advanced"`
	RequestsPerSecond float64           `yaml:"requests_per_second"`
	Burst             int               `yaml:"burst"`
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("sourcemap", f)
}

func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	cfg.MaxFetchBytes = 32 * bytesize.MiB
	f.BoolVar(&cfg.AllowInternalIPs, prefix+".allow-internal-ips", false, "Allow fetching sources and maps from loopback, private and link-local addresses.")
	f.DurationVar(&cfg.Timeout, prefix+".timeout", 10*time.Second, "Timeout of a single source or map request.")
	f.Var(&cfg.MaxFetchBytes, prefix+".max-fetch-bytes", "Maximum size of a fetched source or map.")
	f.StringVar(&cfg.UserAgent, prefix+".user-agent", "cymbal", "User-Agent sent with source and map requests.")
	f.IntVar(&cfg.MaxRetries, prefix+".max-retries", 2, "Number of times a request failing with a retryable error is retried.")
	f.DurationVar(&cfg.MinBackoff, prefix+".min-backoff", 100*time.Millisecond, "Minimum delay between retries.")
	f.DurationVar(&cfg.MaxBackoff, prefix+".max-backoff", 2*time.Second, "Maximum delay between retries.")
	f.IntVar(&cfg.MaxRedirects, prefix+".max-redirects", 3, "Maximum number of redirects followed per request.")
	f.Float64Var(&cfg.RequestsPerSecond, prefix+".requests-per-second", 0, "Rate limit of outbound requests. 0 means unlimited.")
	f.IntVar(&cfg.Burst, prefix+".burst", 10, "Burst size of the outbound rate limit.")
}

func (cfg *Config) Validate() error {
	if cfg.Timeout <= 0 {
		return errors.New("invalid sourcemap timeout, must be positive")
	}
	if cfg.MaxFetchBytes == 0 {
		return errors.New("invalid sourcemap max-fetch-bytes value, must be positive")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("invalid sourcemap max-retries value, must not be negative")
	}
	if cfg.MinBackoff > cfg.MaxBackoff {
		return errors.New("invalid sourcemap backoff, min-backoff must not exceed max-backoff")
	}
	if cfg.RequestsPerSecond < 0 {
		return errors.New("invalid sourcemap requests-per-second value, must not be negative")
	}
	if cfg.RequestsPerSecond > 0 && cfg.Burst < 1 {
		return errors.New("invalid sourcemap burst value, must be positive when rate limiting")
	}
	return nil
}
