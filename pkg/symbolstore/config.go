package symbolstore

import (
	"errors"
	"flag"
	"time"

	"github.com/posthog/cymbal/pkg/util/bytesize"
)

type Config struct {
	MaxBytes            bytesize.ByteSize `yaml:"max_bytes"`
	FailureTTL          time.Duration     `yaml:"failure_ttl"`
	PermanentFailureTTL time.Duration     `yaml:"permanent_failure_ttl"`
	MaxFailedEntries    int               `yaml:"max_failed_entries" category:"advanced"`
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("symbol-store", f)
}

func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	cfg.MaxBytes = 512 * bytesize.MiB
	f.Var(&cfg.MaxBytes, prefix+".max-bytes", "Byte quota of the in-memory symbol set cache. Least recently used sets are evicted above it.")
	f.DurationVar(&cfg.FailureTTL, prefix+".failure-ttl", time.Minute, "How long a retryable fetch failure is cached. 0 disables caching, a negative value caches forever.")
	f.DurationVar(&cfg.PermanentFailureTTL, prefix+".permanent-failure-ttl", time.Hour, "How long a non-retryable failure (forbidden destination, unparsable content) is cached. 0 disables caching, a negative value caches forever.")
	f.IntVar(&cfg.MaxFailedEntries, prefix+".max-failed-entries", 10000, "Maximum number of cached failures.")
}

func (cfg *Config) Validate() error {
	if cfg.MaxBytes == 0 {
		return errors.New("invalid symbol store max-bytes value, must be positive")
	}
	if cfg.MaxFailedEntries < 1 {
		return errors.New("invalid symbol store max-failed-entries value, must be positive")
	}
	return nil
}

// failureTTL returns how long err is remembered and whether it is cached at all.
func (cfg *Config) failureTTL(err error) (ttl time.Duration, cache bool) {
	ttl = cfg.PermanentFailureTTL
	if IsRetryable(err) {
		ttl = cfg.FailureTTL
	}
	return ttl, ttl != 0
}
