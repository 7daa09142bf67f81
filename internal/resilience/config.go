package resilience

import (
	"time"

	"github.com/sells-group/athena/internal/config"
)

// FromRetryConfig converts the retry config section to a RetryConfig.
// Zero values keep the defaults.
func FromRetryConfig(rc config.RetryConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if rc.MaxAttempts > 0 {
		cfg.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(rc.InitialBackoffMs) * time.Millisecond
	}
	if rc.MaxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(rc.MaxBackoffMs) * time.Millisecond
	}
	if rc.Multiplier > 0 {
		cfg.Multiplier = rc.Multiplier
	}
	if rc.JitterFraction >= 0 {
		cfg.JitterFraction = rc.JitterFraction
	}
	return cfg
}
