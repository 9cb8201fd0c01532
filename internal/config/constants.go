package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 30 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Post-ack work started by Slack requests runs under this deadline, with at
// most DispatcherMaxConcurrent handlers in flight.
const (
	HandlerTimeout          = 30 * time.Second
	DispatcherMaxConcurrent = 64
)

// Slack OAuth state lifetime
const OAuthStateTTL = 10 * time.Minute

// Tip image endpoint
const (
	TipImageCacheMaxAge   = 5 * time.Minute
	TipImageRateLimit     = 30
	TipImageRateLimitSpan = time.Minute
)
