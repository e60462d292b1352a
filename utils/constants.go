package utils

import (
	"time"
)

// Dispatch defaults
const (
	// DefaultInterMessageDelay is the pause between two consecutive gateway sends
	DefaultInterMessageDelay = 10 * time.Second

	// DefaultBatchCap is the maximum number of queue items one dispatcher run claims
	DefaultBatchCap = 25

	// DefaultStaleClaimThreshold is how long a claim may stay unfinalized before the sweep reclaims it
	DefaultStaleClaimThreshold = 10 * time.Minute

	// MaxStaleRequeues is the number of times a stale claim is returned to pending before it is finalized as error
	MaxStaleRequeues = 3

	// DefaultRecurrenceTick is the interval between recurrence runner invocations
	DefaultRecurrenceTick = time.Minute

	// DefaultSweepInterval is the interval between stale-claim sweeps
	DefaultSweepInterval = time.Minute
)

// Queue ordering constants
const (
	// DefaultQueuePriority is assigned to items enqueued without an explicit priority (lower sends earlier)
	DefaultQueuePriority = 100
)

// Cache keys
const (
	// QueueStatusCacheKeyPrefix prefixes the per-customer queue depth cache entry
	QueueStatusCacheKeyPrefix = "queue_status:"

	// QueueStatusCacheTTL bounds how stale the cached queue depth counts may be
	QueueStatusCacheTTL = 5 * time.Second
)

// ContextKey is the type used for request scoped context values
type ContextKey string

// Request scoped context keys set by the HTTP layer
const (
	RequestIDKey  ContextKey = "request_id"
	UserAgentKey  ContextKey = "user_agent"
	IPAddressKey  ContextKey = "ip_address"
	EndpointKey   ContextKey = "endpoint"
	TimeoutKey    ContextKey = "timeout"
	CancelFuncKey ContextKey = "cancel_func"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)
