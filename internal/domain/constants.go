package domain

const (
	DefaultEssentialCap         = 5
	DefaultRelevantCap          = 15
	DefaultFallbackThreshold    = 50
	DefaultBM25K1               = 1.2
	DefaultBM25B                = 0.75
	DefaultInvokeTimeoutSeconds = 30
	DefaultSearchEnabled        = true
	DefaultAuditCapacity        = 256
	DefaultToolRefreshSeconds   = 30
	DefaultObservabilityListen  = "127.0.0.1:9090"
	DefaultStorePath            = "toolgate.db"
)
