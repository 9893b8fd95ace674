package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldEvent      = "event"
	FieldTool       = "tool"
	FieldBackend    = "backend"
	FieldStrategy   = "strategy"
	FieldDurationMs = "duration_ms"
)

const (
	EventInvokeError     = "invoke_error"
	EventSearchError     = "search_error"
	EventIndexRebuild    = "index_rebuild"
	EventBackendRemoved  = "backend_removed"
	EventRegisterFailure = "register_failure"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func ToolField(tool string) zap.Field {
	return zap.String(FieldTool, tool)
}

func BackendField(backend string) zap.Field {
	return zap.String(FieldBackend, backend)
}

func StrategyField(strategy string) zap.Field {
	return zap.String(FieldStrategy, strategy)
}

func DurationField(d time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, d.Milliseconds())
}
