package domain

import "time"

// Metrics receives engine observations. Implementations must be safe for
// concurrent use; a nil Metrics everywhere means "don't observe".
type Metrics interface {
	ObserveInvoke(kind BackendKind, duration time.Duration, err error)
	ObserveSearch(duration time.Duration, hits int)
	ObserveLoad(strategy LoadStrategy)
	SetRegisteredTools(count int)
}
