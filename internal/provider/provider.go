// internal/provider/provider.go
package provider

import (
	"context"

	"poi-aggregator/internal/models"
)

// State describes the outcome of a single fetch.
type State string

const (
	StateOk        State = "ok"
	StatePartialOk State = "partial_ok"
	StateFailed    State = "failed"
)

// Status carries per-provider fetch accounting back to the orchestrator.
// PartialOk means at least one sub-source delivered while others failed.
type Status struct {
	State     State
	Succeeded int
	Attempted int
	Err       error
}

// Provider is one venue data source. Fetch never panics on provider
// errors; failures are reported through Status so the orchestrator can
// decide whether the fallback cascade needs to run.
type Provider interface {
	Name() string
	Kind() models.SourceKind
	Weight() float64
	Fetch(ctx context.Context, query models.AggregationQuery) ([]models.CandidateRecord, Status)
}
