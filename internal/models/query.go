// internal/models/query.go
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// AggregationQuery is the inbound request for one aggregation run.
type AggregationQuery struct {
	Destination    string   `json:"destination"`
	BudgetPerVenue *float64 `json:"budget_per_venue,omitempty"`
	Coordinates    *LatLng  `json:"coordinates,omitempty"`
	MaxResults     int      `json:"max_results"`
}

// Fingerprint derives the cache key for this query. The budget is
// bucketed to 50-unit bands so near-identical budgets share an entry.
func (q AggregationQuery) Fingerprint() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(q.Destination)))
	b.WriteString("|")
	if q.BudgetPerVenue != nil {
		bucket := int(math.Floor(*q.BudgetPerVenue / 50.0))
		fmt.Fprintf(&b, "b%d", bucket)
	} else {
		b.WriteString("b-")
	}
	b.WriteString("|")
	if q.Coordinates != nil {
		fmt.Fprintf(&b, "%.2f,%.2f", q.Coordinates.Lat, q.Coordinates.Lng)
	}
	fmt.Fprintf(&b, "|n%d", q.MaxResults)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:24]
}
