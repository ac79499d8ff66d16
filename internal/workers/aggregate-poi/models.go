// internal/workers/aggregate-poi/models.go
package aggregatepoi

import "poi-aggregator/internal/models"

type Input struct {
	Destination    string         `json:"destination"`
	BudgetPerVenue *float64       `json:"budgetPerVenue,omitempty"`
	Coordinates    *models.LatLng `json:"coordinates,omitempty"`
	MaxResults     int            `json:"maxResults,omitempty"`
}

type Output struct {
	Venues []models.CanonicalVenue `json:"venues"`
	Count  int                     `json:"count"`
	// LowConfidence is set when every returned venue came exclusively
	// from unverified sources, so downstream steps can flag the list.
	LowConfidence bool `json:"lowConfidence"`
}
