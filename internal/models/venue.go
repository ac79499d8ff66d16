// internal/models/venue.go
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SourceKind identifies the class of provider a record came from.
type SourceKind string

const (
	SourcePrimaryAPI SourceKind = "primary_api"
	SourceScraped    SourceKind = "scraped"
	SourceGenerated  SourceKind = "generated"
	SourceEmergency  SourceKind = "emergency"
)

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// CandidateRecord is one provider's unreconciled view of one venue.
// Adapters construct it once and never mutate it afterwards.
type CandidateRecord struct {
	SourceKind SourceKind `json:"source_kind"`
	SourceName string     `json:"source_name"`
	// Weight is the source reliability coefficient assigned by the
	// producing adapter.
	Weight     float64 `json:"weight"`
	ExternalID string  `json:"external_id,omitempty"`

	Name          string    `json:"name"`
	Address       string    `json:"address,omitempty"`
	Coordinates   *LatLng   `json:"coordinates,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	BusinessHours string    `json:"business_hours,omitempty"`
	Rating        *float64  `json:"rating,omitempty"` // 0..5
	ReviewCount   int       `json:"review_count,omitempty"`
	PriceEstimate *float64  `json:"price_estimate,omitempty"`
	PriceBand     string    `json:"price_band,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Description   string    `json:"description,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// CompletenessFields counts the populated optional fields used by the
// completeness sub-score.
func (r CandidateRecord) CompletenessFields() int {
	n := 0
	if r.Address != "" {
		n++
	}
	if r.Phone != "" {
		n++
	}
	if r.BusinessHours != "" {
		n++
	}
	if len(r.Tags) > 0 {
		n++
	}
	if r.Description != "" {
		n++
	}
	return n
}

// VenueGroup is a set of candidate records believed to denote the same
// physical venue. It only exists during a single aggregation run.
type VenueGroup struct {
	Records []CandidateRecord `json:"records"`
	// Similarity is the score that justified the last merge into this
	// group; 1.0 for singleton groups.
	Similarity float64 `json:"similarity"`
}

// CanonicalVenue is the fused, scored, user-facing result entity.
type CanonicalVenue struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Address       string   `json:"address,omitempty"`
	Coordinates   *LatLng  `json:"coordinates,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	BusinessHours string   `json:"business_hours,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
	ReviewCount   int      `json:"review_count,omitempty"`
	PriceEstimate *float64 `json:"price_estimate,omitempty"`
	PriceBand     string   `json:"price_band,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Description   string   `json:"description,omitempty"`

	// ContributingSources lists every distinct source kind that fed
	// this venue, ordered by descending reliability weight.
	ContributingSources []SourceKind `json:"contributing_sources"`
	QualityScore        float64      `json:"quality_score"`
	BudgetCompatible    bool         `json:"budget_compatible"`
}

// LowConfidence reports whether every contributing source is an
// unverified one.
func (v CanonicalVenue) LowConfidence() bool {
	if len(v.ContributingSources) == 0 {
		return true
	}
	for _, s := range v.ContributingSources {
		if s != SourceGenerated && s != SourceEmergency {
			return false
		}
	}
	return true
}

// VenueID derives a stable venue fingerprint from the normalized fused
// name and rounded coordinates, so the same venue fused across
// independent runs gets the same id. A nil coordinate pair hashes as
// the zero pair.
func VenueID(normalizedName string, coords *LatLng) string {
	var lat, lng float64
	if coords != nil {
		lat, lng = coords.Lat, coords.Lng
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%.4f,%.4f", normalizedName, lat, lng)))
	return hex.EncodeToString(sum[:])[:16]
}
