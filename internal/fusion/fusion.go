// internal/fusion/fusion.go
package fusion

import (
	"sort"
	"strings"
	"unicode"

	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/dedup"
	"poi-aggregator/internal/models"
)

// maxDescriptionRunes bounds the fused description display length.
const maxDescriptionRunes = 300

// Resolver merges one venue group into a canonical venue. Scalar
// fields take the first non-empty value in descending reliability
// order; aggregate fields combine across members.
type Resolver struct {
	logger logger.Logger
}

func New(log logger.Logger) *Resolver {
	return &Resolver{logger: log}
}

func (r *Resolver) Resolve(group models.VenueGroup) models.CanonicalVenue {
	members := make([]models.CandidateRecord, len(group.Records))
	copy(members, group.Records)
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Weight != members[j].Weight {
			return members[i].Weight > members[j].Weight
		}
		return members[i].FetchedAt.After(members[j].FetchedAt)
	})

	venue := models.CanonicalVenue{
		Name:                firstString(members, func(m models.CandidateRecord) string { return m.Name }),
		Address:             firstString(members, func(m models.CandidateRecord) string { return m.Address }),
		Phone:               firstString(members, func(m models.CandidateRecord) string { return m.Phone }),
		BusinessHours:       firstString(members, func(m models.CandidateRecord) string { return m.BusinessHours }),
		PriceBand:           firstString(members, func(m models.CandidateRecord) string { return m.PriceBand }),
		Coordinates:         firstCoordinates(members),
		PriceEstimate:       firstPrice(members),
		Rating:              weightedRating(members),
		ReviewCount:         maxReviewCount(members),
		Tags:                unionTags(members),
		Description:         longestDescription(members),
		ContributingSources: contributingSources(members),
	}
	venue.ID = models.VenueID(dedup.NormalizeName(venue.Name), venue.Coordinates)
	return venue
}

func firstString(members []models.CandidateRecord, get func(models.CandidateRecord) string) string {
	for _, m := range members {
		if v := get(m); v != "" {
			return v
		}
	}
	return ""
}

func firstCoordinates(members []models.CandidateRecord) *models.LatLng {
	for _, m := range members {
		if m.Coordinates != nil {
			c := *m.Coordinates
			return &c
		}
	}
	return nil
}

func firstPrice(members []models.CandidateRecord) *float64 {
	for _, m := range members {
		if m.PriceEstimate != nil {
			p := *m.PriceEstimate
			return &p
		}
	}
	return nil
}

// weightedRating averages ratings across members that provide one,
// weighted by source reliability.
func weightedRating(members []models.CandidateRecord) *float64 {
	sum := 0.0
	weightSum := 0.0
	for _, m := range members {
		if m.Rating == nil || m.Weight <= 0 {
			continue
		}
		sum += *m.Rating * m.Weight
		weightSum += m.Weight
	}
	if weightSum == 0 {
		return nil
	}
	avg := sum / weightSum
	return &avg
}

// maxReviewCount assumes more complete counts supersede partial ones.
func maxReviewCount(members []models.CandidateRecord) int {
	max := 0
	for _, m := range members {
		if m.ReviewCount > max {
			max = m.ReviewCount
		}
	}
	return max
}

// unionTags keeps first-appearance order within the weight ordering.
func unionTags(members []models.CandidateRecord) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, m := range members {
		for _, tag := range m.Tags {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}

func longestDescription(members []models.CandidateRecord) string {
	longest := ""
	for _, m := range members {
		if len([]rune(m.Description)) > len([]rune(longest)) {
			longest = m.Description
		}
	}
	return truncateWordSafe(longest, maxDescriptionRunes)
}

// truncateWordSafe cuts at the limit, backing up to the last word
// boundary when the text has one reasonably close.
func truncateWordSafe(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := runes[:limit]
	for i := len(cut) - 1; i >= limit-30 && i > 0; i-- {
		if unicode.IsSpace(cut[i]) {
			return strings.TrimSpace(string(cut[:i]))
		}
	}
	return string(cut)
}

// contributingSources lists each distinct source kind present, ordered
// by its best member weight descending.
func contributingSources(members []models.CandidateRecord) []models.SourceKind {
	best := make(map[models.SourceKind]float64)
	var order []models.SourceKind
	for _, m := range members {
		if _, ok := best[m.SourceKind]; !ok {
			order = append(order, m.SourceKind)
		}
		if m.Weight > best[m.SourceKind] {
			best[m.SourceKind] = m.Weight
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return best[order[i]] > best[order[j]]
	})
	return order
}
