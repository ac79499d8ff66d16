// internal/dedup/dedup.go
package dedup

import (
	"fmt"
	"sort"

	"poi-aggregator/internal/common/config"
	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/models"
)

// Grouper groups candidate records that denote the same physical
// venue. Grouping uses union-find semantics: transitive merging is an
// accepted approximation, which can occasionally over-merge a long
// chain of marginally similar records.
type Grouper struct {
	cfg    config.DedupConfig
	logger logger.Logger
}

func New(cfg config.DedupConfig, log logger.Logger) *Grouper {
	return &Grouper{cfg: cfg, logger: log}
}

// Group partitions the flattened candidate list into venue groups.
// The result is deterministic for a fixed input and configuration.
func (g *Grouper) Group(records []models.CandidateRecord) []models.VenueGroup {
	if len(records) == 0 {
		return nil
	}

	normalized := make([]string, len(records))
	for i, rec := range records {
		normalized[i] = NormalizeName(rec.Name)
	}

	uf := newUnionFind(len(records))
	mergeScore := make([]float64, len(records))

	// Candidate pairs come from shared buckets, keeping comparison
	// sub-quadratic for larger sets.
	buckets := make(map[string][]int)
	for i, rec := range records {
		for _, key := range bucketKeys(rec, normalized[i]) {
			buckets[key] = append(buckets[key], i)
		}
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		members := buckets[key]
		for x := 0; x < len(members); x++ {
			for y := x + 1; y < len(members); y++ {
				i, j := members[x], members[y]
				if uf.find(i) == uf.find(j) {
					continue
				}

				if sameExternalID(records[i], records[j]) {
					mergeWithScore(uf, mergeScore, i, j, 1)
					continue
				}

				sim := g.similarity(records[i], records[j], normalized[i], normalized[j])
				if sim >= g.cfg.Threshold {
					mergeWithScore(uf, mergeScore, i, j, sim)
				}
			}
		}
	}

	byRoot := make(map[int][]int)
	for i := range records {
		root := uf.find(i)
		byRoot[root] = append(byRoot[root], i)
	}

	roots := make([]int, 0, len(byRoot))
	for root := range byRoot {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	groups := make([]models.VenueGroup, 0, len(roots))
	for _, root := range roots {
		indices := byRoot[root]
		members := make([]models.CandidateRecord, 0, len(indices))
		for _, i := range indices {
			members = append(members, records[i])
		}
		sortGroupMembers(members)

		sim := mergeScore[root]
		if len(members) == 1 {
			sim = 1
		}
		groups = append(groups, models.VenueGroup{Records: members, Similarity: sim})
	}

	g.logger.Debug("dedup grouping completed", map[string]interface{}{
		"candidates": len(records),
		"groups":     len(groups),
	})
	return groups
}

// similarity combines name, proximity and address signals. Weights of
// unavailable signals are redistributed over the available ones.
func (g *Grouper) similarity(a, b models.CandidateRecord, nameA, nameB string) float64 {
	score := nameSimilarity(nameA, nameB) * g.cfg.NameWeight
	total := g.cfg.NameWeight

	if a.Coordinates != nil && b.Coordinates != nil {
		score += proximitySimilarity(*a.Coordinates, *b.Coordinates, g.cfg.ProximitySaturation) * g.cfg.ProximityWeight
		total += g.cfg.ProximityWeight
	}
	if a.Address != "" && b.Address != "" {
		score += addressSimilarity(a.Address, b.Address) * g.cfg.AddressWeight
		total += g.cfg.AddressWeight
	}

	if total == 0 {
		return 0
	}
	return score / total
}

// mergeWithScore unions two components and carries the best merge
// score of either side onto the surviving root. Without the carry a
// later union could reparent a component and orphan its score.
func mergeWithScore(uf *unionFind, mergeScore []float64, i, j int, score float64) {
	if s := mergeScore[uf.find(i)]; s > score {
		score = s
	}
	if s := mergeScore[uf.find(j)]; s > score {
		score = s
	}
	uf.union(i, j)
	mergeScore[uf.find(i)] = score
}

// sameExternalID merges records sharing a primary-source identifier
// regardless of field differences.
func sameExternalID(a, b models.CandidateRecord) bool {
	return a.SourceKind == models.SourcePrimaryAPI &&
		b.SourceKind == models.SourcePrimaryAPI &&
		a.ExternalID != "" &&
		a.ExternalID == b.ExternalID
}

// sortGroupMembers orders a group by descending reliability weight.
// For equal weights the most recently fetched record wins, which is
// the tie-break for same-identifier conflicts.
func sortGroupMembers(members []models.CandidateRecord) {
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Weight != members[j].Weight {
			return members[i].Weight > members[j].Weight
		}
		if !members[i].FetchedAt.Equal(members[j].FetchedAt) {
			return members[i].FetchedAt.After(members[j].FetchedAt)
		}
		return members[i].Name < members[j].Name
	})
}

// bucketKeys yields the coarse buckets a record belongs to: a rounded
// coordinate cell when coordinates exist, and a normalized-name
// prefix.
func bucketKeys(rec models.CandidateRecord, normalized string) []string {
	var keys []string
	if rec.SourceKind == models.SourcePrimaryAPI && rec.ExternalID != "" {
		keys = append(keys, "x:"+rec.ExternalID)
	}
	if rec.Coordinates != nil {
		keys = append(keys, fmt.Sprintf("c:%.2f,%.2f", rec.Coordinates.Lat, rec.Coordinates.Lng))
	}
	runes := []rune(normalized)
	prefixLen := 2
	if len(runes) < prefixLen {
		prefixLen = len(runes)
	}
	if prefixLen > 0 {
		keys = append(keys, "n:"+string(runes[:prefixLen]))
	}
	return keys
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}
