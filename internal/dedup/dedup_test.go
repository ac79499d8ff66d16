// internal/dedup/dedup_test.go
package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poi-aggregator/internal/common/config"
	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/models"
)

func testDedupConfig() config.DedupConfig {
	return config.DedupConfig{
		Threshold:           0.75,
		NameWeight:          0.5,
		ProximityWeight:     0.3,
		AddressWeight:       0.2,
		ProximitySaturation: 150,
	}
}

func newTestGrouper(t *testing.T) *Grouper {
	return New(testDedupConfig(), logger.NewTestLogger(t))
}

func floatPtr(f float64) *float64 { return &f }

func TestGroupMergesOverlappingVenue(t *testing.T) {
	coords := &models.LatLng{Lat: 39.9165, Lng: 116.3971}
	nearby := &models.LatLng{Lat: 39.9166, Lng: 116.3972}

	records := []models.CandidateRecord{
		{
			SourceKind: models.SourcePrimaryAPI, SourceName: "primary_api", Weight: 1.0,
			ExternalID: "B001", Name: "全聚德烤鸭店", Address: "前门大街30号",
			Coordinates: coords, Rating: floatPtr(4.5),
		},
		{
			SourceKind: models.SourceScraped, SourceName: "review_aggregator", Weight: 0.9,
			Name: "全聚德烤鸭店(前门店)", Address: "前门大街30号",
			Coordinates: nearby, Rating: floatPtr(4.6),
		},
		{
			SourceKind: models.SourceScraped, SourceName: "food_blog", Weight: 0.7,
			Name: "南门涮肉", Address: "天坛北路",
		},
	}

	groups := newTestGrouper(t).Group(records)
	require.Len(t, groups, 2)

	var merged, singleton *models.VenueGroup
	for i := range groups {
		if len(groups[i].Records) == 2 {
			merged = &groups[i]
		} else {
			singleton = &groups[i]
		}
	}
	require.NotNil(t, merged, "the overlapping pair must merge")
	require.NotNil(t, singleton)
	assert.Equal(t, "全聚德烤鸭店", merged.Records[0].Name, "highest weight member first")
	assert.Equal(t, "南门涮肉", singleton.Records[0].Name)
	assert.Equal(t, 1.0, singleton.Similarity)
}

func TestGroupSameExternalIDAlwaysMerges(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	records := []models.CandidateRecord{
		{
			SourceKind: models.SourcePrimaryAPI, Weight: 1.0, ExternalID: "B001",
			Name: "老店旧名", FetchedAt: older,
		},
		{
			SourceKind: models.SourcePrimaryAPI, Weight: 1.0, ExternalID: "B001",
			Name: "新装修的完全不同名字", FetchedAt: newer,
		},
	}

	groups := newTestGrouper(t).Group(records)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Records, 2)
	assert.Equal(t, "新装修的完全不同名字", groups[0].Records[0].Name,
		"most recently fetched record wins the tie-break")
}

func TestGroupDistinctVenuesStaySeparate(t *testing.T) {
	records := []models.CandidateRecord{
		{SourceKind: models.SourceScraped, Weight: 0.9, Name: "全聚德烤鸭店",
			Coordinates: &models.LatLng{Lat: 39.9165, Lng: 116.3971}},
		{SourceKind: models.SourceScraped, Weight: 0.9, Name: "东来顺饭庄",
			Coordinates: &models.LatLng{Lat: 39.9149, Lng: 116.4109}},
	}

	groups := newTestGrouper(t).Group(records)
	assert.Len(t, groups, 2)
}

func TestGroupIdempotence(t *testing.T) {
	records := []models.CandidateRecord{
		{SourceKind: models.SourcePrimaryAPI, Weight: 1.0, ExternalID: "B001",
			Name: "全聚德烤鸭店", Address: "前门大街30号",
			Coordinates: &models.LatLng{Lat: 39.9165, Lng: 116.3971}},
		{SourceKind: models.SourceScraped, Weight: 0.9,
			Name: "全聚德烤鸭店 前门店", Address: "前门大街30号",
			Coordinates: &models.LatLng{Lat: 39.9166, Lng: 116.3972}},
		{SourceKind: models.SourceScraped, Weight: 0.7, Name: "护国寺小吃"},
		{SourceKind: models.SourceGenerated, Weight: 0.3, Name: "北京精品餐厅"},
	}

	grouper := newTestGrouper(t)
	first := grouper.Group(records)
	second := grouper.Group(records)

	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Equal(t, len(first[i].Records), len(second[i].Records))
		for j := range first[i].Records {
			assert.Equal(t, first[i].Records[j].Name, second[i].Records[j].Name)
		}
	}
}

func TestMergeScoreSurvivesReparenting(t *testing.T) {
	uf := newUnionFind(4)
	scores := make([]float64, 4)

	// Two independently merged pairs, then a cross merge that absorbs
	// one root under the other. The absorbed side holds the best score.
	mergeWithScore(uf, scores, 2, 3, 0.95)
	mergeWithScore(uf, scores, 0, 1, 0.80)
	mergeWithScore(uf, scores, 0, 2, 0.78)

	root := uf.find(0)
	for i := 1; i < 4; i++ {
		require.Equal(t, root, uf.find(i))
	}
	assert.Equal(t, 0.95, scores[root])
}

func TestGroupEmptyInput(t *testing.T) {
	assert.Nil(t, newTestGrouper(t).Group(nil))
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  Quánjùdé  Roast   Duck ", "quanjude roast duck"},
		{"全聚德烤鸭店(前门店)", "全聚德烤鸭店前门店"},
		{"CAFÉ de Flore!", "cafe de flore"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeName(tt.input), tt.input)
	}
}

func TestNameSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, nameSimilarity("全聚德烤鸭店", "全聚德烤鸭店"))
	assert.Greater(t, nameSimilarity("全聚德烤鸭店", "全聚德烤鸭店前门店"), 0.6)
	assert.Less(t, nameSimilarity("全聚德烤鸭店", "东来顺饭庄"), 0.3)
	assert.Equal(t, 0.0, nameSimilarity("", "东来顺"))
}

func TestProximitySimilarity(t *testing.T) {
	a := models.LatLng{Lat: 39.9165, Lng: 116.3971}
	near := models.LatLng{Lat: 39.9166, Lng: 116.3972} // ~14m away
	far := models.LatLng{Lat: 39.9300, Lng: 116.4200}  // kilometers away

	assert.Equal(t, 1.0, proximitySimilarity(a, near, 150))
	assert.Less(t, proximitySimilarity(a, far, 150), 0.1)
}

func TestHaversineMeters(t *testing.T) {
	a := models.LatLng{Lat: 39.9165, Lng: 116.3971}
	b := models.LatLng{Lat: 39.9165, Lng: 116.3971}
	assert.InDelta(t, 0, haversineMeters(a, b), 0.001)

	// One degree of latitude is about 111km.
	c := models.LatLng{Lat: 40.9165, Lng: 116.3971}
	assert.InDelta(t, 111000, haversineMeters(a, c), 500)
}

func TestAddressSimilarity(t *testing.T) {
	assert.Greater(t, addressSimilarity("前门大街30号", "前门大街30号"), 0.99)
	assert.Greater(t, addressSimilarity("前门大街30号", "北京前门大街30号"), 0.5)
	assert.Less(t, addressSimilarity("前门大街30号", "朝阳区建国路88号"), 0.2)
	assert.Equal(t, 0.0, addressSimilarity("", "前门大街"))
}
