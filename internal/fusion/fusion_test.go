// internal/fusion/fusion_test.go
package fusion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poi-aggregator/internal/common/logger"
	"poi-aggregator/internal/models"
)

func floatPtr(f float64) *float64 { return &f }

func TestResolveMergedGroup(t *testing.T) {
	group := models.VenueGroup{
		Similarity: 0.85,
		Records: []models.CandidateRecord{
			{
				SourceKind: models.SourcePrimaryAPI, SourceName: "primary_api", Weight: 1.0,
				Name: "全聚德烤鸭店", Address: "前门大街30号",
				Coordinates: &models.LatLng{Lat: 39.9165, Lng: 116.3971},
				Phone:       "010-65112418",
				Rating:      floatPtr(4.5), ReviewCount: 12000,
				Tags: []string{"烤鸭店"},
			},
			{
				SourceKind: models.SourceScraped, SourceName: "review_aggregator", Weight: 0.9,
				Name:   "全聚德烤鸭店(前门店)",
				Rating: floatPtr(4.6), ReviewCount: 8000,
				Tags:        []string{"烤鸭店", "老字号"},
				Description: "北京最有名的烤鸭店之一，百年老字号。",
			},
		},
	}

	venue := New(logger.NewTestLogger(t)).Resolve(group)

	assert.Equal(t, "全聚德烤鸭店", venue.Name, "highest weight name wins")
	assert.Equal(t, "前门大街30号", venue.Address)
	assert.Equal(t, "010-65112418", venue.Phone)
	require.NotNil(t, venue.Coordinates)

	// Weighted average pulls toward the more reliable source.
	require.NotNil(t, venue.Rating)
	expected := (4.5*1.0 + 4.6*0.9) / 1.9
	assert.InDelta(t, expected, *venue.Rating, 0.0001)
	assert.Less(t, *venue.Rating, 4.6)
	assert.Greater(t, *venue.Rating, 4.5)

	assert.Equal(t, 12000, venue.ReviewCount, "max review count wins")
	assert.Equal(t, []string{"烤鸭店", "老字号"}, venue.Tags)
	assert.Equal(t, "北京最有名的烤鸭店之一，百年老字号。", venue.Description)
	assert.Equal(t, []models.SourceKind{models.SourcePrimaryAPI, models.SourceScraped}, venue.ContributingSources)
	assert.NotEmpty(t, venue.ID)
}

func TestResolveSingleton(t *testing.T) {
	group := models.VenueGroup{
		Similarity: 1.0,
		Records: []models.CandidateRecord{
			{SourceKind: models.SourceGenerated, Weight: 0.3, Name: "北京精品餐厅"},
		},
	}

	venue := New(logger.NewTestLogger(t)).Resolve(group)
	assert.Equal(t, "北京精品餐厅", venue.Name)
	assert.Nil(t, venue.Rating)
	assert.Equal(t, []models.SourceKind{models.SourceGenerated}, venue.ContributingSources)
	assert.True(t, venue.LowConfidence())
}

func TestResolveStableID(t *testing.T) {
	group := models.VenueGroup{
		Records: []models.CandidateRecord{
			{SourceKind: models.SourcePrimaryAPI, Weight: 1.0, Name: "全聚德烤鸭店",
				Coordinates: &models.LatLng{Lat: 39.9165, Lng: 116.3971}},
		},
	}

	resolver := New(logger.NewTestLogger(t))
	first := resolver.Resolve(group)
	second := resolver.Resolve(group)
	assert.Equal(t, first.ID, second.ID, "ids must be stable across runs")

	// Punctuation variance in the name must not change the id.
	variant := group
	variant.Records = []models.CandidateRecord{
		{SourceKind: models.SourcePrimaryAPI, Weight: 1.0, Name: "全聚德烤鸭店!",
			Coordinates: &models.LatLng{Lat: 39.9165, Lng: 116.3971}},
	}
	assert.Equal(t, first.ID, resolver.Resolve(variant).ID)
}

func TestTruncateWordSafe(t *testing.T) {
	short := "a short description"
	assert.Equal(t, short, truncateWordSafe(short, 300))

	long := strings.Repeat("word ", 100) // 500 runes
	truncated := truncateWordSafe(long, 300)
	assert.LessOrEqual(t, len([]rune(truncated)), 300)
	assert.False(t, strings.HasSuffix(truncated, " "), "no trailing space")
	assert.True(t, strings.HasSuffix(truncated, "word"), "cut lands on a word boundary")

	cjk := strings.Repeat("烤鸭店", 200)
	assert.Equal(t, 300, len([]rune(truncateWordSafe(cjk, 300))))
}

func TestWeightedRatingSkipsZeroWeight(t *testing.T) {
	members := []models.CandidateRecord{
		{Weight: 0, Rating: floatPtr(1.0)},
		{Weight: 0.9, Rating: floatPtr(4.0)},
	}
	rating := weightedRating(members)
	require.NotNil(t, rating)
	assert.InDelta(t, 4.0, *rating, 0.0001)
}
