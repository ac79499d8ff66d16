// internal/provider/scraper/extract.go
package scraper

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"poi-aggregator/internal/models"
)

var (
	tagPattern        = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`[ \t\r\f]+`)

	// venuePattern matches a run of text ending in a venue suffix, the
	// same shape listing pages and blog posts use for mentions.
	venuePattern = regexp.MustCompile(`([^。，,.\n|]{2,30}(?:餐厅|饭店|酒楼|火锅店|小吃店|咖啡厅|茶餐厅|restaurant|cafe|bistro|diner))([^。，,\n]{0,100})`)

	ratingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+\.?\d*)\s*分`),
		regexp.MustCompile(`(\d+\.?\d*)\s*星`),
		regexp.MustCompile(`(?i)rating[:\s]*(\d+\.?\d*)`),
		regexp.MustCompile(`(\d+\.?\d*)/5`),
	}

	reviewCountPattern = regexp.MustCompile(`(\d+)\s*(?:条评论|条点评|reviews)`)
)

// venueIndicators gates extraction: a mention with none of these in
// its surrounding text is treated as noise.
var venueIndicators = []string{
	"餐厅", "饭店", "酒楼", "茶餐厅", "火锅", "美食", "小吃", "菜", "料理", "烧烤", "麻辣烫",
	"restaurant", "dining", "food", "cuisine", "cafe", "bistro",
}

var cuisineTags = map[string]string{
	"川菜":  "Sichuan",
	"粤菜":  "Cantonese",
	"湘菜":  "Hunan",
	"东北菜": "Northeastern",
	"西餐":  "Western",
	"日料":  "Japanese",
	"韩料":  "Korean",
	"泰菜":  "Thai",
	"意大利": "Italian",
	"法餐":  "French",
	"火锅":  "Hot Pot",
	"烧烤":  "BBQ",
	"海鲜":  "Seafood",
	"素食":  "Vegetarian",
}

// priceBandEstimates maps a detected band to a per-person estimate so
// budget scoring has something to work with for scraped venues.
var priceBandEstimates = map[string]float64{
	"budget":    30,
	"mid-range": 60,
	"high-end":  120,
	"luxury":    200,
}

// cleanText strips markup and collapses whitespace so the extraction
// patterns see plain prose.
func cleanText(html string) string {
	text := tagPattern.ReplaceAllString(html, " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// extractVenues pulls venue mentions out of cleaned page text.
func extractVenues(text, sourceName string, weight float64, limit int) []models.CandidateRecord {
	seen := make(map[string]bool)
	now := time.Now()
	var records []models.CandidateRecord

	for _, match := range venuePattern.FindAllStringSubmatch(text, -1) {
		if len(records) >= limit {
			break
		}
		name := strings.TrimSpace(match[1])
		context := match[0]

		if len([]rune(name)) < 3 || seen[name] {
			continue
		}
		if !hasVenueIndicator(context) {
			continue
		}
		seen[name] = true

		rec := models.CandidateRecord{
			SourceKind:  models.SourceScraped,
			SourceName:  sourceName,
			Weight:      weight,
			Name:        truncateRunes(name, 40),
			Description: truncateRunes(strings.TrimSpace(context), 200),
			Tags:        extractCuisineTags(context),
			FetchedAt:   now,
		}

		if rating, ok := extractRating(context); ok {
			rec.Rating = &rating
		}
		if count, ok := extractReviewCount(context); ok {
			rec.ReviewCount = count
		}

		band := detectPriceBand(context)
		rec.PriceBand = band
		if estimate, ok := priceBandEstimates[band]; ok {
			rec.PriceEstimate = &estimate
		}

		records = append(records, rec)
	}
	return records
}

func hasVenueIndicator(text string) bool {
	lower := strings.ToLower(text)
	for _, indicator := range venueIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func extractCuisineTags(text string) []string {
	keywords := make([]string, 0, len(cuisineTags))
	for keyword := range cuisineTags {
		keywords = append(keywords, keyword)
	}
	sort.Strings(keywords)

	var tags []string
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			tags = append(tags, cuisineTags[keyword])
		}
	}
	return tags
}

// extractRating finds a rating mention and normalizes it to the 0-5
// scale. Values above 5 are assumed to be out of 10.
func extractRating(text string) (float64, bool) {
	for _, pattern := range ratingPatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		rating, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		if rating > 5 {
			rating = rating / 2
		}
		if rating < 1 {
			rating = 1
		}
		if rating > 5 {
			rating = 5
		}
		return rating, true
	}
	return 0, false
}

func extractReviewCount(text string) (int, bool) {
	match := reviewCountPattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	count, err := strconv.Atoi(match[1])
	if err != nil || count < 0 {
		return 0, false
	}
	return count, true
}

func detectPriceBand(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "奢华", "michelin", "米其林"):
		return "luxury"
	case containsAny(lower, "高端", "豪华", "luxury", "fine dining", "expensive"):
		return "high-end"
	case containsAny(lower, "便宜", "实惠", "cheap", "budget", "affordable"):
		return "budget"
	default:
		return "mid-range"
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
