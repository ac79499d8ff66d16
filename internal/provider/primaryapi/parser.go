// internal/provider/primaryapi/parser.go
package primaryapi

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"poi-aggregator/internal/common/validation"
	"poi-aggregator/internal/models"
)

// nonVenueKeywords marks POIs the service returns under broad category
// searches that are not actual venues.
var nonVenueKeywords = []string{
	"银行", "医院", "学校", "酒店", "宾馆", "商场",
	"超市", "加油站", "停车场", "地铁", "公交",
}

// poiItem mirrors the service's loose field typing. Numeric fields
// arrive as strings or numbers depending on the endpoint, and empty
// fields sometimes arrive as empty arrays, so everything optional is
// decoded as interface{} and coerced.
type poiItem struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	Address       interface{} `json:"address"`
	Location      string      `json:"location"`
	Type          string      `json:"type"`
	Tel           interface{} `json:"tel"`
	BusinessHours interface{} `json:"business_hours"`
	Rating        interface{} `json:"rating"`
	ReviewCount   interface{} `json:"review_count"`
	AvgPrice      interface{} `json:"avg_price"`
}

type poiResponse struct {
	Status string    `json:"status"`
	POIs   []poiItem `json:"pois"`
}

func parseResponse(body []byte, weight float64) []models.CandidateRecord {
	var resp poiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}

	now := time.Now()
	records := make([]models.CandidateRecord, 0, len(resp.POIs))
	for _, poi := range resp.POIs {
		rec, ok := parsePOI(poi, weight, now)
		if ok {
			records = append(records, rec)
		}
	}
	return records
}

func parsePOI(poi poiItem, weight float64, fetchedAt time.Time) (models.CandidateRecord, bool) {
	name := strings.TrimSpace(poi.Name)
	if len([]rune(name)) < 2 {
		return models.CandidateRecord{}, false
	}
	for _, keyword := range nonVenueKeywords {
		if strings.Contains(name, keyword) {
			return models.CandidateRecord{}, false
		}
	}

	rec := models.CandidateRecord{
		SourceKind:    models.SourcePrimaryAPI,
		SourceName:    SourceName,
		Weight:        weight,
		ExternalID:    poi.ID,
		Name:          name,
		Address:       asString(poi.Address),
		Coordinates:   parseLocation(poi.Location),
		BusinessHours: asString(poi.BusinessHours),
		Tags:          parseTags(poi.Type),
		FetchedAt:     fetchedAt,
	}

	// tel sometimes carries placeholder text instead of a number.
	if phone := asString(poi.Tel); validation.ValidatePhone(phone) {
		rec.Phone = phone
	}

	if rating, ok := asFloat(poi.Rating); ok && rating >= 0 && rating <= 5 {
		rec.Rating = &rating
	}
	if count, ok := asFloat(poi.ReviewCount); ok && count >= 0 {
		rec.ReviewCount = int(count)
	}
	if price, ok := asFloat(poi.AvgPrice); ok && price > 0 {
		rec.PriceEstimate = &price
	}
	return rec, true
}

// parseLocation parses the service's "lng,lat" coordinate format.
func parseLocation(loc string) *models.LatLng {
	parts := strings.Split(strings.TrimSpace(loc), ",")
	if len(parts) != 2 {
		return nil
	}
	lng, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &models.LatLng{Lat: lat, Lng: lng}
}

// parseTags splits the service's semicolon-delimited category path.
func parseTags(typePath string) []string {
	if typePath == "" {
		return nil
	}
	var tags []string
	for _, part := range strings.Split(typePath, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

func asString(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
