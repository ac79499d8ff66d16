// internal/dedup/similarity.go
package dedup

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"poi-aggregator/internal/models"
)

// foldTransformer decomposes accented characters and strips the
// combining marks, so "Café" and "Cafe" normalize identically.
var foldTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName case-folds, strips punctuation and collapses
// whitespace. Both the similarity comparison and the venue id use
// this form.
func NormalizeName(name string) string {
	folded, _, err := transform.String(foldTransformer, strings.ToLower(name))
	if err != nil {
		folded = strings.ToLower(name)
	}

	var b strings.Builder
	lastSpace := false
	for _, r := range folded {
		switch {
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			continue
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

// nameSimilarity is an edit-distance ratio over normalized names.
func nameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

const earthRadiusMeters = 6371000

// haversineMeters is the great-circle distance between two points.
func haversineMeters(a, b models.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// proximitySimilarity saturates at 1.0 inside the saturation radius
// and decays inversely beyond it.
func proximitySimilarity(a, b models.LatLng, saturationMeters float64) float64 {
	d := haversineMeters(a, b)
	if d <= saturationMeters {
		return 1
	}
	return saturationMeters / d
}

// addressSimilarity is a Jaccard index over rune bigrams, which works
// for both spaced and unspaced scripts.
func addressSimilarity(a, b string) float64 {
	setA := bigrams(NormalizeName(a))
	setB := bigrams(NormalizeName(b))
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for g := range setA {
		if setB[g] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func bigrams(s string) map[string]bool {
	r := []rune(s)
	set := make(map[string]bool)
	if len(r) == 1 {
		set[string(r)] = true
		return set
	}
	for i := 0; i+1 < len(r); i++ {
		if r[i] == ' ' || r[i+1] == ' ' {
			continue
		}
		set[string(r[i:i+2])] = true
	}
	return set
}
