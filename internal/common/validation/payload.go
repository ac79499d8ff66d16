// internal/common/validation/payload.go
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// poiResponseSchema is the contract the structured POI provider is held
// to before any parsing happens. Extra fields are tolerated; missing or
// mistyped core fields are not.
const poiResponseSchema = `{
	"type": "object",
	"required": ["status", "pois"],
	"properties": {
		"status": {"type": "string"},
		"count": {"type": ["string", "integer"]},
		"pois": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"id": {"type": "string"},
					"name": {"type": "string", "minLength": 1},
					"address": {"type": ["string", "array"]},
					"location": {"type": "string"},
					"type": {"type": "string"},
					"tel": {"type": ["string", "array"]},
					"business_hours": {"type": ["string", "array"]},
					"rating": {"type": ["string", "number"]},
					"review_count": {"type": ["string", "integer"]},
					"avg_price": {"type": ["string", "number"]}
				}
			}
		}
	}
}`

// ValidatePOIResponse checks a raw provider payload against the POI
// response schema and returns a single aggregated error.
func ValidatePOIResponse(payload []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(poiResponseSchema)
	docLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("invalid POI payload: %s", strings.Join(msgs, "; "))
}

// ValidatePhone validates basic phone number format.
func ValidatePhone(phone string) bool {
	phonePattern := regexp.MustCompile(`^\+?[\d\s\-\(\)]{7,}$`)
	return phonePattern.MatchString(phone)
}

// ValidateURL validates URL format.
func ValidateURL(url string) bool {
	urlPattern := regexp.MustCompile(`^(https?)://[^\s/$.?#].[^\s]*$`)
	return urlPattern.MatchString(url)
}
