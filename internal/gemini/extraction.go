package gemini

import (
	"encoding/json"
	"strings"

	apperrors "grievance/internal/errors"
)

// Extraction is the structured complaint the model pulls out of an email.
type Extraction struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Type  string `json:"type"`
	Loc   string `json:"loc"`
	Desc  string `json:"desc"`
}

// ParseExtraction strips markdown code fences from the model output and
// decodes the JSON object. Anything else is a MalformedExtractionError.
func ParseExtraction(text string) (Extraction, error) {
	cleaned := strings.ReplaceAll(text, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var e Extraction
	if err := json.Unmarshal([]byte(cleaned), &e); err != nil {
		return Extraction{}, apperrors.NewMalformedExtractionError(text, err)
	}
	return e, nil
}
