// Package stages defines the concrete planning pipeline: the ordered stage
// set, the prompts the generation stages send, and the parsing of replies
// into domain types. The pipeline coordinator stays generic; everything
// planning-specific lives here.
package stages

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/Iron-Ham/planforge/internal/errors"
)

// Parser decodes a generator reply into a stage's output type.
type Parser interface {
	Parse(reply string, v any) error
}

// JSONParser is the default Parser. It requires the reply to be exactly one
// JSON value; prose before or after the value is rejected rather than
// scraped.
type JSONParser struct{}

// Parse decodes reply into v.
func (JSONParser) Parse(reply string, v any) error {
	dec := json.NewDecoder(strings.NewReader(reply))
	if err := dec.Decode(v); err != nil {
		return errors.NewGenerationError("reply is not valid JSON", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.NewGenerationError("reply contains trailing data after the JSON value", nil)
	}
	return nil
}
