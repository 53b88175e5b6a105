package fotosvc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/mkrupp/vidrio/internal/domain"
)

const emptyAnotaciones = "[]"

// normalizeAnotaciones returns the annotation list as a compact JSON array.
// A JSON string holding an encoded array is unwrapped; empty input and null become "[]".
func normalizeAnotaciones(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []byte(emptyAnotaciones), nil
	}

	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: anotaciones is not valid json", domain.ErrFotoInvalid)
	}

	parsed := gjson.ParseBytes(raw)

	if parsed.Type == gjson.String {
		inner := bytes.TrimSpace([]byte(parsed.Str))
		if len(inner) == 0 {
			return []byte(emptyAnotaciones), nil
		}

		if !gjson.ValidBytes(inner) {
			return nil, fmt.Errorf("%w: anotaciones is not valid json", domain.ErrFotoInvalid)
		}

		raw, parsed = inner, gjson.ParseBytes(inner)
	}

	switch {
	case parsed.Type == gjson.Null:
		return []byte(emptyAnotaciones), nil
	case !parsed.IsArray():
		return nil, fmt.Errorf("%w: anotaciones must be a json array", domain.ErrFotoInvalid)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFotoInvalid, err)
	}

	return compact.Bytes(), nil
}
