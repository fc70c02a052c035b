package fetch

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// Decode parses a JSON payload. Numbers are kept as json.Number so integer
// columns survive without float rounding. A leading BOM is ignored.
func Decode(body []byte) (any, error) {
	body = bytes.TrimPrefix(body, utf8BOM)
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("decode upstream json: empty body")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode upstream json: %w", err)
	}
	return v, nil
}
