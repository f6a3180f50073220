package worker

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Request is one classification request written to the classifier.
type Request struct {
	Image string `json:"image"`
	TopK  int    `json:"topk"`
}

// Candidate is one ranked guess in a classifier response.
type Candidate struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Response is one classifier reply. TopK is nil when the classifier omitted it.
// Error is set when the classifier could not process the image.
type Response struct {
	SpeciesName string      `json:"species_name"`
	Confidence  float64     `json:"confidence"`
	TopK        []Candidate `json:"topk"`
	Error       string      `json:"error,omitempty"`
}

func encodeRequest(req Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return append(payload, '\n'), nil
}

// isRecord reports whether line looks like a JSON object. Anything else on
// stdout is classifier chatter such as library warnings.
func isRecord(line []byte) bool {
	trimmed := bytes.TrimSpace(line)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func decodeResponse(line []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(sanitizeNonFinite(line), &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

var nonFiniteTokens = [][]byte{[]byte("-Infinity"), []byte("Infinity"), []byte("NaN")}

// sanitizeNonFinite replaces bare NaN and Infinity tokens, which Python's
// json module emits but JSON forbids, with null. String contents are untouched.
func sanitizeNonFinite(line []byte) []byte {
	if !bytes.Contains(line, []byte("NaN")) && !bytes.Contains(line, []byte("Infinity")) {
		return line
	}

	out := make([]byte, 0, len(line))
	inString, escaped := false, false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}
		replaced := false
		for _, tok := range nonFiniteTokens {
			if bytes.HasPrefix(line[i:], tok) {
				out = append(out, "null"...)
				i += len(tok) - 1
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, c)
		}
	}
	return out
}
