// Package encoder maps computation results onto the fixed wire schema
// {"answer": [...], "time_taken": <ms>}.
package encoder

import (
	"encoding/json"
	"fmt"

	"github.com/example/prime-worker/internal/models"
)

const diagnosticIndent = "  "

// Encoder converts results into delivery payloads. The zero value is ready to
// use; it carries no mutable state, so a single value may be shared freely.
type Encoder struct{}

// Encode builds the delivery payload for a result. Prime ordering is
// preserved and the duration is truncated to integer milliseconds. A result
// with no primes encodes as an empty array rather than null.
func (Encoder) Encode(res models.Result) models.Payload {
	answer := make([]int, len(res.Primes))
	copy(answer, res.Primes)
	return models.Payload{
		Answer:    answer,
		TimeTaken: res.Elapsed.Milliseconds(),
	}
}

// Marshal serializes the payload into its compact wire form.
func (Encoder) Marshal(p models.Payload) ([]byte, error) {
	data, err := json.Marshal(normalize(p))
	if err != nil {
		return nil, fmt.Errorf("encoder: marshal payload: %w", err)
	}
	return data, nil
}

// MarshalIndent serializes the payload in the indented form used for
// diagnostic output.
func (Encoder) MarshalIndent(p models.Payload) ([]byte, error) {
	data, err := json.MarshalIndent(normalize(p), "", diagnosticIndent)
	if err != nil {
		return nil, fmt.Errorf("encoder: marshal payload: %w", err)
	}
	return data, nil
}

// Decode parses wire bytes back into a payload.
func Decode(data []byte) (models.Payload, error) {
	var p models.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.Payload{}, fmt.Errorf("encoder: decode payload: %w", err)
	}
	return p, nil
}

func normalize(p models.Payload) models.Payload {
	if p.Answer == nil {
		p.Answer = []int{}
	}
	return p
}
