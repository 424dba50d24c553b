package encoder_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/example/prime-worker/internal/encoder"
	"github.com/example/prime-worker/internal/models"
)

func TestEncodePreservesOrderAndMillis(t *testing.T) {
	var enc encoder.Encoder

	res := models.Result{
		Primes:  []int{2, 3, 5, 7},
		Elapsed: 1500 * time.Millisecond,
	}

	p := enc.Encode(res)
	if !reflect.DeepEqual(p.Answer, []int{2, 3, 5, 7}) {
		t.Fatalf("unexpected answer: %v", p.Answer)
	}
	if p.TimeTaken != 1500 {
		t.Fatalf("expected 1500 ms, got %d", p.TimeTaken)
	}

	// The payload owns its own slice.
	res.Primes[0] = 99
	if p.Answer[0] != 2 {
		t.Fatal("encode must copy the prime sequence")
	}
}

func TestMarshalWireShape(t *testing.T) {
	var enc encoder.Encoder

	data, err := enc.Marshal(models.Payload{Answer: []int{2, 3, 5, 7}, TimeTaken: 3})
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	if got := string(data); got != `{"answer":[2,3,5,7],"time_taken":3}` {
		t.Fatalf("unexpected wire form: %s", got)
	}
}

func TestMarshalEmptyAnswerIsArray(t *testing.T) {
	var enc encoder.Encoder

	data, err := enc.Marshal(enc.Encode(models.Result{}))
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	if got := string(data); got != `{"answer":[],"time_taken":0}` {
		t.Fatalf("expected empty array for empty result, got %s", got)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	var enc encoder.Encoder

	res := models.Result{
		Primes:  []int{2, 3, 5, 7, 11},
		Elapsed: 42 * time.Millisecond,
	}

	data, err := enc.Marshal(enc.Encode(res))
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}

	p, err := encoder.Decode(data)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if !reflect.DeepEqual(p.Answer, res.Primes) {
		t.Fatalf("round trip lost the prime sequence: %v", p.Answer)
	}
	if p.TimeTaken != res.Elapsed.Milliseconds() {
		t.Fatalf("round trip changed time_taken: %d", p.TimeTaken)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := encoder.Decode([]byte("{not json")); err == nil {
		t.Fatal("expected decode error for malformed input")
	}
}
