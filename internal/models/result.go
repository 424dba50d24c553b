package models

import "time"

// Result is the outcome of a single prime computation. Primes are ascending
// with no duplicates; Elapsed is the wall-clock time the scan took.
type Result struct {
	Primes  []int
	Elapsed time.Duration
}

// Payload is the wire representation delivered to the remote endpoint.
type Payload struct {
	Answer    []int `json:"answer"`
	TimeTaken int64 `json:"time_taken"`
}
