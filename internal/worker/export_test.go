package worker

import "context"

// NewRecordForTest builds a record with a bound commit function so tests can
// observe commit behaviour.
func NewRecordForTest(topic string, value []byte, commit func(context.Context) error) *Record {
	r := &Record{Topic: topic, Value: value}
	r.setCommitFn(commit)
	return r
}
