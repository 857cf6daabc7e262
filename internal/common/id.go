package common

import (
	"time"

	"github.com/google/uuid"
)

// NewJobID generates a unique scrape job ID
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewBatchID returns a batch identifier derived from the current UTC time.
// Every lead persisted by one scrape run carries the same batch ID.
func NewBatchID() string {
	return time.Now().UTC().Format("20060102_150405")
}
