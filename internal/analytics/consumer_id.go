package analytics

import (
	"fmt"
	"os"

	"github.com/oklog/ulid/v2"
)

// NewConsumerID creates a consumer name for the Redis consumer group that
// is unique per process start.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), ulid.Make().String()[20:])
}
