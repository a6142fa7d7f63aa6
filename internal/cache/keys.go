package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// JobCreatedChannel is the pub/sub channel for new pending jobs.
const JobCreatedChannel = "jobs:created"

// JobRecordKey caches a terminal job record. The owner is part of the key
// so a cached record is only ever served back to the same user.
func JobRecordKey(userID, jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:%s", userID, jobID)
}

func RateLimitKey(userID uuid.UUID) string {
	return fmt.Sprintf("ratelimit:%s", userID)
}
