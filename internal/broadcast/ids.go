package broadcast

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// newClientID returns a random UUID, or a clock+random id if the system's
// randomness source fails.
func newClientID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fallbackClientID(time.Now())
	}
	return id.String()
}

func fallbackClientID(now time.Time) string {
	return fmt.Sprintf("%x-%08x", now.UnixNano(), rand.Uint32())
}
