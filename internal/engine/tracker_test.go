package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeoutTracker_CountsPerDomain(t *testing.T) {
	tr := NewTimeoutTracker(time.Minute)

	tr.RecordTimeout(1)
	tr.RecordTimeout(1)
	tr.RecordTimeout(2)

	assert.Equal(t, 2, tr.Count(1))
	assert.Equal(t, 1, tr.Count(2))
	assert.Equal(t, 0, tr.Count(3))
}

func TestTimeoutTracker_ResetAllZeroesEveryDomain(t *testing.T) {
	tr := NewTimeoutTracker(time.Minute)

	tr.RecordTimeout(1)
	tr.RecordTimeout(2)
	tr.ResetAll()

	assert.Equal(t, 0, tr.Count(1))
	assert.Equal(t, 0, tr.Count(2))
}
