package snapshot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-eventsourcing/eventsourcing/aggregate/snapshot"
)

func TestEveryNVersions(t *testing.T) {
	policy := snapshot.EveryNVersions(3)

	assert.False(t, policy.ShouldRecord(0, 1))
	assert.False(t, policy.ShouldRecord(1, 2))
	assert.True(t, policy.ShouldRecord(2, 3))
	assert.True(t, policy.ShouldRecord(2, 7), "crossing two multiples records only once")
	assert.False(t, policy.ShouldRecord(3, 5))
	assert.True(t, policy.ShouldRecord(5, 6))
}

func TestFixedPolicies(t *testing.T) {
	assert.False(t, snapshot.Never.ShouldRecord(0, 10))
	assert.True(t, snapshot.Always.ShouldRecord(0, 1))
	assert.False(t, snapshot.EveryNVersions(0).ShouldRecord(0, 100))
}
