package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildLabels(t *testing.T) {
	labels := BuildLabels("run-1a2b3c4d", ComponentRedis)

	assert.Equal(t, "true", labels[LabelProject])
	assert.Equal(t, "run-1a2b3c4d", labels[LabelRun])
	assert.Equal(t, "redis", labels[LabelComponent])
	assert.Len(t, labels, 3)
}

func TestBuildLabels_NoComponent(t *testing.T) {
	labels := BuildLabels("nightly", "")

	assert.Equal(t, "true", labels[LabelProject])
	assert.Equal(t, "nightly", labels[LabelRun])
	assert.NotContains(t, labels, LabelComponent)
	assert.Len(t, labels, 2)
}

func TestRankLabels(t *testing.T) {
	labels := RankLabels("nightly", 3)

	assert.Equal(t, ComponentRank, labels[LabelComponent])
	assert.Equal(t, "3", labels[LabelRank])
	assert.Equal(t, "nightly", labels[LabelRun])
}

func TestRunFilter(t *testing.T) {
	assert.Equal(t, "blockmul.run=nightly", RunFilter("nightly"))
}

func TestNetworkName(t *testing.T) {
	testCases := []struct {
		run      string
		expected string
	}{
		{"prod", "blockmul-network-prod"},
		{"run-1a2b3c4d", "blockmul-network-run-1a2b3c4d"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, NetworkName(tc.run))
	}
}

func TestRedisContainerName(t *testing.T) {
	testCases := []struct {
		run      string
		expected string
	}{
		{"prod", "blockmul-redis-prod"},
		{"default-1", "blockmul-redis-default-1"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, RedisContainerName(tc.run))
	}
}

func TestRankContainerName(t *testing.T) {
	testCases := []struct {
		run      string
		rank     int
		expected string
	}{
		{"prod", 0, "blockmul-prod-rank-0"},
		{"prod", 12, "blockmul-prod-rank-12"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, RankContainerName(tc.run, tc.rank))
	}
}
