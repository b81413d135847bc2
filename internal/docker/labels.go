package docker

import (
	"fmt"
	"strconv"
)

// Label keys used for blockmul resources
const (
	LabelProject   = "blockmul.project"
	LabelRun       = "blockmul.run"
	LabelComponent = "blockmul.component"
	LabelRank      = "blockmul.rank"
	LabelRedisPort = "blockmul.redis.port"
)

// Component label values
const (
	ComponentRedis = "redis"
	ComponentRank  = "rank"
)

// BuildLabels creates the standard label set for all resources of a run.
// component may be empty for run-wide resources such as the network.
func BuildLabels(run, component string) map[string]string {
	labels := map[string]string{
		LabelProject: "true",
		LabelRun:     run,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// RankLabels returns the labels for a rank container.
func RankLabels(run string, rank int) map[string]string {
	labels := BuildLabels(run, ComponentRank)
	labels[LabelRank] = strconv.Itoa(rank)
	return labels
}

// RunFilter returns the label filter expression matching every resource of a run.
func RunFilter(run string) string {
	return fmt.Sprintf("%s=%s", LabelRun, run)
}

// Resource naming conventions

// NetworkName returns the Docker network name for a run
func NetworkName(run string) string {
	return fmt.Sprintf("blockmul-network-%s", run)
}

// RedisContainerName returns the Redis container name for a run
func RedisContainerName(run string) string {
	return fmt.Sprintf("blockmul-redis-%s", run)
}

// RankContainerName returns the container name for one rank of a run
func RankContainerName(run string, rank int) string {
	return fmt.Sprintf("blockmul-%s-rank-%d", run, rank)
}
