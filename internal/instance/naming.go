// Package instance names blockmul runs and locates the host resources a
// docker-launched run needs.
package instance

import (
	"context"
	"fmt"
	"regexp"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	dockerpkg "github.com/dyluth/blockmul/internal/docker"
	"github.com/google/uuid"
)

const (
	// GeneratedNamePrefix is the prefix for auto-generated run names
	GeneratedNamePrefix = "run-"

	// MaxNameLength is the maximum length for a run name (DNS-compatible)
	MaxNameLength = 63
)

var (
	// NamePattern is the regex pattern for valid run names.
	// Run names end up in Redis keys, container names and DNS names, so they
	// must be lowercase alphanumeric with hyphens allowed in between.
	NamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)
)

// ValidateName checks if a run name is valid according to DNS naming rules.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("run name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("run name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}

	if !NamePattern.MatchString(name) {
		return fmt.Errorf("invalid run name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}

// GenerateName returns a fresh run name such as "run-1a2b3c4d".
func GenerateName() string {
	return GeneratedNamePrefix + uuid.NewString()[:8]
}

// CheckNameCollision checks if any container already carries the given run name.
// Returns true if a collision exists (name is in use).
func CheckNameCollision(ctx context.Context, cli dockerpkg.API, run string) (bool, error) {
	filter := filters.NewArgs()
	filter.Add("label", dockerpkg.RunFilter(run))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return false, fmt.Errorf("failed to check for name collision: %w", err)
	}

	return len(containers) > 0, nil
}
