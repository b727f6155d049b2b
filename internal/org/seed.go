package org

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/machineid-io/machineid-core/internal/quota"
)

// SeedDefault creates an initial organisation on first boot if none
// exist. The generated API key is logged once; it cannot be
// recovered later, only rotated.
//
// Returns the raw key (empty string if seeding was skipped).
func SeedDefault(ctx context.Context, repo Repository, name string, plan quota.Plan, logger *slog.Logger) (string, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking organisation count: %w", err)
	}

	if count > 0 {
		logger.Info("organisations exist, skipping seed")
		return "", nil
	}

	key, err := GenerateKey()
	if err != nil {
		return "", fmt.Errorf("generating seed key: %w", err)
	}

	seeded := &Organization{
		Name:        name,
		Plan:        plan,
		DeviceLimit: plan.DefaultLimit(),
		KeyHash:     HashKey(key),
		Status:      StatusActive,
	}

	if err := repo.Create(ctx, seeded); err != nil {
		return "", fmt.Errorf("creating seed organisation: %w", err)
	}

	logger.Warn("seed organisation created",
		"org_id", seeded.ID,
		"name", seeded.Name,
		"plan", string(seeded.Plan),
		"device_limit", seeded.DeviceLimit.String(),
		"org_key", key,
		"action_required", "store this key now, it is not shown again",
	)

	return key, nil
}
