package app

import (
	"context"
	"errors"
	"fmt"

	"turnline/internal/config"
	"turnline/internal/repo"
)

// ResolveCampaign picks the active campaign: the override when given, else the
// only campaign in the database.
func ResolveCampaign(ctx context.Context, override string, r repo.Repo) (string, error) {
	if override != "" {
		if _, err := r.GetCampaign(ctx, override); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", fmt.Errorf("campaign %s not found; import a roster with tl roster import", override)
			}
			return "", err
		}
		return override, nil
	}
	c, err := r.SingleCampaign(ctx)
	if err != nil {
		return "", fmt.Errorf("campaign not specified; use --campaign")
	}
	return c.ID, nil
}

// ResolveCampaignAndConfig resolves the campaign and makes sure it has a
// stored config, seeding the defaults when none was imported.
func ResolveCampaignAndConfig(ctx context.Context, override string, r repo.Repo) (string, *config.Config, error) {
	campaignID, err := ResolveCampaign(ctx, override, r)
	if err != nil {
		return "", nil, err
	}
	cfg, err := r.GetCampaignConfig(ctx, campaignID)
	if errors.Is(err, repo.ErrNotFound) {
		cfg = config.Default(campaignID)
		if err := r.UpsertCampaignConfig(ctx, campaignID, cfg); err != nil {
			return "", nil, fmt.Errorf("seed campaign config: %w", err)
		}
		return campaignID, cfg, nil
	}
	if err != nil {
		return "", nil, err
	}
	cfg.Campaign.ID = campaignID
	return campaignID, cfg, nil
}
