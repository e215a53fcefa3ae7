package repository

import (
	"context"

	"survey-offers/internal/domain/entity"
)

// ProfileRepository is the user profile source. Get returns (nil, nil) for an
// unknown user.
type ProfileRepository interface {
	Get(ctx context.Context, userID string) (*entity.DemographicProfile, error)
	Upsert(ctx context.Context, profile *entity.DemographicProfile) error
	Delete(ctx context.Context, userID string) error
}
