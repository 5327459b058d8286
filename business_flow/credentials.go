package businessflow

import (
	"context"
	"fmt"

	"github.com/gdmurray/trackkeeper/app/services"
	"github.com/gdmurray/trackkeeper/models"
	"github.com/gdmurray/trackkeeper/repository"
	"github.com/gdmurray/trackkeeper/utils"
	"github.com/google/uuid"
)

// resolveCredential loads the user's most recent credential and refreshes it
// if the access token has expired, persisting the rotated token before
// returning. The returned credential always carries a usable access token.
func resolveCredential(
	ctx context.Context,
	accessRepo repository.SpotifyAccessRepository,
	client services.PlaylistClient,
	userID uuid.UUID,
) (*models.SpotifyAccess, error) {
	cred, err := accessRepo.LatestByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential for user %s: %w", userID, err)
	}
	if cred == nil {
		return nil, ErrNoCredential
	}

	if !cred.IsExpired(utils.UTCNow()) {
		return cred, nil
	}

	accessToken, expiresAt, err := client.RefreshCredential(ctx, cred.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialRefresh, err)
	}
	if err := accessRepo.UpdateTokens(ctx, cred.ID, accessToken, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to persist rotated credential for user %s: %w", userID, err)
	}
	cred.AccessToken = accessToken
	cred.ExpiresAt = expiresAt
	return cred, nil
}

// forceExpireCredential marks a credential as bad so the next resolve
// refreshes it. Best-effort: a failed write only delays the refresh one cycle.
func forceExpireCredential(
	ctx context.Context,
	accessRepo repository.SpotifyAccessRepository,
	cred *models.SpotifyAccess,
) error {
	return accessRepo.ForceExpire(ctx, cred.ID, utils.UTCNow())
}
