// Package businessflow contains the core business logic for the snapshot,
// diff, expiry, and digest workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Credential errors
	ErrNoCredential        = errors.New("no credential on record for user")
	ErrCredentialRefresh   = errors.New("credential refresh failed")
	ErrCredentialRejected  = errors.New("credential rejected by playlist service")
	ErrUserSettingsMissing = errors.New("user settings not found")

	// Snapshot errors
	ErrPlaylistNotTracked = errors.New("playlist is not tracked")
	ErrSnapshotUpload     = errors.New("snapshot upload failed")
	ErrSnapshotFetch      = errors.New("snapshot fetch failed")

	// Diff errors
	ErrInsufficientSnapshots = errors.New("not enough snapshots to diff")

	// Digest errors
	ErrNoRecipientEmail = errors.New("user has no email address on record")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsNoCredential(err error) bool {
	return errors.Is(err, ErrNoCredential)
}

func IsCredentialRejected(err error) bool {
	return errors.Is(err, ErrCredentialRejected)
}

func IsInsufficientSnapshots(err error) bool {
	return errors.Is(err, ErrInsufficientSnapshots)
}

func IsNoRecipientEmail(err error) bool {
	return errors.Is(err, ErrNoRecipientEmail)
}
