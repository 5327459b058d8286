package services

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-unsubscribe-tokens-32"

func TestUnsubscribeTokenRoundTrip(t *testing.T) {
	service := NewUnsubscribeTokenService(testSecret)
	userID := uuid.New()

	token, err := service.GenerateUnsubscribeToken(userID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsed, err := service.ValidateUnsubscribeToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestValidateUnsubscribeToken(t *testing.T) {
	service := NewUnsubscribeTokenService(testSecret)

	t.Run("garbage token", func(t *testing.T) {
		_, err := service.ValidateUnsubscribeToken("not-a-jwt")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("token signed with a different secret", func(t *testing.T) {
		other := NewUnsubscribeTokenService("a-completely-different-secret-key-here")
		token, err := other.GenerateUnsubscribeToken(uuid.New())
		require.NoError(t, err)

		_, err = service.ValidateUnsubscribeToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := &UnsubscribeTokenServiceImpl{
			secret:   []byte(testSecret),
			validity: -1 * time.Hour,
		}
		token, err := expired.GenerateUnsubscribeToken(uuid.New())
		require.NoError(t, err)

		_, err = service.ValidateUnsubscribeToken(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong token type", func(t *testing.T) {
		now := time.Now().UTC()
		claims := jwt.MapClaims{
			"sub":  uuid.New().String(),
			"type": "session",
			"iat":  now.Unix(),
			"exp":  now.Add(1 * time.Hour).Unix(),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = service.ValidateUnsubscribeToken(signed)
		assert.ErrorIs(t, err, ErrTokenWrongType)
	})

	t.Run("missing subject", func(t *testing.T) {
		now := time.Now().UTC()
		claims := jwt.MapClaims{
			"type": "unsubscribe",
			"iat":  now.Unix(),
			"exp":  now.Add(1 * time.Hour).Unix(),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = service.ValidateUnsubscribeToken(signed)
		assert.ErrorIs(t, err, ErrTokenMissingUser)
	})

	t.Run("tokens stay valid long enough for old emails", func(t *testing.T) {
		impl := &UnsubscribeTokenServiceImpl{
			secret:   []byte(testSecret),
			validity: 365 * 24 * time.Hour,
		}
		token, err := impl.GenerateUnsubscribeToken(uuid.New())
		require.NoError(t, err)

		_, err = service.ValidateUnsubscribeToken(token)
		assert.NoError(t, err)
	})
}
