package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/gdmurray/trackkeeper/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token service error constants
var (
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalid     = errors.New("invalid token")
	ErrTokenWrongType   = errors.New("token is not an unsubscribe token")
	ErrTokenMissingUser = errors.New("token has no subject")
)

const unsubscribeTokenType = "unsubscribe"

// UnsubscribeTokenService issues and verifies the signed tokens embedded in
// digest email unsubscribe links
type UnsubscribeTokenService interface {
	GenerateUnsubscribeToken(userID uuid.UUID) (string, error)
	ValidateUnsubscribeToken(token string) (uuid.UUID, error)
}

// UnsubscribeTokenServiceImpl implements UnsubscribeTokenService with HMAC
// signed JWTs
type UnsubscribeTokenServiceImpl struct {
	secret   []byte
	validity time.Duration
}

// NewUnsubscribeTokenService creates a token service. Tokens stay valid for
// one year so that links in old digest emails keep working.
func NewUnsubscribeTokenService(secret string) UnsubscribeTokenService {
	return &UnsubscribeTokenServiceImpl{
		secret:   []byte(secret),
		validity: 365 * 24 * time.Hour,
	}
}

// GenerateUnsubscribeToken creates a signed token for the given user
func (s *UnsubscribeTokenServiceImpl) GenerateUnsubscribeToken(userID uuid.UUID) (string, error) {
	now := utils.UTCNow()
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"type": unsubscribeTokenType,
		"iat":  now.Unix(),
		"exp":  now.Add(s.validity).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign unsubscribe token: %w", err)
	}
	return signed, nil
}

// ValidateUnsubscribeToken verifies signature, expiry, and token type, and
// returns the user the token was issued for
func (s *UnsubscribeTokenServiceImpl) ValidateUnsubscribeToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, ErrTokenExpired
		}
		return uuid.Nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, ErrTokenInvalid
	}
	if tokenType, _ := claims["type"].(string); tokenType != unsubscribeTokenType {
		return uuid.Nil, ErrTokenWrongType
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return uuid.Nil, ErrTokenMissingUser
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrTokenMissingUser, err)
	}
	return userID, nil
}
