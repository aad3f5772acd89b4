package core

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrUnrecognizedToken = errors.New("unrecognized token")
)

// IdentityClaims carry a client's persistent user id in the subject. The
// token is minted at first contact and presented on every reconnect, so
// authorship and undo stacks survive transport churn instead of being tied
// to the websocket session.
type IdentityClaims struct {
	jwt.RegisteredClaims
}

// NewIdentity mints a fresh user id and a signed token for it.
func NewIdentity(expiration time.Duration, secret []byte) (userID, token string, expiresAt time.Time, err error) {
	userID = uuid.NewString()
	token, expiresAt, err = NewIdentityToken(userID, expiration, secret)
	return userID, token, expiresAt, err
}

func NewIdentityToken(userID string, expiration time.Duration, secret []byte) (string, time.Time, error) {
	exp := time.Now().Add(expiration)
	claims := &IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "collaboard",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	return signed, exp, err
}

// VerifyIdentityToken returns the user id carried by a valid token.
func VerifyIdentityToken(token string, secret []byte) (string, error) {
	claims := &IdentityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	switch {
	case parsed != nil && parsed.Valid:
		return claims.Subject, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "", ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "", ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	default:
		return "", ErrUnrecognizedToken
	}
}
