// Package auth issues and verifies the HS256 access tokens of the ledger
// server.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/sealmail/internal/common"
)

// Issuer is stamped into every access token and required when parsing.
const Issuer = "sealmail"

// Claims carries the caller's account address next to the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	Address string `json:"address"`
}

var parser = jwt.NewParser(
	jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	jwt.WithIssuer(Issuer),
	jwt.WithExpirationRequired(),
)

// GenerateToken signs an access token for address that expires after ttl.
func GenerateToken(address string, secretKey []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   address,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Address: address,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// GetAddressFromToken validates tokenString and returns the address it was
// issued to. Expired tokens yield common.ErrTokenExpired.
func GetAddressFromToken(tokenString string, secretKey []byte) (string, error) {
	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return secretKey, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", common.ErrTokenExpired
	case err != nil:
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	case claims.Address == "" || claims.Address != claims.Subject:
		return "", common.ErrInvalidToken
	}
	return claims.Address, nil
}
