// Package testhelpers provides utilities for testing scout-engine components.
package testhelpers

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestJWTSecret is the signing secret used by GenerateTestJWT.
const TestJWTSecret = "test-jwt-secret"

// GenerateTestJWT creates an HS256 access token the auth middleware accepts when
// it is configured with TestJWTSecret.
func GenerateTestJWT(userID int64, username, role string) string {
	claims := jwt.MapClaims{
		"sub":  strconv.FormatInt(userID, 10),
		"iss":  "scout-engine",
		"name": username,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestJWTSecret))
	if err != nil {
		panic(err)
	}
	return signed
}

// GenerateTestJWTWithBearer returns the token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(userID int64, username, role string) string {
	return "Bearer " + GenerateTestJWT(userID, username, role)
}
