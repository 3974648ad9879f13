package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const deviceIssuer = "plantops-portal"

var ErrInvalidDeviceToken = errors.New("invalid device token")

// DeviceClaims identify the client whose key-value scope holds a session.
type DeviceClaims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

func GenerateDeviceToken(secret string, deviceID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := DeviceClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    deviceIssuer,
			Subject:   deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign device token: %w", err)
	}
	return signed, nil
}

func ParseDeviceToken(tokenStr string, secret string) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &DeviceClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(deviceIssuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDeviceToken, err)
	}
	claims, ok := token.Claims.(*DeviceClaims)
	if !ok || !token.Valid || claims.DeviceID == "" {
		return nil, ErrInvalidDeviceToken
	}
	return claims, nil
}
