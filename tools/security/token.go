package security

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// TokenExpiry reads the exp claim of a JWT without verifying its
// signature. The bot never validates tokens (the main service does);
// the expiry is used only for logging token lifetimes at promotion
// and refresh time.
func TokenExpiry(token string) (time.Time, bool) {
	parsed, _, err := jwtlib.NewParser().ParseUnverified(token, jwtlib.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
