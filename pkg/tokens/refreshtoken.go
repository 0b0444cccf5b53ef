package tokens

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

func RefreshClaimsFromToken(tokenStr string, refreshSecret []byte) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := parse(tokenStr, &claims, refreshSecret, refreshLeeway); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, fmt.Errorf("%w: typ %q", ErrWrongType, claims.Type)
	}
	if claims.Subject == "" {
		return nil, ErrNoSubject
	}
	if claims.ID == "" {
		return nil, ErrNoJTI
	}
	return &claims, nil
}

// HashToken is what gets persisted instead of the refresh token itself.
func HashToken(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
