// Package auth handles sign-in flows and bearer-token inspection for the
// ShikshaSetu client.
//
// The client never verifies token signatures — only the backend holds
// the signing secret. Tokens are parsed unverified, purely to read the
// user id and role the backend embedded in them. The backend remains the
// authority: a tampered token is simply rejected by the next API call.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shikshasetu/shiksha-client/internal/model"
)

// Claims is the identity information the backend embeds in its JWTs.
type Claims struct {
	UserID string
	Role   model.Role
}

// ParseClaims reads the user id and role out of a platform JWT without
// verifying the signature. Returns an error for anything that is not a
// structurally valid JWT or lacks a user id.
func ParseClaims(tokenStr string) (Claims, error) {
	parser := jwt.NewParser()
	mapClaims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenStr, mapClaims); err != nil {
		return Claims{}, fmt.Errorf("auth: parsing token: %w", err)
	}

	var c Claims
	if id, ok := mapClaims["id"].(string); ok {
		c.UserID = id
	}
	if role, ok := mapClaims["role"].(string); ok {
		c.Role = model.Role(role)
	}

	if c.UserID == "" {
		return Claims{}, fmt.Errorf("auth: token carries no user id")
	}
	return c, nil
}

// WellFormed reports whether tokenStr is a structurally valid JWT.
// Used when restoring a persisted session: an unparsable token is
// treated as no session at all.
func WellFormed(tokenStr string) bool {
	parser := jwt.NewParser()
	_, _, err := parser.ParseUnverified(tokenStr, jwt.MapClaims{})
	return err == nil
}
