package providers

import "context"

type AuthProvider interface {
	VerifyToken(ctx context.Context, idToken string) (*TokenClaims, error)
}

type TokenClaims struct {
	UID     string `json:"uid"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	Email   string `json:"email,omitempty"`
	// Moderator is set from the "moderator" custom claim.
	Moderator bool `json:"moderator,omitempty"`
}

// claimsFromMap fills the profile fields of c from a decoded ID token payload.
func claimsFromMap(c *TokenClaims, m map[string]interface{}) {
	if v, ok := m["name"].(string); ok {
		c.Name = v
	}
	if v, ok := m["picture"].(string); ok {
		c.Picture = v
	}
	if v, ok := m["email"].(string); ok {
		c.Email = v
	}
	if v, ok := m["moderator"].(bool); ok {
		c.Moderator = v
	}
}
