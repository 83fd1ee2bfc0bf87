package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// DecodeUser extracts identity claims from an access token WITHOUT
// validating the signature. Verification is the backend's job; the client
// only inspects claims to populate session state, so expired or foreign
// signatures are not errors here, only malformed tokens are.
func DecodeUser(tokenString string) (*User, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse access token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("failed to extract claims from access token")
	}

	user := &User{}

	if sub, ok := claims["sub"].(string); ok {
		user.Subject = sub
	}
	if username, ok := claims["preferred_username"].(string); ok {
		user.Username = username
	} else if username, ok := claims["username"].(string); ok {
		user.Username = username
	}
	if email, ok := claims["email"].(string); ok {
		user.Email = email
	}
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range roles {
			if role, ok := r.(string); ok {
				user.Roles = append(user.Roles, role)
			}
		}
	}

	return user, nil
}

// TenantClaim extracts the tenant id claim from a tenant-scoped access
// token, if present.
func TenantClaim(tokenString string) string {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return ""
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}

	if tenant, ok := claims["tenant_id"].(string); ok {
		return tenant
	}
	return ""
}
