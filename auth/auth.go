// Package auth resolves the caller behind a bearer credential.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hospital-portal/models"
)

// ErrUnauthenticated is returned for a missing, unknown or malformed credential.
var ErrUnauthenticated = errors.New("missing or invalid credentials")

// Resolver turns a bearer token into the caller's identity.
type Resolver interface {
	Resolve(ctx context.Context, token string) (models.Identity, error)
}

// Static resolves tokens from a fixed table, typically loaded from config.
type Static struct {
	tokens map[string]models.Identity
}

// NewStatic returns a resolver over tokens. The map is copied.
func NewStatic(tokens map[string]models.Identity) *Static {
	cp := make(map[string]models.Identity, len(tokens))
	for k, v := range tokens {
		cp[k] = v
	}
	return &Static{tokens: cp}
}

// Resolve looks token up in the table.
func (s *Static) Resolve(_ context.Context, token string) (models.Identity, error) {
	id, ok := s.tokens[token]
	if !ok || token == "" {
		return models.Identity{}, ErrUnauthenticated
	}
	return id, nil
}

// ParseTokens reads a table in the form
//
//	token=id:role[:display name],token=id:role
//
// as used by the AUTH_TOKENS setting.
func ParseTokens(raw string) (map[string]models.Identity, error) {
	tokens := make(map[string]models.Identity)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, rest, ok := strings.Cut(entry, "=")
		if !ok || token == "" {
			return nil, fmt.Errorf("auth: token entry %q: expected token=id:role", entry)
		}
		parts := strings.SplitN(rest, ":", 3)
		if len(parts) < 2 || parts[0] == "" {
			return nil, fmt.Errorf("auth: token entry %q: expected token=id:role", entry)
		}
		role, err := parseRole(parts[1])
		if err != nil {
			return nil, fmt.Errorf("auth: token entry %q: %w", entry, err)
		}
		id := models.Identity{ID: parts[0], Name: parts[0], Role: role}
		if len(parts) == 3 && parts[2] != "" {
			id.Name = parts[2]
		}
		tokens[token] = id
	}
	return tokens, nil
}

func parseRole(s string) (models.Role, error) {
	switch models.Role(strings.ToLower(strings.TrimSpace(s))) {
	case models.RoleDoctor:
		return models.RoleDoctor, nil
	case models.RoleAdmin:
		return models.RoleAdmin, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}
