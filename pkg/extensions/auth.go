// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extensions

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when authentication or authorization fails.
// Implementations should wrap this error with additional context:
//
//	if !validToken {
//	    return nil, fmt.Errorf("invalid token format: %w", extensions.ErrUnauthorized)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo contains identity information returned after successful
// authentication.
//
// UserID is the only required field. Metadata lets hosted deployments
// attach provider-specific claims without modifying the core type.
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated user.
	// Must never be empty.
	UserID string

	// Email is the user's email address. May be empty.
	Email string

	// Roles contains role memberships for authorization decisions.
	// Common roles: "admin", "editor", "reader", "auditor"
	Roles []string

	// Metadata holds additional claims from the identity provider
	// (e.g. "groups", "mfa_verified", "session_id").
	Metadata map[string]any
}

// HasRole checks if the user has a specific role.
//
//	if !authInfo.HasRole("editor") {
//	    return ErrUnauthorized
//	}
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthProvider validates authentication tokens and returns user identity.
//
// Implementations must be safe for concurrent use.
//
// The default NopAuthProvider always returns a valid "local-operator"
// with admin privileges, so the registry functions without any identity
// infrastructure. Hosted versions validate tokens against providers
// like Okta, Auth0, or Azure AD.
type AuthProvider interface {
	// Validate checks the token and returns the user's identity.
	//
	// The token format is implementation-specific (JWT, API key,
	// session ID). Returns ErrUnauthorized (possibly wrapped) when
	// the token is invalid.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// AuthzRequest describes an authorization check following the usual
// (subject, action, resource) shape.
//
//	req := AuthzRequest{
//	    User:         authInfo,
//	    Action:       "delete",
//	    ResourceType: "revision",
//	    ResourceID:   revisionID,
//	}
type AuthzRequest struct {
	// User is the authenticated user making the request.
	User *AuthInfo

	// Action is the operation being attempted.
	// Common actions: "create", "read", "delete", "reindex", "backup"
	Action string

	// ResourceType is the category of resource being accessed.
	// Examples: "document", "revision", "ingestion", "backup"
	ResourceType string

	// ResourceID is the specific resource instance (optional).
	// If empty, the check is for the resource type in general.
	ResourceID string
}

// AuthzProvider checks if a user is authorized to perform an action.
//
// Implementations must be safe for concurrent use. The default
// NopAuthzProvider allows everything, which is appropriate for
// single-operator local deployments.
type AuthzProvider interface {
	// Authorize returns nil if the action is permitted,
	// or ErrUnauthorized (possibly wrapped) if denied.
	Authorize(ctx context.Context, req AuthzRequest) error
}

// authInfoKey is the context key under which middleware stores the
// authenticated identity.
type authInfoKey struct{}

// WithAuthInfo returns a context carrying the authenticated identity.
// Middleware sets this after token validation so lower layers can
// attribute audit events without a dependency on the HTTP stack.
func WithAuthInfo(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authInfoKey{}, info)
}

// AuthInfoFromContext returns the authenticated identity, or nil when the
// context carries none.
func AuthInfoFromContext(ctx context.Context) *AuthInfo {
	info, _ := ctx.Value(authInfoKey{}).(*AuthInfo)
	return info
}

// UserFromContext returns the authenticated user ID, or "system" when the
// context carries no identity (watcher, scheduler, startup).
func UserFromContext(ctx context.Context) string {
	if info := AuthInfoFromContext(ctx); info != nil && info.UserID != "" {
		return info.UserID
	}
	return "system"
}

// NopAuthProvider is the default authentication provider.
//
// It always returns a valid local operator with admin privileges,
// enabling the registry and CLI to function without authentication
// infrastructure. Thread-safe: no mutable state.
type NopAuthProvider struct{}

// Validate always returns a valid local operator.
//
// The token parameter is ignored; any value (including empty string)
// authenticates. This is intentional for local single-user deployments.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-operator",
		Email:  "",
		Roles:  []string{"admin"},
	}, nil
}

// NopAuthzProvider is the default authorization provider.
//
// It always allows all actions. Thread-safe: no mutable state.
type NopAuthzProvider struct{}

// Authorize always returns nil, allowing the action.
func (p *NopAuthzProvider) Authorize(_ context.Context, _ AuthzRequest) error {
	return nil
}

// Compile-time interface compliance checks.
var (
	_ AuthProvider  = (*NopAuthProvider)(nil)
	_ AuthzProvider = (*NopAuthzProvider)(nil)
)
