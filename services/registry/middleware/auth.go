// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides gin middleware for the registry API.
//
// The auth middleware extracts a bearer token from the Authorization
// header, validates it through the configured extensions.AuthProvider,
// and stores the resulting AuthInfo both in the gin context (for
// handlers) and in the request context (so the catalog's audit trail
// can attribute mutations without touching the HTTP stack).
//
// With the default NopAuthProvider every request authenticates as the
// local operator, which keeps a single-user deployment working with no
// identity infrastructure. Hosted deployments swap in a real provider
// via extensions.ServiceOptions.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/Waymark/pkg/extensions"
	"github.com/AleutianAI/Waymark/services/registry/datatypes"
)

// authInfoKey is the gin context key for the authenticated identity.
const authInfoKey = "waymark_auth_info"

// SetAuthInfo stores the authenticated identity in the gin context.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo returns the authenticated identity, or nil when the
// request did not pass through AuthMiddleware.
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if v, exists := c.Get(authInfoKey); exists {
		if info, ok := v.(*extensions.AuthInfo); ok {
			return info
		}
	}
	return nil
}

// AuthMiddleware authenticates requests with the given provider.
//
// The bearer token is taken from the Authorization header; a missing or
// malformed header yields an empty token, which the NopAuthProvider
// accepts and real providers reject. On success the identity is stored
// via SetAuthInfo and bound into the request context for audit
// attribution downstream.
func AuthMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)

		info, err := provider.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, extensions.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, datatypes.ErrorResponse{
					Error: "unauthorized",
					Code:  "unauthorized",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, datatypes.ErrorResponse{
				Error: "authentication failed",
				Code:  "auth_failed",
			})
			return
		}

		SetAuthInfo(c, info)
		c.Request = c.Request.WithContext(
			extensions.WithAuthInfo(c.Request.Context(), info))

		c.Next()
	}
}

// RequireAction authorizes the request for one (action, resource type)
// pair before the handler runs. The resource ID is taken from the
// revisionId route param when present, falling back to source.
//
//	admin.POST("/backup", middleware.RequireAction(authz, "backup", "store"), h.Backup)
func RequireAction(authz extensions.AuthzProvider, action, resourceType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := extensions.AuthzRequest{
			User:         GetAuthInfo(c),
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceIDFromParams(c),
		}

		if err := authz.Authorize(c.Request.Context(), req); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, datatypes.ErrorResponse{
				Error: "forbidden",
				Code:  "forbidden",
				Detail: action + " " + resourceType +
					" is not permitted for this identity",
			})
			return
		}

		c.Next()
	}
}

// resourceIDFromParams picks the most specific route param as the
// authorization resource ID.
func resourceIDFromParams(c *gin.Context) string {
	if id := c.Param("revisionId"); id != "" {
		return id
	}
	return c.Param("source")
}

// extractBearerToken parses "Authorization: Bearer <token>", returning
// "" when the header is missing or malformed. The scheme comparison is
// case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
