package service

import (
	"github.com/sakif/recshare/internal/apperror"
	"github.com/sakif/recshare/internal/model"
)

// Authorizer answers whether actor may act on behalf of userID. The real
// policy belongs to user management; RoleAuthorizer is the default.
type Authorizer interface {
	IsSelfOrAdmin(actor model.Actor, userID string) bool
}

// RoleAuthorizer allows users to act on themselves and admins on anyone.
type RoleAuthorizer struct{}

func (RoleAuthorizer) IsSelfOrAdmin(actor model.Actor, userID string) bool {
	if actor.UserID == "" {
		return false
	}
	return actor.IsAdmin() || actor.UserID == userID
}

func requireSelfOrAdmin(authz Authorizer, actor model.Actor, userID string) error {
	if !authz.IsSelfOrAdmin(actor, userID) {
		return apperror.Forbidden("not allowed to act for this user")
	}
	return nil
}

func requireAdmin(actor model.Actor) error {
	if !actor.IsAdmin() {
		return apperror.Forbidden("admin role required")
	}
	return nil
}
