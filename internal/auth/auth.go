// Package auth authenticates API callers and decides what they may do with
// certificate templates.
package auth

import (
	"context"
	"errors"
	"slices"

	"github.com/gin-gonic/gin"
)

const (
	// ActorContextKey is the key used to store the actor in Gin context
	ActorContextKey = "actor"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Capability names one permission of the certificate API
type Capability string

const (
	CapCreate         Capability = "certificates:create"
	CapConfigure      Capability = "certificates:configure"
	CapAssignOfficial Capability = "certificates:assign_official"
	CapBulk           Capability = "certificates:bulk"
	CapViewOwn        Capability = "certificates:view_own"
)

// Capabilities lists every known capability
func Capabilities() []Capability {
	return []Capability{CapCreate, CapConfigure, CapAssignOfficial, CapBulk, CapViewOwn}
}

// Actor is the authenticated caller
type Actor struct {
	UserID       int64        `json:"user_id"`
	Capabilities []Capability `json:"capabilities"`
}

// Has reports whether the actor carries the capability
func (a *Actor) Has(capability Capability) bool {
	return slices.Contains(a.Capabilities, capability)
}

// ActorFromContext returns the actor set by the middleware
func ActorFromContext(c *gin.Context) (*Actor, bool) {
	v, ok := c.Get(ActorContextKey)
	if !ok {
		return nil, false
	}
	actor, ok := v.(*Actor)
	return actor, ok && actor != nil
}

// Authorizer decides whether an actor may use a capability. courseID is 0
// for site level checks.
type Authorizer interface {
	Allowed(ctx context.Context, actor *Actor, capability Capability, courseID int64) (bool, error)
}

// ClaimsAuthorizer grants what the actor's token carries
type ClaimsAuthorizer struct{}

func (ClaimsAuthorizer) Allowed(ctx context.Context, actor *Actor, capability Capability, courseID int64) (bool, error) {
	return actor != nil && actor.Has(capability), nil
}

type anyOf []Authorizer

// AnyOf grants when one of the authorizers grants. The first error stops the
// check.
func AnyOf(authorizers ...Authorizer) Authorizer {
	return anyOf(authorizers)
}

func (a anyOf) Allowed(ctx context.Context, actor *Actor, capability Capability, courseID int64) (bool, error) {
	for _, authz := range a {
		ok, err := authz.Allowed(ctx, actor, capability, courseID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
