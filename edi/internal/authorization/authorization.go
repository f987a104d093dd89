// Package authorization checks the sender and receiver claimed by an
// incoming message against the authenticated actor and the platform.
package authorization

import (
	"strings"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

// RoleTable maps a role code such as "DDQ" to the role name held by actors.
type RoleTable interface {
	RoleName(code string) (string, bool)
}

// SenderAuthorizer verifies the claimed sender against the caller.
type SenderAuthorizer struct {
	roles RoleTable
}

func NewSenderAuthorizer(roles RoleTable) *SenderAuthorizer {
	return &SenderAuthorizer{roles: roles}
}

// Authorize returns the sender errors of a message. When every series is
// delegated the sender id check is skipped and holding the role is not
// required, since another actor is acting on the sender's behalf.
func (a *SenderAuthorizer) Authorize(senderNumber, senderRoleCode string, actor models.ActorIdentity, allSeriesDelegated bool) []models.ValidationError {
	var errs []models.ValidationError

	if !allSeriesDelegated && !strings.EqualFold(senderNumber, actor.ActorNumber) {
		errs = append(errs, models.SenderIDDoesNotMatchAuthenticatedUser())
	}

	roleName, ok := a.roles.RoleName(senderRoleCode)
	switch {
	case !ok:
		errs = append(errs, models.SenderRoleTypeIsNotAuthorized())
	case !allSeriesDelegated && !actor.HasRole(roleName):
		errs = append(errs, models.AuthenticatedUserDoesNotHoldRequiredRole())
	}

	return errs
}

// PlatformIdentity is the receiver every incoming message must address.
type PlatformIdentity interface {
	PlatformNumber() string
	PlatformRole() string
}

// ReceiverValidator verifies the claimed receiver is the platform.
type ReceiverValidator struct {
	platform PlatformIdentity
}

func NewReceiverValidator(platform PlatformIdentity) *ReceiverValidator {
	return &ReceiverValidator{platform: platform}
}

// Validate checks role and id independently so both errors can surface.
func (v *ReceiverValidator) Validate(receiverNumber, receiverRoleCode string) []models.ValidationError {
	var errs []models.ValidationError
	if !strings.EqualFold(receiverRoleCode, v.platform.PlatformRole()) {
		errs = append(errs, models.InvalidReceiverRole())
	}
	if receiverNumber != v.platform.PlatformNumber() {
		errs = append(errs, models.InvalidReceiverID())
	}
	return errs
}
