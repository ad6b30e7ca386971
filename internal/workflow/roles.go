package workflow

import (
	"github.com/erazemk/kataster/internal/apperr"
	"github.com/erazemk/kataster/internal/model"
)

// ApprovalRole is a role that can sign off on a transfer after it was
// initiated. Seller approval is recorded at initiation.
type ApprovalRole int

const (
	RoleBuyer ApprovalRole = iota + 1
	RoleVerifier
)

// ParseApprovalRole maps a request role onto an ApprovalRole.
func ParseApprovalRole(s string) (ApprovalRole, error) {
	switch s {
	case model.ApprovalBuyer:
		return RoleBuyer, nil
	case model.ApprovalVerifier:
		return RoleVerifier, nil
	case model.ApprovalSeller:
		return 0, apperr.Validation("seller approval is recorded when the transfer is initiated")
	}
	return 0, apperr.Validation("unknown approval role %q", s)
}

func (r ApprovalRole) String() string {
	switch r {
	case RoleBuyer:
		return model.ApprovalBuyer
	case RoleVerifier:
		return model.ApprovalVerifier
	}
	return "unknown"
}

// Authorize checks that caller may approve t in this role.
func (r ApprovalRole) Authorize(caller model.Caller, t *model.Transfer) error {
	switch r {
	case RoleBuyer:
		return authorizeBuyer(caller, t)
	case RoleVerifier:
		return authorizeVerifier(caller, t)
	}
	return apperr.Validation("unknown approval role")
}

func authorizeBuyer(caller model.Caller, t *model.Transfer) error {
	if caller.ID != t.ToOwnerID {
		return apperr.Forbidden("only the recipient can approve as buyer")
	}
	return nil
}

// authorizeVerifier requires a verifier or admin who is not a party to the
// transfer.
func authorizeVerifier(caller model.Caller, t *model.Transfer) error {
	if !caller.CanVerify() {
		return apperr.Forbidden("only verifiers can approve as verifier")
	}
	if t.IsParticipant(caller.ID) {
		return apperr.Forbidden("a party to the transfer cannot approve as verifier")
	}
	return nil
}

// canView reports whether caller may read t.
func canView(caller model.Caller, t *model.Transfer) bool {
	return t.IsParticipant(caller.ID) || caller.CanVerify()
}

// canEdit reports whether caller may change payment details and documents of t.
func canEdit(caller model.Caller, t *model.Transfer) bool {
	return t.IsParticipant(caller.ID) || caller.IsAdmin()
}
