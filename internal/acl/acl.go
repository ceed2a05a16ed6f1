// Package acl holds the static role/resource/action policy table.
//
// The matrix answers class-level questions only ("may a reviewer ever view an
// approved resume?"). Whether a specific principal may touch a specific
// document is decided by the authz package on top of this table.
package acl

import (
	"fmt"
	"slices"
	"strings"

	id "custody/pkg/domain"
	dErrors "custody/pkg/domain-errors"
)

// Resource is a resource kind: a document category or principal management.
type Resource string

const (
	ResourceResume      Resource = "resume"
	ResourceOfferLetter Resource = "offer_letter"
	ResourcePrincipals  Resource = "user"
)

// Resources lists every resource kind the table must cover.
func Resources() []Resource {
	return []Resource{ResourceResume, ResourceOfferLetter, ResourcePrincipals}
}

// DocumentCategories lists the resources that documents can be filed under.
func DocumentCategories() []Resource {
	return []Resource{ResourceResume, ResourceOfferLetter}
}

// IsDocumentCategory reports whether documents may be filed under r.
func (r Resource) IsDocumentCategory() bool {
	return r == ResourceResume || r == ResourceOfferLetter
}

func (r Resource) String() string { return string(r) }

// ParseCategory maps a document category string to its resource.
func ParseCategory(s string) (Resource, error) {
	switch strings.TrimSpace(s) {
	case "resume":
		return ResourceResume, nil
	case "offer_letter", "offerLetter":
		return ResourceOfferLetter, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown document category")
	}
}

type Action string

const (
	ActionUpload       Action = "upload"
	ActionViewOwn      Action = "view_own"
	ActionViewApproved Action = "view_approved"
	ActionViewAll      Action = "view_all"
	ActionDelete       Action = "delete"
	ActionAttest       Action = "attest"
	ActionManage       Action = "manage"
	ActionViewSelf     Action = "view_self"
	// ActionFullAccess grants every action on the resource it appears under.
	ActionFullAccess Action = "full_access"
)

var knownActions = []Action{
	ActionUpload, ActionViewOwn, ActionViewApproved, ActionViewAll, ActionDelete,
	ActionAttest, ActionManage, ActionViewSelf, ActionFullAccess,
}

// InstanceScoped reports whether passing the matrix is only half the decision
// and a per-instance check (ownership, approval, self) must follow.
func (a Action) InstanceScoped() bool {
	return a == ActionViewOwn || a == ActionViewApproved || a == ActionViewSelf
}

func (a Action) String() string { return string(a) }

// Table is the declarative policy: role -> resource -> permitted actions.
type Table map[id.Role]map[Resource][]Action

// DefaultTable is the custody policy.
//
//	| Role      | Resume / Offer letter                | Principals      |
//	|-----------|--------------------------------------|-----------------|
//	| owner     | upload, view_own                     | view_self       |
//	| reviewer  | view_approved                        | (none)          |
//	| custodian | upload, view_all, delete, attest     | view_all, manage|
func DefaultTable() Table {
	return Table{
		id.RoleOwner: {
			ResourceResume:      {ActionUpload, ActionViewOwn},
			ResourceOfferLetter: {ActionUpload, ActionViewOwn},
			ResourcePrincipals:  {ActionViewSelf},
		},
		id.RoleReviewer: {
			ResourceResume:      {ActionViewApproved},
			ResourceOfferLetter: {ActionViewApproved},
			ResourcePrincipals:  {},
		},
		id.RoleCustodian: {
			ResourceResume:      {ActionUpload, ActionViewAll, ActionDelete, ActionAttest},
			ResourceOfferLetter: {ActionUpload, ActionViewAll, ActionDelete, ActionAttest},
			ResourcePrincipals:  {ActionViewAll, ActionManage},
		},
	}
}

// Matrix is the validated, immutable form of a Table.
type Matrix struct {
	perms map[id.Role]map[Resource]map[Action]struct{}
}

// NewMatrix validates t and freezes it. Every role must map every resource,
// even if to an empty set, so a typo surfaces at startup instead of as a
// silent deny.
func NewMatrix(t Table) (*Matrix, error) {
	m := &Matrix{perms: make(map[id.Role]map[Resource]map[Action]struct{}, len(t))}
	for _, role := range id.Roles() {
		resources, ok := t[role]
		if !ok {
			return nil, fmt.Errorf("acl: role %q has no entry", role)
		}
		m.perms[role] = make(map[Resource]map[Action]struct{}, len(resources))
		for _, res := range Resources() {
			actions, ok := resources[res]
			if !ok {
				return nil, fmt.Errorf("acl: role %q has no entry for resource %q", role, res)
			}
			set := make(map[Action]struct{}, len(actions))
			for _, a := range actions {
				if !slices.Contains(knownActions, a) {
					return nil, fmt.Errorf("acl: role %q resource %q: unknown action %q", role, res, a)
				}
				set[a] = struct{}{}
			}
			m.perms[role][res] = set
		}
		for res := range resources {
			if !slices.Contains(Resources(), res) {
				return nil, fmt.Errorf("acl: role %q: unknown resource %q", role, res)
			}
		}
	}
	for role := range t {
		if !role.IsValid() {
			return nil, fmt.Errorf("acl: unknown role %q", role)
		}
	}
	return m, nil
}

// MustDefault builds the matrix from DefaultTable and panics if it is invalid.
func MustDefault() *Matrix {
	m, err := NewMatrix(DefaultTable())
	if err != nil {
		panic(err)
	}
	return m
}

// Allowed reports whether role may perform action on resource. Unknown roles
// and resources are denied.
func (m *Matrix) Allowed(role id.Role, resource Resource, action Action) bool {
	set, ok := m.perms[role][resource]
	if !ok {
		return false
	}
	if _, full := set[ActionFullAccess]; full {
		return true
	}
	_, ok = set[action]
	return ok
}

// Actions returns the declared action set, sorted.
func (m *Matrix) Actions(role id.Role, resource Resource) []Action {
	set := m.perms[role][resource]
	out := make([]Action, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}
