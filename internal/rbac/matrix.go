package rbac

import (
	"encoding/json"
	"strings"
)

// Role is the single role carried by a user profile. Exactly one per user;
// changing it requires a fresh login.
type Role string

const (
	RoleSuperAdmin  Role = "SUPER_ADMIN"
	RoleAdminPusat  Role = "ADMIN_PUSAT"
	RoleAdminCabang Role = "ADMIN_CABANG"
	RoleAdminUnit   Role = "ADMIN_UNIT"
	RoleSupervisor  Role = "SUPERVISOR"
	RoleSales       Role = "SALES"
	RoleTechnician  Role = "TECHNICIAN"
	RoleUser        Role = "USER"
)

// Resource is a flat permission bucket. The dotted form groups related
// feature areas cosmetically; a grant on "master" implies nothing about
// "master.unit".
type Resource string

const (
	ResourceMasterUnit      Resource = "master.unit"
	ResourceMasterPelanggan Resource = "master.pelanggan"
	ResourceInvoice         Resource = "keuangan.invoice"
	ResourcePembayaran      Resource = "keuangan.pembayaran"
	ResourceWorkOrder       Resource = "produksi.wo"
	ResourceProspek         Resource = "produksi.prospek"
	ResourceCoverage        Resource = "laporan.coverage"
	ResourceWhatsApp        Resource = "notifikasi.whatsapp"
	ResourceSettingsUser    Resource = "settings.user"
	ResourceSettingsRole    Resource = "settings.role"
)

// Action is a verb a role may perform on a resource.
type Action string

const (
	ActionView        Action = "view"
	ActionCreate      Action = "create"
	ActionEdit        Action = "edit"
	ActionDelete      Action = "delete"
	ActionVerify      Action = "verify"
	ActionExport      Action = "export"
	ActionImpersonate Action = "impersonate"
	ActionPay         Action = "pay"
)

// Record is one flat permission row as returned by the backend
// permission listing.
type Record struct {
	Role     Role     `json:"role"`
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// Matrix maps Role -> Resource -> allowed actions. Membership-only
// semantics; ordering of the action slice carries no meaning. A missing
// resource key means "no permissions", not "unknown".
type Matrix map[Role]map[Resource][]Action

// FromRecords folds a flat permission listing into a Matrix, discarding
// blank rows and deduplicating repeated actions per resource.
func FromRecords(records []Record) Matrix {
	m := make(Matrix)
	for _, rec := range records {
		role := Role(strings.TrimSpace(string(rec.Role)))
		resource := Resource(strings.TrimSpace(string(rec.Resource)))
		action := Action(strings.TrimSpace(string(rec.Action)))
		if role == "" || resource == "" || action == "" {
			continue
		}
		byResource, ok := m[role]
		if !ok {
			byResource = make(map[Resource][]Action)
			m[role] = byResource
		}
		if containsAction(byResource[resource], action) {
			continue
		}
		byResource[resource] = append(byResource[resource], action)
	}
	return m
}

// Allows reports pure matrix membership. It applies no bypass rules; callers
// wanting SUPER_ADMIN semantics go through Authorizer.
func (m Matrix) Allows(role Role, resource Resource, action Action) bool {
	byResource, ok := m[role]
	if !ok {
		return false
	}
	return containsAction(byResource[resource], action)
}

// MarshalJSON keeps the wire shape identical to the backend-synced matrix so
// the persisted tier and the static default stay interchangeable.
func (m Matrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[Role]map[Resource][]Action(m))
}

// ParseMatrix decodes a persisted matrix. Malformed input yields a nil
// matrix and false rather than an error; the caller treats that as absence.
func ParseMatrix(data []byte) (Matrix, bool) {
	if len(data) == 0 {
		return nil, false
	}
	var raw map[Role]map[Resource][]Action
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false
	}
	return Matrix(raw), true
}

func containsAction(actions []Action, a Action) bool {
	for _, candidate := range actions {
		if candidate == a {
			return true
		}
	}
	return false
}
