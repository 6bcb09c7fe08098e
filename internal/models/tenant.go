package models

// TenantScope identifies the school and campus a request is allowed to touch.
// It is resolved once at the API boundary and passed explicitly into every
// data-access call; repositories must never query outside of it.
type TenantScope struct {
	SchoolID   string `json:"school_id"`
	CampusID   string `json:"campus_id,omitempty"`
	SuperAdmin bool   `json:"super_admin"`
}

// Allows reports whether the scope may access rows owned by the given school.
func (s TenantScope) Allows(schoolID string) bool {
	if s.SuperAdmin {
		return true
	}
	return s.SchoolID == schoolID
}
