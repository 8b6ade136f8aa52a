package model

// Role is the closed set of user roles.
type Role string

const (
	RolePatient    Role = "patient"
	RoleReception  Role = "reception"
	RoleDoctor     Role = "doctor"
	RoleLaboratory Role = "laboratory"
	RoleStaff      Role = "staff"
	RoleAdmin      Role = "admin"
)

var Roles = []Role{RolePatient, RoleReception, RoleDoctor, RoleLaboratory, RoleStaff, RoleAdmin}

func (r Role) Valid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

// IsStaffMember reports whether the role belongs to clinic staff. Admins are
// not staff members.
func (r Role) IsStaffMember() bool {
	switch r {
	case RoleReception, RoleDoctor, RoleLaboratory, RoleStaff:
		return true
	}
	return false
}

// Capability is a named permission derived from a role.
type Capability string

const (
	CapMoveStage       Capability = "move_stage"
	CapRecordTriage    Capability = "record_triage"
	CapClinical        Capability = "clinical"
	CapCompleteLabTest Capability = "complete_lab_test"
	CapDispense        Capability = "dispense"
	CapViewAll         Capability = "view_all"
	CapManagePatients  Capability = "manage_patients"
	CapManageUsers     Capability = "manage_users"
)

var Capabilities = []Capability{
	CapMoveStage,
	CapRecordTriage,
	CapClinical,
	CapCompleteLabTest,
	CapDispense,
	CapViewAll,
	CapManagePatients,
	CapManageUsers,
}

// roleCapabilities holds the per-role grants. CapDispense is not listed; it
// belongs to every staff member and is added by CapabilitiesFor.
var roleCapabilities = map[Role][]Capability{
	RolePatient:    {},
	RoleReception:  {CapMoveStage, CapViewAll, CapManagePatients},
	RoleDoctor:     {CapMoveStage, CapRecordTriage, CapClinical, CapViewAll, CapManagePatients},
	RoleLaboratory: {CapMoveStage, CapCompleteLabTest, CapViewAll},
	RoleStaff:      {CapMoveStage, CapRecordTriage, CapViewAll, CapManagePatients},
	RoleAdmin:      {CapMoveStage, CapRecordTriage, CapClinical, CapCompleteLabTest, CapViewAll, CapManagePatients, CapManageUsers},
}

// CapabilitySet is the resolved set of capabilities for one actor.
type CapabilitySet map[Capability]struct{}

func CapabilitiesFor(r Role) CapabilitySet {
	caps := roleCapabilities[r]
	set := make(CapabilitySet, len(caps)+1)
	for _, c := range caps {
		set[c] = struct{}{}
	}
	if r.IsStaffMember() {
		set[CapDispense] = struct{}{}
	}
	return set
}

func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}
