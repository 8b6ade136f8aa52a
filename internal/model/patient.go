package model

import (
	"github.com/google/uuid"
)

type Priority string

const (
	PriorityStandard Priority = "standard"
	PriorityUrgent   Priority = "urgent"
)

type Patient struct {
	Base
	UserID        *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	PatientNumber string     `db:"patient_number" json:"patient_number"`
	Name          string     `db:"name" json:"name"`
	Age           *int       `db:"age" json:"age,omitempty"`
	Gender        string     `db:"gender" json:"gender,omitempty"`
	Phone         string     `db:"phone" json:"phone,omitempty"`
	Priority      Priority   `db:"priority" json:"priority"`
}

type CreatePatientRequest struct {
	UserID   *uuid.UUID `json:"user_id"`
	Name     string     `json:"name" binding:"required"`
	Age      *int       `json:"age" binding:"omitempty,min=0,max=150"`
	Gender   string     `json:"gender" binding:"omitempty,oneof=male female other"`
	Phone    string     `json:"phone"`
	Priority Priority   `json:"priority" binding:"omitempty,oneof=standard urgent"`
}

// UpdatePatientRequest changes demographic fields. Omitted fields keep their
// stored value. The linked user and patient number cannot be changed.
type UpdatePatientRequest struct {
	Name     *string   `json:"name" binding:"omitempty,min=1"`
	Age      *int      `json:"age" binding:"omitempty,min=0,max=150"`
	Gender   *string   `json:"gender" binding:"omitempty,oneof=male female other"`
	Phone    *string   `json:"phone"`
	Priority *Priority `json:"priority" binding:"omitempty,oneof=standard urgent"`
}

// Apply copies the present fields onto p and returns the changed ones keyed by
// column name.
func (r *UpdatePatientRequest) Apply(p *Patient) map[string]interface{} {
	changes := map[string]interface{}{}
	if r.Name != nil && *r.Name != p.Name {
		p.Name = *r.Name
		changes["name"] = p.Name
	}
	if r.Age != nil && (p.Age == nil || *r.Age != *p.Age) {
		age := *r.Age
		p.Age = &age
		changes["age"] = age
	}
	if r.Gender != nil && *r.Gender != p.Gender {
		p.Gender = *r.Gender
		changes["gender"] = p.Gender
	}
	if r.Phone != nil && *r.Phone != p.Phone {
		p.Phone = *r.Phone
		changes["phone"] = p.Phone
	}
	if r.Priority != nil && *r.Priority != p.Priority {
		p.Priority = *r.Priority
		changes["priority"] = p.Priority
	}
	return changes
}

type PatientFilter struct {
	Pagination
	// UserID restricts the listing to the patient record owned by a user.
	UserID *uuid.UUID `form:"-"`
	Search string     `form:"search"`
}
