package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patients table.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Doctor maps to the doctors table.
type Doctor struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Specialization string    `db:"specialization" json:"specialization"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// PatientRequest is the body of POST/PUT /patients.
type PatientRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email,max=255"`
	Phone string `json:"phone" validate:"required,phone10"`
}

// Apply copies the request onto p, normalizing whitespace and email case.
func (r *PatientRequest) Apply(p *Patient) {
	p.Name = strings.TrimSpace(r.Name)
	p.Email = strings.ToLower(strings.TrimSpace(r.Email))
	p.Phone = strings.TrimSpace(r.Phone)
}

// DoctorRequest is the body of POST/PUT /doctors.
type DoctorRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	Specialization string `json:"specialization" validate:"required,max=100"`
}

func (r *DoctorRequest) Apply(d *Doctor) {
	d.Name = strings.TrimSpace(r.Name)
	d.Specialization = strings.TrimSpace(r.Specialization)
}
