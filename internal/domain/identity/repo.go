package identity

import (
	"context"

	"github.com/google/uuid"
)

// PatientRepository returns apperr.ErrNotFound for unknown ids and
// apperr.ErrConflict when a unique email or phone is violated.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByEmail(ctx context.Context, email string) (*Patient, error)
	GetByPhone(ctx context.Context, phone string) (*Patient, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Doctor, int, error)
	ListBySpecialization(ctx context.Context, specialization string, limit, offset int) ([]*Doctor, int, error)
	// Search matches keyword case-insensitively against name or specialization.
	Search(ctx context.Context, keyword string, limit, offset int) ([]*Doctor, int, error)
	Specializations(ctx context.Context) ([]string, error)
}
