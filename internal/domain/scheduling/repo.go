package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/medbook/medbook/internal/domain/identity"
	"github.com/medbook/medbook/internal/platform/outbox"
	"github.com/medbook/medbook/pkg/civil"
)

// AvailabilityRepository persists slots. Lookups of unknown ids return
// apperr.ErrNotFound.
type AvailabilityRepository interface {
	Create(ctx context.Context, a *Availability) error
	GetByID(ctx context.Context, id uuid.UUID) (*Availability, error)
	// GetForUpdate locks the slot row until the enclosing transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Availability, error)
	Update(ctx context.Context, a *Availability) error
	SetOpen(ctx context.Context, id uuid.UUID, open bool) error
	Delete(ctx context.Context, id uuid.UUID) error

	// LockDoctorDay serializes slot declarations for one doctor and date
	// within the enclosing transaction.
	LockDoctorDay(ctx context.Context, doctorID uuid.UUID, date civil.Date) error
	// FindOverlapping returns slots of doctorID on date intersecting
	// [start, end), ignoring exclude.
	FindOverlapping(ctx context.Context, doctorID uuid.UUID, date civil.Date, start, end civil.TimeOfDay, exclude uuid.UUID) ([]*Availability, error)

	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error)
	ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]*Availability, error)
	ListOpenByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]*Availability, error)
	ListOpenByDate(ctx context.Context, date civil.Date) ([]*Availability, error)
	// ListByDoctorFrom returns slots on or after from, ordered by date and start.
	ListByDoctorFrom(ctx context.Context, doctorID uuid.UUID, from civil.Date) ([]*Availability, error)
}

// AppointmentRepository persists appointments. Create returns
// apperr.ErrConflict when a second BOOKED appointment would exist for the
// same slot and date.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ExistsBooked(ctx context.Context, availabilityID uuid.UUID, date civil.Date) (bool, error)
	HasBooked(ctx context.Context, availabilityID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error
	UpdateNotes(ctx context.Context, id uuid.UUID, notes *string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f AppointmentFilter) ([]*Appointment, error)
}

// PatientLookup and DoctorLookup are the registry operations the booking
// core depends on. identity's repositories satisfy them.
type PatientLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.Patient, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type DoctorLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.Doctor, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// EventRecorder stores an event in the caller's transaction.
type EventRecorder interface {
	Record(ctx context.Context, evt outbox.Event) error
}
