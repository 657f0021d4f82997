package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/medbook/internal/platform/apperr"
	"github.com/medbook/medbook/pkg/civil"
)

// Availability is a doctor-declared time window. Open is false while a
// BOOKED appointment references the slot.
type Availability struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	DoctorID  uuid.UUID       `db:"doctor_id" json:"doctorId"`
	Date      civil.Date      `db:"date" json:"date"`
	StartTime civil.TimeOfDay `db:"start_time" json:"startTime"`
	EndTime   civil.TimeOfDay `db:"end_time" json:"endTime"`
	Open      bool            `db:"is_open" json:"isAvailable"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

type AppointmentStatus string

const (
	StatusBooked    AppointmentStatus = "BOOKED"
	StatusCanceled  AppointmentStatus = "CANCELED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusNoShow    AppointmentStatus = "NO_SHOW"
)

var validStatuses = map[AppointmentStatus]bool{
	StatusBooked:    true,
	StatusCanceled:  true,
	StatusCompleted: true,
	StatusNoShow:    true,
}

// ParseStatus accepts any case and "-" for "_" ("no-show").
func ParseStatus(s string) (AppointmentStatus, error) {
	st := AppointmentStatus(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
	if !validStatuses[st] {
		return "", apperr.Validationf("invalid appointment status %q", s)
	}
	return st, nil
}

type Appointment struct {
	ID             uuid.UUID         `db:"id" json:"id"`
	PatientID      uuid.UUID         `db:"patient_id" json:"patientId"`
	DoctorID       uuid.UUID         `db:"doctor_id" json:"doctorId"`
	AvailabilityID uuid.UUID         `db:"availability_id" json:"availabilityId"`
	Date           civil.Date        `db:"appointment_date" json:"appointmentDate"`
	Status         AppointmentStatus `db:"status" json:"status"`
	Notes          *string           `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updatedAt"`
}

// AppointmentView is an appointment with its patient, doctor and slot
// details denormalized for callers.
type AppointmentView struct {
	Appointment
	PatientName          string          `json:"patientName"`
	PatientEmail         string          `json:"patientEmail"`
	PatientPhone         string          `json:"patientPhone"`
	DoctorName           string          `json:"doctorName"`
	DoctorSpecialization string          `json:"doctorSpecialization"`
	StartTime            civil.TimeOfDay `json:"startTime"`
	EndTime              civil.TimeOfDay `json:"endTime"`
}

// BookingRequest carries the inputs of Coordinator.Book.
type BookingRequest struct {
	PatientID      uuid.UUID
	DoctorID       uuid.UUID
	AvailabilityID uuid.UUID
	Date           civil.Date
	Notes          *string
}

// SlotChange carries the inputs of Ledger.Update. A nil Open leaves the
// flag untouched.
type SlotChange struct {
	Date      civil.Date
	StartTime civil.TimeOfDay
	EndTime   civil.TimeOfDay
	Open      *bool
}

// AppointmentFilter narrows AppointmentRepository.List. Zero fields match
// everything.
type AppointmentFilter struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    AppointmentStatus
	// From restricts to appointment dates on or after it.
	From *civil.Date
}

// Event types written to the outbox.
const (
	EventAppointmentBooked    = "appointment.booked"
	EventAppointmentCanceled  = "appointment.canceled"
	EventAppointmentCompleted = "appointment.completed"
	EventAppointmentNoShow    = "appointment.no_show"
	EventAppointmentDeleted   = "appointment.deleted"
)

// AppointmentEvent is the outbox payload for appointment lifecycle events.
type AppointmentEvent struct {
	AppointmentID  uuid.UUID         `json:"appointmentId"`
	PatientID      uuid.UUID         `json:"patientId"`
	DoctorID       uuid.UUID         `json:"doctorId"`
	AvailabilityID uuid.UUID         `json:"availabilityId"`
	Date           civil.Date        `json:"appointmentDate"`
	Status         AppointmentStatus `json:"status"`
	OccurredAt     time.Time         `json:"occurredAt"`
}
