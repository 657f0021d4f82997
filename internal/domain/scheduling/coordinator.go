package scheduling

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medbook/medbook/internal/domain/identity"
	"github.com/medbook/medbook/internal/platform/apperr"
	"github.com/medbook/medbook/internal/platform/db"
	"github.com/medbook/medbook/internal/platform/outbox"
)

// Coordinator runs the appointment state machine:
//
//	BOOKED -> CANCELED | COMPLETED | NO_SHOW, any -> deleted
//
// Every transition that touches a slot runs in one transaction with it.
type Coordinator struct {
	appts    AppointmentRepository
	ledger   *Ledger
	patients PatientLookup
	doctors  DoctorLookup
	tx       db.TxManager
	options
}

func NewCoordinator(appts AppointmentRepository, ledger *Ledger, patients PatientLookup, doctors DoctorLookup, tx db.TxManager, opts ...Option) *Coordinator {
	return &Coordinator{
		appts:    appts,
		ledger:   ledger,
		patients: patients,
		doctors:  doctors,
		tx:       tx,
		options:  newOptions(opts),
	}
}

// Book creates a BOOKED appointment and closes its slot. At most one BOOKED
// appointment exists per slot and date; losers of a race get ErrConflict.
func (c *Coordinator) Book(ctx context.Context, req BookingRequest) (_ *AppointmentView, err error) {
	ctx, done := c.startOp(ctx, "book", attribute.String("availability.id", req.AvailabilityID.String()))
	defer func() { done(err) }()

	if err := requireExists(ctx, c.patients.Exists, "patient", req.PatientID); err != nil {
		return nil, err
	}
	if err := requireExists(ctx, c.doctors.Exists, "doctor", req.DoctorID); err != nil {
		return nil, err
	}

	appt := &Appointment{
		PatientID:      req.PatientID,
		DoctorID:       req.DoctorID,
		AvailabilityID: req.AvailabilityID,
		Date:           req.Date,
		Status:         StatusBooked,
		Notes:          req.Notes,
	}
	err = c.tx.WithTx(ctx, func(ctx context.Context) error {
		slot, err := c.ledger.slots.GetForUpdate(ctx, req.AvailabilityID)
		if err != nil {
			return err
		}
		taken, err := c.appts.ExistsBooked(ctx, slot.ID, req.Date)
		if err != nil {
			return err
		}
		// A closed slot booked for this date falls through to the conflict
		// check below, after the doctor and date checks.
		if !slot.Open && !taken {
			return apperr.NotFoundf("availability not found or not available with id: %s", slot.ID)
		}
		if slot.DoctorID != req.DoctorID {
			return apperr.Newf(apperr.ErrMismatch, "availability %s does not belong to doctor %s", slot.ID, req.DoctorID)
		}
		// The date is not compared with slot.Date; a slot is booked per date.
		if req.Date.Before(c.today()) {
			return apperr.Newf(apperr.ErrInvalidDate, "cannot book appointments for past date %s", req.Date)
		}
		if taken {
			return slotTaken(slot.ID, req)
		}

		if err := c.appts.Create(ctx, appt); err != nil {
			return err
		}
		if err := c.ledger.MarkBooked(ctx, slot.ID); err != nil {
			return err
		}
		return c.record(ctx, EventAppointmentBooked, appt)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("availability_id", appt.AvailabilityID.String()).
		Str("patient_id", appt.PatientID.String()).
		Str("date", appt.Date.String()).
		Msg("appointment booked")
	return c.view(ctx, appt, nil)
}

func slotTaken(slotID uuid.UUID, req BookingRequest) error {
	return apperr.Conflictf("availability %s is already booked for %s", slotID, req.Date)
}

// Cancel sets a BOOKED appointment to CANCELED and reopens its slot.
func (c *Coordinator) Cancel(ctx context.Context, id uuid.UUID) (*AppointmentView, error) {
	appt, err := c.transition(ctx, id, StatusCanceled, EventAppointmentCanceled, func(ctx context.Context, a *Appointment) error {
		return c.ledger.MarkOpen(ctx, a.AvailabilityID)
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info().Str("appointment_id", id.String()).Msg("appointment canceled")
	return c.view(ctx, appt, nil)
}

// Complete marks a BOOKED appointment as attended. The slot stays closed.
func (c *Coordinator) Complete(ctx context.Context, id uuid.UUID) (*AppointmentView, error) {
	appt, err := c.transition(ctx, id, StatusCompleted, EventAppointmentCompleted, nil)
	if err != nil {
		return nil, err
	}
	return c.view(ctx, appt, nil)
}

// MarkNoShow marks a BOOKED appointment as missed. The slot stays closed.
func (c *Coordinator) MarkNoShow(ctx context.Context, id uuid.UUID) (*AppointmentView, error) {
	appt, err := c.transition(ctx, id, StatusNoShow, EventAppointmentNoShow, nil)
	if err != nil {
		return nil, err
	}
	return c.view(ctx, appt, nil)
}

// transition moves a BOOKED appointment to target, running sideEffect in
// the same transaction.
func (c *Coordinator) transition(ctx context.Context, id uuid.UUID, target AppointmentStatus, event string,
	sideEffect func(context.Context, *Appointment) error) (_ *Appointment, err error) {
	ctx, done := c.startOp(ctx, strings.ToLower(string(target)), attribute.String("appointment.id", id.String()))
	defer func() { done(err) }()

	var out *Appointment
	err = c.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := c.appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case a.Status == StatusCanceled && target == StatusCanceled:
			return apperr.Newf(apperr.ErrAlreadyCanceled, "appointment %s is already canceled", id)
		case a.Status != StatusBooked:
			return apperr.InvalidTransitionf("appointment %s is %s and cannot become %s", id, a.Status, target)
		}

		if err := c.appts.UpdateStatus(ctx, id, target); err != nil {
			return err
		}
		a.Status = target
		if sideEffect != nil {
			if err := sideEffect(ctx, a); err != nil {
				return err
			}
		}
		out = a
		return c.record(ctx, event, a)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateNotes replaces the appointment's notes. No slot side effect.
func (c *Coordinator) UpdateNotes(ctx context.Context, id uuid.UUID, notes *string) (*AppointmentView, error) {
	if err := c.appts.UpdateNotes(ctx, id, notes); err != nil {
		return nil, err
	}
	return c.Get(ctx, id)
}

// Delete removes the appointment, reopening its slot first when BOOKED.
func (c *Coordinator) Delete(ctx context.Context, id uuid.UUID) (err error) {
	ctx, done := c.startOp(ctx, "delete_appointment", attribute.String("appointment.id", id.String()))
	defer func() { done(err) }()

	err = c.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := c.appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == StatusBooked {
			if err := c.ledger.MarkOpen(ctx, a.AvailabilityID); err != nil {
				return err
			}
		}
		if err := c.appts.Delete(ctx, id); err != nil {
			return err
		}
		return c.record(ctx, EventAppointmentDeleted, a)
	})
	if err != nil {
		return err
	}
	c.logger.Info().Str("appointment_id", id.String()).Msg("appointment deleted")
	return nil
}

func (c *Coordinator) record(ctx context.Context, eventType string, a *Appointment) error {
	evt, err := outbox.NewJSONEvent("appointment", a.ID.String(), eventType, AppointmentEvent{
		AppointmentID:  a.ID,
		PatientID:      a.PatientID,
		DoctorID:       a.DoctorID,
		AvailabilityID: a.AvailabilityID,
		Date:           a.Date,
		Status:         a.Status,
		OccurredAt:     c.now().UTC(),
	})
	if err != nil {
		return err
	}
	return c.events.Record(ctx, evt)
}

// -- Reads --

func (c *Coordinator) Get(ctx context.Context, id uuid.UUID) (*AppointmentView, error) {
	a, err := c.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.view(ctx, a, nil)
}

func (c *Coordinator) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*AppointmentView, error) {
	return c.listForPatient(ctx, patientID, AppointmentFilter{PatientID: patientID})
}

func (c *Coordinator) ListByPatientAndStatus(ctx context.Context, patientID uuid.UUID, status AppointmentStatus) ([]*AppointmentView, error) {
	return c.listForPatient(ctx, patientID, AppointmentFilter{PatientID: patientID, Status: status})
}

// ListUpcomingByPatient returns appointments dated today or later, by date.
func (c *Coordinator) ListUpcomingByPatient(ctx context.Context, patientID uuid.UUID) ([]*AppointmentView, error) {
	today := c.today()
	return c.listForPatient(ctx, patientID, AppointmentFilter{PatientID: patientID, From: &today})
}

func (c *Coordinator) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*AppointmentView, error) {
	return c.listForDoctor(ctx, doctorID, AppointmentFilter{DoctorID: doctorID})
}

func (c *Coordinator) ListByDoctorAndStatus(ctx context.Context, doctorID uuid.UUID, status AppointmentStatus) ([]*AppointmentView, error) {
	return c.listForDoctor(ctx, doctorID, AppointmentFilter{DoctorID: doctorID, Status: status})
}

func (c *Coordinator) ListUpcomingByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*AppointmentView, error) {
	today := c.today()
	return c.listForDoctor(ctx, doctorID, AppointmentFilter{DoctorID: doctorID, From: &today})
}

func (c *Coordinator) listForPatient(ctx context.Context, patientID uuid.UUID, f AppointmentFilter) ([]*AppointmentView, error) {
	if err := requireExists(ctx, c.patients.Exists, "patient", patientID); err != nil {
		return nil, err
	}
	return c.list(ctx, f)
}

func (c *Coordinator) listForDoctor(ctx context.Context, doctorID uuid.UUID, f AppointmentFilter) ([]*AppointmentView, error) {
	if err := requireExists(ctx, c.doctors.Exists, "doctor", doctorID); err != nil {
		return nil, err
	}
	return c.list(ctx, f)
}

func (c *Coordinator) list(ctx context.Context, f AppointmentFilter) ([]*AppointmentView, error) {
	appts, err := c.appts.List(ctx, f)
	if err != nil {
		return nil, err
	}
	cache := &viewCache{
		patients: map[uuid.UUID]*identity.Patient{},
		doctors:  map[uuid.UUID]*identity.Doctor{},
		slots:    map[uuid.UUID]*Availability{},
	}
	views := make([]*AppointmentView, 0, len(appts))
	for _, a := range appts {
		v, err := c.view(ctx, a, cache)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// viewCache avoids refetching the same patient, doctor or slot while
// composing a list.
type viewCache struct {
	patients map[uuid.UUID]*identity.Patient
	doctors  map[uuid.UUID]*identity.Doctor
	slots    map[uuid.UUID]*Availability
}

func (c *Coordinator) view(ctx context.Context, a *Appointment, cache *viewCache) (*AppointmentView, error) {
	if cache == nil {
		cache = &viewCache{
			patients: map[uuid.UUID]*identity.Patient{},
			doctors:  map[uuid.UUID]*identity.Doctor{},
			slots:    map[uuid.UUID]*Availability{},
		}
	}

	p, ok := cache.patients[a.PatientID]
	if !ok {
		var err error
		if p, err = c.patients.GetByID(ctx, a.PatientID); err != nil {
			return nil, err
		}
		cache.patients[a.PatientID] = p
	}
	d, ok := cache.doctors[a.DoctorID]
	if !ok {
		var err error
		if d, err = c.doctors.GetByID(ctx, a.DoctorID); err != nil {
			return nil, err
		}
		cache.doctors[a.DoctorID] = d
	}
	s, ok := cache.slots[a.AvailabilityID]
	if !ok {
		var err error
		if s, err = c.ledger.slots.GetByID(ctx, a.AvailabilityID); err != nil {
			return nil, err
		}
		cache.slots[a.AvailabilityID] = s
	}

	return &AppointmentView{
		Appointment:          *a,
		PatientName:          p.Name,
		PatientEmail:         p.Email,
		PatientPhone:         p.Phone,
		DoctorName:           d.Name,
		DoctorSpecialization: d.Specialization,
		StartTime:            s.StartTime,
		EndTime:              s.EndTime,
	}, nil
}

func requireExists(ctx context.Context, exists func(context.Context, uuid.UUID) (bool, error), entity string, id uuid.UUID) error {
	ok, err := exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound(entity, id)
	}
	return nil
}

// IsConflict reports whether err means the slot was already taken.
func IsConflict(err error) bool {
	return errors.Is(err, apperr.ErrConflict)
}
