package scheduling

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medbook/medbook/internal/platform/apperr"
	"github.com/medbook/medbook/internal/platform/db"
	"github.com/medbook/medbook/pkg/civil"
)

// Ledger owns declared slots and their open flag.
type Ledger struct {
	slots   AvailabilityRepository
	appts   AppointmentRepository
	doctors DoctorLookup
	tx      db.TxManager
	options
}

func NewLedger(slots AvailabilityRepository, appts AppointmentRepository, doctors DoctorLookup, tx db.TxManager, opts ...Option) *Ledger {
	return &Ledger{slots: slots, appts: appts, doctors: doctors, tx: tx, options: newOptions(opts)}
}

func (l *Ledger) requireDoctor(ctx context.Context, doctorID uuid.UUID) error {
	ok, err := l.doctors.Exists(ctx, doctorID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("doctor", doctorID)
	}
	return nil
}

func checkRange(start, end civil.TimeOfDay) error {
	if !start.Before(end) {
		return apperr.Newf(apperr.ErrInvalidRange, "start time %s must be before end time %s", start, end)
	}
	return nil
}

// checkOverlap must run inside a transaction holding LockDoctorDay.
func (l *Ledger) checkOverlap(ctx context.Context, doctorID uuid.UUID, date civil.Date, start, end civil.TimeOfDay, exclude uuid.UUID) error {
	if err := l.slots.LockDoctorDay(ctx, doctorID, date); err != nil {
		return err
	}
	existing, err := l.slots.FindOverlapping(ctx, doctorID, date, start, end, exclude)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		e := existing[0]
		return apperr.Newf(apperr.ErrOverlap, "time slot %s-%s on %s overlaps existing availability %s-%s",
			start, end, date, e.StartTime, e.EndTime)
	}
	return nil
}

// Declare creates an open slot for doctorID.
func (l *Ledger) Declare(ctx context.Context, doctorID uuid.UUID, date civil.Date, start, end civil.TimeOfDay) (_ *Availability, err error) {
	ctx, done := l.startOp(ctx, "declare_availability", attribute.String("doctor.id", doctorID.String()))
	defer func() { done(err) }()

	if err := l.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	if date.Before(l.today()) {
		return nil, apperr.Newf(apperr.ErrPastDate, "cannot create availability for past date %s", date)
	}

	a := &Availability{DoctorID: doctorID, Date: date, StartTime: start, EndTime: end, Open: true}
	err = l.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := l.checkOverlap(ctx, doctorID, date, start, end, uuid.Nil); err != nil {
			return err
		}
		return l.slots.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	l.logger.Info().Str("availability_id", a.ID.String()).Str("doctor_id", doctorID.String()).
		Str("date", date.String()).Msg("availability declared")
	return a, nil
}

// Update rewrites a slot's bounds. Overlap is re-checked against the doctor's
// other slots. The open flag follows bookings only: a ch.Open that differs
// from the stored flag is rejected with ErrConflict.
func (l *Ledger) Update(ctx context.Context, id uuid.UUID, ch SlotChange) (*Availability, error) {
	var out *Availability
	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := l.slots.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := checkRange(ch.StartTime, ch.EndTime); err != nil {
			return err
		}
		if err := l.checkOverlap(ctx, a.DoctorID, ch.Date, ch.StartTime, ch.EndTime, a.ID); err != nil {
			return err
		}
		if ch.Open != nil && *ch.Open != a.Open {
			if a.Open {
				return apperr.Conflictf("availability %s has no booking and cannot be closed", a.ID)
			}
			return apperr.Conflictf("availability %s has an active booking and cannot be reopened", a.ID)
		}

		a.Date, a.StartTime, a.EndTime = ch.Date, ch.StartTime, ch.EndTime
		if err := l.slots.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkBooked closes the slot. Idempotent. Only the Coordinator calls it.
func (l *Ledger) MarkBooked(ctx context.Context, id uuid.UUID) error {
	return l.slots.SetOpen(ctx, id, false)
}

// MarkOpen reopens the slot. Idempotent. Only the Coordinator calls it.
func (l *Ledger) MarkOpen(ctx context.Context, id uuid.UUID) error {
	return l.slots.SetOpen(ctx, id, true)
}

// Delete removes a slot. Slots referenced by a BOOKED appointment are
// rejected with ErrConflict; historical appointments go with the slot.
func (l *Ledger) Delete(ctx context.Context, id uuid.UUID) error {
	return l.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := l.slots.GetForUpdate(ctx, id); err != nil {
			return err
		}
		booked, err := l.appts.HasBooked(ctx, id)
		if err != nil {
			return err
		}
		if booked {
			return apperr.Conflictf("availability %s has an active booking; cancel it first", id)
		}
		if err := l.slots.Delete(ctx, id); err != nil {
			return err
		}
		l.logger.Info().Str("availability_id", id.String()).Msg("availability deleted")
		return nil
	})
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*Availability, error) {
	return l.slots.GetByID(ctx, id)
}

func (l *Ledger) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error) {
	if err := l.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return l.slots.ListByDoctor(ctx, doctorID)
}

func (l *Ledger) ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]*Availability, error) {
	if err := l.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return l.slots.ListByDoctorAndDate(ctx, doctorID, date)
}

func (l *Ledger) ListOpenByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]*Availability, error) {
	if err := l.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return l.slots.ListOpenByDoctorAndDate(ctx, doctorID, date)
}

func (l *Ledger) ListOpenByDate(ctx context.Context, date civil.Date) ([]*Availability, error) {
	return l.slots.ListOpenByDate(ctx, date)
}

// ListUpcomingByDoctor returns slots dated today or later.
func (l *Ledger) ListUpcomingByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error) {
	if err := l.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return l.slots.ListByDoctorFrom(ctx, doctorID, l.today())
}
