package scheduling

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medbook/medbook/internal/platform/apperr"
	"github.com/medbook/medbook/internal/platform/db"
	"github.com/medbook/medbook/pkg/civil"
)

// Dates and times are bound as their text forms; pgx sends strings in
// text format, which PostgreSQL casts to DATE and TIME.

// -- Availability Repository --

type availabilityRepoPG struct {
	pool *pgxpool.Pool
}

func NewAvailabilityRepoPG(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

func (r *availabilityRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const availCols = `id, doctor_id, date, start_time, end_time, is_open, created_at, updated_at`

func scanAvailability(row pgx.Row) (*Availability, error) {
	var a Availability
	err := row.Scan(&a.ID, &a.DoctorID, &a.Date, &a.StartTime, &a.EndTime, &a.Open, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *availabilityRepoPG) Create(ctx context.Context, a *Availability) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO availabilities (id, doctor_id, date, start_time, end_time, is_open)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.Date.String(), a.StartTime.String(), a.EndTime.String(), a.Open,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	switch {
	case db.IsForeignKeyViolation(err):
		return apperr.NotFound("doctor", a.DoctorID)
	case db.IsUniqueViolation(err, ""):
		return apperr.Newf(apperr.ErrOverlap, "availability %s %s-%s already exists", a.Date, a.StartTime, a.EndTime)
	}
	return err
}

func (r *availabilityRepoPG) get(ctx context.Context, id uuid.UUID, suffix string) (*Availability, error) {
	a, err := scanAvailability(r.conn(ctx).QueryRow(ctx, `SELECT `+availCols+` FROM availabilities WHERE id = $1`+suffix, id))
	if db.IsNotFound(err) {
		return nil, apperr.NotFound("availability", id)
	}
	return a, err
}

func (r *availabilityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Availability, error) {
	return r.get(ctx, id, "")
}

func (r *availabilityRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Availability, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *availabilityRepoPG) Update(ctx context.Context, a *Availability) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE availabilities
		SET date = $2, start_time = $3, end_time = $4, is_open = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.Date.String(), a.StartTime.String(), a.EndTime.String(), a.Open,
	).Scan(&a.UpdatedAt)
	switch {
	case db.IsNotFound(err):
		return apperr.NotFound("availability", a.ID)
	case db.IsUniqueViolation(err, ""):
		return apperr.Newf(apperr.ErrOverlap, "availability %s %s-%s already exists", a.Date, a.StartTime, a.EndTime)
	}
	return err
}

func (r *availabilityRepoPG) SetOpen(ctx context.Context, id uuid.UUID, open bool) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE availabilities SET is_open = $2, updated_at = NOW() WHERE id = $1`, id, open)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("availability", id)
	}
	return nil
}

func (r *availabilityRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM availabilities WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("availability", id)
	}
	return nil
}

func (r *availabilityRepoPG) LockDoctorDay(ctx context.Context, doctorID uuid.UUID, date civil.Date) error {
	_, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		"availability:"+doctorID.String()+":"+date.String())
	return err
}

func (r *availabilityRepoPG) FindOverlapping(ctx context.Context, doctorID uuid.UUID, date civil.Date, start, end civil.TimeOfDay, exclude uuid.UUID) ([]*Availability, error) {
	return r.list(ctx, `doctor_id = $1 AND date = $2 AND start_time < $4 AND end_time > $3 AND id <> $5`,
		doctorID, date.String(), start.String(), end.String(), exclude)
}

func (r *availabilityRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Availability, error) {
	return r.list(ctx, `doctor_id = $1`, doctorID)
}

func (r *availabilityRepoPG) ListByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]*Availability, error) {
	return r.list(ctx, `doctor_id = $1 AND date = $2`, doctorID, date.String())
}

func (r *availabilityRepoPG) ListOpenByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]*Availability, error) {
	return r.list(ctx, `doctor_id = $1 AND date = $2 AND is_open`, doctorID, date.String())
}

func (r *availabilityRepoPG) ListOpenByDate(ctx context.Context, date civil.Date) ([]*Availability, error) {
	return r.list(ctx, `date = $1 AND is_open`, date.String())
}

func (r *availabilityRepoPG) ListByDoctorFrom(ctx context.Context, doctorID uuid.UUID, from civil.Date) ([]*Availability, error) {
	return r.list(ctx, `doctor_id = $1 AND date >= $2`, doctorID, from.String())
}

func (r *availabilityRepoPG) list(ctx context.Context, where string, args ...any) ([]*Availability, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+availCols+` FROM availabilities WHERE `+where+` ORDER BY date, start_time, doctor_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// -- Appointment Repository --

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, patient_id, doctor_id, availability_id, appointment_date, status, notes, created_at, updated_at`

// bookedSlotConstraint is the partial unique index backing the
// one-active-booking-per-slot-and-date rule.
const bookedSlotConstraint = "uq_appointments_booked_slot"

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.AvailabilityID, &a.Date, &a.Status, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, availability_id, appointment_date, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.AvailabilityID, a.Date.String(), string(a.Status), a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, bookedSlotConstraint) {
		return apperr.Conflictf("availability %s is already booked for %s", a.AvailabilityID, a.Date)
	}
	return err
}

func (r *appointmentRepoPG) get(ctx context.Context, id uuid.UUID, suffix string) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`+suffix, id))
	if db.IsNotFound(err) {
		return nil, apperr.NotFound("appointment", id)
	}
	return a, err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.get(ctx, id, "")
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *appointmentRepoPG) ExistsBooked(ctx context.Context, availabilityID uuid.UUID, date civil.Date) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE availability_id = $1 AND appointment_date = $2 AND status = 'BOOKED'
		)`, availabilityID, date.String()).Scan(&ok)
	return ok, err
}

func (r *appointmentRepoPG) HasBooked(ctx context.Context, availabilityID uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE availability_id = $1 AND status = 'BOOKED')`,
		availabilityID).Scan(&ok)
	return ok, err
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment", id)
	}
	return nil
}

func (r *appointmentRepoPG) UpdateNotes(ctx context.Context, id uuid.UUID, notes *string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET notes = $2, updated_at = NOW() WHERE id = $1`, id, notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment", id)
	}
	return nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment", id)
	}
	return nil
}

func (r *appointmentRepoPG) List(ctx context.Context, f AppointmentFilter) ([]*Appointment, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != uuid.Nil {
		add("patient_id = $%d", f.PatientID)
	}
	if f.DoctorID != uuid.Nil {
		add("doctor_id = $%d", f.DoctorID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.From != nil {
		add("appointment_date >= $%d", f.From.String())
	}

	sql := `SELECT ` + apptCols + ` FROM appointments`
	if len(conds) > 0 {
		sql += ` WHERE ` + strings.Join(conds, " AND ")
	}
	sql += ` ORDER BY appointment_date, created_at`

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
