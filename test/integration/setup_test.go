//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medbook/medbook/internal/domain/identity"
	"github.com/medbook/medbook/internal/domain/scheduling"
	"github.com/medbook/medbook/internal/platform/db"
	"github.com/medbook/medbook/internal/platform/outbox"
	"github.com/medbook/medbook/pkg/civil"
)

// globalPool is shared by every test and reset between them by resetDB.
var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	connStr, cleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(ctx, connStr, 20, 2)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	if _, err := db.NewMigrator(pool, migrationsDir()).Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

func resetDB(t *testing.T) {
	t.Helper()
	_, err := globalPool.Exec(context.Background(),
		`TRUNCATE appointments, availabilities, patients, doctors, outbox_events RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("reset database: %v", err)
	}
}

// today is the clock the booking core sees in these tests.
var today = time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	patients identity.PatientRepository
	doctors  identity.DoctorRepository
	events   *outbox.Repository
	ledger   *scheduling.Ledger
	coord    *scheduling.Coordinator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	resetDB(t)

	tx := db.NewTxManager(globalPool)
	patients := identity.NewPatientRepo(globalPool)
	doctors := identity.NewDoctorRepo(globalPool)
	events := outbox.NewRepository(globalPool)
	opts := []scheduling.Option{
		scheduling.WithClock(func() time.Time { return today }, time.UTC),
		scheduling.WithLogger(zerolog.Nop()),
		scheduling.WithEvents(events),
	}
	slots := scheduling.NewAvailabilityRepoPG(globalPool)
	appts := scheduling.NewAppointmentRepoPG(globalPool)
	ledger := scheduling.NewLedger(slots, appts, doctors, tx, opts...)
	return &env{
		patients: patients,
		doctors:  doctors,
		events:   events,
		ledger:   ledger,
		coord:    scheduling.NewCoordinator(appts, ledger, patients, doctors, tx, opts...),
	}
}

func (e *env) patient(t *testing.T, name, email, phone string) *identity.Patient {
	t.Helper()
	p := &identity.Patient{Name: name, Email: email, Phone: phone}
	if err := e.patients.Create(context.Background(), p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return p
}

func (e *env) doctor(t *testing.T, name, specialization string) *identity.Doctor {
	t.Helper()
	d := &identity.Doctor{Name: name, Specialization: specialization}
	if err := e.doctors.Create(context.Background(), d); err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	return d
}

func (e *env) slot(t *testing.T, doctor *identity.Doctor, date, start, end string) *scheduling.Availability {
	t.Helper()
	a, err := e.ledger.Declare(context.Background(), doctor.ID, mustDate(date), mustTime(start), mustTime(end))
	if err != nil {
		t.Fatalf("declare %s %s-%s: %v", date, start, end, err)
	}
	return a
}

func mustDate(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func mustTime(s string) civil.TimeOfDay {
	t, err := civil.ParseTime(s)
	if err != nil {
		panic(err)
	}
	return t
}
