package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medbook/medbook/internal/domain/identity"
	"github.com/medbook/medbook/internal/platform/apperr"
	"github.com/medbook/medbook/internal/platform/outbox"
	"github.com/medbook/medbook/pkg/civil"
)

// memStore is an in-memory stand-in for Postgres. WithTx serializes
// transactions and restores a snapshot when fn fails.
type memStore struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	slots    map[uuid.UUID]Availability
	appts    map[uuid.UUID]Appointment
	events   []outbox.Event
	patients map[uuid.UUID]identity.Patient
	doctors  map[uuid.UUID]identity.Doctor
}

type memTxKey struct{}

type memSnapshot struct {
	slots  map[uuid.UUID]Availability
	appts  map[uuid.UUID]Appointment
	events []outbox.Event
}

func newMemStore() *memStore {
	return &memStore{
		slots:    map[uuid.UUID]Availability{},
		appts:    map[uuid.UUID]Appointment{},
		patients: map[uuid.UUID]identity.Patient{},
		doctors:  map[uuid.UUID]identity.Doctor{},
	}
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		slots:  make(map[uuid.UUID]Availability, len(s.slots)),
		appts:  make(map[uuid.UUID]Appointment, len(s.appts)),
		events: append([]outbox.Event(nil), s.events...),
	}
	for k, v := range s.slots {
		snap.slots[k] = v
	}
	for k, v := range s.appts {
		snap.appts[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots, s.appts, s.events = snap.slots, snap.appts, snap.events
}

func (s *memStore) addPatient(name string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.patients[id] = identity.Patient{ID: id, Name: name, Email: name + "@example.com", Phone: "5550000000"}
	return id
}

func (s *memStore) addDoctor(name, spec string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.doctors[id] = identity.Doctor{ID: id, Name: name, Specialization: spec}
	return id
}

// putSlot stores a slot directly, bypassing the ledger's date checks.
func (s *memStore) putSlot(a Availability) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	s.slots[a.ID] = a
	return a.ID
}

func (s *memStore) slot(id uuid.UUID) (Availability, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.slots[id]
	return a, ok
}

func (s *memStore) appt(id uuid.UUID) (Appointment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	return a, ok
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func (s *memStore) countBooked(slotID uuid.UUID, date civil.Date) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.appts {
		if a.AvailabilityID == slotID && a.Date == date && a.Status == StatusBooked {
			n++
		}
	}
	return n
}

// -- AvailabilityRepository --

type memSlots struct{ *memStore }

func (m memSlots) Create(_ context.Context, a *Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.slots[a.ID] = *a
	return nil
}

func (m memSlots) GetByID(_ context.Context, id uuid.UUID) (*Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.slots[id]
	if !ok {
		return nil, apperr.NotFound("availability", id)
	}
	return &a, nil
}

func (m memSlots) GetForUpdate(ctx context.Context, id uuid.UUID) (*Availability, error) {
	return m.GetByID(ctx, id)
}

func (m memSlots) Update(_ context.Context, a *Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[a.ID]; !ok {
		return apperr.NotFound("availability", a.ID)
	}
	a.UpdatedAt = time.Now()
	m.slots[a.ID] = *a
	return nil
}

func (m memSlots) SetOpen(_ context.Context, id uuid.UUID, open bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.slots[id]
	if !ok {
		return apperr.NotFound("availability", id)
	}
	a.Open = open
	m.slots[id] = a
	return nil
}

func (m memSlots) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[id]; !ok {
		return apperr.NotFound("availability", id)
	}
	delete(m.slots, id)
	for aid, a := range m.appts {
		if a.AvailabilityID == id {
			delete(m.appts, aid)
		}
	}
	return nil
}

func (m memSlots) LockDoctorDay(context.Context, uuid.UUID, civil.Date) error { return nil }

func (m memSlots) FindOverlapping(_ context.Context, doctorID uuid.UUID, date civil.Date, start, end civil.TimeOfDay, exclude uuid.UUID) ([]*Availability, error) {
	return m.filter(func(a Availability) bool {
		return a.DoctorID == doctorID && a.Date == date && a.ID != exclude &&
			civil.Overlaps(start, end, a.StartTime, a.EndTime)
	}), nil
}

func (m memSlots) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*Availability, error) {
	return m.filter(func(a Availability) bool { return a.DoctorID == doctorID }), nil
}

func (m memSlots) ListByDoctorAndDate(_ context.Context, doctorID uuid.UUID, date civil.Date) ([]*Availability, error) {
	return m.filter(func(a Availability) bool { return a.DoctorID == doctorID && a.Date == date }), nil
}

func (m memSlots) ListOpenByDoctorAndDate(_ context.Context, doctorID uuid.UUID, date civil.Date) ([]*Availability, error) {
	return m.filter(func(a Availability) bool { return a.DoctorID == doctorID && a.Date == date && a.Open }), nil
}

func (m memSlots) ListOpenByDate(_ context.Context, date civil.Date) ([]*Availability, error) {
	return m.filter(func(a Availability) bool { return a.Date == date && a.Open }), nil
}

func (m memSlots) ListByDoctorFrom(_ context.Context, doctorID uuid.UUID, from civil.Date) ([]*Availability, error) {
	return m.filter(func(a Availability) bool { return a.DoctorID == doctorID && !a.Date.Before(from) }), nil
}

func (m memSlots) filter(keep func(Availability) bool) []*Availability {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Availability
	for _, a := range m.slots {
		if keep(a) {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// -- AppointmentRepository --

type memAppts struct{ *memStore }

func (m memAppts) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Status == StatusBooked {
		for _, other := range m.appts {
			if other.AvailabilityID == a.AvailabilityID && other.Date == a.Date && other.Status == StatusBooked {
				return apperr.Conflictf("availability %s is already booked for %s", a.AvailabilityID, a.Date)
			}
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.appts[a.ID] = *a
	return nil
}

func (m memAppts) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment", id)
	}
	return &a, nil
}

func (m memAppts) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m memAppts) ExistsBooked(_ context.Context, availabilityID uuid.UUID, date civil.Date) (bool, error) {
	return m.countBooked(availabilityID, date) > 0, nil
}

func (m memAppts) HasBooked(_ context.Context, availabilityID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.AvailabilityID == availabilityID && a.Status == StatusBooked {
			return true, nil
		}
	}
	return false, nil
}

func (m memAppts) UpdateStatus(_ context.Context, id uuid.UUID, status AppointmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return apperr.NotFound("appointment", id)
	}
	a.Status = status
	m.appts[id] = a
	return nil
}

func (m memAppts) UpdateNotes(_ context.Context, id uuid.UUID, notes *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return apperr.NotFound("appointment", id)
	}
	a.Notes = notes
	m.appts[id] = a
	return nil
}

func (m memAppts) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[id]; !ok {
		return apperr.NotFound("appointment", id)
	}
	delete(m.appts, id)
	return nil
}

func (m memAppts) List(_ context.Context, f AppointmentFilter) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		switch {
		case f.PatientID != uuid.Nil && a.PatientID != f.PatientID,
			f.DoctorID != uuid.Nil && a.DoctorID != f.DoctorID,
			f.Status != "" && a.Status != f.Status,
			f.From != nil && a.Date.Before(*f.From):
			continue
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// -- Lookups and events --

type memPatients struct{ *memStore }

func (m memPatients) GetByID(_ context.Context, id uuid.UUID) (*identity.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient", id)
	}
	return &p, nil
}

func (m memPatients) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.patients[id]
	return ok, nil
}

type memDoctors struct{ *memStore }

func (m memDoctors) GetByID(_ context.Context, id uuid.UUID) (*identity.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor", id)
	}
	return &d, nil
}

func (m memDoctors) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.doctors[id]
	return ok, nil
}

type memEvents struct{ *memStore }

func (m memEvents) Record(_ context.Context, evt outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

// -- Fixture --

// fixedNow is 2025-05-30 10:00 UTC, two days before the scenario dates.
var fixedNow = time.Date(2025, time.May, 30, 10, 0, 0, 0, time.UTC)

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

type fixture struct {
	store  *memStore
	ledger *Ledger
	coord  *Coordinator
}

func newFixture(opts ...Option) *fixture {
	s := newMemStore()
	base := []Option{WithClock(func() time.Time { return fixedNow }, time.UTC), WithEvents(memEvents{s})}
	opts = append(base, opts...)
	ledger := NewLedger(memSlots{s}, memAppts{s}, memDoctors{s}, s, opts...)
	coord := NewCoordinator(memAppts{s}, ledger, memPatients{s}, memDoctors{s}, s, opts...)
	return &fixture{store: s, ledger: ledger, coord: coord}
}

func (f *fixture) declare(doctorID uuid.UUID, date, start, end string) *Availability {
	a, err := f.ledger.Declare(context.Background(), doctorID, mustDate(date), mustTime(start), mustTime(end))
	if err != nil {
		panic(err)
	}
	return a
}
