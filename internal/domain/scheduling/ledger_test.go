package scheduling

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/medbook/medbook/internal/platform/apperr"
)

func TestLedger_Declare(t *testing.T) {
	f := newFixture()
	doc := f.store.addDoctor("Dr. Grey", "Surgery")

	a, err := f.ledger.Declare(context.Background(), doc, mustDate("2025-06-01"), mustTime("09:00"), mustTime("09:30"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if !a.Open {
		t.Error("new slot must be open")
	}
	if _, ok := f.store.slot(a.ID); !ok {
		t.Error("slot was not stored")
	}
}

func TestLedger_Declare_Today(t *testing.T) {
	f := newFixture()
	doc := f.store.addDoctor("Dr. Grey", "Surgery")

	if _, err := f.ledger.Declare(context.Background(), doc, mustDate("2025-05-30"), mustTime("08:00"), mustTime("08:30")); err != nil {
		t.Fatalf("today must be accepted, got %v", err)
	}
}

func TestLedger_Declare_Rejections(t *testing.T) {
	f := newFixture()
	doc := f.store.addDoctor("Dr. Grey", "Surgery")

	tests := []struct {
		name             string
		doctor           uuid.UUID
		date, start, end string
		want             error
	}{
		{"unknown doctor", uuid.New(), "2025-06-01", "09:00", "09:30", apperr.ErrNotFound},
		{"end before start", doc, "2025-06-01", "10:00", "09:00", apperr.ErrInvalidRange},
		{"empty range", doc, "2025-06-01", "10:00", "10:00", apperr.ErrInvalidRange},
		{"past date", doc, "2025-05-29", "09:00", "09:30", apperr.ErrPastDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.Declare(context.Background(), tt.doctor, mustDate(tt.date), mustTime(tt.start), mustTime(tt.end))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLedger_Declare_Overlap(t *testing.T) {
	f := newFixture()
	doc := f.store.addDoctor("Dr. Grey", "Surgery")
	other := f.store.addDoctor("Dr. House", "Diagnostics")
	f.declare(doc, "2025-06-01", "09:00", "09:30")

	_, err := f.ledger.Declare(context.Background(), doc, mustDate("2025-06-01"), mustTime("09:15"), mustTime("09:45"))
	if !errors.Is(err, apperr.ErrOverlap) {
		t.Fatalf("expected overlap, got %v", err)
	}

	// Touching intervals, other dates and other doctors are all fine.
	f.declare(doc, "2025-06-01", "09:30", "10:00")
	f.declare(doc, "2025-06-01", "08:30", "09:00")
	f.declare(doc, "2025-06-02", "09:15", "09:45")
	f.declare(other, "2025-06-01", "09:15", "09:45")

	slots, err := f.ledger.ListByDoctorAndDate(context.Background(), doc, mustDate("2025-06-01"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	for i := 1; i < len(slots); i++ {
		if !slots[i-1].StartTime.Before(slots[i].StartTime) {
			t.Errorf("slots not ordered by start time: %v", slots)
		}
	}
}

func TestLedger_Update(t *testing.T) {
	f := newFixture()
	doc := f.store.addDoctor("Dr. Grey", "Surgery")
	a := f.declare(doc, "2025-06-01", "09:00", "09:30")
	f.declare(doc, "2025-06-01", "10:00", "10:30")

	// Moving within its own old range is not an overlap with itself.
	got, err := f.ledger.Update(context.Background(), a.ID, SlotChange{
		Date: mustDate("2025-06-01"), StartTime: mustTime("09:10"), EndTime: mustTime("09:40"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.StartTime != mustTime("09:10") || !got.Open {
		t.Errorf("unexpected slot %+v", got)
	}

	_, err = f.ledger.Update(context.Background(), a.ID, SlotChange{
		Date: mustDate("2025-06-01"), StartTime: mustTime("09:45"), EndTime: mustTime("10:15"),
	})
	if !errors.Is(err, apperr.ErrOverlap) {
		t.Fatalf("expected overlap, got %v", err)
	}

	_, err = f.ledger.Update(context.Background(), a.ID, SlotChange{
		Date: mustDate("2025-06-01"), StartTime: mustTime("11:00"), EndTime: mustTime("10:45"),
	})
	if !errors.Is(err, apperr.ErrInvalidRange) {
		t.Fatalf("expected invalid range, got %v", err)
	}

	_, err = f.ledger.Update(context.Background(), uuid.New(), SlotChange{
		Date: mustDate("2025-06-01"), StartTime: mustTime("11:00"), EndTime: mustTime("11:30"),
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLedger_Update_CannotReopenBookedSlot(t *testing.T) {
	f := newFixture()
	doc := f.store.addDoctor("Dr. Grey", "Surgery")
	pat := f.store.addPatient("ann")
	a := f.declare(doc, "2025-06-01", "09:00", "09:30")
	if _, err := f.coord.Book(context.Background(), BookingRequest{
		PatientID: pat, DoctorID: doc, AvailabilityID: a.ID, Date: mustDate("2025-06-01"),
	}); err != nil {
		t.Fatalf("book: %v", err)
	}

	open := true
	_, err := f.ledger.Update(context.Background(), a.ID, SlotChange{
		Date: a.Date, StartTime: a.StartTime, EndTime: a.EndTime, Open: &open,
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if s, _ := f.store.slot(a.ID); s.Open {
		t.Error("slot must stay closed")
	}
}

func TestLedger_Update_CannotCloseUnbookedSlot(t *testing.T) {
	f := newFixture()
	doc := f.store.addDoctor("Dr. Grey", "Surgery")
	pat := f.store.addPatient("ann")
	a := f.declare(doc, "2025-06-01", "09:00", "09:30")

	closed := false
	_, err := f.ledger.Update(context.Background(), a.ID, SlotChange{
		Date: a.Date, StartTime: a.StartTime, EndTime: a.EndTime, Open: &closed,
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if s, _ := f.store.slot(a.ID); !s.Open {
		t.Fatal("slot must stay open")
	}

	// The slot is still bookable.
	if _, err := f.coord.Book(context.Background(), BookingRequest{
		PatientID: pat, DoctorID: doc, AvailabilityID: a.ID, Date: mustDate("2025-06-01"),
	}); err != nil {
		t.Fatalf("book after rejected close: %v", err)
	}
}

func TestLedger_Update_MatchingOpenFlag(t *testing.T) {
	f := newFixture()
	doc := f.store.addDoctor("Dr. Grey", "Surgery")
	a := f.declare(doc, "2025-06-01", "09:00", "09:30")

	open := true
	got, err := f.ledger.Update(context.Background(), a.ID, SlotChange{
		Date: a.Date, StartTime: mustTime("10:00"), EndTime: mustTime("10:30"), Open: &open,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Open || got.StartTime != mustTime("10:00") {
		t.Errorf("unexpected slot %+v", got)
	}
}

func TestLedger_MarkBookedAndOpen_Idempotent(t *testing.T) {
	f := newFixture()
	doc := f.store.addDoctor("Dr. Grey", "Surgery")
	a := f.declare(doc, "2025-06-01", "09:00", "09:30")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.ledger.MarkBooked(ctx, a.ID); err != nil {
			t.Fatalf("mark booked: %v", err)
		}
	}
	if s, _ := f.store.slot(a.ID); s.Open {
		t.Error("expected closed slot")
	}
	for i := 0; i < 2; i++ {
		if err := f.ledger.MarkOpen(ctx, a.ID); err != nil {
			t.Fatalf("mark open: %v", err)
		}
	}
	if s, _ := f.store.slot(a.ID); !s.Open {
		t.Error("expected open slot")
	}
}

func TestLedger_Delete(t *testing.T) {
	f := newFixture()
	doc := f.store.addDoctor("Dr. Grey", "Surgery")
	pat := f.store.addPatient("ann")
	free := f.declare(doc, "2025-06-01", "09:00", "09:30")
	taken := f.declare(doc, "2025-06-01", "10:00", "10:30")
	if _, err := f.coord.Book(context.Background(), BookingRequest{
		PatientID: pat, DoctorID: doc, AvailabilityID: taken.ID, Date: mustDate("2025-06-01"),
	}); err != nil {
		t.Fatalf("book: %v", err)
	}

	if err := f.ledger.Delete(context.Background(), free.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := f.store.slot(free.ID); ok {
		t.Error("slot was not deleted")
	}
	if err := f.ledger.Delete(context.Background(), taken.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := f.ledger.Delete(context.Background(), uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLedger_Lists(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doc := f.store.addDoctor("Dr. Grey", "Surgery")
	other := f.store.addDoctor("Dr. House", "Diagnostics")
	f.store.putSlot(Availability{DoctorID: doc, Date: mustDate("2025-05-01"), StartTime: mustTime("09:00"), EndTime: mustTime("09:30"), Open: true})
	a := f.declare(doc, "2025-06-01", "09:00", "09:30")
	f.declare(doc, "2025-06-01", "10:00", "10:30")
	f.declare(other, "2025-06-01", "09:00", "09:30")
	if err := f.ledger.MarkBooked(ctx, a.ID); err != nil {
		t.Fatal(err)
	}

	all, err := f.ledger.ListByDoctor(ctx, doc)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListByDoctor: %d slots, err %v", len(all), err)
	}
	upcoming, err := f.ledger.ListUpcomingByDoctor(ctx, doc)
	if err != nil || len(upcoming) != 2 {
		t.Fatalf("ListUpcomingByDoctor: %d slots, err %v", len(upcoming), err)
	}
	open, err := f.ledger.ListOpenByDoctorAndDate(ctx, doc, mustDate("2025-06-01"))
	if err != nil || len(open) != 1 {
		t.Fatalf("ListOpenByDoctorAndDate: %d slots, err %v", len(open), err)
	}
	byDate, err := f.ledger.ListOpenByDate(ctx, mustDate("2025-06-01"))
	if err != nil || len(byDate) != 2 {
		t.Fatalf("ListOpenByDate: %d slots, err %v", len(byDate), err)
	}
	if _, err := f.ledger.ListByDoctor(ctx, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for unknown doctor, got %v", err)
	}
}
