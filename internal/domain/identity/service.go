package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/medbook/medbook/internal/platform/apperr"
)

type Service struct {
	patients PatientRepository
	doctors  DoctorRepository
}

func NewService(patients PatientRepository, doctors DoctorRepository) *Service {
	return &Service{patients: patients, doctors: doctors}
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := s.checkPatientUnique(ctx, p, uuid.Nil); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) GetPatientByEmail(ctx context.Context, email string) (*Patient, error) {
	return s.patients.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if _, err := s.patients.GetByID(ctx, p.ID); err != nil {
		return err
	}
	if err := s.checkPatientUnique(ctx, p, p.ID); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

// checkPatientUnique rejects an email or phone already used by a patient
// other than self. The database constraints remain the final arbiter.
func (s *Service) checkPatientUnique(ctx context.Context, p *Patient, self uuid.UUID) error {
	if other, err := s.patients.GetByEmail(ctx, p.Email); err == nil && other.ID != self {
		return apperr.Conflictf("email is already registered")
	} else if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if other, err := s.patients.GetByPhone(ctx, p.Phone); err == nil && other.ID != self {
		return apperr.Conflictf("phone number is already registered")
	} else if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return nil
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

func (s *Service) ListDoctorsBySpecialization(ctx context.Context, specialization string, limit, offset int) ([]*Doctor, int, error) {
	specialization = strings.TrimSpace(specialization)
	if specialization == "" {
		return nil, 0, apperr.Validationf("specialization is required")
	}
	return s.doctors.ListBySpecialization(ctx, specialization, limit, offset)
}

func (s *Service) SearchDoctors(ctx context.Context, keyword string, limit, offset int) ([]*Doctor, int, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, 0, apperr.Validationf("keyword is required")
	}
	return s.doctors.Search(ctx, keyword, limit, offset)
}

func (s *Service) ListSpecializations(ctx context.Context) ([]string, error) {
	return s.doctors.Specializations(ctx)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	return s.doctors.Update(ctx, d)
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return s.doctors.Delete(ctx, id)
}
