package main

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medbook/medbook/internal/domain/identity"
	"github.com/medbook/medbook/internal/domain/scheduling"
	"github.com/medbook/medbook/internal/platform/openapi"
	"github.com/medbook/medbook/pkg/pagination"
)

type doc struct {
	method, path string
	op           openapi.Operation
}

var apiDocs = []doc{
	{http.MethodPost, "/api/v1/patients", openapi.Operation{Summary: "Register a patient", Request: "PatientRequest", Response: "Patient"}},
	{http.MethodGet, "/api/v1/patients", openapi.Operation{Summary: "List patients", Response: "Page", Query: []string{"limit", "offset", "page"}}},
	{http.MethodGet, "/api/v1/patients/:id", openapi.Operation{Summary: "Get a patient", Response: "Patient"}},
	{http.MethodGet, "/api/v1/patients/email/:email", openapi.Operation{Summary: "Find a patient by email", Response: "Patient"}},
	{http.MethodPut, "/api/v1/patients/:id", openapi.Operation{Summary: "Update a patient", Request: "PatientRequest", Response: "Patient"}},
	{http.MethodDelete, "/api/v1/patients/:id", openapi.Operation{Summary: "Delete a patient"}},

	{http.MethodPost, "/api/v1/doctors", openapi.Operation{Summary: "Register a doctor", Request: "DoctorRequest", Response: "Doctor"}},
	{http.MethodGet, "/api/v1/doctors", openapi.Operation{Summary: "List doctors", Response: "Page", Query: []string{"limit", "offset", "page"}}},
	{http.MethodGet, "/api/v1/doctors/search", openapi.Operation{Summary: "Search doctors by name or specialization", Response: "Page", Query: []string{"keyword", "limit", "offset"}}},
	{http.MethodGet, "/api/v1/doctors/:id", openapi.Operation{Summary: "Get a doctor", Response: "Doctor"}},
	{http.MethodPut, "/api/v1/doctors/:id", openapi.Operation{Summary: "Update a doctor", Request: "DoctorRequest", Response: "Doctor"}},
	{http.MethodDelete, "/api/v1/doctors/:id", openapi.Operation{Summary: "Delete a doctor"}},

	{http.MethodPost, "/api/v1/doctors/:id/availability", openapi.Operation{Summary: "Declare an availability slot", Request: "AvailabilityRequest", Response: "Availability"}},
	{http.MethodGet, "/api/v1/availability/:id", openapi.Operation{Summary: "Get a slot", Response: "Availability"}},
	{http.MethodPut, "/api/v1/availability/:id", openapi.Operation{Summary: "Update a slot", Request: "AvailabilityRequest", Response: "Availability"}},
	{http.MethodDelete, "/api/v1/availability/:id", openapi.Operation{Summary: "Delete a slot"}},
	{http.MethodGet, "/api/v1/availability/available/:date", openapi.Operation{Summary: "Open slots on a date", Response: "Availability", ResponseArray: true}},
	{http.MethodGet, "/api/v1/availability/doctor/:doctorId/available/:date", openapi.Operation{Summary: "Open slots of a doctor on a date", Response: "Availability", ResponseArray: true}},

	{http.MethodPost, "/api/v1/appointments", openapi.Operation{Summary: "Book an appointment", Request: "BookAppointmentRequest", Response: "Appointment"}},
	{http.MethodGet, "/api/v1/appointments/:id", openapi.Operation{Summary: "Get an appointment", Response: "Appointment"}},
	{http.MethodPut, "/api/v1/appointments/:id/cancel", openapi.Operation{Summary: "Cancel an appointment and reopen its slot", Response: "Appointment"}},
	{http.MethodPut, "/api/v1/appointments/:id/complete", openapi.Operation{Summary: "Mark an appointment completed", Response: "Appointment"}},
	{http.MethodPut, "/api/v1/appointments/:id/no-show", openapi.Operation{Summary: "Mark an appointment as a no-show", Response: "Appointment"}},
	{http.MethodPut, "/api/v1/appointments/:id/notes", openapi.Operation{Summary: "Replace appointment notes", Request: "NotesRequest", Response: "Appointment"}},
	{http.MethodDelete, "/api/v1/appointments/:id", openapi.Operation{Summary: "Delete an appointment"}},
	{http.MethodGet, "/api/v1/appointments/patient/:patientId", openapi.Operation{Summary: "Appointments of a patient", Response: "Appointment", ResponseArray: true}},
	{http.MethodGet, "/api/v1/appointments/doctor/:doctorId", openapi.Operation{Summary: "Appointments of a doctor", Response: "Appointment", ResponseArray: true}},
}

// newDocs documents the API routes of e. Undescribed routes still appear
// with derived summaries.
func newDocs(e *echo.Echo, baseURL string) *openapi.Generator {
	g := openapi.NewGenerator("Medical Appointment Booking API", version, baseURL, e.Routes).
		Model("Patient", identity.Patient{}).
		Model("PatientRequest", identity.PatientRequest{}).
		Model("Doctor", identity.Doctor{}).
		Model("DoctorRequest", identity.DoctorRequest{}).
		Model("Availability", scheduling.Availability{}).
		Model("AvailabilityRequest", scheduling.AvailabilityRequest{}).
		Model("BookAppointmentRequest", scheduling.BookAppointmentRequest{}).
		Model("NotesRequest", scheduling.NotesRequest{}).
		Model("Appointment", scheduling.AppointmentView{}).
		Model("Page", pagination.Response{})
	for _, d := range apiDocs {
		g.Describe(d.method, d.path, d.op)
	}
	return g
}
