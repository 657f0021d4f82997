package scheduling

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medbook/medbook/internal/platform/apperr"
	"github.com/medbook/medbook/pkg/civil"
)

// AvailabilityRequest is the body of slot declaration and update.
type AvailabilityRequest struct {
	Date        string `json:"date" validate:"required,civildate"`
	StartTime   string `json:"startTime" validate:"required,civiltime"`
	EndTime     string `json:"endTime" validate:"required,civiltime"`
	IsAvailable *bool  `json:"isAvailable,omitempty"`
}

// BookAppointmentRequest is the body of POST /appointments.
type BookAppointmentRequest struct {
	PatientID       string  `json:"patientId" validate:"required,uuid"`
	DoctorID        string  `json:"doctorId" validate:"required,uuid"`
	AvailabilityID  string  `json:"availabilityId" validate:"required,uuid"`
	AppointmentDate string  `json:"appointmentDate" validate:"required,civildate"`
	Notes           *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type NotesRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=500"`
}

type Handler struct {
	ledger *Ledger
	coord  *Coordinator
}

func NewHandler(ledger *Ledger, coord *Coordinator) *Handler {
	return &Handler{ledger: ledger, coord: coord}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/doctors/:id/availability", h.DeclareAvailability)

	av := api.Group("/availability")
	av.GET("/available/:date", h.ListOpenByDate)
	av.GET("/doctor/:doctorId", h.ListByDoctor)
	av.GET("/doctor/:doctorId/date/:date", h.ListByDoctorAndDate)
	av.GET("/doctor/:doctorId/available/:date", h.ListOpenByDoctorAndDate)
	av.GET("/doctor/:doctorId/upcoming", h.ListUpcomingAvailability)
	av.GET("/:id", h.GetAvailability)
	av.PUT("/:id", h.UpdateAvailability)
	av.DELETE("/:id", h.DeleteAvailability)

	ap := api.Group("/appointments")
	ap.POST("", h.BookAppointment)
	ap.GET("/patient/:patientId", h.ListByPatient)
	ap.GET("/patient/:patientId/status/:status", h.ListByPatientAndStatus)
	ap.GET("/patient/:patientId/upcoming", h.ListUpcomingByPatient)
	ap.GET("/doctor/:doctorId", h.ListAppointmentsByDoctor)
	ap.GET("/doctor/:doctorId/status/:status", h.ListByDoctorAndStatus)
	ap.GET("/doctor/:doctorId/upcoming", h.ListUpcomingByDoctor)
	ap.GET("/:id", h.GetAppointment)
	ap.PUT("/:id/cancel", h.CancelAppointment)
	ap.PUT("/:id/complete", h.CompleteAppointment)
	ap.PUT("/:id/no-show", h.MarkNoShow)
	ap.PUT("/:id/notes", h.UpdateNotes)
	ap.DELETE("/:id", h.DeleteAppointment)
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

func pathDate(c echo.Context) (civil.Date, error) {
	d, err := civil.ParseDate(c.Param("date"))
	if err != nil {
		return civil.Date{}, apperr.Validationf("%v", err)
	}
	return d, nil
}

func bindValid(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	return c.Validate(req)
}

func (r *AvailabilityRequest) parse() (SlotChange, error) {
	date, err := civil.ParseDate(r.Date)
	if err != nil {
		return SlotChange{}, apperr.Validationf("%v", err)
	}
	start, err := civil.ParseTime(r.StartTime)
	if err != nil {
		return SlotChange{}, apperr.Validationf("%v", err)
	}
	end, err := civil.ParseTime(r.EndTime)
	if err != nil {
		return SlotChange{}, apperr.Validationf("%v", err)
	}
	return SlotChange{Date: date, StartTime: start, EndTime: end, Open: r.IsAvailable}, nil
}

func (r *BookAppointmentRequest) parse() (BookingRequest, error) {
	var (
		req BookingRequest
		err error
	)
	if req.PatientID, err = uuid.Parse(r.PatientID); err != nil {
		return req, apperr.Validationf("patientId must be a valid UUID")
	}
	if req.DoctorID, err = uuid.Parse(r.DoctorID); err != nil {
		return req, apperr.Validationf("doctorId must be a valid UUID")
	}
	if req.AvailabilityID, err = uuid.Parse(r.AvailabilityID); err != nil {
		return req, apperr.Validationf("availabilityId must be a valid UUID")
	}
	if req.Date, err = civil.ParseDate(r.AppointmentDate); err != nil {
		return req, apperr.Validationf("%v", err)
	}
	req.Notes = r.Notes
	return req, nil
}

func listJSON[T any](c echo.Context, items []T, err error) error {
	if err != nil {
		return err
	}
	if items == nil {
		items = []T{}
	}
	return c.JSON(http.StatusOK, items)
}

// -- Availability Handlers --

func (h *Handler) DeclareAvailability(c echo.Context) error {
	doctorID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req AvailabilityRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ch, err := req.parse()
	if err != nil {
		return err
	}
	a, err := h.ledger.Declare(c.Request().Context(), doctorID, ch.Date, ch.StartTime, ch.EndTime)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAvailability(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.ledger.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAvailability(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req AvailabilityRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ch, err := req.parse()
	if err != nil {
		return err
	}
	a, err := h.ledger.Update(c.Request().Context(), id, ch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAvailability(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.ledger.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListByDoctor(c echo.Context) error {
	doctorID, err := pathID(c, "doctorId")
	if err != nil {
		return err
	}
	slots, err := h.ledger.ListByDoctor(c.Request().Context(), doctorID)
	return listJSON(c, slots, err)
}

func (h *Handler) ListByDoctorAndDate(c echo.Context) error {
	doctorID, err := pathID(c, "doctorId")
	if err != nil {
		return err
	}
	date, err := pathDate(c)
	if err != nil {
		return err
	}
	slots, err := h.ledger.ListByDoctorAndDate(c.Request().Context(), doctorID, date)
	return listJSON(c, slots, err)
}

func (h *Handler) ListOpenByDoctorAndDate(c echo.Context) error {
	doctorID, err := pathID(c, "doctorId")
	if err != nil {
		return err
	}
	date, err := pathDate(c)
	if err != nil {
		return err
	}
	slots, err := h.ledger.ListOpenByDoctorAndDate(c.Request().Context(), doctorID, date)
	return listJSON(c, slots, err)
}

func (h *Handler) ListOpenByDate(c echo.Context) error {
	date, err := pathDate(c)
	if err != nil {
		return err
	}
	slots, err := h.ledger.ListOpenByDate(c.Request().Context(), date)
	return listJSON(c, slots, err)
}

func (h *Handler) ListUpcomingAvailability(c echo.Context) error {
	doctorID, err := pathID(c, "doctorId")
	if err != nil {
		return err
	}
	slots, err := h.ledger.ListUpcomingByDoctor(c.Request().Context(), doctorID)
	return listJSON(c, slots, err)
}

// -- Appointment Handlers --

func (h *Handler) BookAppointment(c echo.Context) error {
	var body BookAppointmentRequest
	if err := bindValid(c, &body); err != nil {
		return err
	}
	req, err := body.parse()
	if err != nil {
		return err
	}
	v, err := h.coord.Book(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, v)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	v, err := h.coord.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	v, err := h.coord.Cancel(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) CompleteAppointment(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	v, err := h.coord.Complete(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	v, err := h.coord.MarkNoShow(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) UpdateNotes(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req NotesRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	v, err := h.coord.UpdateNotes(c.Request().Context(), id, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.coord.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	id, err := pathID(c, "patientId")
	if err != nil {
		return err
	}
	views, err := h.coord.ListByPatient(c.Request().Context(), id)
	return listJSON(c, views, err)
}

func (h *Handler) ListByPatientAndStatus(c echo.Context) error {
	id, err := pathID(c, "patientId")
	if err != nil {
		return err
	}
	status, err := ParseStatus(c.Param("status"))
	if err != nil {
		return err
	}
	views, err := h.coord.ListByPatientAndStatus(c.Request().Context(), id, status)
	return listJSON(c, views, err)
}

func (h *Handler) ListUpcomingByPatient(c echo.Context) error {
	id, err := pathID(c, "patientId")
	if err != nil {
		return err
	}
	views, err := h.coord.ListUpcomingByPatient(c.Request().Context(), id)
	return listJSON(c, views, err)
}

func (h *Handler) ListAppointmentsByDoctor(c echo.Context) error {
	id, err := pathID(c, "doctorId")
	if err != nil {
		return err
	}
	views, err := h.coord.ListByDoctor(c.Request().Context(), id)
	return listJSON(c, views, err)
}

func (h *Handler) ListByDoctorAndStatus(c echo.Context) error {
	id, err := pathID(c, "doctorId")
	if err != nil {
		return err
	}
	status, err := ParseStatus(c.Param("status"))
	if err != nil {
		return err
	}
	views, err := h.coord.ListByDoctorAndStatus(c.Request().Context(), id, status)
	return listJSON(c, views, err)
}

func (h *Handler) ListUpcomingByDoctor(c echo.Context) error {
	id, err := pathID(c, "doctorId")
	if err != nil {
		return err
	}
	views, err := h.coord.ListUpcomingByDoctor(c.Request().Context(), id)
	return listJSON(c, views, err)
}
