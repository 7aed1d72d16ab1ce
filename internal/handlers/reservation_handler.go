package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/learnhub/backend/internal/services"
)

type ReservationHandler struct {
	service   *services.ReservationService
	validator *services.ValidationHelper
}

func NewReservationHandler(service *services.ReservationService) *ReservationHandler {
	return &ReservationHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// ListAvailable returns open schedules for an exam
// @Summary List available exam slots
// @Tags reservations
// @Produce json
// @Security BearerAuth
// @Param examId path string true "Exam ID"
// @Success 200 {object} object{schedules=[]models.ExamSchedule,count=int}
// @Router /exams/{examId}/schedules [get]
func (h *ReservationHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examId")

	schedules, err := h.service.ListAvailable(r.Context(), examID)
	if err != nil {
		services.SendErrorResponse(w, "Failed to fetch schedules", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"schedules": schedules,
		"count":     len(schedules),
	})
}

// Book reserves a seat on a schedule
// @Summary Book an exam seat
// @Tags reservations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param scheduleId path string true "Schedule ID"
// @Param request body object{attendeeName=string,contact=string} true "Attendee details"
// @Success 201 {object} object{success=bool,bookingId=string}
// @Failure 422 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /schedules/{scheduleId}/bookings [post]
func (h *ReservationHandler) Book(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	scheduleID := chi.URLParam(r, "scheduleId")

	var req struct {
		AttendeeName string `json:"attendeeName" validate:"required,min=2,max=100"`
		Contact      string `json:"contact" validate:"required,max=100"`
	}

	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	booking, err := h.service.Book(r.Context(), accountID, scheduleID, req.AttendeeName, req.Contact)
	if err != nil {
		services.SendCoreError(w, err)
		return
	}

	services.SendJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"bookingId": booking.ID,
		"date":      booking.Date.Format("2006-01-02"),
		"timeSlot":  booking.TimeSlot,
	})
}

// Cancel releases a booked seat
// @Summary Cancel a booking
// @Tags reservations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Param request body object{reason=string} true "Cancellation reason"
// @Success 200 {object} object{success=bool}
// @Failure 422 {object} services.ErrorResponse
// @Router /bookings/{bookingId}/cancel [post]
func (h *ReservationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	bookingID := chi.URLParam(r, "bookingId")

	var req struct {
		Reason string `json:"reason" validate:"max=200"`
	}

	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := h.service.Cancel(r.Context(), accountID, bookingID, req.Reason); err != nil {
		services.SendCoreError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ListBookings returns the caller's bookings
// @Summary List my bookings
// @Tags reservations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{bookings=[]models.Booking,count=int}
// @Router /bookings [get]
func (h *ReservationHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	bookings, err := h.service.ListBookings(r.Context(), accountID)
	if err != nil {
		services.SendErrorResponse(w, "Failed to fetch bookings", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

type scheduleRequest struct {
	ExamID   string    `json:"examId" validate:"required,max=64"`
	ExamName string    `json:"examName" validate:"required,max=200"`
	CourseID string    `json:"courseId" validate:"max=64"`
	Date     time.Time `json:"date" validate:"required"`
	TimeSlot string    `json:"timeSlot" validate:"required"`
	Capacity int       `json:"capacity" validate:"required,gt=0"`
}

// CreateSchedule stores one bookable slot
// @Summary Create an exam schedule (admin)
// @Tags reservations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param schedule body scheduleRequest true "Schedule"
// @Success 201 {object} models.ExamSchedule
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/schedules [post]
func (h *ReservationHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)

	var req scheduleRequest
	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	schedule, err := h.service.CreateSchedule(r.Context(), services.ScheduleInput{
		ExamID:   req.ExamID,
		ExamName: req.ExamName,
		CourseID: req.CourseID,
		Date:     req.Date,
		TimeSlot: req.TimeSlot,
		Capacity: req.Capacity,
	}, adminID)
	if err != nil {
		services.SendCoreError(w, err)
		return
	}

	services.SendJSON(w, http.StatusCreated, schedule)
}

// BulkCreateSchedules fans out slots for the coming days
// @Summary Bulk create exam schedules (admin)
// @Tags reservations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{examId=string,examName=string,courseId=string,capacity=int,daysAhead=int,slotsPerDay=int} true "Bulk request"
// @Success 201 {object} object{created=int}
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/schedules/bulk [post]
func (h *ReservationHandler) BulkCreateSchedules(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("userID").(string)

	var req struct {
		ExamID      string `json:"examId" validate:"required,max=64"`
		ExamName    string `json:"examName" validate:"required,max=200"`
		CourseID    string `json:"courseId" validate:"max=64"`
		Capacity    int    `json:"capacity" validate:"required,gt=0"`
		DaysAhead   int    `json:"daysAhead" validate:"required,gt=0"`
		SlotsPerDay int    `json:"slotsPerDay" validate:"required,gt=0"`
	}

	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	schedules, err := h.service.BulkCreateSchedules(r.Context(), services.ScheduleInput{
		ExamID:   req.ExamID,
		ExamName: req.ExamName,
		CourseID: req.CourseID,
		Capacity: req.Capacity,
	}, req.DaysAhead, req.SlotsPerDay, adminID)
	if err != nil {
		services.SendCoreError(w, err)
		return
	}

	services.SendJSON(w, http.StatusCreated, map[string]any{
		"created":   len(schedules),
		"schedules": schedules,
	})
}

// UpdateSchedule changes a slot's date, time or capacity
// @Summary Update an exam schedule (admin)
// @Tags reservations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param scheduleId path string true "Schedule ID"
// @Param request body object{date=string,timeSlot=string,capacity=int} true "Update"
// @Success 200 {object} object{success=bool}
// @Failure 422 {object} services.ErrorResponse
// @Router /admin/schedules/{scheduleId} [put]
func (h *ReservationHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID := chi.URLParam(r, "scheduleId")

	var req struct {
		Date     time.Time `json:"date" validate:"required"`
		TimeSlot string    `json:"timeSlot" validate:"required"`
		Capacity int       `json:"capacity" validate:"required,gt=0"`
	}

	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := h.service.UpdateSchedule(r.Context(), scheduleID, req.Date, req.TimeSlot, req.Capacity); err != nil {
		services.SendCoreError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{"success": true})
}

// DeleteSchedule removes a slot and cancels its bookings
// @Summary Delete an exam schedule (admin)
// @Tags reservations
// @Produce json
// @Security BearerAuth
// @Param scheduleId path string true "Schedule ID"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/schedules/{scheduleId} [delete]
func (h *ReservationHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID := chi.URLParam(r, "scheduleId")

	if err := h.service.DeleteSchedule(r.Context(), scheduleID); err != nil {
		services.SendCoreError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{"success": true})
}

// BulkDeleteSchedules removes several slots at once
// @Summary Bulk delete exam schedules (admin)
// @Tags reservations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{scheduleIds=[]string} true "Schedule IDs"
// @Success 200 {object} object{success=bool}
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/schedules/bulk-delete [post]
func (h *ReservationHandler) BulkDeleteSchedules(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScheduleIDs []string `json:"scheduleIds" validate:"required,min=1"`
	}

	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if err := h.service.BulkDeleteSchedules(r.Context(), req.ScheduleIDs); err != nil {
		services.SendCoreError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{"success": true})
}

// MarkCompleted closes a booking after the exam took place
// @Summary Mark a booking completed (admin)
// @Tags reservations
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Success 200 {object} object{success=bool}
// @Failure 422 {object} services.ErrorResponse
// @Router /admin/bookings/{bookingId}/complete [post]
func (h *ReservationHandler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkCompleted(r.Context(), chi.URLParam(r, "bookingId")); err != nil {
		services.SendCoreError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, map[string]any{"success": true})
}

// MarkNoShow records a missed appointment
// @Summary Mark a booking as no-show (admin)
// @Tags reservations
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Success 200 {object} object{success=bool}
// @Failure 422 {object} services.ErrorResponse
// @Router /admin/bookings/{bookingId}/no-show [post]
func (h *ReservationHandler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkNoShow(r.Context(), chi.URLParam(r, "bookingId")); err != nil {
		services.SendCoreError(w, err)
		return
	}
	services.SendJSON(w, http.StatusOK, map[string]any{"success": true})
}
