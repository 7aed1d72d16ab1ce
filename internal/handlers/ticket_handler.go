package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/learnhub/backend/internal/services"
)

type TicketHandler struct {
	service   *services.TicketService
	validator *services.ValidationHelper
}

func NewTicketHandler(service *services.TicketService) *TicketHandler {
	return &TicketHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Issue renders a confirmed booking as a QR ticket
// @Summary Issue a booking ticket
// @Tags tickets
// @Produce json
// @Security BearerAuth
// @Param bookingId path string true "Booking ID"
// @Success 200 {object} object{ticketCode=string,ticketImage=string}
// @Failure 422 {object} services.ErrorResponse
// @Router /bookings/{bookingId}/ticket [post]
func (h *TicketHandler) Issue(w http.ResponseWriter, r *http.Request) {
	accountID, ok := r.Context().Value("userID").(string)
	if !ok || accountID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	bookingID := chi.URLParam(r, "bookingId")

	code, image, err := h.service.Issue(r.Context(), accountID, bookingID)
	if err != nil {
		services.SendCoreError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"ticketCode":  code,
		"ticketImage": image,
	})
}

// Verify consumes a ticket code at the exam desk
// @Summary Verify a booking ticket (admin)
// @Tags tickets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{code=string} true "Ticket code"
// @Success 200 {object} object{valid=bool,ticket=object}
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/tickets/verify [post]
func (h *TicketHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code" validate:"required"`
	}

	if err := services.DecodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	payload, err := h.service.Verify(r.Context(), req.Code)
	if err != nil {
		services.SendCoreError(w, err)
		return
	}

	services.SendJSON(w, http.StatusOK, map[string]any{
		"valid":  true,
		"ticket": payload,
	})
}
