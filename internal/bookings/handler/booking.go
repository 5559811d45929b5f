package handler

import (
	"fleetrent/internal/bookings/service"
	apperrors "fleetrent/pkg/errors"
	httputil "fleetrent/pkg/http"
	"fleetrent/pkg/logger"
	"fleetrent/pkg/middleware"
	"fleetrent/pkg/model"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service service.BookingService
	auth    *middleware.Authenticator
	log     *logger.Logger
}

func NewBookingHandler(service service.BookingService, auth *middleware.Authenticator, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		auth:    auth,
		log:     log,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	var req model.CreateBookingRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, "Create", err)
		return
	}

	booking, err := h.service.Create(r.Context(), identity, &req)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, "Booking created successfully", booking); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	booking, err := h.service.GetByID(r.Context(), ps.ByName("id"), identity)
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, "Booking retrieved successfully", booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	bookings, total, err := h.service.List(r.Context(), identity, limit, offset)
	if err != nil {
		h.writeError(w, "GetAll", err)
		return
	}

	message := "Your bookings retrieved successfully"
	if identity.IsAdmin() {
		message = "Bookings retrieved successfully"
	}
	if err := httputil.WritePaginated(w, message, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

// Update applies a lifecycle transition. The body carries only the target
// status; every other booking field is immutable. An empty body reaches the
// service with no status so a missing booking still reports 404.
func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	identity, _ := middleware.IdentityFromContext(r.Context())

	var req model.UpdateBookingRequest
	if err := httputil.DecodeOptionalJSON(r, &req); err != nil {
		h.writeError(w, "Update", err)
		return
	}

	booking, err := h.service.Transition(r.Context(), ps.ByName("id"), identity, req.Status)
	if err != nil {
		h.writeError(w, "Update", err)
		return
	}

	message := "Booking cancelled successfully"
	if booking.Status == model.BookingReturned {
		message = "Booking marked as returned. Vehicle is now available"
		if booking.Vehicle != nil && booking.Vehicle.AvailabilityStatus == model.Booked {
			message = "Booking marked as returned"
		}
	}
	if err := httputil.WriteSuccess(w, message, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "Update", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if appErr := apperrors.AsAppError(err); appErr.StatusCode() >= http.StatusInternalServerError {
		h.log.Error("request failed", "handler", handler, "error", err)
	}
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.auth.Required(h.Create))
	router.GET("/api/v1/bookings", h.auth.Required(h.GetAll))
	router.GET("/api/v1/bookings/id/:id", h.auth.Required(h.GetByID))
	router.PUT("/api/v1/bookings/id/:id", h.auth.Required(h.Update))
}
