package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/AkkiD7/fleetlink-task/internal/fleet/domain"
	"github.com/AkkiD7/fleetlink-task/internal/fleet/service"
)

// HTTP exposes the fleet endpoints. Request validation happens here, before
// the service is invoked; the service only ever sees well-formed input.
type HTTP struct {
	svc *service.Service
}

// NewHTTP constructs a handler.
func NewHTTP(svc *service.Service) *HTTP {
	return &HTTP{svc: svc}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Post("/api/vehicles", h.addVehicle)
	r.Get("/api/vehicles/available", h.availableVehicles)
	r.Post("/api/bookings", h.bookVehicle)
	r.Get("/api/bookings", h.listBookings)
	r.Delete("/api/bookings/{id}", h.cancelBooking)
	return r
}

type addVehicleRequest struct {
	Name       string `json:"name"`
	CapacityKG *int64 `json:"capacityKg"`
	Tyres      *int   `json:"tyres"`
}

func (h *HTTP) addVehicle(w http.ResponseWriter, r *http.Request) {
	var payload addVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Name == "" || payload.CapacityKG == nil || payload.Tyres == nil {
		writeError(w, http.StatusBadRequest, "name, capacityKg and tyres are required")
		return
	}
	if *payload.CapacityKG < 0 || *payload.Tyres <= 0 {
		writeError(w, http.StatusBadRequest, "capacityKg must be non-negative and tyres positive")
		return
	}

	vehicle, err := h.svc.AddVehicle(r.Context(), service.AddVehicleRequest{
		Name:       payload.Name,
		CapacityKG: *payload.CapacityKG,
		Tyres:      *payload.Tyres,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Status: true, Message: "Vehicle Added Successfully", Data: vehicle})
}

type availableVehicle struct {
	domain.Vehicle
	EstimatedRideDurationHours int64 `json:"estimatedRideDurationHours"`
}

func (h *HTTP) availableVehicles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fromPincode := q.Get("fromPincode")
	toPincode := q.Get("toPincode")
	startRaw := q.Get("startTime")
	if fromPincode == "" || toPincode == "" || startRaw == "" {
		writeError(w, http.StatusBadRequest, "fromPincode, toPincode and startTime are required")
		return
	}
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid startTime")
		return
	}
	minCapacity, err := parseCapacity(q.Get("capacityRequired"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid capacityRequired")
		return
	}

	result, err := h.svc.FindAvailable(r.Context(), service.SearchRequest{
		MinCapacityKG: minCapacity,
		FromPincode:   fromPincode,
		ToPincode:     toPincode,
		StartTime:     start,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	data := make([]availableVehicle, 0, len(result.Available))
	for _, entry := range result.Available {
		data = append(data, availableVehicle{Vehicle: entry.Vehicle, EstimatedRideDurationHours: entry.EstimatedRideHours})
	}
	message := "No vehicles available for the given criteria."
	if result.CandidateCount == 0 {
		message = "No vehicles match the required capacity."
	}
	if len(data) > 0 {
		message = "Available vehicles fetched successfully."
	}
	writeJSON(w, http.StatusOK, envelope{Status: true, Message: message, Data: data})
}

type bookRequest struct {
	VehicleID   string `json:"vehicleId"`
	FromPincode string `json:"fromPincode"`
	ToPincode   string `json:"toPincode"`
	StartTime   string `json:"startTime"`
	CustomerID  string `json:"customerId"`
}

func (h *HTTP) bookVehicle(w http.ResponseWriter, r *http.Request) {
	var payload bookRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.VehicleID == "" || payload.FromPincode == "" || payload.ToPincode == "" || payload.StartTime == "" || payload.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "vehicleId, fromPincode, toPincode, startTime and customerId are required")
		return
	}
	vehicleID, err := uuid.Parse(payload.VehicleID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vehicleId")
		return
	}
	start, err := time.Parse(time.RFC3339, payload.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid startTime")
		return
	}

	booking, err := h.svc.Book(r.Context(), service.BookRequest{
		VehicleID:   vehicleID,
		CustomerID:  payload.CustomerID,
		FromPincode: payload.FromPincode,
		ToPincode:   payload.ToPincode,
		StartTime:   start,
	})
	switch {
	case errors.Is(err, domain.ErrVehicleNotFound):
		writeError(w, http.StatusNotFound, "Vehicle not found")
	case errors.Is(err, domain.ErrWindowConflict):
		writeError(w, http.StatusConflict, "Vehicle already booked for requested time window")
	case errors.Is(err, domain.ErrLedgerTimeout):
		writeError(w, http.StatusServiceUnavailable, "booking admission timed out")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusCreated, envelope{Status: true, Message: "Vehicle booked successfully", Data: booking})
	}
}

func (h *HTTP) listBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.svc.ListBookings(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, resultEnvelope{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resultEnvelope{Success: true, Message: "Bookings Fetched Successfully", Data: bookings})
}

func (h *HTTP) cancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, resultEnvelope{Success: false, Message: "invalid booking id"})
		return
	}
	_, err = h.svc.CancelBooking(r.Context(), id)
	switch {
	case errors.Is(err, domain.ErrBookingNotFound):
		writeJSON(w, http.StatusNotFound, resultEnvelope{Success: false, Message: "Booking not found"})
	case errors.Is(err, domain.ErrLedgerTimeout):
		writeJSON(w, http.StatusServiceUnavailable, resultEnvelope{Success: false, Message: "cancellation timed out"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, resultEnvelope{Success: false, Message: err.Error()})
	default:
		writeJSON(w, http.StatusOK, resultEnvelope{Success: true, Message: "Booking cancelled successfully"})
	}
}

type envelope struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type resultEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func parseCapacity(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	capacity, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || capacity < 0 {
		return 0, errors.New("invalid capacity")
	}
	return capacity, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
