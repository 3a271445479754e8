package handlers

import (
	"net/http"

	"truck-dispatch/internal/domain"
	"truck-dispatch/internal/http/middleware"
	"truck-dispatch/internal/logx"
)

// BroadcastHandler serves the broadcast lifecycle endpoints.
type BroadcastHandler struct {
	logger     logx.Logger
	broadcasts broadcastUsecase
	accepts    acceptUsecase
	cancels    cancelUsecase
}

// NewBroadcastHandler wires the lifecycle, acceptance and cancellation usecases into HTTP handlers.
func NewBroadcastHandler(logger logx.Logger, b broadcastUsecase, a acceptUsecase, c cancelUsecase) *BroadcastHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &BroadcastHandler{logger: logger, broadcasts: b, accepts: a, cancels: c}
}

// Create handles POST /v1/broadcasts. A repeated identical request answers 200 with the
// original broadcast.
func (h *BroadcastHandler) Create(w http.ResponseWriter, r *http.Request) {
	customerID := middleware.CallerFrom(r.Context()).CustomerID
	if customerID == "" {
		writeError(h.logger, w, r, http.StatusUnauthorized, "customer identity required")
		return
	}
	var req createBroadcastRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	res, err := h.broadcasts.Create(r.Context(), req.toModel(customerID))
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}

	status := http.StatusCreated
	if res.Deduplicated {
		status = http.StatusOK
	}
	w.Header().Set("Location", "/v1/broadcasts/"+res.Broadcast.ID)
	writeJSON(h.logger, w, r, status, createBroadcastResponse{
		Broadcast:    broadcastToResponse(res.Broadcast),
		Deduplicated: res.Deduplicated,
		Notified:     res.Notified,
	})
}

// Get handles GET /v1/broadcasts/{id}. Customers only see their own broadcasts.
func (h *BroadcastHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	caller := middleware.CallerFrom(r.Context())
	if caller.Key() == "" {
		writeError(h.logger, w, r, http.StatusUnauthorized, "identity required")
		return
	}

	view, err := h.broadcasts.Get(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	if caller.CustomerID != "" && caller.CustomerID != view.Broadcast.CustomerID {
		writeError(h.logger, w, r, http.StatusNotFound, "not found")
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, broadcastViewResponse{
		Broadcast:   broadcastToResponse(view.Broadcast),
		Assignments: assignmentsToResponse(view.Assignments),
	})
}

// Accept handles POST /v1/broadcasts/{id}/accept. Losing the race answers 409 with the
// reason, or 410 once the broadcast expired.
func (h *BroadcastHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	transporterID := middleware.CallerFrom(r.Context()).TransporterID
	if transporterID == "" {
		writeError(h.logger, w, r, http.StatusUnauthorized, "transporter identity required")
		return
	}
	var req acceptRequest
	if ok := decodeJSON(h.logger, w, r, &req); !ok {
		return
	}

	res, err := h.accepts.Accept(r.Context(), domain.AcceptRequest{
		BroadcastID:   id,
		TransporterID: transporterID,
		VehicleID:     req.VehicleID,
		DriverID:      req.DriverID,
	})
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}

	status := http.StatusOK
	switch {
	case res.Won:
	case res.Reason == domain.ReasonExpired:
		status = http.StatusGone
	default:
		status = http.StatusConflict
	}
	writeJSON(h.logger, w, r, status, acceptToResponse(res))
}

// Cancel handles POST /v1/broadcasts/{id}/cancel.
func (h *BroadcastHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	customerID := middleware.CallerFrom(r.Context()).CustomerID
	if customerID == "" {
		writeError(h.logger, w, r, http.StatusUnauthorized, "customer identity required")
		return
	}

	res, err := h.cancels.Cancel(r.Context(), id, customerID)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, cancelResponse{
		AlreadyCancelled: res.AlreadyCancelled,
		Reverted:         assignmentsToResponse(res.Reverted),
	})
}

// Close handles POST /v1/broadcasts/{id}/close.
func (h *BroadcastHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, "invalid id")
		return
	}
	customerID := middleware.CallerFrom(r.Context()).CustomerID
	if customerID == "" {
		writeError(h.logger, w, r, http.StatusUnauthorized, "customer identity required")
		return
	}

	b, err := h.broadcasts.Close(r.Context(), id, customerID)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, broadcastToResponse(b))
}

// TransporterInbox handles GET /v1/transporters/me/broadcasts.
func (h *BroadcastHandler) TransporterInbox(w http.ResponseWriter, r *http.Request) {
	transporterID := middleware.CallerFrom(r.Context()).TransporterID
	if transporterID == "" {
		writeError(h.logger, w, r, http.StatusUnauthorized, "transporter identity required")
		return
	}
	limit, err := limitFromQuery(r, 50)
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.broadcasts.ListForTransporter(r.Context(), transporterID, limit)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, broadcastsToResponse(list))
}
