/*
handlers.go - HTTP API handlers for the dose engine

PURPOSE:
  Exposes the dosing engine via REST. Handles HTTP request/response and
  JSON serialization, delegating all domain logic to dosing.Service and
  validation to the factory.

ENDPOINTS:
  Protocols:
    GET    /api/protocols                   List the user's protocols
    POST   /api/protocols                   Create protocol (+ regenerate)
    GET    /api/protocols/{id}              Get protocol with items
    PUT    /api/protocols/{id}/items        Replace items wholesale (+ regenerate)
    POST   /api/protocols/{id}/regenerate   Recompute future PENDING doses
    GET    /api/protocols/{id}/calendar     Materialized range (?from=&to=)
    GET    /api/protocols/{id}/forecast     Per-item depletion projection

  Doses:
    GET    /api/doses/today                 Today's doses (active protocol)
    POST   /api/doses                       Log a dose (upsert by natural key)
    POST   /api/doses/status                Toggle PENDING/TAKEN/SKIPPED

  Inventory:
    GET    /api/inventory                   List mg figures
    PUT    /api/inventory/{peptideId}       Set a peptide's mg figure

ERROR HANDLING:
  - 400: bad JSON, invalid dates (ErrInvalidDateInput), factory rejects
  - 404: unknown protocol or dose record
  - 409: disallowed status transition
  - 500: store failures

IDENTITY:
  No authentication (out of scope). The acting user comes from the
  X-User-ID header and defaults to "default" for single-user deployments.

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router setup and middleware
  - scheduler.go: background regeneration
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/peptra/dose-engine/cadence"
	"github.com/peptra/dose-engine/dosing"
	"github.com/peptra/dose-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   dosing.Store
	Service *dosing.Service
	Factory *factory.ProtocolFactory

	log zerolog.Logger
}

// NewHandler creates a handler over a store, operating in the given
// calendar frame.
func NewHandler(store dosing.Store, frame cadence.Frame, log zerolog.Logger) *Handler {
	return &Handler{
		Store:   store,
		Service: dosing.NewService(store, frame, log),
		Factory: factory.NewProtocolFactory(),
		log:     log,
	}
}

// userID resolves the acting user. No auth layer; single-user default.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "default"
}

// =============================================================================
// PROTOCOL HANDLERS
// =============================================================================

// ListProtocols returns the user's protocols.
func (h *Handler) ListProtocols(w http.ResponseWriter, r *http.Request) {
	protocols, err := h.Store.ListProtocols(r.Context(), userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list protocols", err)
		return
	}

	dtos := make([]ProtocolDTO, len(protocols))
	for i, p := range protocols {
		dtos[i] = toProtocolDTO(p, nil)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProtocol returns one protocol with its items.
func (h *Handler) GetProtocol(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	protocol, err := h.Store.GetProtocol(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get protocol", err)
		return
	}
	if protocol == nil {
		writeError(w, http.StatusNotFound, "Protocol not found", nil)
		return
	}

	items, err := h.Store.ListItems(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load protocol items", err)
		return
	}

	writeJSON(w, http.StatusOK, toProtocolDTO(*protocol, items))
}

// CreateProtocol creates a protocol from the factory schema and
// regenerates its future schedule.
func (h *Handler) CreateProtocol(w http.ResponseWriter, r *http.Request) {
	var req CreateProtocolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	protocol, items, err := h.Factory.FromJSON(userID(r), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid protocol definition", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.SaveProtocol(ctx, *protocol); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save protocol", err)
		return
	}
	if err := h.Store.ReplaceItems(ctx, protocol.ID, items); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save protocol items", err)
		return
	}

	report, err := h.Service.Regenerate(ctx, protocol.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate dose schedule", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"protocol":     toProtocolDTO(*protocol, items),
		"regeneration": toRegenerationDTO(report),
	})
}

// ReplaceItems swaps a protocol's items wholesale and regenerates.
// Logged history survives: regeneration only touches future PENDING rows.
func (h *Handler) ReplaceItems(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ReplaceItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "At least one item is required", nil)
		return
	}

	ctx := r.Context()
	protocol, err := h.Store.GetProtocol(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get protocol", err)
		return
	}
	if protocol == nil {
		writeError(w, http.StatusNotFound, "Protocol not found", nil)
		return
	}

	items := make([]cadence.Item, 0, len(req.Items))
	for _, ij := range req.Items {
		item, err := h.Factory.ParseItem(ij)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid item definition", err)
			return
		}
		items = append(items, *item)
	}

	if err := h.Store.ReplaceItems(ctx, id, items); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to replace items", err)
		return
	}

	report, err := h.Service.Regenerate(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to regenerate dose schedule", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"protocol":     toProtocolDTO(*protocol, items),
		"regeneration": toRegenerationDTO(report),
	})
}

// Regenerate recomputes the protocol's future PENDING schedule.
func (h *Handler) Regenerate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := h.Service.Regenerate(r.Context(), id)
	if err != nil {
		if dosing.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Protocol not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to regenerate dose schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toRegenerationDTO(report))
}

// Calendar returns the materialized view for ?from=&to= (inclusive).
func (h *Handler) Calendar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	from, err := cadence.ParseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'from' date (use YYYY-MM-DD)", err)
		return
	}
	to, err := cadence.ParseDay(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'to' date (use YYYY-MM-DD)", err)
		return
	}

	rows, err := h.Service.Calendar(r.Context(), id, from, to)
	if err != nil {
		switch {
		case errors.Is(err, cadence.ErrInvalidRange):
			writeError(w, http.StatusBadRequest, "Invalid range", err)
		case dosing.IsNotFound(err):
			writeError(w, http.StatusNotFound, "Protocol not found", err)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to materialize calendar", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doses": toDoseRowDTOs(rows)})
}

// Forecast returns the per-item depletion projection for a protocol.
func (h *Handler) Forecast(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	forecasts, err := h.Service.Forecasts(r.Context(), id)
	if err != nil {
		if dosing.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Protocol not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to compute forecast", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"forecasts": toForecastDTOs(forecasts)})
}

// =============================================================================
// DOSE HANDLERS
// =============================================================================

// Today returns today's materialized doses for the user's active protocol.
func (h *Handler) Today(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.Today(r.Context(), userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to materialize today", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doses": toDoseRowDTOs(rows)})
}

// LogDose records a dose (ad-hoc or scheduled) by natural-key upsert.
func (h *Handler) LogDose(w http.ResponseWriter, r *http.Request) {
	var req LogDoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	day, err := cadence.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}
	dose, err := decimal.NewFromString(req.DoseMg)
	if err != nil || !dose.IsPositive() {
		writeError(w, http.StatusBadRequest, "dose_mg must be a positive decimal", err)
		return
	}

	status := dosing.Status(req.Status)
	if status == "" {
		status = dosing.StatusTaken
	}
	switch status {
	case dosing.StatusPending, dosing.StatusTaken, dosing.StatusSkipped:
	default:
		writeError(w, http.StatusBadRequest, "Unknown dose status", nil)
		return
	}

	rec := dosing.DoseRecord{
		Key: dosing.DoseKey{
			UserID:     userID(r),
			ProtocolID: req.ProtocolID,
			PeptideID:  req.PeptideID,
			Date:       day,
		},
		Status:    status,
		DoseMg:    dose,
		SiteLabel: req.SiteLabel,
		TimeOfDay: req.TimeOfDay,
	}
	if err := h.Service.LogDose(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to log dose", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "logged"})
}

// SetDoseStatus toggles a record's status, honoring the state machine.
func (h *Handler) SetDoseStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	day, err := cadence.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	key := dosing.DoseKey{
		UserID:     userID(r),
		ProtocolID: req.ProtocolID,
		PeptideID:  req.PeptideID,
		Date:       day,
	}

	err = h.Service.SetStatus(r.Context(), key, dosing.Status(req.Status))
	if err != nil {
		var invalid *dosing.ErrInvalidTransition
		switch {
		case errors.As(err, &invalid):
			writeError(w, http.StatusConflict, "Invalid status transition", err)
		case dosing.IsNotFound(err):
			writeError(w, http.StatusNotFound, "Dose record not found", err)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to update status", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": req.Status})
}

// =============================================================================
// INVENTORY HANDLERS
// =============================================================================

// ListInventory returns the user's mg figures.
func (h *Handler) ListInventory(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.Store.ListInventory(r.Context(), userID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list inventory", err)
		return
	}

	dtos := make([]InventoryDTO, len(snaps))
	for i, snap := range snaps {
		dtos[i] = InventoryDTO{PeptideID: snap.PeptideID, TotalMg: snap.TotalMg.String()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SetInventory updates one peptide's mg figure.
func (h *Handler) SetInventory(w http.ResponseWriter, r *http.Request) {
	peptideID := chi.URLParam(r, "peptideId")

	var req SetInventoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	total, err := decimal.NewFromString(req.TotalMg)
	if err != nil || total.IsNegative() {
		writeError(w, http.StatusBadRequest, "total_mg must be a non-negative decimal", err)
		return
	}

	snap := dosing.InventorySnapshot{UserID: userID(r), PeptideID: peptideID, TotalMg: total}
	if err := h.Store.SetInventory(r.Context(), snap); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to set inventory", err)
		return
	}
	writeJSON(w, http.StatusOK, InventoryDTO{PeptideID: peptideID, TotalMg: total.String()})
}

// =============================================================================
// HELPERS
// =============================================================================

func toRegenerationDTO(r *dosing.RegenerationReport) RegenerationDTO {
	return RegenerationDTO{
		ProtocolID: r.ProtocolID,
		Inserted:   r.Inserted,
		Deleted:    r.Deleted,
		Leftover:   r.Leftover,
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
