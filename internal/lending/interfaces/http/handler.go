package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"laptop-lending/internal/audit"
	"laptop-lending/internal/auth"
	"laptop-lending/internal/eventing"
	lendingapp "laptop-lending/internal/lending/application"
	lending "laptop-lending/internal/lending/domain"
	"laptop-lending/internal/lending/interfaces/export"
)

// AuditStore writes and lists audit entries.
type AuditStore interface {
	audit.Logger
	audit.Reader
}

// Handler serves the lending REST API.
type Handler struct {
	coordinator *lendingapp.Coordinator
	audit       AuditStore
	history     lending.ReservationLister
	deadLetters eventing.DLQReader
	logger      logrus.FieldLogger
	stream      http.Handler
	ws          http.Handler
	now         func() time.Time
}

// HandlerOption customizes the handler.
type HandlerOption func(*Handler)

// WithAudit records admin actions and serves GET /api/v1/audit.
func WithAudit(store AuditStore) HandlerOption {
	return func(h *Handler) {
		h.audit = store
	}
}

// WithHistory serves reservation history from a store instead of process memory.
func WithHistory(lister lending.ReservationLister) HandlerOption {
	return func(h *Handler) {
		h.history = lister
	}
}

// WithDeadLetters serves GET /api/v1/admin/dead-letters.
func WithDeadLetters(reader eventing.DLQReader) HandlerOption {
	return func(h *Handler) {
		h.deadLetters = reader
	}
}

// WithHandlerLogger sets the handler logger.
func WithHandlerLogger(logger logrus.FieldLogger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithStreams mounts the SSE and WebSocket change streams.
func WithStreams(sse, ws http.Handler) HandlerOption {
	return func(h *Handler) {
		h.stream = sse
		h.ws = ws
	}
}

// NewHandler constructs a handler.
func NewHandler(coordinator *lendingapp.Coordinator, opts ...HandlerOption) (*Handler, error) {
	if coordinator == nil {
		return nil, errors.New("lending http: nil coordinator")
	}
	h := &Handler{
		coordinator: coordinator,
		logger:      logrus.StandardLogger(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the API under /api/v1.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/devices", h.listDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices", h.registerDevice).Methods(http.MethodPost)
	api.HandleFunc("/devices/{id}", h.getDevice).Methods(http.MethodGet)
	api.HandleFunc("/devices/{id}", h.removeDevice).Methods(http.MethodDelete)
	api.HandleFunc("/devices/{id}/label.png", h.deviceLabel).Methods(http.MethodGet)

	api.HandleFunc("/requesters", h.listRequesters).Methods(http.MethodGet)
	api.HandleFunc("/requesters", h.registerRequester).Methods(http.MethodPost)
	api.HandleFunc("/requesters/{id}", h.getRequester).Methods(http.MethodGet)

	api.HandleFunc("/requests", h.requestDevice).Methods(http.MethodPost)
	api.HandleFunc("/requests/{requesterID}", h.withdrawRequest).Methods(http.MethodDelete)

	api.HandleFunc("/reservations", h.listReservations).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id}", h.getReservation).Methods(http.MethodGet)
	api.HandleFunc("/reservations/{id}/{action:complete|cancel}", h.releaseDevice).Methods(http.MethodPost)

	api.HandleFunc("/queues/{tier}", h.getQueue).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.getStats).Methods(http.MethodGet)
	api.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)
	api.HandleFunc("/admin/persistence/retry", h.retryPersistence).Methods(http.MethodPost)
	api.HandleFunc("/admin/dead-letters", h.listDeadLetters).Methods(http.MethodGet)

	api.HandleFunc("/exports/reservations.pdf", h.exportReservationsPDF).Methods(http.MethodGet)
	api.HandleFunc("/exports/reservations.xlsx", h.exportReservationsXLSX).Methods(http.MethodGet)
	api.HandleFunc("/exports/inventory.xlsx", h.exportInventoryXLSX).Methods(http.MethodGet)
	api.HandleFunc("/exports/labels.pdf", h.exportLabelsPDF).Methods(http.MethodGet)

	if h.stream != nil {
		api.Handle("/stream", h.stream).Methods(http.MethodGet)
	}
	if h.ws != nil {
		api.Handle("/ws", h.ws).Methods(http.MethodGet)
	}
}

func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	var filter lendingapp.DeviceFilter
	if value := r.URL.Query().Get("tier"); value != "" {
		tier, err := lending.ParseTier(value)
		if err != nil {
			respondError(w, err, nil)
			return
		}
		filter.Tier = tier
	}
	if value := r.URL.Query().Get("state"); value != "" {
		state, err := lending.ParseDeviceState(value)
		if err != nil {
			respondError(w, err, nil)
			return
		}
		filter.State = state
	}
	writeJSON(w, http.StatusOK, h.coordinator.Devices(filter))
}

func (h *Handler) registerDevice(w http.ResponseWriter, r *http.Request) {
	var input lendingapp.NewDevice
	if err := decodeJSON(w, r, &input); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	device, err := h.coordinator.RegisterDevice(r.Context(), input)
	if err == nil || errors.Is(err, lending.ErrPersistenceFailure) {
		h.record(r, "device.registered", "device", device.ID, input)
	}
	respondResult(w, http.StatusCreated, device, err)
}

func (h *Handler) getDevice(w http.ResponseWriter, r *http.Request) {
	device, err := h.coordinator.Device(mux.Vars(r)["id"])
	respondResult(w, http.StatusOK, device, err)
}

func (h *Handler) removeDevice(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := h.coordinator.RemoveDevice(r.Context(), id)
	if err == nil || errors.Is(err, lending.ErrPersistenceFailure) {
		h.record(r, "device.removed", "device", id, nil)
	}
	if err != nil {
		respondError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deviceLabel(w http.ResponseWriter, r *http.Request) {
	device, err := h.coordinator.Device(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err, nil)
		return
	}
	size := 256
	if value := r.URL.Query().Get("size"); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 64 || parsed > 1024 {
			http.Error(w, "size must be between 64 and 1024", http.StatusBadRequest)
			return
		}
		size = parsed
	}
	png, err := export.LabelPNG(device, size)
	if err != nil {
		http.Error(w, "label error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (h *Handler) listRequesters(w http.ResponseWriter, r *http.Request) {
	var tier lending.Tier
	if value := r.URL.Query().Get("tier"); value != "" {
		parsed, err := lending.ParseTier(value)
		if err != nil {
			respondError(w, err, nil)
			return
		}
		tier = parsed
	}
	writeJSON(w, http.StatusOK, h.coordinator.Requesters(tier))
}

func (h *Handler) registerRequester(w http.ResponseWriter, r *http.Request) {
	var input lendingapp.NewRequester
	if err := decodeJSON(w, r, &input); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	requester, err := h.coordinator.RegisterRequester(r.Context(), input)
	respondResult(w, http.StatusCreated, requester, err)
}

// requesterView is a requester with its queue position and active reservation.
type requesterView struct {
	lending.Requester
	QueuePosition int                  `json:"queue_position,omitempty"`
	Reservation   *lending.Reservation `json:"reservation,omitempty"`
}

func (h *Handler) getRequester(w http.ResponseWriter, r *http.Request) {
	requester, err := h.coordinator.Requester(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err, nil)
		return
	}
	view := requesterView{Requester: requester}
	if res, ok := h.coordinator.ActiveReservationFor(requester.ID); ok {
		view.Reservation = &res
	} else if entries, err := h.coordinator.Queue(requester.Tier); err == nil {
		for i, entry := range entries {
			if entry.RequesterID == requester.ID {
				view.QueuePosition = i + 1
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, view)
}

type requestBody struct {
	RequesterID string `json:"requester_id"`
}

func (h *Handler) requestDevice(w http.ResponseWriter, r *http.Request) {
	var body requestBody
	if err := decodeJSON(w, r, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(body.RequesterID) == "" {
		http.Error(w, "requester_id is required", http.StatusBadRequest)
		return
	}
	outcome, err := h.coordinator.RequestDevice(r.Context(), body.RequesterID)
	status := http.StatusCreated
	if outcome.IsEnqueued() {
		status = http.StatusAccepted
	}
	respondResult(w, status, outcome, err)
}

func (h *Handler) withdrawRequest(w http.ResponseWriter, r *http.Request) {
	removed, err := h.coordinator.WithdrawRequest(r.Context(), mux.Vars(r)["requesterID"])
	if err != nil {
		respondError(w, err, nil)
		return
	}
	if !removed {
		http.Error(w, "requester is not queued", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listReservations(w http.ResponseWriter, r *http.Request) {
	var status lending.ReservationStatus
	if value := r.URL.Query().Get("status"); value != "" {
		parsed, err := lending.ParseReservationStatus(value)
		if err != nil {
			respondError(w, err, nil)
			return
		}
		status = parsed
	}
	reservations, err := h.reservations(r.Context(), status)
	if err != nil {
		h.logger.WithError(err).Warn("list reservations failed")
		http.Error(w, "query reservations error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reservations)
}

func (h *Handler) reservations(ctx context.Context, status lending.ReservationStatus) ([]lending.Reservation, error) {
	if h.history != nil {
		return h.history.ListReservations(ctx, status)
	}
	return h.coordinator.Reservations(status), nil
}

func (h *Handler) getReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.coordinator.Reservation(mux.Vars(r)["id"])
	respondResult(w, http.StatusOK, res, err)
}

func (h *Handler) releaseDevice(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	status := lending.StatusCompleted
	if vars["action"] == "cancel" {
		status = lending.StatusCancelled
	}
	result, err := h.coordinator.ReleaseDevice(r.Context(), vars["id"], status)
	respondResult(w, http.StatusOK, result, err)
}

type queueView struct {
	Tier    lending.Tier         `json:"tier"`
	Size    int                  `json:"size"`
	Entries []lending.QueueEntry `json:"entries"`
}

func (h *Handler) getQueue(w http.ResponseWriter, r *http.Request) {
	tier, err := lending.ParseTier(mux.Vars(r)["tier"])
	if err != nil {
		respondError(w, err, nil)
		return
	}
	entries, err := h.coordinator.Queue(tier)
	if err != nil {
		respondError(w, err, nil)
		return
	}
	if entries == nil {
		entries = []lending.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, queueView{Tier: tier, Size: len(entries), Entries: entries})
}

func (h *Handler) getStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.coordinator.Stats())
}

// queryLimit parses an optional positive ?limit, returning 0 when absent.
func queryLimit(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return limit, nil
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		http.Error(w, "audit not configured", http.StatusServiceUnavailable)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	filter := audit.Filter{
		ResourceType: r.URL.Query().Get("resource_type"),
		ResourceID:   r.URL.Query().Get("resource_id"),
		Limit:        limit,
	}
	entries, err := h.audit.List(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Warn("list audit failed")
		http.Error(w, "query audit error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	if h.deadLetters == nil {
		http.Error(w, "dead letters not configured", http.StatusServiceUnavailable)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if limit == 0 {
		limit = 50
	}
	letters, err := h.deadLetters.ListFailures(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Warn("list dead letters failed")
		http.Error(w, "query dead letters error", http.StatusInternalServerError)
		return
	}
	if letters == nil {
		letters = []eventing.DeadLetter{}
	}
	writeJSON(w, http.StatusOK, letters)
}

type retryView struct {
	PendingWrites int `json:"pending_writes"`
}

func (h *Handler) retryPersistence(w http.ResponseWriter, r *http.Request) {
	err := h.coordinator.RetryPersistence(r.Context())
	pending := h.coordinator.PendingWrites()
	h.record(r, "persistence.retried", "store", "", retryView{PendingWrites: pending})
	respondResult(w, http.StatusOK, retryView{PendingWrites: pending}, err)
}

func (h *Handler) lookup() export.Lookup {
	return export.NewLookup(h.coordinator.Devices(lendingapp.DeviceFilter{}), h.coordinator.Requesters(""))
}

func (h *Handler) exportReservationsPDF(w http.ResponseWriter, r *http.Request) {
	reservations, err := h.reservations(r.Context(), "")
	if err != nil {
		http.Error(w, "query reservations error", http.StatusInternalServerError)
		return
	}
	data, err := export.BuildReservationsPDF(reservations, h.lookup(), h.now())
	h.writeFile(w, "application/pdf", "reservations.pdf", data, err)
}

func (h *Handler) exportReservationsXLSX(w http.ResponseWriter, r *http.Request) {
	reservations, err := h.reservations(r.Context(), "")
	if err != nil {
		http.Error(w, "query reservations error", http.StatusInternalServerError)
		return
	}
	data, err := export.BuildReservationsXLSX(reservations, h.lookup())
	h.writeFile(w, xlsxContentType, "reservations.xlsx", data, err)
}

func (h *Handler) exportInventoryXLSX(w http.ResponseWriter, _ *http.Request) {
	data, err := export.BuildInventoryXLSX(h.coordinator.Devices(lendingapp.DeviceFilter{}), h.coordinator.Stats())
	h.writeFile(w, xlsxContentType, "inventory.xlsx", data, err)
}

func (h *Handler) exportLabelsPDF(w http.ResponseWriter, r *http.Request) {
	var filter lendingapp.DeviceFilter
	if value := r.URL.Query().Get("tier"); value != "" {
		tier, err := lending.ParseTier(value)
		if err != nil {
			respondError(w, err, nil)
			return
		}
		filter.Tier = tier
	}
	data, err := export.BuildLabelsPDF(h.coordinator.Devices(filter), export.DefaultLabelConfig())
	h.writeFile(w, "application/pdf", "labels.pdf", data, err)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) writeFile(w http.ResponseWriter, contentType, name string, data []byte, err error) {
	if err != nil {
		h.logger.WithError(err).WithField("file", name).Warn("export failed")
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+name+"\"")
	_, _ = w.Write(data)
}

func (h *Handler) record(r *http.Request, action, resourceType, resourceID string, metadata any) {
	if h.audit == nil {
		return
	}
	actor := auth.SubjectFromContext(r.Context())
	if actor == "" {
		actor = "anonymous"
	}
	entry := audit.EntryFromRequest(r, audit.Request{
		Actor:        actor,
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     metadata,
	})
	if err := h.audit.Log(r.Context(), entry); err != nil {
		h.logger.WithError(err).WithField("action", action).Warn("audit log failed")
	}
}
