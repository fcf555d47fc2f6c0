// internal/api/http/handler.go
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"inspector-rotation/internal/domain"
	"inspector-rotation/internal/metrics"
	"inspector-rotation/internal/usecase"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// Handler serves the complaint, inspector and rotation endpoints.
type Handler struct {
	complaints *usecase.ComplaintService
	inspectors *usecase.InspectorService
	assigner   *usecase.AssignmentService
	logger     *slog.Logger
	validate   *validator.Validate
	tracer     trace.Tracer
}

// NewHandler creates a new Handler and its validator.
func NewHandler(complaints *usecase.ComplaintService, inspectors *usecase.InspectorService, assigner *usecase.AssignmentService, logger *slog.Logger) *Handler {
	return &Handler{
		complaints: complaints,
		inspectors: inspectors,
		assigner:   assigner,
		logger:     logger.With("component", "http-handler"),
		validate:   validator.New(),
		tracer:     otel.Tracer("inspector-rotation-api"),
	}
}

// A helper struct to capture the status code
type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// RegisterRoutes registers all routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/complaints/", h.instrument("/complaints", http.HandlerFunc(h.handleComplaints)))
	mux.Handle("/complaints", h.instrument("/complaints", http.HandlerFunc(h.handleComplaints)))
	mux.Handle("/inspectors/", h.instrument("/inspectors", http.HandlerFunc(h.handleInspectors)))
	mux.Handle("/inspectors", h.instrument("/inspectors", http.HandlerFunc(h.handleInspectors)))
	mux.Handle("/rotation", h.instrument("/rotation", http.HandlerFunc(h.handleRotation)))
}

// instrument wraps a handler with a span and the request counter. Paths with
// an ID are reported as {base}/{id} to keep label cardinality bounded.
func (h *Handler) instrument(base string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := base
		if rest := strings.Trim(strings.TrimPrefix(r.URL.Path, base), "/"); rest != "" {
			route = base + "/{id}"
			if i := strings.Index(rest, "/"); i >= 0 {
				route += rest[i:]
			}
		}

		ctx, span := h.tracer.Start(r.Context(), "HTTP "+r.Method+" "+route, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(iw, r.WithContext(ctx))

		metrics.HttpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(iw.statusCode)).Inc()
		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	})
}

// pathParts splits /complaints/{id}/assign into ["complaints", id, "assign"].
func pathParts(r *http.Request) (id, action string) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) > 1 {
		id = parts[1]
	}
	if len(parts) > 2 {
		action = parts[2]
	}
	return id, action
}

func (h *Handler) handleComplaints(w http.ResponseWriter, r *http.Request) {
	id, action := pathParts(r)

	switch {
	case r.Method == http.MethodGet && id == "":
		h.handleListComplaints(w, r)
	case r.Method == http.MethodGet && action == "":
		h.handleGetComplaint(w, r, id)
	case r.Method == http.MethodPost && id == "":
		h.handleSubmitComplaint(w, r)
	case r.Method == http.MethodPost && action == "assign":
		h.handleAssignComplaint(w, r, id)
	case r.Method != http.MethodGet && r.Method != http.MethodPost:
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleInspectors(w http.ResponseWriter, r *http.Request) {
	id, action := pathParts(r)

	switch {
	case r.Method == http.MethodGet && id == "":
		h.handleListInspectors(w, r)
	case r.Method == http.MethodGet && action == "":
		h.handleGetInspector(w, r, id)
	case r.Method == http.MethodPost && id == "":
		h.handleRegisterInspector(w, r)
	case r.Method == http.MethodPut && id != "" && action == "active":
		h.handleSetActive(w, r, id)
	case r.Method != http.MethodGet && r.Method != http.MethodPost && r.Method != http.MethodPut:
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
	default:
		http.NotFound(w, r)
	}
}

// handleSubmitComplaint is the creation trigger: the complaint is stored and
// assigned in one call, or rejected and not stored at all.
func (h *Handler) handleSubmitComplaint(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.SubmitComplaint")
	defer span.End()

	var req SubmitComplaintRequest
	if !h.decode(w, r, span, &req) {
		return
	}

	complaint, err := h.complaints.Submit(ctx, req.Subject, req.Description)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to submit complaint")
		span.RecordError(err)
		h.writeError(w, "error assigning inspector", err)
		return
	}
	span.SetAttributes(attribute.String("complaint.id", complaint.ID), attribute.String("inspector.id", complaint.InspectorID))
	writeJSON(w, http.StatusCreated, complaint)
}

func (h *Handler) handleAssignComplaint(w http.ResponseWriter, r *http.Request, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.AssignComplaint")
	defer span.End()
	span.SetAttributes(attribute.String("complaint.id", id))

	complaint, err := h.complaints.Assign(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to assign complaint")
		span.RecordError(err)
		h.writeError(w, "error assigning inspector", err)
		return
	}
	writeJSON(w, http.StatusOK, complaint)
}

func (h *Handler) handleGetComplaint(w http.ResponseWriter, r *http.Request, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetComplaint")
	defer span.End()
	span.SetAttributes(attribute.String("complaint.id", id))

	complaint, err := h.complaints.Get(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to get complaint")
		span.RecordError(err)
		h.writeError(w, "error getting complaint", err)
		return
	}
	writeJSON(w, http.StatusOK, complaint)
}

func (h *Handler) handleListComplaints(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ListComplaints")
	defer span.End()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	span.SetAttributes(attribute.Int("limit", limit))

	complaints, err := h.complaints.ListRecent(ctx, limit)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to list complaints")
		span.RecordError(err)
		h.writeError(w, "error listing complaints", err)
		return
	}
	if complaints == nil {
		complaints = []*domain.Complaint{}
	}
	writeJSON(w, http.StatusOK, complaints)
}

func (h *Handler) handleRegisterInspector(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.RegisterInspector")
	defer span.End()

	var req RegisterInspectorRequest
	if !h.decode(w, r, span, &req) {
		return
	}

	inspector, err := h.inspectors.Register(ctx, req.Name, req.Email)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to register inspector")
		span.RecordError(err)
		h.writeError(w, "error registering inspector", err)
		return
	}
	writeJSON(w, http.StatusCreated, inspector)
}

func (h *Handler) handleSetActive(w http.ResponseWriter, r *http.Request, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.SetInspectorActive")
	defer span.End()
	span.SetAttributes(attribute.String("inspector.id", id))

	var req SetActiveRequest
	if !h.decode(w, r, span, &req) {
		return
	}

	inspector, err := h.inspectors.SetActive(ctx, id, *req.Active)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to change inspector availability")
		span.RecordError(err)
		h.writeError(w, "error updating inspector", err)
		return
	}
	writeJSON(w, http.StatusOK, inspector)
}

func (h *Handler) handleGetInspector(w http.ResponseWriter, r *http.Request, id string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetInspector")
	defer span.End()
	span.SetAttributes(attribute.String("inspector.id", id))

	inspector, err := h.inspectors.Get(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to get inspector")
		span.RecordError(err)
		h.writeError(w, "error getting inspector", err)
		return
	}
	writeJSON(w, http.StatusOK, inspector)
}

func (h *Handler) handleListInspectors(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ListInspectors")
	defer span.End()

	inspectors, err := h.inspectors.List(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to list inspectors")
		span.RecordError(err)
		h.writeError(w, "error listing inspectors", err)
		return
	}
	if inspectors == nil {
		inspectors = []*domain.Inspector{}
	}
	writeJSON(w, http.StatusOK, inspectors)
}

func (h *Handler) handleRotation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}
	ctx, span := h.tracer.Start(r.Context(), "handler.GetRotation")
	defer span.End()

	preview, err := h.assigner.Preview(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to read rotation")
		span.RecordError(err)
		h.writeError(w, "error reading rotation", err)
		return
	}
	pool := preview.Pool
	if pool == nil {
		pool = []*domain.Inspector{}
	}
	writeJSON(w, http.StatusOK, RotationResponse{
		Cursor:    preview.Cursor,
		Persisted: preview.Persisted,
		PoolSize:  len(pool),
		Pool:      pool,
		Next:      preview.Next,
	})
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, span trace.Span, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		span.SetStatus(codes.Error, "Failed to decode request body")
		span.RecordError(err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		span.SetStatus(codes.Error, "Validation failed")
		span.RecordError(err)
		var details []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details = append(details, "Field '"+fe.Field()+"' failed on the '"+fe.Tag()+"' tag.")
			}
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: details})
		return false
	}
	return true
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNoEligibleWorkers):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrComplaintNotFound), errors.Is(err, domain.ErrInspectorNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrComplaintExists):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		h.logger.Error(msg, "error", err)
	} else {
		h.logger.Warn(msg, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: msg + ": " + err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
