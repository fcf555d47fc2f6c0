package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"inspector-rotation/internal/domain"
	"inspector-rotation/internal/infra/memory"
	"inspector-rotation/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	store *memory.Store
	mux   *http.ServeMux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewStore()

	assigner := usecase.NewAssignmentService(store.Inspectors(), store.Complaints(), store.Rotation(), memory.NewLocker(), time.Second, 10, logger)
	complaints := usecase.NewComplaintService(store.Complaints(), assigner, logger)
	inspectors := usecase.NewInspectorService(store.Inspectors(), logger)

	mux := http.NewServeMux()
	NewHandler(complaints, inspectors, assigner, logger).RegisterRoutes(mux)
	return &testServer{store: store, mux: mux}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) registerInspector(t *testing.T, name string) *domain.Inspector {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/inspectors", RegisterInspectorRequest{Name: name})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[*domain.Inspector](t, rec)
}

func TestSubmitComplaint_RejectedWithoutInspectors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/complaints", SubmitComplaintRequest{Subject: "Broken streetlight"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Contains(t, resp.Error, "no active inspectors")

	rec = s.do(t, http.MethodGet, "/complaints", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]*domain.Complaint](t, rec))
}

func TestSubmitComplaint_RoundRobin(t *testing.T) {
	s := newTestServer(t)
	a := s.registerInspector(t, "Alice")
	b := s.registerInspector(t, "Bob")

	// The pool is ordered by ID, which is random here.
	first, second := a, b
	if b.ID < a.ID {
		first, second = b, a
	}

	var got []string
	for i := 0; i < 4; i++ {
		rec := s.do(t, http.MethodPost, "/complaints", SubmitComplaintRequest{Subject: "Overflowing bins"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		got = append(got, decodeBody[*domain.Complaint](t, rec).InspectorID)
	}
	assert.Equal(t, []string{first.ID, second.ID, first.ID, second.ID}, got)

	rec := s.do(t, http.MethodGet, "/complaints?limit=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]*domain.Complaint](t, rec), 3)
}

func TestSubmitComplaint_Validation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/complaints", SubmitComplaintRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "Validation failed", resp.Error)
	assert.NotEmpty(t, resp.Details)

	req := httptest.NewRequest(http.MethodPost, "/complaints", bytes.NewBufferString("{oops"))
	raw := httptest.NewRecorder()
	s.mux.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestListComplaints_LimitIsCapped(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < maxListLimit+10; i++ {
		require.NoError(t, s.store.Complaints().Create(ctx, &domain.Complaint{
			ID: fmt.Sprintf("c%03d", i), Subject: "Streetlight out", CreatedAt: time.Now(),
		}))
	}

	rec := s.do(t, http.MethodGet, "/complaints?limit=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]*domain.Complaint](t, rec), maxListLimit)

	rec = s.do(t, http.MethodGet, "/complaints?limit=nope", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]*domain.Complaint](t, rec), defaultListLimit)
}

func TestGetComplaint(t *testing.T) {
	s := newTestServer(t)
	s.registerInspector(t, "Alice")

	rec := s.do(t, http.MethodPost, "/complaints", SubmitComplaintRequest{Subject: "Graffiti", Description: "north wall"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[*domain.Complaint](t, rec)

	rec = s.do(t, http.MethodGet, "/complaints/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[*domain.Complaint](t, rec)
	assert.Equal(t, "north wall", got.Description)
	assert.Equal(t, created.InspectorID, got.InspectorID)

	rec = s.do(t, http.MethodGet, "/complaints/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssignComplaint_Retrigger(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.store.Complaints().Create(context.Background(), &domain.Complaint{
		ID: "crm-17", Subject: "Imported from CRM", CreatedAt: time.Now(),
	}))

	rec := s.do(t, http.MethodPost, "/complaints/crm-17/assign", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	insp := s.registerInspector(t, "Alice")
	rec = s.do(t, http.MethodPost, "/complaints/crm-17/assign", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, insp.ID, decodeBody[*domain.Complaint](t, rec).InspectorID)
}

func TestInspectors_Deactivate(t *testing.T) {
	s := newTestServer(t)
	insp := s.registerInspector(t, "Alice")

	rec := s.do(t, http.MethodPut, "/inspectors/"+insp.ID+"/active", map[string]bool{"active": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decodeBody[*domain.Inspector](t, rec).Active)

	rec = s.do(t, http.MethodPut, "/inspectors/"+insp.ID+"/active", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/inspectors/unknown/active", map[string]bool{"active": true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/inspectors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]*domain.Inspector](t, rec)
	require.Len(t, list, 1)
	assert.False(t, list[0].Active)

	rec = s.do(t, http.MethodGet, "/inspectors/"+insp.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/complaints", SubmitComplaintRequest{Subject: "Pothole"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRegisterInspector_InvalidEmail(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/inspectors", RegisterInspectorRequest{Name: "Alice", Email: "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRotation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/rotation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[RotationResponse](t, rec)
	assert.Equal(t, 0, resp.PoolSize)
	assert.Nil(t, resp.Next)
	assert.Equal(t, domain.NoPriorAssignment, resp.Cursor)

	insp := s.registerInspector(t, "Alice")
	rec = s.do(t, http.MethodPost, "/complaints", SubmitComplaintRequest{Subject: "Noise"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/rotation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeBody[RotationResponse](t, rec)
	assert.True(t, resp.Persisted)
	assert.Equal(t, domain.RotationState(0), resp.Cursor)
	require.NotNil(t, resp.Next)
	assert.Equal(t, insp.ID, resp.Next.ID)

	rec = s.do(t, http.MethodDelete, "/rotation", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodDelete, "/complaints/abc", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
