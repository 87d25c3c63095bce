package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgeit/bridgeit/internal/auth"
	"github.com/bridgeit/bridgeit/internal/config"
	"github.com/bridgeit/bridgeit/internal/db"
	"github.com/bridgeit/bridgeit/internal/engine"
	"github.com/bridgeit/bridgeit/pkg/audit"
)

type testAPI struct {
	mux   *http.ServeMux
	auth  *auth.Auth
	store *db.DB
	token string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	a := auth.New("test-secret", 60)
	eng := engine.New(store, audit.Nop{}, config.DefaultConfig().Sprint)
	mux := http.NewServeMux()
	New(store, a, eng).RegisterRoutes(mux)

	token, err := a.GenerateToken("staff-1", "scout_amy", db.RoleScout)
	require.NoError(t, err)
	return &testAPI{mux: mux, auth: a, store: store, token: token}
}

func (ta *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return ta.doAs(t, method, path, body, ta.token)
}

func (ta *testAPI) doAs(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ta.mux.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestAuthRequired(t *testing.T) {
	ta := newTestAPI(t)
	w := ta.doAs(t, "POST", "/api/leads", map[string]any{"business_name": "X", "category": "y"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ta.doAs(t, "GET", "/api/leads", nil, "garbage-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginFlow(t *testing.T) {
	ta := newTestAPI(t)
	hash, err := ta.auth.HashPassword("correct horse battery")
	require.NoError(t, err)
	_, err = ta.store.CreateStaff(db.CreateStaffInput{Handle: "amy", PasswordHash: hash, Role: db.RoleScout})
	require.NoError(t, err)

	w := ta.doAs(t, "POST", "/api/login", map[string]any{"handle": "amy", "password": "correct horse battery"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	w = ta.doAs(t, "POST", "/api/login", map[string]any{"handle": "amy", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ta.doAs(t, "GET", "/api/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "amy", decodeBody(t, w)["handle"])
}

func TestLeadEndpoints(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(t, "POST", "/api/leads", map[string]any{
		"business_name": "Corner Bakery",
		"category":      "bakery",
		"borough":       "Brooklyn",
		"hfi":           74,
		"time_burden":   "10 hours a week",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	leadID := decodeBody(t, w)["id"].(string)
	require.NotEmpty(t, leadID)

	// missing required fields fail struct validation
	w = ta.do(t, "POST", "/api/leads", map[string]any{"category": "bakery"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decodeBody(t, w)["kind"])

	w = ta.do(t, "GET", "/api/leads/"+leadID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	analysis, ok := body["analysis"].(map[string]any)
	require.True(t, ok, "lead reads include the derived analysis")
	assert.Equal(t, "foundation", analysis["build_tier"])
	assert.Equal(t, 10.0, analysis["time_burden_hours"])

	w = ta.do(t, "GET", "/api/leads?borough=Brooklyn", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decodeBody(t, w)["count"])

	w = ta.do(t, "GET", "/api/leads?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(t, "PATCH", "/api/leads/"+leadID+"/status", map[string]any{"status": "engaged"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "engaged", decodeBody(t, w)["status"])

	w = ta.do(t, "PATCH", "/api/leads/"+leadID+"/status", map[string]any{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(t, "GET", "/api/leads/no-such-lead", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestEngineErrorRendering pins the error-kind to HTTP status mapping the
// dashboard depends on for actionable messages.
func TestEngineErrorRendering(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(t, "POST", "/api/leads", map[string]any{"business_name": "Corner Bakery", "category": "bakery"})
	require.Equal(t, http.StatusCreated, w.Code)
	leadID := decodeBody(t, w)["id"].(string)

	// unknown lead -> 404 not_found
	w = ta.do(t, "POST", "/api/sprints/no-such-lead/launch", map[string]any{"max_slots": 1, "duration_weeks": 2})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeBody(t, w)["kind"])

	// out-of-range slots -> 400 validation_error before the engine runs
	w = ta.do(t, "POST", "/api/sprints/"+leadID+"/launch", map[string]any{"max_slots": 7, "duration_weeks": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", decodeBody(t, w)["kind"])

	w = ta.do(t, "POST", "/api/sprints/"+leadID+"/launch", map[string]any{"max_slots": 1, "duration_weeks": 2})
	require.Equal(t, http.StatusCreated, w.Code)

	// second launch -> 409 invalid_state
	w = ta.do(t, "POST", "/api/sprints/"+leadID+"/launch", map[string]any{"max_slots": 1, "duration_weeks": 2})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state", decodeBody(t, w)["kind"])

	w = ta.do(t, "POST", "/api/sprints/"+leadID+"/builders/builder_1/join", map[string]any{"builder_name": "Kai"})
	require.Equal(t, http.StatusCreated, w.Code)

	// full roster -> 409 capacity_exceeded
	w = ta.do(t, "POST", "/api/sprints/"+leadID+"/builders/builder_2/join", map[string]any{"builder_name": "Noor"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "capacity_exceeded", decodeBody(t, w)["kind"])

	// standings for a sprintless lead -> 404
	w = ta.do(t, "POST", "/api/leads", map[string]any{"business_name": "Idle Shop", "category": "retail"})
	require.Equal(t, http.StatusCreated, w.Code)
	idleID := decodeBody(t, w)["id"].(string)
	w = ta.do(t, "GET", "/api/leads/"+idleID+"/standings", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStandingsEndpoint(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(t, "POST", "/api/leads", map[string]any{"business_name": "Corner Bakery", "category": "bakery"})
	require.Equal(t, http.StatusCreated, w.Code)
	leadID := decodeBody(t, w)["id"].(string)

	w = ta.do(t, "POST", "/api/sprints/"+leadID+"/launch", map[string]any{
		"max_slots": 2, "duration_weeks": 2,
		"milestones": []map[string]any{
			{"index": 0, "name": "Data model", "weight": 0.5},
			{"index": 1, "name": "Booking flow", "weight": 0.5},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ta.do(t, "POST", "/api/sprints/"+leadID+"/builders/builder_1/join", map[string]any{"builder_name": "Kai"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = ta.do(t, "GET", "/api/leads/"+leadID+"/standings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "quality", body["scoring_mode"])
	assert.Len(t, body["milestones"], 2)
	assert.Len(t, body["builders"], 1)
	assert.Equal(t, false, body["can_finalize"])
}

func TestRejectedRelaunchKeepsMilestonePlan(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(t, "POST", "/api/leads", map[string]any{"business_name": "Corner Bakery", "category": "bakery"})
	require.Equal(t, http.StatusCreated, w.Code)
	leadID := decodeBody(t, w)["id"].(string)

	w = ta.do(t, "POST", "/api/sprints/"+leadID+"/launch", map[string]any{"max_slots": 2, "duration_weeks": 2})
	require.Equal(t, http.StatusCreated, w.Code)

	// A second launch against the running sprint is rejected and must leave
	// the default four-checkpoint plan untouched.
	w = ta.do(t, "POST", "/api/sprints/"+leadID+"/launch", map[string]any{
		"max_slots": 2, "duration_weeks": 2,
		"milestones": []map[string]any{
			{"index": 0, "name": "Build", "weight": 0.5},
			{"index": 1, "name": "Ship", "weight": 0.5},
		},
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state", decodeBody(t, w)["kind"])

	w = ta.do(t, "GET", "/api/leads/"+leadID+"/standings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["milestones"], 4)
}

func TestProofEndpoints(t *testing.T) {
	ta := newTestAPI(t)

	w := ta.do(t, "POST", "/api/leads", map[string]any{"business_name": "Corner Bakery", "category": "bakery"})
	require.Equal(t, http.StatusCreated, w.Code)
	leadID := decodeBody(t, w)["id"].(string)
	w = ta.do(t, "POST", "/api/sprints/"+leadID+"/launch", map[string]any{"max_slots": 2, "duration_weeks": 2})
	require.Equal(t, http.StatusCreated, w.Code)
	w = ta.do(t, "POST", "/api/sprints/"+leadID+"/builders/builder_1/join", map[string]any{"builder_name": "Kai"})
	require.Equal(t, http.StatusCreated, w.Code)

	base := "/api/sprints/" + leadID + "/builders/builder_1"

	// proof links must be URLs
	w = ta.do(t, "POST", base+"/checkpoints/0/proof", map[string]any{"proof_link": "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(t, "POST", base+"/checkpoints/0/proof", map[string]any{"proof_link": "https://github.com/example/pr/1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = ta.do(t, "PATCH", base+"/checkpoints/0/verify", map[string]any{"approved": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "approved", decodeBody(t, w)["status"])

	// verifying a non-submitted checkpoint conflicts
	w = ta.do(t, "PATCH", base+"/checkpoints/1/verify", map[string]any{"approved": true})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ta.do(t, "POST", base+"/checkpoints/nope/proof", map[string]any{"proof_link": "https://github.com/x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ta.do(t, "DELETE", base, map[string]any{"reason": "inactive"})
	require.Equal(t, http.StatusOK, w.Code)
	w = ta.do(t, "DELETE", base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	ta := newTestAPI(t)
	w := ta.doAs(t, "GET", "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
