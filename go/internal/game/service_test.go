package game

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/vaxgame/go/internal/models"
)

const testToken = "s3cret"

func newTestServer(t *testing.T) (*httptest.Server, *harness) {
	t.Helper()
	h := newHarness(t)
	mux := http.NewServeMux()
	NewService(h.game, h.sessions, testToken).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, h
}

func do(t *testing.T, method, url, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set(AdminTokenHeader, token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestAdminRoutesRequireToken(t *testing.T) {
	srv, _ := newTestServer(t)
	if code := do(t, http.MethodGet, srv.URL+"/api/admin/sessions", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", code)
	}
	if code := do(t, http.MethodGet, srv.URL+"/api/admin/sessions", "wrong", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", code)
	}
	if code := do(t, http.MethodGet, srv.URL+"/api/admin/sessions", testToken, nil, nil); code != http.StatusOK {
		t.Fatalf("token status = %d", code)
	}
}

func TestHTTPDecisionFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	var created struct {
		SessionID uuid.UUID `json:"session_id"`
		JoinCodes []string  `json:"join_codes"`
	}
	code := do(t, http.MethodPost, srv.URL+"/api/admin/sessions", testToken, map[string]any{
		"name":                 "http",
		"group_size":           1,
		"round_count":          2,
		"base_payout":          "25.00",
		"watch_window_seconds": 5,
	}, &created)
	if code != http.StatusCreated || len(created.JoinCodes) != 1 {
		t.Fatalf("create status = %d, body = %+v", code, created)
	}

	var p models.Participant
	if code := do(t, http.MethodPost, srv.URL+"/api/join", "", joinRequest{Code: created.JoinCodes[0], Alias: "Kim"}, &p); code != http.StatusOK {
		t.Fatalf("join status = %d", code)
	}
	base := srv.URL + "/api/participants/" + p.ID.String()

	var view ParticipantView
	if code := do(t, http.MethodGet, base+"/state", "", nil, &view); code != http.StatusOK || view.State != models.StateDecide {
		t.Fatalf("state status = %d, view = %+v", code, view)
	}

	var errBody errorBody
	if code := do(t, http.MethodPost, base+"/decisions", "", decisionRequest{Round: 1, Choice: "X"}, &errBody); code != http.StatusBadRequest {
		t.Fatalf("bad choice status = %d", code)
	}
	if code := do(t, http.MethodPost, base+"/decisions", "", decisionRequest{Round: 1, Choice: models.ChoiceA}, nil); code != http.StatusCreated {
		t.Fatalf("decision status = %d", code)
	}
	if code := do(t, http.MethodPost, base+"/decisions", "", decisionRequest{Round: 1, Choice: models.ChoiceA}, &errBody); code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", code)
	}

	var status RoundStatus
	url := srv.URL + "/api/sessions/" + created.SessionID.String() + "/rounds/1/status"
	if code := do(t, http.MethodGet, url, "", nil, &status); code != http.StatusOK || !status.Ready || len(status.Results) != 1 {
		t.Fatalf("round status = %d, %+v", code, status)
	}

	var snap RevealSnapshot
	url = srv.URL + "/api/sessions/" + created.SessionID.String() + "/rounds/1/reveal"
	if code := do(t, http.MethodGet, url, "", nil, &snap); code != http.StatusOK || snap.Phase != models.PhaseWatch {
		t.Fatalf("reveal = %d, %+v", code, snap)
	}

	// Round 2 is open only after the watch window; the participant is still
	// revealing round 1.
	if code := do(t, http.MethodPost, base+"/decisions", "", decisionRequest{Round: 2, Choice: models.ChoiceB}, &errBody); code != http.StatusConflict {
		t.Fatalf("decision during reveal status = %d", code)
	}
	if errBody.State != models.StateReveal {
		t.Fatalf("error state = %q, want reveal", errBody.State)
	}
}

func TestHTTPNotFoundAndBadIDs(t *testing.T) {
	srv, _ := newTestServer(t)
	if code := do(t, http.MethodGet, srv.URL+"/api/participants/"+uuid.NewString()+"/state", "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown participant status = %d", code)
	}
	if code := do(t, http.MethodGet, srv.URL+"/api/participants/nope/state", "", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", code)
	}
	if code := do(t, http.MethodPost, srv.URL+"/api/join", "", joinRequest{Code: "ZZZZZZ"}, nil); code != http.StatusNotFound {
		t.Fatalf("unknown code status = %d", code)
	}
	url := srv.URL + "/api/admin/sessions/" + uuid.NewString()
	if code := do(t, http.MethodDelete, url, testToken, nil, nil); code != http.StatusNotFound {
		t.Fatalf("delete unknown status = %d", code)
	}
}
