package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shaj13/go-guardian/auth"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/linesmerrill/case-portal-api/api"
	"github.com/linesmerrill/case-portal-api/api/handlers"
	"github.com/linesmerrill/case-portal-api/authority"
	"github.com/linesmerrill/case-portal-api/databases/memdb"
	"github.com/linesmerrill/case-portal-api/models"
	"github.com/linesmerrill/case-portal-api/notify"
	"github.com/linesmerrill/case-portal-api/pursuit"
	"github.com/linesmerrill/case-portal-api/workflow"
)

type caller struct {
	id    string
	roles []string
}

func newCaller(roles ...string) caller {
	return caller{id: primitive.NewObjectID().Hex(), roles: roles}
}

var (
	citizen   = newCaller("citizen")
	trainee   = newCaller("trainee")
	officer   = newCaller("officer")
	detective = newCaller("detective")
	sergeant  = newCaller("sergeant")
	captain   = newCaller("captain")
	chief     = newCaller("chief")
	judge     = newCaller("judge")
	admin     = newCaller("admin")
	anonymous = caller{}
)

type server struct {
	t      *testing.T
	store  *memdb.Store
	auth   *api.Auth
	hub    *notify.Hub
	router *mux.Router

	mu  sync.Mutex
	now time.Time
}

func newServer(t *testing.T) *server {
	t.Helper()
	m, err := authority.DefaultMatrix()
	require.NoError(t, err)
	metrics, err := api.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	s := &server{
		t:     t,
		store: memdb.New(),
		now:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	hub := notify.NewHub()
	s.hub = hub
	deps := &workflow.Deps{
		Authority:      authority.New(m),
		Cases:          s.store,
		Suspects:       s.store,
		Interrogations: s.store,
		Verdicts:       s.store,
		Notifier:       hub,
		Clock:          s.clock,
		Backoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 5)
		},
	}
	s.auth = api.NewAuth(s.store, "handler-test-secret")
	settlement := workflow.NewVerdictSettlement(deps)
	s.router = handlers.NewRouter(handlers.Services{
		Auth:           s.auth,
		Authority:      deps.Authority,
		Lifecycle:      workflow.NewCaseLifecycle(deps, workflow.DefaultResolutionPolicy()),
		Consensus:      workflow.NewInterrogationConsensus(deps),
		Settlement:     settlement,
		Board:          workflow.NewPursuitBoard(deps, pursuit.DefaultPolicy()),
		Users:          s.store,
		Hub:            hub,
		Metrics:        metrics,
		RequestTimeout: 5 * time.Second,
	})
	return s
}

func (s *server) clock() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *server) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func (s *server) token(c caller) string {
	s.t.Helper()
	tok, _, err := s.auth.SignToken(auth.NewDefaultUser(c.id+"@example.com", c.id, c.roles, nil))
	require.NoError(s.t, err)
	return tok
}

// do sends a request as c. An empty caller sends no credentials.
func (s *server) do(c caller, method, path string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.id != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(c))
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

// ok sends a request and requires the given status, decoding the body into out
func (s *server) ok(c caller, method, path string, body interface{}, status int, out interface{}) {
	s.t.Helper()
	rr := s.do(c, method, path, body)
	require.Equal(s.t, status, rr.Code, rr.Body.String())
	if out != nil {
		require.NoError(s.t, json.Unmarshal(rr.Body.Bytes(), out))
	}
}

func (s *server) complaint(level models.CrimeLevel) models.Case {
	s.t.Helper()
	var c models.Case
	s.ok(citizen, "POST", "/api/v1/cases/complaints", workflow.ComplaintInput{
		Title:       "Stolen bicycle",
		Description: "Taken from the station rack",
		CrimeLevel:  level,
	}, http.StatusCreated, &c)
	return c
}

func (s *server) sceneReport(level models.CrimeLevel) models.Case {
	s.t.Helper()
	var c models.Case
	s.ok(officer, "POST", "/api/v1/cases/scene-reports", workflow.SceneReportInput{
		Title:      "Warehouse fire",
		CrimeLevel: level,
		Scene:      models.SceneReport{Location: "Dock 4", Witnesses: []string{"w1"}},
	}, http.StatusCreated, &c)
	return c
}

func (s *server) addSuspect(caseID string) models.Suspect {
	s.t.Helper()
	var sp models.Suspect
	s.ok(detective, "POST", "/api/v1/cases/"+caseID+"/suspects", workflow.SuspectInput{
		FirstName: "Roy",
		LastName:  "Earle",
	}, http.StatusCreated, &sp)
	return sp
}

func (s *server) seedUser(u *models.User) {
	s.t.Helper()
	require.NoError(s.t, s.store.InsertUser(context.Background(), u))
}

func approve() workflow.ReviewInput {
	return workflow.ReviewInput{Approved: true, Notes: "ok"}
}

func reject() workflow.ReviewInput {
	return workflow.ReviewInput{Approved: false, Notes: "missing details"}
}
