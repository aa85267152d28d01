package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/case-portal-api/api/handlers"
	"github.com/linesmerrill/case-portal-api/models"
)

func TestHealthCheckHandler(t *testing.T) {
	s := newServer(t)
	var body models.HealthCheckResponse
	s.ok(anonymous, "GET", "/health", nil, http.StatusOK, &body)
	assert.True(t, body.Alive)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t)
	s.complaint(models.CrimeLevelTwo)

	rr := s.do(anonymous, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `route="/api/v1/cases/complaints"`)
}

func TestUnknownRoute(t *testing.T) {
	s := newServer(t)
	rr := s.do(citizen, "GET", "/api/v1/nothing-here", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBearerTokenRejected(t *testing.T) {
	s := newServer(t)
	req := httptest.NewRequest("GET", "/api/v1/cases", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMostWanted(t *testing.T) {
	s := newServer(t)
	critical := s.sceneReport(models.CrimeLevelCritical)
	minor := s.sceneReport(models.CrimeLevelThree)
	s.addSuspect(critical.ID.Hex())
	s.addSuspect(minor.ID.Hex())

	var board handlers.MostWantedResponse
	s.ok(citizen, "GET", "/api/v1/most-wanted", nil, http.StatusOK, &board)
	assert.Empty(t, board.Entries)

	s.advance(45 * 24 * time.Hour)
	s.ok(citizen, "GET", "/api/v1/most-wanted", nil, http.StatusOK, &board)
	require.Len(t, board.Entries, 2)
	assert.Equal(t, 2, board.Total)
	top := board.Entries[0]
	assert.Equal(t, models.CrimeLevelCritical, top.CrimeLevel)
	assert.Equal(t, 45, top.DaysAtLarge)
	assert.Equal(t, int64(180), top.Score)
	assert.Equal(t, int64(180*20000000), top.Reward)
	assert.False(t, top.Severe)

	s.ok(citizen, "GET", "/api/v1/most-wanted?limit=1&page=2", nil, http.StatusOK, &board)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, models.CrimeLevelThree, board.Entries[0].CrimeLevel)

	s.ok(citizen, "GET", "/api/v1/most-wanted?limit=100&page=4611686018427387904", nil, http.StatusOK, &board)
	assert.Empty(t, board.Entries)

	rr := s.do(anonymous, "GET", "/api/v1/most-wanted", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestEventsWebSocket(t *testing.T) {
	s := newServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/events?access_token=" + s.token(citizen)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ws/events", nil)
	assert.Error(t, err)

	require.Eventually(t, func() bool { return s.hub.Connected(citizen.id) == 1 }, 2*time.Second, 10*time.Millisecond)

	c := s.complaint(models.CrimeLevelTwo)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		Event string       `json:"event"`
		Data  models.Event `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, string(models.EventCaseStatusChanged), got.Event)
	assert.Equal(t, c.ID.Hex(), got.Data.EntityID)
	assert.Equal(t, models.StatusPendingTrainee, got.Data.To)
}
