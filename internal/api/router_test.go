package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
	"github.com/SalehHamed1978UAE/squadbot/internal/orchestrator"
	"github.com/SalehHamed1978UAE/squadbot/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := store.NewMemoryStore()
	registry := orchestrator.NewRegistry(st, zerolog.Nop(), orchestrator.Defaults{
		ConsensusMode:        models.ModeMajority,
		CommitTimeoutSeconds: 300,
		MaxMembers:           10,
		ConvergenceWindow:    20,
	})
	t.Cleanup(registry.Close)

	srv := httptest.NewServer(NewRouter(zerolog.Nop(), registry, st, RouterConfig{}))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func createSquad(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/squads", map[string]any{
		"name": "platform", "consensus_mode": "majority",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func joinSquad(t *testing.T, srv *httptest.Server, squadID, name string) {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/squads/"+squadID+"/join", map[string]any{
		"name": name, "model": "test-model",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
}

func TestSquadCRUD(t *testing.T) {
	srv := newTestServer(t)

	id := createSquad(t, srv)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/squads/"+id, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "platform", body["name"])
	assert.Equal(t, "majority", body["consensus_mode"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/squads", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["squads"], 1)

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/squads/"+id, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/squads/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateSquadValidation(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/squads", map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/squads", map[string]any{
		"name": "x", "consensus_mode": "dictatorship",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnknownSquadIs404(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/squads/missing/status", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJoinConflictIs409(t *testing.T) {
	srv := newTestServer(t)
	id := createSquad(t, srv)
	joinSquad(t, srv, id, "alice")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/squads/"+id+"/join", map[string]any{"name": "alice"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestMessageFlow(t *testing.T) {
	srv := newTestServer(t)
	id := createSquad(t, srv)
	joinSquad(t, srv, id, "alice")

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/squads/"+id+"/send", map[string]any{
		"sender": "alice", "content": "hello squad",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["id"])
	ts, ok := body["ts"].(float64)
	require.True(t, ok)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/squads/"+id+"/messages", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	messages := body["messages"].([]any)
	// Join announcement plus the member message.
	require.Len(t, messages, 2)
	last := messages[1].(map[string]any)
	assert.Equal(t, "hello squad", last["content"])

	url := fmt.Sprintf("%s/api/squads/%s/messages?since=%d", srv.URL, id, int64(ts))
	resp, body = doJSON(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["messages"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/squads/"+id+"/send", map[string]any{
		"sender": "ghost", "content": "should fail",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCommitFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	id := createSquad(t, srv)
	joinSquad(t, srv, id, "alice")
	joinSquad(t, srv, id, "bob")
	joinSquad(t, srv, id, "carol")

	resp, proposal := doJSON(t, http.MethodPost, srv.URL+"/api/squads/"+id+"/propose", map[string]any{
		"proposer": "alice", "content": "adopt postgres for production",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	commitID := proposal["id"].(string)
	assert.Equal(t, "pending", proposal["status"])

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/squads/"+id+"/pending", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["pending_commits"], 1)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/squads/"+id+"/vote", map[string]any{
		"voter": "alice", "commit_id": commitID, "choice": "approve",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pending", body["status"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/squads/"+id+"/vote", map[string]any{
		"voter": "bob", "commit_id": commitID, "choice": "approve",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "approved", body["status"])

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/squads/"+id+"/context", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["version"])
	assert.Contains(t, body["summary"], "adopt postgres for production")

	// A vote on the resolved proposal conflicts.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/squads/"+id+"/vote", map[string]any{
		"voter": "carol", "commit_id": commitID, "choice": "approve",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/squads/"+id+"/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["member_count"])
	assert.Equal(t, float64(1), body["context_version"])
	assert.Equal(t, float64(0), body["pending_commits"])
}

func TestVoteValidation(t *testing.T) {
	srv := newTestServer(t)
	id := createSquad(t, srv)
	joinSquad(t, srv, id, "alice")

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/squads/"+id+"/vote", map[string]any{
		"voter": "alice", "commit_id": "c1", "choice": "maybe",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebsocketStreamsSnapshotThenEvents(t *testing.T) {
	srv := newTestServer(t)
	id := createSquad(t, srv)
	joinSquad(t, srv, id, "alice")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/squads/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first struct {
		Type string `json:"type"`
		Data struct {
			Status struct {
				MemberCount int `json:"member_count"`
			} `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "initial_state", first.Type)
	assert.Equal(t, 1, first.Data.Status.MemberCount)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/squads/"+id+"/send", map[string]any{
		"sender": "alice", "content": "streamed message",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var event struct {
		Seq  uint64          `json:"seq"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "new_message", event.Type)
	assert.NotZero(t, event.Seq)
	assert.Contains(t, string(event.Data), "streamed message")
}
