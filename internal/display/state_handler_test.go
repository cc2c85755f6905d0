package display

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func stateServer(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()
	svc, _ := serviceFixture(t)
	mux := http.NewServeMux()
	NewStateHandler(svc).RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, svc
}

func TestGetState(t *testing.T) {
	server, svc := stateServer(t)
	require.NoError(t, svc.OnTournamentStateChanged(context.Background(), serviceSnapshot(time.Now())))

	resp, err := http.Get(server.URL + "/state/t1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got stateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.NotNil(t, got.Snapshot)
	require.Equal(t, "tour-1", got.Snapshot.TournamentID)
}

func TestGetState_UnknownTenant(t *testing.T) {
	server, _ := stateServer(t)

	resp, err := http.Get(server.URL + "/state/nobody")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetState_MissingTenant(t *testing.T) {
	server, _ := stateServer(t)

	resp, err := http.Get(server.URL + "/state/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetState_MethodNotAllowed(t *testing.T) {
	server, _ := stateServer(t)

	resp, err := http.Post(server.URL+"/state/t1", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
