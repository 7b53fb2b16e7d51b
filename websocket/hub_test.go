package websocket_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospital-portal/auth"
	"hospital-portal/lock"
	"hospital-portal/models"
	"hospital-portal/queue"
	"hospital-portal/routes"
	"hospital-portal/store/memory"
)

type event struct {
	Event string             `json:"event"`
	Data  models.QueueStatus `json:"data"`
}

func readEvent(t *testing.T, conn *gws.Conn) event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestViewerReceivesInitialStateAndUpdates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.DiscardHandler)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := models.NewHub(logger)
	go hub.Run(ctx)
	svc := queue.NewService(memory.New(), lock.NewLocal(), queue.WithNotifier(hub), queue.WithLogger(logger))
	resolver := auth.NewStatic(map[string]models.Identity{"t": {ID: "r", Role: models.RoleDoctor}})

	srv := httptest.NewServer(routes.NewRouter(svc, hub, resolver, time.Second, logger))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := gws.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer t"}})
	require.NoError(t, err)
	defer conn.Close()

	first := readEvent(t, conn)
	assert.Equal(t, models.EventQueueUpdated, first.Event)
	assert.False(t, first.Data.IsRunning)

	require.Eventually(t, func() bool { return hub.ClientsCount() == 1 }, time.Second, 5*time.Millisecond)

	doctors := []models.Participant{{ID: "1", Name: "A"}, {ID: "2", Name: "B"}, {ID: "3", Name: "C"}, {ID: "4", Name: "D"}}
	_, err = svc.Start(ctx, models.Identity{ID: "r"}, queue.StartRequest{Doctors: doctors, RunnerName: "R"})
	require.NoError(t, err)

	update := readEvent(t, conn)
	assert.Equal(t, models.EventQueueUpdated, update.Event)
	assert.True(t, update.Data.IsRunning)
	assert.Len(t, update.Data.Doctors, 4)
	assert.Equal(t, "R", update.Data.RunnerName)
}
