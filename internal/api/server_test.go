package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tabsift/flow-plane/internal/config"
	"github.com/tabsift/flow-plane/internal/events"
	"github.com/tabsift/flow-plane/internal/store"
)

func TestNewServer(t *testing.T) {
	server := NewServer(&MockStore{}, &MockBroker{}, &MockPipelineService{}, config.Config{})
	require.NotNil(t, server)
	require.NotNil(t, server.Router())
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, &MockStore{}, &MockBroker{}, nil, config.Config{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "ok", payload["status"])
}

func TestReady(t *testing.T) {
	t.Run("ready when store healthy", func(t *testing.T) {
		storeMock := &MockStore{}
		storeMock.On("ListBatches", mock.Anything).Return([]store.Batch{}, nil).Once()

		server := newTestServer(t, storeMock, &MockBroker{}, &MockPipelineService{}, config.Config{})
		defer server.Close()

		resp, err := http.Get(server.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var payload readinessResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Equal(t, "ok", payload.Status)
		require.Equal(t, "ok", payload.Subsystems["store"].Status)
		require.Equal(t, "ok", payload.Subsystems["pipeline"].Status)
		storeMock.AssertExpectations(t)
	})

	t.Run("degraded when store unavailable", func(t *testing.T) {
		storeMock := &MockStore{}
		storeMock.On("ListBatches", mock.Anything).Return(nil, errors.New("db unavailable")).Once()

		server := newTestServer(t, storeMock, &MockBroker{}, nil, config.Config{})
		defer server.Close()

		resp, err := http.Get(server.URL + "/ready")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var payload readinessResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Equal(t, "degraded", payload.Status)
		require.Equal(t, "error", payload.Subsystems["store"].Status)
		require.Equal(t, "skipped", payload.Subsystems["pipeline"].Status)
		storeMock.AssertExpectations(t)
	})
}

func TestIngestEvent(t *testing.T) {
	t.Run("accepted and published", func(t *testing.T) {
		storeMock := &MockStore{}
		brokerMock := &MockBroker{}

		storeMock.On("NextSeq", mock.Anything, "batch-1").Return(int64(7), nil).Once()
		storeMock.On("AppendEvent", mock.Anything, mock.MatchedBy(func(event store.BatchEvent) bool {
			return event.BatchID == "batch-1" && event.Seq == 7 && event.Type == "batch.sessions.grouped" && event.Source == "worker"
		})).Return(nil).Once()
		brokerMock.On("Publish", mock.MatchedBy(func(event events.BatchEvent) bool {
			return event.BatchID == "batch-1" && event.Seq == 7 && event.Type == "batch.sessions.grouped"
		})).Once()

		server := newTestServer(t, storeMock, brokerMock, nil, config.Config{})
		defer server.Close()

		body := `{"type":" Batch.Sessions.Grouped ","source":"worker","payload":{"sessions":4}}`
		resp, err := http.Post(server.URL+"/batches/batch-1/events", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		storeMock.AssertExpectations(t)
		brokerMock.AssertExpectations(t)
	})

	t.Run("missing type", func(t *testing.T) {
		server := newTestServer(t, &MockStore{}, &MockBroker{}, nil, config.Config{})
		defer server.Close()

		resp, err := http.Post(server.URL+"/batches/batch-1/events", "application/json", strings.NewReader(`{"source":"worker"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid body", func(t *testing.T) {
		server := newTestServer(t, &MockStore{}, &MockBroker{}, nil, config.Config{})
		defer server.Close()

		resp, err := http.Post(server.URL+"/batches/batch-1/events", "application/json", strings.NewReader("not-json"))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestStreamEvents_ReplaysStoredEvents(t *testing.T) {
	storeMock := &MockStore{}
	brokerMock := &MockBroker{}

	stored := []store.BatchEvent{
		{BatchID: "batch-1", Seq: 1, Type: "batch.submitted", Timestamp: "2026-08-30T10:00:00Z", Source: "flow_plane"},
		{BatchID: "batch-1", Seq: 2, Type: "batch.started", Timestamp: "2026-08-30T10:00:01Z", Source: "worker"},
	}
	storeMock.On("ListEvents", mock.Anything, "batch-1", int64(0)).Return(stored, nil).Once()
	brokerMock.On("Subscribe", mock.Anything, "batch-1").Return(make(chan events.BatchEvent)).Once()

	server := newTestServer(t, storeMock, brokerMock, nil, config.Config{})
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/batches/batch-1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 6 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		lines = append(lines, strings.TrimRight(line, "\n"))
	}

	require.Equal(t, "id: batch-1:1", lines[0])
	require.Equal(t, "event: batch_event", lines[1])
	require.True(t, strings.HasPrefix(lines[2], "data: "))
	require.Contains(t, lines[2], `"batch.submitted"`)
	require.Equal(t, "id: batch-1:2", lines[3])
}

func TestStreamEvents_AfterSeqFiltersReplay(t *testing.T) {
	storeMock := &MockStore{}
	brokerMock := &MockBroker{}

	storeMock.On("ListEvents", mock.Anything, "batch-1", int64(5)).Return([]store.BatchEvent{
		{BatchID: "batch-1", Seq: 6, Type: "batch.completed", Timestamp: "2026-08-30T10:00:02Z", Source: "worker"},
	}, nil).Once()
	brokerMock.On("Subscribe", mock.Anything, "batch-1").Return(make(chan events.BatchEvent)).Once()

	server := newTestServer(t, storeMock, brokerMock, nil, config.Config{})
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/batches/batch-1/events?after_seq=5", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "id: batch-1:6", strings.TrimRight(line, "\n"))
	storeMock.AssertExpectations(t)
}

func TestParseAfterSeq(t *testing.T) {
	t.Run("query param wins", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/batches/batch-1/events?after_seq=12", nil)
		req.Header.Set("Last-Event-ID", "batch-1:3")
		require.Equal(t, int64(12), parseAfterSeq("batch-1", req))
	})
	t.Run("last event id", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/batches/batch-1/events", nil)
		req.Header.Set("Last-Event-ID", "batch-1:9")
		require.Equal(t, int64(9), parseAfterSeq("batch-1", req))
	})
	t.Run("last event id for other batch ignored", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/batches/batch-1/events", nil)
		req.Header.Set("Last-Event-ID", "batch-2:9")
		require.Equal(t, int64(0), parseAfterSeq("batch-1", req))
	})
	t.Run("malformed header", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/batches/batch-1/events", nil)
		req.Header.Set("Last-Event-ID", "garbage")
		require.Equal(t, int64(0), parseAfterSeq("batch-1", req))
	})
}

func TestCORSPreflight(t *testing.T) {
	server := newTestServer(t, &MockStore{}, &MockBroker{}, nil, config.Config{})
	defer server.Close()

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/batches", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestShouldSuppressRequestLog(t *testing.T) {
	require.True(t, shouldSuppressRequestLog(http.MethodPost, "/batches/batch-1/events"))
	require.True(t, shouldSuppressRequestLog(http.MethodGet, "/batches/batch-1/events"))
	require.True(t, shouldSuppressRequestLog(http.MethodGet, "/batches"))
	require.True(t, shouldSuppressRequestLog(http.MethodGet, "/settings/llm"))
	require.False(t, shouldSuppressRequestLog(http.MethodPost, "/batches"))
	require.False(t, shouldSuppressRequestLog(http.MethodGet, "/workflows"))
}
