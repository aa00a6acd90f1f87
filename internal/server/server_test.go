package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	checkpointdomain "github.com/smallbiznis/purchasesync/internal/checkpoint/domain"
	"github.com/smallbiznis/purchasesync/internal/config"
	etldomain "github.com/smallbiznis/purchasesync/internal/etl/domain"
	etlrepo "github.com/smallbiznis/purchasesync/internal/etl/repository"
	"github.com/smallbiznis/purchasesync/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryCheckpoints struct {
	mu sync.Mutex
	at map[string]time.Time
}

func (m *memoryCheckpoints) Get(_ context.Context, feed string) (*time.Time, error) {
	if feed == "" {
		return nil, checkpointdomain.ErrInvalidFeed
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.at[feed]
	if !ok {
		return nil, nil
	}
	return &at, nil
}

func (m *memoryCheckpoints) Set(_ context.Context, feed string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.at[feed] = at
	return nil
}

func (m *memoryCheckpoints) Reset(_ context.Context, feed string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.at, feed)
	return nil
}

type signalRunner struct {
	feeds chan string
}

func (r *signalRunner) Run(_ context.Context, feed string) (*etldomain.Run, error) {
	r.feeds <- feed
	return &etldomain.Run{Feed: feed}, nil
}

type fixture struct {
	engine      *gin.Engine
	checkpoints *memoryCheckpoints
	runs        etldomain.RunRepository
	runner      *signalRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest(t.Name())
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&etldomain.Run{}))

	f := &fixture{
		checkpoints: &memoryCheckpoints{at: map[string]time.Time{}},
		runs:        etlrepo.NewRunRepository(conn),
		runner:      &signalRunner{feeds: make(chan string, 1)},
	}
	s := &Server{
		log:         zap.NewNop(),
		holder:      config.NewStaticSyncConfigHolder(config.DefaultSyncConfig()),
		checkpoints: f.checkpoints,
		runs:        f.runs,
		runner:      f.runner,
	}
	f.engine = NewEngine()
	Register(f.engine, s)
	return f
}

func (f *fixture) do(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	f.engine.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCheckpointEndpoints(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, f.checkpoints.Set(context.Background(), "purchases", at))

	rec := f.do(http.MethodGet, "/feeds/purchases/checkpoint")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"feed":"purchases","last_run":"2024-03-01T08:00:00Z"}`, rec.Body.String())

	rec = f.do(http.MethodDelete, "/feeds/purchases/checkpoint")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/feeds/purchases/checkpoint")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"feed":"purchases","last_run":null}`, rec.Body.String())
}

func TestUnknownFeedIsNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/feeds/sales/checkpoint")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unknown_feed", body.Error.Type)
}

func TestRunsEndpoints(t *testing.T) {
	f := newFixture(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	var last snowflake.ID
	for i := 0; i < 3; i++ {
		last = node.Generate()
		require.NoError(t, f.runs.Create(context.Background(), &etldomain.Run{
			ID: last, Feed: "purchases", Status: etldomain.RunStatusSuccess, StartedAt: time.Now().UTC(),
		}))
	}

	rec := f.do(http.MethodGet, "/runs?feed=purchases&page_size=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var page listRunsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Data, 2)
	assert.True(t, page.PageInfo.HasMore)
	assert.Equal(t, last, page.Data[0].ID)

	rec = f.do(http.MethodGet, "/runs?page_token="+page.PageInfo.NextPageToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.False(t, page.PageInfo.HasMore)

	rec = f.do(http.MethodGet, "/runs/"+last.String())
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/runs/42")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/runs/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/runs?page_token=bad!")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerRun(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/feeds/purchases/runs")
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case feed := <-f.runner.feeds:
		assert.Equal(t, "purchases", feed)
	case <-time.After(time.Second):
		t.Fatalf("expected background run")
	}
}
