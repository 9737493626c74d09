package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"skytrace-backend/config"
	"skytrace-backend/internal/model"
	"skytrace-backend/internal/mw"
	"skytrace-backend/internal/scheduler"
	"skytrace-backend/internal/source"
	"skytrace-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	store  store.Store
	sched  *scheduler.Scheduler
	tenant model.Tenant
	cache  *cache.Cache
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Tenant{}, &model.Aircraft{}, &model.AircraftArchive{}, &model.ScheduledJob{}, &model.PushSubscription{}))

	s := store.NewGormStore(db)
	tenant, err := s.EnsureTenant(context.Background(), "default", "Default Organization")
	require.NoError(t, err)

	sched := scheduler.New(source.DefaultRegistry(), source.Env{Store: s}, scheduler.Options{DefaultTenant: "default"})
	responseCache := cache.New(time.Minute, time.Minute)
	sched.OnRun(func(scheduler.RunEvent) { responseCache.Flush() })

	h := NewHandler(s, sched, &webpush.Options{VAPIDPublicKey: "BPublicKey"}, "default")
	cfg := config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTL: time.Minute}
	return &testServer{
		router: NewRouter(h, cfg, responseCache),
		store:  s,
		sched:  sched,
		tenant: tenant,
		cache:  responseCache,
	}
}

func (ts *testServer) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

var bulkBatch = []map[string]any{
	{"hex": "AE1460", "type": "adsb_icao", "flight": "RCH871 ", "lat": 37.7749, "lon": -122.4194, "alt_baro": 10000},
	{"hex": "AE04C5", "type": "mlat", "flight": "EVAC01", "alt_baro": "ground", "lastPosition": map[string]any{"lat": 38.5, "lon": -121.5}},
	{"hex": "A1B2C3", "type": "adsb_icao", "flight": "UAL1", "gs": "n/a"},
	{"hex": "bad", "type": "adsb_icao"},
}

func TestBulkIngest(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/aircraft/bulk", bulkBatch)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"processed":4,"created":3,"updated":0,"errors":1}`, w.Body.String())

	w = ts.do(http.MethodPost, "/api/aircraft/bulk", bulkBatch[:1])
	assert.JSONEq(t, `{"processed":1,"created":0,"updated":1,"errors":0}`, w.Body.String())

	w = ts.do(http.MethodPost, "/api/aircraft/bulk", `{"hex":"ae1460"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/aircraft/bulk", `[{"hex":"AE1465","type":"adsb_icao"},"junk",7,null]`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"processed":4,"created":1,"updated":0,"errors":3}`, w.Body.String())

	w = ts.do(http.MethodPost, "/api/aircraft/bulk", bulkBatch, mw.TenantHeader, "nobody")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAircraft(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/aircraft/bulk", bulkBatch).Code)

	type page struct {
		Aircraft []model.Aircraft `json:"aircraft"`
		Total    int64            `json:"total"`
		Page     int              `json:"page"`
		Size     int              `json:"size"`
	}

	w := ts.do(http.MethodGet, "/api/aircraft", nil)
	require.Equal(t, http.StatusOK, w.Code)
	p := decode[page](t, w)
	assert.Equal(t, int64(3), p.Total)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 100, p.Size)

	p = decode[page](t, ts.do(http.MethodGet, "/api/aircraft?flight=rch", nil))
	require.Len(t, p.Aircraft, 1)
	assert.Equal(t, "ae1460", p.Aircraft[0].Hex)
	assert.Nil(t, p.Aircraft[0].GroundSpeed)

	p = decode[page](t, ts.do(http.MethodGet, "/api/aircraft?skip=2&limit=2", nil))
	assert.Len(t, p.Aircraft, 1)
	assert.Equal(t, 2, p.Page)

	for _, q := range []string{"limit=0", "limit=1001", "skip=-1", "limit=ten"} {
		assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/aircraft?"+q, nil).Code, q)
	}

	w = ts.do(http.MethodGet, "/api/aircraft", nil, mw.TenantHeader, "nobody")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAircraft(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/aircraft/bulk", bulkBatch[:1]).Code)

	rows, _, err := ts.store.ListAircraft(context.Background(), ts.tenant.ID, store.AircraftFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	w := ts.do(http.MethodGet, "/api/aircraft/"+rows[0].ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[model.Aircraft](t, w)
	assert.Equal(t, "ae1460", got.Hex)
	require.NotNil(t, got.AltitudeBaro)
	assert.Equal(t, 10000, *got.AltitudeBaro)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/aircraft/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/aircraft/not-a-uuid", nil).Code)
}

func TestGetAircraftGeoJSON(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/aircraft/bulk", bulkBatch).Code)

	w := ts.do(http.MethodGet, "/api/aircraft/geojson", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string     `json:"type"`
				Coordinates [2]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 2, "only aircraft with a direct or last known position")

	byHex := make(map[string][2]float64)
	for _, f := range fc.Features {
		assert.Equal(t, "Point", f.Geometry.Type)
		byHex[f.Properties["hex"].(string)] = f.Geometry.Coordinates
	}
	assert.Equal(t, [2]float64{-122.4194, 37.7749}, byHex["ae1460"])
	assert.Equal(t, [2]float64{-121.5, 38.5}, byHex["ae04c5"])
}

func TestAircraftCacheIsFlushedByWrites(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/aircraft", nil)
	assert.Contains(t, w.Body.String(), `"total":0`)

	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/aircraft/bulk", bulkBatch[:1]).Code)

	w = ts.do(http.MethodGet, "/api/aircraft", nil)
	assert.Contains(t, w.Body.String(), `"total":1`)
	assert.Empty(t, w.Header().Get("X-Cache"))
}

func TestListArchive(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/aircraft/bulk", bulkBatch).Code)
	_, err := ts.store.ArchiveAndRefresh(ctx, ts.tenant.ID, nil, model.ArchiveReasonManualRefresh)
	require.NoError(t, err)

	w := ts.do(http.MethodGet, "/api/aircraft/archive?hex=AE1460", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Archive []model.AircraftArchive `json:"archive"`
		Count   int                     `json:"count"`
	}](t, w)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, model.ArchiveReasonManualRefresh, body.Archive[0].ArchiveReason)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/aircraft/archive?limit=0", nil).Code)
}

func TestJobLifecycle(t *testing.T) {
	ts := newTestServer(t)

	create := map[string]any{
		"id":               "synthetic-test",
		"name":             "Synthetic",
		"client_type":      "synthetic",
		"config":           map[string]any{"count_min": 5, "count_max": 5, "seed": 9, "use_archive_refresh": true},
		"interval_minutes": 15,
		"tenant":           "default",
	}
	w := ts.do(http.MethodPost, "/api/scheduler/jobs", create)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	info := decode[scheduler.JobInfo](t, w)
	assert.Equal(t, "synthetic-test", info.ID)
	assert.True(t, info.Enabled)
	assert.Nil(t, info.LastRun)

	w = ts.do(http.MethodPost, "/api/scheduler/jobs", create)
	assert.Equal(t, http.StatusConflict, w.Code, "an existing id is not replaced")

	w = ts.do(http.MethodPost, "/api/scheduler/jobs/synthetic-test/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[source.Result](t, w)
	assert.True(t, result.Success)
	assert.Equal(t, 5, result.Collected)
	assert.Equal(t, 5, result.Created)

	w = ts.do(http.MethodPost, "/api/scheduler/jobs/synthetic-test/run", nil)
	result = decode[source.Result](t, w)
	assert.Equal(t, 5, result.Archived, "the job's config selects archive refresh")

	w = ts.do(http.MethodGet, "/api/scheduler/jobs/synthetic-test", nil)
	info = decode[scheduler.JobInfo](t, w)
	assert.Equal(t, 2, info.RunCount)
	require.NotNil(t, info.LastRun)
	assert.Equal(t, info.LastRun.Add(15*time.Minute), info.NextRun)

	w = ts.do(http.MethodPost, "/api/scheduler/jobs/synthetic-test/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[scheduler.JobInfo](t, w).Enabled)

	w = ts.do(http.MethodPatch, "/api/scheduler/jobs/synthetic-test", map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[scheduler.JobInfo](t, w).Enabled)

	w = ts.do(http.MethodPost, "/api/scheduler/jobs/synthetic-test/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/api/scheduler/status", nil)
	status := decode[scheduler.Status](t, w)
	assert.Equal(t, "stopped", status.Status)
	assert.Equal(t, 1, status.TotalJobs)
	assert.Equal(t, 0, status.EnabledJobs)
	assert.Equal(t, 1, status.DisabledJobs)

	w = ts.do(http.MethodGet, "/api/scheduler/jobs", nil)
	assert.Len(t, decode[[]scheduler.JobInfo](t, w), 1)

	assert.Equal(t, http.StatusNoContent, ts.do(http.MethodDelete, "/api/scheduler/jobs/synthetic-test", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/scheduler/jobs/synthetic-test", nil).Code)
}

func TestCreateJob_Rejections(t *testing.T) {
	ts := newTestServer(t)

	valid := func() map[string]any {
		return map[string]any{
			"name":             "Job",
			"client_type":      "synthetic",
			"config":           map[string]any{},
			"interval_minutes": 30,
			"tenant":           "default",
		}
	}

	testCases := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{name: "Unknown client type", mutate: func(m map[string]any) { m["client_type"] = "flightradar" }},
		{name: "Missing name", mutate: func(m map[string]any) { delete(m, "name") }},
		{name: "Missing config", mutate: func(m map[string]any) { delete(m, "config") }},
		{name: "Missing tenant", mutate: func(m map[string]any) { delete(m, "tenant") }},
		{name: "Zero interval", mutate: func(m map[string]any) { m["interval_minutes"] = 0 }},
		{name: "Bad client config", mutate: func(m map[string]any) { m["config"] = map[string]any{"count_min": 9, "count_max": 1} }},
		{name: "Missing credentials", mutate: func(m map[string]any) { m["client_type"] = "adsbexchange" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			body := valid()
			tc.mutate(body)
			w := ts.do(http.MethodPost, "/api/scheduler/jobs", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Empty(t, ts.sched.List())
}

func TestJobEndpoints_NotFound(t *testing.T) {
	ts := newTestServer(t)

	for _, req := range []struct{ method, path string }{
		{http.MethodGet, "/api/scheduler/jobs/missing"},
		{http.MethodDelete, "/api/scheduler/jobs/missing"},
		{http.MethodPost, "/api/scheduler/jobs/missing/run"},
		{http.MethodPost, "/api/scheduler/jobs/missing/enable"},
		{http.MethodPost, "/api/scheduler/jobs/missing/disable"},
	} {
		w := ts.do(req.method, req.path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, req.path)
		assert.JSONEq(t, `{"error":"job not found"}`, w.Body.String())
	}

	w := ts.do(http.MethodPatch, "/api/scheduler/jobs/missing", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "enabled is required")
}

func TestRunJob_Conflict(t *testing.T) {
	ts := newTestServer(t)

	release := make(chan struct{})
	started := make(chan struct{})
	registry := source.NewRegistry()
	registry.Register("blocking", func(cfg map[string]any, env source.Env) (source.Client, error) {
		return &blockingClient{
			AircraftCodec: source.AircraftCodec{Source: "blocking"},
			DatasetWriter: source.DatasetWriter{Dataset: env.Store},
			started:       started,
			release:       release,
		}, nil
	})
	ts.sched = scheduler.New(registry, source.Env{Store: ts.store}, scheduler.Options{DefaultTenant: "default"})
	h := NewHandler(ts.store, ts.sched, nil, "default")
	ts.router = NewRouter(h, config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTL: time.Minute}, ts.cache)

	_, err := ts.sched.AddJob(context.Background(), scheduler.JobSpec{ID: "slow", Name: "Slow", ClientType: "blocking", IntervalMinutes: 5, Tenant: "default"})
	require.NoError(t, err)

	done := make(chan int)
	go func() {
		done <- ts.do(http.MethodPost, "/api/scheduler/jobs/slow/run", nil).Code
	}()
	<-started

	w := ts.do(http.MethodPost, "/api/scheduler/jobs/slow/run", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
}

type blockingClient struct {
	source.AircraftCodec
	source.DatasetWriter
	started chan struct{}
	release chan struct{}
}

func (c *blockingClient) Fetch(ctx context.Context) ([]map[string]any, error) {
	close(c.started)
	<-c.release
	return nil, nil
}

func TestSubscriptions(t *testing.T) {
	ts := newTestServer(t)
	endpoint := "https://fcm.googleapis.com/fcm/send/abc%3Adef"

	w := ts.do(http.MethodPut, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())

	w = ts.do(http.MethodPut, "/api/subscriptions", map[string]any{"endpoint": endpoint, "p256dh": "key", "auth": "secret"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = ts.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), ts.tenant.ID.String())

	w = ts.do(http.MethodGet, "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodDelete, "/api/subscriptions", map[string]any{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/vapid_public_key", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"BPublicKey"}`, w.Body.String())

	h := NewHandler(ts.store, ts.sched, nil, "default")
	r := gin.New()
	r.GET("/vapid", h.GetVAPIDPublicKey)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vapid", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
