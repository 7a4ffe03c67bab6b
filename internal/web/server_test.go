package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Geocene/firefinder/internal/fixture"
	"github.com/Geocene/firefinder/internal/logic"
	"github.com/Geocene/firefinder/internal/metrics"
	"github.com/Geocene/firefinder/internal/mqtt"
	"github.com/Geocene/firefinder/internal/pipeline"
	"github.com/Geocene/firefinder/internal/preprocess"
	"github.com/Geocene/firefinder/internal/status"
	"github.com/Geocene/firefinder/internal/store"
)

type testEnv struct {
	ts      *httptest.Server
	tracker *status.Tracker
	pub     *mqtt.FakePublisher
	store   *store.Store
}

func newTestServer(t *testing.T, detector map[string]any) *testEnv {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := status.NewTracker(start, status.Config{
		Broker:   "tcp://192.168.1.200:1883",
		HTTPAddr: ":8080",
		Params:   logic.DefaultParams(),
	})
	st, err := store.New(filepath.Join(t.TempDir(), "ff.db"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	m := metrics.New()
	pub := mqtt.NewFakePublisher()
	runner := pipeline.New(preprocess.DefaultOptions())
	runner.Store = st
	runner.Publisher = pub
	runner.Tracker = tr
	runner.Metrics = m

	srv := New(":0", Options{Tracker: tr, Runner: runner, Runs: st, Metrics: m, Detector: detector})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, tracker: tr, pub: pub, store: st}
}

func detectBody(t *testing.T, source string, params map[string]any, records []preprocess.Record) io.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"source":  source,
		"params":  params,
		"records": json.RawMessage(fixture.JSON(records)),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(body)
}

func postDetect(t *testing.T, env *testEnv, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(env.ts.URL+"/detect", "application/json", body)
	if err != nil {
		t.Fatalf("POST /detect: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestDetectEndpoint(t *testing.T) {
	env := newTestServer(t, nil)

	resp, data := postDetect(t, env, detectBody(t, "kitchen", nil, fixture.FireDay()))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", resp.StatusCode, data)
	}
	var dr DetectResponse
	if err := json.Unmarshal(data, &dr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dr.RunID == "" || dr.Source != "kitchen" {
		t.Errorf("unexpected run %q source %q", dr.RunID, dr.Source)
	}
	if len(dr.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(dr.Events))
	}
	want := EventJSON{Start: "2026-01-01T13:00:00Z", Stop: "2026-01-01T14:20:00Z", DurationMinutes: 80}
	if dr.Events[0] != want {
		t.Errorf("event: got %+v, want %+v", dr.Events[0], want)
	}
	if dr.Stats.Samples != 240 || dr.Stats.SampleIntervalSeconds != 60 || dr.Stats.Events != 1 {
		t.Errorf("unexpected stats %+v", dr.Stats)
	}
	if len(env.pub.Events) != 1 {
		t.Errorf("expected the event to be published, got %d", len(env.pub.Events))
	}
}

func TestDetectEmptyResultIsArray(t *testing.T) {
	env := newTestServer(t, nil)
	resp, data := postDetect(t, env, detectBody(t, "s", nil, fixture.Flat(30)))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d (%s)", resp.StatusCode, data)
	}
	if !strings.Contains(string(data), `"events":[]`) {
		t.Errorf("expected an empty events array, got %s", data)
	}
}

func TestDetectParamsOverrideConfig(t *testing.T) {
	// A configured temperature floor above the fire's peak suppresses it;
	// the request lifts it again.
	env := newTestServer(t, map[string]any{"min_event_temp": 200})

	_, data := postDetect(t, env, detectBody(t, "s", nil, fixture.FireDay()))
	var dr DetectResponse
	json.Unmarshal(data, &dr)
	if len(dr.Events) != 0 {
		t.Errorf("expected configured floor to remove the event, got %d", len(dr.Events))
	}

	_, data = postDetect(t, env, detectBody(t, "s", map[string]any{"min_event_temp": nil}, fixture.FireDay()))
	json.Unmarshal(data, &dr)
	if len(dr.Events) != 1 {
		t.Errorf("expected request to disable the floor, got %d events", len(dr.Events))
	}
}

func TestDetectCSV(t *testing.T) {
	env := newTestServer(t, nil)
	var csv strings.Builder
	csv.WriteString("timestamp,value,sensor_type_id\n")
	for _, r := range fixture.FireDay() {
		csv.WriteString(r.Timestamp.Format(time.RFC3339) + "," + strconv.FormatFloat(*r.Value, 'f', -1, 64) + ",1\n")
	}
	resp, err := http.Post(env.ts.URL+"/detect?source=csv-upload&min_event_sec=600", "text/csv; charset=utf-8", strings.NewReader(csv.String()))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d (%s)", resp.StatusCode, data)
	}
	var dr DetectResponse
	json.Unmarshal(data, &dr)
	if dr.Source != "csv-upload" || len(dr.Events) != 1 {
		t.Errorf("unexpected response %+v", dr)
	}
}

func TestDetectErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{"not json", `{`, http.StatusBadRequest, "decode request"},
		{"no records", `{"source":"s"}`, http.StatusBadRequest, "records are required"},
		{"bad record", `{"records":[{"timestamp":0,"value":"hot","sensor_type_id":1}]}`, http.StatusBadRequest, "invalid record"},
		{"bad param", `{"params":{"rise_rate":0},"records":[]}`, http.StatusBadRequest, "rise_rate"},
		{"too few samples", `{"records":[{"timestamp":0,"value":1,"sensor_type_id":1}]}`, http.StatusBadRequest, "fewer than 2 samples"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestServer(t, nil)
			resp, data := postDetect(t, env, strings.NewReader(tt.body))
			if resp.StatusCode != tt.code {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tt.code)
			}
			var ej ErrorJSON
			if err := json.Unmarshal(data, &ej); err != nil {
				t.Fatalf("expected JSON error body, got %s", data)
			}
			if !strings.Contains(ej.Error, tt.want) {
				t.Errorf("error: got %q, want it to mention %q", ej.Error, tt.want)
			}
		})
	}
}

func TestDetectBodyTooLarge(t *testing.T) {
	tr := status.NewTracker(time.Now(), status.Config{})
	srv := New(":0", Options{Tracker: tr, Runner: pipeline.New(preprocess.DefaultOptions()), MaxBody: 16})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/detect", strings.NewReader(strings.Repeat("x", 64))))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status: got %d, want 413", rec.Code)
	}
}

func TestDetectMethodNotAllowed(t *testing.T) {
	env := newTestServer(t, nil)
	resp, err := http.Get(env.ts.URL + "/detect")
	if err != nil {
		t.Fatalf("GET /detect: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestRunsEndpoints(t *testing.T) {
	env := newTestServer(t, nil)
	_, data := postDetect(t, env, detectBody(t, "kitchen", nil, fixture.FireDay()))
	var dr DetectResponse
	json.Unmarshal(data, &dr)

	resp, err := http.Get(env.ts.URL + "/runs?limit=5")
	if err != nil {
		t.Fatalf("GET /runs: %v", err)
	}
	var runs RunsJSON
	json.NewDecoder(resp.Body).Decode(&runs)
	resp.Body.Close()
	if len(runs.Runs) != 1 || runs.Runs[0].ID != dr.RunID || runs.Runs[0].Stats.Events != 1 {
		t.Fatalf("unexpected runs %+v", runs)
	}

	resp, err = http.Get(env.ts.URL + "/runs/" + dr.RunID)
	if err != nil {
		t.Fatalf("GET /runs/id: %v", err)
	}
	var detail RunDetailJSON
	json.NewDecoder(resp.Body).Decode(&detail)
	resp.Body.Close()
	if detail.ID != dr.RunID || len(detail.Events) != 1 || detail.Events[0].DurationMinutes != 80 {
		t.Errorf("unexpected run detail %+v", detail)
	}
	if detail.Params.MinEventSec != logic.DefaultMinEventSec {
		t.Errorf("expected stored params, got %+v", detail.Params)
	}

	resp, _ = http.Get(env.ts.URL + "/runs/unknown")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown run: got %d, want 404", resp.StatusCode)
	}

	resp, _ = http.Get(env.ts.URL + "/runs?limit=zero")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit: got %d, want 400", resp.StatusCode)
	}
}

func TestDeleteRun(t *testing.T) {
	env := newTestServer(t, nil)
	_, data := postDetect(t, env, detectBody(t, "kitchen", nil, fixture.FireDay()))
	var dr DetectResponse
	json.Unmarshal(data, &dr)

	del := func(id string) int {
		req, _ := http.NewRequest(http.MethodDelete, env.ts.URL+"/runs/"+id, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("DELETE /runs/%s: %v", id, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if code := del(dr.RunID); code != http.StatusNoContent {
		t.Fatalf("delete: got %d, want 204", code)
	}
	if _, err := env.store.GetRun(context.Background(), dr.RunID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected run removed, got %v", err)
	}
	resp, _ := http.Get(env.ts.URL + "/runs/" + dr.RunID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted run: got %d, want 404", resp.StatusCode)
	}
	if code := del(dr.RunID); code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", code)
	}
}

func TestRunsDisabledWithoutStore(t *testing.T) {
	srv := New(":0", Options{Tracker: status.NewTracker(time.Now(), status.Config{})})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/runs"},
		{http.MethodGet, "/runs/abc"},
		{http.MethodDelete, "/runs/abc"},
	} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: got %d, want 404", tc.method, tc.path, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/metrics without metrics: got %d, want 404", rec.Code)
	}
}

func TestJSONEndpoint(t *testing.T) {
	env := newTestServer(t, nil)
	env.tracker.SetMQTTConnected(true)
	postDetect(t, env, detectBody(t, "kitchen", nil, fixture.FireDay()))

	resp, err := http.Get(env.ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if !sj.Status.MQTT.Connected || sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("unexpected mqtt %+v", sj.Status.MQTT)
	}
	if sj.Status.Totals.Runs != 1 || sj.Status.Totals.Events != 1 {
		t.Errorf("unexpected totals %+v", sj.Status.Totals)
	}
	if sj.Status.LastRun == nil || sj.Status.LastRun.Source != "kitchen" {
		t.Errorf("unexpected last run %+v", sj.Status.LastRun)
	}
}

func TestStatusWithoutTracker(t *testing.T) {
	srv := New(":0", Options{})
	for _, path := range []string{"/", "/index.json"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: got %d, want 200", path, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/index.json", nil))
	var sj status.StatusJSON
	if err := json.NewDecoder(rec.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Totals.Runs != 0 || sj.Status.LastRun != nil {
		t.Errorf("expected empty status, got %+v", sj.Status)
	}
}

func TestHTMLEndpoint(t *testing.T) {
	env := newTestServer(t, nil)
	postDetect(t, env, detectBody(t, "kitchen-stove", nil, fixture.FireDay()))

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(env.ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: got %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("Content-Type: got %q, want text/html", ct)
		}
		for _, want := range []string{"Firefinder", "kitchen-stove", "Min event temp</th><td>off"} {
			if !strings.Contains(string(body), want) {
				t.Errorf("%s: expected page to contain %q", path, want)
			}
		}
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	env := newTestServer(t, nil)
	resp, err := http.Get(env.ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t, nil)
	postDetect(t, env, detectBody(t, "s", nil, fixture.FireDay()))

	resp, err := http.Get(env.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		`firefinder_runs_total{result="ok"} 1`,
		`firefinder_events_total 1`,
		`firefinder_http_requests_total{route="/detect",status="200"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected metrics to contain %q", want)
		}
	}
}

func TestUptimeFormat(t *testing.T) {
	var buf bytes.Buffer
	renderHTML(&buf, status.Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if !strings.Contains(buf.String(), "1d 3h 4m 5s") {
		t.Error("expected uptime 1d 3h 4m 5s")
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{5*time.Minute + 3*time.Second, "5m 3s"},
		{2*time.Hour + 30*time.Second, "2h 0m 30s"},
		{27*time.Hour + 4*time.Minute + 5*time.Second + 900*time.Millisecond, "1d 3h 4m 5s"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v): got %q, want %q", tt.d, got, tt.want)
		}
	}
}
