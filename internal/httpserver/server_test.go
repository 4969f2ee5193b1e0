package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/loglink/internal/model"
	"github.com/tinytelemetry/loglink/internal/recorder"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *recorder.Recorder, *gin.Engine) {
	t.Helper()
	rec, err := recorder.New(recorder.Config{Location: model.LocationServer, Ranks: 2, Verbosity: model.VerbosityInfo})
	if err != nil {
		t.Fatalf("recorder.New: %v", err)
	}
	for i, msg := range []string{"boot", "ready"} {
		u := float64(i + 1)
		if _, err := rec.Record(model.Entry{Rank: 1, Category: model.CategoryApplication, Message: msg, Uptime: &u}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	srv := NewServer("", rec)
	return srv, rec, srv.routes()
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	_, _, r := newTestServer(t)

	w := get(r, "/api/health")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health status = %v, want ok", body["status"])
	}
	if body["location"] != "server" {
		t.Errorf("location = %v, want server", body["location"])
	}
	if body["line_count"] != float64(2) {
		t.Errorf("line_count = %v, want 2", body["line_count"])
	}
}

func TestHealthEndpoint_WrongMethod(t *testing.T) {
	_, _, r := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// Gin returns 405 for method not allowed when a route exists but not for this method
	if w.Code != http.StatusMethodNotAllowed && w.Code != http.StatusNotFound {
		t.Errorf("health POST status = %d, want 405 or 404", w.Code)
	}
}

func TestRecorderEndpoint(t *testing.T) {
	_, rec, r := newTestServer(t)
	if err := rec.SetCategoryVerbosity(t.Context(), model.CategoryRendering, model.VerbosityTrace); err != nil {
		t.Fatal(err)
	}

	w := get(r, "/api/recorder")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var st model.RecorderStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Location != model.LocationServer || st.RankCount != 2 || st.Verbosity != model.VerbosityInfo {
		t.Errorf("status = %+v", st)
	}
	if st.Overrides[model.CategoryRendering] != model.VerbosityTrace {
		t.Errorf("overrides = %v", st.Overrides)
	}
}

func TestLogEndpoint(t *testing.T) {
	_, _, r := newTestServer(t)

	tests := []struct {
		name     string
		path     string
		wantCode int
		contains string
	}{
		{"buffered", "/api/logs/1", http.StatusOK, "ready"},
		{"starting", "/api/logs/1?starting=true", http.StatusOK, "boot"},
		{"empty rank", "/api/logs/0", http.StatusOK, ""},
		{"out of range", "/api/logs/5", http.StatusNotFound, "invalid rank"},
		{"not a number", "/api/logs/abc", http.StatusBadRequest, "integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, tt.path)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("body %q does not contain %q", w.Body.String(), tt.contains)
			}
		})
	}

	w := get(r, "/api/logs/1?starting=true")
	if strings.Contains(w.Body.String(), "ready") {
		t.Errorf("starting log should hold only the opening record, got %q", w.Body.String())
	}
}

func TestLogEndpoint_StaleRecorder(t *testing.T) {
	_, rec, r := newTestServer(t)
	rec.Close()

	w := get(r, "/api/logs/1")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
