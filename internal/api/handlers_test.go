package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/civiceye/civiceye/internal/classifier"
	"github.com/civiceye/civiceye/internal/location/exiftest"
	"github.com/civiceye/civiceye/internal/logging"
	"github.com/civiceye/civiceye/internal/models"
	"github.com/civiceye/civiceye/internal/report"
	"github.com/civiceye/civiceye/internal/retry"
	"github.com/civiceye/civiceye/internal/review"
	"github.com/civiceye/civiceye/internal/session"
)

const testEvidenceBase = "https://evidence.example/"

type stubClassifier struct {
	result models.AnalysisResult
	err    error
}

func (s stubClassifier) Name() string { return "stub" }

func (s stubClassifier) Classify(context.Context, models.Image, string) (models.AnalysisResult, error) {
	return s.result, s.err
}

var pothole = models.AnalysisResult{
	IssueType:           models.IssueTypePothole,
	Severity:            models.SeverityHigh,
	Confidence:          0.92,
	Description:         "Deep pothole in the curb lane",
	RecommendedAction:   "Fill and compact",
	SuggestedDepartment: "Public Works",
	SLAEstimate:         "48 hours",
}

type testServer struct {
	t     *testing.T
	mux   *http.ServeMux
	token string
}

func newTestServer(t *testing.T, cls classifier.Classifier) *testServer {
	t.Helper()
	sessions, err := session.NewManager(session.Config{
		JWTSecret:     "test-secret",
		TTL:           time.Hour,
		DeviceTimeout: time.Second,
	}, session.Deps{
		Classifier:  cls,
		Dispatcher:  review.SimulatedDispatcher{},
		RetryPolicy: retry.Policy{},
		Logger:      logging.Discard(),
	})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	t.Cleanup(sessions.Close)

	mux := http.NewServeMux()
	SetupRoutes(mux, NewHandler(sessions, testEvidenceBase, 0, logging.Discard()), sessions)

	ts := &testServer{t: t, mux: mux}
	var login LoginResponse
	ts.do(http.MethodPost, "/api/session", "application/json", strings.NewReader(`{"operator":"dana"}`), http.StatusCreated, &login)
	if login.Token == "" {
		t.Fatal("login returned no token")
	}
	ts.token = login.Token
	return ts
}

func (ts *testServer) do(method, path, contentType string, body *strings.Reader, want int, out any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, body)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return ts.send(req, want, out)
}

func (ts *testServer) send(req *http.Request, want int, out any) *httptest.ResponseRecorder {
	ts.t.Helper()
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	rr := httptest.NewRecorder()
	ts.mux.ServeHTTP(rr, req)
	if rr.Code != want {
		ts.t.Fatalf("%s %s: expected %d, got %d: %s", req.Method, req.URL.Path, want, rr.Code, rr.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), out); err != nil {
			ts.t.Fatalf("%s %s: decode response: %v", req.Method, req.URL.Path, err)
		}
	}
	return rr
}

func (ts *testServer) uploadMultipart(data []byte, want int) {
	ts.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "photo.jpg")
	if err != nil {
		ts.t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		ts.t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		ts.t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/intake/image", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	ts.send(req, want, nil)
}

func TestReportLifecycle(t *testing.T) {
	ts := newTestServer(t, stubClassifier{result: pothole})
	photo := exiftest.JPEG(exiftest.Pittsburgh)

	ts.uploadMultipart(photo, http.StatusOK)

	var analyzed AnalyzeResponse
	ts.do(http.MethodPost, "/api/intake/analyze", "", nil, http.StatusOK, &analyzed)
	if analyzed.Analysis.IssueType != models.IssueTypePothole || !analyzed.State.CanSubmit {
		t.Fatalf("unexpected analysis response: %+v", analyzed)
	}
	if analyzed.State.Location.Location == nil {
		t.Fatal("expected location extracted from photo metadata")
	}

	var rep models.CivicReport
	ts.do(http.MethodPost, "/api/intake/submit", "", nil, http.StatusCreated, &rep)
	if rep.Status != models.ReportStatusPending || rep.Severity != models.SeverityHigh {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if fmt.Sprintf("%.6f,%.6f", rep.Location.Latitude, rep.Location.Longitude) != "40.446111,-79.982222" {
		t.Fatalf("unexpected coordinates: %+v", rep.Location)
	}

	var list ReportsResponse
	ts.do(http.MethodGet, "/api/reports", "", nil, http.StatusOK, &list)
	if list.Count != 1 || list.Reports[0].ID != rep.ID {
		t.Fatalf("unexpected report list: %+v", list)
	}

	var export report.AuthorityExport
	ts.do(http.MethodGet, "/api/reports/"+rep.ID+"/export", "", nil, http.StatusOK, &export)
	if export.Severity != "high" || export.Evidence[0] != testEvidenceBase+rep.ID+".jpg" {
		t.Fatalf("unexpected export: %+v", export)
	}

	rr := ts.do(http.MethodGet, "/api/reports/"+rep.ID+"/image", "", nil, http.StatusOK, nil)
	if !bytes.Equal(rr.Body.Bytes(), photo) {
		t.Fatal("image endpoint returned different bytes")
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("unexpected image content type %q", ct)
	}

	var rv review.State
	ts.do(http.MethodPost, "/api/review/select", "application/json", strings.NewReader(`{"id":"`+rep.ID+`"}`), http.StatusOK, &rv)
	if len(rv.AllowedActions) != 2 {
		t.Fatalf("expected 2 allowed actions for pending report, got %v", rv.AllowedActions)
	}

	var action ActionResponse
	ts.do(http.MethodPost, "/api/review/action", "application/json", strings.NewReader(`{"action":"dispatch"}`), http.StatusOK, &action)
	if action.Report.Status != models.ReportStatusDispatched || action.Review.Selected != nil {
		t.Fatalf("unexpected action response: %+v", action)
	}

	var stats report.Stats
	ts.do(http.MethodGet, "/api/stats", "", nil, http.StatusOK, &stats)
	if stats.Total != 1 || stats.Pending != 0 || stats.ByStatus[models.ReportStatusDispatched] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	ts.do(http.MethodGet, "/api/reports?status=dispatched", "", nil, http.StatusOK, &list)
	if list.Count != 1 {
		t.Fatalf("expected 1 dispatched report, got %d", list.Count)
	}
}

func TestIntakeErrors(t *testing.T) {
	ts := newTestServer(t, stubClassifier{result: pothole})

	var e ErrorResponse
	ts.do(http.MethodPost, "/api/intake/image", "text/plain", strings.NewReader("not an image"), http.StatusBadRequest, &e)
	if e.Error == "" {
		t.Fatal("expected an error message")
	}

	ts.do(http.MethodPost, "/api/intake/analyze", "", nil, http.StatusConflict, nil)
	ts.do(http.MethodPost, "/api/intake/submit", "", nil, http.StatusConflict, nil)
	ts.do(http.MethodPost, "/api/intake/location", "application/json", strings.NewReader(`{"latitude":120,"longitude":0}`), http.StatusBadRequest, nil)
	ts.do(http.MethodGet, "/api/reports/missing", "", nil, http.StatusNotFound, nil)
	ts.do(http.MethodPost, "/api/review/action", "application/json", strings.NewReader(`{"action":"archive"}`), http.StatusBadRequest, nil)
	ts.do(http.MethodPost, "/api/review/action", "application/json", strings.NewReader(`{"action":"REJECT"}`), http.StatusConflict, nil)
}

func TestRawBodyUploadAndLocationRequired(t *testing.T) {
	ts := newTestServer(t, stubClassifier{result: pothole})

	ts.do(http.MethodPost, "/api/intake/location", "application/json", strings.NewReader(`{"denied":true}`), http.StatusAccepted, nil)
	ts.do(http.MethodPost, "/api/intake/image", "image/jpeg", strings.NewReader(string(exiftest.PlainJPEG())), http.StatusOK, nil)
	ts.do(http.MethodPost, "/api/intake/analyze", "", nil, http.StatusOK, nil)
	ts.do(http.MethodPost, "/api/intake/submit", "", nil, http.StatusUnprocessableEntity, nil)
}

func TestClassifierFailureIsRetryable(t *testing.T) {
	cls := stubClassifier{err: &classifier.Error{Provider: "stub", Transient: true, Err: errors.New("upstream 503")}}
	ts := newTestServer(t, cls)

	ts.uploadMultipart(exiftest.JPEG(exiftest.Pittsburgh), http.StatusOK)

	var e ErrorResponse
	ts.do(http.MethodPost, "/api/intake/analyze", "", nil, http.StatusBadGateway, &e)
	if !e.Retryable {
		t.Fatalf("expected retryable error, got %+v", e)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, stubClassifier{result: pothole})
	token := ts.token

	ts.token = ""
	ts.do(http.MethodGet, "/api/intake", "", nil, http.StatusUnauthorized, nil)

	ts.token = token
	ts.do(http.MethodDelete, "/api/session", "", nil, http.StatusNoContent, nil)
	ts.do(http.MethodGet, "/api/reports", "", nil, http.StatusUnauthorized, nil)
}

func TestValidateLocationRequest(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	tests := []struct {
		name    string
		req     LocationRequest
		wantErr string
	}{
		{"valid", LocationRequest{Latitude: f(40.44), Longitude: f(-79.98), Accuracy: f(12)}, ""},
		{"denied", LocationRequest{Denied: true}, ""},
		{"missing latitude", LocationRequest{Longitude: f(1)}, "latitude"},
		{"missing longitude", LocationRequest{Latitude: f(1)}, "longitude"},
		{"latitude range", LocationRequest{Latitude: f(-91), Longitude: f(0)}, "latitude"},
		{"longitude range", LocationRequest{Latitude: f(0), Longitude: f(181)}, "longitude"},
		{"negative accuracy", LocationRequest{Latitude: f(0), Longitude: f(0), Accuracy: f(-1)}, "accuracy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateLocationRequest(tt.req)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.wantErr {
				t.Fatalf("expected validation error on %s, got %v", tt.wantErr, err)
			}
		})
	}
}
