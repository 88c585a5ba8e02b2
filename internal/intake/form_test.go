package intake

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/civiceye/civiceye/internal/geocode"
	"github.com/civiceye/civiceye/internal/location"
	"github.com/civiceye/civiceye/internal/location/exiftest"
	"github.com/civiceye/civiceye/internal/logging"
	"github.com/civiceye/civiceye/internal/models"
	"github.com/civiceye/civiceye/internal/report"
)

var potholeAnalysis = models.AnalysisResult{
	IssueType:           models.IssueTypePothole,
	Severity:            models.SeverityHigh,
	Confidence:          0.92,
	Description:         "Deep pothole",
	RecommendedAction:   "Fill and compact",
	SuggestedDepartment: "Public Works",
	SLAEstimate:         "48 hours",
}

// fakeClassifier returns result, optionally blocking on gate until released.
type fakeClassifier struct {
	mu       sync.Mutex
	result   models.AnalysisResult
	err      error
	gate     chan struct{}
	started  chan struct{}
	lastHint string
}

func (c *fakeClassifier) Name() string { return "fake" }

func (c *fakeClassifier) Classify(ctx context.Context, _ models.Image, hint string) (models.AnalysisResult, error) {
	c.mu.Lock()
	c.lastHint = hint
	gate, started := c.gate, c.started
	c.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return models.AnalysisResult{}, ctx.Err()
		}
	}
	return c.result, c.err
}

type fakeGeocoder struct {
	addr geocode.Address
	err  error
}

func (g *fakeGeocoder) Name() string { return "fake" }

func (g *fakeGeocoder) ReverseGeocode(context.Context, float64, float64) (geocode.Address, error) {
	return g.addr, g.err
}

type countingRecorder struct {
	mu          sync.Mutex
	analyses    map[string]int
	submissions int
}

func (r *countingRecorder) ObserveAnalysis(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.analyses == nil {
		r.analyses = map[string]int{}
	}
	r.analyses[outcome]++
}

func (r *countingRecorder) ObserveSubmission(string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions++
}

type harness struct {
	form    *Form
	store   *report.Store
	locator *location.PushLocator
	cls     *fakeClassifier
	rec     *countingRecorder
}

func newHarness(t *testing.T, cfg Config, geo geocode.Geocoder) *harness {
	t.Helper()
	logger := logging.Discard()
	locator := location.NewPushLocator()
	resolver := location.NewResolver(locator, time.Second, logger)
	h := &harness{
		store:   report.NewStore(),
		locator: locator,
		cls:     &fakeClassifier{result: potholeAnalysis},
		rec:     &countingRecorder{},
	}
	h.form = NewForm(cfg, Deps{
		Resolver:   resolver,
		Locator:    locator,
		Classifier: h.cls,
		Geocoder:   geo,
		Builder:    report.NewBuilder(),
		Store:      h.store,
		Recorder:   h.rec,
		Logger:     logger,
	})
	t.Cleanup(h.form.Close)
	return h
}

func waitStatus(t *testing.T, f *Form, want location.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.State().Location.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("location status = %s, want %s", f.State().Location.Status, want)
}

func TestForm_GeotaggedPhotoEndToEnd(t *testing.T) {
	geo := &fakeGeocoder{addr: geocode.Address{Address: "Liberty Ave, Pittsburgh", MapsURL: "https://maps.example/p"}}
	h := newHarness(t, Config{}, geo)

	st, err := h.form.Upload(exiftest.JPEG(exiftest.Pittsburgh))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if st.Location.Status != location.StatusExtracted {
		t.Fatalf("location status = %s, want extracted", st.Location.Status)
	}
	if st.Image == nil || st.Image.MIMEType != "image/jpeg" || st.Image.SHA256 == "" {
		t.Errorf("unexpected image info %+v", st.Image)
	}

	if _, err := h.form.Analyze(context.Background()); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if h.cls.lastHint != "Coordinates: 40.446111, -79.982222" {
		t.Errorf("classifier hint = %q", h.cls.lastHint)
	}
	if !h.form.State().CanSubmit {
		t.Fatal("form should be submittable")
	}

	r, err := h.form.Submit()
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if r.IssueType != models.IssueTypePothole || r.Severity != models.SeverityHigh || r.Status != models.ReportStatusPending {
		t.Errorf("unexpected report %+v", r)
	}
	if math.Abs(r.Location.Latitude-40.446111) > 1e-6 || math.Abs(r.Location.Longitude-(-79.982222)) > 1e-6 {
		t.Errorf("coordinates = (%f, %f)", r.Location.Latitude, r.Location.Longitude)
	}
	if r.Location.Address != "Liberty Ave, Pittsburgh" || r.Location.MapsURL != "https://maps.example/p" {
		t.Errorf("address not merged: %+v", r.Location)
	}
	if r.Location.Accuracy == nil || *r.Location.Accuracy != models.ExifAccuracy {
		t.Errorf("accuracy = %v", r.Location.Accuracy)
	}

	if h.store.Len() != 1 {
		t.Errorf("store has %d reports", h.store.Len())
	}
	st = h.form.State()
	if st.Image != nil || st.Analysis != nil {
		t.Error("form not reset after submit")
	}
	if st.Location.Status != location.StatusLocating {
		t.Errorf("location status after submit = %s, want locating", st.Location.Status)
	}
	if h.rec.submissions != 1 || h.rec.analyses["success"] != 1 {
		t.Errorf("recorder = %+v", h.rec)
	}
}

func TestForm_UploadValidation(t *testing.T) {
	h := newHarness(t, Config{MaxImageBytes: 1024}, nil)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrUnsupportedImage},
		{"text", []byte("hello, this is not an image"), ErrUnsupportedImage},
		{"gif", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"), ErrUnsupportedImage},
		{"too large", append([]byte{0xff, 0xd8, 0xff}, bytes.Repeat([]byte{0}, 2048)...), ErrImageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.form.Upload(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("Upload() = %v, want %v", err, tt.want)
			}
			if h.form.State().Image != nil {
				t.Error("invalid upload changed the form")
			}
		})
	}

	if _, err := h.form.Upload(exiftest.PlainPNG()); err != nil {
		t.Errorf("PNG upload rejected: %v", err)
	}
}

func TestForm_StaleAnalysisDiscarded(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.cls.gate = make(chan struct{})
	h.cls.started = make(chan struct{})

	if _, err := h.form.Upload(exiftest.JPEG(exiftest.Pittsburgh)); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.form.Analyze(context.Background())
		done <- err
	}()
	<-h.cls.started

	if !h.form.State().Analyzing {
		t.Error("form should report analyzing")
	}
	if _, err := h.form.Analyze(context.Background()); !errors.Is(err, ErrAnalysisInFlight) {
		t.Errorf("concurrent Analyze() = %v, want ErrAnalysisInFlight", err)
	}

	// Replacing the image supersedes the running analysis.
	h.cls.mu.Lock()
	h.cls.gate, h.cls.started = nil, nil
	h.cls.mu.Unlock()
	if _, err := h.form.Upload(exiftest.PlainJPEG()); err != nil {
		t.Fatalf("second Upload() error = %v", err)
	}

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("stale Analyze() = %v, want ErrSuperseded", err)
	}
	st := h.form.State()
	if st.Analysis != nil || st.Analyzing {
		t.Errorf("stale result mutated the form: %+v", st)
	}
	if st.Image == nil {
		t.Error("new image lost")
	}
}

func TestForm_SubmitRequiresLocation(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	if _, err := h.form.Upload(exiftest.PlainJPEG()); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	h.form.DenyDeviceLocation()
	waitStatus(t, h.form, location.StatusError)

	if _, err := h.form.Analyze(context.Background()); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if h.cls.lastHint != "" {
		t.Errorf("hint without location = %q", h.cls.lastHint)
	}
	if h.form.State().CanSubmit {
		t.Error("form should not be submittable without location")
	}
	if _, err := h.form.Submit(); !errors.Is(err, ErrLocationRequired) {
		t.Fatalf("Submit() = %v, want ErrLocationRequired", err)
	}
	if h.store.Len() != 0 {
		t.Error("report stored without location")
	}

	// A device fix after the failure recovers the cycle.
	if err := h.form.ReportDeviceFix(location.Fix{Latitude: 12.5, Longitude: -3.25, Accuracy: 20}); err != nil {
		t.Fatalf("ReportDeviceFix() error = %v", err)
	}
	waitStatus(t, h.form, location.StatusFound)

	r, err := h.form.Submit()
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if r.Location.Latitude != 12.5 || *r.Location.Accuracy != 20 {
		t.Errorf("unexpected location %+v", r.Location)
	}
}

func TestForm_AllowUnlocatedRecordsZeroCoordinates(t *testing.T) {
	h := newHarness(t, Config{AllowUnlocated: true}, nil)

	h.form.Upload(exiftest.PlainJPEG())
	h.form.DenyDeviceLocation()
	waitStatus(t, h.form, location.StatusError)
	if _, err := h.form.Analyze(context.Background()); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	r, err := h.form.Submit()
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if r.Location.Latitude != 0 || r.Location.Longitude != 0 {
		t.Errorf("expected (0, 0), got %+v", r.Location)
	}
}

func TestForm_GeocodeFailureDegrades(t *testing.T) {
	h := newHarness(t, Config{}, &fakeGeocoder{err: errors.New("quota exceeded")})

	h.form.Upload(exiftest.JPEG(exiftest.Pittsburgh))
	if _, err := h.form.Analyze(context.Background()); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	r, err := h.form.Submit()
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if r.Location.Address != "" {
		t.Errorf("address = %q, want empty", r.Location.Address)
	}
}

func TestForm_ClassifierFailure(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.cls.err = errors.New("model unavailable")

	h.form.Upload(exiftest.JPEG(exiftest.Pittsburgh))
	if _, err := h.form.Analyze(context.Background()); err == nil {
		t.Fatal("expected analysis error")
	}
	st := h.form.State()
	if st.Analysis != nil || st.Analyzing || st.Image == nil {
		t.Errorf("unexpected state after failure: %+v", st)
	}
	if _, err := h.form.Submit(); !errors.Is(err, ErrNoAnalysis) {
		t.Errorf("Submit() = %v, want ErrNoAnalysis", err)
	}
	if h.rec.analyses["failed"] != 1 {
		t.Errorf("recorder = %+v", h.rec.analyses)
	}

	// The user can retry.
	h.cls.err = nil
	if _, err := h.form.Analyze(context.Background()); err != nil {
		t.Fatalf("retry Analyze() error = %v", err)
	}
}

func TestForm_DiscardAndRemove(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	if _, err := h.form.Analyze(context.Background()); !errors.Is(err, ErrNoImage) {
		t.Errorf("Analyze() without image = %v", err)
	}

	h.form.Upload(exiftest.JPEG(exiftest.Pittsburgh))
	h.form.Analyze(context.Background())

	st := h.form.Discard()
	if st.Analysis != nil || st.Image == nil {
		t.Errorf("Discard() state = %+v", st)
	}

	st = h.form.RemoveImage()
	if st.Image != nil {
		t.Error("image not removed")
	}
	if _, err := h.form.Submit(); !errors.Is(err, ErrNoImage) {
		t.Errorf("Submit() = %v, want ErrNoImage", err)
	}
}

func TestForm_ForgedExifCountIsNotAGeotag(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	st, err := h.form.Upload(exiftest.JPEGWithLongitudeCount(exiftest.Pittsburgh, 0x20000003))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if st.Location.Status == location.StatusExtracted || st.Location.Location != nil {
		t.Fatalf("forged metadata produced a location: %+v", st.Location)
	}
	if st.Image == nil {
		t.Fatal("image should still be accepted")
	}
}
