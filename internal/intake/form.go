// Package intake runs the citizen upload cycle: photo, location, analysis,
// confirmation.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/civiceye/civiceye/internal/classifier"
	"github.com/civiceye/civiceye/internal/geocode"
	"github.com/civiceye/civiceye/internal/location"
	"github.com/civiceye/civiceye/internal/models"
	"github.com/civiceye/civiceye/internal/report"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnsupportedImage = errors.New("only JPEG and PNG images are accepted")
	ErrImageTooLarge    = errors.New("image exceeds the size limit")
	ErrNoImage          = errors.New("no image uploaded")
	ErrNoAnalysis       = errors.New("image has not been analyzed")
	ErrAnalysisInFlight = errors.New("analysis already in progress")
	ErrSuperseded       = errors.New("analysis superseded by a newer upload")
	ErrLocationRequired = errors.New("location is required before submitting")
	ErrNoPushLocator    = errors.New("device location is not accepted from the client")
)

// DefaultMaxImageBytes is the upload cap when none is configured.
const DefaultMaxImageBytes = 5 << 20

// Recorder observes intake outcomes. metrics.Pipeline implements it.
type Recorder interface {
	ObserveAnalysis(outcome string, d time.Duration)
	ObserveSubmission(issueType, severity string)
}

// Config holds intake policy.
type Config struct {
	MaxImageBytes  int
	AllowUnlocated bool
}

// Deps are the collaborators of a Form. Geocoder, Locator and Recorder may be nil.
type Deps struct {
	Resolver   *location.Resolver
	Locator    *location.PushLocator
	Classifier classifier.Classifier
	Geocoder   geocode.Geocoder
	Builder    *report.Builder
	Store      *report.Store
	Recorder   Recorder
	Logger     *slog.Logger
}

// State is a render snapshot of the form.
type State struct {
	Image     *models.Image          `json:"image,omitempty"`
	Analyzing bool                   `json:"analyzing"`
	Analysis  *models.AnalysisResult `json:"analysis,omitempty"`
	Location  location.Snapshot      `json:"location"`
	CanSubmit bool                   `json:"can_submit"`
}

// Form is one session's upload cycle. Each new image starts a new cycle;
// work started for an older cycle is cancelled and its results dropped.
type Form struct {
	cfg  Config
	deps Deps

	mu        sync.Mutex
	image     *models.Image
	analysis  *models.AnalysisResult
	analyzing bool
	cycle     uint64
	cancel    context.CancelFunc
}

func NewForm(cfg Config, deps Deps) *Form {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = DefaultMaxImageBytes
	}
	return &Form{cfg: cfg, deps: deps}
}

// Open starts the initial device location request.
func (f *Form) Open() {
	f.deps.Resolver.Init()
}

// Upload validates data and makes it the current image. Invalid input
// leaves the form untouched.
func (f *Form) Upload(data []byte) (State, error) {
	if len(data) == 0 {
		return State{}, ErrUnsupportedImage
	}
	if len(data) > f.cfg.MaxImageBytes {
		return State{}, fmt.Errorf("%w: %d bytes, limit %d", ErrImageTooLarge, len(data), f.cfg.MaxImageBytes)
	}
	mt := mimetype.Detect(data)
	if !mt.Is("image/jpeg") && !mt.Is("image/png") {
		return State{}, fmt.Errorf("%w: got %s", ErrUnsupportedImage, mt.String())
	}

	sum := sha256.Sum256(data)
	img := &models.Image{
		Data:     append([]byte(nil), data...),
		MIMEType: mt.String(),
		Size:     len(data),
		SHA256:   hex.EncodeToString(sum[:]),
	}

	f.mu.Lock()
	f.newCycleLocked()
	f.image = img
	status := f.deps.Resolver.ApplyImage(img.Data)
	f.mu.Unlock()

	f.deps.Logger.Info("image uploaded", "mime_type", img.MIMEType, "size", img.Size, "location_status", status)
	return f.State(), nil
}

// RemoveImage discards the image and analysis and restarts location.
func (f *Form) RemoveImage() State {
	f.mu.Lock()
	f.newCycleLocked()
	f.image = nil
	f.deps.Resolver.Reset()
	f.mu.Unlock()
	return f.State()
}

// Discard drops the analysis and keeps the image.
func (f *Form) Discard() State {
	f.mu.Lock()
	img := f.image
	f.newCycleLocked()
	f.image = img
	f.mu.Unlock()
	return f.State()
}

// ReportDeviceFix feeds a client-side position into the resolver.
func (f *Form) ReportDeviceFix(fix location.Fix) error {
	if f.deps.Locator == nil {
		return ErrNoPushLocator
	}
	f.deps.Locator.Push(fix)
	f.retryIfIdle()
	return nil
}

// DenyDeviceLocation records that the user refused location access.
func (f *Form) DenyDeviceLocation() error {
	if f.deps.Locator == nil {
		return ErrNoPushLocator
	}
	f.deps.Locator.Deny()
	return nil
}

// RetryLocation re-requests the device position after a failure.
func (f *Form) RetryLocation() error {
	return f.deps.Resolver.Retry()
}

func (f *Form) retryIfIdle() {
	switch f.deps.Resolver.Snapshot().Status {
	case location.StatusIdle, location.StatusError:
		_ = f.deps.Resolver.Retry()
	}
}

// Analyze classifies the current image and, when coordinates are known,
// reverse geocodes them concurrently. Geocoding failures only mean no
// address. A newer upload while this runs yields ErrSuperseded.
func (f *Form) Analyze(ctx context.Context) (models.AnalysisResult, error) {
	f.mu.Lock()
	if f.image == nil {
		f.mu.Unlock()
		return models.AnalysisResult{}, ErrNoImage
	}
	if f.analyzing {
		f.mu.Unlock()
		return models.AnalysisResult{}, ErrAnalysisInFlight
	}
	img := *f.image
	cycle := f.cycle
	actx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.analyzing = true
	loc := f.deps.Resolver.Location()
	f.mu.Unlock()
	defer cancel()

	start := time.Now()
	var (
		result models.AnalysisResult
		addr   *geocode.Address
	)

	g, gctx := errgroup.WithContext(actx)
	g.Go(func() error {
		r, err := f.deps.Classifier.Classify(gctx, img, classifier.LocationHint(loc))
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if loc != nil && f.deps.Geocoder != nil {
		g.Go(func() error {
			a, err := f.deps.Geocoder.ReverseGeocode(gctx, loc.Latitude, loc.Longitude)
			if err != nil {
				f.deps.Logger.Warn("reverse geocode failed", "geocoder", f.deps.Geocoder.Name(), "error", err)
				return nil
			}
			addr = &a
			return nil
		})
	}
	err := g.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()

	if cycle != f.cycle {
		f.observe("superseded", time.Since(start))
		return models.AnalysisResult{}, ErrSuperseded
	}
	f.analyzing = false
	f.cancel = nil

	if err != nil {
		f.observe("failed", time.Since(start))
		f.deps.Logger.Warn("analysis failed", "error", err)
		return models.AnalysisResult{}, fmt.Errorf("analyze image: %w", err)
	}

	f.analysis = &result
	if addr != nil {
		f.deps.Resolver.Enrich(*loc, addr.Address, addr.MapsURL)
	}
	f.observe("success", time.Since(start))
	f.deps.Logger.Info("analysis complete",
		"issue_type", result.IssueType,
		"severity", result.Severity,
		"confidence", result.Confidence,
		"address_found", addr != nil)
	return result, nil
}

// Submit turns the confirmed analysis into a report, appends it and resets
// the form for the next upload.
func (f *Form) Submit() (models.CivicReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.image == nil {
		return models.CivicReport{}, ErrNoImage
	}
	if f.analyzing {
		return models.CivicReport{}, ErrAnalysisInFlight
	}
	if f.analysis == nil {
		return models.CivicReport{}, ErrNoAnalysis
	}

	loc := f.deps.Resolver.Location()
	if loc == nil && !f.cfg.AllowUnlocated {
		return models.CivicReport{}, ErrLocationRequired
	}

	r, err := f.deps.Builder.Build(f.analysis, loc, f.image)
	if err != nil {
		return models.CivicReport{}, err
	}
	f.deps.Store.Append(r)
	if f.deps.Recorder != nil {
		f.deps.Recorder.ObserveSubmission(string(r.IssueType), string(r.Severity))
	}

	f.newCycleLocked()
	f.image = nil
	f.deps.Resolver.Reset()

	f.deps.Logger.Info("report submitted",
		"report_id", r.ID,
		"issue_type", r.IssueType,
		"severity", r.Severity,
		"located", loc != nil)
	return r, nil
}

// State returns a snapshot for rendering.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := State{
		Analyzing: f.analyzing,
		Location:  f.deps.Resolver.Snapshot(),
	}
	if f.image != nil {
		img := *f.image
		img.Data = nil
		st.Image = &img
	}
	if f.analysis != nil {
		a := *f.analysis
		st.Analysis = &a
	}
	st.CanSubmit = f.image != nil && f.analysis != nil && !f.analyzing &&
		(st.Location.Location != nil || f.cfg.AllowUnlocated)
	return st
}

// Close cancels outstanding work.
func (f *Form) Close() {
	f.mu.Lock()
	f.newCycleLocked()
	f.mu.Unlock()
	f.deps.Resolver.Close()
}

// newCycleLocked invalidates in-flight analysis and clears the analysis.
func (f *Form) newCycleLocked() {
	f.cycle++
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.analyzing = false
	f.analysis = nil
}

func (f *Form) observe(outcome string, d time.Duration) {
	if f.deps.Recorder != nil {
		f.deps.Recorder.ObserveAnalysis(outcome, d)
	}
}
