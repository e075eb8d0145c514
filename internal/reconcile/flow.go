// Package reconcile ties estimation to the log store for the three ways an
// entry changes: manual (or voice) creation, creation from a captured image,
// and editing.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"gainslog/internal/estimation"
	"gainslog/internal/logstate"
	"gainslog/internal/models"
	"gainslog/internal/nutrition"
)

// ResultDeleted means the entry was deleted while its estimation was running.
const ResultDeleted estimation.Result = "deleted"

// User-visible notices attached to an Outcome.
const (
	NoticeUnusableImage    = "We couldn't recognise any food in that photo. Please try again."
	NoticeEstimationFailed = "Nutrition estimation is unavailable right now; your values were saved."
)

var (
	ErrNotFound = errors.New("food log entry not found")

	// ErrEstimationInFlight is returned when editing an entry that is still
	// waiting for its estimate.
	ErrEstimationInFlight = errors.New("food log entry is still being estimated")
)

// ValidationError lists every problem with the submitted input.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid food log input: " + strings.Join(e.Errors, "; ")
}

// Nutrients are the raw strings typed into the four nutrition fields.
type Nutrients struct {
	Calories string `json:"calories,omitempty"`
	Protein  string `json:"protein,omitempty"`
	Carbs    string `json:"carbs,omitempty"`
	Fat      string `json:"fat,omitempty"`
}

type ManualInput struct {
	Title       string
	Description string
	Nutrients   Nutrients
	// Date defaults to today.
	Date string
	// Source is SourceManual (default) or SourceVoice for dictated entries.
	Source models.EntrySource
}

type CaptureInput struct {
	ImageURL    string
	Title       string
	Description string
	Nutrients   Nutrients
	Date        string
}

// EditInput is the full edited form. An empty Date keeps the entry's date.
type EditInput struct {
	Title       string
	Description string
	Nutrients   Nutrients
	Date        string
}

// Outcome is what a flow call produced.
type Outcome struct {
	Entry  models.FoodLogEntry `json:"entry"`
	Result estimation.Result   `json:"result"`
	Notice string              `json:"notice,omitempty"`
}

// Flow is the single entry point the presentation layer uses to change the log.
type Flow struct {
	store        *logstate.Store
	orchestrator *estimation.Orchestrator
	policy       Policy
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
}

// Option configures a Flow.
type Option func(*Flow)

func WithPolicy(p Policy) Option {
	return func(f *Flow) {
		f.policy = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Flow) {
		f.logger = logger
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		f.now = now
	}
}

// WithIDGenerator overrides uuid generation, for tests.
func WithIDGenerator(newID func() string) Option {
	return func(f *Flow) {
		f.newID = newID
	}
}

func New(store *logstate.Store, orchestrator *estimation.Orchestrator, opts ...Option) *Flow {
	f := &Flow{
		store:        store,
		orchestrator: orchestrator,
		policy:       DefaultPolicy(),
		logger:       slog.Default(),
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateManual logs a typed or dictated entry. It blocks until the entry is
// final; while it runs, a skeleton is visible in the store.
func (f *Flow) CreateManual(ctx context.Context, in ManualInput) (Outcome, error) {
	var errs []string
	title, description := strings.TrimSpace(in.Title), strings.TrimSpace(in.Description)
	if title == "" && description == "" {
		errs = append(errs, "Title or description is required")
	}
	source := in.Source
	switch source {
	case "":
		source = models.SourceManual
	case models.SourceManual, models.SourceVoice:
	default:
		errs = append(errs, fmt.Sprintf("Source %q is not supported", in.Source))
	}

	entry, err := f.newEntry(title, description, in.Nutrients, in.Date, errs)
	if err != nil {
		return Outcome{}, err
	}
	entry.Source = source
	return f.create(ctx, entry)
}

// CreateFromCapture logs an entry from an uploaded photo. Title, description
// and nutrition are optional.
func (f *Flow) CreateFromCapture(ctx context.Context, in CaptureInput) (Outcome, error) {
	var errs []string
	imageURL := strings.TrimSpace(in.ImageURL)
	if imageURL == "" {
		errs = append(errs, "Image is required")
	} else if u, err := url.ParseRequestURI(imageURL); err != nil || u.Host == "" {
		errs = append(errs, "Image URL is not valid")
	}

	entry, err := f.newEntry(strings.TrimSpace(in.Title), strings.TrimSpace(in.Description), in.Nutrients, in.Date, errs)
	if err != nil {
		return Outcome{}, err
	}
	entry.ImageURL = imageURL
	entry.Source = models.SourceImage
	return f.create(ctx, entry)
}

// Edit applies a full edited form to an existing entry, re-estimating only
// when the policy asks for it.
func (f *Flow) Edit(ctx context.Context, id string, in EditInput) (Outcome, error) {
	prev, ok := f.store.Get(id)
	if !ok {
		return Outcome{}, fmt.Errorf("edit %s: %w", id, ErrNotFound)
	}
	if prev.IsEstimating() {
		return Outcome{}, fmt.Errorf("edit %s: %w", id, ErrEstimationInFlight)
	}

	var errs []string
	title, description := strings.TrimSpace(in.Title), strings.TrimSpace(in.Description)
	if title == "" && description == "" && !prev.HasImage() {
		errs = append(errs, "Title or description is required")
	}
	date := prev.Date
	if in.Date != "" {
		d, err := parseDate(in.Date)
		if err != nil {
			errs = append(errs, err.Error())
		}
		date = d
	}

	// Fields the user left blank keep their previous displayed values.
	prevValues := &models.Nutrition{Calories: prev.Calories, Protein: prev.Protein, Carbs: prev.Carbs, Fat: prev.Fat}
	merged := nutrition.Merge(in.Nutrients.Calories, in.Nutrients.Protein, in.Nutrients.Carbs, in.Nutrients.Fat, prevValues)
	errs = append(errs, merged.ValidationErrors...)
	if len(errs) > 0 {
		return Outcome{}, &ValidationError{Errors: errs}
	}

	next := prev
	next.UserTitle = title
	next.UserDescription = description
	next.Date = date
	merged.Apply(&next)
	if title != "" {
		next.GeneratedTitle = title
	}

	reestimate := f.policy.ShouldReestimate(prev, next, merged.NeedsAIEstimation)
	next.NeedsAIEstimation = merged.NeedsAIEstimation && reestimate
	if !merged.NeedsAIEstimation {
		next.EstimationConfidence = estimation.CompleteConfidence
		next.Status = models.StatusFinal
	}

	f.logger.Debug("Editing food log",
		"id", id,
		"reestimate", reestimate,
		"complete", !merged.NeedsAIEstimation)

	var out Outcome
	h := estimation.Handlers{
		OnSkeleton: func(e models.FoodLogEntry) {
			f.store.PatchInState(e)
		},
		OnFinal: func(ctx context.Context, e models.FoodLogEntry) error {
			out.Entry = e
			return f.store.UpdatePersisted(ctx, e)
		},
		OnInvalid: func(ctx context.Context, id string) error {
			// The entry already exists; put the saved version back instead of dropping it.
			f.store.PatchInState(prev)
			out.Entry = prev
			out.Notice = NoticeUnusableImage
			return nil
		},
	}

	res, err := f.orchestrator.Process(ctx, next, h)
	out.Result = res
	switch {
	case errors.Is(err, logstate.ErrDeleted):
		out.Result = ResultDeleted
		return out, nil
	case err != nil:
		f.store.PatchInState(prev)
		f.logger.Error("Failed to save edited food log", "id", id, "error", err)
		return Outcome{}, err
	}
	if res == estimation.ResultFallback {
		out.Notice = NoticeEstimationFailed
	}
	return out, nil
}

// Delete removes an entry for good. An estimation still running for it will
// not bring it back.
func (f *Flow) Delete(ctx context.Context, id string) error {
	return f.store.DeletePersisted(ctx, id)
}

func (f *Flow) newEntry(title, description string, n Nutrients, date string, errs []string) (models.FoodLogEntry, error) {
	if date == "" {
		date = f.now().Format(models.DateLayout)
	} else if d, err := parseDate(date); err != nil {
		errs = append(errs, err.Error())
	} else {
		date = d
	}

	merged := nutrition.Merge(n.Calories, n.Protein, n.Carbs, n.Fat, nil)
	errs = append(errs, merged.ValidationErrors...)
	if len(errs) > 0 {
		return models.FoodLogEntry{}, &ValidationError{Errors: errs}
	}

	entry := models.FoodLogEntry{
		ID:              f.newID(),
		CreatedAt:       f.now(),
		Date:            date,
		UserTitle:       title,
		UserDescription: description,
		GeneratedTitle:  title,
	}
	merged.Apply(&entry)
	if !entry.NeedsAIEstimation {
		entry.EstimationConfidence = estimation.CompleteConfidence
		entry.Status = models.StatusFinal
	}
	return entry, nil
}

func (f *Flow) create(ctx context.Context, entry models.FoodLogEntry) (Outcome, error) {
	var out Outcome
	h := estimation.Handlers{
		OnSkeleton: func(e models.FoodLogEntry) {
			f.store.UpsertInState(e)
		},
		OnFinal: func(ctx context.Context, e models.FoodLogEntry) error {
			out.Entry = e
			return f.store.CreatePersisted(ctx, e)
		},
		OnInvalid: func(ctx context.Context, id string) error {
			f.store.RemoveFromState(id)
			out.Notice = NoticeUnusableImage
			return nil
		},
	}

	res, err := f.orchestrator.Process(ctx, entry, h)
	out.Result = res
	switch {
	case errors.Is(err, logstate.ErrDeleted):
		f.logger.Info("Food log deleted during estimation", "id", entry.ID)
		out.Result = ResultDeleted
		return out, nil
	case err != nil:
		// The skeleton was never saved, so it must not outlive the failure.
		f.store.RemoveFromState(entry.ID)
		f.logger.Error("Failed to save food log", "id", entry.ID, "error", err)
		return Outcome{}, err
	}
	if res == estimation.ResultFallback {
		out.Notice = NoticeEstimationFailed
	}
	if res == estimation.ResultDiscarded {
		out.Entry = models.FoodLogEntry{ID: entry.ID}
	}
	return out, nil
}

func parseDate(s string) (string, error) {
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", errors.New("Date must be in YYYY-MM-DD format")
	}
	return t.Format(models.DateLayout), nil
}
