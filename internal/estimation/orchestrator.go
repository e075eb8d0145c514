package estimation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gainslog/internal/metrics"
	"gainslog/internal/models"
	"gainslog/internal/nutrition"
)

const (
	// ProcessingImageTitle is shown on image skeletons until estimation ends.
	ProcessingImageTitle = "Processing image..."

	// FallbackTitle names an entry that has neither a user nor a generated title.
	FallbackTitle = "Food entry"

	// MinFinalConfidence is the lowest confidence a finished entry can carry;
	// zero is reserved for entries still estimating.
	MinFinalConfidence = 1

	// CompleteConfidence is given to entries the user filled in completely.
	CompleteConfidence = 100
)

// Result says how Process finished.
type Result string

const (
	// ResultInstant means no estimation was needed.
	ResultInstant Result = "instant"
	// ResultFinalized means the estimate was merged into the entry.
	ResultFinalized Result = "finalized"
	// ResultFallback means estimation failed and the user's data was kept.
	ResultFallback Result = "fallback"
	// ResultDiscarded means the input was unusable and the entry was dropped.
	ResultDiscarded Result = "discarded"
)

// Handlers receive the states of an entry going through Process.
// OnSkeleton is optional. OnInvalid is optional; without it an unusable input
// is finalized like a failed estimation.
type Handlers struct {
	OnSkeleton func(entry models.FoodLogEntry)
	OnFinal    func(ctx context.Context, entry models.FoodLogEntry) error
	OnInvalid  func(ctx context.Context, id string) error
}

// Orchestrator decides whether an entry needs estimating, runs the estimation
// and merges its result with what the user entered.
type Orchestrator struct {
	estimator Estimator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics records estimation outcomes in m.
func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer sets the tracer used for Process spans. The default is the
// global provider's "gainslog/estimation" tracer.
func WithTracer(tracer trace.Tracer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

func NewOrchestrator(estimator Estimator, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		estimator: estimator,
		logger:    slog.Default(),
		tracer:    otel.Tracer("gainslog/estimation"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process drives entry to a terminal state. Exactly one of h.OnFinal or
// h.OnInvalid is called. When estimation is needed, h.OnSkeleton is called
// before the estimator is contacted.
//
// Estimation errors are never returned: they end in OnFinal with the user's
// data. The returned error is whatever the terminal handler returned.
func (o *Orchestrator) Process(ctx context.Context, entry models.FoodLogEntry, h Handlers) (result Result, err error) {
	variant := variantOf(entry)

	ctx, span := o.tracer.Start(ctx, "Orchestrator.Process", trace.WithAttributes(
		attribute.String("entry.id", entry.ID),
		attribute.String("estimation.variant", variant),
	))
	defer func() {
		span.SetAttributes(attribute.String("estimation.result", string(result)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to store estimated entry")
		}
		span.End()
	}()

	if !entry.NeedsAIEstimation {
		final := entry
		final.NeedsAIEstimation = false
		final.Status = models.StatusFinal
		final.GeneratedTitle = titleOrFallback(final)
		if final.EstimationConfidence <= 0 {
			final.EstimationConfidence = CompleteConfidence
		}
		o.metrics.ObserveEstimation(variant, metrics.OutcomeSkipped, 0)
		return ResultInstant, h.OnFinal(ctx, final)
	}

	skeleton := entry
	skeleton.EstimationConfidence = 0
	skeleton.Status = models.StatusEstimating
	if entry.HasImage() {
		skeleton.GeneratedTitle = ProcessingImageTitle
	}
	if h.OnSkeleton != nil {
		h.OnSkeleton(skeleton)
	}

	start := o.now()
	est, estErr := o.estimate(ctx, entry)
	took := o.now().Sub(start)
	if estErr != nil {
		span.AddEvent("estimation failed", trace.WithAttributes(attribute.String("error", estErr.Error())))
	}

	switch {
	case errors.Is(estErr, ErrUnusableInput) && h.OnInvalid != nil:
		o.logger.Info("Estimation input unusable, discarding entry", "id", entry.ID, "variant", variant)
		o.metrics.ObserveEstimation(variant, metrics.OutcomeInvalid, took)
		return ResultDiscarded, h.OnInvalid(ctx, entry.ID)

	case estErr != nil:
		o.logger.Warn("Estimation failed, keeping user data",
			"id", entry.ID,
			"variant", variant,
			"error", estErr)
		o.metrics.ObserveEstimation(variant, metrics.OutcomeFallback, took)
		return ResultFallback, h.OnFinal(ctx, fallback(entry))
	}

	o.metrics.ObserveEstimation(variant, metrics.OutcomeFinalized, took)
	return ResultFinalized, h.OnFinal(ctx, finalize(entry, est))
}

func (o *Orchestrator) estimate(ctx context.Context, entry models.FoodLogEntry) (*models.Estimate, error) {
	title := strings.TrimSpace(entry.UserTitle)
	if title == "" {
		title = entry.GeneratedTitle
	}
	description := strings.TrimSpace(entry.UserDescription)

	if entry.HasImage() {
		return o.estimator.EstimateImage(ctx, models.ImageEstimateRequest{
			ImageURL:    entry.ImageURL,
			Title:       strings.TrimSpace(entry.UserTitle),
			Description: description,
		})
	}
	return o.estimator.EstimateText(ctx, models.TextEstimateRequest{
		Title:       title,
		Description: description,
	})
}

func finalize(entry models.FoodLogEntry, est *models.Estimate) models.FoodLogEntry {
	final := entry

	calories, protein, carbs, fat := nutrition.UserStrings(entry)
	nutrition.Merge(calories, protein, carbs, fat, est.Nutrition()).Apply(&final)

	if title := strings.TrimSpace(entry.UserTitle); title != "" {
		final.GeneratedTitle = title
	} else if est.GeneratedTitle != "" {
		final.GeneratedTitle = est.GeneratedTitle
	}
	final.GeneratedTitle = titleOrFallback(final)

	final.EstimationConfidence = clampConfidence(est.EstimationConfidence)
	final.Status = models.StatusFinal
	final.NeedsAIEstimation = false
	return final
}

// fallback finalizes entry as it stands: its displayed values already hold
// the user's input merged over whatever was known before the call.
func fallback(entry models.FoodLogEntry) models.FoodLogEntry {
	final := entry
	final.GeneratedTitle = titleOrFallback(final)
	if final.EstimationConfidence < MinFinalConfidence {
		final.EstimationConfidence = MinFinalConfidence
	}
	final.Status = models.StatusNeedsInput
	final.NeedsAIEstimation = false
	return final
}

func titleOrFallback(e models.FoodLogEntry) string {
	switch {
	case e.GeneratedTitle != "" && e.GeneratedTitle != ProcessingImageTitle:
		return e.GeneratedTitle
	case strings.TrimSpace(e.UserTitle) != "":
		return strings.TrimSpace(e.UserTitle)
	case strings.TrimSpace(e.UserDescription) != "":
		return strings.TrimSpace(e.UserDescription)
	default:
		return FallbackTitle
	}
}

func clampConfidence(c int) int {
	switch {
	case c < MinFinalConfidence:
		return MinFinalConfidence
	case c > CompleteConfidence:
		return CompleteConfidence
	default:
		return c
	}
}

func variantOf(entry models.FoodLogEntry) string {
	if entry.HasImage() {
		return "image"
	}
	return "text"
}
