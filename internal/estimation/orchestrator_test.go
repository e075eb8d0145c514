package estimation_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"gainslog/internal/estimation"
	"gainslog/internal/models"
	"gainslog/internal/nutrition"
)

type fakeEstimator struct {
	estimate *models.Estimate
	err      error

	textCalls  []models.TextEstimateRequest
	imageCalls []models.ImageEstimateRequest
	// onCall runs at the start of every call, before returning.
	onCall func()
}

func (f *fakeEstimator) EstimateText(_ context.Context, req models.TextEstimateRequest) (*models.Estimate, error) {
	f.textCalls = append(f.textCalls, req)
	if f.onCall != nil {
		f.onCall()
	}
	return f.estimate, f.err
}

func (f *fakeEstimator) EstimateImage(_ context.Context, req models.ImageEstimateRequest) (*models.Estimate, error) {
	f.imageCalls = append(f.imageCalls, req)
	if f.onCall != nil {
		f.onCall()
	}
	return f.estimate, f.err
}

// recorder captures handler calls in order.
type recorder struct {
	events    []string
	skeletons []models.FoodLogEntry
	finals    []models.FoodLogEntry
	invalid   []string
	finalErr  error
}

func (r *recorder) handlers() estimation.Handlers {
	return estimation.Handlers{
		OnSkeleton: func(e models.FoodLogEntry) {
			r.events = append(r.events, "skeleton")
			r.skeletons = append(r.skeletons, e)
		},
		OnFinal: func(_ context.Context, e models.FoodLogEntry) error {
			r.events = append(r.events, "final")
			r.finals = append(r.finals, e)
			return r.finalErr
		},
		OnInvalid: func(_ context.Context, id string) error {
			r.events = append(r.events, "invalid")
			r.invalid = append(r.invalid, id)
			return nil
		},
	}
}

func newEntry(title, calories, protein, carbs, fat string) models.FoodLogEntry {
	e := models.FoodLogEntry{
		ID:             "entry-1",
		Date:           "2026-10-19",
		UserTitle:      title,
		GeneratedTitle: title,
	}
	nutrition.Merge(calories, protein, carbs, fat, nil).Apply(&e)
	return e
}

func TestProcess_BananaScenario(t *testing.T) {
	est := &fakeEstimator{estimate: &models.Estimate{
		GeneratedTitle:       "Banana",
		EstimationConfidence: 72,
		Calories:             110,
		Protein:              1.3,
		Carbs:                27,
		Fat:                  0.4,
	}}
	rec := &recorder{}
	est.onCall = func() { rec.events = append(rec.events, "estimate") }

	entry := newEntry("Banana", "105", "", "", "")
	require.True(t, entry.NeedsAIEstimation)

	res, err := estimation.NewOrchestrator(est).Process(context.Background(), entry, rec.handlers())
	require.NoError(t, err)
	assert.Equal(t, estimation.ResultFinalized, res)

	assert.Equal(t, []string{"skeleton", "estimate", "final"}, rec.events)
	assert.Equal(t, 0, rec.skeletons[0].EstimationConfidence)
	assert.Equal(t, models.StatusEstimating, rec.skeletons[0].Status)

	require.Len(t, est.textCalls, 1)
	assert.Equal(t, models.TextEstimateRequest{Title: "Banana"}, est.textCalls[0])

	final := rec.finals[0]
	assert.Equal(t, 105.0, final.Calories, "user value wins")
	assert.Equal(t, 1.3, final.Protein)
	assert.Equal(t, 27.0, final.Carbs)
	assert.Equal(t, 0.4, final.Fat)
	assert.Equal(t, 72, final.EstimationConfidence)
	assert.Equal(t, "Banana", final.GeneratedTitle)
	assert.Equal(t, models.StatusFinal, final.Status)
	assert.False(t, final.NeedsAIEstimation)
	require.NotNil(t, final.UserCalories)
	assert.Equal(t, 105.0, *final.UserCalories)
	assert.Nil(t, final.UserProtein)
}

func TestProcess_CompleteEntrySkipsService(t *testing.T) {
	est := &fakeEstimator{}
	rec := &recorder{}

	entry := newEntry("Oats", "300", "10", "54", "6")
	res, err := estimation.NewOrchestrator(est).Process(context.Background(), entry, rec.handlers())
	require.NoError(t, err)

	assert.Equal(t, estimation.ResultInstant, res)
	assert.Equal(t, []string{"final"}, rec.events)
	assert.Empty(t, est.textCalls)
	assert.Empty(t, est.imageCalls)
	assert.Equal(t, 100, rec.finals[0].EstimationConfidence)
	assert.Equal(t, models.StatusFinal, rec.finals[0].Status)
}

func TestProcess_FailureKeepsUserData(t *testing.T) {
	est := &fakeEstimator{err: errors.New("connection refused")}
	rec := &recorder{}

	entry := newEntry("Toast", "80", "", "", "")
	entry.Carbs = 15 // known from an earlier estimate
	entry.EstimationConfidence = 40

	res, err := estimation.NewOrchestrator(est).Process(context.Background(), entry, rec.handlers())
	require.NoError(t, err, "estimation failures are recovered")
	assert.Equal(t, estimation.ResultFallback, res)

	require.Len(t, rec.finals, 1)
	final := rec.finals[0]
	assert.Equal(t, models.Nutrition{Calories: 80, Carbs: 15}, models.Nutrition{
		Calories: final.Calories, Protein: final.Protein, Carbs: final.Carbs, Fat: final.Fat,
	}, "displayed values are kept as they were")
	require.NotNil(t, final.UserCalories)
	assert.Nil(t, final.UserCarbs)
	assert.Equal(t, 40, final.EstimationConfidence, "pre-call confidence is kept")
	assert.Equal(t, models.StatusNeedsInput, final.Status)
	assert.Equal(t, "Toast", final.GeneratedTitle)
}

func TestProcess_FailureNeverLeavesZeroConfidence(t *testing.T) {
	est := &fakeEstimator{err: &estimation.Error{Code: estimation.CodeEstimationFailed, StatusCode: 503}}
	rec := &recorder{}

	entry := newEntry("", "", "", "", "")
	entry.UserDescription = "leftover curry"
	entry.GeneratedTitle = ""

	_, err := estimation.NewOrchestrator(est).Process(context.Background(), entry, rec.handlers())
	require.NoError(t, err)

	final := rec.finals[0]
	assert.Equal(t, estimation.MinFinalConfidence, final.EstimationConfidence)
	assert.False(t, final.IsEstimating())
	assert.Equal(t, "leftover curry", final.GeneratedTitle)
}

func TestProcess_ImageSkeletonAndInvalid(t *testing.T) {
	est := &fakeEstimator{err: estimation.ErrUnusableInput}
	rec := &recorder{}

	entry := newEntry("", "", "", "", "")
	entry.ImageURL = "https://cdn.example.com/meal.jpg"

	res, err := estimation.NewOrchestrator(est).Process(context.Background(), entry, rec.handlers())
	require.NoError(t, err)

	assert.Equal(t, estimation.ResultDiscarded, res)
	assert.Equal(t, []string{"skeleton", "invalid"}, rec.events)
	assert.Equal(t, estimation.ProcessingImageTitle, rec.skeletons[0].GeneratedTitle)
	assert.Equal(t, []string{"entry-1"}, rec.invalid)
	require.Len(t, est.imageCalls, 1)
	assert.Equal(t, entry.ImageURL, est.imageCalls[0].ImageURL)
	assert.Empty(t, est.textCalls)
}

func TestProcess_InvalidWithoutHandlerFallsBack(t *testing.T) {
	est := &fakeEstimator{err: estimation.ErrUnusableInput}
	rec := &recorder{}
	h := rec.handlers()
	h.OnInvalid = nil

	entry := newEntry("", "", "", "", "")
	entry.ImageURL = "https://cdn.example.com/blur.jpg"

	res, err := estimation.NewOrchestrator(est).Process(context.Background(), entry, h)
	require.NoError(t, err)
	assert.Equal(t, estimation.ResultFallback, res)
	assert.Equal(t, estimation.FallbackTitle, rec.finals[0].GeneratedTitle)
}

func TestProcess_ImageEstimateUsesServiceTitle(t *testing.T) {
	est := &fakeEstimator{estimate: &models.Estimate{
		GeneratedTitle:       "Chicken salad",
		EstimationConfidence: 0,
		Calories:             420,
		Protein:              35,
		Carbs:                12,
		Fat:                  24,
	}}
	rec := &recorder{}

	entry := newEntry("", "", "", "", "")
	entry.ImageURL = "https://cdn.example.com/salad.jpg"

	_, err := estimation.NewOrchestrator(est).Process(context.Background(), entry, rec.handlers())
	require.NoError(t, err)

	final := rec.finals[0]
	assert.Equal(t, "Chicken salad", final.GeneratedTitle)
	assert.Equal(t, 420.0, final.Calories)
	assert.Equal(t, estimation.MinFinalConfidence, final.EstimationConfidence, "a final entry never reports zero")
}

func TestProcess_ExactlyOneTerminalCall(t *testing.T) {
	cases := map[string]*fakeEstimator{
		"success": {estimate: &models.Estimate{EstimationConfidence: 50}},
		"failure": {err: errors.New("timeout")},
		"invalid": {err: estimation.ErrUnusableInput},
	}
	for name, est := range cases {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			entry := newEntry("Soup", "", "", "", "")

			_, err := estimation.NewOrchestrator(est).Process(context.Background(), entry, rec.handlers())
			require.NoError(t, err)

			assert.Equal(t, 1, len(rec.finals)+len(rec.invalid))
			for _, f := range rec.finals {
				assert.NotZero(t, f.EstimationConfidence)
			}
		})
	}
}

func TestProcess_ReturnsHandlerError(t *testing.T) {
	est := &fakeEstimator{estimate: &models.Estimate{EstimationConfidence: 50}}
	rec := &recorder{finalErr: errors.New("disk full")}

	_, err := estimation.NewOrchestrator(est).Process(context.Background(), newEntry("Soup", "", "", "", ""), rec.handlers())
	assert.EqualError(t, err, "disk full")
}

func TestProcess_RecordsSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	est := &fakeEstimator{err: errors.New("timeout")}
	rec := &recorder{finalErr: errors.New("disk full")}
	orch := estimation.NewOrchestrator(est, estimation.WithTracer(tp.Tracer("test")))

	res, err := orch.Process(context.Background(), newEntry("Soup", "", "", "", ""), rec.handlers())
	require.Error(t, err)
	assert.Equal(t, estimation.ResultFallback, res)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "Orchestrator.Process", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Contains(t, span.Attributes(), attribute.String("entry.id", "entry-1"))
	assert.Contains(t, span.Attributes(), attribute.String("estimation.variant", "text"))
	assert.Contains(t, span.Attributes(), attribute.String("estimation.result", "fallback"))

	var events []string
	for _, ev := range span.Events() {
		events = append(events, ev.Name)
	}
	assert.Contains(t, events, "estimation failed")
}

func TestProcess_InstantEntryGetsTitle(t *testing.T) {
	rec := &recorder{}

	entry := newEntry("", "520", "30", "60", "18")
	entry.ImageURL = "https://cdn.example.com/bowl.jpg"
	entry.GeneratedTitle = ""

	res, err := estimation.NewOrchestrator(&fakeEstimator{}).Process(context.Background(), entry, rec.handlers())
	require.NoError(t, err)

	assert.Equal(t, estimation.ResultInstant, res)
	assert.Equal(t, estimation.FallbackTitle, rec.finals[0].GeneratedTitle)
}

func TestProcess_TextRejectedByServiceFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := estimation.NewClient(estimation.ClientConfig{BaseURL: server.URL})
	rec := &recorder{}

	res, err := estimation.NewOrchestrator(client).Process(context.Background(), newEntry("Banana", "105", "", "", ""), rec.handlers())
	require.NoError(t, err)

	assert.Equal(t, estimation.ResultFallback, res)
	assert.Empty(t, rec.invalid)
	require.Len(t, rec.finals, 1)
	assert.Equal(t, 105.0, rec.finals[0].Calories)
	assert.Equal(t, models.StatusNeedsInput, rec.finals[0].Status)
}
