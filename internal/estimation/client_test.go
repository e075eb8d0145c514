package estimation_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gainslog/internal/estimation"
	"gainslog/internal/models"
)

func TestClient_EstimateText_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/estimate/text", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req models.TextEstimateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Banana", req.Title)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"generatedTitle":       "Banana",
			"estimationConfidence": 72,
			"calories":             105,
			"protein":              1.3,
			"carbs":                27,
			"fat":                  0.4,
		})
	}))
	defer server.Close()

	client := estimation.NewClient(estimation.ClientConfig{BaseURL: server.URL, APIKey: "secret"})
	est, err := client.EstimateText(context.Background(), models.TextEstimateRequest{Title: "Banana"})

	require.NoError(t, err)
	assert.Equal(t, &models.Estimate{
		GeneratedTitle:       "Banana",
		EstimationConfidence: 72,
		Calories:             105,
		Protein:              1.3,
		Carbs:                27,
		Fat:                  0.4,
	}, est)
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
		},
		{
			name: "error payload",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error":"model overloaded"}`))
			},
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := estimation.NewClient(estimation.ClientConfig{BaseURL: server.URL})
			_, err := client.EstimateText(context.Background(), models.TextEstimateRequest{Title: "x"})

			require.Error(t, err)
			assert.ErrorIs(t, err, estimation.ErrEstimationFailed)
			var estErr *estimation.Error
			require.True(t, errors.As(err, &estErr))
			assert.Equal(t, estimation.CodeEstimationFailed, estErr.Code)
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := estimation.NewClient(estimation.ClientConfig{BaseURL: server.URL, Timeout: 20 * time.Millisecond})
	_, err := client.EstimateText(context.Background(), models.TextEstimateRequest{Title: "x"})

	assert.ErrorIs(t, err, estimation.ErrEstimationFailed)
}

func TestClient_EstimateImage_Unusable(t *testing.T) {
	t.Run("sentinel title", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/estimate/image", r.URL.Path)
			var req models.ImageEstimateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "https://cdn.example.com/a.jpg", req.ImageURL)
			w.Write([]byte(`{"generatedTitle":"Invalid Image","estimationConfidence":0}`))
		}))
		defer server.Close()

		client := estimation.NewClient(estimation.ClientConfig{BaseURL: server.URL})
		_, err := client.EstimateImage(context.Background(), models.ImageEstimateRequest{ImageURL: "https://cdn.example.com/a.jpg"})
		assert.ErrorIs(t, err, estimation.ErrUnusableInput)
		assert.NotErrorIs(t, err, estimation.ErrEstimationFailed)
	})

	t.Run("status 422", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer server.Close()

		client := estimation.NewClient(estimation.ClientConfig{BaseURL: server.URL})
		_, err := client.EstimateImage(context.Background(), models.ImageEstimateRequest{ImageURL: "https://cdn.example.com/a.jpg"})
		assert.ErrorIs(t, err, estimation.ErrUnusableInput)
	})

	t.Run("missing url", func(t *testing.T) {
		client := estimation.NewClient(estimation.ClientConfig{BaseURL: "http://unused"})
		_, err := client.EstimateImage(context.Background(), models.ImageEstimateRequest{})
		assert.ErrorIs(t, err, estimation.ErrUnusableInput)
	})
}

func TestClient_EstimateText_422IsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := estimation.NewClient(estimation.ClientConfig{BaseURL: server.URL})
	_, err := client.EstimateText(context.Background(), models.TextEstimateRequest{Title: "Banana"})

	assert.ErrorIs(t, err, estimation.ErrEstimationFailed)
	assert.NotErrorIs(t, err, estimation.ErrUnusableInput)
	var estErr *estimation.Error
	require.ErrorAs(t, err, &estErr)
	assert.Equal(t, http.StatusUnprocessableEntity, estErr.StatusCode)
}
