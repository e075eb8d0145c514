// internal/server/tools.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"gainslog/internal/models"
	"gainslog/internal/reconcile"
)

var errInvalidParams = errors.New("invalid parameters")

// numberField accepts a JSON number or string and keeps its text, so the
// nutrition merge sees exactly what the caller sent.
type numberField string

func (n *numberField) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*n = numberField(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("expected a number or string, got %s", b)
	}
	*n = numberField(num.String())
	return nil
}

type NutrientParams struct {
	Calories numberField `json:"calories,omitempty" description:"Calories in kcal; omit to estimate"`
	Protein  numberField `json:"protein,omitempty" description:"Protein in grams; omit to estimate"`
	Carbs    numberField `json:"carbs,omitempty" description:"Carbohydrates in grams; omit to estimate"`
	Fat      numberField `json:"fat,omitempty" description:"Fat in grams; omit to estimate"`
}

func (p NutrientParams) nutrients() reconcile.Nutrients {
	return reconcile.Nutrients{
		Calories: string(p.Calories),
		Protein:  string(p.Protein),
		Carbs:    string(p.Carbs),
		Fat:      string(p.Fat),
	}
}

type LogFoodParams struct {
	Title       string `json:"title,omitempty" description:"Short name of the food"`
	Description string `json:"description,omitempty" description:"Free-text description of what was eaten"`
	Date        string `json:"date,omitempty" description:"Day to log the food on (YYYY-MM-DD, defaults to today)"`
	Source      string `json:"source,omitempty" description:"manual or voice"`
	NutrientParams
}

type LogFoodImageParams struct {
	ImageURL    string `json:"image_url" description:"URL of the uploaded food photo"`
	Title       string `json:"title,omitempty" description:"Optional short name of the food"`
	Description string `json:"description,omitempty" description:"Optional description"`
	Date        string `json:"date,omitempty" description:"Day to log the food on (YYYY-MM-DD, defaults to today)"`
	NutrientParams
}

type EditFoodParams struct {
	ID          string `json:"id" description:"ID of the entry to edit"`
	Title       string `json:"title,omitempty" description:"Edited title"`
	Description string `json:"description,omitempty" description:"Edited description"`
	Date        string `json:"date,omitempty" description:"Move the entry to this day (YYYY-MM-DD)"`
	NutrientParams
}

type DeleteFoodParams struct {
	ID string `json:"id" description:"ID of the entry to delete"`
}

type ListFoodsParams struct {
	Date  string `json:"date,omitempty" description:"Only entries for this day (YYYY-MM-DD)"`
	Limit int    `json:"limit,omitempty" description:"Maximum number of entries to return"`
}

type DailyTotalsParams struct {
	Date string `json:"date,omitempty" description:"Day to total (YYYY-MM-DD, defaults to today)"`
}

type toolHandler func(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error)

func (s *GainsLogServer) tools() map[string]toolHandler {
	return map[string]toolHandler{
		"log_food":       s.handleLogFood,
		"log_food_image": s.handleLogFoodImage,
		"edit_food":      s.handleEditFood,
		"delete_food":    s.handleDeleteFood,
		"list_foods":     s.handleListFoods,
		"daily_totals":   s.handleDailyTotals,
	}
}

// decodeArgs converts a tool call's argument map into T. Any shape mismatch
// is reported as errInvalidParams.
func decodeArgs[T any](req *protocol.CallToolRequest) (T, error) {
	var params T
	raw, err := json.Marshal(req.Arguments)
	if err == nil {
		err = json.Unmarshal(raw, &params)
	}
	if err != nil {
		return params, fmt.Errorf("%w: %v", errInvalidParams, err)
	}
	return params, nil
}

// toolResult wraps data as the single JSON text content of a tool result.
func toolResult(data interface{}) (*protocol.CallToolResult, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %T result: %w", data, err)
	}
	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{Type: "text", Text: string(raw)},
		},
	}, nil
}

// handleLogFood logs a typed or dictated food, estimating missing nutrition
func (s *GainsLogServer) handleLogFood(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	params, err := decodeArgs[LogFoodParams](req)
	if err != nil {
		return nil, err
	}

	out, err := s.flow.CreateManual(ctx, reconcile.ManualInput{
		Title:       params.Title,
		Description: params.Description,
		Nutrients:   params.nutrients(),
		Date:        params.Date,
		Source:      models.EntrySource(strings.ToLower(strings.TrimSpace(params.Source))),
	})
	if err != nil {
		return nil, err
	}

	return toolResult(out)
}

// handleLogFoodImage logs a food from a photo
func (s *GainsLogServer) handleLogFoodImage(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	params, err := decodeArgs[LogFoodImageParams](req)
	if err != nil {
		return nil, err
	}

	out, err := s.flow.CreateFromCapture(ctx, reconcile.CaptureInput{
		ImageURL:    params.ImageURL,
		Title:       params.Title,
		Description: params.Description,
		Nutrients:   params.nutrients(),
		Date:        params.Date,
	})
	if err != nil {
		return nil, err
	}

	return toolResult(out)
}

func (s *GainsLogServer) handleEditFood(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	params, err := decodeArgs[EditFoodParams](req)
	if err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, fmt.Errorf("%w: id is required", errInvalidParams)
	}

	out, err := s.flow.Edit(ctx, params.ID, reconcile.EditInput{
		Title:       params.Title,
		Description: params.Description,
		Nutrients:   params.nutrients(),
		Date:        params.Date,
	})
	if err != nil {
		return nil, err
	}

	return toolResult(out)
}

func (s *GainsLogServer) handleDeleteFood(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	params, err := decodeArgs[DeleteFoodParams](req)
	if err != nil {
		return nil, err
	}
	if params.ID == "" {
		return nil, fmt.Errorf("%w: id is required", errInvalidParams)
	}

	if err := s.flow.Delete(ctx, params.ID); err != nil {
		return nil, err
	}

	return toolResult(map[string]interface{}{
		"id":      params.ID,
		"deleted": true,
	})
}

// handleListFoods returns entries newest first, optionally for one day
func (s *GainsLogServer) handleListFoods(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	params, err := decodeArgs[ListFoodsParams](req)
	if err != nil {
		return nil, err
	}

	var entries []models.FoodLogEntry
	if params.Date != "" {
		if _, err := time.Parse(models.DateLayout, params.Date); err != nil {
			return nil, fmt.Errorf("%w: date must be in YYYY-MM-DD format", errInvalidParams)
		}
		entries = s.store.EntriesForDate(params.Date)
	} else {
		entries = s.store.Entries()
	}

	if params.Limit > 0 && len(entries) > params.Limit {
		entries = entries[:params.Limit]
	}

	return toolResult(entries)
}

func (s *GainsLogServer) handleDailyTotals(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	params, err := decodeArgs[DailyTotalsParams](req)
	if err != nil {
		return nil, err
	}

	date := params.Date
	if date == "" {
		date = s.today()
	} else if _, err := time.Parse(models.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be in YYYY-MM-DD format", errInvalidParams)
	}

	return toolResult(models.NewDailyProgress(s.store.DailyTotals(date), s.targets))
}
