package api

import (
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/typofix/internal/generate"
)

// CorrectionRequest is the POST /v1/corrections body. Input and Inputs are
// mutually exclusive; Inputs runs with the same per-line isolation as the
// CLI batch mode.
type CorrectionRequest struct {
	Input       string   `json:"input,omitempty"`
	Inputs      []string `json:"inputs,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Model       string   `json:"model,omitempty"`
}

// Correction is one corrected line. Failed items carry the error message
// instead of an output.
type Correction struct {
	ID              string `json:"id"`
	Object          string `json:"object"`
	Input           string `json:"input"`
	Output          string `json:"output,omitempty"`
	Error           string `json:"error,omitempty"`
	TokensGenerated int    `json:"tokens_generated"`
	ElapsedMS       int64  `json:"elapsed_ms"`
	ModelID         string `json:"model_id"`
}

// CorrectionList wraps a batch request's results in input order.
type CorrectionList struct {
	Object  string       `json:"object"`
	Results []Correction `json:"results"`
	ModelID string       `json:"model_id"`
}

// HealthResponse answers GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	ModelID string `json:"model_id"`
}

// APIError is the error payload, wrapped under an "error" key.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func toCorrection(res *generate.Result) Correction {
	return Correction{
		ID:              newCorrectionID(),
		Object:          "correction",
		Input:           res.Input,
		Output:          res.Output,
		TokensGenerated: res.Tokens,
		ElapsedMS:       res.Elapsed.Milliseconds(),
		ModelID:         res.ModelID,
	}
}

func failedCorrection(line, modelID string, err error) Correction {
	return Correction{
		ID:      newCorrectionID(),
		Object:  "correction",
		Input:   line,
		Error:   err.Error(),
		ModelID: modelID,
	}
}

func newCorrectionID() string {
	return "corr_" + uuid.NewString()
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": APIError{Message: msg, Type: errType},
	})
}
