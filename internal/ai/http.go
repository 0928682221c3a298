package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rumor-ml/propsheet/internal/domain"
)

// HTTPOracle calls an external categorization service over JSON. The request
// and response shapes match the legacy categorization API.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
}

// NewHTTPOracle creates an oracle client for the given base URL.
func NewHTTPOracle(baseURL string) *HTTPOracle {
	return &HTTPOracle{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type categorizeRequest struct {
	AccountNames []string        `json:"account_names"`
	FileType     domain.FileType `json:"file_type"`
}

type categorizeResponse struct {
	Categories map[string]domain.AICategory `json:"categories"`
}

// Categorize sends one batch request for all account names.
func (o *HTTPOracle) Categorize(ctx context.Context, accountNames []string, fileType domain.FileType) (map[string]domain.AICategory, error) {
	body, err := json.Marshal(categorizeRequest{AccountNames: accountNames, FileType: fileType})
	if err != nil {
		return nil, fmt.Errorf("failed to encode categorize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/categorize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build categorize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("categorize request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("categorize request returned %d: %s", resp.StatusCode, payload)
	}

	var out categorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode categorize response: %w", err)
	}

	// Unrecognized labels degrade to unknown rather than failing the batch.
	result := make(map[string]domain.AICategory, len(accountNames))
	for _, name := range accountNames {
		c, ok := out.Categories[name]
		if !ok || !domain.ValidateAICategory(c) {
			c = domain.AICategoryUnknown
		}
		result[name] = c
	}
	return result, nil
}
