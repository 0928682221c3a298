package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/rumor-ml/propsheet/internal/domain"
)

// DefaultGeminiModel is the model used when none is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiOracle labels account names with a Gemini model. One request covers
// the whole batch; the model is asked for strict JSON so the response can be
// decoded directly.
type GeminiOracle struct {
	client *genai.Client
	model  string
}

// NewGeminiOracle creates a Gemini-backed oracle. Credentials come from the
// environment the same way the rest of the Google SDKs pick them up.
func NewGeminiOracle(ctx context.Context, model string) (*GeminiOracle, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiOracle{client: client, model: model}, nil
}

// Categorize sends one batch prompt and decodes the JSON object it returns.
func (o *GeminiOracle) Categorize(ctx context.Context, accountNames []string, fileType domain.FileType) (map[string]domain.AICategory, error) {
	if len(accountNames) == 0 {
		return map[string]domain.AICategory{}, nil
	}

	prompt := buildPrompt(accountNames, fileType)
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := o.client.Models.GenerateContent(ctx, o.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	var parsed map[string]string
	clean := cleanModelJSON(rawText)
	if err := json.Unmarshal([]byte(clean), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal model JSON: %w\nraw response: %s", err, rawText)
	}

	result := make(map[string]domain.AICategory, len(accountNames))
	for _, name := range accountNames {
		c := domain.AICategory(strings.ToLower(strings.TrimSpace(parsed[name])))
		if !domain.ValidateAICategory(c) {
			c = domain.AICategoryUnknown
		}
		result[name] = c
	}
	return result, nil
}

func buildPrompt(accountNames []string, fileType domain.FileType) string {
	var b strings.Builder
	b.WriteString("You are a classifier for property financial spreadsheet line items.\n\n")
	fmt.Fprintf(&b, "The line items below come from a %s spreadsheet.\n", fileType)
	b.WriteString("Classify each account name as exactly one of: \"income\", \"expense\", \"cash\", \"unknown\".\n\n")
	b.WriteString("Account names:\n")
	for _, name := range accountNames {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	b.WriteString("\nReturn ONLY valid raw JSON: a single object mapping each account name to its label.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"{\" and end with \"}\".\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences when the model ignores instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	return strings.TrimSpace(s)
}
