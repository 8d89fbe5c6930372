package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"bithrah-early-access/config"
	"bithrah-early-access/models"
	"bithrah-early-access/utils"
)

var ErrEvaluationFailed = errors.New("idea evaluation failed")

// Evaluation is the structured verdict returned by the model.
type Evaluation struct {
	Score           int      `json:"score"`
	Summary         string   `json:"summary"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Recommendations []string `json:"recommendations"`
	Model           string   `json:"model"`
}

// Evaluator scores an idea. IdeaService depends on this so tests can skip
// the network.
type Evaluator interface {
	Evaluate(ctx context.Context, idea *models.Idea) (*Evaluation, error)
}

// LLMEvaluator calls an OpenAI-compatible /chat/completions endpoint.
type LLMEvaluator struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

func NewLLMEvaluator(cfg config.LLMConfig) *LLMEvaluator {
	return &LLMEvaluator{
		BaseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		HTTPClient: utils.NewHTTPClient(cfg.Timeout),
	}
}

const evaluationSystemPrompt = `أنت محلل استثماري في منصة بذرة لدعم الأفكار الريادية في العالم العربي.
قيّم الفكرة المقدمة بموضوعية من حيث الجدوى، حجم السوق، الابتكار، وقابلية التنفيذ.
اكتب الملخص ونقاط القوة والضعف والتوصيات باللغة العربية.
أعد النتيجة بصيغة JSON فقط وفق المخطط المطلوب، والدرجة رقم صحيح من 0 إلى 100.`

var evaluationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"score":           map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
		"summary":         map[string]any{"type": "string"},
		"strengths":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"weaknesses":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"recommendations": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required":             []string{"score", "summary", "strengths", "weaknesses", "recommendations"},
	"additionalProperties": false,
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat map[string]any `json:"response_format"`
	Temperature    float64        `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func buildIdeaPrompt(idea *models.Idea) string {
	var b strings.Builder
	fmt.Fprintf(&b, "عنوان الفكرة: %s\n", idea.Title)
	if idea.Category != "" {
		fmt.Fprintf(&b, "التصنيف: %s\n", idea.Category)
	}
	if idea.FundingGoal != nil {
		fmt.Fprintf(&b, "هدف التمويل: %.0f ريال\n", *idea.FundingGoal)
	}
	fmt.Fprintf(&b, "الوصف:\n%s\n", idea.Description)
	return b.String()
}

func (e *LLMEvaluator) Evaluate(ctx context.Context, idea *models.Idea) (*Evaluation, error) {
	payload, err := json.Marshal(chatRequest{
		Model: e.Model,
		Messages: []chatMessage{
			{Role: "system", Content: evaluationSystemPrompt},
			{Role: "user", Content: buildIdeaPrompt(idea)},
		},
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "idea_evaluation",
				"strict": true,
				"schema": evaluationSchema,
			},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode request: %w", ErrEvaluationFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrEvaluationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call model: %w", ErrEvaluationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: model returned status %d: %s", ErrEvaluationFailed, resp.StatusCode, string(body))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %w", ErrEvaluationFailed, err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: model returned no choices", ErrEvaluationFailed)
	}

	eval, err := parseEvaluation(out.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	eval.Model = out.Model
	if eval.Model == "" {
		eval.Model = e.Model
	}
	return eval, nil
}

func parseEvaluation(content string) (*Evaluation, error) {
	content = strings.TrimSpace(content)
	// Some providers still fence JSON output even with a schema.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var eval Evaluation
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &eval); err != nil {
		return nil, fmt.Errorf("%w: malformed evaluation: %w", ErrEvaluationFailed, err)
	}

	eval.Score = max(0, min(100, eval.Score))
	eval.Summary = strings.TrimSpace(eval.Summary)
	if eval.Strengths == nil {
		eval.Strengths = []string{}
	}
	if eval.Weaknesses == nil {
		eval.Weaknesses = []string{}
	}
	if eval.Recommendations == nil {
		eval.Recommendations = []string{}
	}
	return &eval, nil
}
