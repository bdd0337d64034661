package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ebenpjw/realestate-bot-backend-sub008/platform/config"

	"google.golang.org/genai"
)

// ErrSemanticUnavailable signals that no semantic analyzer is configured.
var ErrSemanticUnavailable = errors.New("semantic analyzer unavailable")

// SemanticAnalyzer produces a classification from the conversation window
// using an external service. Implementations are treated as unreliable: any
// error degrades the caller to the pattern-only path.
type SemanticAnalyzer interface {
	Analyze(ctx context.Context, window []Turn, extra map[string]string) (*Result, error)
}

// GeminiAnalyzer calls the Gemini API with a constrained JSON response
// schema so the model can only answer within the closed state set.
type GeminiAnalyzer struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiAnalyzer creates a GeminiAnalyzer. Returns nil when no API key is
// configured; the service treats a nil analyzer as a permanent semantic
// failure and runs pattern-only.
func NewGeminiAnalyzer(ctx context.Context, cfg config.ClassifierConfig) (*GeminiAnalyzer, error) {
	if !cfg.IsSemanticEnabled() {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	timeout := cfg.GetClassifierTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GeminiAnalyzer{
		client:  client,
		model:   cfg.GetClassifierModel(),
		timeout: timeout,
	}, nil
}

type semanticResponse struct {
	State      string   `json:"state"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Objections []string `json:"objections"`
	Interests  []string `json:"interests"`
}

// Analyze sends the window to Gemini and parses the constrained response.
// Unknown states are coerced to default, confidence clamped to [0,1].
func (a *GeminiAnalyzer) Analyze(ctx context.Context, window []Turn, extra map[string]string) (*Result, error) {
	if a == nil || a.client == nil {
		return nil, fmt.Errorf("semantic analyzer not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.Models.GenerateContent(ctx, a.model,
		genai.Text(buildClassificationPrompt(window, extra)),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   classificationSchema(),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("semantic classification call: %w", err)
	}

	var parsed semanticResponse
	if err := json.Unmarshal([]byte(resp.Text()), &parsed); err != nil {
		return nil, fmt.Errorf("decode classification response: %w", err)
	}

	return &Result{
		State:      ParseLeadState(parsed.State),
		Confidence: clampConfidence(parsed.Confidence),
		Reasoning:  parsed.Reasoning,
		Objections: parsed.Objections,
		Interests:  parsed.Interests,
		Method:     MethodSemantic,
	}, nil
}

func classificationSchema() *genai.Schema {
	states := AllStates()
	enum := make([]string, 0, len(states))
	for _, state := range states {
		enum = append(enum, string(state))
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"state":      {Type: genai.TypeString, Enum: enum},
			"confidence": {Type: genai.TypeNumber},
			"reasoning":  {Type: genai.TypeString},
			"objections": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"interests":  {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		},
		Required: []string{"state", "confidence"},
	}
}

func buildClassificationPrompt(window []Turn, extra map[string]string) string {
	var sb strings.Builder
	sb.WriteString("You classify the state of a property lead after a completed WhatsApp conversation.\n")
	sb.WriteString("Pick exactly one state, estimate your confidence between 0 and 1, and list any objections and interests the lead expressed.\n\n")

	if len(extra) > 0 {
		sb.WriteString("Context:\n")
		for key, value := range extra {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", key, value))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Conversation (most recent last):\n")
	for _, turn := range window {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", turn.Role, turn.Content))
	}

	return sb.String()
}
