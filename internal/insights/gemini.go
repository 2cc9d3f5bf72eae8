package insights

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/f-sync/followdiff/internal/reconcile"
)

const (
	// DefaultGeminiModel is used when no model is configured.
	DefaultGeminiModel        = "gemini-2.5-flash"
	errMessageMissingAPIKey   = "gemini api key is required"
	errMessageCreateClient    = "create gemini client"
	errMessageGenerateContent = "gemini generate content"
	errMessageEmptyResponse   = "gemini returned no text"
)

var (
	// ErrMissingAPIKey indicates that a Gemini summarizer was requested without credentials.
	ErrMissingAPIKey = errors.New(errMessageMissingAPIKey)
	// ErrEmptyResponse indicates that the model answered without any text.
	ErrEmptyResponse = errors.New(errMessageEmptyResponse)
)

// ContentGenerator is the subset of the genai models service used for summaries.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures a GeminiSummarizer.
type GeminiConfig struct {
	APIKey    string
	Model     string
	Generator ContentGenerator
}

// GeminiSummarizer produces narrative summaries with Google's Gemini models.
type GeminiSummarizer struct {
	generator ContentGenerator
	model     string
}

var _ Summarizer = (*GeminiSummarizer)(nil)

// NewGeminiSummarizer constructs a summarizer. A Generator in the configuration
// replaces the genai client, which is otherwise created from APIKey.
func NewGeminiSummarizer(ctx context.Context, configuration GeminiConfig) (*GeminiSummarizer, error) {
	model := strings.TrimSpace(configuration.Model)
	if model == "" {
		model = DefaultGeminiModel
	}

	generator := configuration.Generator
	if generator == nil {
		apiKey := strings.TrimSpace(configuration.APIKey)
		if apiKey == "" {
			return nil, ErrMissingAPIKey
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errMessageCreateClient, err)
		}
		generator = client.Models
	}

	return &GeminiSummarizer{generator: generator, model: model}, nil
}

// Summarize asks the model for a narrative description of stats.
func (summarizer *GeminiSummarizer) Summarize(ctx context.Context, stats reconcile.Stats) (string, error) {
	prompt, err := BuildPrompt(stats)
	if err != nil {
		return "", err
	}
	response, err := summarizer.generator.GenerateContent(ctx, summarizer.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errMessageGenerateContent, err)
	}
	if response == nil {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(response.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
