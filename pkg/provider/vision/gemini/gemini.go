// Package gemini provides a Gemini-backed vision provider using the Vertex
// AI backend of the Google GenAI SDK. It implements the vision.Provider
// interface.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/haneul-dev/cribwatch/pkg/provider/vision"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-1.5-flash-002"

// Generation parameters are fixed: the analysis prompt expects a complete
// JSON answer in one shot and the footage must never be refused on safety
// grounds, so all four harm categories are relaxed to no blocking.
const (
	maxOutputTokens int32   = 8192
	temperature     float32 = 1
	topP            float32 = 0.95
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel overrides the default Gemini model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// Provider implements vision.Provider backed by Gemini on Vertex AI.
type Provider struct {
	client *genai.Client
	model  string
}

// Compile-time assertion that Provider satisfies the vision.Provider interface.
var _ vision.Provider = (*Provider)(nil)

// New creates a Gemini Provider bound to the given Google Cloud project and
// location. Both must be non-empty; credentials are resolved via application
// default credentials.
func New(ctx context.Context, projectID, location string, opts ...Option) (*Provider, error) {
	if projectID == "" || location == "" {
		return nil, errors.New("gemini: projectID and location must not be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	p := &Provider{client: client, model: DefaultModel}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Generate sends the instruction and a file-data part referencing media to
// the model and returns the reply text. Non-streaming.
func (p *Provider) Generate(ctx context.Context, instruction string, media vision.MediaRef) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(instruction),
			genai.NewPartFromURI(media.URI, media.MIMEType),
		}, genai.RoleUser),
	}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: maxOutputTokens,
		Temperature:     genai.Ptr(temperature),
		TopP:            genai.Ptr(topP),
		SafetySettings:  relaxedSafetySettings(),
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: model %q returned an empty reply", p.model)
	}
	return text, nil
}

// relaxedSafetySettings turns off blocking for all four harm categories.
func relaxedSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHateSpeech,
		genai.HarmCategoryDangerousContent,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryHarassment,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdOff,
		})
	}
	return settings
}

// Close releases the underlying client. The GenAI SDK holds no connection
// state that requires explicit teardown, so Close only drops the reference.
func (p *Provider) Close() error {
	p.client = nil
	return nil
}
