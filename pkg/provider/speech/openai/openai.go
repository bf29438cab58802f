// Package openai provides a speech provider backed by the OpenAI
// text-to-speech API. It implements the speech.Provider interface and serves
// as the alternative alert voice when Google Cloud TTS is not available.
package openai

import (
	"context"
	"fmt"
	"io"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/haneul-dev/cribwatch/pkg/provider/speech"
)

// DefaultModel is the default OpenAI speech model.
const DefaultModel = oai.SpeechModelTTS1

// Option is a functional option for Provider.
type Option func(*Provider)

// WithModel overrides the default speech model.
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = oai.SpeechModel(model)
		}
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.reqOpts = append(p.reqOpts, option.WithBaseURL(url))
	}
}

// Provider implements speech.Provider using the OpenAI API. Output encoding
// is MP3, fixed, to match what the playback backend decodes.
type Provider struct {
	client  oai.Client
	model   oai.SpeechModel
	reqOpts []option.RequestOption
}

// Compile-time assertion that Provider satisfies the speech.Provider interface.
var _ speech.Provider = (*Provider)(nil)

// New constructs an OpenAI speech Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai speech: apiKey must not be empty")
	}

	p := &Provider{model: DefaultModel}
	p.reqOpts = append(p.reqOpts, option.WithAPIKey(apiKey))
	for _, o := range opts {
		o(p)
	}
	p.client = oai.NewClient(p.reqOpts...)
	return p, nil
}

// Synthesize converts text into an MP3 clip.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("openai speech: text must not be empty")
	}

	res, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          p.model,
		Voice:          oai.AudioSpeechNewParamsVoiceAlloy,
		Input:          text,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: synthesize: %w", err)
	}
	defer res.Body.Close()

	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("openai speech: read audio: %w", err)
	}
	return audio, nil
}

// Close is a no-op; the OpenAI client holds no connection state.
func (p *Provider) Close() error { return nil }
