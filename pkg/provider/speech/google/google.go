// Package google provides a Google Cloud Text-to-Speech-backed speech
// provider. It implements the speech.Provider interface.
package google

import (
	"context"
	"errors"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"github.com/haneul-dev/cribwatch/pkg/provider/speech"
)

// DefaultLanguageCode is the locale alerts are spoken in.
const DefaultLanguageCode = "ko-KR"

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithLanguageCode overrides the default ko-KR locale.
func WithLanguageCode(code string) Option {
	return func(p *Provider) {
		if code != "" {
			p.languageCode = code
		}
	}
}

// WithCredentialsFile points the client at a service-account key file
// instead of application default credentials.
func WithCredentialsFile(path string) Option {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, option.WithCredentialsFile(path))
	}
}

// Provider implements speech.Provider backed by Google Cloud Text-to-Speech.
// Voice gender is neutral and the encoding is MP3, both fixed.
type Provider struct {
	client       *texttospeech.Client
	languageCode string
	clientOpts   []option.ClientOption
}

// Compile-time assertion that Provider satisfies the speech.Provider interface.
var _ speech.Provider = (*Provider)(nil)

// New creates a Google Cloud TTS Provider.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	p := &Provider{languageCode: DefaultLanguageCode}
	for _, o := range opts {
		o(p)
	}

	client, err := texttospeech.NewClient(ctx, p.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google tts: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// Synthesize converts text into an MP3 clip using a neutral voice in the
// configured locale.
func (p *Provider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return nil, errors.New("google tts: text must not be empty")
	}

	resp, err := p.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: p.languageCode,
			SsmlGender:   texttospeechpb.SsmlVoiceGender_NEUTRAL,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("google tts: synthesize: %w", err)
	}
	return resp.AudioContent, nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}
