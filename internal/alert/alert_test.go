package alert

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
)

// fakeSpeech implements speech.Provider with canned audio bytes.
type fakeSpeech struct {
	audio []byte
	err   error

	gotText string
}

func (f *fakeSpeech) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.gotText = text
	return f.audio, f.err
}

func (f *fakeSpeech) Close() error { return nil }

func TestSynthesize_WritesUniqueClip(t *testing.T) {
	fake := &fakeSpeech{audio: []byte("fake-mp3-bytes")}
	s := NewSynthesizer(fake, t.TempDir(), nil)

	a, err := s.Synthesize(context.Background(), "경고! 아이가 혼자 있습니다.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	t.Cleanup(func() { _ = a.Remove() })

	if fake.gotText != "경고! 아이가 혼자 있습니다." {
		t.Errorf("provider received %q", fake.gotText)
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		t.Fatalf("read clip: %v", err)
	}
	if string(data) != "fake-mp3-bytes" {
		t.Errorf("clip content = %q", data)
	}
	if !strings.HasSuffix(a.Path, ".mp3") {
		t.Errorf("clip path %q lacks .mp3 suffix", a.Path)
	}

	b, err := s.Synthesize(context.Background(), "another alert")
	if err != nil {
		t.Fatalf("second Synthesize: %v", err)
	}
	t.Cleanup(func() { _ = b.Remove() })
	if b.Path == a.Path {
		t.Error("two clips share the same path")
	}
}

func TestSynthesize_BackendFailureWrapsErrSynthesis(t *testing.T) {
	fake := &fakeSpeech{err: errors.New("voice backend down")}
	s := NewSynthesizer(fake, t.TempDir(), nil)

	_, err := s.Synthesize(context.Background(), "anything")
	if !errors.Is(err, ErrSynthesis) {
		t.Fatalf("Synthesize error = %v, want ErrSynthesis", err)
	}
}
