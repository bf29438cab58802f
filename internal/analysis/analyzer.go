package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haneul-dev/cribwatch/internal/observe"
	"github.com/haneul-dev/cribwatch/pkg/provider/vision"
)

// instruction is the fixed risk-detection prompt. It names the four risk
// categories the service watches for and constrains the answer to a single
// JSON object describing the single most important situation.
const instruction = `이 비디오를 분석하여 어린이 보살핌 서비스에 필요한 알람 상황을 찾아주세요.
다음과 같은 상황에 특히 주의해주세요:
1. 아이가 위험한 행동을 하는 경우
2. 아이가 울거나 도움이 필요해 보이는 경우
3. 아이가 위험한 물건에 접근하는 경우
4. 아이가 혼자 있는 경우

여러 상황이 보이면 가장 중요한 상황 하나만 보고해주세요.
결과를 다음 JSON 형식으로 반환해주세요:
{
    "alarm_needed": boolean,
    "severity": "high/medium/low",
    "situation": "상황 설명",
    "recommended_action": "권장 조치",
    "recommended_shout_message": "경고 방송 문구"
}`

// Analyzer submits uploaded footage to a vision provider and parses the
// reply into a [Result].
type Analyzer struct {
	provider vision.Provider
	metrics  *observe.Metrics
}

// NewAnalyzer creates an Analyzer. metrics may be nil in tests.
func NewAnalyzer(provider vision.Provider, metrics *observe.Metrics) *Analyzer {
	return &Analyzer{provider: provider, metrics: metrics}
}

// Analyze sends the fixed instruction plus the video's remote locator to
// the model and parses the textual reply. A reply that contains no parsable
// JSON returns [ErrUnparsable]; callers report the analysis as unavailable
// and skip the alert stage.
func (a *Analyzer) Analyze(ctx context.Context, locator, mimeType string) (*Result, error) {
	start := time.Now()
	reply, err := a.provider.Generate(ctx, instruction, vision.MediaRef{
		URI:      locator,
		MIMEType: mimeType,
	})
	if a.metrics != nil {
		a.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("analysis: generate: %w", err)
	}

	result, err := ParseReply(reply)
	if err != nil {
		observe.Logger(ctx).Warn("model reply was not parsable",
			"locator", locator,
			"reply_len", len(reply),
		)
		return nil, err
	}

	slog.Debug("analysis complete",
		"locator", locator,
		"alarm_needed", result.AlarmNeeded,
		"severity", result.Severity,
	)
	return result, nil
}
