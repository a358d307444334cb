package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/retry"
	"github.com/cac-scouting/scout-engine/pkg/stats"
)

func fastOptions() SummarizerOptions {
	return SummarizerOptions{
		Retry: &retry.Config{
			MaxRetries:   2,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1,
		},
		Breaker: CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour},
	}
}

func sampleInput() SummaryInput {
	return SummaryInput{
		PlayerName: "Iker Muniain",
		Notes: []Note{
			{ReportID: 1, Date: "2024-09-01", Opponent: "Osasuna", Text: "Muy rápido al espacio."},
			{ReportID: 2, Date: "2024-10-12", Text: "Le cuesta defender."},
		},
		Stats: stats.Summary{Count: 2, Mean: 7.25, Median: 7.25, Min: 6.5, Max: 8},
		Trend: stats.Trend{Direction: stats.TrendUp, Delta: 1.5, Window: 1},
	}
}

func TestSummarize_ParsesSpanishKeys(t *testing.T) {
	client := NewMockLLMClient()
	client.GenerateResponseFunc = func(_ context.Context, _ *GenerateRequest) (*GenerateResponseResult, error) {
		return &GenerateResponseResult{Content: "```json\n" + `{
			"fortalezas": ["Velocidad", "  - Desmarque "],
			"mejoras": ["Defensa"],
			"evolucion": "Progresa"
		}` + "\n```"}, nil
	}

	s := NewSummarizer(client, fastOptions(), zap.NewNop())
	summary, err := s.Summarize(t.Context(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, []string{"Velocidad", "Desmarque"}, summary.Strengths)
	assert.Equal(t, []string{"Defensa"}, summary.AreasToImprove)
	assert.Equal(t, []string{"Progresa"}, summary.Trend)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].JSONMode)
	assert.Contains(t, reqs[0].Prompt, "Iker Muniain")
	assert.Contains(t, reqs[0].Prompt, "[Informe #1 · 2024-09-01 · vs Osasuna]")
	assert.Contains(t, reqs[0].Prompt, "[Informe #2 · 2024-10-12 · vs ?]")
	assert.Contains(t, reqs[0].Prompt, "- media: 7.25")
	assert.Contains(t, reqs[0].Prompt, "- tendencia: up (delta=1.50)")
}

func TestSummary_UnmarshalEnglishKeys(t *testing.T) {
	var s Summary
	require.NoError(t, json.Unmarshal([]byte(`{"strengths":["a"],"areas_to_improve":["b"],"trend":[]}`), &s))
	assert.Equal(t, []string{"a"}, s.Strengths)
	assert.Equal(t, []string{"b"}, s.AreasToImprove)
	assert.Empty(t, s.Trend)
	assert.False(t, s.IsEmpty())

	assert.Error(t, json.Unmarshal([]byte(`{"fortalezas": {"x": 1}}`), &s))
	assert.True(t, (&Summary{}).IsEmpty())
}

func TestSummarize_EmptyNotesSkipsModel(t *testing.T) {
	client := NewMockLLMClient()
	s := NewSummarizer(client, fastOptions(), zap.NewNop())

	in := sampleInput()
	in.Notes = []Note{{ReportID: 1, Text: "   "}, {ReportID: 2}}
	summary, err := s.Summarize(t.Context(), in)
	require.NoError(t, err)
	assert.True(t, summary.IsEmpty())
	assert.Equal(t, 0, client.Calls())

	summary, err = s.Summarize(t.Context(), SummaryInput{})
	require.NoError(t, err)
	assert.True(t, summary.IsEmpty())
	assert.Equal(t, 0, client.Calls())
}

func TestSummarize_TruncatesNotes(t *testing.T) {
	client := NewMockLLMClient()
	client.GenerateResponseFunc = func(_ context.Context, _ *GenerateRequest) (*GenerateResponseResult, error) {
		return &GenerateResponseResult{Content: `{"fortalezas":[],"mejoras":[],"evolucion":[]}`}, nil
	}
	opts := fastOptions()
	opts.MaxNoteRunes = 50
	s := NewSummarizer(client, opts, zap.NewNop())

	in := sampleInput()
	in.Notes = []Note{{ReportID: 7, Text: strings.Repeat("ñ", 500)}}
	_, err := s.Summarize(t.Context(), in)
	require.NoError(t, err)

	prompt := client.Requests()[0].Prompt
	idx := strings.Index(prompt, "[OBSERVACIONES A RESUMIR]\n")
	require.GreaterOrEqual(t, idx, 0)
	blob := prompt[idx+len("[OBSERVACIONES A RESUMIR]\n"):]
	assert.Equal(t, 50, len([]rune(blob)))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "áé", truncateRunes("áéí", 2))
	assert.Equal(t, "áéí", truncateRunes("áéí", 3))
	assert.Equal(t, "áéí", truncateRunes("áéí", 10))
	assert.Equal(t, "abc", truncateRunes("abc", 0))
}

func TestSummarize_MalformedReply(t *testing.T) {
	client := NewMockLLMClient()
	client.GenerateResponseFunc = func(_ context.Context, _ *GenerateRequest) (*GenerateResponseResult, error) {
		return &GenerateResponseResult{Content: "No tengo suficiente información."}, nil
	}
	s := NewSummarizer(client, fastOptions(), zap.NewNop())

	_, err := s.Summarize(t.Context(), sampleInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, 1, client.Calls(), "malformed replies are not retried")
	assert.Equal(t, CircuitClosed, s.breaker.State())
}

func TestSummarize_RetriesTransientFailures(t *testing.T) {
	client := NewMockLLMClient()
	client.GenerateResponseFunc = func(_ context.Context, _ *GenerateRequest) (*GenerateResponseResult, error) {
		if client.Calls() < 3 {
			return nil, ClassifyError(errors.New("error, status code: 503, message: model is loading"))
		}
		return &GenerateResponseResult{Content: `{"fortalezas":["Visión"]}`}, nil
	}
	s := NewSummarizer(client, fastOptions(), zap.NewNop())

	summary, err := s.Summarize(t.Context(), sampleInput())
	require.NoError(t, err)
	assert.Equal(t, []string{"Visión"}, summary.Strengths)
	assert.Equal(t, 3, client.Calls())
}

func TestSummarize_UnavailableOpensCircuit(t *testing.T) {
	client := NewMockLLMClient()
	client.GenerateResponseFunc = func(_ context.Context, _ *GenerateRequest) (*GenerateResponseResult, error) {
		return nil, ClassifyError(errors.New("dial tcp: connect: connection refused"))
	}
	s := NewSummarizer(client, fastOptions(), zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := s.Summarize(t.Context(), sampleInput())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrServiceUnavailable)
	}
	assert.Equal(t, CircuitOpen, s.breaker.State())
	calls := client.Calls()
	assert.Equal(t, 6, calls, "each summary tries three times")

	_, err := s.Summarize(t.Context(), sampleInput())
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, calls, client.Calls(), "open circuit makes no call")
}

func TestSummarize_NonRetryableStopsImmediately(t *testing.T) {
	client := NewMockLLMClient()
	client.GenerateResponseFunc = func(_ context.Context, _ *GenerateRequest) (*GenerateResponseResult, error) {
		return nil, ClassifyError(errors.New(`error, status code: 404, message: model "llama3" not found`))
	}
	s := NewSummarizer(client, fastOptions(), zap.NewNop())

	_, err := s.Summarize(t.Context(), sampleInput())
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, ErrorTypeModel, GetErrorType(err))
	assert.Equal(t, 1, client.Calls())
}

func TestSummarize_CancelledContext(t *testing.T) {
	client := NewMockLLMClient()
	client.GenerateResponseFunc = func(ctx context.Context, _ *GenerateRequest) (*GenerateResponseResult, error) {
		return nil, ClassifyError(errors.New("error, status code: 503"))
	}
	opts := fastOptions()
	opts.Retry.InitialDelay = time.Hour
	opts.Retry.MaxDelay = time.Hour
	s := NewSummarizer(client, opts, zap.NewNop())

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := s.Summarize(ctx, sampleInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}
