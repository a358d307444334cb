package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cac-scouting/scout-engine/pkg/retry"
	"github.com/cac-scouting/scout-engine/pkg/stats"
)

// DefaultMaxNoteRunes caps the observations sent to the model.
const DefaultMaxNoteRunes = 8000

// Summarizer condenses a player's report observations into three lists.
type Summarizer interface {
	Summarize(ctx context.Context, in SummaryInput) (*Summary, error)
}

// Note is the observation text of one report.
type Note struct {
	ReportID int64
	Date     string
	Opponent string
	Text     string
}

// SummaryInput is everything the prompt is built from.
type SummaryInput struct {
	PlayerName string
	Notes      []Note
	Stats      stats.Summary
	Trend      stats.Trend
}

// Summary is the structured reply. The model is asked for Spanish keys;
// English keys are accepted too.
type Summary struct {
	Strengths      []string `json:"strengths"`
	AreasToImprove []string `json:"areas_to_improve"`
	Trend          []string `json:"trend"`
}

// IsEmpty reports whether all three lists are empty.
func (s *Summary) IsEmpty() bool {
	return s == nil || len(s.Strengths)+len(s.AreasToImprove)+len(s.Trend) == 0
}

// UnmarshalJSON accepts the Spanish keys from the prompt as well as the English ones.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	pick := func(keys ...string) ([]string, error) {
		for _, k := range keys {
			v, ok := raw[k]
			if !ok {
				continue
			}
			return stringList(v)
		}
		return nil, nil
	}

	var err error
	if s.Strengths, err = pick("fortalezas", "strengths"); err != nil {
		return err
	}
	if s.AreasToImprove, err = pick("mejoras", "areas_to_improve", "improvements"); err != nil {
		return err
	}
	if s.Trend, err = pick("evolucion", "evolución", "trend", "evolution"); err != nil {
		return err
	}
	return nil
}

// stringList decodes a list of strings, tolerating a single string or null.
func stringList(v json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		return cleanItems(list), nil
	}
	var one string
	if err := json.Unmarshal(v, &one); err == nil {
		return cleanItems([]string{one}), nil
	}
	return nil, fmt.Errorf("expected a list of strings, got %s", string(v))
}

func cleanItems(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(it), "-•*"))
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}

// SummarizerOptions tunes ModelSummarizer.
type SummarizerOptions struct {
	MaxNoteRunes int
	Timeout      time.Duration
	Retry        *retry.Config
	Breaker      CircuitBreakerConfig
}

// ModelSummarizer implements Summarizer on top of an LLMClient.
type ModelSummarizer struct {
	client  LLMClient
	breaker *CircuitBreaker
	opts    SummarizerOptions
	logger  *zap.Logger
}

// NewSummarizer wraps client. Zero options fall back to defaults.
func NewSummarizer(client LLMClient, opts SummarizerOptions, logger *zap.Logger) *ModelSummarizer {
	if opts.MaxNoteRunes <= 0 {
		opts.MaxNoteRunes = DefaultMaxNoteRunes
	}
	if opts.Retry == nil {
		opts.Retry = &retry.Config{
			MaxRetries:   2,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     4 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		}
	}
	if opts.Breaker.Threshold <= 0 {
		opts.Breaker = DefaultCircuitBreakerConfig()
	}
	return &ModelSummarizer{
		client:  client,
		breaker: NewCircuitBreaker(opts.Breaker),
		opts:    opts,
		logger:  logger.Named("summarizer"),
	}
}

// Summarize asks the model for strengths, areas to improve and evolution.
// With no observation text it returns an empty summary without calling the model.
// Errors match ErrServiceUnavailable or ErrMalformedResponse.
func (s *ModelSummarizer) Summarize(ctx context.Context, in SummaryInput) (*Summary, error) {
	blob := notesBlob(in.Notes)
	if strings.TrimSpace(blob) == "" {
		return &Summary{}, nil
	}

	if ok, err := s.breaker.Allow(); !ok {
		return nil, NewError(ErrorTypeEndpoint, "circuit open", false, err)
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	req := &GenerateRequest{
		SystemMessage: systemPrompt,
		Prompt:        buildPrompt(in, truncateRunes(blob, s.opts.MaxNoteRunes)),
		Temperature:   0.2,
		JSONMode:      true,
	}

	start := time.Now()
	summary, err := retry.DoWithResult(ctx, s.opts.Retry, func() (*Summary, error) {
		result, err := s.client.GenerateResponse(ctx, req)
		if err != nil {
			return nil, err
		}
		return parseSummary(result.Content)
	})
	if err != nil {
		// A malformed reply means the server is up.
		if errors.Is(err, ErrMalformedResponse) {
			s.breaker.RecordSuccess()
		} else {
			s.breaker.RecordFailure()
		}
		s.logger.Warn("Summary failed",
			zap.String("player", in.PlayerName),
			zap.Int("notes", len(in.Notes)),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("circuit", s.breaker.State().String()),
			zap.Error(err))
		var llmErr *Error
		if errors.As(err, &llmErr) {
			return nil, err
		}
		// context errors from the retry loop
		return nil, NewError(ErrorTypeEndpoint, "summary request aborted", false, err)
	}

	s.breaker.RecordSuccess()
	s.logger.Debug("Summary generated",
		zap.String("player", in.PlayerName),
		zap.Int("strengths", len(summary.Strengths)),
		zap.Int("areas_to_improve", len(summary.AreasToImprove)),
		zap.Duration("elapsed", time.Since(start)))
	return summary, nil
}

func parseSummary(content string) (*Summary, error) {
	summary, err := ParseJSONResponse[Summary](content)
	if err != nil {
		return nil, NewError(ErrorTypeMalformed, "reply is not the expected JSON object", false, err)
	}
	return &summary, nil
}

func notesBlob(notes []Note) string {
	var b strings.Builder
	for _, n := range notes {
		text := strings.TrimSpace(n.Text)
		if text == "" {
			continue
		}
		date := n.Date
		if date == "" {
			date = "?"
		}
		opponent := n.Opponent
		if opponent == "" {
			opponent = "?"
		}
		fmt.Fprintf(&b, "[Informe #%d · %s · vs %s]\n%s\n\n", n.ReportID, date, opponent, text)
	}
	return b.String()
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

const systemPrompt = `Eres un analista de scouting de fútbol. Respondes siempre en español y exclusivamente con JSON válido.`

func buildPrompt(in SummaryInput, blob string) string {
	var b strings.Builder
	b.WriteString("Resume en ESPAÑOL las observaciones de varios informes de un mismo jugador")
	if in.PlayerName != "" {
		fmt.Fprintf(&b, " (%s)", in.PlayerName)
	}
	b.WriteString(".\n\n")

	if in.Stats.Count > 0 {
		b.WriteString("[CONTEXTO CUANTITATIVO]\n")
		fmt.Fprintf(&b, "- informes_con_nota: %d\n", in.Stats.Count)
		fmt.Fprintf(&b, "- media: %.2f\n", in.Stats.Mean)
		fmt.Fprintf(&b, "- mediana: %.2f\n", in.Stats.Median)
		fmt.Fprintf(&b, "- min: %.2f\n", in.Stats.Min)
		fmt.Fprintf(&b, "- max: %.2f\n", in.Stats.Max)
		if in.Trend.Direction != "" {
			fmt.Fprintf(&b, "- tendencia: %s (delta=%.2f)\n", in.Trend.Direction, in.Trend.Delta)
		}
		b.WriteString("\n")
	}

	b.WriteString(`DEVUELVE EXCLUSIVAMENTE JSON VÁLIDO con este esquema, sin texto adicional ni markdown:
{
  "fortalezas": ["punto 1", "punto 2"],
  "mejoras": ["punto 1", "punto 2"],
  "evolucion": ["punto 1", "punto 2"]
}

INSTRUCCIONES:
- "fortalezas": solo aspectos positivos y virtudes del jugador
- "mejoras": solo aspectos negativos o áreas donde debe mejorar
- "evolucion": cambios observados a lo largo del tiempo, progresión o regresión

Evita frases vacías. Si no hay evidencia, deja la lista vacía sin inventar.

[OBSERVACIONES A RESUMIR]
`)
	b.WriteString(blob)
	return b.String()
}

var _ Summarizer = (*ModelSummarizer)(nil)
