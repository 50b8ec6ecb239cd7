// Package pipeline runs a clinical payload through featurization, inference,
// ranking, attribution and red-flag evaluation and assembles the response.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/Skufu/triage/internal/attribution"
	"github.com/Skufu/triage/internal/cache"
	"github.com/Skufu/triage/internal/clinical"
	"github.com/Skufu/triage/internal/featurize"
	"github.com/Skufu/triage/internal/inference"
	"github.com/Skufu/triage/internal/metrics"
	"github.com/Skufu/triage/internal/ranking"
	"github.com/Skufu/triage/internal/redflag"
	"github.com/mdobak/go-xerrors"
	"github.com/rs/zerolog/log"
)

// fallbackProbs is returned when the numeric runtime is unavailable.
var fallbackProbs = []float64{0.72, 0.18, 0.10}

const (
	outcomeOK       = "ok"
	outcomeFallback = "fallback"
	outcomeError    = "error"
	outcomeCacheHit = "cache_hit"
)

// Analysis is the response envelope. Every field is always present except
// Error, which is set only when the analysis failed. Cached analyses are
// cloned before they are returned, so callers own the slices they receive.
type Analysis struct {
	Diagnoses      []ranking.Diagnosis `json:"diagnoses"`
	RedFlags       []redflag.RedFlag   `json:"redFlags"`
	Explainability attribution.Result  `json:"explainability"`
	LatencyMs      int64               `json:"latencyMs"`
	Error          string              `json:"error,omitempty"`
}

// HealthStatus describes the model and capability state.
type HealthStatus struct {
	ModelLoaded              bool    `json:"modelLoaded"`
	Device                   *string `json:"device"`
	NumericRuntimeAvailable  bool    `json:"numericRuntimeAvailable"`
	AcceleratorAvailable     bool    `json:"acceleratorAvailable"`
	PrimaryMethodAvailable   bool    `json:"primaryMethodAvailable"`
	SecondaryMethodAvailable bool    `json:"secondaryMethodAvailable"`
}

type Pipeline struct {
	featurizer *featurize.Featurizer
	engine     *inference.Engine
	explainer  *attribution.Engine
	redflags   *redflag.Evaluator
	cache      *cache.Cache
	now        func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithCache enables result caching. Cached analyses are reused for identical
// payloads until they expire.
func WithCache(c *cache.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// New wires the stages. All of them must share the engine's capability set.
func New(engine *inference.Engine, explainer *attribution.Engine, redflags *redflag.Evaluator, opts ...Option) *Pipeline {
	p := &Pipeline{
		featurizer: featurize.New(engine.Capabilities()),
		engine:     engine,
		explainer:  explainer,
		redflags:   redflags,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Analyze never returns an error: failures are reported in Analysis.Error
// with empty results.
func (p *Pipeline) Analyze(ctx context.Context, payload clinical.Payload) (out Analysis) {
	start := p.now()
	outcome := outcomeOK
	defer func() {
		if r := recover(); r != nil {
			err := xerrors.New(fmt.Sprintf("analyze panic: %v", r))
			log.Error().Err(err).Msg("Recovered from panic during analysis")
			out = errorAnalysis(err)
			outcome = outcomeError
		}
		elapsed := p.now().Sub(start)
		out.LatencyMs = elapsed.Milliseconds()
		metrics.Timing(metrics.AnalyzeLatency, elapsed, []string{metrics.Tag("outcome", outcome)})
		metrics.Count(metrics.AnalyzeCount, 1, []string{metrics.Tag("outcome", outcome)})
	}()

	if err := ctx.Err(); err != nil {
		outcome = outcomeError
		return errorAnalysis(err)
	}

	key, cacheable := p.cacheKey(payload)
	if cacheable {
		if v, ok := p.cache.Get(key); ok {
			if cached, ok := v.(Analysis); ok {
				outcome = outcomeCacheHit
				return cached.clone()
			}
		}
	}

	out, err := p.run(payload)
	switch {
	case errors.Is(err, inference.ErrRuntimeUnavailable):
		outcome = outcomeFallback
		out = p.fallback(payload)
	case err != nil:
		log.Error().Err(err).Msg("Analysis failed")
		outcome = outcomeError
		return errorAnalysis(err)
	}

	for _, f := range out.RedFlags {
		metrics.Count(metrics.RedFlagCount, 1, []string{metrics.Tag("condition", f.Condition)})
	}
	metrics.Count(metrics.AttributionCount, 1, []string{metrics.Tag("method", out.Explainability.Method)})

	if cacheable && outcome == outcomeOK {
		p.cache.Set(key, out.clone())
	}
	return out
}

func (p *Pipeline) run(payload clinical.Payload) (Analysis, error) {
	x, err := p.featurizer.Featurize(payload)
	if err != nil {
		return Analysis{}, fmt.Errorf("featurize: %w", err)
	}
	probs, err := p.engine.Predict(x)
	if err != nil {
		return Analysis{}, fmt.Errorf("predict: %w", err)
	}
	for i, pr := range probs {
		if math.IsNaN(pr) || math.IsInf(pr, 0) {
			return Analysis{}, fmt.Errorf("predict: non-finite probability for %s", clinical.Label(i))
		}
	}
	diagnoses := ranking.Rank(probs, payload.RequestedK(len(probs)))

	explanation := p.explainer.Explain(p.engine, x, diagnoses[0].Index, payload.Method())
	if !explanation.Available && explanation.Reason != "" {
		log.Debug().Str("reason", explanation.Reason).Msg("Attribution unavailable")
	}

	return Analysis{
		Diagnoses:      diagnoses,
		RedFlags:       p.redflags.Evaluate(payload),
		Explainability: explanation,
	}, nil
}

func (p *Pipeline) fallback(payload clinical.Payload) Analysis {
	probs := append([]float64(nil), fallbackProbs...)
	return Analysis{
		Diagnoses:      ranking.Rank(probs, payload.RequestedK(len(probs))),
		RedFlags:       p.redflags.Evaluate(payload),
		Explainability: attribution.Unavailable("numeric runtime unavailable"),
	}
}

func (p *Pipeline) cacheKey(payload clinical.Payload) (string, bool) {
	if p.cache == nil {
		return "", false
	}
	key, err := cache.Key(payload)
	if err != nil {
		log.Warn().Err(err).Msg("Payload not cacheable")
		return "", false
	}
	return key, true
}

func (a Analysis) clone() Analysis {
	out := a
	out.Diagnoses = slices.Clone(a.Diagnoses)
	out.RedFlags = make([]redflag.RedFlag, len(a.RedFlags))
	for i, f := range a.RedFlags {
		f.Rationale = slices.Clone(f.Rationale)
		out.RedFlags[i] = f
	}
	out.Explainability.Features = slices.Clone(a.Explainability.Features)
	out.Explainability.Attributions = slices.Clone(a.Explainability.Attributions)
	return out
}

func errorAnalysis(err error) Analysis {
	return Analysis{
		Diagnoses:      []ranking.Diagnosis{},
		RedFlags:       []redflag.RedFlag{},
		Explainability: attribution.Unavailable("analysis failed"),
		Error:          err.Error(),
	}
}

// Health reports the model and capability state. It never loads the model.
func (p *Pipeline) Health() HealthStatus {
	caps := p.engine.Capabilities()
	loaded, device := p.engine.Loaded()
	h := HealthStatus{
		ModelLoaded:              loaded,
		NumericRuntimeAvailable:  caps.NumericRuntime,
		AcceleratorAvailable:     caps.Accelerator,
		PrimaryMethodAvailable:   caps.PrimaryMethod(),
		SecondaryMethodAvailable: caps.SecondaryMethod(),
	}
	if loaded {
		h.Device = &device
	}
	return h
}
