// Package analyzer asks the language model for a structured content proposal
// for one resource, given the text the collector gathered.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/jonathan/resource-pipeline/internal/fetch"
	"github.com/jonathan/resource-pipeline/internal/llm"
	"github.com/jonathan/resource-pipeline/internal/logging"
	"github.com/jonathan/resource-pipeline/internal/prompts"
	"github.com/jonathan/resource-pipeline/internal/schemas"
	"github.com/jonathan/resource-pipeline/internal/throttle"
	"github.com/jonathan/resource-pipeline/internal/types"
)

// DefaultMaxInputChars bounds the collected text sent to the model.
const DefaultMaxInputChars = 12000

// Difficulty levels the model may return.
var difficulties = []string{"beginner", "intermediate", "advanced"}

// AnalysisError is returned when the model call fails or its output cannot be used.
type AnalysisError struct {
	Stage   string
	Message string
	Cause   error
}

func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("analysis %s: %s: %v", e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("analysis %s: %s", e.Stage, e.Message)
}

func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// Input is what one analysis sees.
type Input struct {
	Resource *types.Resource
	Text     string
}

// Options configures an Analyzer.
type Options struct {
	Tier          llm.ModelTier
	MaxInputChars int
}

// Analyzer produces an Analysis with exactly one model call per invocation.
type Analyzer struct {
	client   llm.Client
	throttle *throttle.Registry
	opts     Options
	logger   *zap.Logger
}

// New creates an Analyzer.
func New(client llm.Client, limiter *throttle.Registry, opts Options, logger *zap.Logger) *Analyzer {
	if opts.Tier == "" {
		opts.Tier = llm.TierStandard
	}
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = DefaultMaxInputChars
	}
	return &Analyzer{
		client:   client,
		throttle: limiter,
		opts:     opts,
		logger:   logging.OrNop(logger),
	}
}

// Analyze builds the prompt, calls the model once and validates the result.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*types.Analysis, error) {
	if in.Resource == nil {
		return nil, &AnalysisError{Stage: "prompt", Message: "resource is required"}
	}
	if a.client == nil {
		return nil, &AnalysisError{Stage: "call", Message: "no LLM client configured"}
	}

	system, user, err := BuildPrompt(in, a.opts.MaxInputChars)
	if err != nil {
		return nil, &AnalysisError{Stage: "prompt", Message: "failed to build prompt", Cause: err}
	}

	if err := a.throttle.Wait(ctx, throttle.ServiceLLM); err != nil {
		return nil, &AnalysisError{Stage: "call", Message: "throttle wait interrupted", Cause: err}
	}

	a.logger.Debug("requesting analysis",
		zap.String("slug", in.Resource.Slug),
		zap.Int("input_chars", len(user)),
		zap.String("model", a.client.GetModel(a.opts.Tier)))

	raw, err := a.client.GenerateJSON(ctx, system, user, a.opts.Tier)
	if err != nil {
		return nil, &AnalysisError{Stage: "call", Message: "model call failed", Cause: err}
	}

	analysis, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	analysis.Model = a.client.GetModel(a.opts.Tier)

	a.logger.Info("analysis complete",
		zap.String("slug", in.Resource.Slug),
		zap.Float64("confidence", analysis.Confidence))
	return analysis, nil
}

// BuildPrompt renders the system and user prompts for in.
func BuildPrompt(in Input, maxInput int) (system, user string, err error) {
	system, err = prompts.Get(prompts.AnalyzerFile, prompts.KeySystem)
	if err != nil {
		return "", "", err
	}
	template, err := prompts.Get(prompts.AnalyzerFile, prompts.KeyUser)
	if err != nil {
		return "", "", err
	}

	r := in.Resource
	features := lo.Map(r.Features, func(f string, _ int) string { return "- " + f })
	user = prompts.Format(template, map[string]string{
		"Title":       r.Title,
		"Slug":        r.Slug,
		"Category":    orNone(r.Category),
		"URL":         r.URL,
		"Description": orNone(r.Description),
		"Overview":    orNone(r.Overview),
		"Features":    orNone(strings.Join(features, "\n")),
		"Tags":        orNone(strings.Join(r.Tags, ", ")),
		"Difficulty":  orNone(r.Difficulty),
		"Text":        fetch.Truncate(in.Text, maxInput),
	})
	return system, user, nil
}

// Parse validates a raw model response and converts it to an Analysis.
// Confidence is clamped to [0,1]; list fields are trimmed and de-duplicated.
func Parse(raw string) (*types.Analysis, error) {
	cleaned := llm.CleanJSONBlock(raw)
	if cleaned == "" {
		return nil, &AnalysisError{Stage: "parse", Message: "empty model response"}
	}

	if err := schemas.ValidateAnalysis([]byte(cleaned)); err != nil {
		return nil, &AnalysisError{Stage: "validate", Message: "response does not match schema", Cause: err}
	}

	var analysis types.Analysis
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		return nil, &AnalysisError{Stage: "parse", Message: "response is not a valid object", Cause: err}
	}

	analysis.Description = strings.TrimSpace(analysis.Description)
	analysis.Overview = strings.TrimSpace(analysis.Overview)
	analysis.Features = cleanList(analysis.Features, false)
	analysis.Tags = cleanList(analysis.Tags, true)
	analysis.RemovedFeatures = cleanList(analysis.RemovedFeatures, false)
	analysis.Difficulty = strings.ToLower(strings.TrimSpace(analysis.Difficulty))
	if !lo.Contains(difficulties, analysis.Difficulty) {
		analysis.Difficulty = ""
	}
	analysis.Confidence = ClampConfidence(analysis.Confidence)
	return &analysis, nil
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

func cleanList(items []string, lower bool) []string {
	out := lo.FilterMap(items, func(s string, _ int) (string, bool) {
		s = strings.TrimSpace(s)
		if lower {
			s = strings.ToLower(s)
		}
		return s, s != ""
	})
	return lo.Uniq(out)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
