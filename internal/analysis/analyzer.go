// Package analysis turns a finished call transcript into a structured Result.
//
// Analysis is best-effort: Analyze never returns an error. Empty transcripts short-circuit
// to NoConversation and every failure collapses to Failed.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"

	"voicebot/pkg/logger"
)

// Completer issues one structured-generation request.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

type Options struct {
	// Timeout bounds the whole analysis including retries.
	Timeout time.Duration
	// MaxElapsed bounds retry time for transient errors.
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	// Retryable classifies errors; nil means retry everything.
	Retryable func(error) bool
}

type Analyzer struct {
	llm      Completer
	opts     Options
	validate *validator.Validate
}

func NewAnalyzer(llm Completer, opts Options) *Analyzer {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 15 * time.Second
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	return &Analyzer{llm: llm, opts: opts, validate: validator.New()}
}

func (a *Analyzer) Analyze(ctx context.Context, transcript string) Result {
	if strings.TrimSpace(transcript) == "" {
		return NoConversation()
	}
	log := logger.From(ctx)

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	var out Result
	op := func() error {
		raw, err := a.llm.CompleteJSON(ctx, rubric, transcript)
		if err != nil {
			if a.opts.Retryable != nil && !a.opts.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		res, err := a.parse(raw)
		if err != nil {
			// A malformed answer will not improve on retry with the same prompt.
			return backoff.Permanent(err)
		}
		out = res
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.opts.InitialInterval
	bo.MaxInterval = 4 * time.Second
	bo.MaxElapsedTime = a.opts.MaxElapsed

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		log.Warn("call analysis failed", slog.Any("err", err))
		return Failed()
	}
	return out
}

func (a *Analyzer) parse(raw string) (Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(extractJSON(raw)), &r); err != nil {
		return Result{}, fmt.Errorf("analysis: decode: %w", err)
	}
	r.Summary = strings.TrimSpace(r.Summary)
	r.Intent = strings.TrimSpace(r.Intent)
	r.Outcome = strings.TrimSpace(r.Outcome)
	if err := a.validate.Struct(r); err != nil {
		return Result{}, fmt.Errorf("analysis: invalid result: %w", err)
	}
	return r, nil
}

// extractJSON strips a markdown code fence some models wrap around JSON output.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx != -1 {
			content = content[:idx]
		}
	}
	return strings.TrimSpace(content)
}
