// Package invoker wraps model clients with retry, fallback, and timeout
// policy so the agent loop only ever sees a usable response or a single
// terminal error.
package invoker

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"

	apperrors "github.com/zonewise-dev/zonewise/pkg/agent/errors"
	"github.com/zonewise-dev/zonewise/pkg/agent/llm"
)

// Result is a successful invocation and the model that produced it
type Result struct {
	Response  *llm.Response
	ModelUsed string
}

// Invoker drives an ordered candidate model list with per-model retries and
// linear backoff. The first structurally valid response wins.
type Invoker struct {
	clients    []llm.Client
	maxRetries int
	baseDelay  time.Duration
	log        logr.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Invoker over the candidate clients, in fallback order.
func New(clients []llm.Client, maxRetries int, baseDelay time.Duration, log logr.Logger) *Invoker {
	return &Invoker{
		clients:    clients,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		log:        log,
		sleep:      sleepContext,
	}
}

// Generate attempts each candidate model in order, retrying transient
// failures up to the per-model budget with linear backoff. A content-safety
// block skips the remaining retries for that model, since retrying a policy
// refusal is pointless. Exhausting every candidate returns a single terminal
// error aggregating all attempts.
func (inv *Invoker) Generate(ctx context.Context, messages []*llm.Content, cfg *llm.GenerateConfig) (*Result, error) {
	var attempts *multierror.Error

	for _, client := range inv.clients {
		model := client.ModelName()

	retries:
		for attempt := 1; attempt <= inv.maxRetries; attempt++ {
			resp, err := client.Generate(ctx, messages, cfg)
			if err == nil {
				return &Result{Response: resp, ModelUsed: model}, nil
			}

			attempts = multierror.Append(attempts, err)
			if ctx.Err() != nil {
				return nil, apperrors.New(apperrors.ErrCodeModelExhausted,
					"model invocation cancelled", attempts.ErrorOrNil())
			}

			class := llm.Classify(err)
			inv.log.V(1).Info("model invocation failed",
				"model", model, "attempt", attempt, "class", class.String())

			switch class {
			case llm.ClassBlocked, llm.ClassTerminal:
				// Not retryable on this model; fall through to the next
				// candidate without consuming the remaining budget.
				break retries
			default:
				if attempt < inv.maxRetries {
					if err := inv.sleep(ctx, time.Duration(attempt)*inv.baseDelay); err != nil {
						return nil, apperrors.New(apperrors.ErrCodeModelExhausted,
							"model invocation cancelled", attempts.ErrorOrNil())
					}
				}
			}
		}
	}

	return nil, apperrors.New(apperrors.ErrCodeModelExhausted,
		"all candidate models exhausted", attempts.ErrorOrNil())
}

// Grounded drives a single retrieval-grounded model. Grounding is
// model-specific, so there is no fallback; instead each attempt runs under a
// hard wall-clock timeout, and hitting it is terminal rather than retried —
// repeated long-running failures signal a real upstream problem, not a blip.
type Grounded struct {
	client     llm.GroundedClient
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
	log        logr.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewGrounded creates the grounded-query invoker.
func NewGrounded(client llm.GroundedClient, maxRetries int, baseDelay, timeout time.Duration, log logr.Logger) *Grounded {
	return &Grounded{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		timeout:    timeout,
		log:        log,
		sleep:      sleepContext,
	}
}

// Generate runs the grounded query with per-attempt timeouts and exponential
// backoff between transient failures.
func (g *Grounded) Generate(ctx context.Context, question string) (*llm.Response, error) {
	var attempts *multierror.Error

	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		resp, err := g.client.GenerateGrounded(callCtx, question)
		timedOut := callCtx.Err() != nil && ctx.Err() == nil
		cancel()

		if err == nil {
			return resp, nil
		}

		attempts = multierror.Append(attempts, err)
		if timedOut {
			return nil, apperrors.New(apperrors.ErrCodeModelTimeout,
				"grounded query exceeded wall-clock timeout", attempts.ErrorOrNil())
		}
		if ctx.Err() != nil {
			return nil, apperrors.New(apperrors.ErrCodeModelExhausted,
				"grounded query cancelled", attempts.ErrorOrNil())
		}

		class := llm.Classify(err)
		g.log.V(1).Info("grounded query failed",
			"model", g.client.ModelName(), "attempt", attempt, "class", class.String())

		if class == llm.ClassBlocked || class == llm.ClassTerminal {
			return nil, apperrors.New(apperrors.ErrCodeModelExhausted,
				"grounded query failed", attempts.ErrorOrNil())
		}

		if attempt < g.maxRetries {
			if err := g.sleep(ctx, g.baseDelay<<(attempt-1)); err != nil {
				return nil, apperrors.New(apperrors.ErrCodeModelExhausted,
					"grounded query cancelled", attempts.ErrorOrNil())
			}
		}
	}

	return nil, apperrors.New(apperrors.ErrCodeModelExhausted,
		"grounded query retries exhausted", attempts.ErrorOrNil())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
