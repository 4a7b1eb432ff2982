package llm

import (
	"context"
	"errors"
	"log"
	"time"

	"aira/internal/logging"
)

// RetryEvent describes a scheduled retry.
type RetryEvent struct {
	Attempt     int           `json:"attempt"`
	NextAttempt int           `json:"nextAttempt"`
	MaxAttempts int           `json:"maxAttempts"`
	Delay       time.Duration `json:"-"`
	DelayMs     int64         `json:"delayMs"`
	Error       string        `json:"error"`
}

// RetryPolicy bounds ChatWithRetry. The zero value means 5 attempts with the
// delay doubling from 1s to 16s.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// OnRetry is called before each wait.
	OnRetry func(RetryEvent)
	Logger  *log.Logger

	sleep func(context.Context, time.Duration) error
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 16 * time.Second
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	p.Logger = logging.OrDiscard(p.Logger)
	return p
}

// ChatWithRetry calls client.Chat, retrying transient failures with
// exponential backoff. Non-retryable provider errors return immediately.
func ChatWithRetry(ctx context.Context, client Client, req ChatRequest, policy RetryPolicy) (ChatResponse, error) {
	p := policy.withDefaults()
	delay := p.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		start := time.Now()
		resp, err := client.Chat(ctx, req)
		elapsed := time.Since(start).Round(time.Millisecond)
		logging.DevLog("provider call finished: err=%v (attempt %d/%d, duration=%s)", err, attempt, p.MaxAttempts, elapsed)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return ChatResponse{}, context.Canceled
		}
		if pe, ok := IsProviderError(err); ok {
			if !pe.Retryable {
				p.Logger.Printf("provider error (non-retryable): %s", pe.Error())
				return ChatResponse{}, err
			}
			if pe.RetryAfter != nil && *pe.RetryAfter > delay {
				delay = *pe.RetryAfter
			}
		}

		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}
		p.Logger.Printf("retrying provider call (attempt %d/%d) after %v", attempt+1, p.MaxAttempts, err)
		if p.OnRetry != nil {
			p.OnRetry(RetryEvent{
				Attempt:     attempt,
				NextAttempt: attempt + 1,
				MaxAttempts: p.MaxAttempts,
				Delay:       delay,
				DelayMs:     delay.Milliseconds(),
				Error:       err.Error(),
			})
		}
		if err := p.sleep(ctx, delay); err != nil {
			return ChatResponse{}, context.Canceled
		}
		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return ChatResponse{}, lastErr
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
