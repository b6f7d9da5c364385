// Package chainsync checks that configured RPC endpoints are connected to the
// chain they are configured for.
package chainsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gaproadmap/internal/ports"
)

var (
	ErrChainMismatch = errors.New("chain mismatch")
	ErrUnknownChain  = errors.New("unknown chain")
)

// MismatchError reports the chain id an endpoint returned instead of the
// expected one.
type MismatchError struct {
	Expected int64
	Actual   int64
	Attempts int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("chain mismatch: expected %d, connected to %d after %d attempt(s)", e.Expected, e.Actual, e.Attempts)
}

func (e *MismatchError) Unwrap() error { return ErrChainMismatch }

type Service struct {
	readers     map[int64]ports.ChainReader
	maxAttempts int
	interval    time.Duration
	logger      *zap.Logger
}

func New(readers map[int64]ports.ChainReader, maxAttempts int, interval time.Duration, logger *zap.Logger) *Service {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Service{readers: readers, maxAttempts: maxAttempts, interval: interval, logger: logger}
}

// Chains lists the configured chain ids.
func (s *Service) Chains() []int64 {
	out := make([]int64, 0, len(s.readers))
	for id := range s.readers {
		out = append(out, id)
	}
	return out
}

// Validate reads the chain id once.
func (s *Service) Validate(ctx context.Context, expected int64) error {
	reader, ok := s.readers[expected]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChain, expected)
	}
	return check(ctx, reader, expected, 1)
}

// WaitForChain polls the chain's endpoint until it reports expected. Read
// errors count as attempts. The last failure is returned once attempts run out.
func (s *Service) WaitForChain(ctx context.Context, expected int64) error {
	reader, ok := s.readers[expected]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChain, expected)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = check(ctx, reader, expected, attempt)
		if lastErr == nil {
			if attempt > 1 {
				s.logger.Info("Chain in sync", zap.Int64("chain_id", expected), zap.Int("attempts", attempt))
			}
			return nil
		}
		if attempt == s.maxAttempts {
			break
		}
		s.logger.Debug("Chain not ready",
			zap.Int64("chain_id", expected),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return lastErr
}

func check(ctx context.Context, reader ports.ChainReader, expected int64, attempt int) error {
	actual, err := reader.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}
	if actual != expected {
		return &MismatchError{Expected: expected, Actual: actual, Attempts: attempt}
	}
	return nil
}
