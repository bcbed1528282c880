package anchor

import (
	"context"
	"log/slog"

	"aegis/internal/ledger/models"
	"aegis/pkg/platform/circuit"
)

type Publisher interface {
	Publish(ctx context.Context, event models.AnchorEvent) error
}

// FallbackPublisher sends anchors to primary and diverts them to fallback
// while the breaker is open. The primary is still tried so the breaker can
// close once it recovers.
type FallbackPublisher struct {
	primary  Publisher
	fallback Publisher
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFallbackPublisher(primary, fallback Publisher, breaker *circuit.Breaker, logger *slog.Logger) *FallbackPublisher {
	if breaker == nil {
		breaker = circuit.New("ledger-anchor")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackPublisher{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

func (p *FallbackPublisher) Publish(ctx context.Context, event models.AnchorEvent) error {
	err := p.primary.Publish(ctx, event)
	if err != nil {
		useFallback, change := p.breaker.RecordFailure()
		if change.Opened {
			p.logger.WarnContext(ctx, "anchor circuit opened", "breaker", p.breaker.Name(), "error", err)
		}
		if !useFallback {
			return err
		}
		return p.fallback.Publish(ctx, event)
	}

	usePrimary, change := p.breaker.RecordSuccess()
	if change.Closed {
		p.logger.InfoContext(ctx, "anchor circuit closed", "breaker", p.breaker.Name())
	}
	if !usePrimary {
		return p.fallback.Publish(ctx, event)
	}
	return nil
}
