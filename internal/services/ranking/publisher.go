package ranking

import (
	"context"
	"log/slog"

	"github.com/mcoot/bananaclick/internal/model"
)

// Broadcaster receives freshly computed snapshots
type Broadcaster interface {
	RankingChanged(snapshot model.RankingSnapshot)
}

// Publisher recomputes and broadcasts the ranking after mutations.
// Triggers arriving while a recompute is running collapse into one more
// recompute, so bursts of increments produce fewer broadcasts but the last
// one always reflects the store.
type Publisher struct {
	service *Service
	out     Broadcaster
	logger  *slog.Logger
	dirty   chan struct{}
}

// NewPublisher creates a Publisher. Call Run to start it.
func NewPublisher(service *Service, out Broadcaster, logger *slog.Logger) *Publisher {
	return &Publisher{
		service: service,
		out:     out,
		logger:  logger.With(slog.String("component", "ranking_publisher")),
		dirty:   make(chan struct{}, 1),
	}
}

// Trigger marks the ranking stale. It never blocks.
func (p *Publisher) Trigger() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

// Run publishes until ctx is cancelled
func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("ranking publisher started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("ranking publisher stopped")
			return
		case <-p.dirty:
			p.publish(ctx)
		}
	}
}

func (p *Publisher) publish(ctx context.Context) {
	snapshot, err := p.service.Snapshot(ctx)
	if err != nil {
		p.logger.Warn("ranking recompute failed", slog.String("error", err.Error()))
		return
	}
	p.out.RankingChanged(snapshot)
}

// PublishNow recomputes and broadcasts on the calling goroutine
func (p *Publisher) PublishNow(ctx context.Context) {
	p.publish(ctx)
}
