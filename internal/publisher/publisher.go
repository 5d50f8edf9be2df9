// Package publisher fans run notifications and record events out to the
// configured messaging backends.
package publisher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/scottlangford2/research-scraper/internal/metrics"
	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// Keyed payloads carry a partition or ordering key.
type Keyed interface {
	MessageKey() string
}

// Backend is a named publisher.
type Backend struct {
	Name      string
	Publisher rfp.Publisher
}

// Fanout publishes every message to all backends. A failing backend does
// not stop the others; failures are joined.
type Fanout struct {
	backends []Backend
	logger   *zap.Logger
}

// NewFanout builds a Fanout, skipping backends without a publisher.
func NewFanout(logger *zap.Logger, backends ...Backend) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fanout{logger: logger}
	for _, b := range backends {
		if b.Publisher != nil {
			f.backends = append(f.backends, b)
		}
	}
	return f
}

// Len reports how many backends are attached.
func (f *Fanout) Len() int { return len(f.backends) }

// Publish implements rfp.Publisher. The returned id is the first backend's.
func (f *Fanout) Publish(ctx context.Context, topic string, payload any) (string, error) {
	var (
		first string
		errs  []error
	)
	for _, b := range f.backends {
		id, err := b.Publisher.Publish(ctx, topic, payload)
		metrics.ObservePublish(b.Name, err)
		if err != nil {
			f.logger.Warn("publish failed",
				zap.String("backend", b.Name),
				zap.String("topic", topic),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
			continue
		}
		if first == "" {
			first = id
		}
	}
	return first, errors.Join(errs...)
}
