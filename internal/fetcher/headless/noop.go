package headless

import (
	"context"
	"errors"

	"github.com/scottlangford2/research-scraper/internal/rfp"
)

// ErrUnavailable is returned when no browser is configured.
var ErrUnavailable = errors.New("headless renderer not configured")

// Noop implements Renderer but always fails, so browser sources report an
// error outcome when Chrome is disabled.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Render returns ErrUnavailable wrapped as a network failure.
func (Noop) Render(_ context.Context, _ PageRequest) (Page, error) {
	return Page{}, &rfp.NetworkError{Err: ErrUnavailable}
}
