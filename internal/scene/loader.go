package scene

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"hotspot-map/internal/logger"
	"hotspot-map/internal/surface"
)

var ErrAlreadyLoaded = errors.New("map surface already loaded")

// Loader creates one Scene. Check, when set, gates readiness (SDK key present, script
// reachable); a failing Check leaves the loader Failed.
type Loader struct {
	Check func(ctx context.Context) error

	mu    sync.Mutex
	state surface.LoadState
}

func NewLoader(check func(ctx context.Context) error) *Loader {
	return &Loader{Check: check}
}

func (l *Loader) State() surface.LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loader) setState(s surface.LoadState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Loader) Load(ctx context.Context, opts surface.MapOptions) (surface.Map, error) {
	l.mu.Lock()
	if l.state != surface.Uninitialized {
		l.mu.Unlock()
		return nil, ErrAlreadyLoaded
	}
	l.state = surface.Loading
	l.mu.Unlock()

	if l.Check != nil {
		if err := l.Check(ctx); err != nil {
			l.setState(surface.Failed)
			logger.L().Warn("scene_load_fail", "err", err)
			return nil, fmt.Errorf("load map surface: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		l.setState(surface.Failed)
		return nil, err
	}
	s := New(opts)
	l.setState(surface.Ready)
	return s, nil
}

var _ surface.Loader = (*Loader)(nil)
