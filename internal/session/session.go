// Package session owns one map surface per browser tab. Every surface callback, filter
// change and browser report for a session runs on that session's single goroutine, so
// the synchronizer and raster controller it drives never see concurrent calls.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"hotspot-map/internal/dataset"
	"hotspot-map/internal/filter"
	"hotspot-map/internal/logger"
	"hotspot-map/internal/overlay"
	"hotspot-map/internal/raster"
	"hotspot-map/internal/scene"
	"hotspot-map/internal/surface"
)

var ErrClosed = errors.New("session closed")

// GrayscaleFilter is applied to base tiles after the first tilesloaded event.
const GrayscaleFilter = "grayscale(100%)"

// Surface is a map the browser can mirror: the surface.Map capability plus the report
// and snapshot entry points.
type Surface interface {
	surface.Map
	ApplyViewport(v scene.Viewport, ev surface.Event)
	Click(handleID string) error
	ReportImage(overlayID string, ok bool) error
	Fire(ev surface.Event) int
	Snapshot() scene.Snapshot
}

// Options are shared by every session of a Manager.
type Options struct {
	// NewLoader returns a fresh loader per session.
	NewLoader func() surface.Loader
	Data      *dataset.Holder
	Overlay   overlay.Options
	Raster    raster.Config
	// Prober, when set, re-fetches failing overlay URLs.
	Prober      *raster.Prober
	LoadTimeout time.Duration
}

// View is a consistent read of one session, taken on its loop.
type View struct {
	ID      string          `json:"id"`
	Surface string          `json:"surface"`
	Data    string          `json:"data"`
	Error   string          `json:"error,omitempty"`
	Filter  filter.State    `json:"filter"`
	Counts  filter.Counts   `json:"counts"`
	Stats   overlay.Stats   `json:"stats"`
	Live    overlay.Live    `json:"live"`
	Raster  raster.Status   `json:"raster"`
	Scene   *scene.Snapshot `json:"scene,omitempty"`
}

// Session mirrors one browser map.
//
// Background: the browser owns the real SDK map and reports viewport changes, clicks,
// tile and image events; the session keeps the server-side surface in step.
// Constraints: loop-owned fields are touched only from closures posted through do or
// post. Before the surface is held, interaction calls return surface.ErrNotReady while
// filter changes are kept and applied on Ready.
type Session struct {
	ID string

	events    chan func()
	done      chan struct{}
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	lastSeen  atomic.Int64
	opts      Options
	log       *slog.Logger

	// owned by the loop goroutine
	loader  surface.Loader
	surf    Surface
	loadErr error
	sync    *overlay.Synchronizer
	ctrl    *raster.Controller
	state   filter.State
	gen     *dataset.Loaded
	counts  filter.Counts
	stats   overlay.Stats
}

func newSession(opts Options, initial surface.MapOptions) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:     uuid.NewString(),
		events: make(chan func(), 64),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		opts:   opts,
		state:  filter.Default(),
	}
	s.log = logger.L().With("session", s.ID)
	s.touch()
	if opts.NewLoader != nil {
		s.loader = opts.NewLoader()
	} else {
		s.loader = scene.NewLoader(nil)
	}
	go s.loop()
	go s.load(initial)
	return s
}

func (s *Session) loop() {
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.done:
			s.teardown()
			return
		}
	}
}

// post queues fn on the loop. It reports false once the session is closed.
func (s *Session) post(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.done:
		return false
	}
}

// do runs fn on the loop and waits for it.
func (s *Session) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !s.post(func() { fn(); close(finished) }) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

// LastSeen is the time of the last browser interaction.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// load is the one suspension point before the surface exists. The result is handed back
// to the loop.
func (s *Session) load(initial surface.MapOptions) {
	ctx := s.ctx
	if s.opts.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.LoadTimeout)
		defer cancel()
	}
	m, err := s.loader.Load(ctx, initial)
	s.post(func() { s.onLoaded(m, err) })
}

func (s *Session) onLoaded(m surface.Map, err error) {
	if err == nil {
		surf, ok := m.(Surface)
		if !ok {
			err = fmt.Errorf("surface %T cannot be mirrored", m)
		} else {
			s.surf = surf
		}
	}
	if err != nil {
		s.loadErr = err
		s.log.Error("session_surface_fail", "err", err)
		return
	}
	var off func()
	off = s.surf.On(surface.EventTilesLoaded, func() {
		s.surf.SetTileFilter(GrayscaleFilter)
		off()
	})

	opts := s.opts.Overlay
	after := opts.AfterRender
	opts.AfterRender = func(st overlay.Stats) {
		s.stats = st
		if after != nil {
			after(st)
		}
	}
	s.sync = overlay.NewSynchronizer(s.surf, opts)
	s.ctrl = raster.NewController(s.surf, s.opts.Raster)
	if p := s.opts.Prober; p != nil {
		s.ctrl.Diagnose = func(u string) {
			go func() {
				ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
				defer cancel()
				d := p.Probe(ctx, u)
				s.post(func() { s.ctrl.SetDiagnosis(d) })
			}()
		}
	}
	s.log.Info("session_surface_ready", "center", s.surf.Center(), "level", s.surf.Level())
	s.render()
	s.ctrl.Apply(s.state)
}

func (s *Session) ready() bool { return s.surf != nil }

// surfaceState is the lifecycle as the loop sees it. The loader flips to Ready on the
// load goroutine before onLoaded runs, so Ready is only reported once the surface is held.
func (s *Session) surfaceState() surface.LoadState {
	switch {
	case s.surf != nil:
		return surface.Ready
	case s.loadErr != nil:
		return surface.Failed
	case s.loader.State() == surface.Uninitialized:
		return surface.Uninitialized
	default:
		return surface.Loading
	}
}

// render re-evaluates the filter against the published dataset and rebuilds the overlay.
// It is a no-op until both the surface and the data are ready.
func (s *Session) render() {
	if !s.ready() || s.opts.Data == nil {
		return
	}
	gen := s.opts.Data.Get()
	if gen == nil {
		return
	}
	s.gen = gen
	visible := filter.Evaluate(gen.Records, s.state)
	s.counts = filter.Count(visible)
	s.sync.Render(visible, s.state.DataSource)
	s.log.Debug("session_render",
		"years", s.state.SelectedYears,
		"source", s.state.DataSource.String(),
		"total", s.counts.Total,
		"elderly", s.counts.Elderly,
		"medical", s.counts.Medical,
		"market", s.counts.Market,
		"welfare", s.counts.Welfare,
	)
}

func (s *Session) view(withScene bool) View {
	v := View{
		ID:      s.ID,
		Surface: s.surfaceState().String(),
		Data:    "loading",
		Filter:  s.state,
		Counts:  s.counts,
		Stats:   s.stats,
	}
	if s.opts.Data != nil {
		switch {
		case s.opts.Data.Ready():
			v.Data = "ready"
		case s.opts.Data.LastErr() != nil:
			v.Data = "failed"
			v.Error = dataset.ErrLoad.Error()
		}
	}
	if s.loadErr != nil {
		v.Error = s.loadErr.Error()
	}
	if s.ready() {
		v.Live = s.sync.Live()
		v.Raster = s.ctrl.Status()
		if withScene {
			snap := s.surf.Snapshot()
			v.Scene = &snap
		}
	}
	return v
}

// View returns the current state including the scene snapshot.
func (s *Session) View(ctx context.Context) (View, error) {
	s.touch()
	var v View
	err := s.do(ctx, func() { v = s.view(true) })
	return v, err
}

// SetFilter replaces the filter state wholesale, re-renders and re-applies the raster
// controller.
func (s *Session) SetFilter(ctx context.Context, st filter.State) (View, error) {
	s.touch()
	st = st.Normalize()
	var v View
	err := s.do(ctx, func() {
		s.state = st
		if s.ready() {
			s.render()
			s.ctrl.Apply(st)
		}
		v = s.view(true)
	})
	return v, err
}

// Viewport applies a browser viewport report. ev is idle or dragend.
func (s *Session) Viewport(ctx context.Context, vp scene.Viewport, ev surface.Event) (View, error) {
	s.touch()
	var v View
	var rerr error
	err := s.do(ctx, func() {
		if !s.ready() {
			rerr = surface.ErrNotReady
			return
		}
		s.surf.ApplyViewport(vp, ev)
		v = s.view(true)
	})
	if err != nil {
		return View{}, err
	}
	return v, rerr
}

// TilesLoaded forwards the browser's tilesloaded event.
func (s *Session) TilesLoaded(ctx context.Context) error {
	s.touch()
	var rerr error
	err := s.do(ctx, func() {
		if !s.ready() {
			rerr = surface.ErrNotReady
			return
		}
		s.surf.Fire(surface.EventTilesLoaded)
	})
	if err != nil {
		return err
	}
	return rerr
}

// Click fires a handle's click handlers and returns the info window they opened, if any.
func (s *Session) Click(ctx context.Context, handleID string) (*scene.InfoWindowView, error) {
	s.touch()
	var iw *scene.InfoWindowView
	var rerr error
	err := s.do(ctx, func() {
		if !s.ready() {
			rerr = surface.ErrNotReady
			return
		}
		if rerr = s.surf.Click(handleID); rerr != nil {
			return
		}
		iw = s.surf.Snapshot().InfoWindow
	})
	if err != nil {
		return nil, err
	}
	return iw, rerr
}

// ReportImage records the browser's load/error result for the raster overlay.
func (s *Session) ReportImage(ctx context.Context, ok bool) (raster.Status, error) {
	s.touch()
	var st raster.Status
	var rerr error
	err := s.do(ctx, func() {
		if !s.ready() {
			rerr = surface.ErrNotReady
			return
		}
		if rerr = s.surf.ReportImage(s.ctrl.Overlay().ID(), ok); rerr != nil {
			return
		}
		st = s.ctrl.Status()
	})
	if err != nil {
		return raster.Status{}, err
	}
	return st, rerr
}

// DataChanged re-renders against the newly published dataset.
func (s *Session) DataChanged() { s.post(s.render) }

// Close stops the loop; surface handles are released on the loop before it exits.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.done)
	})
}

func (s *Session) teardown() {
	if s.sync != nil {
		s.sync.Clear()
	}
	if s.ctrl != nil {
		s.ctrl.Close()
	}
	s.log.Debug("session_closed")
}
