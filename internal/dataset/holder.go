package dataset

import (
	"context"
	"sync/atomic"
	"time"

	"hotspot-map/internal/filter"
	"hotspot-map/internal/logger"
	"hotspot-map/internal/record"
)

// Loaded is one published generation of normalized records.
type Loaded struct {
	Records  []record.Record
	Counts   filter.Counts
	LoadedAt time.Time
}

// Holder publishes the current Loaded without locks. Readers see nil until the first
// successful load; a failed reload keeps the previous generation.
type Holder struct {
	v       atomic.Value
	lastErr atomic.Value
	subs    atomic.Value // []func(*Loaded)
}

func (h *Holder) Get() *Loaded {
	x := h.v.Load()
	if x == nil {
		return nil
	}
	return x.(*Loaded)
}

func (h *Holder) Ready() bool { return h.Get() != nil }

// LastErr is the error of the most recent failed load, nil after a success.
func (h *Holder) LastErr() error {
	x, _ := h.lastErr.Load().(errBox)
	return x.err
}

type errBox struct{ err error }

// Set publishes records and notifies subscribers.
func (h *Holder) Set(records []record.Record) *Loaded {
	l := &Loaded{Records: records, Counts: filter.Count(records), LoadedAt: time.Now()}
	h.v.Store(l)
	h.lastErr.Store(errBox{})
	if subs, _ := h.subs.Load().([]func(*Loaded)); len(subs) > 0 {
		for _, fn := range subs {
			fn(l)
		}
	}
	return l
}

// Subscribe registers fn for every future publish. Not safe to call concurrently with
// itself; the server subscribes once at startup.
func (h *Holder) Subscribe(fn func(*Loaded)) {
	subs, _ := h.subs.Load().([]func(*Loaded))
	next := append(append([]func(*Loaded){}, subs...), fn)
	h.subs.Store(next)
}

// Load runs one all-or-nothing load from src and publishes it.
func (h *Holder) Load(ctx context.Context, src Source) (*Loaded, error) {
	raw, err := LoadAll(ctx, src)
	if err != nil {
		h.lastErr.Store(errBox{err: err})
		return nil, err
	}
	return h.Set(record.Normalize(raw)), nil
}

// Run loads until the first success, retrying every retry, then reloads every refresh
// when refresh > 0. It returns when ctx is done.
func (h *Holder) Run(ctx context.Context, src Source, retry, refresh time.Duration) {
	l := logger.L()
	if retry <= 0 {
		retry = 2 * time.Second
	}
	for {
		if _, err := h.Load(ctx, src); err == nil {
			break
		}
		l.Warn("dataset_retry", "in", retry.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
	if refresh <= 0 {
		return
	}
	t := time.NewTicker(refresh)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := h.Load(ctx, src); err != nil {
				l.Error("dataset_refresh_error", "err", err)
			} else {
				l.Info("dataset_refresh_done")
			}
		}
	}
}
