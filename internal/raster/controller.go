package raster

import (
	"errors"
	"fmt"
	"log/slog"

	"hotspot-map/internal/filter"
	"hotspot-map/internal/logger"
	"hotspot-map/internal/metrics"
	"hotspot-map/internal/surface"
)

// Image states reported in Status.
const (
	ImageNone    = "none"
	ImagePending = "pending"
	ImageLoaded  = "loaded"
	ImageError   = "error"
)

// Status is the controller's observable condition.
type Status struct {
	Active    bool       `json:"active"`
	Year      int        `json:"year,omitempty"`
	Code      int        `json:"code,omitempty"`
	URL       string     `json:"url,omitempty"`
	Image     string     `json:"image"`
	Err       error      `json:"-"`
	Error     string     `json:"error,omitempty"`
	Diagnosis *Diagnosis `json:"diagnosis,omitempty"`
}

// Controller keeps one image overlay matched to the viewport and the primary selected
// year. Like the synchronizer it runs on the surface's event loop and takes no locks.
type Controller struct {
	m       surface.Map
	cfg     Config
	overlay surface.ImageOverlay
	state   filter.State
	offs    []func()
	status  Status
	log     *slog.Logger

	// Diagnose is called with the failing URL after an image error. It must not block;
	// results come back through SetDiagnosis.
	Diagnose func(url string)
}

func NewController(m surface.Map, cfg Config) *Controller {
	c := &Controller{m: m, cfg: cfg, log: logger.L(), status: Status{Image: ImageNone}}
	c.overlay = m.NewImageOverlay(surface.ImageOverlayOptions{
		Opacity:     cfg.Opacity,
		ZIndex:      cfg.ZIndex,
		Interactive: false,
	})
	c.overlay.Hide()
	c.overlay.On(surface.EventLoad, c.onLoad)
	c.overlay.On(surface.EventError, c.onError)
	return c
}

// Overlay exposes the managed image overlay.
func (c *Controller) Overlay() surface.ImageOverlay { return c.overlay }

// Active reports whether s asks for the raster layer at all.
func Active(s filter.State) bool {
	return s.DataSource.UsesRaster() && len(s.SelectedYears) > 0
}

// Apply takes a new filter state.
//
// Background: the filter panel replaces its state wholesale, so Apply never merges.
// Constraints: an inactive state hides the overlay and detaches the viewport listeners.
// An active one attaches them once and refreshes immediately.
func (c *Controller) Apply(s filter.State) {
	c.state = s
	if !Active(s) {
		c.detach()
		c.overlay.Hide()
		c.status = Status{Image: ImageNone}
		return
	}
	c.attach()
	c.Refresh()
}

func (c *Controller) attach() {
	if len(c.offs) > 0 {
		return
	}
	for _, ev := range []surface.Event{surface.EventIdle, surface.EventZoomChanged, surface.EventDragEnd} {
		c.offs = append(c.offs, c.m.On(ev, c.Refresh))
	}
}

func (c *Controller) detach() {
	for _, off := range c.offs {
		off()
	}
	c.offs = nil
}

// Refresh recomputes the request for the current viewport. Only the first selected year
// drives the overlay.
func (c *Controller) Refresh() {
	if !Active(c.state) {
		return
	}
	year, _ := c.state.PrimaryYear()
	u, err := BuildRequest(c.cfg, c.m.Bounds(), year)
	if err != nil {
		metrics.RasterUnsupportedYearTotal.Inc()
		c.log.Warn("raster_unsupported_year", "year", year)
		c.overlay.Hide()
		c.status = Status{Active: true, Year: year, Image: ImageNone, Err: err, Error: err.Error()}
		return
	}
	code, _ := YearCode(year)
	if u == c.overlay.URL() && c.overlay.Visible() {
		return
	}
	c.overlay.SetURL(u)
	c.overlay.Show()
	metrics.RasterRequestsTotal.Inc()
	c.log.Debug("raster_request", "year", year, "code", code, "bbox", BBox(c.m.Bounds()), "url", Redact(u))
	c.status = Status{Active: true, Year: year, Code: code, URL: u, Image: ImagePending}
}

func (c *Controller) onLoad() {
	metrics.RasterImageEventsTotal.WithLabelValues(ImageLoaded).Inc()
	c.status.Image = ImageLoaded
	c.status.Err = nil
	c.status.Error = ""
	c.status.Diagnosis = nil
	c.log.Debug("raster_image_loaded", "url", Redact(c.overlay.URL()))
}

func (c *Controller) onError() {
	u := c.overlay.URL()
	metrics.RasterImageEventsTotal.WithLabelValues(ImageError).Inc()
	err := fmt.Errorf("%w: %s", ErrImageLoad, Redact(u))
	c.status.Image = ImageError
	c.status.Err = err
	c.status.Error = err.Error()
	c.log.Error("raster_image_error", "url", Redact(u), "year", c.status.Year)
	if c.Diagnose != nil && c.cfg.ProbeEnabled && u != "" {
		c.Diagnose(u)
	}
}

// SetDiagnosis attaches a probe result if it still describes the current URL.
func (c *Controller) SetDiagnosis(d Diagnosis) {
	if d.URL != c.overlay.URL() {
		return
	}
	c.status.Diagnosis = &d
	c.log.Info("raster_image_diagnosis", "status", d.Status, "content_type", d.ContentType, "body", d.Body, "err", d.Err)
}

func (c *Controller) Status() Status { return c.status }

// Unsupported reports whether the last refresh was withheld for an unmapped year.
func (c *Controller) Unsupported() bool { return errors.Is(c.status.Err, ErrUnsupportedYear) }

// Close detaches listeners and removes the overlay.
func (c *Controller) Close() {
	c.detach()
	c.overlay.Remove()
}
