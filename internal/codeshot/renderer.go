package codeshot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/sofragment/fragment/internal/apperr"
)

// ErrBusy is returned when the render queue is full.
var ErrBusy = apperr.RateLimit("Renderer is busy")

// Config tunes the renderer pool.
type Config struct {
	// PoolSize is the number of tabs rendering concurrently.
	PoolSize int
	// QueueDepth is how many callers may wait for a tab before new
	// requests are rejected.
	QueueDepth int
	// RenderTimeout bounds a single capture.
	RenderTimeout time.Duration
	// PerRequestBrowser starts and stops a browser for every render
	// instead of sharing one.
	PerRequestBrowser bool
	// ChromePath overrides the browser executable.
	ChromePath string
	// NoSandbox disables the Chrome sandbox (needed as root in containers).
	NoSandbox bool
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = 2
	}
	if c.QueueDepth < 0 {
		c.QueueDepth = 0
	}
	if c.RenderTimeout <= 0 {
		c.RenderTimeout = 30 * time.Second
	}
	return c
}

// Recorder receives renderer events for metrics.
type Recorder interface {
	ObserveRender(format string, d time.Duration, err error)
	SetRenderQueue(n int)
	RenderRejected()
}

type nopRecorder struct{}

func (nopRecorder) ObserveRender(string, time.Duration, error) {}
func (nopRecorder) SetRenderQueue(int)                         {}
func (nopRecorder) RenderRejected()                            {}

// CaptureFunc loads an HTML document and returns a PNG of its .container
// element. Transparent asks for no default page background.
type CaptureFunc func(ctx context.Context, document string, out Output, transparent bool) ([]byte, error)

// Image is a finished render.
type Image struct {
	Data   []byte
	Format Format
}

// ContentType returns the HTTP media type of the image.
func (i *Image) ContentType() string {
	return i.Format.ContentType()
}

// Renderer turns requests into images using a shared headless Chrome. At
// most PoolSize tabs render at once and at most QueueDepth callers wait.
type Renderer struct {
	cfg      Config
	logger   *slog.Logger
	recorder Recorder
	capture  CaptureFunc

	sem      *semaphore.Weighted
	inFlight atomic.Int64

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closed        bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithCapture replaces the Chrome capture step.
func WithCapture(fn CaptureFunc) Option {
	return func(r *Renderer) { r.capture = fn }
}

// WithRecorder reports render events to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Renderer) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// NewRenderer creates a renderer. The browser is started lazily on the
// first render.
func NewRenderer(cfg Config, logger *slog.Logger, opts ...Option) *Renderer {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{
		cfg:      cfg,
		logger:   logger,
		recorder: nopRecorder{},
		sem:      semaphore.NewWeighted(int64(cfg.PoolSize)),
	}
	r.capture = r.chromeCapture
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render validates req and produces the image. Failures other than
// validation and backpressure are reported as "Screenshot generation
// failed".
func (r *Renderer) Render(ctx context.Context, req *Request) (*Image, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	limit := int64(r.cfg.PoolSize + r.cfg.QueueDepth)
	n := r.inFlight.Add(1)
	defer func() {
		r.recorder.SetRenderQueue(int(r.inFlight.Add(-1)))
	}()
	if n > limit {
		r.recorder.RenderRejected()
		return nil, ErrBusy
	}
	r.recorder.SetRenderQueue(int(n))

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, apperr.Internal("Screenshot generation failed", err)
	}
	defer r.sem.Release(1)

	start := time.Now()
	img, err := r.render(ctx, req)
	r.recorder.ObserveRender(string(req.Output.Format), time.Since(start), err)
	if err != nil {
		r.logger.Error("codeshot render failed", "error", err, "format", req.Output.Format)
		return nil, apperr.Internal("Screenshot generation failed", err)
	}
	return img, nil
}

func (r *Renderer) render(ctx context.Context, req *Request) (*Image, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RenderTimeout)
	defer cancel()

	doc, err := BuildDocument(req.Code, &req.Options)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	transparent := req.Output.Format == FormatPNG
	png, err := r.capture(ctx, doc, req.Output, transparent)
	if err != nil {
		return nil, err
	}
	if len(png) == 0 {
		return nil, errors.New("empty capture")
	}

	data, err := encode(png, req.Output)
	if err != nil {
		return nil, err
	}
	return &Image{Data: data, Format: req.Output.Format}, nil
}

// Close stops the shared browser. Renders started afterwards fail.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.stopLocked()
	return nil
}

func (r *Renderer) stopLocked() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
	r.browserCtx, r.browserCancel, r.allocCancel = nil, nil, nil
}

func (r *Renderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.DisableGPU, chromedp.Flag("hide-scrollbars", true))
	if r.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if r.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.cfg.ChromePath))
	}
	return opts
}

// startBrowser launches Chrome and returns its browser context along with
// a function that shuts it down.
func (r *Renderer) startBrowser() (context.Context, context.CancelFunc, context.CancelFunc, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), r.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, nil, nil, err
	}
	return browserCtx, browserCancel, allocCancel, nil
}

// browser returns the shared browser context, (re)starting Chrome when it
// is not running.
func (r *Renderer) browser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.New("renderer closed")
	}
	if r.browserCtx != nil && r.browserCtx.Err() == nil {
		return r.browserCtx, nil
	}
	if r.browserCtx != nil {
		r.logger.Warn("codeshot browser exited, restarting")
		r.stopLocked()
	}

	ctx, browserCancel, allocCancel, err := r.startBrowser()
	if err != nil {
		return nil, err
	}
	r.browserCtx, r.browserCancel, r.allocCancel = ctx, browserCancel, allocCancel
	r.logger.Info("codeshot browser started", "pool_size", r.cfg.PoolSize)
	return ctx, nil
}

// discard drops the shared browser if it is still ctx, so the next render
// starts a fresh one.
func (r *Renderer) discard(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browserCtx == ctx {
		r.stopLocked()
	}
}

// healthy reports whether the shared browser still answers.
func (r *Renderer) healthy(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var one int
	return chromedp.Run(pingCtx, chromedp.Evaluate(`1`, &one)) == nil
}

func (r *Renderer) chromeCapture(ctx context.Context, document string, out Output, transparent bool) ([]byte, error) {
	if r.cfg.PerRequestBrowser {
		browserCtx, browserCancel, allocCancel, err := r.startBrowser()
		if err != nil {
			return nil, err
		}
		defer allocCancel()
		defer browserCancel()
		return captureTab(ctx, browserCtx, document, out, transparent)
	}

	browserCtx, err := r.browser()
	if err != nil {
		return nil, err
	}
	png, err := captureTab(ctx, browserCtx, document, out, transparent)
	if err != nil && ctx.Err() == nil && !r.healthy(browserCtx) {
		r.discard(browserCtx)
	}
	return png, err
}

// captureTab opens a new tab in the browser behind browserCtx, loads
// document and screenshots its .container element. The tab is closed on
// return. ctx bounds the capture.
func captureTab(ctx, browserCtx context.Context, document string, out Output, transparent bool) ([]byte, error) {
	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()

	// Tie the tab to the caller's deadline.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var buf []byte
	tasks := chromedp.Tasks{
		emulation.SetDeviceMetricsOverride(int64(out.Width), int64(out.Height), 2, false),
	}
	if transparent {
		tasks = append(tasks, emulation.SetDefaultBackgroundColorOverride().
			WithColor(&cdp.RGBA{R: 0, G: 0, B: 0, A: 0}))
	}
	tasks = append(tasks,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, document).Do(ctx)
		}),
		chromedp.Screenshot(".container", &buf, chromedp.NodeVisible, chromedp.ByQuery),
	)

	if err := chromedp.Run(tabCtx, tasks); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return buf, nil
}
