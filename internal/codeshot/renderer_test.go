package codeshot

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/sofragment/fragment/internal/apperr"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(40, 20, color.NRGBA{R: 26, G: 26, B: 26, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type fakeCapture struct {
	mu          sync.Mutex
	png         []byte
	err         error
	calls       int
	transparent []bool
	documents   []string
}

func (f *fakeCapture) capture(ctx context.Context, document string, out Output, transparent bool) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.transparent = append(f.transparent, transparent)
	f.documents = append(f.documents, document)
	return f.png, f.err
}

func newRequest(format Format) *Request {
	req := NewRequest()
	req.Code = "fmt.Println(\"hi\")"
	req.Output.Format = format
	return req
}

func TestRenderFormats(t *testing.T) {
	fake := &fakeCapture{png: testPNG(t)}
	r := NewRenderer(Config{}, nil, WithCapture(fake.capture))
	defer r.Close()

	tests := []struct {
		format      Format
		contentType string
		transparent bool
		check       func([]byte) bool
	}{
		{FormatPNG, "image/png", true, func(b []byte) bool { return bytes.HasPrefix(b, []byte("\x89PNG")) }},
		{FormatJPEG, "image/jpeg", false, func(b []byte) bool { return bytes.HasPrefix(b, []byte{0xFF, 0xD8}) }},
		{FormatSVG, "image/svg+xml", false, func(b []byte) bool {
			s := string(b)
			return strings.Contains(s, "<svg") && strings.Contains(s, "data:image/png;base64,") &&
				strings.Contains(s, `viewBox="0 0 40 20"`)
		}},
	}
	for i, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			img, err := r.Render(context.Background(), newRequest(tt.format))
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if img.ContentType() != tt.contentType {
				t.Errorf("content type: got %q, want %q", img.ContentType(), tt.contentType)
			}
			if !tt.check(img.Data) {
				t.Errorf("unexpected %s payload", tt.format)
			}
			if fake.transparent[i] != tt.transparent {
				t.Errorf("transparent: got %v, want %v", fake.transparent[i], tt.transparent)
			}
		})
	}
}

func TestRenderValidates(t *testing.T) {
	fake := &fakeCapture{png: testPNG(t)}
	r := NewRenderer(Config{}, nil, WithCapture(fake.capture))

	req := newRequest(FormatPNG)
	req.Code = ""
	_, err := r.Render(context.Background(), req)
	if !apperr.Is(err, apperr.TypeValidation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fake.calls != 0 {
		t.Error("capture called for invalid request")
	}
}

func TestRenderWrapsCaptureFailure(t *testing.T) {
	fake := &fakeCapture{err: errors.New("chrome exploded")}
	r := NewRenderer(Config{}, nil, WithCapture(fake.capture))

	img, err := r.Render(context.Background(), newRequest(FormatPNG))
	if img != nil {
		t.Error("partial output returned")
	}
	e, ok := apperr.As(err)
	if !ok || e.Type != apperr.TypeInternal || e.Message != "Screenshot generation failed" {
		t.Fatalf("got %v", err)
	}

	fake.err, fake.png = nil, []byte("not a png")
	if _, err := r.Render(context.Background(), newRequest(FormatJPEG)); !apperr.Is(err, apperr.TypeInternal) {
		t.Errorf("expected InternalError for undecodable capture, got %v", err)
	}
}

func TestRenderTimeout(t *testing.T) {
	capture := func(ctx context.Context, _ string, _ Output, _ bool) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	r := NewRenderer(Config{RenderTimeout: 20 * time.Millisecond}, nil, WithCapture(capture))

	_, err := r.Render(context.Background(), newRequest(FormatPNG))
	if !apperr.Is(err, apperr.TypeInternal) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
}

func TestRenderTimeoutCoversDocument(t *testing.T) {
	fake := &fakeCapture{png: testPNG(t)}
	r := NewRenderer(Config{RenderTimeout: time.Nanosecond}, nil, WithCapture(fake.capture))

	_, err := r.Render(context.Background(), newRequest(FormatPNG))
	if !apperr.Is(err, apperr.TypeInternal) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error, got %v", err)
	}
	if fake.calls != 0 {
		t.Errorf("capture ran %d times after the deadline", fake.calls)
	}
}

type countingRecorder struct {
	mu       sync.Mutex
	renders  int
	rejected int
	maxQueue int
}

func (c *countingRecorder) ObserveRender(string, time.Duration, error) {
	c.mu.Lock()
	c.renders++
	c.mu.Unlock()
}

func (c *countingRecorder) SetRenderQueue(n int) {
	c.mu.Lock()
	if n > c.maxQueue {
		c.maxQueue = n
	}
	c.mu.Unlock()
}

func (c *countingRecorder) RenderRejected() {
	c.mu.Lock()
	c.rejected++
	c.mu.Unlock()
}

func TestRenderBackpressure(t *testing.T) {
	png := testPNG(t)
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	capture := func(ctx context.Context, _ string, _ Output, _ bool) ([]byte, error) {
		entered <- struct{}{}
		<-release
		return png, nil
	}
	rec := &countingRecorder{}
	r := NewRenderer(Config{PoolSize: 1, QueueDepth: 1}, nil, WithCapture(capture), WithRecorder(rec))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Render(context.Background(), newRequest(FormatPNG))
			errs <- err
		}()
	}

	// One render holds the only tab; wait until the second is queued.
	<-entered
	deadline := time.Now().Add(2 * time.Second)
	for r.inFlight.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second render never queued")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := r.Render(context.Background(), newRequest(FormatPNG))
	if err != ErrBusy {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if !apperr.Is(err, apperr.TypeRateLimit) {
		t.Errorf("expected RateLimitError, got %v", err)
	}

	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("queued render failed: %v", err)
		}
	}
	if rec.renders != 2 || rec.rejected != 1 || rec.maxQueue < 2 {
		t.Errorf("recorder: %+v", rec)
	}
	if n := r.inFlight.Load(); n != 0 {
		t.Errorf("in-flight counter leaked: %d", n)
	}
}

func TestRenderCancelledWhileQueued(t *testing.T) {
	png := testPNG(t)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	capture := func(ctx context.Context, _ string, _ Output, _ bool) ([]byte, error) {
		entered <- struct{}{}
		<-release
		return png, nil
	}
	r := NewRenderer(Config{PoolSize: 1, QueueDepth: 4}, nil, WithCapture(capture))

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Render(context.Background(), newRequest(FormatPNG))
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Render(ctx, newRequest(FormatPNG)); !apperr.Is(err, apperr.TypeInternal) {
		t.Errorf("expected InternalError for abandoned wait, got %v", err)
	}

	close(release)
	<-done
}

func TestCloseStopsBrowser(t *testing.T) {
	r := NewRenderer(Config{}, nil)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := r.browser(); err == nil {
		t.Fatal("expected error from closed renderer")
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{QueueDepth: -1}.withDefaults()
	if c.PoolSize != 2 || c.QueueDepth != 0 || c.RenderTimeout != 30*time.Second {
		t.Errorf("got %+v", c)
	}
}
