package t2i

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"
	"testing"

	"github.com/bitop-dev/t2i/internal/notify"
	"github.com/bitop-dev/t2i/internal/provider"
)

type fakeAPI struct {
	mu sync.Mutex

	requests []provider.GenerateImageRequest
	probed   []string

	generate func(call int, req provider.GenerateImageRequest) (provider.Response, error)
	probe    func(model string) (provider.Response, error)
}

func (f *fakeAPI) GenerateImage(ctx context.Context, req provider.GenerateImageRequest) (provider.Response, error) {
	_ = ctx
	f.mu.Lock()
	f.requests = append(f.requests, req)
	call := len(f.requests) - 1
	gen := f.generate
	f.mu.Unlock()
	if gen == nil {
		return provider.Response{}, fmt.Errorf("fakeAPI.GenerateImage not configured")
	}
	return gen(call, req)
}

func (f *fakeAPI) ProbeModel(ctx context.Context, req provider.ProbeRequest) (provider.Response, error) {
	_ = ctx
	f.mu.Lock()
	f.probed = append(f.probed, req.Model)
	fn := f.probe
	f.mu.Unlock()
	if fn == nil {
		return provider.Response{Status: 200}, nil
	}
	return fn(req.Model)
}

func (f *fakeAPI) Requests() []provider.GenerateImageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]provider.GenerateImageRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeAPI) Probed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.probed...)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context, string) (provider.Response, error) {
	if p.err != nil {
		return provider.Response{}, p.err
	}
	return provider.Response{Status: 200}, nil
}

func newTestPreviewer(t *testing.T, api *fakeAPI, opts Options) (*Previewer, *notify.Recorder) {
	t.Helper()
	rec := &notify.Recorder{}
	opts.Sink = rec
	opts.api = api
	if opts.pinger == nil {
		opts.pinger = fakePinger{}
	}
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(p.Stop)
	return p, rec
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
