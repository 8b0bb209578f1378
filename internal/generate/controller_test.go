package generate

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitop-dev/t2i/internal/catalog"
	"github.com/bitop-dev/t2i/internal/crossorigin"
	"github.com/bitop-dev/t2i/internal/httpx"
	"github.com/bitop-dev/t2i/internal/notify"
	"github.com/bitop-dev/t2i/internal/probe"
	"github.com/bitop-dev/t2i/internal/provider"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []provider.GenerateImageRequest
	probes   int

	probeStatus int
	generate    func(call int) (provider.Response, error)
}

func (f *fakeAPI) GenerateImage(_ context.Context, req provider.GenerateImageRequest) (provider.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	call := len(f.requests) - 1
	gen := f.generate
	f.mu.Unlock()
	if gen == nil {
		return provider.Response{}, errors.New("fakeAPI.GenerateImage not configured")
	}
	return gen(call)
}

func (f *fakeAPI) ProbeModel(context.Context, provider.ProbeRequest) (provider.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	status := f.probeStatus
	if status == 0 {
		status = 200
	}
	return provider.Response{Status: status}, nil
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type okPinger struct{}

func (okPinger) Ping(context.Context, string) (provider.Response, error) {
	return provider.Response{Status: 200}, nil
}

type harness struct {
	api     *fakeAPI
	catalog *catalog.Catalog
	monitor *crossorigin.Monitor
	sink    *notify.Recorder
	ctl     *Controller

	mu     sync.Mutex
	delays []time.Duration
}

func newHarness(t *testing.T, api *fakeAPI, maxRetries int) *harness {
	t.Helper()
	c, err := catalog.New(catalog.DefaultModels())
	require.NoError(t, err)
	h := &harness{api: api, catalog: c, sink: &notify.Recorder{}}
	log := zerolog.Nop()
	p := probe.New(api, c, probe.Options{Sink: h.sink, Logger: log})
	h.monitor = crossorigin.New(okPinger{}, crossorigin.Options{Sink: h.sink, Logger: log})
	h.ctl = New(api, c, p, h.monitor, Options{
		Retry:     httpx.RetryPolicy{MaxRetries: maxRetries, BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second},
		ModelPage: func(id string) string { return "https://models.test/" + id },
		Sink:      h.sink,
		Logger:    log,
		Sleep: func(_ context.Context, d time.Duration) error {
			h.mu.Lock()
			h.delays = append(h.delays, d)
			h.mu.Unlock()
			return nil
		},
	})
	return h
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func imageResponse(t *testing.T) provider.Response {
	return provider.Response{Status: 200, ContentType: "image/png", Body: pngBytes(t)}
}

func failureKind(t *testing.T, err error) *Failure {
	t.Helper()
	var f *Failure
	require.True(t, errors.As(err, &f), "expected *Failure, got %T: %v", err, err)
	return f
}

var req = Request{Prompt: "a lighthouse at dusk", Credential: "hf_test"}

func TestGenerate_Success(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, 3)
	api.generate = func(int) (provider.Response, error) { return imageResponse(t), nil }

	res, err := h.ctl.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Calls)
	assert.Equal(t, "png", res.Image.Format)
	assert.Equal(t, 4, res.Image.Width)
	assert.Equal(t, 3, res.Image.Height)
	assert.NotEmpty(t, res.Image.Handle)
	assert.Equal(t, StateSucceeded, h.ctl.State())
	assert.False(t, h.ctl.InFlight())

	ev, ok := h.sink.Last("image")
	require.True(t, ok)
	assert.Equal(t, res.Image.Handle, ev.Image.Handle)
	assert.Equal(t, notify.CrossOriginDetected, h.monitor.Status())

	sent := api.requests[0]
	assert.Equal(t, "dataautogpt3/ProteusV0.2", sent.Model)
	assert.Equal(t, req.Prompt, sent.Prompt)
	assert.Equal(t, "hf_test", sent.Credential)
}

func TestGenerate_Preconditions(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, 3)

	_, err := h.ctl.Generate(context.Background(), Request{Prompt: "x"})
	assert.Equal(t, KindNoCredential, failureKind(t, err).Kind)

	_, err = h.ctl.Generate(context.Background(), Request{Prompt: "  ", Credential: "t"})
	assert.Equal(t, KindNoPrompt, failureKind(t, err).Kind)

	assert.Equal(t, 0, api.calls())
	assert.Equal(t, 0, api.probes)
	assert.Equal(t, StateFailed, h.ctl.State())
	assert.False(t, h.ctl.InFlight())
}

func TestGenerate_ModelUnavailableSkipsRequest(t *testing.T) {
	api := &fakeAPI{probeStatus: 404}
	h := newHarness(t, api, 3)

	_, err := h.ctl.Generate(context.Background(), req)
	f := failureKind(t, err)
	assert.Equal(t, KindModelUnavailable, f.Kind)
	assert.Contains(t, f.Message, "Proteus V0.2")
	assert.Equal(t, 0, api.calls())
	s, _ := h.catalog.StatusOf(0)
	assert.Equal(t, catalog.StatusError, s)
}

func TestGenerate_RetriesServerErrorsThenSucceeds(t *testing.T) {
	const maxRetries = 3
	api := &fakeAPI{}
	h := newHarness(t, api, maxRetries)
	api.generate = func(call int) (provider.Response, error) {
		if call < maxRetries {
			return provider.Response{Status: 500}, nil
		}
		return imageResponse(t), nil
	}

	res, err := h.ctl.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, maxRetries+1, api.calls())
	assert.Equal(t, maxRetries+1, res.Calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, h.delays)
}

func TestGenerate_ServerErrorExhausted(t *testing.T) {
	const maxRetries = 3
	api := &fakeAPI{}
	h := newHarness(t, api, maxRetries)
	api.generate = func(int) (provider.Response, error) { return provider.Response{Status: 502}, nil }

	_, err := h.ctl.Generate(context.Background(), req)
	f := failureKind(t, err)
	assert.Equal(t, KindServerErrorExhausted, f.Kind)
	assert.Equal(t, 502, f.Status)
	assert.Equal(t, maxRetries+1, api.calls())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, h.delays)

	assert.True(t, h.ctl.Outage())
	_, ok := h.sink.Last("api_down")
	assert.True(t, ok)
	retrying := 0
	for _, ev := range h.sink.OfKind("status") {
		if ev.IsError && strings.HasPrefix(ev.Message, "Server error, retrying") {
			retrying++
		}
	}
	assert.Equal(t, maxRetries, retrying)
}

func TestGenerate_OutageClearedBySuccess(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, 0)
	api.generate = func(int) (provider.Response, error) { return provider.Response{Status: 500}, nil }
	_, err := h.ctl.Generate(context.Background(), req)
	require.Error(t, err)
	require.True(t, h.ctl.Outage())

	api.generate = func(int) (provider.Response, error) { return imageResponse(t), nil }
	_, err = h.ctl.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, h.ctl.Outage())
}

func TestGenerate_ModelLoadingIsNotRetried(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, 3)
	api.generate = func(int) (provider.Response, error) {
		return provider.Response{Status: 503, ContentType: "application/json", Body: []byte(`{"error":"Model is currently loading","estimated_time":20}`)}, nil
	}

	_, err := h.ctl.Generate(context.Background(), req)
	f := failureKind(t, err)
	assert.Equal(t, KindModelLoading, f.Kind)
	assert.Contains(t, f.Message, "still loading")
	assert.Equal(t, 1, api.calls())
	assert.Empty(t, h.delays)
	s, _ := h.catalog.StatusOf(0)
	assert.Equal(t, catalog.StatusLoading, s)
	assert.False(t, h.ctl.Outage())
}

func TestGenerate_InvalidCredential(t *testing.T) {
	for _, status := range []int{401, 403} {
		api := &fakeAPI{}
		h := newHarness(t, api, 3)
		api.generate = func(int) (provider.Response, error) {
			return provider.Response{Status: status, ContentType: "application/json", Body: []byte(`{"error":"Invalid credentials"}`)}, nil
		}
		_, err := h.ctl.Generate(context.Background(), req)
		assert.Equal(t, KindInvalidCredential, failureKind(t, err).Kind)
		assert.Equal(t, 1, api.calls())
	}
}

func TestGenerate_APIReportedError(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, 3)
	api.generate = func(int) (provider.Response, error) {
		return provider.Response{Status: 200, ContentType: "application/json; charset=utf-8", Body: []byte(`{"error":"prompt rejected"}`)}, nil
	}
	_, err := h.ctl.Generate(context.Background(), req)
	f := failureKind(t, err)
	assert.Equal(t, KindAPIReportedError, f.Kind)
	assert.Equal(t, "prompt rejected", f.Message)

	api.generate = func(int) (provider.Response, error) {
		return provider.Response{Status: 400, StatusText: "Bad Request", ContentType: "text/plain", Body: []byte("nope")}, nil
	}
	_, err = h.ctl.Generate(context.Background(), req)
	f = failureKind(t, err)
	assert.Equal(t, KindAPIReportedError, f.Kind)
	assert.Equal(t, "Failed to generate image: Bad Request", f.Message)
}

func TestGenerate_UndecodableBody(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, 3)
	api.generate = func(int) (provider.Response, error) {
		return provider.Response{Status: 200, ContentType: "image/png", Body: []byte("not an image")}, nil
	}
	_, err := h.ctl.Generate(context.Background(), req)
	assert.Equal(t, KindUnclassified, failureKind(t, err).Kind)
}

func TestGenerate_CrossOriginBlocked(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, 3)
	api.generate = func(int) (provider.Response, error) {
		return provider.Response{}, &provider.Error{Code: provider.CodeNetwork, Message: "TypeError: blocked by CORS policy"}
	}

	_, err := h.ctl.Generate(context.Background(), req)
	f := failureKind(t, err)
	assert.Equal(t, KindCrossOriginBlocked, f.Kind)
	assert.Equal(t, "https://models.test/dataautogpt3/ProteusV0.2", f.Link)
	assert.Equal(t, notify.CrossOriginNotDetected, h.monitor.Status())
	ev, ok := h.sink.Last("direct_link")
	require.True(t, ok)
	assert.Equal(t, f.Link, ev.URL)
	assert.Equal(t, 1, api.calls())
}

func TestGenerate_OtherTransportErrorKeepsCrossOriginState(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, 3)
	api.generate = func(int) (provider.Response, error) {
		return provider.Response{}, &provider.Error{Code: provider.CodeNetwork, Message: "dial tcp: connection refused"}
	}

	for _, state := range []notify.CrossOriginState{notify.CrossOriginUncertain, notify.CrossOriginNotDetected} {
		h.monitor.Set(state)
		_, err := h.ctl.Generate(context.Background(), req)
		f := failureKind(t, err)
		assert.Equal(t, KindUnclassified, f.Kind)
		assert.Contains(t, f.Message, "connection refused")
		assert.Equal(t, state, h.monitor.Status())
		assert.True(t, h.ctl.Outage())
	}
	_, ok := h.sink.Last("direct_link")
	assert.False(t, ok)
}

type blockingPinger struct {
	calls   atomic.Int32
	release chan struct{}
}

func (b *blockingPinger) Ping(ctx context.Context, _ string) (provider.Response, error) {
	b.calls.Add(1)
	select {
	case <-b.release:
		return provider.Response{Status: 200}, nil
	case <-ctx.Done():
		return provider.Response{}, ctx.Err()
	}
}

func TestGenerate_DoesNotWaitOnCrossOriginPing(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, 3)
	pinger := &blockingPinger{release: make(chan struct{})}
	defer close(pinger.release)
	h.monitor = crossorigin.New(pinger, crossorigin.Options{Sink: h.sink, Logger: zerolog.Nop()})
	h.ctl.crossOrigin = h.monitor
	api.generate = func(int) (provider.Response, error) { return imageResponse(t), nil }

	done := make(chan error, 1)
	go func() {
		_, err := h.ctl.Generate(context.Background(), req)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Generate blocked on the cross-origin ping")
	}
	assert.Zero(t, pinger.calls.Load())
	assert.Equal(t, notify.CrossOriginDetected, h.monitor.Status())
}

func TestGenerate_SingleFlight(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, 3)
	started := make(chan struct{})
	release := make(chan struct{})
	api.generate = func(int) (provider.Response, error) {
		close(started)
		<-release
		return imageResponse(t), nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.ctl.Generate(context.Background(), req)
		done <- err
	}()
	<-started

	_, err := h.ctl.Generate(context.Background(), req)
	assert.Equal(t, KindAlreadyInFlight, failureKind(t, err).Kind)
	assert.Equal(t, 1, api.calls())
	assert.True(t, h.ctl.InFlight())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, api.calls())
	assert.False(t, h.ctl.InFlight())
}

func TestGenerate_SleepCanceled(t *testing.T) {
	api := &fakeAPI{}
	h := newHarness(t, api, 3)
	api.generate = func(int) (provider.Response, error) { return provider.Response{Status: 500}, nil }
	h.ctl.sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }

	_, err := h.ctl.Generate(context.Background(), req)
	f := failureKind(t, err)
	assert.Equal(t, KindUnclassified, f.Kind)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, api.calls())
}
