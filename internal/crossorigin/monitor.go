// Package crossorigin tracks whether cross-origin requests to the inference
// service can complete from where the previewer runs.
package crossorigin

import (
	"context"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/bitop-dev/t2i/internal/metrics"
	"github.com/bitop-dev/t2i/internal/notify"
	"github.com/bitop-dev/t2i/internal/provider"
)

const (
	DefaultCheckURL = "https://httpbin.org/headers"
	DefaultInterval = 5 * time.Second

	ExtensionURL = "https://chrome.google.com/webstore/detail/allow-cors-access-control/lhobafahddgcelffkeicbaginigeejlf"
)

type Options struct {
	CheckURL string
	Interval time.Duration
	Timeout  time.Duration

	Sink    notify.Sink
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

type Monitor struct {
	pinger   provider.Pinger
	checkURL string
	interval time.Duration
	timeout  time.Duration
	sink     notify.Sink
	log      zerolog.Logger
	metrics  *metrics.Metrics

	state atomic.Int32

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup // initial check fired by Start
}

func New(p provider.Pinger, opts Options) *Monitor {
	m := &Monitor{
		pinger:   p,
		checkURL: opts.CheckURL,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		sink:     opts.Sink,
		log:      opts.Logger.With().Str("component", "crossorigin").Logger(),
		metrics:  opts.Metrics,
	}
	if m.checkURL == "" {
		m.checkURL = DefaultCheckURL
	}
	if m.interval <= 0 {
		m.interval = DefaultInterval
	}
	if m.timeout <= 0 {
		m.timeout = 10 * time.Second
	}
	if m.sink == nil {
		m.sink = notify.Discard{}
	}
	if m.metrics == nil {
		m.metrics = metrics.Noop()
	}
	m.state.Store(int32(notify.CrossOriginUncertain))
	return m
}

// Status returns the last known state without waiting for a running check.
func (m *Monitor) Status() notify.CrossOriginState {
	return notify.CrossOriginState(m.state.Load())
}

// Set records evidence gathered elsewhere, e.g. by a generation request.
func (m *Monitor) Set(s notify.CrossOriginState) {
	if notify.CrossOriginState(m.state.Swap(int32(s))) != s {
		m.sink.CrossOrigin(s, Hint(s))
	}
}

// Check issues one cross-origin request. A response of any status means
// cross-origin requests work; an error naming a cross-origin restriction
// means they don't; any other error leaves the state as it was.
func (m *Monitor) Check(ctx context.Context) notify.CrossOriginState {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	_, err := m.pinger.Ping(ctx, m.checkURL)
	switch {
	case err == nil:
		m.metrics.CrossOriginChecks.WithLabelValues("detected").Inc()
		m.Set(notify.CrossOriginDetected)
	case provider.IsCrossOrigin(err):
		m.metrics.CrossOriginChecks.WithLabelValues("not_detected").Inc()
		m.log.Debug().Err(err).Msg("cross-origin request blocked")
		m.Set(notify.CrossOriginNotDetected)
	default:
		m.metrics.CrossOriginChecks.WithLabelValues("inconclusive").Inc()
		m.log.Warn().Err(err).Msg("network error during cross-origin check")
	}
	return m.Status()
}

// Start checks once and then on every interval until Stop or ctx is done.
// Calling Start on a running monitor does nothing.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(cron.Every(m.interval), cron.FuncJob(func() {
		if ctx.Err() == nil {
			m.Check(ctx)
		}
	}))
	m.cron, m.cancel = c, cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.Check(ctx)
	}()
	c.Start()
}

// Stop cancels the repeating check and waits for a running one to return.
// It is safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	c, cancel := m.cron, m.cancel
	m.cron, m.cancel = nil, nil
	m.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
	m.wg.Wait()
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cron != nil
}

func Hint(s notify.CrossOriginState) string {
	switch s {
	case notify.CrossOriginDetected:
		return "CORS: active. Image generation should work correctly with the API."
	case notify.CrossOriginNotDetected:
		return "CORS: not detected or inactive. Install " + ExtensionURL + " and make sure it's enabled."
	default:
		return "CORS: possibly active (couldn't verify). If image generation fails, ensure the extension is enabled and properly configured."
	}
}

// EnvironmentHint returns advice for origins that commonly hit cross-origin
// limits: local development hosts and GitHub Pages.
func EnvironmentHint(origin string) (string, bool) {
	host := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		host = u.Hostname()
	} else if h, _, err := net.SplitHostPort(origin); err == nil {
		host = h
	}
	switch {
	case host == "":
		return "", false
	case host == "localhost" || host == "127.0.0.1" || strings.HasPrefix(host, "192.168."):
		return "Local development: you're running this locally, where CORS issues are common. Install " + ExtensionURL + " and ensure it's enabled.", true
	case strings.HasSuffix(host, "github.io"):
		return "GitHub Pages notice: this app runs on GitHub Pages, which has stricter CORS policies. Use a CORS extension or open the model page directly.", true
	}
	return "", false
}
