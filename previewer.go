// Package t2i is a text-to-image previewer for hosted inference models. A
// Previewer keeps a catalog of candidate models with their availability,
// generates an image for the current prompt with the selected model, and
// reports progress, failures and cross-origin reachability to a Sink.
package t2i

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/bitop-dev/t2i/internal/catalog"
	"github.com/bitop-dev/t2i/internal/crossorigin"
	"github.com/bitop-dev/t2i/internal/generate"
	"github.com/bitop-dev/t2i/internal/hfapi"
	"github.com/bitop-dev/t2i/internal/httpx"
	"github.com/bitop-dev/t2i/internal/metrics"
	"github.com/bitop-dev/t2i/internal/notify"
	"github.com/bitop-dev/t2i/internal/probe"
	"github.com/bitop-dev/t2i/internal/provider"
	"github.com/bitop-dev/t2i/internal/store"
)

// ErrNoCredential is returned by operations that need an API token before
// one has been saved.
var ErrNoCredential = probe.ErrNoCredential

// ErrModelOutOfRange is returned by SelectModel for an index outside the
// catalog.
var ErrModelOutOfRange = catalog.ErrOutOfRange

type Options struct {
	BaseURL      string
	ModelPageURL string
	StatusURL    string
	HTTPClient   *http.Client
	Headers      map[string]string

	// Models seeds the catalog. Default DefaultModels().
	Models []Model
	// DefaultToken is applied and persisted when nothing is stored yet.
	DefaultToken string

	// MaxRetries is how many times a plain server error is retried. Nil
	// means 3.
	MaxRetries *int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// RequestTimeout bounds each remote call. Default 120s.
	RequestTimeout time.Duration
	// Timeout bounds a whole Generate call. Zero means no bound beyond ctx.
	Timeout time.Duration

	CheckURL      string
	CheckInterval time.Duration
	// Origin is where the previewer is served from, e.g.
	// "http://localhost:8080". It selects the environment advisory.
	Origin string

	// DiscoveryCandidates are tried by FindWorkingModels.
	DiscoveryCandidates []string

	Store      Store
	Sink       Sink
	Logger     zerolog.Logger
	Registerer prometheus.Registerer

	api    provider.ImageAPI
	pinger provider.Pinger
}

type Previewer struct {
	catalog    *catalog.Catalog
	store      store.Store
	sink       notify.Sink
	log        zerolog.Logger
	prober     *probe.Prober
	monitor    *crossorigin.Monitor
	ctl        *generate.Controller
	modelPage  func(string) string
	candidates []string
	origin     string
	defToken   string
	timeout    time.Duration

	mu     sync.RWMutex
	token  string
	prompt string
}

func New(opts Options) (*Previewer, error) {
	models := opts.Models
	if len(models) == 0 {
		models = catalog.DefaultModels()
	}
	c, err := catalog.New(models)
	if err != nil {
		return nil, fmt.Errorf("t2i: %w", err)
	}

	m := metrics.New(opts.Registerer)
	sink := opts.Sink
	if sink == nil {
		sink = notify.Discard{}
	}
	st := opts.Store
	if st == nil {
		st = store.NewMemory()
	}

	client := hfapi.NewClient(hfapi.Config{
		BaseURL:      opts.BaseURL,
		ModelPageURL: opts.ModelPageURL,
		Headers:      opts.Headers,
		HTTPClient:   opts.HTTPClient,
	})
	api, pinger := opts.api, opts.pinger
	if api == nil {
		api = client
	}
	if pinger == nil {
		pinger = client
	}

	maxRetries := 3
	if opts.MaxRetries != nil {
		if *opts.MaxRetries < 0 {
			return nil, fmt.Errorf("t2i: MaxRetries must be >= 0, got %d", *opts.MaxRetries)
		}
		maxRetries = *opts.MaxRetries
	}

	p := &Previewer{
		catalog:    c,
		store:      st,
		sink:       sink,
		log:        opts.Logger,
		modelPage:  client.ModelPage,
		candidates: opts.DiscoveryCandidates,
		origin:     opts.Origin,
		defToken:   opts.DefaultToken,
		timeout:    opts.Timeout,
	}
	p.prober = probe.New(api, c, probe.Options{
		Sink:    sink,
		Logger:  opts.Logger,
		Metrics: m,
		// A reachable model is evidence the service is back.
		OnReachable: func() { p.ctl.ClearOutage() },
	})
	p.monitor = crossorigin.New(pinger, crossorigin.Options{
		CheckURL: opts.CheckURL,
		Interval: opts.CheckInterval,
		Sink:     sink,
		Logger:   opts.Logger,
		Metrics:  m,
	})
	p.ctl = generate.New(api, c, p.prober, p.monitor, generate.Options{
		Retry: httpx.RetryPolicy{
			MaxRetries: maxRetries,
			BaseDelay:  opts.BaseDelay,
			MaxDelay:   opts.MaxDelay,
		},
		RequestTimeout: opts.RequestTimeout,
		ModelPage:      client.ModelPage,
		StatusURL:      opts.StatusURL,
		Sink:           sink,
		Logger:         opts.Logger,
		Metrics:        m,
	})
	return p, nil
}

// Init restores persisted state, probes every model when a token is
// available and starts the cross-origin monitor. The monitor runs until Stop
// or until ctx is done.
func (p *Previewer) Init(ctx context.Context) error {
	if err := p.Restore(); err != nil {
		return err
	}
	if p.Credential() != "" {
		if err := p.CheckModels(ctx); err != nil {
			return err
		}
	}
	p.monitor.Start(ctx)
	p.log.Info().Int("models", p.catalog.Len()).Int("selected", p.catalog.SelectedIndex()).Bool("credential", p.Credential() != "").Msg("previewer initialized")
	return nil
}

// Restore loads the persisted model selection and token without touching
// the network. A configured default token is persisted when none is stored.
func (p *Previewer) Restore() error {
	if v, ok, err := p.store.Get(store.KeyModelIndex); err != nil {
		return fmt.Errorf("t2i: restore model index: %w", err)
	} else if ok {
		// An index that no longer fits the catalog is ignored.
		if i, err := strconv.Atoi(v); err == nil && i >= 0 && i < p.catalog.Len() {
			_ = p.catalog.Select(i)
		}
	}

	token, ok, err := p.store.Get(store.KeyToken)
	if err != nil {
		return fmt.Errorf("t2i: restore token: %w", err)
	}
	switch {
	case ok && token != "":
		p.setToken(token)
		p.sink.Status("API token loaded from storage", false)
	case p.defToken != "":
		p.setToken(p.defToken)
		if err := p.store.Set(store.KeyToken, p.defToken); err != nil {
			return fmt.Errorf("t2i: persist token: %w", err)
		}
		p.sink.Status("Default API token applied", false)
	}
	p.sink.Models(p.catalog.Snapshot(), p.catalog.SelectedIndex())

	if hint, ok := crossorigin.EnvironmentHint(p.origin); ok {
		p.sink.CrossOrigin(p.monitor.Status(), hint)
	}
	return nil
}

// Stop ends the repeating cross-origin check.
func (p *Previewer) Stop() { p.monitor.Stop() }

func (p *Previewer) setToken(t string) {
	p.mu.Lock()
	p.token = t
	p.mu.Unlock()
}

func (p *Previewer) Credential() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// SaveCredential stores token and re-probes every model with it. An empty
// token is ignored.
func (p *Previewer) SaveCredential(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	p.setToken(token)
	if err := p.store.Set(store.KeyToken, token); err != nil {
		return fmt.Errorf("t2i: persist token: %w", err)
	}
	p.sink.Status("API token saved", false)
	return p.CheckModels(ctx)
}

// SelectModel makes index the model used for generation and persists the
// choice. An index outside the catalog changes nothing.
func (p *Previewer) SelectModel(index int) error {
	if err := p.catalog.Select(index); err != nil {
		return fmt.Errorf("t2i: %w", err)
	}
	m, _ := p.catalog.At(index)
	if err := p.store.Set(store.KeyModelIndex, strconv.Itoa(index)); err != nil {
		p.log.Warn().Err(err).Msg("persist model index")
	}
	p.sink.Models(p.catalog.Snapshot(), index)
	p.sink.Status("Selected model: "+m.Name, false)
	return nil
}

func (p *Previewer) SetPrompt(text string) {
	p.mu.Lock()
	p.prompt = text
	p.mu.Unlock()
}

func (p *Previewer) Prompt() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prompt
}

// Generate produces an image for the current prompt with the selected
// model. Failures are *Error.
func (p *Previewer) Generate(ctx context.Context) (*Image, error) {
	ctx, cancel := applyTimeout(ctx, p.timeout)
	defer cancel()

	res, err := p.ctl.Generate(ctx, generate.Request{Prompt: p.Prompt(), Credential: p.Credential()})
	if err != nil {
		return nil, mapFailure(err)
	}
	return imageFrom(res.Image), nil
}

// Generating reports whether a generation is in flight.
func (p *Previewer) Generating() bool { return p.ctl.InFlight() }

// CheckModels probes every catalog entry. Without a token it does nothing.
func (p *Previewer) CheckModels(ctx context.Context) error {
	token := p.Credential()
	if token == "" {
		return nil
	}
	_, err := p.prober.ProbeAll(ctx, token)
	return err
}

// CheckModel probes the entry at index.
func (p *Previewer) CheckModel(ctx context.Context, index int) (ModelStatus, error) {
	res, err := p.prober.Check(ctx, index, p.Credential())
	if err != nil {
		return StatusUnknown, err
	}
	return res.Status, nil
}

// FindWorkingModels replaces the catalog with the discovery candidates that
// answer, selecting the first. It reports whether any did.
func (p *Previewer) FindWorkingModels(ctx context.Context) (bool, error) {
	p.sink.Status("Searching for working models...", false)
	found, err := p.prober.FindWorkingModels(ctx, p.Credential(), p.candidates)
	if err != nil {
		return false, err
	}
	if !found {
		p.sink.Status("No working models found. Please try again later.", true)
		return false, nil
	}
	if err := p.store.Set(store.KeyModelIndex, "0"); err != nil {
		p.log.Warn().Err(err).Msg("persist model index")
	}
	return true, nil
}

// UseReliableModel selects a model that usually serves requests, adding it
// to the catalog if needed, and probes it.
func (p *Previewer) UseReliableModel(ctx context.Context) (Model, error) {
	i, inserted := catalog.Suggest(p.catalog, catalog.ReliableFallback)
	if inserted {
		p.log.Info().Str("model", catalog.ReliableFallback.ID).Msg("reliable model added to catalog")
	}
	if err := p.SelectModel(i); err != nil {
		return Model{}, err
	}
	m, _ := p.catalog.At(i)
	if p.Credential() == "" {
		return m, nil
	}
	if _, err := p.prober.Check(ctx, i, p.Credential()); err != nil {
		return m, err
	}
	m, _ = p.catalog.At(i)
	return m, nil
}

// RetryAfterOutage drops the "API appears down" advisory and checks the
// models again.
func (p *Previewer) RetryAfterOutage(ctx context.Context) error {
	p.ctl.ClearOutage()
	p.sink.ClearError()
	p.sink.Status("Checking API availability...", false)
	return p.CheckModels(ctx)
}

// APIDown reports whether the service-outage advisory is up.
func (p *Previewer) APIDown() bool { return p.ctl.Outage() }

func (p *Previewer) Models() []Model { return p.catalog.Snapshot() }

func (p *Previewer) Selected() (Model, int) {
	i := p.catalog.SelectedIndex()
	m, _ := p.catalog.At(i)
	return m, i
}

// ModelPage is the page for a model that opens outside the previewer.
func (p *Previewer) ModelPage(modelID string) string { return p.modelPage(modelID) }

func (p *Previewer) CrossOrigin() CrossOriginState { return p.monitor.Status() }

// CheckCrossOrigin runs one cross-origin check now.
func (p *Previewer) CheckCrossOrigin(ctx context.Context) CrossOriginState {
	return p.monitor.Check(ctx)
}

// CrossOriginHint describes s for display.
func CrossOriginHint(s CrossOriginState) string { return crossorigin.Hint(s) }
