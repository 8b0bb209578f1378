// Package probe checks whether catalog models exist and are ready on the
// inference service, and keeps the catalog's availability statuses current.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bitop-dev/t2i/internal/catalog"
	"github.com/bitop-dev/t2i/internal/hfapi"
	"github.com/bitop-dev/t2i/internal/httpx"
	"github.com/bitop-dev/t2i/internal/metrics"
	"github.com/bitop-dev/t2i/internal/notify"
	"github.com/bitop-dev/t2i/internal/provider"
)

// ErrNoCredential means a probe was refused before any request was made.
var ErrNoCredential = errors.New("probe: API token is required")

type Reason int

const (
	ReasonNone Reason = iota
	ReasonNotFound
	ReasonHTTPStatus
	ReasonNetwork
)

type Result struct {
	ModelID    string
	Status     catalog.Status
	Reason     Reason
	HTTPStatus int
	Err        error
}

// DiscoveryCandidates are tried by FindWorkingModels when the caller has no
// list of its own.
var DiscoveryCandidates = []string{
	"runwayml/stable-diffusion-v1-5",
	"stabilityai/stable-diffusion-xl-base-1.0",
	"CompVis/stable-diffusion-v1-4",
	"stabilityai/stable-diffusion-2-1",
}

type Options struct {
	Sink    notify.Sink
	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	// Concurrency bounds ProbeAll's in-flight probes. Default 4.
	Concurrency int
	// DiscoveryRate paces FindWorkingModels. Default 2 per second.
	DiscoveryRate rate.Limit

	// OnReachable runs whenever a probe gets an HTTP response that proves the
	// service is up (available or loading).
	OnReachable func()
}

type Prober struct {
	api     provider.ImageAPI
	catalog *catalog.Catalog
	sink    notify.Sink
	log     zerolog.Logger
	metrics *metrics.Metrics

	concurrency int
	limiter     *rate.Limiter
	onReachable func()
}

func New(api provider.ImageAPI, c *catalog.Catalog, opts Options) *Prober {
	p := &Prober{
		api:         api,
		catalog:     c,
		sink:        opts.Sink,
		log:         opts.Logger.With().Str("component", "probe").Logger(),
		metrics:     opts.Metrics,
		concurrency: opts.Concurrency,
		onReachable: opts.OnReachable,
	}
	if p.sink == nil {
		p.sink = notify.Discard{}
	}
	if p.metrics == nil {
		p.metrics = metrics.Noop()
	}
	if p.concurrency <= 0 {
		p.concurrency = 4
	}
	r := opts.DiscoveryRate
	if r <= 0 {
		r = 2
	}
	p.limiter = rate.NewLimiter(r, 1)
	return p
}

// Classify maps a probe outcome to an availability status.
func Classify(modelID string, resp provider.Response, err error) Result {
	res := Result{ModelID: modelID}
	switch {
	case err != nil:
		res.Status, res.Reason, res.Err = catalog.StatusError, ReasonNetwork, err
	case httpx.IsSuccess(resp.Status):
		res.Status = catalog.StatusAvailable
	case resp.Status == http.StatusServiceUnavailable:
		res.Status = catalog.StatusLoading
	case resp.Status == http.StatusNotFound:
		res.Status, res.Reason = catalog.StatusError, ReasonNotFound
	default:
		res.Status, res.Reason = catalog.StatusError, ReasonHTTPStatus
	}
	if err == nil {
		res.HTTPStatus = resp.Status
	}
	return res
}

// Check probes the entry at index and records the result on it. The only
// errors are ErrNoCredential and an out-of-range index; remote failures
// become StatusError.
func (p *Prober) Check(ctx context.Context, index int, credential string) (Result, error) {
	if credential == "" {
		return Result{}, ErrNoCredential
	}
	m, err := p.catalog.At(index)
	if err != nil {
		return Result{}, err
	}
	return p.checkModel(ctx, m, credential), nil
}

func (p *Prober) checkModel(ctx context.Context, m catalog.Model, credential string) Result {
	resp, err := p.api.ProbeModel(ctx, provider.ProbeRequest{Model: m.ID, Credential: credential})
	res := Classify(m.ID, resp, err)
	p.metrics.ProbeResults.WithLabelValues(res.Status.String()).Inc()

	// Keyed by id: the catalog may have been replaced while we waited.
	if !p.catalog.SetStatusByID(m.ID, res.Status) {
		p.log.Debug().Str("model", m.ID).Msg("model left the catalog during probe")
		return res
	}
	p.report(m, res)
	return res
}

func (p *Prober) report(m catalog.Model, res Result) {
	switch res.Status {
	case catalog.StatusAvailable, catalog.StatusLoading:
		p.sink.ClearModelError(m.ID)
		if !p.catalog.HasErrors() {
			p.sink.ClearSuggestions()
		}
		if p.onReachable != nil {
			p.onReachable()
		}
	case catalog.StatusError:
		title, msg := describe(m, res)
		p.log.Warn().Str("model", m.ID).Int("status", res.HTTPStatus).Err(res.Err).Msg(title)
		p.sink.ModelError(m.ID, title, msg+" Browse popular text-to-image models: "+hfapi.BrowseModelsURL)
		p.sink.Suggestions(catalog.ReliableModelIDs)
	}
	p.sink.Models(p.catalog.Snapshot(), p.catalog.SelectedIndex())
}

func describe(m catalog.Model, res Result) (title, msg string) {
	switch res.Reason {
	case ReasonNotFound:
		return "Model not found", fmt.Sprintf("The model %q could not be found. It may have been removed or renamed.", m.ID)
	case ReasonNetwork:
		return "Network Error", fmt.Sprintf("Network error while checking model %q. Check your internet connection.", m.ID)
	default:
		return fmt.Sprintf("Error (%d)", res.HTTPStatus),
			fmt.Sprintf("Could not access model %q. This could be due to access restrictions or server issues.", m.ID)
	}
}

// ProbeAll checks every entry concurrently. Results are in catalog order,
// but the probes finish in any order and each writes only its own entry.
func (p *Prober) ProbeAll(ctx context.Context, credential string) ([]Result, error) {
	if credential == "" {
		return nil, ErrNoCredential
	}
	models := p.catalog.Snapshot()
	results := make([]Result, len(models))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, m := range models {
		g.Go(func() error {
			results[i] = p.checkModel(ctx, m, credential)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// FindWorkingModels probes candidates one at a time and, if any answers as
// available or loading, replaces the catalog with those and selects the
// first. It reports whether anything was found; finding nothing is not an
// error.
func (p *Prober) FindWorkingModels(ctx context.Context, credential string, candidates []string) (bool, error) {
	if credential == "" {
		return false, ErrNoCredential
	}
	if len(candidates) == 0 {
		candidates = DiscoveryCandidates
	}
	p.sink.Status("Testing available models...", false)

	var found []catalog.Model
	for _, id := range candidates {
		if err := p.limiter.Wait(ctx); err != nil {
			return false, err
		}
		resp, err := p.api.ProbeModel(ctx, provider.ProbeRequest{Model: id, Credential: credential})
		res := Classify(id, resp, err)
		p.metrics.ProbeResults.WithLabelValues(res.Status.String()).Inc()
		if res.Status != catalog.StatusAvailable && res.Status != catalog.StatusLoading {
			p.log.Debug().Str("model", id).Int("status", res.HTTPStatus).Err(res.Err).Msg("candidate not usable")
			continue
		}
		found = append(found, catalog.Model{
			ID:          id,
			Name:        displayName(id),
			Description: "Text-to-image model (detected)",
			Status:      res.Status,
		})
	}

	if len(found) == 0 {
		return false, nil
	}
	if err := p.catalog.Replace(found); err != nil {
		return false, err
	}
	p.sink.Models(p.catalog.Snapshot(), 0)
	p.sink.Status(fmt.Sprintf("Found %d working models", len(found)), false)
	p.log.Info().Int("count", len(found)).Msg("catalog replaced by discovered models")
	return true, nil
}

func displayName(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 && i < len(id)-1 {
		return id[i+1:]
	}
	return id
}
