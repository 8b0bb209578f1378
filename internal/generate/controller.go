// Package generate runs one prompt-to-image request end to end: precondition
// checks, a fresh availability probe, the request with server-error retries,
// and classification of whatever came back.
package generate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bitop-dev/t2i/internal/catalog"
	"github.com/bitop-dev/t2i/internal/hfapi"
	"github.com/bitop-dev/t2i/internal/httpx"
	"github.com/bitop-dev/t2i/internal/metrics"
	"github.com/bitop-dev/t2i/internal/notify"
	"github.com/bitop-dev/t2i/internal/probe"
	"github.com/bitop-dev/t2i/internal/provider"
)

type State int32

const (
	StateIdle State = iota
	StateValidating
	StateProbing
	StateRequesting
	StateClassifying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateValidating:
		return "validating"
	case StateProbing:
		return "probing"
	case StateRequesting:
		return "requesting"
	case StateClassifying:
		return "classifying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Prober re-checks the selected model before a request.
type Prober interface {
	Check(ctx context.Context, index int, credential string) (probe.Result, error)
}

// CrossOrigin is the shared cross-origin state. The controller only reads
// the last known value and records what a request reveals; it never pings.
type CrossOrigin interface {
	Status() notify.CrossOriginState
	Set(notify.CrossOriginState)
}

type Request struct {
	Prompt     string
	Credential string
}

type Result struct {
	Image notify.Image
	Model catalog.Model
	// Calls is the number of generation requests sent, retries included.
	Calls int
}

type Options struct {
	Retry httpx.RetryPolicy
	// RequestTimeout bounds each remote call. Default 120s.
	RequestTimeout time.Duration

	// ModelPage returns the direct-access page offered on a cross-origin block.
	ModelPage func(modelID string) string
	// StatusURL is shown with the outage advisory.
	StatusURL string

	Sink    notify.Sink
	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	// Sleep waits between retries. Default httpx.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Controller struct {
	api         provider.ImageAPI
	catalog     *catalog.Catalog
	prober      Prober
	crossOrigin CrossOrigin

	retry     httpx.RetryPolicy
	timeout   time.Duration
	modelPage func(string) string
	statusURL string
	sink      notify.Sink
	log       zerolog.Logger
	metrics   *metrics.Metrics
	sleep     func(context.Context, time.Duration) error

	inFlight atomic.Bool
	state    atomic.Int32
	outage   atomic.Bool
}

func New(api provider.ImageAPI, c *catalog.Catalog, p Prober, co CrossOrigin, opts Options) *Controller {
	ctl := &Controller{
		api:         api,
		catalog:     c,
		prober:      p,
		crossOrigin: co,
		retry:       opts.Retry.Normalize(),
		timeout:     opts.RequestTimeout,
		modelPage:   opts.ModelPage,
		statusURL:   opts.StatusURL,
		sink:        opts.Sink,
		log:         opts.Logger.With().Str("component", "generate").Logger(),
		metrics:     opts.Metrics,
		sleep:       opts.Sleep,
	}
	if ctl.timeout <= 0 {
		ctl.timeout = 120 * time.Second
	}
	if ctl.modelPage == nil {
		ctl.modelPage = func(id string) string { return hfapi.DefaultModelPageURL + "/" + id }
	}
	if ctl.statusURL == "" {
		ctl.statusURL = hfapi.DefaultStatusURL
	}
	if ctl.sink == nil {
		ctl.sink = notify.Discard{}
	}
	if ctl.metrics == nil {
		ctl.metrics = metrics.Noop()
	}
	if ctl.sleep == nil {
		ctl.sleep = httpx.Sleep
	}
	return ctl
}

func (c *Controller) State() State { return State(c.state.Load()) }

func (c *Controller) InFlight() bool { return c.inFlight.Load() }

// Outage reports whether the standing "API appears down" advisory is up.
func (c *Controller) Outage() bool { return c.outage.Load() }

// ClearOutage drops the advisory after evidence that the service is back.
func (c *Controller) ClearOutage() {
	if c.outage.Swap(false) {
		c.log.Info().Msg("inference API reachable again")
	}
}

func (c *Controller) setState(s State) { c.state.Store(int32(s)) }

// Generate runs one generation for the selected model. Every failure is a
// *Failure. At most one generation runs at a time; a call made while one is
// running returns KindAlreadyInFlight without touching the network.
func (c *Controller) Generate(ctx context.Context, req Request) (*Result, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.sink.Status("Already generating an image...", false)
		return nil, &Failure{Kind: KindAlreadyInFlight, Message: "already generating an image"}
	}
	defer c.inFlight.Store(false)

	start := time.Now()
	res, f := c.run(ctx, req)
	c.metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	if f != nil {
		c.fail(f)
		return nil, f
	}
	c.setState(StateSucceeded)
	c.metrics.GenerationOutcomes.WithLabelValues("succeeded").Inc()
	c.ClearOutage()
	c.sink.Image(res.Image)
	c.sink.Status("Image generated", false)
	c.log.Info().Str("model", res.Model.ID).Int("calls", res.Calls).Str("handle", res.Image.Handle).Msg("image generated")
	return res, nil
}

func (c *Controller) run(ctx context.Context, req Request) (*Result, *Failure) {
	c.setState(StateValidating)
	c.sink.ClearError()
	if req.Credential == "" {
		return nil, &Failure{Kind: KindNoCredential, Message: "API token is required"}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &Failure{Kind: KindNoPrompt, Message: "No prompt available"}
	}
	c.sink.Status("Generating image...", false)

	c.setState(StateProbing)
	index := c.catalog.SelectedIndex()
	model, err := c.catalog.At(index)
	if err != nil {
		return nil, &Failure{Kind: KindUnclassified, Message: err.Error(), Cause: err}
	}
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	pr, err := c.prober.Check(probeCtx, index, req.Credential)
	cancel()
	if err != nil {
		return nil, &Failure{Kind: KindUnclassified, Model: model.ID, Message: err.Error(), Cause: err}
	}
	if pr.Status == catalog.StatusError {
		return nil, &Failure{
			Kind:    KindModelUnavailable,
			Model:   model.ID,
			Status:  pr.HTTPStatus,
			Message: fmt.Sprintf("Model %s appears to be unavailable. Try another model.", model.Name),
			Cause:   pr.Err,
		}
	}

	// Informational only; the request goes out whatever it says.
	c.log.Debug().Str("model", model.ID).Stringer("cross_origin", c.crossOrigin.Status()).Msg("sending generation request")

	resp, calls, f := c.request(ctx, model, req)
	if f != nil {
		return nil, f
	}

	c.setState(StateClassifying)
	if f := c.classify(model, resp); f != nil {
		return nil, f
	}
	img, err := decodeImage(resp.Body, resp.ContentType)
	if err != nil {
		return nil, &Failure{Kind: KindUnclassified, Model: model.ID, Status: resp.Status, Message: err.Error(), Cause: err}
	}
	return &Result{Image: img, Model: model, Calls: calls}, nil
}

// request sends the generation call, retrying plain server errors with a
// doubling delay. 503 is not retried: it means the model is still loading
// and classify reports that.
func (c *Controller) request(ctx context.Context, model catalog.Model, req Request) (provider.Response, int, *Failure) {
	maxRetries := c.retry.MaxRetries
	for attempt := 1; ; attempt++ {
		c.setState(StateRequesting)
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.api.GenerateImage(callCtx, provider.GenerateImageRequest{
			Model:      model.ID,
			Prompt:     req.Prompt,
			Credential: req.Credential,
		})
		cancel()
		if err != nil {
			c.metrics.GenerationRequests.WithLabelValues("transport").Inc()
			return provider.Response{}, attempt, c.transportFailure(ctx, model, err)
		}
		c.metrics.GenerationRequests.WithLabelValues(strconv.Itoa(resp.Status)).Inc()
		// A response of any status proves cross-origin requests get through.
		c.crossOrigin.Set(notify.CrossOriginDetected)

		if !httpx.IsServerError(resp.Status) || resp.Status == http.StatusServiceUnavailable {
			return resp, attempt, nil
		}
		if attempt > maxRetries {
			return provider.Response{}, attempt, &Failure{
				Kind:    KindServerErrorExhausted,
				Model:   model.ID,
				Status:  resp.Status,
				Message: fmt.Sprintf("Server error (%d) after maximum retry attempts", resp.Status),
			}
		}
		delay := c.retry.Delay(attempt)
		c.sink.Status(fmt.Sprintf("Server error, retrying (%d/%d)...", attempt, maxRetries), true)
		c.log.Warn().Str("model", model.ID).Int("status", resp.Status).Int("retry", attempt).Dur("delay", delay).Msg("server error, retrying")
		if err := c.sleep(ctx, delay); err != nil {
			return provider.Response{}, attempt, &Failure{Kind: KindUnclassified, Model: model.ID, Status: resp.Status, Message: err.Error(), Cause: err}
		}
	}
}

func (c *Controller) transportFailure(ctx context.Context, model catalog.Model, err error) *Failure {
	if provider.IsCrossOrigin(err) {
		c.crossOrigin.Set(notify.CrossOriginNotDetected)
		link := c.modelPage(model.ID)
		c.sink.Status("CORS issue detected...", true)
		c.sink.DirectLink(link)
		return &Failure{
			Kind:    KindCrossOriginBlocked,
			Model:   model.ID,
			Link:    link,
			Message: "CORS restriction detected. Please ensure your CORS extension is active (toggle it on/off), or use the direct link provided.",
			Cause:   err,
		}
	}
	msg := err.Error()
	var pe *provider.Error
	if errors.As(err, &pe) && pe.Code == provider.CodeTimeout && ctx.Err() == nil {
		msg = fmt.Sprintf("request timed out after %s: %s", c.timeout, pe.Message)
	}
	return &Failure{Kind: KindUnclassified, Model: model.ID, Message: msg, Cause: err}
}

// classify returns nil when resp should carry an image.
func (c *Controller) classify(model catalog.Model, resp provider.Response) *Failure {
	apiMsg, hasAPIMsg := hfapi.ParseError(resp.Body)
	switch {
	case resp.Status == http.StatusServiceUnavailable:
		c.catalog.SetStatusByID(model.ID, catalog.StatusLoading)
		c.sink.Models(c.catalog.Snapshot(), c.catalog.SelectedIndex())
		msg := "Model is still initializing. Please try again in a few minutes."
		if hasAPIMsg && strings.Contains(apiMsg, "loading") {
			msg = "Model is still loading. This can take a few minutes for the first request. Please try again shortly."
		}
		return &Failure{Kind: KindModelLoading, Model: model.ID, Status: resp.Status, Message: msg}
	case httpx.IsAuthFailure(resp.Status):
		return &Failure{
			Kind:    KindInvalidCredential,
			Model:   model.ID,
			Status:  resp.Status,
			Message: "API token invalid or expired. Please check your token and try again.",
		}
	case !httpx.IsSuccess(resp.Status):
		msg := "Failed to generate image: " + resp.StatusText
		if hasAPIMsg {
			msg = apiMsg
		}
		return &Failure{Kind: KindAPIReportedError, Model: model.ID, Status: resp.Status, Message: msg}
	case isJSON(resp.ContentType):
		if hasAPIMsg {
			return &Failure{Kind: KindAPIReportedError, Model: model.ID, Status: resp.Status, Message: apiMsg}
		}
		return &Failure{Kind: KindUnclassified, Model: model.ID, Status: resp.Status, Message: "response contained no image"}
	}
	return nil
}

func (c *Controller) fail(f *Failure) {
	c.setState(StateFailed)
	c.metrics.GenerationOutcomes.WithLabelValues(f.Kind.String()).Inc()
	c.log.Warn().Str("model", f.Model).Stringer("kind", f.Kind).Int("status", f.Status).Err(f.Cause).Msg(f.Message)

	switch f.Kind {
	case KindNoCredential, KindNoPrompt:
		c.sink.Status(f.Message, true)
		return
	}
	if SuggestsOutage(f) {
		c.outage.Store(true)
		c.sink.APIDown(c.statusURL)
	}
	c.sink.ShowError(f.Advice())
	c.sink.Status("Failed to generate image", true)
}
