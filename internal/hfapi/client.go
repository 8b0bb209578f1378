package hfapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bitop-dev/t2i/internal/httpx"
	"github.com/bitop-dev/t2i/internal/provider"
)

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	return &Client{cfg: normalizeConfig(cfg)}
}

func (c *Client) Config() Config { return c.cfg }

type generateRequest struct {
	Inputs string `json:"inputs"`
}

// ErrorBody is the JSON payload the service sends instead of an image.
type ErrorBody struct {
	Error         string  `json:"error"`
	EstimatedTime float64 `json:"estimated_time,omitempty"`
}

// ParseError extracts the "error" field from a JSON body. ok is false when
// the body isn't JSON or carries no error.
func ParseError(body []byte) (msg string, ok bool) {
	var eb ErrorBody
	if json.Unmarshal(body, &eb) != nil || eb.Error == "" {
		return "", false
	}
	return eb.Error, true
}

func (c *Client) GenerateImage(ctx context.Context, req provider.GenerateImageRequest) (provider.Response, error) {
	if req.Model == "" {
		return provider.Response{}, &provider.Error{Provider: ProviderName, Code: provider.CodeRequest, Message: "model is required"}
	}
	body, err := json.Marshal(generateRequest{Inputs: req.Prompt})
	if err != nil {
		return provider.Response{}, &provider.Error{Provider: ProviderName, Code: provider.CodeRequest, Message: err.Error(), Cause: err}
	}
	u, err := c.ModelURL(req.Model)
	if err != nil {
		return provider.Response{}, &provider.Error{Provider: ProviderName, Code: provider.CodeRequest, Message: err.Error(), Cause: err}
	}

	h := c.headers(req.Credential)
	h.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		h.Set(k, v)
	}

	resp, err := httpx.Do(ctx, c.cfg.HTTPClient, http.MethodPost, u, body, h)
	if err != nil {
		return provider.Response{}, transportError(err)
	}
	raw, err := httpx.ReadLimited(resp, c.cfg.MaxBodyBytes)
	if err != nil {
		return provider.Response{}, transportError(err)
	}
	return toResponse(resp, raw), nil
}

func (c *Client) ProbeModel(ctx context.Context, req provider.ProbeRequest) (provider.Response, error) {
	u, err := c.ModelURL(req.Model)
	if err != nil {
		return provider.Response{}, &provider.Error{Provider: ProviderName, Code: provider.CodeRequest, Message: err.Error(), Cause: err}
	}
	resp, err := httpx.Do(ctx, c.cfg.HTTPClient, http.MethodHead, u, nil, c.headers(req.Credential))
	if err != nil {
		return provider.Response{}, transportError(err)
	}
	httpx.Discard(resp)
	return toResponse(resp, nil), nil
}

// Ping issues an unauthenticated GET. Any response counts; the body is dropped.
func (c *Client) Ping(ctx context.Context, target string) (provider.Response, error) {
	resp, err := httpx.Do(ctx, c.cfg.HTTPClient, http.MethodGet, target, nil, nil)
	if err != nil {
		return provider.Response{}, transportError(err)
	}
	httpx.Discard(resp)
	return toResponse(resp, nil), nil
}

func (c *Client) ModelURL(model string) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL + "/models/" + strings.TrimLeft(model, "/"))
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// ModelPage is the human-facing page for model, used as the direct-access
// fallback when the API can't be reached from here.
func (c *Client) ModelPage(model string) string {
	return c.cfg.ModelPageURL + "/" + strings.TrimLeft(model, "/")
}

func (c *Client) headers(credential string) http.Header {
	h := make(http.Header)
	if credential != "" {
		h.Set("Authorization", "Bearer "+credential)
	}
	for k, v := range c.cfg.Headers {
		h.Set(k, v)
	}
	return h
}

func toResponse(resp *http.Response, body []byte) provider.Response {
	return provider.Response{
		Status:      resp.StatusCode,
		StatusText:  statusText(resp),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
}

func statusText(resp *http.Response) string {
	if t := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))); t != "" {
		return t
	}
	return http.StatusText(resp.StatusCode)
}

func transportError(err error) *provider.Error {
	code, retryable := classifyNetworkErr(err)
	return &provider.Error{Provider: ProviderName, Code: code, Message: err.Error(), Retryable: retryable, Cause: err}
}

func classifyNetworkErr(err error) (code string, retryable bool) {
	if err == nil {
		return provider.CodeNetwork, false
	}
	if errors.Is(err, context.Canceled) {
		return provider.CodeCanceled, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return provider.CodeTimeout, true
	}
	if provider.HasCrossOriginMarker(err.Error()) {
		return provider.CodeCrossOrigin, false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return provider.CodeTimeout, true
	}
	return provider.CodeNetwork, true
}

var (
	_ provider.ImageAPI = (*Client)(nil)
	_ provider.Pinger   = (*Client)(nil)
)
