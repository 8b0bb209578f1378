package provider

import "context"

// ImageAPI is the remote inference service. Implementations make exactly one
// request per call and return any HTTP response, success or not, as a
// Response; only transport failures are returned as errors.
type ImageAPI interface {
	GenerateImage(ctx context.Context, req GenerateImageRequest) (Response, error)
	ProbeModel(ctx context.Context, req ProbeRequest) (Response, error)
}

// Pinger performs the unauthenticated cross-origin check.
type Pinger interface {
	Ping(ctx context.Context, url string) (Response, error)
}

type GenerateImageRequest struct {
	Model      string
	Prompt     string
	Credential string

	Headers map[string]string
}

type ProbeRequest struct {
	Model      string
	Credential string
}

type Response struct {
	Status      int
	StatusText  string
	ContentType string
	Body        []byte
}
