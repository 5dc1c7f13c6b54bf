package raucwebsvc

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/go-kit/kit/circuitbreaker"
	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/ratelimit"
	"github.com/go-kit/kit/tracing/opentracing"
	httptransport "github.com/go-kit/kit/transport/http"

	stdopentracing "github.com/opentracing/opentracing-go"
)

const (
	statusPath     = "/api/status"
	uploadPath     = "/api/upload"
	bundleInfoPath = "/api/bundle-info"
	installPath    = "/api/install"
	rebootPath     = "/api/reboot"

	uploadField = "file"
)

// NewHTTPClient returns a Service backed by the update web service living at
// instance, either "host:port" or a full URL with an optional path prefix.
// Each endpoint is wrapped with tracing, a shared rate limiter and its own
// circuit breaker. None of them retries. Non-2xx replies travel inside the
// response, so the breaker opens only on transport failures and the limiter
// delays calls instead of rejecting them.
func NewHTTPClient(instance string, otTracer stdopentracing.Tracer, logger log.Logger) (Service, error) {
	if !strings.HasPrefix(instance, "http") {
		instance = "http://" + instance
	}
	u, err := url.Parse(instance)
	if err != nil {
		return nil, err
	}

	// One limiter for the total outgoing QPS to the remote instance,
	// breakers per endpoint.
	limiter := ratelimit.NewDelayingLimiter(rate.NewLimiter(rate.Every(time.Second), 100))

	options := []httptransport.ClientOption{
		httptransport.ClientBefore(opentracing.ContextToHTTP(otTracer, logger)),
	}

	wrap := func(name string, e endpoint.Endpoint) endpoint.Endpoint {
		e = opentracing.TraceClient(otTracer, name)(e)
		e = limiter(e)
		e = circuitbreaker.Gobreaker(gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    name,
			Timeout: 30 * time.Second,
		}))(e)
		return e
	}

	var getStatusEndpoint endpoint.Endpoint
	{
		getStatusEndpoint = httptransport.NewClient(
			http.MethodGet,
			copyURL(u, statusPath),
			encodeEmptyRequest,
			decodeGetStatusResponse,
			options...,
		).Endpoint()
		getStatusEndpoint = wrap("GetStatus", getStatusEndpoint)
	}
	var uploadBundleEndpoint endpoint.Endpoint
	{
		uploadBundleEndpoint = httptransport.NewClient(
			http.MethodPost,
			copyURL(u, uploadPath),
			encodeUploadBundleRequest,
			decodeCheckedTextResponse,
			options...,
		).Endpoint()
		uploadBundleEndpoint = wrap("UploadBundle", uploadBundleEndpoint)
	}
	var getBundleInfoEndpoint endpoint.Endpoint
	{
		getBundleInfoEndpoint = httptransport.NewClient(
			http.MethodGet,
			copyURL(u, bundleInfoPath),
			encodeEmptyRequest,
			decodeGetBundleInfoResponse,
			options...,
		).Endpoint()
		getBundleInfoEndpoint = wrap("GetBundleInfo", getBundleInfoEndpoint)
	}
	var installBundleEndpoint endpoint.Endpoint
	{
		// The body must outlive the endpoint call; the stream closes it.
		installBundleEndpoint = httptransport.NewClient(
			http.MethodGet,
			copyURL(u, installPath),
			encodeEmptyRequest,
			decodeInstallBundleResponse,
			append(options, httptransport.BufferedStream(true))...,
		).Endpoint()
		installBundleEndpoint = wrap("InstallBundle", installBundleEndpoint)
	}
	var rebootEndpoint endpoint.Endpoint
	{
		rebootEndpoint = httptransport.NewClient(
			http.MethodPost,
			copyURL(u, rebootPath),
			encodeEmptyRequest,
			decodeUncheckedTextResponse,
			options...,
		).Endpoint()
		rebootEndpoint = wrap("Reboot", rebootEndpoint)
	}

	return Endpoints{
		GetStatusEndpoint:     getStatusEndpoint,
		UploadBundleEndpoint:  uploadBundleEndpoint,
		GetBundleInfoEndpoint: getBundleInfoEndpoint,
		InstallBundleEndpoint: installBundleEndpoint,
		RebootEndpoint:        rebootEndpoint,
	}, nil
}

// copyURL returns base with p appended to its path, keeping any deployment
// prefix.
func copyURL(base *url.URL, p string) *url.URL {
	next := *base
	next.Path = path.Join("/", base.Path, p)
	next.RawPath = ""
	return &next
}

// encodeEmptyRequest leaves the request as built: method and URL are fixed
// per endpoint and none of these calls carries a body.
func encodeEmptyRequest(_ context.Context, _ *http.Request, _ interface{}) error {
	return nil
}

// encodeUploadBundleRequest streams the bundle as a multipart form. The form
// is produced by a goroutine writing into a pipe, so large bundles are never
// held in memory; the goroutine ends once the transport closes the body.
func encodeUploadBundleRequest(_ context.Context, req *http.Request, request interface{}) error {
	r := request.(uploadBundleRequest)
	if r.Bundle.Content == nil {
		return ErrBundleContent
	}
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile(uploadField, r.Bundle.Name)
		if err == nil {
			_, err = io.Copy(part, r.Bundle.Content)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Body = pr
	return nil
}

func decodeGetStatusResponse(_ context.Context, r *http.Response) (interface{}, error) {
	failed, err := checkStatus(r)
	if err != nil {
		return nil, err
	}
	if failed != nil {
		return getStatusResponse{Err: failed}, nil
	}
	var resp getStatusResponse
	err = json.NewDecoder(r.Body).Decode(&resp.Status)
	return resp, err
}

func decodeGetBundleInfoResponse(_ context.Context, r *http.Response) (interface{}, error) {
	failed, err := checkStatus(r)
	if err != nil {
		return nil, err
	}
	if failed != nil {
		return getBundleInfoResponse{Err: failed}, nil
	}
	var resp getBundleInfoResponse
	err = json.NewDecoder(r.Body).Decode(&resp.Info)
	return resp, err
}

func decodeCheckedTextResponse(_ context.Context, r *http.Response) (interface{}, error) {
	failed, err := checkStatus(r)
	if err != nil {
		return nil, err
	}
	if failed != nil {
		return textResponse{Err: failed}, nil
	}
	return decodeText(r)
}

// decodeUncheckedTextResponse returns the body whatever the status code. A
// reboot may tear down the connection or answer with an error while the
// device is already going down.
// TODO: report non-2xx reboot replies once the server distinguishes a refused
// reboot from one that is already in progress.
func decodeUncheckedTextResponse(_ context.Context, r *http.Response) (interface{}, error) {
	return decodeText(r)
}

// decodeInstallBundleResponse hands the open body to an InstallStream. The
// status code is not inspected: the server reports install failures inside
// the stream as "[ERROR]" lines. Only a reply that cannot carry a body at all
// fails; an empty 200 gives a stream that ends straight away.
func decodeInstallBundleResponse(_ context.Context, r *http.Response) (interface{}, error) {
	if r.Body == nil {
		return nil, ErrStreamUnavailable
	}
	if r.Body == http.NoBody || !bodyAllowedForStatus(r.StatusCode) {
		r.Body.Close()
		return nil, ErrStreamUnavailable
	}
	return installBundleResponse{Stream: NewInstallStream(r.Body)}, nil
}

func decodeText(r *http.Response) (interface{}, error) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return textResponse{Text: string(b)}, nil
}

// bodyAllowedForStatus reports whether a response with the given status may
// have a body, mirroring the null body statuses of net/http.
func bodyAllowedForStatus(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// checkStatus turns a non-2xx response into a ServiceError carrying the body
// text as its message. err is set only when the body could not be read.
func checkStatus(r *http.Response) (failed *ServiceError, err error) {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return nil, nil
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return &ServiceError{StatusCode: r.StatusCode, Body: string(b)}, nil
}
