package raucwebsvc

import (
	"context"

	"github.com/go-kit/kit/endpoint"
)

// Endpoints collects the client endpoints of the update service. It
// implements Service so it can be handed to callers and wrapped in
// middlewares like any other implementation.
type Endpoints struct {
	GetStatusEndpoint     endpoint.Endpoint
	UploadBundleEndpoint  endpoint.Endpoint
	GetBundleInfoEndpoint endpoint.Endpoint
	InstallBundleEndpoint endpoint.Endpoint
	RebootEndpoint        endpoint.Endpoint
}

func (e Endpoints) GetStatus(ctx context.Context) (Status, error) {
	resp, err := e.GetStatusEndpoint(ctx, getStatusRequest{})
	if err != nil {
		return Status{}, err
	}
	response := resp.(getStatusResponse)
	return response.Status, response.Err
}

func (e Endpoints) UploadBundle(ctx context.Context, b Bundle) (string, error) {
	resp, err := e.UploadBundleEndpoint(ctx, uploadBundleRequest{Bundle: b})
	if err != nil {
		return "", err
	}
	response := resp.(textResponse)
	return response.Text, response.Err
}

func (e Endpoints) GetBundleInfo(ctx context.Context) (BundleInfo, error) {
	resp, err := e.GetBundleInfoEndpoint(ctx, getBundleInfoRequest{})
	if err != nil {
		return BundleInfo{}, err
	}
	response := resp.(getBundleInfoResponse)
	return response.Info, response.Err
}

func (e Endpoints) InstallBundle(ctx context.Context) (ChunkStream, error) {
	resp, err := e.InstallBundleEndpoint(ctx, installBundleRequest{})
	if err != nil {
		return nil, err
	}
	return resp.(installBundleResponse).Stream, nil
}

func (e Endpoints) Reboot(ctx context.Context) (string, error) {
	resp, err := e.RebootEndpoint(ctx, rebootRequest{})
	if err != nil {
		return "", err
	}
	response := resp.(textResponse)
	return response.Text, response.Err
}

type getStatusRequest struct{}

// Responses carry a non-2xx reply in Err rather than failing the endpoint,
// so the circuit breaker only counts transport failures.

type getStatusResponse struct {
	Status Status
	Err    error
}

func (r getStatusResponse) Failed() error { return r.Err }

type uploadBundleRequest struct {
	Bundle Bundle
}

type getBundleInfoRequest struct{}

type getBundleInfoResponse struct {
	Info BundleInfo
	Err  error
}

func (r getBundleInfoResponse) Failed() error { return r.Err }

type installBundleRequest struct{}

type installBundleResponse struct {
	Stream *InstallStream
}

type rebootRequest struct{}

// textResponse is a plain text body, used by upload and reboot.
type textResponse struct {
	Text string
	Err  error
}

func (r textResponse) Failed() error { return r.Err }

var (
	_ endpoint.Failer = getStatusResponse{}
	_ endpoint.Failer = getBundleInfoResponse{}
	_ endpoint.Failer = textResponse{}
)
