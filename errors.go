package raucwebsvc

import "errors"

// ErrStreamUnavailable is returned by InstallBundle when the response carries
// no body to read progress from.
var ErrStreamUnavailable = errors.New("install: no response body")

// ErrBundleContent is returned by UploadBundle for a Bundle without Content.
var ErrBundleContent = errors.New("upload: bundle has no content")

// ServiceError is a non-2xx reply. The server puts a human readable message
// in the body, so Error returns it unchanged.
type ServiceError struct {
	StatusCode int
	Body       string
}

func (e *ServiceError) Error() string { return e.Body }
