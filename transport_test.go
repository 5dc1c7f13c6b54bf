package raucwebsvc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	stdopentracing "github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusJSON = `{
  "compatible": "acme-board",
  "variant": "eval",
  "booted": "A",
  "boot_primary": "rootfs.0",
  "slots": [
    {"rootfs.0": {"class": "rootfs", "device": "/dev/mmcblk0p2", "type": "ext4", "bootname": "A", "state": "booted", "boot_status": "good", "mountpoint": "/"}},
    {"rootfs.1": {"class": "rootfs", "device": "/dev/mmcblk0p3", "type": "ext4", "bootname": "B", "state": "inactive", "boot_status": "good"}}
  ],
  "artifact-repositories": []
}`

const bundleInfoJSON = `{
  "compatible": "acme-board",
  "version": "2024.06.1",
  "description": "acme image",
  "build": "20240601120000",
  "format": "verity",
  "hooks": [],
  "hash": "4a1c2f",
  "images": [
    {"rootfs": {"filename": "rootfs.ext4", "size": 104857600, "checksum": "e3b0c442"}}
  ]
}`

func newTestClient(t *testing.T, h http.HandlerFunc) Service {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	svc, err := NewHTTPClient(srv.URL, stdopentracing.NoopTracer{}, log.NewNopLogger())
	require.NoError(t, err)
	return svc
}

func TestGetStatus(t *testing.T) {
	var method, path string
	svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(statusJSON))
	})

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, method)
	assert.Equal(t, "/api/status", path)

	var want Status
	require.NoError(t, json.Unmarshal([]byte(statusJSON), &want))
	assert.Equal(t, want, status)
	assert.Equal(t, "acme-board", status.Compatible)
	require.Len(t, status.Slots, 2)
	assert.Equal(t, "/", status.Slots[0]["rootfs.0"].Mountpoint)
	assert.Empty(t, status.Slots[1]["rootfs.1"].Mountpoint)
}

func TestGetStatusTwiceIsStable(t *testing.T) {
	calls := 0
	svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(statusJSON))
	})

	first, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	second, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, calls, "every call goes to the server")
}

func TestServiceErrorCarriesBody(t *testing.T) {
	const body = "rauc command failed: D-Bus error"

	failing := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(body))
	}

	tests := []struct {
		name string
		call func(Service) error
	}{
		{"status", func(s Service) error {
			_, err := s.GetStatus(context.Background())
			return err
		}},
		{"bundle info", func(s Service) error {
			_, err := s.GetBundleInfo(context.Background())
			return err
		}},
		{"upload", func(s Service) error {
			_, err := s.UploadBundle(context.Background(), Bundle{Name: "update.raucb", Content: strings.NewReader("x")})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(newTestClient(t, failing))
			require.Error(t, err)
			assert.Equal(t, body, err.Error())

			var se *ServiceError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
		})
	}
}

func TestGetBundleInfo(t *testing.T) {
	var path string
	svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(bundleInfoJSON))
	})

	info, err := svc.GetBundleInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/api/bundle-info", path)

	var want BundleInfo
	require.NoError(t, json.Unmarshal([]byte(bundleInfoJSON), &want))
	assert.Equal(t, want, info)
	require.Len(t, info.Images, 1)
	assert.Equal(t, int64(104857600), info.Images[0]["rootfs"].Size)
}

func TestUploadBundle(t *testing.T) {
	var (
		method, path, filename, content string
		formErr                         error
	)
	svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		f, hdr, err := r.FormFile("file")
		if err != nil {
			formErr = err
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		filename, content = hdr.Filename, string(b)
		_, _ = w.Write([]byte("abc123"))
	})

	result, err := svc.UploadBundle(context.Background(), Bundle{
		Name:    "update.raucb",
		Content: strings.NewReader("bundle bytes"),
	})
	require.NoError(t, formErr)
	require.NoError(t, err)
	assert.Equal(t, "abc123", result)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/api/upload", path)
	assert.Equal(t, "update.raucb", filename)
	assert.Equal(t, "bundle bytes", content)
}

func TestInstallBundle(t *testing.T) {
	svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/install", r.URL.Path)
		for _, line := range []string{"[OUT] installing\n", "[OUT] 50% Copying image\n", "\n[DONE] Installation completed successfully\n"} {
			_, _ = w.Write([]byte(line))
			w.(http.Flusher).Flush()
		}
	})

	stream, err := svc.InstallBundle(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	var got strings.Builder
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got.WriteString(chunk)
	}
	assert.Equal(t, "[OUT] installing\n[OUT] 50% Copying image\n\n[DONE] Installation completed successfully\n", got.String())

	_, err = stream.Next()
	assert.Equal(t, io.EOF, err, "stream is not restartable")
}

func TestInstallBundleNoBody(t *testing.T) {
	svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	stream, err := svc.InstallBundle(context.Background())
	assert.Nil(t, stream)
	assert.ErrorIs(t, err, ErrStreamUnavailable)
}

func TestInstallBundleIgnoresStatus(t *testing.T) {
	svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("[ERROR] Failed to start installation\n"))
	})

	stream, err := svc.InstallBundle(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	chunk, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "[ERROR] Failed to start installation\n", chunk)
}

func TestRebootReturnsBodyRegardlessOfStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"ok", http.StatusOK, "Reboot initiated"},
		{"server error", http.StatusInternalServerError, "Failed to execute reboot command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var method, path string
			svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				method, path = r.Method, r.URL.Path
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			result, err := svc.Reboot(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.body, result)
			assert.Equal(t, http.MethodPost, method)
			assert.Equal(t, "/api/reboot", path)
		})
	}
}

func TestNewHTTPClientPathPrefix(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte(statusJSON))
	}))
	defer srv.Close()

	svc, err := NewHTTPClient(srv.URL+"/updater/", stdopentracing.NoopTracer{}, log.NewNopLogger())
	require.NoError(t, err)
	_, err = svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/updater/api/status", path)
}

func TestCopyURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{"no path", "http://device:8000", "http://device:8000/api/status"},
		{"root", "http://device:8000/", "http://device:8000/api/status"},
		{"prefix", "http://device/updater", "http://device/updater/api/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, copyURL(u, statusPath).String())
			assert.Equal(t, tt.base, u.String(), "base must not be modified")
		})
	}
}

func TestServiceErrorDoesNotOpenBreaker(t *testing.T) {
	const body = "rauc command failed: D-Bus error"

	calls := map[string]int{}
	svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls[r.URL.Path]++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(body))
	})

	ops := map[string]func() error{
		"/api/status": func() error {
			_, err := svc.GetStatus(context.Background())
			return err
		},
		"/api/bundle-info": func() error {
			_, err := svc.GetBundleInfo(context.Background())
			return err
		},
		"/api/upload": func() error {
			_, err := svc.UploadBundle(context.Background(), Bundle{Name: "update.raucb", Content: strings.NewReader("x")})
			return err
		},
	}

	const attempts = 8
	for path, call := range ops {
		for i := 0; i < attempts; i++ {
			err := call()
			require.Error(t, err, "%s attempt %d", path, i+1)
			assert.Equal(t, body, err.Error(), "%s attempt %d", path, i+1)

			var se *ServiceError
			assert.True(t, errors.As(err, &se), "%s attempt %d", path, i+1)
		}
		assert.Equal(t, attempts, calls[path], "every call reaches the server")
	}
}

func TestInstallBundleEmptyBody(t *testing.T) {
	svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
	})

	stream, err := svc.InstallBundle(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	assert.Equal(t, io.EOF, err)
}

func TestUploadBundleNilContent(t *testing.T) {
	calls := 0
	svc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	_, err := svc.UploadBundle(context.Background(), Bundle{Name: "update.raucb"})
	assert.ErrorIs(t, err, ErrBundleContent)
	assert.Zero(t, calls)
}
