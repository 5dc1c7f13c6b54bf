package raucwebsvc

import (
	"context"
	"io"
	"time"

	"github.com/go-kit/kit/log"
)

// Middleware describes a service (as opposed to endpoint) middleware.
type Middleware func(Service) Service

func LoggingMiddleware(logger log.Logger) Middleware {
	return func(next Service) Service {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Service
	logger log.Logger
}

func (mw loggingMiddleware) GetStatus(ctx context.Context) (status Status, err error) {
	defer func(begin time.Time) {
		mw.logger.Log("method", "GetStatus", "compatible", status.Compatible, "booted", status.Booted, "took", time.Since(begin), "err", err)
	}(time.Now())
	return mw.next.GetStatus(ctx)
}

func (mw loggingMiddleware) UploadBundle(ctx context.Context, b Bundle) (result string, err error) {
	defer func(begin time.Time) {
		mw.logger.Log("method", "UploadBundle", "bundle", b.Name, "took", time.Since(begin), "err", err)
	}(time.Now())
	return mw.next.UploadBundle(ctx, b)
}

func (mw loggingMiddleware) GetBundleInfo(ctx context.Context) (info BundleInfo, err error) {
	defer func(begin time.Time) {
		mw.logger.Log("method", "GetBundleInfo", "version", info.Version, "took", time.Since(begin), "err", err)
	}(time.Now())
	return mw.next.GetBundleInfo(ctx)
}

// InstallBundle logs when the stream is opened and again when it is closed,
// with the number of chunks read in between.
func (mw loggingMiddleware) InstallBundle(ctx context.Context) (stream ChunkStream, err error) {
	begin := time.Now()
	stream, err = mw.next.InstallBundle(ctx)
	mw.logger.Log("method", "InstallBundle", "took", time.Since(begin), "err", err)
	if err != nil {
		return nil, err
	}
	return &loggingStream{ChunkStream: stream, logger: mw.logger, begin: begin}, nil
}

func (mw loggingMiddleware) Reboot(ctx context.Context) (result string, err error) {
	defer func(begin time.Time) {
		mw.logger.Log("method", "Reboot", "result", result, "took", time.Since(begin), "err", err)
	}(time.Now())
	return mw.next.Reboot(ctx)
}

type loggingStream struct {
	ChunkStream
	logger log.Logger
	begin  time.Time
	chunks int
	err    error
}

func (s *loggingStream) Next() (string, error) {
	chunk, err := s.ChunkStream.Next()
	if err == nil {
		s.chunks++
	} else if err != io.EOF {
		s.err = err
	}
	return chunk, err
}

func (s *loggingStream) Close() error {
	err := s.ChunkStream.Close()
	s.logger.Log("method", "InstallBundle", "chunks", s.chunks, "took", time.Since(s.begin), "err", s.err)
	return err
}

// PublishingMiddleware forwards every install progress line to pub. Publish
// failures are logged and never interrupt the install stream.
func PublishingMiddleware(pub Publisher, logger log.Logger) Middleware {
	return func(next Service) Service {
		return &publishingMiddleware{
			Service: next,
			pub:     pub,
			logger:  logger,
		}
	}
}

type publishingMiddleware struct {
	Service
	pub    Publisher
	logger log.Logger
}

func (mw publishingMiddleware) InstallBundle(ctx context.Context) (ChunkStream, error) {
	stream, err := mw.Service.InstallBundle(ctx)
	if err != nil {
		return nil, err
	}
	return &publishingStream{ChunkStream: stream, ctx: ctx, pub: mw.pub, logger: mw.logger}, nil
}

type publishingStream struct {
	ChunkStream
	ctx     context.Context
	pub     Publisher
	logger  log.Logger
	scanner ProgressScanner
	flushed bool
}

func (s *publishingStream) Next() (string, error) {
	chunk, err := s.ChunkStream.Next()
	if err == nil {
		s.publish(s.scanner.Feed(chunk))
	} else if err == io.EOF && !s.flushed {
		s.flushed = true
		s.publish(s.scanner.Flush())
	}
	return chunk, err
}

func (s *publishingStream) publish(events []ProgressEvent) {
	for _, ev := range events {
		if err := s.pub.Publish(s.ctx, ev); err != nil {
			s.logger.Log("method", "Publish", "kind", ev.Kind, "err", err)
		}
	}
}
