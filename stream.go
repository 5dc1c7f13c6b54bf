package raucwebsvc

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const installReadSize = 32 * 1024

// InstallStream decodes a streamed install response. Each call to Next
// performs one read on the body and returns the text decoded so far; a rune
// split across reads is held back until its remaining bytes arrive.
type InstallStream struct {
	body    io.ReadCloser
	dec     transform.Transformer
	buf     []byte
	pending []byte
	err     error
}

// NewInstallStream wraps body. The stream owns body from here on.
func NewInstallStream(body io.ReadCloser) *InstallStream {
	return &InstallStream{
		body: body,
		dec:  unicode.UTF8.NewDecoder(),
		buf:  make([]byte, installReadSize),
	}
}

func (s *InstallStream) Next() (string, error) {
	for s.err == nil {
		n, err := s.body.Read(s.buf)
		if err != nil {
			s.err = err
		}
		if n > 0 {
			return s.decode(s.buf[:n]), nil
		}
	}
	return "", s.err
}

func (s *InstallStream) decode(p []byte) string {
	src := append(s.pending, p...)
	dst := make([]byte, 3*len(src))
	nDst, nSrc, _ := s.dec.Transform(dst, src, false)
	// Whatever Transform left unconsumed is an incomplete trailing rune.
	s.pending = append([]byte(nil), src[nSrc:]...)
	return string(dst[:nDst])
}

func (s *InstallStream) Close() error {
	if s.err == nil {
		s.err = io.EOF
	}
	return s.body.Close()
}
