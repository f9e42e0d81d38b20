package sampler

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/netforge/protoperf/internal/logging"
	"github.com/netforge/protoperf/pkg/types"
)

// httpSampler measures HTTP/1.1 or HTTP/2 over TLS. With http2 disabled the
// transport is pinned to HTTP/1.1 so the two protocols are genuinely
// distinct conditions.
type httpSampler struct {
	name      string
	endpoint  string
	timeout   time.Duration
	client    *http.Client
	transport *http.Transport
	logger    *logging.Logger
}

func newHTTPSampler(name, endpoint string, timeout time.Duration, http2 bool) *httpSampler {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			// Targets in the lab use self-signed certificates.
			InsecureSkipVerify: true,
		},
		ForceAttemptHTTP2:  http2,
		DisableCompression: true,
	}
	if !http2 {
		// A non-nil empty map disables the transport's h2 upgrade path.
		transport.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	}
	return &httpSampler{
		name:      name,
		endpoint:  endpoint,
		timeout:   timeout,
		client:    &http.Client{Transport: transport},
		transport: transport,
		logger:    logging.NewLogger("sampler-" + name),
	}
}

func (s *httpSampler) Name() string { return s.name }

func (s *httpSampler) Sample(ctx context.Context) types.LatencySample {
	return timedGet(ctx, s.client, s.endpoint, s.timeout, s.logger)
}

func (s *httpSampler) Close() {
	s.transport.CloseIdleConnections()
}
