package sampler

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/quic-go/quic-go/http3"

	"github.com/netforge/protoperf/internal/logging"
	"github.com/netforge/protoperf/pkg/types"
)

// http3Sampler measures HTTP/3 over QUIC.
type http3Sampler struct {
	name      string
	endpoint  string
	timeout   time.Duration
	client    *http.Client
	transport *http3.Transport
	logger    *logging.Logger
}

func newHTTP3Sampler(name, endpoint string, timeout time.Duration) *http3Sampler {
	transport := &http3.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
		},
	}
	return &http3Sampler{
		name:      name,
		endpoint:  endpoint,
		timeout:   timeout,
		client:    &http.Client{Transport: transport},
		transport: transport,
		logger:    logging.NewLogger("sampler-" + name),
	}
}

func (s *http3Sampler) Name() string { return s.name }

func (s *http3Sampler) Sample(ctx context.Context) types.LatencySample {
	return timedGet(ctx, s.client, s.endpoint, s.timeout, s.logger)
}

func (s *http3Sampler) Close() {
	if err := s.transport.Close(); err != nil {
		s.logger.Debug("close http3 transport", logging.F("error", err))
	}
}
