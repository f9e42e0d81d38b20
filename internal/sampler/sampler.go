// Package sampler issues timed requests against a target endpoint and
// records outcome plus elapsed time, one sample per call.
package sampler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/netforge/protoperf/internal/logging"
	"github.com/netforge/protoperf/pkg/types"
)

// Sampler measures one protocol against one endpoint. Sample never returns
// an error: request failures and timeouts become failed samples, absorbed
// into the counts.
type Sampler interface {
	Name() string
	Sample(ctx context.Context) types.LatencySample
	Close()
}

// New builds a sampler for a protocol name from the plan. Recognized names:
// http1, http2, http3 (aliases h1/h2/h3).
func New(target types.ProtocolTarget, timeout time.Duration) (Sampler, error) {
	switch target.Name {
	case "http1", "h1":
		return newHTTPSampler(target.Name, target.Endpoint, timeout, false), nil
	case "http2", "h2":
		return newHTTPSampler(target.Name, target.Endpoint, timeout, true), nil
	case "http3", "h3":
		return newHTTP3Sampler(target.Name, target.Endpoint, timeout), nil
	default:
		return nil, fmt.Errorf("unknown protocol %q (want http1, http2, or http3)", target.Name)
	}
}

// timedGet performs one GET and fully reads the body so the measured
// latency covers the complete exchange.
func timedGet(ctx context.Context, client *http.Client, url string, timeout time.Duration, logger *logging.Logger) types.LatencySample {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		logger.Debug("build request", logging.F("error", err))
		return types.NewSample(false, time.Since(start))
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("request failed", logging.F("error", err))
		return types.NewSample(false, time.Since(start))
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		logger.Debug("read response", logging.F("error", err))
		return types.NewSample(false, time.Since(start))
	}
	if resp.StatusCode != http.StatusOK {
		logger.Debug("unexpected status", logging.F("status", resp.StatusCode))
		return types.NewSample(false, time.Since(start))
	}
	return types.NewSample(true, time.Since(start))
}
