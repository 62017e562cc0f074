package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPStore implements ObjectStore against an S3-compatible HTTP
// gateway: objects live at <endpoint>/<key>, and a signer endpoint
// mints presigned retrieval URLs. Head probes are rate limited so the
// reconciliation loop cannot hammer the gateway.
type HTTPStore struct {
	endpoint  string
	signerURL string
	client    *http.Client
	limiter   *rate.Limiter
}

// HTTPStoreOptions configures an HTTPStore.
type HTTPStoreOptions struct {
	// Endpoint is the base object URL, e.g. https://store.example/bucket.
	Endpoint string

	// SignerURL is the presign endpoint. Empty disables SignedURL.
	SignerURL string

	// ProbeRatePerSec bounds Head calls per second. Zero means no limit.
	ProbeRatePerSec float64

	// Timeout applies to every request. Zero uses a 30s default.
	Timeout time.Duration
}

// NewHTTPStore creates an HTTP-backed object store.
func NewHTTPStore(opts HTTPStoreOptions) (*HTTPStore, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("endpoint must not be empty")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if opts.ProbeRatePerSec > 0 {
		burst := int(opts.ProbeRatePerSec)
		if burst < 10 {
			burst = 10
		}
		limiter = rate.NewLimiter(rate.Limit(opts.ProbeRatePerSec), burst)
	}

	return &HTTPStore{
		endpoint:  strings.TrimRight(opts.Endpoint, "/"),
		signerURL: strings.TrimRight(opts.SignerURL, "/"),
		client:    &http.Client{Timeout: timeout},
		limiter:   limiter,
	}, nil
}

// Put uploads the object with an HTTP PUT. Gateways treat PUT as an
// overwrite, which matches the idempotent-by-key contract.
func (s *HTTPStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.objectURL(key), r)
	if err != nil {
		return fmt.Errorf("creating put request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload of %s failed with status %d: %s", key, resp.StatusCode, string(body))
	}
	return nil
}

// Head probes object presence. 404 is (false, nil); anything other
// than 200 is an error the caller may retry.
func (s *HTTPStore) Head(ctx context.Context, key string) (bool, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return false, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.objectURL(key), nil)
	if err != nil {
		return false, fmt.Errorf("creating head request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("probing %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("probe of %s failed with status %d", key, resp.StatusCode)
	}
}

// SignedURL asks the signer endpoint for a presigned retrieval URL.
func (s *HTTPStore) SignedURL(key string, ttl time.Duration) (string, error) {
	if s.signerURL == "" {
		return "", fmt.Errorf("no signer endpoint configured")
	}

	q := url.Values{}
	q.Set("key", key)
	q.Set("ttl", strconv.Itoa(int(ttl.Seconds())))

	resp, err := s.client.Get(s.signerURL + "/sign?" + q.Encode())
	if err != nil {
		return "", fmt.Errorf("requesting signed url for %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("signer returned status %d for %s", resp.StatusCode, key)
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding signer response: %w", err)
	}
	if result.URL == "" {
		return "", fmt.Errorf("signer returned no url for %s", key)
	}
	return result.URL, nil
}

func (s *HTTPStore) objectURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.endpoint + "/" + strings.Join(parts, "/")
}
