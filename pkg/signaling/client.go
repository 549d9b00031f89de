// Package signaling implements the WHIP/WHEP HTTP signalling exchange:
// POST an SDP offer, follow the resource-URL redirect chain, and later
// tear the session down with a DELETE.
package signaling

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/ethan/webrtc-whip-whep-core/pkg/logging"
	"github.com/ethan/webrtc-whip-whep-core/pkg/netsig"
)

const requestTimeout = 8 * time.Second

// ModuleVersion is stamped into the User-Agent header.
const ModuleVersion = "1.0.0"

// Client performs the WHIP/WHEP offer/answer and teardown exchanges.
type Client struct {
	httpClient *http.Client
	logger     *logging.Logger
}

func New(logger *logging.Logger) *Client {
	locations := &locationCollectingTransport{base: http.DefaultTransport}
	c := &http.Client{
		Timeout:   requestTimeout,
		Transport: locations,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Reproduce CURLOPT_UNRESTRICTED_AUTH: keep Authorization across redirects.
			if len(via) > 0 {
				if auth := via[0].Header.Get("Authorization"); auth != "" {
					req.Header.Set("Authorization", auth)
				}
			}
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return &Client{httpClient: c, logger: logger}
}

// locationCollectingTransport records every Location header seen across
// a redirect chain, since net/http discards intermediate responses.
type locationCollectingTransport struct {
	base      http.RoundTripper
	locations []string
}

func (t *locationCollectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		t.locations = append(t.locations, loc)
	}
	return resp, nil
}

func userAgent() string {
	return fmt.Sprintf("Mozilla/5.0 (webrtc-whip-whep-core/%s; %s)", ModuleVersion, runtime.GOOS)
}

// SendOffer POSTs localSDP to endpointURL and returns the resolved
// resource URL plus the SDP answer, following webrtc-utils.h's
// send_offer semantics exactly.
func (c *Client) SendOffer(ctx context.Context, bearerToken, endpointURL, localSDP string) (resourceURL, answerSDP string, err error) {
	transport := &locationCollectingTransport{base: http.DefaultTransport}
	client := *c.httpClient
	client.Transport = transport

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, strings.NewReader(localSDP))
	if err != nil {
		return "", "", netsig.New(netsig.ConnectFailed, err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("User-Agent", userAgent())
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", "", netsig.New(netsig.ConnectFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", "", netsig.New(netsig.InvalidHTTPStatusCode, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", netsig.New(netsig.NoHTTPData, err)
	}
	if len(body) == 0 {
		return "", "", netsig.New(netsig.NoHTTPData, nil)
	}

	if len(transport.locations) == 0 {
		if loc := resp.Header.Get("Location"); loc != "" {
			transport.locations = append(transport.locations, loc)
		}
	}
	if len(transport.locations) == 0 {
		return "", "", netsig.New(netsig.NoLocationHeader, nil)
	}

	lastLocation := transport.locations[len(transport.locations)-1]
	resolved, err := resolveResourceURL(lastLocation, resp.Request.URL)
	if err != nil {
		return "", "", netsig.New(netsig.InvalidLocationHeader, err)
	}

	sdp := string(body)
	if idx := strings.Index(sdp, "v=0"); idx >= 0 {
		sdp = sdp[idx:]
	}

	c.logger.Info("whip/whep offer accepted", map[string]any{"resource_url": resolved})
	return resolved, sdp, nil
}

// resolveResourceURL resolves a possibly-relative Location header
// against the effective (final, post-redirect) request URL, stripping
// any query string and default port the way curl_url does with
// CURLU_NO_DEFAULT_PORT.
func resolveResourceURL(location string, effective *url.URL) (string, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		u, err := url.Parse(location)
		if err != nil {
			return "", netsig.New(netsig.FailedToBuildResourceURL, err)
		}
		return u.String(), nil
	}
	if effective == nil {
		return "", netsig.New(netsig.FailedToBuildResourceURL, fmt.Errorf("no effective URL to resolve against"))
	}
	rel, err := url.Parse(location)
	if err != nil {
		return "", netsig.New(netsig.FailedToBuildResourceURL, err)
	}
	resolved := effective.ResolveReference(rel)
	resolved.RawQuery = ""
	stripDefaultPort(resolved)
	return resolved.String(), nil
}

func stripDefaultPort(u *url.URL) {
	host := u.Hostname()
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	}
}

// SendDelete issues the WHIP/WHEP teardown DELETE against resourceURL.
func (c *Client) SendDelete(ctx context.Context, bearerToken, resourceURL string) error {
	if resourceURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resourceURL, nil)
	if err != nil {
		return netsig.New(netsig.DeleteFailed, err)
	}
	req.Header.Set("User-Agent", userAgent())
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return netsig.New(netsig.DeleteFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netsig.New(netsig.InvalidHTTPStatusCode, fmt.Errorf("status %d", resp.StatusCode))
	}
	c.logger.Info("session deleted", map[string]any{"resource_url": resourceURL})
	return nil
}
