package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/protocol"
	"github.com/jdziat/simple-remote-jobs/pkg/security"
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 64 << 10

func (c *Client) endpointURL(path string, query url.Values) string {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) newRequest(ctx context.Context, method, u string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("jobs: encode request: %w", err)
		}
		if err := security.ValidatePayloadSize(b); err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, &core.ConnectionError{Op: method, URL: u, Err: err}
	}
	for k, vs := range c.config.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and returns the response if its status is 2xx. Any other
// status is read into an *HTTPError.
func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.ConnectionError{Op: req.Method, URL: req.URL.String(), Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, readHTTPError(resp)
}

func readHTTPError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))

	var er protocol.ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Text() != "" {
		msg = er.Text()
	}
	httpErr := &core.HTTPError{
		StatusCode: resp.StatusCode,
		Message:    security.SanitizeErrorMessage(msg),
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return core.RetryAfter(time.Duration(secs)*time.Second, httpErr)
		}
	}
	return httpErr
}

// doJSON sends body and decodes a 2xx JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, u string, body, out any) error {
	req, err := c.newRequest(ctx, method, u, body)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, security.MaxPayloadSize)).Decode(out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &core.ProtocolError{Msg: fmt.Sprintf("decode %s response", u), Err: err}
	}
	return nil
}

// submit makes one submission attempt. Errors that must not be retried are
// wrapped in core.NoRetry.
func (c *Client) submit(ctx context.Context, path string, req *protocol.SubmitRequest) (*protocol.SubmitResponse, error) {
	var resp protocol.SubmitResponse
	err := c.doJSON(ctx, http.MethodPost, c.endpointURL(path, nil), req, &resp)
	if err != nil {
		if !IsRetryableError(err) {
			return nil, core.NoRetry(err)
		}
		return nil, err
	}
	return &resp, nil
}

// openStream opens the event stream for eventID.
func (c *Client) openStream(ctx context.Context, session, eventID string) (io.ReadCloser, error) {
	u := c.endpointURL(protocol.PathQueueData, url.Values{
		"session_hash": {session},
		"event_id":     {eventID},
	})
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// reset asks the server to drop eventID.
func (c *Client) reset(ctx context.Context, session, eventID string) error {
	return c.doJSON(ctx, http.MethodPost, c.endpointURL(protocol.PathReset, nil),
		&protocol.ResetRequest{EventID: eventID, SessionHash: session}, nil)
}

// fetchConfig reads the server's endpoint table.
func (c *Client) fetchConfig(ctx context.Context) (*protocol.ConfigResponse, error) {
	var cfg protocol.ConfigResponse
	if err := c.doJSON(ctx, http.MethodGet, c.endpointURL(protocol.PathConfig, nil), nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isNotFound(err error) bool {
	var httpErr *core.HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}
