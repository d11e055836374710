// Package scenario binds the human-readable conformance scenarios to the
// request client, the streaming client and the validators. Every scenario
// runs against a fresh Context and stops at its first failing step.
package scenario

import (
	"errors"
	"fmt"
	"time"

	"marketconformance/config"
	"marketconformance/internal/fixtures"
	"marketconformance/internal/stream"
	"marketconformance/pkg/marketdata"

	"go.uber.org/zap"
)

var errNoResponse = errors.New("no response recorded; a request step must run first")

// Context is the state shared by the steps of one scenario.
type Context struct {
	ID     string
	Config *config.Config
	Logger *zap.Logger

	REST *marketdata.RESTClient
	WS   *marketdata.WSClient

	// Case is the fixture the scenario was built from, if any.
	Case fixtures.Case

	Response  *marketdata.Response
	Envelope  *marketdata.Envelope
	Elapsed   time.Duration
	RangeFrom int64
	RangeTo   int64

	Instrument    string
	Channel       string
	ConnectErr    error
	SubscribeErr  error
	BookUpdates   []stream.Message
	ErrorMessages []stream.Message
}

// record stores the outcome of a REST call. Transport failures fail the step.
func (c *Context) record(resp *marketdata.Response, err error) error {
	c.Response, c.Envelope, c.Elapsed = nil, nil, 0
	if err != nil {
		return err
	}
	c.Response = resp
	c.Elapsed = resp.Elapsed
	if env, err := resp.Envelope(); err == nil {
		c.Envelope = env
	}
	c.Logger.Debug("response recorded",
		zap.String("url", resp.URL),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", resp.Elapsed))
	return nil
}

// body returns the recorded response body.
func (c *Context) body() ([]byte, error) {
	if c.Response == nil {
		return nil, errNoResponse
	}
	return c.Response.Body, nil
}

func (c *Context) requireOK() ([]byte, error) {
	body, err := c.body()
	if err != nil {
		return nil, err
	}
	if c.Response.StatusCode != 200 {
		return nil, fmt.Errorf("status %d, want 200: %s", c.Response.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
