// Package httpclient wraps resty for outbound HTTP to the panel and
// other third-party services.
package httpclient

import (
	"crypto/tls"
	"time"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	r *resty.Client
}

// New creates an HTTP client with a default timeout. Retries are left to
// callers: panel writes must not be replayed blindly.
func New() *Client {
	return &Client{r: resty.New().SetTimeout(30 * time.Second)}
}

// WithTimeout sets a custom timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.r.SetTimeout(d)
	return c
}

// WithHeader sets a header sent on every request.
func (c *Client) WithHeader(key, value string) *Client {
	c.r.SetHeader(key, value)
	return c
}

// WithBaseURL sets a base URL prepended to request paths.
func (c *Client) WithBaseURL(url string) *Client {
	c.r.SetBaseURL(url)
	return c
}

// WithInsecureSkipVerify disables TLS verification. Subscription
// endpoints commonly serve self-signed certificates.
func (c *Client) WithInsecureSkipVerify() *Client {
	c.r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	return c
}

// Request returns a new resty Request for chaining.
func (c *Client) Request() *resty.Request {
	return c.r.R()
}
