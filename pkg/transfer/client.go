package transfer

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hollowaylabs/atfetch/pkg/config"
)

const (
	connectTimeout      = 30 * time.Second
	tlsHandshakeTimeout = 15 * time.Second

	// totalTimeoutFactor scales the inactivity bound into a hard cap on
	// the whole request, a safety net behind the watchdog
	totalTimeoutFactor = 10
)

// Client owns the process-wide HTTP transport state. Created once at
// executor start and torn down once at shutdown.
type Client struct {
	transport *http.Transport
	cfg       config.TransferConfig
}

// NewClient builds the shared transport
func NewClient(cfg config.TransferConfig) *Client {
	return &Client{
		cfg: cfg,
		transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: tlsHandshakeTimeout,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConns:        2,
		},
	}
}

// HTTPClient returns a client over the shared transport with the redirect
// cap applied
func (c *Client) HTTPClient() *http.Client {
	maxRedirects := c.cfg.MaxRedirects
	return &http.Client{
		Transport: c.transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// Close releases pooled connections. Idempotent.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}
