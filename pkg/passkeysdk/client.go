package passkeysdk

import (
	"net/http"
	"strings"
	"time"

	"github.com/medhcloud/passkey/pkg/httpx"
)

// Client is a client for the Medh passkey API. It provides the raw endpoint
// operations; Orchestrator and Inventory build the ceremony and inventory
// behavior on top of it.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// AuthToken supplies the bearer token for authenticated endpoints
	// (registration and inventory management). Left nil, those calls go
	// out unauthenticated and the server will reject them.
	AuthToken func() string
}

// NewClient creates a passkey API client with logging and client-side rate
// limiting on the wire.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &httpx.LoggingTransport{
				// Challenge endpoints are strictly rate limited server
				// side; pace ourselves below that.
				Base: httpx.NewRateLimitedTransport(nil, 30, time.Minute),
			},
		},
	}
}

// url builds a complete URL by appending the path to the base URL.
func (c *Client) url(path string) string {
	return c.BaseURL + path
}

func (c *Client) bearer() string {
	if c.AuthToken == nil {
		return ""
	}
	return c.AuthToken()
}
