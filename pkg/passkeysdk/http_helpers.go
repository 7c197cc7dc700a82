package passkeysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// envelope is the uniform response wrapper every Medh API endpoint returns.
// success=false is authoritative regardless of HTTP status code nuances.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// doJSON performs a request against the API, decodes the envelope's data
// field into out (which may be nil when no payload is expected), and returns
// the envelope message. All failures come back as *CeremonyError: transport
// problems as KindNetworkError (or the ceremony's own cancellation/timeout),
// server refusals as KindServerRejected.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) (string, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return "", newError(KindNetworkError, "could not encode the request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return "", newError(KindNetworkError, "could not build the request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", mapTransportErr(err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", mapTransportErr(err)
	}

	var env envelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		// No envelope at all. A 5xx without a body is transient; anything
		// else is the server refusing us in an unexpected shape.
		cause := fmt.Errorf("HTTP %d: undecodable body: %w", resp.StatusCode, err)
		if resp.StatusCode >= http.StatusInternalServerError {
			return "", newError(KindNetworkError, "the server had a temporary problem", cause)
		}
		return "", errServerRejected("", cause)
	}

	if !env.Success {
		return "", errServerRejected(env.Message, fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	if out != nil {
		if len(env.Data) == 0 {
			return "", errServerRejected("", fmt.Errorf("HTTP %d: missing data payload", resp.StatusCode))
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", errServerRejected("", fmt.Errorf("decode data payload: %w", err))
		}
	}

	return env.Message, nil
}
