package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tonimelisma/authwire/internal/failure"
)

// maxErrorBody caps how much of an error response is kept as the message.
const maxErrorBody = 4 << 10

// Do sends method path with an optional JSON body through the pipeline. The
// operation ID is "METHOD /path"; the query and body are the arguments.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	u, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("client: parsing path %q: %w", path, err)
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client: encoding %s %s body: %w", method, u.Path, err)
		}
	}

	opID := strings.ToUpper(method) + " " + u.Path

	return c.Send(ctx, opID, requestArgs(u.Query(), payload), c.httpIssuer(method, u.RequestURI(), payload))
}

// DoJSON is Do followed by decoding the response body into out.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}

	if out == nil || len(resp.Body) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("client: decoding %s %s response: %w", method, path, err)
	}

	return nil
}

func requestArgs(query url.Values, payload []byte) map[string]any {
	args := map[string]any{}
	if len(query) > 0 {
		args["query"] = query
	}

	if len(payload) > 0 {
		args["body"] = json.RawMessage(payload)
	}

	return args
}

// httpIssuer returns an Issuer for one HTTP request against the base URL.
// The payload is replayed from memory on every attempt.
func (c *Client) httpIssuer(method, requestURI string, payload []byte) Issuer {
	return func(ctx context.Context, call Call, cred Credential) (*Response, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestURI, body)
		if err != nil {
			return nil, fmt.Errorf("client: creating request: %w", err)
		}

		cred.Apply(req)
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", call.RequestID)

		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("client: %s: %w", call.OperationID, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("client: %s: reading response: %w", call.OperationID, err)
		}

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return nil, failure.NewCallError(call.OperationID, resp.StatusCode, requestID(resp.Header), errorMessage(data))
		}

		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
	}
}

func requestID(h http.Header) string {
	if id := h.Get("Request-Id"); id != "" {
		return id
	}

	return h.Get("X-Request-ID")
}

// errorMessage extracts a readable message from an error body. JSON bodies
// of the form {"error": "..."} or {"message": "..."} yield the field value.
func errorMessage(data []byte) string {
	if len(data) > maxErrorBody {
		data = data[:maxErrorBody]
	}

	var env struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	if json.Unmarshal(data, &env) == nil {
		switch {
		case env.Message != "":
			return env.Message
		case env.Error != "":
			return env.Error
		}
	}

	return strings.TrimSpace(string(data))
}
