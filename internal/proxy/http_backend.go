package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HTTPBackend reaches the backend proxy at POST {baseURL}/proxy/{target}/{operation}.
type HTTPBackend struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewHTTPBackend(httpClient *http.Client, baseURL, token string) *HTTPBackend {
	return &HTTPBackend{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

func (b *HTTPBackend) Call(ctx context.Context, target, operation string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/proxy/%s/%s", b.baseURL, url.PathEscape(target), url.PathEscape(operation))
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		httpRequest.Header.Set("Authorization", "Bearer "+b.token)
	}

	response, err := b.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("httpClient.Do: %w", err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("io.ReadAll(response.Body): %w", err)
	}

	switch {
	case response.StatusCode == http.StatusUnauthorized:
		return unauthorized(), nil
	case response.StatusCode >= 200 && response.StatusCode < 300:
		if len(bytes.TrimSpace(responseBody)) == 0 {
			return json.RawMessage(`{"success":true}`), nil
		}
		return json.RawMessage(responseBody), nil
	case response.StatusCode < 500 && json.Valid(responseBody):
		// The proxy reports terminal-side failures as an error object.
		return json.RawMessage(responseBody), nil
	default:
		return nil, fmt.Errorf("backend proxy returned status %d: %s", response.StatusCode, string(responseBody))
	}
}

func unauthorized() json.RawMessage {
	return json.RawMessage(`{"error":{"status_code":401,"message":"Authentication failed. Please check your terminal credentials."}}`)
}
