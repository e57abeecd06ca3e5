package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kalambet/jobtrack/internal/application"
	"github.com/kalambet/jobtrack/internal/auth"
	"github.com/kalambet/jobtrack/internal/config"
)

var errNotLoggedIn = errors.New("not logged in: run `jobtrack login --token <token>` first")

type apiClient struct {
	baseURL    string
	token      string
	session    *auth.Session
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Client.Token == "" {
		return nil, errNotLoggedIn
	}

	return &apiClient{
		baseURL:    "http://" + cfg.Server.Addr(),
		token:      cfg.Client.Token,
		session:    auth.NewSession(cfg.Client.Principal),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// requireSession refuses mutations while the CLI has no signed-in principal.
func (c *apiClient) requireSession() (string, error) {
	if c.session == nil {
		return "", errNotLoggedIn
	}
	p, ok := c.session.Current()
	if !ok {
		return "", errNotLoggedIn
	}
	return p, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is jobtrack running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, "GET", path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, "POST", path, body)
}

func (c *apiClient) patch(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, "PATCH", path, body)
}

func (c *apiClient) delete(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, "DELETE", path, nil)
}

// stream opens a long-lived GET without the client timeout.
func (c *apiClient) stream(ctx context.Context, path string) (*http.Response, error) {
	streaming := *c
	streaming.httpClient = &http.Client{Transport: c.httpClient.Transport}
	resp, err := streaming.do(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, readAPIError(resp)
	}
	return resp, nil
}

// apiError is the server's error envelope.
type apiError struct {
	Status  int                      `json:"-"`
	Message string                   `json:"message"`
	Type    string                   `json:"type"`
	Fields  []application.FieldError `json:"-"`
}

func (e *apiError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Field + ": " + f.Message
	}
	return fmt.Sprintf("%s\n  %s", e.Message, strings.Join(msgs, "\n  "))
}

func readAPIError(resp *http.Response) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
	}
	var env struct {
		Error  apiError                 `json:"error"`
		Fields []application.FieldError `json:"fields"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Message == "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	env.Error.Status = resp.StatusCode
	env.Error.Fields = env.Fields
	return &env.Error
}

func decodeJSON(resp *http.Response, v any) error {
	if resp.StatusCode >= 400 {
		return readAPIError(resp)
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}
