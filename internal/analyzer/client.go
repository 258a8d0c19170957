package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Client is an HTTP implementation of the Analyzer contract.
//
// The underlying http.Client carries no timeout on purpose: per-call budgets
// are owned by the caller (circuit breaker request timeout, learn timeout),
// and a second layer of timeouts here would make diagnostics ambiguous.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an analyzer client for the given endpoint
func NewClient(endpoint string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimSuffix(endpoint, "/"),
		logger:     logger,
	}
}

type analyzeFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type analyzePathRequest struct {
	Path string `json:"path"`
}

type conceptsResponse struct {
	Concepts []Concept `json:"concepts"`
}

type patternsResponse struct {
	Patterns []Pattern `json:"patterns"`
}

// AnalyzeFile extracts concepts from a single file's content
func (c *Client) AnalyzeFile(ctx context.Context, path, content string) ([]Concept, error) {
	var resp conceptsResponse
	err := c.post(ctx, "/analyze/file", analyzeFileRequest{Path: path, Content: content}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Concepts, nil
}

// AnalyzeCodebase analyzes a whole project tree
func (c *Client) AnalyzeCodebase(ctx context.Context, path string) (*CodebaseAnalysis, error) {
	var resp CodebaseAnalysis
	if err := c.post(ctx, "/analyze/codebase", analyzePathRequest{Path: path}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LearnFromCodebase performs deep concept extraction over a project
func (c *Client) LearnFromCodebase(ctx context.Context, path string) ([]Concept, error) {
	var resp conceptsResponse
	if err := c.post(ctx, "/learn", analyzePathRequest{Path: path}, &resp); err != nil {
		return nil, err
	}
	return resp.Concepts, nil
}

// ExtractPatterns mines recurring coding patterns from a project
func (c *Client) ExtractPatterns(ctx context.Context, path string) ([]Pattern, error) {
	var resp patternsResponse
	if err := c.post(ctx, "/patterns", analyzePathRequest{Path: path}, &resp); err != nil {
		return nil, err
	}
	return resp.Patterns, nil
}

// post sends a JSON request to the analyzer and decodes the JSON response
func (c *Client) post(ctx context.Context, route string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal analyzer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+route, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build analyzer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("calling analyzer", "route", route)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort cleanup

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("analyzer returned %d on %s: %s", resp.StatusCode, route, strings.TrimSpace(string(data)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode analyzer response: %w", err)
	}
	return nil
}
