package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/schemafix/internal/schema"
)

const (
	defaultBaseURL    = "https://api.openai.com/v1"
	defaultModel      = "gpt-4.1"
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 2
	defaultRetryDelay = 700 * time.Millisecond
)

// ErrNoAPIKey is returned by NewClient when no key is configured.
var ErrNoAPIKey = errors.New("assist: API key is required")

// Config holds client configuration. An empty BaseURL, Model or Timeout
// takes the default; DefaultConfig fills in retries as well.
type Config struct {
	APIKey     string
	BaseURL    string        // Default: https://api.openai.com/v1
	Model      string        // Default: gpt-4.1
	Timeout    time.Duration // Per attempt. Default: 10s
	MaxRetries int           // Retries after the first attempt. Default: 2
	RetryDelay time.Duration // Fixed delay between attempts. Default: 700ms
	Logger     *slog.Logger
}

// Client talks to an OpenAI-compatible chat-completions endpoint. It
// implements HeaderResolver, FieldDiscoverer and CellRepairer.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewClient creates a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
	}, nil
}

// DefaultConfig returns the defaults with the given key.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:     apiKey,
		BaseURL:    defaultBaseURL,
		Model:      defaultModel,
		Timeout:    defaultTimeout,
		MaxRetries: defaultMaxRetries,
		RetryDelay: defaultRetryDelay,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// statusError is a non-200 reply.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API error: status %d, body: %s", e.code, e.body)
}

func retryable(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return true
	}
	switch se.code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// complete sends one conversation and returns the first choice's content.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		content, err := c.send(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err

		c.logger.Warn("assistant call failed",
			"attempt", attempt+1,
			"attempts", c.maxRetries+1,
			"error", err,
		)
		if !retryable(err) || attempt == c.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
	return "", lastErr
}

func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil {
			return "", &statusError{code: resp.StatusCode, body: parsed.Error.Message}
		}
		return "", &statusError{code: resp.StatusCode, body: string(raw)}
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return parsed.Choices[0].Message.Content, nil
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func decodeJSON(content string, v any) error {
	s := stripFences(content)
	if s == "" {
		return errors.New("empty response")
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func quoted(items []string) string {
	b, _ := json.Marshal(items)
	return string(b)
}

// ResolveHeaders asks the model to map each header to exactly one field name
// or "". Non-string answers are dropped.
func (c *Client) ResolveHeaders(ctx context.Context, headers, fields []string) (map[string]string, error) {
	if len(headers) == 0 {
		return map[string]string{}, nil
	}

	user := "You are a strict schema mapper. Given a canonical schema keys list and unknown headers, " +
		"map each unknown header to EXACTLY one canonical key or return empty if not possible. " +
		"Respond as a JSON object mapping unknown->canonical_or_empty. No explanations.\n\n" +
		"Canonical keys: " + quoted(fields) + "\n\nUnknown headers: " + quoted(headers)

	content, err := c.complete(ctx, "Output strictly JSON.", user)
	if err != nil {
		return nil, fmt.Errorf("resolve headers: %w", err)
	}

	var obj map[string]any
	if err := decodeJSON(content, &obj); err != nil {
		return nil, fmt.Errorf("resolve headers: %w", err)
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := v.(string); ok {
			out[k] = strings.TrimSpace(s)
		}
	}
	return out, nil
}

// proposal is the wire shape of one discovered field.
type proposal struct {
	Canonical   string   `json:"canonical"`
	Description string   `json:"description"`
	Example     any      `json:"example"`
	Synonyms    []string `json:"synonyms"`
	HeaderRegex string   `json:"header_regex"`
}

// DiscoverFields asks the model to describe unknown headers as new fields.
func (c *Client) DiscoverFields(ctx context.Context, headers []string, samples map[string][]string) (map[string]schema.FieldProposal, error) {
	if len(headers) == 0 {
		return map[string]schema.FieldProposal{}, nil
	}

	snippets := make(map[string][]string, len(headers))
	for _, h := range headers {
		s := samples[h]
		if len(s) > MaxSamples {
			s = s[:MaxSamples]
		}
		if s == nil {
			s = []string{}
		}
		snippets[h] = s
	}
	sampleJSON, err := json.Marshal(snippets)
	if err != nil {
		return nil, fmt.Errorf("discover fields: marshal samples: %w", err)
	}

	user := "You are a data schema assistant. For each unknown header, propose a canonical key and metadata.\n" +
		"For every header, return an object with keys: canonical, description, example, synonyms (list), header_regex.\n" +
		"- canonical: concise snake_case name.\n" +
		"- description: short phrase explaining the field.\n" +
		"- example: realistic example, ideally from samples.\n" +
		"- synonyms: 5-12 likely header variants.\n" +
		"- header_regex: case-insensitive regex that matches typical header spellings (anchor with ^ and $).\n" +
		"Respond STRICTLY as JSON mapping source_header -> object. No extra text.\n\n" +
		"Unknown headers: " + quoted(headers) + "\n\nSample values: " + string(sampleJSON)

	content, err := c.complete(ctx, "Output strictly JSON with required keys only.", user)
	if err != nil {
		return nil, fmt.Errorf("discover fields: %w", err)
	}

	var obj map[string]json.RawMessage
	if err := decodeJSON(content, &obj); err != nil {
		return nil, fmt.Errorf("discover fields: %w", err)
	}

	out := make(map[string]schema.FieldProposal, len(obj))
	for src, raw := range obj {
		var p proposal
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		name := strings.TrimSpace(p.Canonical)
		if name == "" {
			continue
		}
		out[src] = schema.FieldProposal{
			SourceHeader: src,
			Name:         name,
			Description:  p.Description,
			Example:      exampleString(p.Example),
			Synonyms:     p.Synonyms,
			HeaderRegex:  p.HeaderRegex,
		}
	}
	return out, nil
}

func exampleString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// RepairCells asks for conservative replacements for a batch of invalid
// values in one call. The answer is aligned with reqs.
func (c *Client) RepairCells(ctx context.Context, reqs []RepairRequest) ([]string, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	items, err := json.Marshal(reqs)
	if err != nil {
		return nil, fmt.Errorf("repair cells: marshal requests: %w", err)
	}

	user := "Each item gives a column name, its description and a value that failed validation. " +
		"Suggest a conservative cleaned value of the same semantic type for each item. " +
		"Do not hallucinate; if unsure, use an empty string. " +
		"Respond STRICTLY as a JSON array of strings, one per item, in the same order.\n\n" +
		"Items: " + string(items)

	content, err := c.complete(ctx, "Return only the cleaned values, or empty strings if unsure.", user)
	if err != nil {
		return nil, fmt.Errorf("repair cells: %w", err)
	}

	var answers []any
	if err := decodeJSON(content, &answers); err != nil {
		return nil, fmt.Errorf("repair cells: %w", err)
	}

	out := make([]string, len(reqs))
	for i := range out {
		if i >= len(answers) {
			break
		}
		if s, ok := answers[i].(string); ok {
			out[i] = strings.TrimSpace(s)
		}
	}
	return out, nil
}
