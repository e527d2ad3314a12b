package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"tutor-dpo/api/internal/llm"
)

const DefaultEndpoint = "http://127.0.0.1:11434"

type Engine struct {
	Endpoint string
	Model    string
	httpc    *http.Client
}

func New(endpoint, model string) *Engine {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConnsPerHost: 4,
	}
	return &Engine{
		Endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		Model:    strings.TrimSpace(model),
		// local generation can take minutes; the per-call timeout bounds it
		httpc: &http.Client{Timeout: 0, Transport: tr},
	}
}

// WithHTTPClient overrides the internal HTTP client.
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string     { return "ollama" }
func (e *Engine) GetModel() string { return e.Model }

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

// temperature is always sent; 0 is a meaningful setting for translation.
type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (e *Engine) Invoke(ctx context.Context, prompt string, temperature float64, timeout time.Duration) (string, error) {
	ctx, cancel := llm.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:   e.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{Temperature: temperature},
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", llm.Wrap(e.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", llm.Wrap(e.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", llm.Wrap(e.Name(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", llm.StatusError(e.Name(), resp.StatusCode, truncate(raw, 512))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", llm.Wrap(e.Name(), fmt.Errorf("decode response: %w", err))
	}
	if out.Error != "" {
		return "", llm.StatusError(e.Name(), resp.StatusCode, out.Error)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", llm.EmptyError(e.Name())
	}
	return out.Response, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
