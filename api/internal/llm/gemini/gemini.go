package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"tutor-dpo/api/internal/llm"
)

type Engine struct {
	APIKey string
	Model  string

	// extra client options, e.g. a custom endpoint
	opts []option.ClientOption
}

func New(apiKey, model string, opts ...option.ClientOption) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
		opts:   opts,
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// generator is the part of *genai.GenerativeModel that Invoke uses.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Invoke sends prompt as a single user turn and issues exactly one request.
// Retrying is left to the caller, which owns the attempt budget.
func (e *Engine) Invoke(ctx context.Context, prompt string, temperature float64, timeout time.Duration) (string, error) {
	if e.APIKey == "" {
		return "", &llm.BackendError{Provider: e.Name(), Kind: llm.KindConfig, Err: errors.New("GEMINI_API_KEY is empty")}
	}
	ctx, cancel := llm.WithTimeout(ctx, timeout)
	defer cancel()

	cl, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(e.APIKey)}, e.opts...)...)
	if err != nil {
		return "", llm.Wrap(e.Name(), err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return "", &llm.BackendError{Provider: e.Name(), Kind: llm.KindConfig, Err: fmt.Errorf("model %q is nil", e.Model)}
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(float32(temperature)),
	}
	return e.generate(ctx, m, prompt)
}

func (e *Engine) generate(ctx context.Context, g generator, prompt string) (string, error) {
	resp, err := g.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", llm.Wrap(e.Name(), err)
	}
	txt := firstText(resp)
	if strings.TrimSpace(txt) == "" {
		return "", llm.EmptyError(e.Name())
	}
	return txt, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

func ptrFloat32(f float32) *float32 { return &f }
