package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	// DefaultModel is the default Gemini model used for every generation call.
	DefaultModel = "gemini-flash-lite-latest"
	// DefaultTimeout bounds a single generation call.
	DefaultTimeout = 60 * time.Second
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("llm: empty response from model")

// Request is a single text-generation call.
type Request struct {
	System      string  // Optional system instruction
	Prompt      string  // User prompt
	Temperature float32 // 0 falls back to the client temperature
	MaxTokens   int32   // 0 leaves the model default in place
	JSON        bool    // Ask the model for an application/json response
}

// Generator is the text-generation boundary used by every AI-backed stage.
// Implementations return plain text that may contain one JSON object.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	ModelName() string
}

// Options configures a Client.
type Options struct {
	APIKey            string
	Model             string
	Timeout           time.Duration
	Temperature       float32 // used when a request leaves Temperature at 0
	MaxTokens         int32
	RequestsPerMinute int
}

// Client talks to Gemini through the genai SDK.
type Client struct {
	modelName   string
	timeout     time.Duration
	temperature float32
	maxTokens   int32
	limiter     *rate.Limiter
	gClient     *genai.Client
}

var _ Generator = (*Client)(nil)

// NewClient creates a Gemini-backed Generator. The API key falls back to the
// GEMINI_API_KEY environment variable when opts.APIKey is empty.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file")
	}

	modelName := opts.Model
	if modelName == "" {
		modelName = DefaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	return &Client{
		modelName:   modelName,
		timeout:     timeout,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		limiter:     limiter,
		gClient:     gClient,
	}, nil
}

// ModelName returns the model used for generation.
func (c *Client) ModelName() string {
	return c.modelName
}

// Generate runs one generation call bounded by the client timeout.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if req.Prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: req.Prompt}},
		Role:  "user",
	}}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, c.buildConfig(req))
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *Client) buildConfig(req Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.temperature
	}
	if temp > 0 {
		config.Temperature = &temp
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = maxTokens
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	return config
}
