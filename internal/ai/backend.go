package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ImageBackend is one strategy in the fallback chain. Attempt returns a
// result or a *BackendError.
type ImageBackend interface {
	Model() string
	Attempt(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

// modelFamily selects the request shape for an OpenAI image model.
type modelFamily int

const (
	familyGPTImage modelFamily = iota
	familyDallE3
	familyDallE2
)

func familyOf(model string) modelFamily {
	switch {
	case strings.HasPrefix(model, "gpt-image"):
		return familyGPTImage
	case model == "dall-e-2":
		return familyDallE2
	default:
		return familyDallE3
	}
}

// openAIImageBackend calls POST /images/generations for a single model.
type openAIImageBackend struct {
	model   string
	family  modelFamily
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewOpenAIBackend creates a backend for the given image model.
func NewOpenAIBackend(model, apiKey, baseURL string, client *http.Client) ImageBackend {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if client == nil {
		client = &http.Client{Timeout: AttemptTimeout}
	}
	return &openAIImageBackend{
		model:   model,
		family:  familyOf(model),
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (b *openAIImageBackend) Model() string { return b.model }

type imageGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	Quality        string `json:"quality,omitempty"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imageGenerationResponse struct {
	Data []struct {
		URL           string `json:"url"`
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// buildRequest maps a normalized request onto what this model accepts.
func (b *openAIImageBackend) buildRequest(req ImageRequest) imageGenerationRequest {
	body := imageGenerationRequest{
		Model:  b.model,
		Prompt: req.Prompt,
		N:      1,
		Size:   coerceSize(b.family, req.Size),
	}
	switch b.family {
	case familyGPTImage:
		// gpt-image models always return base64 and use their own quality scale.
		body.Quality = "medium"
		if req.Quality == QualityHD {
			body.Quality = "high"
		}
	case familyDallE3:
		body.Quality = req.Quality
		body.Style = req.Style
		body.ResponseFormat = "url"
	case familyDallE2:
		body.ResponseFormat = "url"
	}
	return body
}

// coerceSize maps a supported preset onto the nearest size the model family
// accepts, preserving orientation.
func coerceSize(f modelFamily, size string) string {
	switch f {
	case familyGPTImage:
		switch size {
		case Size1792Wide, Size1536Wide:
			return Size1536Wide
		case Size1792Tall, Size1536Tall:
			return Size1536Tall
		}
		return Size1024
	case familyDallE2:
		switch size {
		case Size256, Size512:
			return size
		}
		return Size1024
	default:
		switch size {
		case Size1792Wide, Size1536Wide:
			return Size1792Wide
		case Size1792Tall, Size1536Tall:
			return Size1792Tall
		}
		return Size1024
	}
}

// Attempt performs exactly one generation call. Errors are always *BackendError.
func (b *openAIImageBackend) Attempt(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	payload, err := json.Marshal(b.buildRequest(req))
	if err != nil {
		return nil, unexpectedError(b.model, fmt.Errorf("openai marshal: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/images/generations", bytes.NewReader(payload))
	if err != nil {
		return nil, unexpectedError(b.model, fmt.Errorf("openai request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, unexpectedError(b.model, fmt.Errorf("openai http: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unexpectedError(b.model, fmt.Errorf("openai read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyOpenAIError(b.model, resp.StatusCode, respBody)
	}

	var result imageGenerationResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, unexpectedError(b.model, fmt.Errorf("openai unmarshal: %w", err))
	}
	if len(result.Data) == 0 {
		return nil, unexpectedError(b.model, errors.New("openai: no image data returned"))
	}

	d := result.Data[0]
	out := &ImageResult{Model: b.model, RevisedPrompt: d.RevisedPrompt}
	switch {
	case d.B64JSON != "":
		out.ImageURL = dataURIPrefix + d.B64JSON
	case d.URL != "":
		out.ImageURL = d.URL
	default:
		return nil, unexpectedError(b.model, errors.New("openai: response has neither url nor b64_json"))
	}
	if out.RevisedPrompt == "" {
		out.RevisedPrompt = req.Prompt
	}
	return out, nil
}
