package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cutoutly/internal/infra"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-image-1"
	openAIDefaultTimeout = 180 * time.Second
	maxResponseBytes     = 64 << 20
)

// OpenAIOptions configures the OpenAI Images client.
type OpenAIOptions struct {
	APIKey       string
	BaseURL      string
	Model        string
	Organization string
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// OpenAIGenerator calls the OpenAI Images API for edits and generations.
type OpenAIGenerator struct {
	apiKey       string
	baseURL      string
	model        string
	organization string
	client       *http.Client
	logger       *infra.Logger
}

type imagesGenerationRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	Quality        string `json:"quality,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type imagesResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewOpenAIGenerator validates options and applies defaults.
func NewOpenAIGenerator(opts OpenAIOptions) (*OpenAIGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = openAIDefaultModel
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &OpenAIGenerator{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		model:        model,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
		logger:       logger,
	}, nil
}

// Model returns the configured image model.
func (g *OpenAIGenerator) Model() string {
	return g.model
}

// GenerateImage renders an image from a text prompt.
func (g *OpenAIGenerator) GenerateImage(ctx context.Context, req GenerateRequest) (*Asset, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("image prompt required")
	}
	payload := imagesGenerationRequest{
		Model:          g.model,
		Prompt:         prompt,
		N:              1,
		Size:           strings.TrimSpace(req.Size),
		Quality:        g.quality(req.Quality),
		ResponseFormat: g.responseFormat(),
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("encode generation request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/images/generations", &buf)
	if err != nil {
		return nil, fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	start := time.Now()
	data, err := g.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	g.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", g.model).
		Dur("elapsed", time.Since(start)).
		Msg("openai: image generated")
	return newAsset(data, req.Size), nil
}

// EditImage restyles the source image according to the prompt.
func (g *OpenAIGenerator) EditImage(ctx context.Context, req EditRequest) (*Asset, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.New("image prompt required")
	}
	if len(req.Image.Data) == 0 {
		return nil, errors.New("source image required")
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"model":   g.model,
		"prompt":  prompt,
		"n":       "1",
		"size":    strings.TrimSpace(req.Size),
		"quality": g.quality(req.Quality),
	}
	if rf := g.responseFormat(); rf != "" {
		fields["response_format"] = rf
	}
	for _, name := range []string{"model", "prompt", "n", "size", "quality", "response_format"} {
		value, ok := fields[name]
		if !ok || value == "" {
			continue
		}
		if err := mw.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", name, err)
		}
	}
	filename := req.Image.Filename
	if filename == "" {
		filename = "input.png"
	}
	mime := req.Image.MIME
	if mime == "" {
		mime = "image/png"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
	header.Set("Content-Type", mime)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(req.Image.Data); err != nil {
		return nil, fmt.Errorf("write image part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/images/edits", &body)
	if err != nil {
		return nil, fmt.Errorf("build edit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	start := time.Now()
	data, err := g.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	g.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", g.model).
		Dur("elapsed", time.Since(start)).
		Msg("openai: image edited")
	return newAsset(data, req.Size), nil
}

func (g *OpenAIGenerator) do(ctx context.Context, httpReq *http.Request) ([]byte, error) {
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	if g.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", g.organization)
	}
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr openAIErrorResponse
		_ = json.Unmarshal(raw, &apiErr)
		msg := strings.TrimSpace(apiErr.Error.Message)
		if msg == "" {
			msg = truncate(strings.TrimSpace(string(raw)), 300)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	var decoded imagesResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode openai response: %w", err)
	}
	if len(decoded.Data) == 0 {
		return nil, errors.New("no image returned")
	}
	item := decoded.Data[0]
	if b64 := strings.TrimSpace(item.B64JSON); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil || len(data) == 0 {
			return nil, fmt.Errorf("decode image base64: %w", err)
		}
		return data, nil
	}
	if u := strings.TrimSpace(item.URL); u != "" {
		return g.download(ctx, u)
	}
	return nil, errors.New("image response missing b64_json and url")
}

func (g *OpenAIGenerator) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image download: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "image download failed"}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read image download: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("downloaded image is empty")
	}
	return data, nil
}

// responseFormat is only accepted by the dall-e models; gpt-image models
// always answer with b64_json.
func (g *OpenAIGenerator) responseFormat() string {
	if strings.HasPrefix(g.model, "dall-e") {
		return "b64_json"
	}
	return ""
}

func (g *OpenAIGenerator) quality(q string) string {
	q = strings.TrimSpace(q)
	if strings.HasPrefix(g.model, "dall-e") {
		return ""
	}
	return q
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Generator = (*OpenAIGenerator)(nil)
