package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cutoutly/internal/imagegen"
)

type OpenAIOptions struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string
	HTTPClient   *http.Client
	Fallback     ScriptWriter
	OnFallback   func(reason string, err error)
	OnWarning    func(reason, detail string)
}

// OpenAIWriter asks a chat model for a comic script in JSON mode. Any failure
// is routed to the fallback writer so the comic flow never stalls on the
// script step.
type OpenAIWriter struct {
	apiKey       string
	model        string
	baseURL      string
	organization string
	client       *http.Client
	fallback     ScriptWriter
	onFallback   func(reason string, err error)
}

const openAIDefaultTimeout = 30 * time.Second

const defaultOpenAIModel = "gpt-4o-mini"

var openAIModelCanonical = map[string]string{
	"gpt-4o-mini":  "gpt-4o-mini",
	"gpt-4o":       "gpt-4o",
	"gpt-4.1-mini": "gpt-4.1-mini",
}

var openAIModelAliases = map[string]string{
	"gpt4o-mini":             "gpt-4o-mini",
	"gpt4omini":              "gpt-4o-mini",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt4o":                  "gpt-4o",
	"gpt-4.1mini":            "gpt-4.1-mini",
}

type openAIChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewOpenAIWriter(opts OpenAIOptions) (*OpenAIWriter, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	modelInput := strings.TrimSpace(opts.Model)
	normalizedModel, normalizationReason := normalizeOpenAIModel(modelInput)
	if normalizationReason != "" && opts.OnWarning != nil {
		detail := fmt.Sprintf("requested=%s resolved=%s", coalesce(modelInput, defaultOpenAIModel), normalizedModel)
		opts.OnWarning("model_"+normalizationReason, detail)
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: openAIDefaultTimeout}
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = NewStaticWriter()
	}
	return &OpenAIWriter{
		apiKey:       strings.TrimSpace(opts.APIKey),
		model:        normalizedModel,
		baseURL:      baseURL,
		organization: strings.TrimSpace(opts.Organization),
		client:       client,
		fallback:     fallback,
		onFallback:   opts.OnFallback,
	}, nil
}

func (o *OpenAIWriter) GenerateScript(ctx context.Context, req ScriptRequest) (*Script, error) {
	opts := req.Options
	opts.Normalize()
	req.Options = opts
	payload := openAIChatRequest{
		Model:       o.model,
		Temperature: 0.8,
		ResponseFormat: &openAIFormat{
			Type: "json_object",
		},
		Messages: []openAIMessage{
			{Role: "system", Content: "You are a comic strip writer that only responds with valid JSON."},
			{Role: "user", Content: buildScriptPromptPayload(req)},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return o.useFallback(ctx, req, "encode_request", err)
	}
	endpoint := fmt.Sprintf("%s/chat/completions", o.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return o.useFallback(ctx, req, "build_request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	if o.organization != "" {
		httpReq.Header.Set("OpenAI-Organization", o.organization)
	}
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return o.useFallback(ctx, req, "http_request", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return o.useFallback(ctx, req, fmt.Sprintf("http_%d", resp.StatusCode), fmt.Errorf("openai status %d", resp.StatusCode))
	}
	var out openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return o.useFallback(ctx, req, "decode_response", err)
	}
	if len(out.Choices) == 0 {
		return o.useFallback(ctx, req, "empty_choices", errors.New("no choices"))
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return o.useFallback(ctx, req, "empty_response", errors.New("empty response"))
	}
	if err := validateScriptJSON([]byte(extractJSONFragment(text))); err != nil {
		return o.useFallback(ctx, req, "schema_mismatch", err)
	}
	parsed, err := parseModelPayload[modelScriptPayload](text)
	if err != nil {
		return o.useFallback(ctx, req, "parse_payload", err)
	}
	panels := normalizePanels(parsed.Panels, opts.PanelCount)
	if len(panels) == 0 {
		return o.useFallback(ctx, req, "empty_panels", errors.New("no panels"))
	}
	title := coalesce(parsed.Title, opts.Vibe)
	// The model's own prompt is kept only as a hint; the image prompt is
	// always rebuilt so style and identity constraints are present.
	finalPrompt := imagegen.BuildComicPrompt(opts, title, panels)
	if hint := strings.TrimSpace(parsed.FinalPrompt); hint != "" {
		finalPrompt = finalPrompt + " Art direction: " + hint
	}
	return &Script{
		Title:       title,
		Panels:      panels,
		FinalPrompt: finalPrompt,
		Provider:    openAIProviderName,
	}, nil
}

func (o *OpenAIWriter) useFallback(ctx context.Context, req ScriptRequest, reason string, fallbackErr error) (*Script, error) {
	if o.onFallback != nil {
		o.onFallback(reason, fallbackErr)
	}
	res, err := o.fallback.GenerateScript(ctx, req)
	if res != nil && res.Provider == "" {
		res.Provider = staticProviderName
	}
	return res, err
}

func buildScriptPromptPayload(req ScriptRequest) string {
	o := req.Options
	lang := "English"
	if localeKey(req.Locale) == "id" {
		lang = "Indonesian"
	}
	sb := &strings.Builder{}
	sb.WriteString("Write a short comic strip script. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"title":string,"panels":string[],"final_prompt":string}`)
	fmt.Fprintf(sb, ". Write exactly %d panels, one visual sentence each, in %s. The main character is %s. Mood: %s. Vibe: %s. Art style: %s. final_prompt is a single sentence of art direction for an image model.",
		o.PanelCount, lang, o.Persona, o.Mood, o.Vibe, imagegen.ComicStyle(o.Style))
	return sb.String()
}

var _ ScriptWriter = (*OpenAIWriter)(nil)

func normalizeOpenAIModel(name string) (string, string) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return defaultOpenAIModel, ""
	}
	normalized := strings.ToLower(trimmed)
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	if canonical, ok := openAIModelCanonical[normalized]; ok {
		return canonical, ""
	}
	if alias, ok := openAIModelAliases[normalized]; ok {
		return alias, "alias"
	}
	return defaultOpenAIModel, "defaulted"
}
