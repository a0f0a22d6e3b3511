package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cutoutly/internal/domain/jsoncfg"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format = %+v", req.ResponseFormat)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		})
	}))
}

func TestOpenAIWriterParsesScript(t *testing.T) {
	srv := chatServer(t, "```json\n{\"title\":\"Late Again\",\"panels\":[\"Alarm rings\",\"Runs\",\"Misses bus\",\"Laughs\",\"extra\"],\"final_prompt\":\"warm colors\"}\n```")
	defer srv.Close()

	var fallbackReason string
	writer, err := NewOpenAIWriter(OpenAIOptions{
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
		OnFallback: func(reason string, err error) { fallbackReason = reason },
	})
	if err != nil {
		t.Fatalf("NewOpenAIWriter: %v", err)
	}
	script, err := writer.GenerateScript(context.Background(), ScriptRequest{Options: jsoncfg.ComicOptions{PanelCount: 4}, Locale: "en"})
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if fallbackReason != "" {
		t.Fatalf("unexpected fallback %q", fallbackReason)
	}
	if script.Provider != openAIProviderName || script.Title != "Late Again" {
		t.Fatalf("script = %+v", script)
	}
	if len(script.Panels) != 4 {
		t.Fatalf("panels = %d, want 4 (clamped to panel_count)", len(script.Panels))
	}
	if !strings.Contains(script.FinalPrompt, "Panel 1: Alarm rings") || !strings.Contains(script.FinalPrompt, "Art direction: warm colors") {
		t.Fatalf("final prompt = %q", script.FinalPrompt)
	}
}

func TestOpenAIWriterFallsBackOnSchemaMismatch(t *testing.T) {
	srv := chatServer(t, `{"title":"","panels":"not-an-array"}`)
	defer srv.Close()

	var fallbackReason string
	writer, err := NewOpenAIWriter(OpenAIOptions{
		APIKey:     "sk-test",
		BaseURL:    srv.URL,
		OnFallback: func(reason string, err error) { fallbackReason = reason },
	})
	if err != nil {
		t.Fatalf("NewOpenAIWriter: %v", err)
	}
	script, err := writer.GenerateScript(context.Background(), ScriptRequest{Options: jsoncfg.ComicOptions{PanelCount: 3}})
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if fallbackReason != "schema_mismatch" {
		t.Fatalf("fallback reason = %q, want schema_mismatch", fallbackReason)
	}
	if script.Provider != staticProviderName || len(script.Panels) != 3 {
		t.Fatalf("script = %+v", script)
	}
}

func TestOpenAIWriterFallbackOnTransportError(t *testing.T) {
	var captured string
	writer, err := NewOpenAIWriter(OpenAIOptions{
		APIKey: "dummy",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, errors.New("boom")
		})},
		OnFallback: func(reason string, err error) { captured = reason },
	})
	if err != nil {
		t.Fatalf("NewOpenAIWriter: %v", err)
	}
	script, err := writer.GenerateScript(context.Background(), ScriptRequest{Locale: "id"})
	if err != nil {
		t.Fatalf("GenerateScript: %v", err)
	}
	if captured != "http_request" {
		t.Fatalf("reason = %q, want http_request", captured)
	}
	if script.Provider != staticProviderName {
		t.Fatalf("provider = %q", script.Provider)
	}
}

func TestNormalizeOpenAIModel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		input  string
		model  string
		reason string
	}{
		{name: "exact_default", input: "gpt-4o-mini", model: "gpt-4o-mini", reason: ""},
		{name: "exact_other", input: "GPT-4o", model: "gpt-4o", reason: ""},
		{name: "alias", input: "gpt4o mini", model: "gpt-4o-mini", reason: "alias"},
		{name: "unsupported", input: "davinci", model: "gpt-4o-mini", reason: "defaulted"},
		{name: "empty", input: "", model: "gpt-4o-mini", reason: ""},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gotModel, gotReason := normalizeOpenAIModel(tc.input)
			if gotModel != tc.model {
				t.Fatalf("model = %q, want %q", gotModel, tc.model)
			}
			if gotReason != tc.reason {
				t.Fatalf("reason = %q, want %q", gotReason, tc.reason)
			}
		})
	}
}
