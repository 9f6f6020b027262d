package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hackrx/docqa/internal/llm"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel      = "gemini-2.0-flash"
	defaultEmbedModel = "text-embedding-004"
)

// Client implements llm.Provider for the Google Gemini REST API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	embedModel string
	http       *http.Client
}

// New creates a Gemini provider.
func New(apiKey, model, baseURL, embedModel string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	if embedModel == "" {
		embedModel = defaultEmbedModel
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		embedModel: embedModel,
		http:       &http.Client{},
	}
}

func (c *Client) Name() string { return "gemini" }

// safetySettings blocks medium-and-above harmful content across all four
// moderated categories for every completion call.
var safetySettings = []map[string]string{
	{"category": "HARM_CATEGORY_HARASSMENT", "threshold": "BLOCK_MEDIUM_AND_ABOVE"},
	{"category": "HARM_CATEGORY_HATE_SPEECH", "threshold": "BLOCK_MEDIUM_AND_ABOVE"},
	{"category": "HARM_CATEGORY_SEXUALLY_EXPLICIT", "threshold": "BLOCK_MEDIUM_AND_ABOVE"},
	{"category": "HARM_CATEGORY_DANGEROUS_CONTENT", "threshold": "BLOCK_MEDIUM_AND_ABOVE"},
}

func (c *Client) Complete(ctx context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	// The generateContent API has no separate system slot in this layout;
	// the system prompt is inlined ahead of the first user turn.
	var parts []string
	if prompt.SystemPrompt != "" {
		parts = append(parts, prompt.SystemPrompt)
	}
	for _, m := range prompt.Messages {
		parts = append(parts, m.Content)
	}
	text := strings.Join(parts, "\n\n")

	genConfig := map[string]any{
		"stopSequences": []string{},
	}
	if opts != nil {
		if opts.Temperature != nil {
			genConfig["temperature"] = *opts.Temperature
		}
		if opts.TopK != nil {
			genConfig["topK"] = *opts.TopK
		}
		if opts.TopP != nil {
			genConfig["topP"] = *opts.TopP
		}
		if opts.MaxTokens != nil {
			genConfig["maxOutputTokens"] = *opts.MaxTokens
		}
		if len(opts.StopSeqs) > 0 {
			genConfig["stopSequences"] = opts.StopSeqs
		}
	}

	body := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": text}}},
		},
		"generationConfig": genConfig,
		"safetySettings":   safetySettings,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini: %s: %s", resp.Status, respBody)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		ModelVersion  string `json:"modelVersion"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini: response contained no candidates")
	}

	model := result.ModelVersion
	if model == "" {
		model = c.model
	}

	return &llm.Response{
		Content:      strings.TrimSpace(result.Candidates[0].Content.Parts[0].Text),
		Model:        model,
		InputTokens:  result.UsageMetadata.PromptTokenCount,
		OutputTokens: result.UsageMetadata.CandidatesTokenCount,
		StopReason:   result.Candidates[0].FinishReason,
	}, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := "models/" + c.embedModel

	requests := make([]map[string]any, len(texts))
	for i, t := range texts {
		requests[i] = map[string]any{
			"model":   model,
			"content": map[string]any{"parts": []map[string]string{{"text": t}}},
		}
	}

	data, err := json.Marshal(map[string]any{"requests": requests})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", c.baseURL, c.embedModel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini embed: %s: %s", resp.Status, respBody)
	}

	var result struct {
		Embeddings []struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, e := range result.Embeddings {
		embeddings[i] = e.Values
	}
	return embeddings, nil
}
