// Package gemini wraps the Gemini generateContent API for debate turn and
// verdict generation.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"nyaya/engine/internal/egress"
	"nyaya/engine/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient() *Client {
	transport := egress.NewAllowlistRoundTripper(http.DefaultTransport, []string{"generativelanguage.googleapis.com"})
	return &Client{
		baseURL: defaultBaseURL,
		client: &http.Client{
			Timeout:   120 * time.Second,
			Transport: transport,
		},
	}
}

// NewClientForTest builds a client aimed at a local test server without the
// egress allowlist.
func NewClientForTest(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) ValidateKey(ctx context.Context, apiKey string) error {
	u, err := url.Parse(c.baseURL + "/v1beta/models")
	if err != nil {
		return err
	}
	q := u.Query()
	q.Set("key", apiKey)
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, llm.ErrEgressBlocked) {
			return llm.ErrEgressBlocked
		}
		return err
	}
	defer resp.Body.Close()
	return statusError(resp, nil)
}

// Chat sends a full message history and returns the model's text reply.
func (c *Client) Chat(ctx context.Context, apiKey, model string, messages []llm.Message) (string, error) {
	payload := geminiRequest{Contents: toGeminiContents(messages)}
	if system := systemInstruction(messages); system != nil {
		payload.SystemInstruction = system
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, model, url.QueryEscape(apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("content-type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, llm.ErrEgressBlocked) {
			return "", llm.ErrEgressBlocked
		}
		return "", err
	}
	defer resp.Body.Close()
	if err := statusError(resp, func() string {
		errorBody, _ := io.ReadAll(resp.Body)
		return string(errorBody)
	}); err != nil {
		return "", err
	}
	var response geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", err
	}
	if len(response.Candidates) == 0 {
		return "", errors.New("gemini empty response")
	}
	var buf bytes.Buffer
	for _, part := range response.Candidates[0].Content.Parts {
		buf.WriteString(part.Text)
	}
	return buf.String(), nil
}

func statusError(resp *http.Response, readBody func() string) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return llm.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return llm.ErrRateLimited
	case resp.StatusCode >= 500:
		return llm.ErrUnavailable
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		if readBody != nil {
			return fmt.Errorf("gemini error: %s - %s", resp.Status, readBody())
		}
		return fmt.Errorf("gemini error: %s", resp.Status)
	}
	return nil
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

func systemInstruction(messages []llm.Message) *geminiContent {
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			return &geminiContent{Parts: []geminiPart{{Text: msg.Content}}}
		}
	}
	return nil
}

func toGeminiContents(messages []llm.Message) []geminiContent {
	var result []geminiContent
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			continue
		}
		result = append(result, geminiContent{Role: mapRole(msg.Role), Parts: []geminiPart{{Text: msg.Content}}})
	}
	return result
}

func mapRole(role string) string {
	switch role {
	case llm.RoleAssistant, "model":
		return "model"
	default:
		return "user"
	}
}
