package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
)

// ProviderConfig configures the chat-completions provider. Any endpoint
// speaking the OpenAI-compatible dialect works.
type ProviderConfig struct {
	BaseURL string
	Path    string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Provider is an HTTP TextClient for chat-completions endpoints.
type Provider struct {
	cfg    ProviderConfig
	gate   *Gate
	client *http.Client
}

const defaultCallTimeout = 60 * time.Second

// NewProvider creates a provider. The gate is shared across all callers of
// the same upstream; pass nil to run ungated.
func NewProvider(cfg ProviderConfig, gate *Gate) *Provider {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = "/v1/chat/completions"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCallTimeout
	}
	return &Provider{
		cfg:    cfg,
		gate:   gate,
		client: &http.Client{Timeout: 0}, // per-call deadline via context
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one completion request, honouring the shared gate and the
// per-call timeout.
func (p *Provider) Complete(ctx context.Context, req Request) (string, error) {
	if p.gate != nil {
		release, err := p.gate.Acquire(ctx)
		if err != nil {
			return "", err
		}
		defer release()
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(chatRequest{
		Model:     p.cfg.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return "", lferrors.Internal("marshal completion request", err)
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, p.cfg.BaseURL+p.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return "", lferrors.Internal("build completion request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return "", lferrors.UpstreamTimeout("ai completion", err)
		}
		return "", lferrors.Transient("ai provider unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", lferrors.Transient("read ai response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("ai provider returned %d", resp.StatusCode)
		var parsed chatResponse
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", lferrors.Transient(msg, nil)
		}
		return "", lferrors.Internal(msg, nil)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", lferrors.Quality("completion", err)
	}
	if len(parsed.Choices) == 0 {
		return "", lferrors.Quality("completion", fmt.Errorf("response has no choices"))
	}
	return parsed.Choices[0].Message.Content, nil
}
