package dify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhengjr9/claude-gateway/internal/backend"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the Dify host or the full chat-messages endpoint URL.
	BaseURL string
	APIKey  string
	// User identifies the gateway's sessions to Dify.
	User string
	// ProxyURL may be empty to use the environment proxy.
	ProxyURL string
	// Timeout bounds blocking requests. Streaming requests rely on the
	// caller's context instead.
	Timeout time.Duration
	// Streaming reports whether the Dify app may be called in streaming mode.
	Streaming bool
}

// Client sends requests to a Dify instance.
type Client struct {
	// chatURL is the full URL of the chat-messages endpoint. apiURL is the
	// /v1 prefix it lives under.
	chatURL    string
	apiURL     string
	apiKey     string
	user       string
	streaming  bool
	httpClient *http.Client
	// streamClient has no timeout but shares the proxy setting.
	streamClient *http.Client
}

// NewClient constructs a Client.
func NewClient(opts Options) *Client {
	chatURL := strings.TrimRight(opts.BaseURL, "/")
	if !strings.HasSuffix(chatURL, "/v1/chat-messages") {
		chatURL += "/v1/chat-messages"
	}

	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if opts.ProxyURL != "" {
		if parsed, err := url.Parse(opts.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}

	return &Client{
		chatURL:      chatURL,
		apiURL:       strings.TrimSuffix(chatURL, "/chat-messages"),
		apiKey:       opts.APIKey,
		user:         opts.User,
		streaming:    opts.Streaming,
		httpClient:   &http.Client{Timeout: opts.Timeout, Transport: transport},
		streamClient: &http.Client{Transport: transport},
	}
}

// CreateSession implements backend.Client. Dify has no server-side session
// object; the returned session starts a new conversation on its first Send.
func (c *Client) CreateSession(_ context.Context, cfg backend.SessionConfig) (backend.Session, error) {
	if cfg.Streaming && !c.streaming {
		return nil, &backend.Error{
			Status:  http.StatusBadRequest,
			Message: "streaming is not enabled for this Dify app",
		}
	}
	return newSession(c, cfg), nil
}

// SendBlocking sends a blocking chat-messages request and returns the parsed response.
func (c *Client) SendBlocking(ctx context.Context, req *ChatRequest) (*BlockingResponse, error) {
	req.ResponseMode = "blocking"
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.chatURL, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, upstreamError(resp)
	}

	var result BlockingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

// SendStreaming sends a streaming chat-messages request and returns a channel of StreamEvents.
// The HTTP response body is closed when the channel is drained.
func (c *Client) SendStreaming(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	req.ResponseMode = "streaming"
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.chatURL, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dify request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, upstreamError(resp)
	}

	ch := make(chan StreamEvent, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		for ev := range ReadStream(resp.Body) {
			ch <- ev
		}
	}()
	return ch, nil
}

// DeleteConversation removes a conversation created by the gateway.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	target := c.apiURL + "/conversations/" + url.PathEscape(conversationID)
	httpReq, err := c.newRequest(ctx, http.MethodDelete, target, deleteRequest{User: c.user})
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("dify delete conversation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upstreamError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.user != "" {
		httpReq.Header.Set("AIGC-USER", c.user)
	}
	return httpReq, nil
}

// upstreamError turns a non-2xx response into a *backend.Error, preferring
// the message of Dify's JSON error body.
func upstreamError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		msg = body.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &backend.Error{Status: resp.StatusCode, Message: fmt.Sprintf("dify %d: %s", resp.StatusCode, msg)}
}
