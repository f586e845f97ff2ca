package openai

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sse "github.com/tmaxmax/go-sse"

	"github.com/zhengjr9/claude-gateway/internal/adapter"
	"github.com/zhengjr9/claude-gateway/internal/backend"
	"github.com/zhengjr9/claude-gateway/internal/backend/backendtest"
	apierrors "github.com/zhengjr9/claude-gateway/internal/errors"
	"github.com/zhengjr9/claude-gateway/internal/session"
)

func newTestHandler(c backend.Client) http.Handler {
	return NewHandler(session.NewManager(backend.Static(c), "dify", nil, nil), nil)
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body)))
	return rec
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(`{
		"model": "gpt-x",
		"max_tokens": 10,
		"messages": [
			{"role": "system", "content": "rule one"},
			{"role": "developer", "content": [{"type":"text","text":"rule two"}]},
			{"role": "user", "content": [{"type":"text","text":"Hi "},{"type":"image_url","text":""},{"type":"text","text":"there"}]},
			{"role": "assistant", "content": null}
		]
	}`))
	require.NoError(t, err)

	system, turns := SplitMessages(req.Messages)
	assert.Equal(t, "rule one\n\nrule two", system)
	require.Len(t, turns, 2)
	assert.Equal(t, "Hi there", turns[0].Text)
	assert.Equal(t, "", turns[1].Text)
	assert.Equal(t, 10, maxTokens(req))
}

func TestParseRequest_Rejections(t *testing.T) {
	cases := map[string]string{
		`{"messages":[{"role":"user","content":"x"}],"functions":[]}`:             "Unsupported fields: functions",
		`{"tools":[],"function_call":"auto"}`:                                     "Unsupported fields: tools, function_call",
		`{"messages":[]}`:                                                         "Invalid request body",
		`{"messages":[{"role":"tool","content":"x"}]}`:                            "Invalid request body",
		`{"messages":[{"role":"user","content":"x"}],"max_tokens":0}`:             "Invalid request body",
		`{"messages":[{"role":"user","content":"x"}],"max_completion_tokens":-1}`: "Invalid request body",
		`{"messages":[{"role":"user","content":{"text":"x"}}]}`:                   "Invalid request body",
		`{`: "Invalid request body",
	}
	for body, want := range cases {
		_, err := ParseRequest([]byte(body))
		require.Error(t, err, body)
		got := apierrors.Classify(err)
		assert.Equal(t, http.StatusBadRequest, got.Status, body)
		assert.Equal(t, want, got.Message, body)
	}
}

func TestDecode_IntegralFloatMaxTokens(t *testing.T) {
	req, err := Dialect{}.Decode([]byte(`{"max_tokens":1e3,"messages":[{"role":"user","content":"x"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1000, req.MaxTokens)

	_, err = Dialect{}.Decode([]byte(`{"max_completion_tokens":2.5,"messages":[{"role":"user","content":"x"}]}`))
	assert.ErrorIs(t, err, apierrors.ErrMalformedBody)
}

func TestDecode_Prompt(t *testing.T) {
	req, err := Dialect{}.Decode([]byte(`{"max_completion_tokens":7,"max_tokens":3,"messages":[
		{"role":"system","content":"Be brief."},
		{"role":"user","content":"Hello"}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, "Be brief.", req.System)
	assert.Equal(t, "System: Be brief.\n\nUser: Hello", req.Prompt)
	assert.Equal(t, 7, req.MaxTokens)
	assert.False(t, req.Stream)
}

func TestChatCompletions_NonStreaming(t *testing.T) {
	fake := &backendtest.Client{Script: backendtest.Script{Final: "Hello!"}}
	rec := post(newTestHandler(fake), `{"messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ChatCompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "dify", resp.Model)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Hello!", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, 1, fake.TotalDestroys())
}

func TestChatCompletions_Streaming(t *testing.T) {
	fake := &backendtest.Client{Script: backendtest.Script{Deltas: []string{"Hi", " there"}}}
	rec := post(newTestHandler(fake), `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var data []string
	for ev, err := range sse.Read(strings.NewReader(rec.Body.String()), nil) {
		require.NoError(t, err)
		assert.Empty(t, ev.Type)
		data = append(data, ev.Data)
	}
	require.Len(t, data, 5)
	assert.Equal(t, "[DONE]", data[4])

	var chunks []StreamChunk
	for _, d := range data[:4] {
		var c StreamChunk
		require.NoError(t, json.Unmarshal([]byte(d), &c))
		chunks = append(chunks, c)
	}
	assert.Equal(t, "assistant", chunks[0].Choices[0].Delta.Role)
	assert.Equal(t, "Hi", chunks[1].Choices[0].Delta.Content)
	assert.Equal(t, " there", chunks[2].Choices[0].Delta.Content)
	require.NotNil(t, chunks[3].Choices[0].FinishReason)
	assert.Equal(t, "stop", *chunks[3].Choices[0].FinishReason)
	for _, c := range chunks {
		assert.Equal(t, chunks[0].ID, c.ID)
		assert.Equal(t, "chat.completion.chunk", c.Object)
	}
	assert.Equal(t, 1, fake.TotalDestroys())
}

func TestChatCompletions_StreamingError(t *testing.T) {
	fake := &backendtest.Client{Script: backendtest.Script{
		Deltas: []string{"partial"},
		Err:    &backend.Error{Status: 429, Message: "too many"},
	}}
	rec := post(newTestHandler(fake), `{"stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var data []string
	for ev, err := range sse.Read(strings.NewReader(rec.Body.String()), nil) {
		require.NoError(t, err)
		data = append(data, ev.Data)
	}
	require.Len(t, data, 3)
	assert.JSONEq(t, `{"error":{"message":"too many","type":"rate_limit_error","code":null}}`, data[2])
	assert.NotContains(t, rec.Body.String(), "[DONE]")
}

func TestChatCompletions_ErrorEnvelope(t *testing.T) {
	fake := &backendtest.Client{CreateErr: errors.New("backend down")}
	rec := post(newTestHandler(fake), `{"messages":[{"role":"user","content":"hi"}]}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"backend down","type":"api_error","code":null}}`, rec.Body.String())
}

func TestDialect_FixedClock(t *testing.T) {
	d := Dialect{Now: func() time.Time { return time.Unix(1700000000, 0) }}
	resp := d.Reply(adapter.Message{ID: "chatcmpl-1", Model: "m", Text: "t"}).(ChatCompletionResponse)
	assert.Equal(t, int64(1700000000), resp.Created)
}
