package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ai-interview-go/internal/types"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketAllow(t *testing.T) {
	tb := NewTokenBucket(60, 2)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "容量为2时第三次应被拒绝")
}

func TestTokenBucketWaitRespectsContext(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryWithBackoff(t *testing.T) {
	tb := NewTokenBucket(6000, 100).WithRetryPolicy(time.Millisecond, 2)

	attempts := 0
	err := tb.RetryWithBackoff(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("API 请求失败，状态 429 Too Many Requests")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = tb.RetryWithBackoff(context.Background(), func() error {
		attempts++
		return errors.New("invalid api key")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts, "不可重试的错误只调用一次")
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(errors.New("read: connection reset by peer")))
	assert.True(t, isRetryableError(errors.New("服务器繁忙")))
	assert.False(t, isRetryableError(context.DeadlineExceeded))
	assert.False(t, isRetryableError(nil))
}

func TestOpenAICompatibleGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"你好"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	m, err := NewOpenAICompatibleChatModel("test-key", "qwen-plus", server.URL, time.Second, zerolog.Nop())
	require.NoError(t, err)

	msg, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "你好", msg.Content)
	assert.Equal(t, schema.Assistant, msg.Role)
}

func TestOpenAICompatibleGenerateHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	m, err := NewOpenAICompatibleChatModel("k", "", server.URL, time.Second, zerolog.Nop())
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.True(t, isRetryableError(err))
}

func TestNewOpenAICompatibleRequiresKey(t *testing.T) {
	_, err := NewOpenAICompatibleChatModel(" ", "", "", 0, zerolog.Nop())
	assert.Error(t, err)
}

func TestCompleteMapsFailures(t *testing.T) {
	ctx := context.Background()

	out, err := Complete(ctx, NewMockChatModel("  问题一  ", nil), time.Second, "test", "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "问题一", out)

	_, err = Complete(ctx, NewMockChatModel("", nil), time.Second, "test", "sys", "user")
	assert.ErrorIs(t, err, types.ErrExternalService)

	_, err = Complete(ctx, NewMockChatModel("", errors.New("boom")), time.Second, "test", "", "user")
	assert.ErrorIs(t, err, types.ErrExternalService)

	slow := NewMockChatModelSequential([]MockResponse{{Content: "late", Delay: time.Second}})
	_, err = Complete(ctx, slow, 10*time.Millisecond, "test", "", "user")
	assert.ErrorIs(t, err, types.ErrExternalService)
	assert.Contains(t, err.Error(), "超时")

	_, err = Complete(ctx, nil, time.Second, "test", "", "user")
	assert.ErrorIs(t, err, types.ErrExternalService)
}

func TestMockChatModelSequence(t *testing.T) {
	m := NewMockChatModelSequential([]MockResponse{{Content: "a"}, {Content: "b"}})
	ctx := context.Background()

	first, _ := m.Generate(ctx, []*schema.Message{schema.UserMessage("1")})
	second, _ := m.Generate(ctx, []*schema.Message{schema.UserMessage("2")})
	third, _ := m.Generate(ctx, []*schema.Message{schema.UserMessage("3")})

	assert.Equal(t, "a", first.Content)
	assert.Equal(t, "b", second.Content)
	assert.Equal(t, "b", third.Content)
	assert.Equal(t, 3, m.Calls())
	assert.Equal(t, "3", m.LastPrompt())
}
