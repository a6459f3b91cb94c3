package llm

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weibaohui/minutesagent/backend/config"
	"github.com/weibaohui/minutesagent/backend/internal/domain"
	"github.com/weibaohui/minutesagent/backend/internal/pkg/metrics"
)

// fakeChatModel 按顺序返回预设回复
type fakeChatModel struct {
	mu        sync.Mutex
	replies   []string
	errs      []error
	calls     int
	gotInput  [][]*schema.Message
	gotOption []*model.Options
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	f.gotInput = append(f.gotInput, input)
	f.gotOption = append(f.gotOption, model.GetCommonOptions(&model.Options{}, opts...))
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return schema.AssistantMessage(reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func TestNewClient(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.APIURL = "https://api.example.com/v1"

	client, err := NewClient(cfg)
	require.NoError(t, err)
	assert.NotNil(t, client.jsonModel)
	assert.NotNil(t, client.textModel)
	assert.Equal(t, 1, client.maxRetries)
}

func TestGenerateUsesTextModel(t *testing.T) {
	jsonModel := &fakeChatModel{}
	textModel := &fakeChatModel{replies: []string{"None"}}
	client := NewClientWithModels(jsonModel, textModel, 1, 2)

	text, err := client.Generate(context.Background(), Conversation("sys", "user"), Options{Role: domain.Critic, Temperature: Temperature(1.0)})
	require.NoError(t, err)
	assert.Equal(t, "None", text)
	assert.Equal(t, 0, jsonModel.calls)
	require.Equal(t, 1, textModel.calls)
	require.NotNil(t, textModel.gotOption[0].Temperature)
	assert.Equal(t, float32(1.0), *textModel.gotOption[0].Temperature)
	assert.Equal(t, schema.System, textModel.gotInput[0][0].Role)
	assert.Equal(t, schema.User, textModel.gotInput[0][1].Role)
}

func TestCompleteStripsFences(t *testing.T) {
	jsonModel := &fakeChatModel{replies: []string{"```json\n{\"title\": \"Acta\", \"tasks\": []}\n```"}}
	client := NewClientWithModels(jsonModel, &fakeChatModel{}, 1, 1)

	obj, err := client.Complete(context.Background(), Conversation("sys", "user"), Options{Role: domain.Drafter})
	require.NoError(t, err)
	assert.Equal(t, "Acta", obj["title"])
	assert.Equal(t, 1, jsonModel.calls)
}

func TestCompleteMalformedNotRetried(t *testing.T) {
	jsonModel := &fakeChatModel{replies: []string{"```json\nthis is not json\n```", `{"title":"x"}`}}
	client := NewClientWithModels(jsonModel, &fakeChatModel{}, 1, 1)

	_, err := client.Complete(context.Background(), Conversation("sys", "user"), Options{Role: domain.Drafter})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMalformedModelOutput))
	assert.Equal(t, 1, jsonModel.calls, "格式错误不应重试")
}

func TestCompleteRejectsNonObject(t *testing.T) {
	jsonModel := &fakeChatModel{replies: []string{`["a","b"]`}}
	client := NewClientWithModels(jsonModel, &fakeChatModel{}, 0, 1)

	_, err := client.Complete(context.Background(), Conversation("sys", "user"), Options{Role: domain.Drafter})
	assert.True(t, errors.Is(err, domain.ErrMalformedModelOutput))
}

func TestCompleteValidatesSchema(t *testing.T) {
	s := MustCompileSchema("test.json", `{
		"type": "object",
		"required": ["title"],
		"properties": {"title": {"type": "string"}}
	}`)
	jsonModel := &fakeChatModel{replies: []string{`{"summary":"no title"}`, `{"title": 3}`, `{"title":"ok"}`}}
	client := NewClientWithModels(jsonModel, &fakeChatModel{}, 0, 1)
	opts := Options{Role: domain.Drafter, Schema: s}

	_, err := client.Complete(context.Background(), Conversation("sys", "user"), opts)
	assert.True(t, errors.Is(err, domain.ErrMalformedModelOutput), "缺少必填字段")

	_, err = client.Complete(context.Background(), Conversation("sys", "user"), opts)
	assert.True(t, errors.Is(err, domain.ErrMalformedModelOutput), "字段类型错误")

	obj, err := client.Complete(context.Background(), Conversation("sys", "user"), opts)
	require.NoError(t, err)
	assert.Equal(t, "ok", obj["title"])
}

func TestGenerateRetriesOnceOnServiceError(t *testing.T) {
	textModel := &fakeChatModel{
		errs:    []error{errors.New("502 bad gateway")},
		replies: []string{"", "recovered"},
	}
	client := NewClientWithModels(&fakeChatModel{}, textModel, 1, 1)

	text, err := client.Generate(context.Background(), Conversation("sys", "user"), Options{Role: domain.Critic})
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 2, textModel.calls)
}

func TestGenerateSurfacesServiceError(t *testing.T) {
	textModel := &fakeChatModel{errs: []error{errors.New("timeout"), errors.New("timeout again"), nil}}
	client := NewClientWithModels(&fakeChatModel{}, textModel, 1, 1)

	_, err := client.Generate(context.Background(), Conversation("sys", "user"), Options{Role: domain.Critic})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrServiceError))
	assert.Contains(t, err.Error(), "timeout again")
	assert.Equal(t, 2, textModel.calls, "只重试一次")
}

func TestGenerateCanceledContext(t *testing.T) {
	textModel := &fakeChatModel{replies: []string{"x"}}
	client := NewClientWithModels(&fakeChatModel{}, textModel, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Generate(ctx, Conversation("sys", "user"), Options{Role: domain.Critic})
	assert.True(t, errors.Is(err, domain.ErrServiceError))
	assert.Equal(t, 0, textModel.calls)
}

func TestCompleteInto(t *testing.T) {
	jsonModel := &fakeChatModel{replies: []string{`{"title":"Acta","next_meeting":["a"]}`, `{"title": {"nested": true}}`}}
	client := NewClientWithModels(jsonModel, &fakeChatModel{}, 0, 1)

	var out struct {
		Title       string   `json:"title"`
		NextMeeting []string `json:"next_meeting"`
	}
	require.NoError(t, client.CompleteInto(context.Background(), Conversation("s", "u"), Options{Role: domain.Drafter}, &out))
	assert.Equal(t, "Acta", out.Title)
	assert.Equal(t, []string{"a"}, out.NextMeeting)

	err := client.CompleteInto(context.Background(), Conversation("s", "u"), Options{Role: domain.Drafter}, &out)
	assert.True(t, errors.Is(err, domain.ErrMalformedModelOutput))
}

func requestCount(role domain.WriterName, outcome string) float64 {
	return testutil.ToFloat64(metrics.LLMRequests.WithLabelValues(string(role), outcome))
}

func TestRequestsCountOneOutcomePerCall(t *testing.T) {
	role := domain.WriterName("OutcomeCount")
	opts := Options{Role: role}
	ctx := context.Background()

	jsonModel := &fakeChatModel{replies: []string{"not json", `{"title":"ok"}`, `{"title": {"nested": true}}`}}
	textModel := &fakeChatModel{errs: []error{errors.New("502"), nil, errors.New("timeout"), errors.New("timeout")}, replies: []string{"", "None"}}
	client := NewClientWithModels(jsonModel, textModel, 1, 1)

	_, err := client.Complete(ctx, Conversation("s", "u"), opts)
	require.Error(t, err)
	assert.Equal(t, float64(0), requestCount(role, "ok"), "格式错误的回复不计为 ok")
	assert.Equal(t, float64(1), requestCount(role, "malformed"))

	_, err = client.Complete(ctx, Conversation("s", "u"), opts)
	require.NoError(t, err)
	assert.Equal(t, float64(1), requestCount(role, "ok"))

	var out struct {
		Title string `json:"title"`
	}
	err = client.CompleteInto(ctx, Conversation("s", "u"), opts, &out)
	assert.True(t, errors.Is(err, domain.ErrMalformedModelOutput))
	assert.Equal(t, float64(1), requestCount(role, "ok"))
	assert.Equal(t, float64(2), requestCount(role, "malformed"))

	// 重试后成功只计一次 ok
	_, err = client.Generate(ctx, Conversation("s", "u"), opts)
	require.NoError(t, err)
	assert.Equal(t, float64(2), requestCount(role, "ok"))
	assert.Equal(t, float64(0), requestCount(role, "error"))

	_, err = client.Generate(ctx, Conversation("s", "u"), opts)
	require.Error(t, err)
	assert.Equal(t, float64(1), requestCount(role, "error"), "重试耗尽只计一次 error")
}
