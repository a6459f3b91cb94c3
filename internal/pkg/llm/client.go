package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/weibaohui/minutesagent/backend/config"
	"github.com/weibaohui/minutesagent/backend/internal/domain"
	"github.com/weibaohui/minutesagent/backend/internal/pkg/metrics"
	"github.com/weibaohui/minutesagent/backend/internal/utils"
	"golang.org/x/sync/semaphore"
	"k8s.io/klog/v2"
)

// Client 文本生成服务客户端
// 每次调用无状态，进程内只共享并发信号量
type Client struct {
	jsonModel  model.BaseChatModel // JSON 对象输出模式
	textModel  model.BaseChatModel // 纯文本输出模式
	maxRetries int
	sem        *semaphore.Weighted
}

// NewClient 根据配置创建 OpenAI 兼容的 ChatModel
func NewClient(cfg *config.Config) (*Client, error) {
	jsonModel, err := newChatModel(cfg, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	})
	if err != nil {
		return nil, err
	}
	textModel, err := newChatModel(cfg, nil)
	if err != nil {
		return nil, err
	}
	return NewClientWithModels(jsonModel, textModel, cfg.LLM.MaxRetries, cfg.LLM.MaxConcurrency), nil
}

// NewClientWithModels 使用给定模型创建客户端
func NewClientWithModels(jsonModel, textModel model.BaseChatModel, maxRetries, maxConcurrency int) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Client{
		jsonModel:  jsonModel,
		textModel:  textModel,
		maxRetries: maxRetries,
		sem:        semaphore.NewWeighted(int64(maxConcurrency)),
	}
}

func newChatModel(cfg *config.Config, format *openai.ChatCompletionResponseFormat) (*openai.ChatModel, error) {
	modelConfig := &openai.ChatModelConfig{
		BaseURL:        cfg.LLM.APIURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		Timeout:        cfg.LLM.Timeout,
		ResponseFormat: format,
	}
	if cfg.LLM.MaxTokens > 0 {
		maxTokens := cfg.LLM.MaxTokens
		modelConfig.MaxTokens = &maxTokens
	}

	chatModel, err := openai.NewChatModel(context.Background(), modelConfig)
	if err != nil {
		klog.Errorf("[LLMClient] 创建 ChatModel 失败: %v", err)
		return nil, err
	}

	klog.V(6).Infof("[LLMClient] ChatModel 创建成功: model=%s, json=%v", cfg.LLM.Model, format != nil)
	return chatModel, nil
}

// Generate 返回模型的原始文本回复
func (c *Client) Generate(ctx context.Context, messages []*schema.Message, opts Options) (string, error) {
	text, err := c.generate(ctx, messages, opts)
	observe(opts.Role, err)
	return text, err
}

// generate 调用模型并按配置重试服务错误，只记录耗时，结果由调用方计数
func (c *Client) generate(ctx context.Context, messages []*schema.Message, opts Options) (string, error) {
	m := c.textModel
	if opts.JSON {
		m = c.jsonModel
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrServiceError, err)
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrServiceError, err)
	}
	defer c.sem.Release(1)

	var modelOpts []model.Option
	if opts.Temperature != nil {
		modelOpts = append(modelOpts, model.WithTemperature(*opts.Temperature))
	}

	klog.V(6).Infof("[LLMClient] Generate 请求: role=%s, messages=%d, json=%v", opts.Role, len(messages), opts.JSON)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		start := time.Now()
		resp, err := m.Generate(ctx, messages, modelOpts...)
		metrics.LLMDuration.WithLabelValues(string(opts.Role)).Observe(time.Since(start).Seconds())
		if err == nil && resp == nil {
			err = errors.New("empty response")
		}
		if err == nil {
			klog.V(6).Infof("[LLMClient] Generate 完成: role=%s, attempt=%d, responseLength=%d", opts.Role, attempt+1, len(resp.Content))
			return resp.Content, nil
		}

		klog.Warningf("[LLMClient] Generate 失败: role=%s, attempt=%d/%d, err=%v", opts.Role, attempt+1, c.maxRetries+1, err)
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return "", fmt.Errorf("%w: %v", domain.ErrServiceError, lastErr)
}

// Complete 以 JSON 模式调用模型并解析为 JSON 对象
// 去除首尾围栏后仍不是合法 JSON 对象或不满足 Schema 时返回 ErrMalformedModelOutput，不重试
func (c *Client) Complete(ctx context.Context, messages []*schema.Message, opts Options) (map[string]any, error) {
	obj, err := c.complete(ctx, messages, opts)
	observe(opts.Role, err)
	return obj, err
}

// CompleteInto 与 Complete 相同，结果解码到 out
func (c *Client) CompleteInto(ctx context.Context, messages []*schema.Message, opts Options, out any) error {
	err := c.completeInto(ctx, messages, opts, out)
	observe(opts.Role, err)
	return err
}

func (c *Client) complete(ctx context.Context, messages []*schema.Message, opts Options) (map[string]any, error) {
	opts.JSON = true
	text, err := c.generate(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	return decodeObject(text, opts)
}

func (c *Client) completeInto(ctx context.Context, messages []*schema.Message, opts Options, out any) error {
	obj, err := c.complete(ctx, messages, opts)
	if err != nil {
		return err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedModelOutput, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedModelOutput, err)
	}
	return nil
}

// observe 每次调用只记录一个最终结果：ok、malformed 或 error
func observe(role domain.WriterName, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, domain.ErrMalformedModelOutput):
		outcome = "malformed"
	case err != nil:
		outcome = "error"
	}
	metrics.LLMRequests.WithLabelValues(string(role), outcome).Inc()
}

func decodeObject(text string, opts Options) (map[string]any, error) {
	cleaned := utils.StripCodeFence(text)

	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		klog.Errorf("[LLMClient] 模型返回不是合法 JSON: role=%s, err=%v", opts.Role, err)
		klog.V(8).Infof("[LLMClient] 原始回复: %s", text)
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedModelOutput, err)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON object, got %T", domain.ErrMalformedModelOutput, v)
	}

	if opts.Schema != nil {
		if err := opts.Schema.Validate(v); err != nil {
			klog.Errorf("[LLMClient] 模型返回不满足 Schema: role=%s, err=%v", opts.Role, err)
			return nil, fmt.Errorf("%w: json does not match schema: %v", domain.ErrMalformedModelOutput, err)
		}
	}

	return obj, nil
}
