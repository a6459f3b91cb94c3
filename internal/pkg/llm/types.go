package llm

import (
	"github.com/cloudwego/eino/schema"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/weibaohui/minutesagent/backend/internal/domain"
)

// Options 单次调用的参数
type Options struct {
	Role        domain.WriterName  // 调用方角色，用于日志和指标
	JSON        bool               // 要求模型以 JSON 对象返回
	Temperature *float32           // 为空时使用模型默认值
	Schema      *jsonschema.Schema // 可选，校验返回的 JSON
}

// Temperature 返回温度参数指针
func Temperature(t float32) *float32 {
	return &t
}

// Conversation 构造 system + user 两条消息
func Conversation(systemPrompt, userPrompt string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	}
}

// MustCompileSchema 编译 JSON Schema，失败时 panic，仅用于包级变量
func MustCompileSchema(name, source string) *jsonschema.Schema {
	return jsonschema.MustCompileString(name, source)
}
