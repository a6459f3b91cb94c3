package critic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/weibaohui/minutesagent/backend/config"
	"github.com/weibaohui/minutesagent/backend/internal/domain"
	"github.com/weibaohui/minutesagent/backend/internal/model"
	"github.com/weibaohui/minutesagent/backend/internal/pkg/llm"
	"github.com/weibaohui/minutesagent/backend/internal/pkg/metrics"
	"github.com/weibaohui/minutesagent/backend/internal/utils"
	"k8s.io/klog/v2"
)

// approvedToken 模型认为纪要无需修改时返回的字面量
const approvedToken = "None"

const systemPrompt = "You are critical of meeting minutes. Its sole purpose is to provide brief feedback on meeting minutes so the writer knows what to fix.\n" +
	"Respond in %s."

const userPrompt = "Today's date is %s.\n" +
	"%s\n" +
	"Your task is to provide feedback on the meeting minutes only if necessary.\n" +
	"Be sure that names are given for split votes and for debate.\n" +
	"The maker of each motion should be named.\n" +
	"If you think the meeting minutes are good, please return only the word 'None' without the surrounding hash marks.\n" +
	"Do NOT return any text except the word 'None' without surrounding hash marks if no further work is needed on the article.\n"

const revisedNote = "The field 'message' in the meeting minutes means the writer has revised the meeting minutes based on your previous critique. The writer may have explained in the message why some of your critique could not be accommodated. For example, something you asked for is not available information.\n" +
	"You can provide feedback on the revised meeting minutes or return only the word 'None' without surrounding hash marks if you think the article is good."

// omitWhenEmpty 尚未撰写或为空的字段不发送给模型
var omitWhenEmpty = []string{"title", "date", "attendees", "summary", "takeaways", "conclusions", "next_meeting", "tasks", "critique", "message"}

// Generator 以纯文本模式调用文本生成服务
type Generator interface {
	Generate(ctx context.Context, messages []*schema.Message, opts llm.Options) (string, error)
}

// Verdict 评审结论；Critique 为 nil 表示通过
type Verdict struct {
	Critique     *string
	ResetMessage bool // 新一轮修订开始，清空撰写方的 message
}

// Approved 是否通过
func (v Verdict) Approved() bool {
	return v.Critique == nil
}

// Apply 把评审结论写入纪要
func (v Verdict) Apply(doc *model.Minutes) {
	doc.Critique = v.Critique
	if v.ResetMessage {
		doc.Message = nil
	}
}

type Critic struct {
	llm         Generator
	language    string
	temperature float32
	now         func() time.Time
}

func New(cfg *config.Config, client Generator) *Critic {
	return &Critic{
		llm:         client,
		language:    cfg.Minutes.Language,
		temperature: cfg.LLM.CriticTemperature,
		now:         time.Now,
	}
}

func (c *Critic) Name() domain.WriterName {
	return domain.Critic
}

// Review 评审一次纪要，只调用一次模型
// 发送给模型的内容不包含 source 字段
func (c *Critic) Review(ctx context.Context, doc *model.Minutes) (Verdict, error) {
	article, err := utils.DropKeys(doc, []string{"source"}, omitWhenEmpty)
	if err != nil {
		return Verdict{}, fmt.Errorf("encode minutes for review: %w", err)
	}

	prompt := fmt.Sprintf(userPrompt, c.now().Format("02/01/2006"), utils.ToJSON(article))
	if doc.Message != nil {
		prompt += revisedNote
	}

	klog.V(6).Infof("[%s] 开始评审: revised=%v", c.Name(), doc.Message != nil)

	reply, err := c.llm.Generate(ctx, llm.Conversation(fmt.Sprintf(systemPrompt, c.language), prompt), llm.Options{
		Role:        c.Name(),
		Temperature: llm.Temperature(c.temperature),
	})
	if err != nil {
		klog.Errorf("[%s] 评审失败: %v", c.Name(), err)
		return Verdict{}, fmt.Errorf("review minutes: %w", err)
	}

	reply = strings.TrimSpace(reply)
	if reply == approvedToken {
		metrics.CritiqueVerdicts.WithLabelValues("approved").Inc()
		klog.V(6).Infof("[%s] 评审通过", c.Name())
		return Verdict{}, nil
	}

	metrics.CritiqueVerdicts.WithLabelValues("critique").Inc()
	klog.V(6).Infof("[%s] 评审意见: length=%d", c.Name(), len(reply))
	return Verdict{Critique: &reply, ResetMessage: true}, nil
}
