package drafter

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/weibaohui/minutesagent/backend/config"
	"github.com/weibaohui/minutesagent/backend/internal/domain"
	"github.com/weibaohui/minutesagent/backend/internal/model"
	"github.com/weibaohui/minutesagent/backend/internal/pkg/llm"
	"github.com/weibaohui/minutesagent/backend/internal/utils"
	"k8s.io/klog/v2"
)

// Path 撰写分支
type Path string

const (
	PathDraft  Path = "draft"
	PathRevise Path = "revise"
)

// Completer 以 JSON 模式调用文本生成服务
type Completer interface {
	CompleteInto(ctx context.Context, messages []*schema.Message, opts llm.Options, out any) error
}

// Drafter 撰写或修订会议纪要
type Drafter struct {
	llm         Completer
	language    string
	temperature float32
	now         func() time.Time
}

func New(cfg *config.Config, client Completer) *Drafter {
	return &Drafter{
		llm:         client,
		language:    cfg.Minutes.Language,
		temperature: cfg.LLM.WriterTemperature,
		now:         time.Now,
	}
}

func (d *Drafter) Name() domain.WriterName {
	return domain.Drafter
}

// Dispatch 有待处理的评审意见时走修订分支，否则重新撰写
func Dispatch(doc *model.Minutes) Path {
	if doc.Critique != nil {
		return PathRevise
	}
	return PathDraft
}

// Run 根据评审意见选择撰写或修订，并把结果合并回 doc
func (d *Drafter) Run(ctx context.Context, doc *model.Minutes) (*model.Minutes, error) {
	path := Dispatch(doc)
	klog.V(6).Infof("[%s] 开始处理: path=%s, words=%d", d.Name(), path, doc.Words)

	var (
		fields *model.Fields
		err    error
	)
	switch path {
	case PathRevise:
		fields, err = d.Revise(ctx, doc, *doc.Critique)
	default:
		fields, err = d.Draft(ctx, doc.Source, doc.Words)
	}
	if err != nil {
		return nil, err
	}

	doc.Merge(fields)
	return doc, nil
}

// Draft 根据源文本生成完整纪要
func (d *Drafter) Draft(ctx context.Context, source string, words int) (*model.Fields, error) {
	messages := llm.Conversation(
		fmt.Sprintf(draftSystemPrompt, fieldGuide, d.language),
		fmt.Sprintf(draftUserPrompt, d.now().Format("02/01/2006"), source, words),
	)

	var fields model.Fields
	if err := d.llm.CompleteInto(ctx, messages, d.options(PathDraft), &fields); err != nil {
		klog.Errorf("[%s] 撰写失败: %v", d.Name(), err)
		return nil, fmt.Errorf("draft minutes: %w", err)
	}
	fields.Normalize()

	klog.V(6).Infof("[%s] 撰写完成: title=%s, attendees=%d, tasks=%d", d.Name(), fields.Title, len(fields.Attendees), len(fields.Tasks))
	return &fields, nil
}

// Revise 根据评审意见修订纪要，返回修订后的字段和新的 message
func (d *Drafter) Revise(ctx context.Context, doc *model.Minutes, critique string) (*model.Fields, error) {
	article := *doc
	article.Critique = &critique

	messages := llm.Conversation(
		fmt.Sprintf(reviseSystemPrompt, d.language, d.language),
		fmt.Sprintf(reviseUserPrompt, utils.ToJSON(&article), fieldGuide),
	)

	var fields model.Fields
	if err := d.llm.CompleteInto(ctx, messages, d.options(PathRevise), &fields); err != nil {
		klog.Errorf("[%s] 修订失败: %v", d.Name(), err)
		return nil, fmt.Errorf("revise minutes: %w", err)
	}
	fields.Normalize()

	klog.V(6).Infof("[%s] 修订完成: title=%s, message=%v", d.Name(), fields.Title, fields.Message != nil)
	return &fields, nil
}

func (d *Drafter) options(path Path) llm.Options {
	opts := llm.Options{
		Role:        d.Name(),
		JSON:        true,
		Temperature: llm.Temperature(d.temperature),
		Schema:      draftSchema,
	}
	if path == PathRevise {
		opts.Schema = reviseSchema
	}
	return opts
}
