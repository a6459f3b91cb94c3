package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/weibaohui/minutesagent/backend/config"
	"github.com/weibaohui/minutesagent/backend/internal/domain"
	"github.com/weibaohui/minutesagent/backend/internal/model"
	"github.com/weibaohui/minutesagent/backend/internal/pkg/extractor"
	"github.com/weibaohui/minutesagent/backend/internal/pkg/metrics"
	"github.com/weibaohui/minutesagent/backend/internal/service/critic"
	"github.com/weibaohui/minutesagent/backend/internal/service/drafter"
	"github.com/weibaohui/minutesagent/backend/internal/service/statemachine"
	"k8s.io/klog/v2"
)

// -----------------------------
// 依赖接口
// -----------------------------

// TextExtractor 从上传文件中提取文本
type TextExtractor interface {
	Extract(ctx context.Context, content []byte, filename string) (*extractor.Result, error)
}

// Reviewer 评审纪要
type Reviewer interface {
	Review(ctx context.Context, doc *model.Minutes) (critic.Verdict, error)
}

// Writer 撰写或修订纪要
type Writer interface {
	Run(ctx context.Context, doc *model.Minutes) (*model.Minutes, error)
	Revise(ctx context.Context, doc *model.Minutes, critique string) (*model.Fields, error)
}

// RunJournal 运行记录存储，可为空
type RunJournal interface {
	Create(ctx context.Context, run *model.Run) error
}

// -----------------------------
// 请求与结果
// -----------------------------

// Upload 一次上传
type Upload struct {
	Filename string
	Content  []byte
	Words    int // <= 0 时使用默认值
}

// Result Process 的结果；Err 非空时 Minutes 为 nil
type Result struct {
	Minutes *model.Minutes
	Err     error
	RunID   string
	States  []statemachine.PipelineState
}

// -----------------------------
// Orchestrator
// -----------------------------

// Orchestrator 串联 提取 -> 评审 -> 撰写/修订
// 每个请求在调用方 goroutine 内顺序执行，实例本身无可变状态
type Orchestrator struct {
	extractor    TextExtractor
	critic       Reviewer
	drafter      Writer
	journal      RunJournal
	sm           *statemachine.PipelineStateMachine
	defaultWords int
	now          func() time.Time
}

// Option 可选配置
type Option func(*Orchestrator)

// WithJournal 打开运行记录
func WithJournal(j RunJournal) Option {
	return func(o *Orchestrator) {
		o.journal = j
	}
}

func New(cfg *config.Config, ext TextExtractor, c Reviewer, d Writer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor:    ext,
		critic:       c,
		drafter:      d,
		sm:           statemachine.NewPipelineStateMachine(),
		defaultWords: cfg.Minutes.DefaultWords,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewRunID 生成运行 ID
func NewRunID() string {
	return uuid.NewString()
}

// Process 主流程：提取文本，评审一次，然后撰写或修订
// 任何错误都放在 Result.Err 中返回，不返回部分纪要
func (o *Orchestrator) Process(ctx context.Context, upload Upload) *Result {
	return o.ProcessWithID(ctx, NewRunID(), upload)
}

// ProcessWithID 同 Process，使用调用方给定的运行 ID
func (o *Orchestrator) ProcessWithID(ctx context.Context, runID string, upload Upload) *Result {
	start := o.now()
	run := o.sm.NewRun(runID)
	record := &model.Run{
		ID:        runID,
		Kind:      model.RunKindGenerate,
		Filename:  upload.Filename,
		Words:     o.words(upload.Words),
		CreatedAt: start,
	}

	klog.V(6).Infof("[Orchestrator] 开始生成纪要: runID=%s, file=%s, words=%d", runID, upload.Filename, record.Words)

	doc, err := o.process(ctx, run, record, upload)
	o.finish(ctx, run, record, start, err)

	if err != nil {
		return &Result{Err: err, RunID: runID, States: run.History()}
	}
	return &Result{Minutes: doc, RunID: runID, States: run.History()}
}

func (o *Orchestrator) process(ctx context.Context, run *statemachine.Run, record *model.Run, upload Upload) (*model.Minutes, error) {
	extracted, err := o.extractor.Extract(ctx, upload.Content, upload.Filename)
	if err != nil {
		return nil, err
	}
	doc := &model.Minutes{Source: extracted.Text, Words: record.Words}
	if err := run.Transition(statemachine.StateExtracted); err != nil {
		return nil, err
	}

	// 评审发生在撰写之前，对象是刚提取的记录
	verdict, err := o.critic.Review(ctx, doc)
	if err != nil {
		return nil, err
	}
	verdict.Apply(doc)
	record.Critiqued = !verdict.Approved()
	if err := run.Transition(statemachine.StateCritiqued); err != nil {
		return nil, err
	}

	path := drafter.Dispatch(doc)
	record.Path = string(path)
	if _, err := o.drafter.Run(ctx, doc); err != nil {
		return nil, err
	}
	next := statemachine.StateDrafted
	if path == drafter.PathRevise {
		next = statemachine.StateRevised
	}
	if err := run.Transition(next); err != nil {
		return nil, err
	}

	o.checkTasks(run.ID, doc)

	if err := run.Transition(statemachine.StateDone); err != nil {
		return nil, err
	}
	return doc, nil
}

// ProcessCritique 修订入口：重新提取源文本，按给定评审意见修订 prior，不再评审
// 返回修订后的字段，错误原样返回
func (o *Orchestrator) ProcessCritique(ctx context.Context, upload Upload, prior *model.Minutes, critique string) (*model.Fields, error) {
	return o.ProcessCritiqueWithID(ctx, NewRunID(), upload, prior, critique)
}

// ProcessCritiqueWithID 同 ProcessCritique，使用调用方给定的运行 ID
func (o *Orchestrator) ProcessCritiqueWithID(ctx context.Context, runID string, upload Upload, prior *model.Minutes, critique string) (*model.Fields, error) {
	if prior == nil {
		return nil, errors.New("prior minutes is required")
	}

	start := o.now()
	run := o.sm.NewRun(runID)
	record := &model.Run{
		ID:        runID,
		Kind:      model.RunKindRevise,
		Filename:  upload.Filename,
		Words:     prior.Words,
		Path:      string(drafter.PathRevise),
		Critiqued: true,
		CreatedAt: start,
	}

	klog.V(6).Infof("[Orchestrator] 开始修订纪要: runID=%s, file=%s", runID, upload.Filename)

	fields, err := o.processCritique(ctx, run, upload, prior, critique)
	o.finish(ctx, run, record, start, err)
	return fields, err
}

func (o *Orchestrator) processCritique(ctx context.Context, run *statemachine.Run, upload Upload, prior *model.Minutes, critique string) (*model.Fields, error) {
	extracted, err := o.extractor.Extract(ctx, upload.Content, upload.Filename)
	if err != nil {
		return nil, err
	}
	if err := run.Transition(statemachine.StateExtracted); err != nil {
		return nil, err
	}

	doc := *prior
	doc.Source = extracted.Text
	doc.Critique = &critique
	if doc.Words <= 0 {
		doc.Words = o.defaultWords
	}

	fields, err := o.drafter.Revise(ctx, &doc, critique)
	if err != nil {
		return nil, err
	}
	if err := run.Transition(statemachine.StateRevised); err != nil {
		return nil, err
	}
	if err := run.Transition(statemachine.StateDone); err != nil {
		return nil, err
	}
	return fields, nil
}

// checkTasks 只记录 next_meeting 中没有对应任务的条目，不修改纪要
func (o *Orchestrator) checkTasks(runID string, doc *model.Minutes) {
	missing := doc.MissingTasks()
	if len(missing) == 0 {
		return
	}
	metrics.UntrackedCommitments.Add(float64(len(missing)))
	klog.Warningf("[Orchestrator] 存在未生成任务的后续事项: runID=%s, tasks=%d, next_meeting=%d, missing=%q",
		runID, len(doc.Tasks), len(doc.NextMeeting), missing)
}

// finish 记录最终状态、指标和运行记录
func (o *Orchestrator) finish(ctx context.Context, run *statemachine.Run, record *model.Run, start time.Time, err error) {
	if err != nil {
		run.Fail()
		record.ErrorKind = domain.Kind(err)
		record.ErrorMsg = truncate(err.Error(), 1000)
		klog.Errorf("[Orchestrator] 流程失败: runID=%s, kind=%s, error=%v", run.ID, record.ErrorKind, err)
	}
	record.State = string(run.State())
	record.DurationMS = o.now().Sub(start).Milliseconds()

	outcome := "success"
	if err != nil {
		outcome = record.ErrorKind
	}
	metrics.PipelineRuns.WithLabelValues(record.Kind, outcome).Inc()

	klog.V(6).Infof("[Orchestrator] 流程结束: runID=%s, kind=%s, state=%s, path=%s, duration=%dms",
		run.ID, record.Kind, record.State, record.Path, record.DurationMS)

	if o.journal == nil {
		return
	}
	// 请求被取消时仍然写入运行记录
	if jErr := o.journal.Create(context.WithoutCancel(ctx), record); jErr != nil {
		klog.Warningf("[Orchestrator] 写入运行记录失败: runID=%s, error=%v", run.ID, jErr)
	}
}

func (o *Orchestrator) words(words int) int {
	if words <= 0 {
		return o.defaultWords
	}
	return words
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return fmt.Sprintf("%s...", string(r[:n-3]))
}
