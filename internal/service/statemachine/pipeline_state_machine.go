package statemachine

import (
	"fmt"

	"k8s.io/klog/v2"
)

// PipelineState 纪要生成流水线的状态
type PipelineState string

const (
	StateReceived  PipelineState = "received"  // 收到上传文件
	StateExtracted PipelineState = "extracted" // 文本已提取
	StateCritiqued PipelineState = "critiqued" // 已完成唯一一次评审
	StateDrafted   PipelineState = "drafted"   // 无评审意见，重新撰写
	StateRevised   PipelineState = "revised"   // 按评审意见修订
	StateDone      PipelineState = "done"
	StateFailed    PipelineState = "failed"
)

// PipelineTransition 定义状态迁移
type PipelineTransition struct {
	From PipelineState
	To   PipelineState
}

// PipelineStateMachine 流水线状态机
// 迁移表中没有回到 critiqued 的路径，每次请求最多一轮评审-修订
type PipelineStateMachine struct {
	allowedTransitions map[PipelineTransition]bool
}

// NewPipelineStateMachine 创建流水线状态机
func NewPipelineStateMachine() *PipelineStateMachine {
	sm := &PipelineStateMachine{
		allowedTransitions: make(map[PipelineTransition]bool),
	}

	// received -> extracted -> critiqued -> drafted/revised -> done
	// 任意非终止态 -> failed
	transitions := []PipelineTransition{
		{StateReceived, StateExtracted},
		{StateExtracted, StateCritiqued},
		{StateCritiqued, StateDrafted},
		{StateCritiqued, StateRevised},
		{StateDrafted, StateDone},
		{StateRevised, StateDone},

		// 修订入口跳过评审：extracted -> revised
		{StateExtracted, StateRevised},
	}
	for _, s := range []PipelineState{StateReceived, StateExtracted, StateCritiqued, StateDrafted, StateRevised} {
		transitions = append(transitions, PipelineTransition{s, StateFailed})
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}

	return sm
}

// CanTransition 检查状态迁移是否合法
func (sm *PipelineStateMachine) CanTransition(from, to PipelineState) bool {
	if from == to {
		return false
	}
	return sm.allowedTransitions[PipelineTransition{From: from, To: to}]
}

// ValidateTransition 验证状态迁移并返回错误
func (sm *PipelineStateMachine) ValidateTransition(from, to PipelineState) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{
			From: string(from),
			To:   string(to),
		}
	}
	return nil
}

// Run 单次请求的状态跟踪，只由处理该请求的 goroutine 使用
type Run struct {
	ID      string
	sm      *PipelineStateMachine
	state   PipelineState
	history []PipelineState
}

// NewRun 从 received 开始跟踪一次执行
func (sm *PipelineStateMachine) NewRun(id string) *Run {
	return &Run{
		ID:      id,
		sm:      sm,
		state:   StateReceived,
		history: []PipelineState{StateReceived},
	}
}

// State 当前状态
func (r *Run) State() PipelineState {
	return r.state
}

// History 经过的全部状态
func (r *Run) History() []PipelineState {
	out := make([]PipelineState, len(r.history))
	copy(out, r.history)
	return out
}

// Transition 执行状态迁移（带日志）
func (r *Run) Transition(to PipelineState) error {
	if err := r.sm.ValidateTransition(r.state, to); err != nil {
		klog.V(6).Infof("流水线状态迁移被拒绝: runID=%s, %s -> %s, error=%v", r.ID, r.state, to, err)
		return err
	}

	klog.V(6).Infof("流水线状态迁移成功: runID=%s, %s -> %s", r.ID, r.state, to)
	r.state = to
	r.history = append(r.history, to)
	return nil
}

// Fail 迁移到 failed；已处于终止态时不做任何事
func (r *Run) Fail() {
	if IsTerminal(r.state) {
		return
	}
	_ = r.Transition(StateFailed)
}

// InvalidStateTransitionError 无效的状态迁移错误
type InvalidStateTransitionError struct {
	From string
	To   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid pipeline state transition: %s -> %s", e.From, e.To)
}

// IsTerminal 判断状态是否为终止态（不能再迁移）
func IsTerminal(state PipelineState) bool {
	return state == StateDone || state == StateFailed
}
