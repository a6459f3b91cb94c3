package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weibaohui/minutesagent/backend/config"
	"github.com/weibaohui/minutesagent/backend/internal/domain"
	"github.com/weibaohui/minutesagent/backend/internal/model"
	"github.com/weibaohui/minutesagent/backend/internal/pkg/extractor"
	"github.com/weibaohui/minutesagent/backend/internal/pkg/llm"
	"github.com/weibaohui/minutesagent/backend/internal/service/critic"
	"github.com/weibaohui/minutesagent/backend/internal/service/drafter"
	"github.com/weibaohui/minutesagent/backend/internal/service/statemachine"
)

type fakeReviewer struct {
	verdict critic.Verdict
	err     error
	calls   int
	seen    model.Minutes
}

func (f *fakeReviewer) Review(ctx context.Context, doc *model.Minutes) (critic.Verdict, error) {
	f.calls++
	f.seen = *doc
	return f.verdict, f.err
}

type fakeWriter struct {
	fields      model.Fields
	err         error
	runCalls    int
	reviseCalls int
	paths       []drafter.Path
	revised     model.Minutes
}

func (f *fakeWriter) Run(ctx context.Context, doc *model.Minutes) (*model.Minutes, error) {
	f.runCalls++
	f.paths = append(f.paths, drafter.Dispatch(doc))
	if f.err != nil {
		return nil, f.err
	}
	fields := f.fields
	doc.Merge(&fields)
	return doc, nil
}

func (f *fakeWriter) Revise(ctx context.Context, doc *model.Minutes, critique string) (*model.Fields, error) {
	f.reviseCalls++
	f.revised = *doc
	if f.err != nil {
		return nil, f.err
	}
	fields := f.fields
	return &fields, nil
}

type fakeJournal struct {
	runs []*model.Run
	err  error
}

func (f *fakeJournal) Create(ctx context.Context, run *model.Run) error {
	f.runs = append(f.runs, run)
	return f.err
}

func ptr(s string) *string { return &s }

func sampleFields() model.Fields {
	return model.Fields{
		Title:       "Reunión del comité",
		Date:        "12/03/2025",
		Attendees:   []model.Attendee{{Name: "Ana", Position: "Directora", Role: "Moderadora"}},
		Summary:     "Uno. Dos. Tres.",
		Takeaways:   []string{"Se aprobó el presupuesto"},
		Conclusions: []string{"Enviar informe"},
		NextMeeting: []string{"Enviar informe"},
		Tasks:       []model.Task{{Responsible: "Ana", Date: "viernes", Description: "Enviar informe al comité"}},
	}
}

func newTestOrchestrator(r Reviewer, w Writer, opts ...Option) *Orchestrator {
	return New(config.Default(), extractor.New(), r, w, opts...)
}

func TestProcessApprovedDrafts(t *testing.T) {
	reviewer := &fakeReviewer{}
	writer := &fakeWriter{fields: sampleFields()}
	o := newTestOrchestrator(reviewer, writer)

	res := o.Process(context.Background(), Upload{Filename: "minutes.txt", Content: []byte("Orden del día: presupuesto"), Words: 300})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Minutes)

	assert.Equal(t, "Orden del día: presupuesto", res.Minutes.Source)
	assert.Equal(t, 300, res.Minutes.Words)
	assert.Nil(t, res.Minutes.Critique)
	assert.Equal(t, "Reunión del comité", res.Minutes.Title)

	assert.Equal(t, 1, reviewer.calls)
	assert.Empty(t, reviewer.seen.Title, "评审对象是刚提取的记录")
	assert.Equal(t, []drafter.Path{drafter.PathDraft}, writer.paths)
	assert.Equal(t, []statemachine.PipelineState{
		statemachine.StateReceived, statemachine.StateExtracted, statemachine.StateCritiqued,
		statemachine.StateDrafted, statemachine.StateDone,
	}, res.States)
	assert.NotEmpty(t, res.RunID)
}

func TestProcessCritiqueRevises(t *testing.T) {
	reviewer := &fakeReviewer{verdict: critic.Verdict{Critique: ptr("Nombrar al ponente"), ResetMessage: true}}
	writer := &fakeWriter{fields: sampleFields()}
	o := newTestOrchestrator(reviewer, writer)

	res := o.Process(context.Background(), Upload{Filename: "minutes.txt", Content: []byte("agenda")})
	require.NoError(t, res.Err)

	require.NotNil(t, res.Minutes.Critique)
	assert.Equal(t, "Nombrar al ponente", *res.Minutes.Critique)
	assert.Equal(t, []drafter.Path{drafter.PathRevise}, writer.paths)
	assert.Equal(t, 1, reviewer.calls, "每次请求只评审一次")
	assert.Equal(t, 1, writer.runCalls)
	assert.Contains(t, res.States, statemachine.StateRevised)
	assert.NotContains(t, res.States, statemachine.StateDrafted)
}

func TestProcessDefaultWords(t *testing.T) {
	writer := &fakeWriter{fields: sampleFields()}
	o := newTestOrchestrator(&fakeReviewer{}, writer)

	for _, words := range []int{0, -10} {
		res := o.Process(context.Background(), Upload{Filename: "a.txt", Content: []byte("x"), Words: words})
		require.NoError(t, res.Err)
		assert.Equal(t, 500, res.Minutes.Words)
	}
}

func TestProcessUnsupportedFormat(t *testing.T) {
	reviewer := &fakeReviewer{}
	writer := &fakeWriter{}
	journal := &fakeJournal{}
	o := newTestOrchestrator(reviewer, writer, WithJournal(journal))

	res := o.Process(context.Background(), Upload{Filename: "minutes.docx", Content: []byte("PK")})
	require.Error(t, res.Err)
	assert.True(t, errors.Is(res.Err, domain.ErrUnsupportedFormat))
	assert.Contains(t, res.Err.Error(), "Unsupported file format")
	assert.Nil(t, res.Minutes, "失败时不返回部分纪要")
	assert.Equal(t, 0, reviewer.calls)
	assert.Equal(t, 0, writer.runCalls)
	assert.Equal(t, statemachine.StateFailed, res.States[len(res.States)-1])

	require.Len(t, journal.runs, 1)
	assert.Equal(t, "failed", journal.runs[0].State)
	assert.Equal(t, "unsupported_format", journal.runs[0].ErrorKind)
}

func TestProcessStageErrors(t *testing.T) {
	cases := []struct {
		name     string
		reviewer *fakeReviewer
		writer   *fakeWriter
		want     error
	}{
		{"critic", &fakeReviewer{err: domain.ErrServiceError}, &fakeWriter{}, domain.ErrServiceError},
		{"drafter", &fakeReviewer{}, &fakeWriter{err: domain.ErrMalformedModelOutput}, domain.ErrMalformedModelOutput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := newTestOrchestrator(tc.reviewer, tc.writer).Process(context.Background(), Upload{Filename: "a.txt", Content: []byte("x")})
			assert.True(t, errors.Is(res.Err, tc.want))
			assert.Nil(t, res.Minutes)
			assert.Equal(t, statemachine.StateFailed, res.States[len(res.States)-1])
		})
	}
}

func TestProcessJournalsMetadataOnly(t *testing.T) {
	journal := &fakeJournal{err: errors.New("disk full")}
	reviewer := &fakeReviewer{verdict: critic.Verdict{Critique: ptr("falta"), ResetMessage: true}}
	o := newTestOrchestrator(reviewer, &fakeWriter{fields: sampleFields()}, WithJournal(journal))

	res := o.ProcessWithID(context.Background(), "run-1", Upload{Filename: "a.txt", Content: []byte("texto confidencial"), Words: 200})
	require.NoError(t, res.Err, "运行记录写入失败不影响请求")
	assert.Equal(t, "run-1", res.RunID)

	require.Len(t, journal.runs, 1)
	r := journal.runs[0]
	assert.Equal(t, "run-1", r.ID)
	assert.Equal(t, model.RunKindGenerate, r.Kind)
	assert.Equal(t, "done", r.State)
	assert.Equal(t, "revise", r.Path)
	assert.True(t, r.Critiqued)
	assert.Equal(t, 200, r.Words)

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "texto confidencial")
}

func TestProcessCritiqueEndpoint(t *testing.T) {
	reviewer := &fakeReviewer{}
	fields := sampleFields()
	fields.Message = ptr("Añadí el nombre del ponente.")
	writer := &fakeWriter{fields: fields}
	journal := &fakeJournal{}
	o := newTestOrchestrator(reviewer, writer, WithJournal(journal))

	prior := &model.Minutes{Source: "viejo", Words: 300, Title: "Borrador"}
	got, err := o.ProcessCritique(context.Background(), Upload{Filename: "a.txt", Content: []byte("nuevo texto")},
		prior, "Add the mover's name to the second motion.")
	require.NoError(t, err)

	require.NotNil(t, got.Message)
	assert.Equal(t, "Añadí el nombre del ponente.", *got.Message)
	assert.Equal(t, 0, reviewer.calls, "修订入口不再评审")
	assert.Equal(t, 1, writer.reviseCalls)
	assert.Equal(t, 0, writer.runCalls)
	assert.Equal(t, "nuevo texto", writer.revised.Source)
	require.NotNil(t, writer.revised.Critique)
	assert.Equal(t, "Add the mover's name to the second motion.", *writer.revised.Critique)
	assert.Equal(t, "viejo", prior.Source, "不修改调用方的记录")

	require.Len(t, journal.runs, 1)
	assert.Equal(t, model.RunKindRevise, journal.runs[0].Kind)
	assert.Equal(t, "done", journal.runs[0].State)
}

func TestProcessCritiqueErrors(t *testing.T) {
	o := newTestOrchestrator(&fakeReviewer{}, &fakeWriter{})
	_, err := o.ProcessCritique(context.Background(), Upload{Filename: "a.docx"}, &model.Minutes{}, "x")
	assert.True(t, errors.Is(err, domain.ErrUnsupportedFormat))

	_, err = o.ProcessCritique(context.Background(), Upload{Filename: "a.txt"}, nil, "x")
	assert.Error(t, err)

	o = newTestOrchestrator(&fakeReviewer{}, &fakeWriter{err: domain.ErrServiceError})
	_, err = o.ProcessCritique(context.Background(), Upload{Filename: "a.txt", Content: []byte("x")}, &model.Minutes{}, "x")
	assert.True(t, errors.Is(err, domain.ErrServiceError))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ñañ...", truncate("ñañañañaña", 6))
}

// scriptedLLM 同时实现纯文本和 JSON 模式调用，按角色返回固定内容
type scriptedLLM struct {
	critique string
	draft    string
	prompts  []string
}

func (s *scriptedLLM) Generate(ctx context.Context, messages []*schema.Message, opts llm.Options) (string, error) {
	s.prompts = append(s.prompts, messages[1].Content)
	return s.critique, nil
}

func (s *scriptedLLM) CompleteInto(ctx context.Context, messages []*schema.Message, opts llm.Options, out any) error {
	s.prompts = append(s.prompts, messages[1].Content)
	return json.Unmarshal([]byte(s.draft), out)
}

func TestProcessWiredPipeline(t *testing.T) {
	cfg := config.Default()
	script := &scriptedLLM{
		critique: "None",
		draft: `{"title":"Agenda","date":"12/03/2025","attendees":[],"summary":"a","takeaways":[],
			"conclusions":[],"next_meeting":["Revisar cuentas"],"tasks":[],"message":null}`,
	}
	o := New(cfg, extractor.New(), critic.New(cfg, script), drafter.New(cfg, script))

	res := o.Process(context.Background(), Upload{Filename: "minutes.txt", Content: []byte("Punto único: cuentas"), Words: 300})
	require.NoError(t, res.Err)
	assert.Equal(t, "Punto único: cuentas", res.Minutes.Source)
	assert.Equal(t, 300, res.Minutes.Words)
	assert.Nil(t, res.Minutes.Critique)
	assert.Equal(t, "Agenda", res.Minutes.Title)

	require.Len(t, script.prompts, 2)
	assert.False(t, strings.Contains(script.prompts[0], "Punto único"), "评审不看源文本")
	assert.Contains(t, script.prompts[1], "Punto único: cuentas")
	assert.Equal(t, []string{"Revisar cuentas"}, res.Minutes.MissingTasks())
}
