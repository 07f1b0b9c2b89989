package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/docsync-backend/internal/domain"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
	"github.com/yungbote/docsync-backend/internal/platform/openai"
	"github.com/yungbote/docsync-backend/internal/realtime"
)

type fakeAI struct {
	mu        sync.Mutex
	decisions []openai.ChatMessage
	decideErr error
	chunks    []string
	streamErr error
	requests  []openai.ChatRequest
	streams   int
}

func (f *fakeAI) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

func (f *fakeAI) ChatCompletion(_ context.Context, req openai.ChatRequest) (openai.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.decideErr != nil {
		return openai.ChatMessage{}, f.decideErr
	}
	if len(f.decisions) == 0 {
		return openai.ChatMessage{Role: openai.RoleAssistant}, nil
	}
	next := f.decisions[0]
	if len(f.decisions) > 1 {
		f.decisions = f.decisions[1:]
	}
	return next, nil
}

func (f *fakeAI) StreamChatCompletion(_ context.Context, _ openai.ChatRequest, onDelta func(string)) (string, error) {
	f.mu.Lock()
	f.streams++
	chunks := append([]string(nil), f.chunks...)
	f.mu.Unlock()
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c)
		onDelta(c)
	}
	return sb.String(), f.streamErr
}

func toolAnswer(name string) openai.ChatMessage {
	return openai.ChatMessage{
		Role: openai.RoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: openai.FunctionCall{Name: name, Arguments: `{"input":"because"}`},
		}},
	}
}

type recordingProgress struct {
	mu     sync.Mutex
	events []realtime.CandidateProgress
}

func (r *recordingProgress) PublishCandidateProgress(_ context.Context, p realtime.CandidateProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, p)
}

func newEngineInput() EvaluateInput {
	return EvaluateInput{
		ChangeID:  uuid.New(),
		Base:      &domain.TrackedFile{ID: uuid.New(), Name: "base.docx", Content: "<p>price 10</p>"},
		BaseDiff:  "<p>price <del>10</del><ins>12</ins></p>",
		Candidate: &domain.TrackedFile{ID: uuid.New(), ItemID: "cand", Name: "cand.docx", Content: "<p>Hello</p>"},
	}
}

func newTestEngine(t *testing.T, ai openai.Client, progress ProgressPublisher) *Engine {
	t.Helper()
	e, err := NewEngine(logger.Nop(), ai, "test-model", progress)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEvaluateYesStreamsAndUpdates(t *testing.T) {
	ai := &fakeAI{decisions: []openai.ChatMessage{toolAnswer(ToolAnswerYes)}, chunks: []string{"<p>Hello", " world</p>"}}
	progress := &recordingProgress{}
	e := newTestEngine(t, ai, progress)

	in := newEngineInput()
	d, err := e.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Status != StatusUpdated || d.Content != "<p>Hello world</p>" {
		t.Fatalf("decision: want updated/<p>Hello world</p> got=%s/%q", d.Status, d.Content)
	}
	if len(ai.requests) != 1 {
		t.Fatalf("decide calls: want=1 got=%d", len(ai.requests))
	}
	req := ai.requests[0]
	if req.Temperature == nil || *req.Temperature != 0.1 {
		t.Fatalf("decide temperature: want=0.1 got=%v", req.Temperature)
	}
	if len(req.Tools) != 2 || req.Tools[0].Function.Name != ToolAnswerYes || req.Tools[1].Function.Name != ToolAnswerNo {
		t.Fatalf("decide tools: got=%+v", req.Tools)
	}
	if !strings.Contains(req.Messages[1].Content, in.BaseDiff) || !strings.Contains(req.Messages[1].Content, `"base.docx"`) {
		t.Fatalf("document A message: got=%q", req.Messages[1].Content)
	}

	if len(progress.events) != 2 {
		t.Fatalf("progress events: want=2 got=%d", len(progress.events))
	}
	last := progress.events[len(progress.events)-1]
	if last.CandidateID != in.Candidate.ID || last.ChangeID != in.ChangeID {
		t.Fatalf("progress ids: got=%+v", last)
	}
	if !strings.Contains(last.Diff, "<ins> world</ins>") {
		t.Fatalf("final diff should cover the full text: got=%q", last.Diff)
	}
}

func TestEvaluateNoSkipsWithoutGenerating(t *testing.T) {
	ai := &fakeAI{decisions: []openai.ChatMessage{toolAnswer(ToolAnswerNo)}, chunks: []string{"x"}}
	e := newTestEngine(t, ai, nil)

	d, err := e.Evaluate(context.Background(), newEngineInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Status != StatusSkipped {
		t.Fatalf("status: want=skipped got=%s", d.Status)
	}
	if ai.streams != 0 {
		t.Fatalf("streams: want=0 got=%d", ai.streams)
	}
}

func TestEvaluateRetriesOnceWhenNoToolCalled(t *testing.T) {
	ai := &fakeAI{
		decisions: []openai.ChatMessage{
			{Role: openai.RoleAssistant, Content: "I think yes"},
			toolAnswer(ToolAnswerYes),
		},
		chunks: []string{"<p>merged</p>"},
	}
	e := newTestEngine(t, ai, nil)

	d, err := e.Evaluate(context.Background(), newEngineInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Status != StatusUpdated {
		t.Fatalf("status: want=updated got=%s", d.Status)
	}
	if len(ai.requests) != 2 {
		t.Fatalf("decide calls: want=2 got=%d", len(ai.requests))
	}
	retry := ai.requests[1].Messages
	if n := len(retry); n != 5 {
		t.Fatalf("retry messages: want=5 got=%d", n)
	}
	if retry[3].Role != openai.RoleAssistant || retry[3].Content != "I think yes" {
		t.Fatalf("retry assistant echo: got=%+v", retry[3])
	}
	want := "You did not call any function. Please call a function. Possible functions are: answer_no or answer_yes"
	if retry[4].Role != openai.RoleSystem || retry[4].Content != want {
		t.Fatalf("retry correction: want=%q got=%q", want, retry[4].Content)
	}
}

func TestEvaluateUnknownToolRetryThenSkip(t *testing.T) {
	ai := &fakeAI{
		decisions: []openai.ChatMessage{toolAnswer("maybe"), toolAnswer("maybe")},
		chunks:    []string{"x"},
	}
	e := newTestEngine(t, ai, nil)

	d, err := e.Evaluate(context.Background(), newEngineInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Status != StatusSkipped {
		t.Fatalf("status: want=skipped got=%s", d.Status)
	}
	if len(ai.requests) != 2 {
		t.Fatalf("decide calls: want=2 (one retry) got=%d", len(ai.requests))
	}
	retry := ai.requests[1].Messages
	if len(retry) != 6 {
		t.Fatalf("retry messages: want=6 got=%d", len(retry))
	}
	if retry[4].Role != openai.RoleTool || retry[4].ToolCallID != "call_1" || retry[4].Content != `{"input":"because"}` {
		t.Fatalf("tool echo: got=%+v", retry[4])
	}
	want := `Invalid function call. Function maybe is not recognized. Possible functions are: "answer_no" or "answer_yes"`
	if retry[5].Content != want {
		t.Fatalf("correction: want=%q got=%q", want, retry[5].Content)
	}
	if ai.streams != 0 {
		t.Fatalf("streams: want=0 got=%d", ai.streams)
	}
}

func TestEvaluateEmptyGenerationIsError(t *testing.T) {
	ai := &fakeAI{decisions: []openai.ChatMessage{toolAnswer(ToolAnswerYes)}}
	e := newTestEngine(t, ai, nil)

	_, err := e.Evaluate(context.Background(), newEngineInput())
	if !errors.Is(err, ErrEmptyGeneration) {
		t.Fatalf("err: want ErrEmptyGeneration got=%v", err)
	}
}

func TestEvaluateDecideTransportErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	e := newTestEngine(t, &fakeAI{decideErr: boom}, nil)
	if _, err := e.Evaluate(context.Background(), newEngineInput()); !errors.Is(err, boom) {
		t.Fatalf("err: want boom got=%v", err)
	}
}

func TestPromptsLoadAndFill(t *testing.T) {
	p, err := LoadPrompts()
	if err != nil {
		t.Fatalf("LoadPrompts: %v", err)
	}
	got := fill(p.Decide.DocumentA, "title", "T", "content", "{{title}}")
	if got != `DocumentA with title "T": {{title}}` {
		t.Fatalf("fill: got=%q", got)
	}
	if _, err := parsePrompts([]byte("decide: {}")); err == nil {
		t.Fatalf("parsePrompts: expected error for missing templates")
	}
}
