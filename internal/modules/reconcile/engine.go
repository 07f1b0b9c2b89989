package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/docsync-backend/internal/domain"
	"github.com/yungbote/docsync-backend/internal/platform/htmldiff"
	"github.com/yungbote/docsync-backend/internal/platform/logger"
	"github.com/yungbote/docsync-backend/internal/platform/openai"
	"github.com/yungbote/docsync-backend/internal/realtime"
)

const (
	ToolAnswerYes = "answer_yes"
	ToolAnswerNo  = "answer_no"

	decideTemperature   = 0.1
	generateTemperature = 0.0
)

// ErrEmptyGeneration is returned when the model streams no content.
var ErrEmptyGeneration = errors.New("generation produced no content")

type Status string

const (
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
)

type Decision struct {
	Status    Status
	Candidate *domain.TrackedFile
	// Content is the generated replacement; set only when Status is updated.
	Content string
}

type EvaluateInput struct {
	ChangeID  uuid.UUID
	Base      *domain.TrackedFile
	BaseDiff  string
	Candidate *domain.TrackedFile
}

type Evaluator interface {
	Evaluate(ctx context.Context, in EvaluateInput) (Decision, error)
}

type ProgressPublisher interface {
	PublishCandidateProgress(ctx context.Context, p realtime.CandidateProgress)
}

type Engine struct {
	log      *logger.Logger
	ai       openai.Client
	model    string
	progress ProgressPublisher
	prompts  Prompts
}

func NewEngine(log *logger.Logger, ai openai.Client, model string, progress ProgressPublisher) (*Engine, error) {
	if ai == nil {
		return nil, fmt.Errorf("openai client required")
	}
	p, err := LoadPrompts()
	if err != nil {
		return nil, err
	}
	return &Engine{
		log:      log.With("service", "ReconcileEngine"),
		ai:       ai,
		model:    model,
		progress: progress,
		prompts:  p,
	}, nil
}

// Evaluate decides whether the candidate needs the change and, if so, streams
// a merged replacement. Model misbehaviour degrades to Skipped; transport
// failures and empty generations are errors.
func (e *Engine) Evaluate(ctx context.Context, in EvaluateInput) (Decision, error) {
	if in.Base == nil || in.Candidate == nil {
		return Decision{}, fmt.Errorf("evaluate: base and candidate required")
	}
	log := e.log.With("change_id", in.ChangeID, "candidate_id", in.Candidate.ID)

	yes, err := e.decide(ctx, in)
	if err != nil {
		return Decision{}, fmt.Errorf("decide: %w", err)
	}
	if !yes {
		log.Debug("candidate skipped")
		return Decision{Status: StatusSkipped, Candidate: in.Candidate}, nil
	}

	content, err := e.generate(ctx, in)
	if err != nil {
		return Decision{}, fmt.Errorf("generate: %w", err)
	}
	log.Info("candidate updated", "generated_len", len(content))
	return Decision{Status: StatusUpdated, Candidate: in.Candidate, Content: content}, nil
}

func (e *Engine) decide(ctx context.Context, in EvaluateInput) (bool, error) {
	p := e.prompts.Decide
	msgs := []openai.ChatMessage{
		{Role: openai.RoleSystem, Content: p.System},
		{Role: openai.RoleUser, Content: fill(p.DocumentA, "title", in.Base.Name, "content", in.BaseDiff)},
		{Role: openai.RoleUser, Content: fill(p.DocumentB, "title", in.Candidate.Name, "content", in.Candidate.Content)},
	}

	resp, err := e.ai.ChatCompletion(ctx, e.decideRequest(msgs))
	if err != nil {
		return false, err
	}
	call := firstToolCall(resp)
	if call == nil || !isAnswerTool(call.Function.Name) {
		msgs = append(msgs, e.correction(resp, call)...)
		resp, err = e.ai.ChatCompletion(ctx, e.decideRequest(msgs))
		if err != nil {
			return false, err
		}
		call = firstToolCall(resp)
	}
	return call != nil && call.Function.Name == ToolAnswerYes, nil
}

// correction builds the messages appended before the single retry.
func (e *Engine) correction(resp openai.ChatMessage, call *openai.ToolCall) []openai.ChatMessage {
	p := e.prompts.Decide
	if call == nil {
		var out []openai.ChatMessage
		if strings.TrimSpace(resp.Content) != "" {
			out = append(out, openai.ChatMessage{Role: openai.RoleAssistant, Content: resp.Content})
		}
		return append(out, openai.ChatMessage{Role: openai.RoleSystem, Content: p.NoToolCall})
	}
	return []openai.ChatMessage{
		{Role: openai.RoleAssistant, Content: resp.Content, ToolCalls: []openai.ToolCall{*call}},
		{Role: openai.RoleTool, ToolCallID: call.ID, Name: call.Function.Name, Content: call.Function.Arguments},
		{Role: openai.RoleSystem, Content: fill(p.UnknownTool, "name", call.Function.Name)},
	}
}

func (e *Engine) decideRequest(msgs []openai.ChatMessage) openai.ChatRequest {
	t := decideTemperature
	return openai.ChatRequest{
		Model:       e.model,
		Messages:    append([]openai.ChatMessage(nil), msgs...),
		Tools:       e.answerTools(),
		Temperature: &t,
	}
}

func (e *Engine) answerTools() []openai.Tool {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input": map[string]any{"type": "string"},
		},
		"required":             []any{"input"},
		"additionalProperties": false,
	}
	return []openai.Tool{
		openai.FunctionTool(ToolAnswerYes, e.prompts.Tools[ToolAnswerYes], params),
		openai.FunctionTool(ToolAnswerNo, e.prompts.Tools[ToolAnswerNo], params),
	}
}

func (e *Engine) generate(ctx context.Context, in EvaluateInput) (string, error) {
	p := e.prompts.Generate
	t := generateTemperature
	req := openai.ChatRequest{
		Model: e.model,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: p.System},
			{Role: openai.RoleUser, Content: fill(p.DocumentA, "content", in.BaseDiff)},
			{Role: openai.RoleUser, Content: fill(p.DocumentB, "content", in.Candidate.Content)},
		},
		Temperature: &t,
	}

	var buf strings.Builder
	_, err := e.ai.StreamChatCompletion(ctx, req, func(delta string) {
		if delta == "" {
			return
		}
		buf.WriteString(delta)
		if e.progress != nil {
			e.progress.PublishCandidateProgress(ctx, realtime.CandidateProgress{
				ChangeID:    in.ChangeID,
				CandidateID: in.Candidate.ID,
				ItemID:      in.Candidate.ItemID,
				Name:        in.Candidate.Name,
				Diff:        htmldiff.Diff(in.Candidate.Content, buf.String()),
			})
		}
	})
	if err != nil {
		return "", err
	}
	if buf.Len() == 0 {
		return "", ErrEmptyGeneration
	}
	return buf.String(), nil
}

func firstToolCall(m openai.ChatMessage) *openai.ToolCall {
	if len(m.ToolCalls) == 0 {
		return nil
	}
	return &m.ToolCalls[0]
}

func isAnswerTool(name string) bool {
	return name == ToolAnswerYes || name == ToolAnswerNo
}
