package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"navy-registrar/internal/domain"
	"navy-registrar/internal/workflow"
)

const (
	defaultMaxQueryLen  = 2000
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// LLMClient is implemented by the openai and gemini integrations.
type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

// ConversationStore is the workflow's conversation store plus read access to
// the audit trail.
type ConversationStore interface {
	workflow.ConversationStore
	ConversationHistory(ctx context.Context, userID string, limit int) ([]domain.ConversationRecord, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// boundCompleter fixes the configured model onto an LLMClient.
type boundCompleter struct {
	llm   LLMClient
	model string
}

func (b boundCompleter) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	return b.llm.Chat(ctx, b.model, messages)
}

type IntakeService struct {
	params        ParamGetter
	llm           LLMClient
	conversations ConversationStore
	entities      workflow.EntityStore
	paramPrefix   string
	maxQueryLen   int

	cacheMu     sync.RWMutex
	cacheLoaded bool
	model       string
	engine      *workflow.Engine
}

type IntakeInput struct {
	Text   string
	UserID string
}

type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// IntakeOutput holds either the results of a completed turn or a Message
// describing why the turn stopped.
type IntakeOutput struct {
	Data               map[string]any
	MissionPriority    string
	CrewReadiness      string
	StrategicAdvantage string
	QuestionsAnswers   []QuestionAnswer

	Message   string
	ErrorCode ErrorCode
}

// Failed reports whether the turn ended with a workflow error.
func (o IntakeOutput) Failed() bool {
	return o.Message != ""
}

func NewIntakeService(p ParamGetter, llm LLMClient, conversations ConversationStore, entities workflow.EntityStore, paramPrefix string, maxQueryLen int) (*IntakeService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if conversations == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if entities == nil {
		return nil, errors.New("usecase: entity store must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if maxQueryLen <= 0 {
		maxQueryLen = defaultMaxQueryLen
	}
	return &IntakeService{
		params:        p,
		llm:           llm,
		conversations: conversations,
		entities:      entities,
		paramPrefix:   paramPrefix,
		maxQueryLen:   maxQueryLen,
	}, nil
}

// Intake runs the workflow for one user turn.
func (s *IntakeService) Intake(ctx context.Context, in IntakeInput) (IntakeOutput, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return IntakeOutput{}, newError(ErrorInvalidInput, "empty_text", nil)
	}
	if len(text) > s.maxQueryLen {
		return IntakeOutput{}, newError(ErrorInvalidInput, "text_too_long", nil)
	}
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return IntakeOutput{}, newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	if err := s.ensureConfig(ctx); err != nil {
		return IntakeOutput{}, newError(ErrorInternal, "ssm_load_error", err)
	}

	st := s.engine.Run(ctx, text, userID)
	out := outputFromState(st)
	if out.Failed() {
		slog.Warn("intake stopped", "user_id", userID, "stage", st.Err.Stage.String(), "kind", string(st.Err.Kind), "code", string(out.ErrorCode))
	} else {
		slog.Info("intake processed", "user_id", userID, "model", s.model, "questions", len(out.QuestionsAnswers))
	}
	return out, nil
}

// History returns up to limit conversation records for a user, oldest first.
func (s *IntakeService) History(ctx context.Context, userID string, limit int) ([]domain.ConversationRecord, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	records, err := s.conversations.ConversationHistory(ctx, userID, limit)
	if err != nil {
		return nil, newError(ErrorInternal, "history_read_error", err)
	}
	return records, nil
}

func outputFromState(st workflow.State) IntakeOutput {
	if st.Failed() {
		return IntakeOutput{
			Message:   "Error: " + st.Err.Message,
			ErrorCode: errorCodeFor(st.Err),
		}
	}
	out := IntakeOutput{
		Data:               st.Data,
		MissionPriority:    st.MissionPriority,
		CrewReadiness:      st.CrewReadiness,
		StrategicAdvantage: st.StrategicAdvantage,
		QuestionsAnswers:   []QuestionAnswer{},
	}
	// Pairs stop at the shorter list.
	for i := 0; i < len(st.Questions) && i < len(st.Answers); i++ {
		out.QuestionsAnswers = append(out.QuestionsAnswers, QuestionAnswer{Question: st.Questions[i], Answer: st.Answers[i]})
	}
	return out
}

func errorCodeFor(serr *workflow.StageError) ErrorCode {
	switch serr.Kind {
	case workflow.KindValidation:
		return ErrorIncompleteRequest
	case workflow.KindNotFound:
		return ErrorNotFound
	case workflow.KindParse, workflow.KindCompletion:
		if status, ok := upstreamStatusCode(serr); ok && status == 429 {
			return ErrorRateLimited
		}
		return ErrorUpstream
	default:
		return ErrorInternal
	}
}

func (s *IntakeService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	model, err := s.params.GetParameter(ctx, s.paramPrefix+"/config/model")
	if err != nil {
		return fmt.Errorf("usecase: load model: %w", err)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("usecase: model parameter is empty")
	}

	engine, err := workflow.NewEngine(boundCompleter{llm: s.llm, model: model}, s.conversations, s.entities)
	if err != nil {
		return err
	}

	s.model = model
	s.engine = engine
	s.cacheLoaded = true
	return nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
