package workflow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"navy-registrar/internal/domain"
)

// maxSteps bounds one invocation. The longest path visits every stage once.
const maxSteps = 16

// Completer is the text-generation capability: role-tagged messages in,
// completion text out.
type Completer interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// ConversationStore holds the per-user append-only extraction history.
type ConversationStore interface {
	LatestConversation(ctx context.Context, userID string) (map[string]any, error)
	AppendConversation(ctx context.Context, userID string, data map[string]any) error
}

// EntityStore persists the ship and its owned rows. SaveShipMission is
// atomic; a nil mission upserts the ship alone.
type EntityStore interface {
	SaveShipMission(ctx context.Context, ship domain.Ship, mission *domain.Mission) error
	GetShip(ctx context.Context, shipID string) (domain.Ship, error)
	CreateCrew(ctx context.Context, crew domain.Crew) error
	CreatePort(ctx context.Context, port domain.Port) error
}

// Engine runs the intake workflow one stage at a time.
type Engine struct {
	llm           Completer
	conversations ConversationStore
	entities      EntityStore
	newID         func() string
}

func NewEngine(llm Completer, conversations ConversationStore, entities EntityStore) (*Engine, error) {
	if llm == nil {
		return nil, errors.New("workflow: completer must not be nil")
	}
	if conversations == nil {
		return nil, errors.New("workflow: conversation store must not be nil")
	}
	if entities == nil {
		return nil, errors.New("workflow: entity store must not be nil")
	}
	return &Engine{
		llm:           llm,
		conversations: conversations,
		entities:      entities,
		newID:         uuid.NewString,
	}, nil
}

// Run processes one user turn from the payload stage to the end and returns
// the terminal state.
func (e *Engine) Run(ctx context.Context, query, userID string) State {
	st := NewState(query, userID)
	stage := StagePayload
	for i := 0; stage != StageEnd; i++ {
		if i == maxSteps {
			slog.Error("workflow exceeded step limit", "user_id", userID, "stage", stage.String())
			return st.fail(stageError(stage, KindEngine, "workflow did not terminate", nil))
		}
		var next Stage
		next, st = e.step(ctx, stage, st)
		slog.Debug("workflow transition", "user_id", userID, "stage", stage.String(), "next", next.String())
		stage = next
	}
	return st
}

// step executes one stage and returns exactly one successor.
func (e *Engine) step(ctx context.Context, stage Stage, st State) (Stage, State) {
	switch stage {
	case StagePayload:
		st = e.payload(ctx, st)
		if st.Failed() {
			return advance(st, StageEnd)
		}
		return advance(st, StageRouter)

	case StageRouter:
		return advance(e.route(st), StageShipMission)

	case StageShipMission:
		st = e.shipMission(ctx, st)
		if st.Failed() {
			return advance(st, StageEnd)
		}
		return advance(st, StageCrew)

	case StageCrew:
		st = e.crew(ctx, st)
		if st.Failed() {
			return advance(st, StageEnd)
		}
		return advance(st, StageQuestionRouter)

	case StageQuestionRouter:
		if PayloadFromData(st.Data).HomePort == "" {
			return advance(st, StageAnswerQuestions)
		}
		return advance(st, StagePort)

	case StagePort:
		st = e.port(ctx, st)
		if st.Failed() {
			return advance(st, StageEnd)
		}
		if len(PayloadFromData(st.Data).Questions) > 0 {
			return advance(st, StageAnswerQuestions)
		}
		return advance(st, StageFinalize)

	case StageAnswerQuestions:
		return advance(e.answerQuestions(ctx, st), StageFinalize)

	case StageFinalize:
		return advance(e.finalize(st), StageEnd)

	default:
		return advance(st, StageEnd)
	}
}

func advance(st State, next Stage) (Stage, State) {
	st.Next = next
	return next, st
}
