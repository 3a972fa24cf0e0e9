package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"navy-registrar/internal/domain"
)

// route assigns the ship identity for this intake flow when the payload
// does not already carry one.
func (e *Engine) route(st State) State {
	if stringValue(st.Data[FieldShipID]) != "" {
		return st
	}
	data := maps.Clone(st.Data)
	if data == nil {
		data = map[string]any{}
	}
	data[FieldShipID] = e.newID()
	st.Data = data
	slog.Debug("router assigned ship id", "user_id", st.UserID, "ship_id", data[FieldShipID])
	return st
}

// shipMission upserts the ship and records the mission in one transaction,
// then asks for a mission priority.
func (e *Engine) shipMission(ctx context.Context, st State) State {
	p := PayloadFromData(st.Data)
	ship := domain.Ship{ID: p.ShipID, Name: p.ShipName, Type: p.ShipType}

	var mission *domain.Mission
	if p.MissionType != "" {
		mission = &domain.Mission{ID: e.newID(), ShipID: p.ShipID, MissionType: p.MissionType}
	}
	if err := e.entities.SaveShipMission(ctx, ship, mission); err != nil {
		slog.Error("failed to save ship information", "ship_id", p.ShipID, "err", err)
		return st.fail(stageError(StageShipMission, KindPersistence, fmt.Sprintf("Failed to save ship information: %v", err), err))
	}

	resp, err := e.llm.Complete(ctx, missionPriorityMessages(p))
	if err != nil {
		slog.Error("failed to calculate mission priority", "ship_id", p.ShipID, "err", err)
		return st.fail(stageError(StageShipMission, KindCompletion, fmt.Sprintf("Failed to calculate mission priority: %v", err), err))
	}
	st.MissionPriority = missionPriorityLabel + resp
	slog.Info("mission priority calculated", "ship_name", p.ShipName)
	return st
}

// crew records the crew of an existing ship and asks for a readiness assessment.
func (e *Engine) crew(ctx context.Context, st State) State {
	p := PayloadFromData(st.Data)
	if serr := e.requireShip(ctx, StageCrew, p.ShipID); serr != nil {
		return st.fail(serr)
	}

	err := e.entities.CreateCrew(ctx, domain.Crew{
		ID:            e.newID(),
		ShipID:        p.ShipID,
		Size:          p.CrewSize,
		CommanderName: p.CommanderName,
		CommanderRank: p.CommanderRank,
	})
	if err != nil {
		slog.Error("failed to save crew information", "ship_id", p.ShipID, "err", err)
		return st.fail(persistenceError(StageCrew, "crew", err))
	}

	resp, err := e.llm.Complete(ctx, crewReadinessMessages(p))
	if err != nil {
		slog.Error("failed to assess crew readiness", "ship_id", p.ShipID, "err", err)
		return st.fail(stageError(StageCrew, KindCompletion, fmt.Sprintf("Failed to assess crew readiness: %v", err), err))
	}
	st.CrewReadiness = crewReadinessLabel + resp
	slog.Info("crew readiness assessed", "ship_name", p.ShipName)
	return st
}

// port records the home port of an existing ship and asks for its strategic advantage.
func (e *Engine) port(ctx context.Context, st State) State {
	p := PayloadFromData(st.Data)
	if serr := e.requireShip(ctx, StagePort, p.ShipID); serr != nil {
		return st.fail(serr)
	}

	err := e.entities.CreatePort(ctx, domain.Port{
		ID:       e.newID(),
		ShipID:   p.ShipID,
		HomePort: p.HomePort,
	})
	if err != nil {
		slog.Error("failed to save port information", "ship_id", p.ShipID, "err", err)
		return st.fail(persistenceError(StagePort, "port", err))
	}

	resp, err := e.llm.Complete(ctx, strategicAdvantageMessages(p))
	if err != nil {
		slog.Error("failed to determine strategic advantage", "ship_id", p.ShipID, "err", err)
		return st.fail(stageError(StagePort, KindCompletion, fmt.Sprintf("Failed to determine strategic advantage: %v", err), err))
	}
	st.StrategicAdvantage = strategicAdvantageLabel + resp
	slog.Info("strategic advantage determined", "home_port", p.HomePort)
	return st
}

// answerQuestions answers each extracted question independently. A failed
// question gets an error string as its answer and does not stop the rest.
func (e *Engine) answerQuestions(ctx context.Context, st State) State {
	questions := PayloadFromData(st.Data).Questions
	answers := make([]string, 0, len(questions))
	for _, q := range questions {
		resp, err := e.llm.Complete(ctx, questionMessages(q))
		if err != nil {
			slog.Error("failed to answer question", "question", q, "err", err)
			answers = append(answers, fmt.Sprintf("Error: %v", err))
			continue
		}
		answers = append(answers, resp)
	}
	st.Questions = append([]string(nil), questions...)
	st.Answers = answers
	slog.Info("answered questions", "user_id", st.UserID, "count", len(questions))
	return st
}

func (e *Engine) finalize(st State) State {
	slog.Debug("workflow finished",
		"user_id", st.UserID,
		"mission_priority", st.MissionPriority,
		"crew_readiness", st.CrewReadiness,
		"strategic_advantage", st.StrategicAdvantage,
		"answers", len(st.Answers),
	)
	return st
}

func (e *Engine) requireShip(ctx context.Context, stage Stage, shipID string) *StageError {
	_, err := e.entities.GetShip(ctx, shipID)
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrShipNotFound) {
		slog.Error("ship information not found", "ship_id", shipID)
		return stageError(stage, KindNotFound, "Ship information not found", err)
	}
	slog.Error("failed to load ship information", "ship_id", shipID, "err", err)
	return stageError(stage, KindPersistence, fmt.Sprintf("Failed to load ship information: %v", err), err)
}

func persistenceError(stage Stage, slice string, err error) *StageError {
	if errors.Is(err, domain.ErrShipNotFound) {
		return stageError(stage, KindNotFound, "Ship information not found", err)
	}
	return stageError(stage, KindPersistence, fmt.Sprintf("Failed to save %s information: %v", slice, err), err)
}
