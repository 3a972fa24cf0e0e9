package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"navy-registrar/internal/domain"
)

type completerFunc func(ctx context.Context, messages []domain.ChatMessage) (string, error)

func (f completerFunc) Complete(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	return f(ctx, messages)
}

// scriptedLLM answers by prompt kind and records every call.
type scriptedLLM struct {
	extraction string
	priority   string
	readiness  string
	advantage  string
	answers    map[string]string

	failKinds map[string]error
	calls     []string
}

func (s *scriptedLLM) Complete(_ context.Context, messages []domain.ChatMessage) (string, error) {
	kind := promptKind(messages)
	s.calls = append(s.calls, kind)
	if err := s.failKinds[kind]; err != nil {
		return "", err
	}
	switch kind {
	case "extraction":
		return s.extraction, nil
	case "priority":
		return s.priority, nil
	case "readiness":
		return s.readiness, nil
	case "advantage":
		return s.advantage, nil
	default:
		q := messages[len(messages)-1].Content
		if err := s.failKinds["question:"+q]; err != nil {
			return "", err
		}
		if a, ok := s.answers[q]; ok {
			return a, nil
		}
		return "answer to " + q, nil
	}
}

func promptKind(messages []domain.ChatMessage) string {
	system := messages[0].Content
	switch {
	case strings.Contains(system, "analysis agent"):
		return "extraction"
	case strings.Contains(system, "tactical advisor"):
		return "priority"
	case strings.Contains(system, "operations analyst"):
		return "readiness"
	case strings.Contains(system, "strategic advisor"):
		return "advantage"
	default:
		return "question"
	}
}

type memConversations struct {
	records   map[string][]map[string]any
	latestErr error
	appendErr error
}

func newMemConversations() *memConversations {
	return &memConversations{records: map[string][]map[string]any{}}
}

func (m *memConversations) LatestConversation(_ context.Context, userID string) (map[string]any, error) {
	if m.latestErr != nil {
		return nil, m.latestErr
	}
	recs := m.records[userID]
	if len(recs) == 0 {
		return map[string]any{}, nil
	}
	return maps.Clone(recs[len(recs)-1]), nil
}

func (m *memConversations) AppendConversation(_ context.Context, userID string, data map[string]any) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records[userID] = append(m.records[userID], maps.Clone(data))
	return nil
}

type memEntities struct {
	ships    map[string]domain.Ship
	missions []domain.Mission
	crews    []domain.Crew
	ports    []domain.Port

	saveErr error
	crewErr error
	portErr error
}

func newMemEntities() *memEntities {
	return &memEntities{ships: map[string]domain.Ship{}}
}

func (m *memEntities) SaveShipMission(_ context.Context, ship domain.Ship, mission *domain.Mission) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.ships[ship.ID] = ship
	if mission != nil {
		m.missions = append(m.missions, *mission)
	}
	return nil
}

func (m *memEntities) GetShip(_ context.Context, shipID string) (domain.Ship, error) {
	ship, ok := m.ships[shipID]
	if !ok {
		return domain.Ship{}, fmt.Errorf("get ship %q: %w", shipID, domain.ErrShipNotFound)
	}
	return ship, nil
}

func (m *memEntities) CreateCrew(_ context.Context, crew domain.Crew) error {
	if m.crewErr != nil {
		return m.crewErr
	}
	m.crews = append(m.crews, crew)
	return nil
}

func (m *memEntities) CreatePort(_ context.Context, port domain.Port) error {
	if m.portErr != nil {
		return m.portErr
	}
	m.ports = append(m.ports, port)
	return nil
}

var errUpstream = errors.New("upstream timeout")
