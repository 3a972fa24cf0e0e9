package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"navy-registrar/internal/domain"
)

const (
	missionPriorityLabel    = "Mission Priority: "
	crewReadinessLabel      = "Crew Readiness Assessment: "
	strategicAdvantageLabel = "Strategic Advantage: "

	unspecifiedMission = "unspecified"
)

func buildExtractionMessages(prior map[string]any, query string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: buildExtractionPrompt(formatContext(prior))},
		{Role: domain.RoleUser, Content: query},
	}
}

func buildExtractionPrompt(contextBlock string) string {
	return strings.Join([]string{
		"You are an analysis agent specialized in parsing naval and military queries. Your primary function is to:",
		"",
		"1. Extract structured information from natural language queries",
		"2. Maintain context from previous conversations",
		"3. Update information based on new inputs",
		"",
		"Current Conversation Context: " + contextBlock,
		"",
		"Output Format Requirements:",
		"- Response must be a valid JSON dictionary enclosed in curly braces {}",
		`- Example: {"ship_name": "USS Example", "ship_type": "Destroyer", ...}`,
		"1. Mandatory Parameters:",
		"   - ship_name",
		"   - ship_type",
		"   - crew_size",
		"   - commander_name",
		"   - commander_rank",
		"   - either mission_type OR home_port",
		"   - question (as list of strings)",
		"",
		"2. Optional Parameters:",
		"   - commission_date",
		"   - decommission_date",
		"",
		"Rules:",
		"1. Maintain consistency with previous conversation context",
		"2. Update fields only when new information is provided",
		"3. Preserve existing information when not explicitly changed",
		"4. Numbers should be integers",
		"5. Names and proper nouns should maintain their case",
		"6. Do not include any text outside the JSON dictionary",
	}, "\n")
}

func formatContext(prior map[string]any) string {
	if len(prior) == 0 {
		return "{}"
	}
	buf, err := json.MarshalIndent(prior, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(buf)
}

func missionPriorityMessages(p Payload) []domain.ChatMessage {
	missionType := p.MissionType
	if missionType == "" {
		missionType = unspecifiedMission
	}
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "You are a tactical advisor for naval missions. Determine the priority of the mission based on the ship type and mission type."},
		{Role: domain.RoleUser, Content: fmt.Sprintf("Ship Type: %s, Mission Type: %s. What is the priority of this mission? Provide answer under 10 words.", p.ShipType, missionType)},
	}
}

func crewReadinessMessages(p Payload) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "You are a naval operations analyst. Assess the readiness of the crew based on the crew size and commander's rank."},
		{Role: domain.RoleUser, Content: fmt.Sprintf("Crew Size: %d, Commander Rank: %s. Is the crew ready for the mission? Provide answer under 10 words.", p.CrewSize, p.CommanderRank)},
	}
}

func strategicAdvantageMessages(p Payload) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "You are a strategic advisor for naval operations. Determine the strategic advantage of the home port for the mission."},
		{Role: domain.RoleUser, Content: fmt.Sprintf("Home Port: %s. What is the strategic advantage of this port for the mission? Provide answer under 10 words.", p.HomePort)},
	}
}

func questionMessages(question string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "You are a helpful assistant."},
		{Role: domain.RoleUser, Content: question},
	}
}
