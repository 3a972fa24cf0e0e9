package workflow

import (
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"

	"navy-registrar/internal/domain"
)

const (
	FieldShipID           = "ship_id"
	FieldShipName         = "ship_name"
	FieldShipType         = "ship_type"
	FieldCrewSize         = "crew_size"
	FieldCommanderName    = "commander_name"
	FieldCommanderRank    = "commander_rank"
	FieldMissionType      = "mission_type"
	FieldHomePort         = "home_port"
	FieldQuestion         = "question"
	FieldCommissionDate   = "commission_date"
	FieldDecommissionDate = "decommission_date"
)

// mandatoryFields is ordered; validation reports the first one missing.
var mandatoryFields = []string{
	FieldShipName,
	FieldShipType,
	FieldCrewSize,
	FieldCommanderName,
	FieldCommanderRank,
}

// Payload is the typed view of an extracted data mapping.
type Payload struct {
	ShipID           string
	ShipName         string
	ShipType         string
	CrewSize         int
	CommanderName    string
	CommanderRank    string
	MissionType      string
	HomePort         string
	Questions        []string
	CommissionDate   string
	DecommissionDate string
}

// PayloadFromData reads the known fields out of data. Unknown keys are ignored.
func PayloadFromData(data map[string]any) Payload {
	size, _ := intValue(data[FieldCrewSize])
	return Payload{
		ShipID:           stringValue(data[FieldShipID]),
		ShipName:         stringValue(data[FieldShipName]),
		ShipType:         stringValue(data[FieldShipType]),
		CrewSize:         size,
		CommanderName:    stringValue(data[FieldCommanderName]),
		CommanderRank:    stringValue(data[FieldCommanderRank]),
		MissionType:      stringValue(data[FieldMissionType]),
		HomePort:         stringValue(data[FieldHomePort]),
		Questions:        questionsValue(data[FieldQuestion]),
		CommissionDate:   stringValue(data[FieldCommissionDate]),
		DecommissionDate: stringValue(data[FieldDecommissionDate]),
	}
}

// parseStructured locates the outermost braces in a completion and decodes
// the enclosed object. ok is false when no object can be recovered.
func parseStructured(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || start >= end {
		return nil, false
	}
	data, err := domain.DecodeData(text[start : end+1])
	if err != nil {
		return nil, false
	}
	return data, true
}

// guardEchoes clears names that merely repeat their sibling field, which
// happens when the completion echoes a field label back as the value.
func guardEchoes(data map[string]any) {
	guardEcho(data, FieldCommanderName, FieldCommanderRank)
	guardEcho(data, FieldShipName, FieldShipType)
}

func guardEcho(data map[string]any, field, sibling string) {
	v := stringValue(data[field])
	if v == "" || v == stringValue(data[sibling]) {
		data[field] = nil
		return
	}
	data[field] = v
}

// carryForward fills every unset key of data from the previous context.
func carryForward(data, prior map[string]any) map[string]any {
	merged := maps.Clone(data)
	if merged == nil {
		merged = map[string]any{}
	}
	for k, v := range prior {
		if isFalsy(merged[k]) {
			merged[k] = v
		}
	}
	return merged
}

// validatePayload returns the user-facing reason data is incomplete, or "".
func validatePayload(data map[string]any) string {
	if isFalsy(data[FieldMissionType]) && isFalsy(data[FieldHomePort]) {
		return "Please provide either mission_type or home_port"
	}
	for _, field := range mandatoryFields {
		if isFalsy(data[field]) {
			return "Please provide " + field
		}
	}
	size, ok := intValue(data[FieldCrewSize])
	if !ok {
		return "crew_size must be a whole number"
	}
	if size < 1 || size > math.MaxInt32 {
		return "crew_size must be a positive number of sailors"
	}
	return ""
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case int:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func intValue(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		if t < math.MinInt32 || t > math.MaxInt32 {
			return 0, false
		}
		return int(t), true
	case float64:
		if t != math.Trunc(t) || t < math.MinInt32 || t > math.MaxInt32 {
			return 0, false
		}
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(t), ",", ""))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func questionsValue(v any) []string {
	switch t := v.(type) {
	case string:
		if q := strings.TrimSpace(t); q != "" {
			return []string{q}
		}
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if q := stringValue(item); q != "" {
				out = append(out, q)
			}
		}
		return out
	default:
		return nil
	}
}
