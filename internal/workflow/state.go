package workflow

// Stage names one node of the intake workflow.
type Stage int

const (
	StageEnd Stage = iota
	StagePayload
	StageRouter
	StageShipMission
	StageCrew
	StageQuestionRouter
	StagePort
	StageAnswerQuestions
	StageFinalize
)

var stageNames = map[Stage]string{
	StageEnd:             "end",
	StagePayload:         "payload",
	StageRouter:          "router",
	StageShipMission:     "ship_mission",
	StageCrew:            "crew",
	StageQuestionRouter:  "question_router",
	StagePort:            "port",
	StageAnswerQuestions: "answer_questions",
	StageFinalize:        "finalize",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "unknown"
}

// State is the value threaded through every stage of one invocation. Stages
// receive it by value and return the successor value; maps are cloned before
// they are modified so earlier values stay intact.
type State struct {
	Query  string
	Data   map[string]any
	Memory map[string]any
	UserID string
	Err    *StageError

	MissionPriority    string
	CrewReadiness      string
	StrategicAdvantage string

	Questions []string
	Answers   []string

	Next Stage
}

// NewState returns the initial state for one user turn.
func NewState(query, userID string) State {
	return State{
		Query:  query,
		UserID: userID,
		Data:   map[string]any{},
		Memory: map[string]any{},
		Next:   StagePayload,
	}
}

// Failed reports whether the invocation terminated abnormally.
func (s State) Failed() bool {
	return s.Err != nil
}

func (s State) fail(err *StageError) State {
	s.Err = err
	s.Next = StageEnd
	return s
}
