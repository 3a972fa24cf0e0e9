package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"navy-registrar/internal/domain"
	"navy-registrar/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type IntakeUseCase interface {
	Intake(ctx context.Context, in usecase.IntakeInput) (usecase.IntakeOutput, error)
	History(ctx context.Context, userID string, limit int) ([]domain.ConversationRecord, error)
}

type Handler struct {
	uc IntakeUseCase
}

func NewHandler(uc IntakeUseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc}, nil
}

type intakeRequest struct {
	Text   string `json:"text"`
	UserID string `json:"userId"`
}

// intakeResponse keeps the key names of the registrar's chat responses.
type intakeResponse struct {
	Data               map[string]any           `json:"data,omitempty"`
	MissionPriority    string                   `json:"mission_priority,omitempty"`
	CrewReadiness      string                   `json:"crew_readiness,omitempty"`
	StrategicAdvantage string                   `json:"strategic_advantage,omitempty"`
	QuestionsAnswers   []usecase.QuestionAnswer `json:"questions_answers"`
}

type messageResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type historyRecord struct {
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"createdAt"`
}

type historyResponse struct {
	UserID  string          `json:"userId"`
	Records []historyRecord `json:"records"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handle routes API Gateway proxy requests to the intake use case.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := headerValue(event.Headers, correlationHeader)
	if corrID == "" {
		corrID = uuid.NewString()
	}
	start := time.Now()

	var resp events.APIGatewayProxyResponse
	path := strings.TrimRight(event.Path, "/")
	switch {
	case strings.HasSuffix(path, "/intake"):
		if event.HTTPMethod != http.MethodPost {
			resp = jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED"})
			break
		}
		resp = h.handleIntake(ctx, event)
	case strings.HasSuffix(path, "/history"):
		if event.HTTPMethod != http.MethodGet {
			resp = jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: "METHOD_NOT_ALLOWED"})
			break
		}
		resp = h.handleHistory(ctx, event)
	default:
		resp = jsonResponse(http.StatusNotFound, errorResponse{Error: string(usecase.ErrorNotFound), Reason: "unknown_route"})
	}

	resp.Headers[correlationHeader] = corrID
	slog.Info("request handled",
		"correlation_id", corrID,
		"method", event.HTTPMethod,
		"path", event.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (h *Handler) handleIntake(ctx context.Context, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	var req intakeRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"})
	}
	userID := principalID(event)
	if userID == "" {
		userID = req.UserID
	}

	out, err := h.uc.Intake(ctx, usecase.IntakeInput{Text: req.Text, UserID: userID})
	if err != nil {
		return errorResult(err)
	}
	if out.Failed() {
		// The turn was processed; the message tells the user what to supply next.
		return jsonResponse(http.StatusOK, messageResponse{Message: out.Message, Code: string(out.ErrorCode)})
	}
	qa := out.QuestionsAnswers
	if qa == nil {
		qa = []usecase.QuestionAnswer{}
	}
	return jsonResponse(http.StatusOK, intakeResponse{
		Data:               out.Data,
		MissionPriority:    out.MissionPriority,
		CrewReadiness:      out.CrewReadiness,
		StrategicAdvantage: out.StrategicAdvantage,
		QuestionsAnswers:   qa,
	})
}

func (h *Handler) handleHistory(ctx context.Context, event events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	userID := principalID(event)
	if userID == "" {
		userID = event.QueryStringParameters["userId"]
	}
	limit := 0
	if raw := event.QueryStringParameters["limit"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return jsonResponse(http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_limit"})
		}
		limit = n
	}

	records, err := h.uc.History(ctx, userID, limit)
	if err != nil {
		return errorResult(err)
	}
	out := historyResponse{UserID: userID, Records: make([]historyRecord, 0, len(records))}
	for _, r := range records {
		out.Records = append(out.Records, historyRecord{Data: r.Data, CreatedAt: r.CreatedAt})
	}
	return jsonResponse(http.StatusOK, out)
}

func errorResult(err error) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		slog.Error("unexpected use case error", "err", err)
		return jsonResponse(http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
	}
	status := statusFor(ucErr.Code)
	if status >= 500 {
		slog.Error("request failed", "code", string(ucErr.Code), "reason", ucErr.Reason, "err", ucErr.Err)
	}
	return jsonResponse(status, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason})
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput, usecase.ErrorIncompleteRequest:
		return http.StatusBadRequest
	case usecase.ErrorNotFound:
		return http.StatusNotFound
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// principalID returns the caller identity set by an API Gateway authorizer.
func principalID(event events.APIGatewayProxyRequest) string {
	if event.RequestContext.Authorizer == nil {
		return ""
	}
	id, _ := event.RequestContext.Authorizer["principalId"].(string)
	return strings.TrimSpace(id)
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func jsonResponse(status int, body any) events.APIGatewayProxyResponse {
	buf, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		buf = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(buf),
	}
}
