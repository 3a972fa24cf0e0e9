package workflow

import (
	"context"
	"log/slog"
)

const noStructuredResponse = "no valid structured response"

// Extract turns the user's text plus their latest conversation context into
// a merged data mapping. The returned error is always a *StageError; when it
// is a validation failure the merged data is still returned and has already
// been appended to the conversation store.
func (e *Engine) Extract(ctx context.Context, query, userID string) (map[string]any, *StageError) {
	prior, err := e.conversations.LatestConversation(ctx, userID)
	if err != nil {
		slog.Error("failed to load conversation context", "user_id", userID, "err", err)
		return map[string]any{}, stageError(StagePayload, KindPersistence, "Failed to load conversation context", err)
	}

	raw, err := e.llm.Complete(ctx, buildExtractionMessages(prior, query))
	if err != nil {
		slog.Error("extraction completion failed", "user_id", userID, "err", err)
		return map[string]any{}, stageError(StagePayload, KindCompletion, "LLM invocation failed", err)
	}
	slog.Debug("extraction raw response", "user_id", userID, "raw", raw)

	parsed, ok := parseStructured(raw)
	if !ok {
		slog.Error("no structured object in extraction response", "user_id", userID)
		return map[string]any{}, stageError(StagePayload, KindParse, noStructuredResponse, nil)
	}

	guardEchoes(parsed)
	merged := carryForward(parsed, prior)

	if err := e.conversations.AppendConversation(ctx, userID, merged); err != nil {
		slog.Warn("failed to append conversation", "user_id", userID, "err", err)
	}

	if reason := validatePayload(merged); reason != "" {
		slog.Warn("extracted payload incomplete", "user_id", userID, "reason", reason)
		return merged, stageError(StagePayload, KindValidation, reason, nil)
	}

	slog.Info("parsed intake data", "user_id", userID)
	return merged, nil
}

func (e *Engine) payload(ctx context.Context, st State) State {
	data, serr := e.Extract(ctx, st.Query, st.UserID)
	st.Data = data
	if serr != nil {
		return st.fail(serr)
	}
	return st
}
