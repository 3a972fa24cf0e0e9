package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"navy-registrar/internal/domain"
)

type fakeGetter struct {
	val   string
	err   error
	calls int
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.val, f.err
}

type fakeGenerator struct {
	reply     string
	err       error
	gotModel  string
	gotConfig *genai.GenerateContentConfig
	gotTurns  []*genai.Content
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	f.gotTurns = contents
	f.gotConfig = config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(f.reply, genai.RoleModel)}},
	}, nil
}

func newTestClient(t *testing.T, gen *fakeGenerator) *Client {
	t.Helper()
	c, err := NewClient(&fakeGetter{}, "/navy-registrar", WithGenerator(gen))
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, "/navy-registrar")
	require.Error(t, err)

	_, err = NewClient(&fakeGetter{}, " ")
	require.Error(t, err)

	c, err := NewClient(&fakeGetter{}, "/navy-registrar/")
	require.NoError(t, err)
	require.Equal(t, "/navy-registrar/gemini-token", c.tokenParameterName())
}

func TestToContents(t *testing.T) {
	system, turns := toContents([]domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "You are a tactical advisor."},
		{Role: domain.RoleUser, Content: "Assess crew readiness."},
		{Role: domain.RoleAssistant, Content: "Ready."},
	})
	require.NotNil(t, system)
	require.Equal(t, "You are a tactical advisor.", system.Parts[0].Text)
	require.Len(t, turns, 2)
	require.Equal(t, genai.RoleUser, turns[0].Role)
	require.Equal(t, genai.RoleModel, turns[1].Role)
	require.Equal(t, "Ready.", turns[1].Parts[0].Text)
}

func TestToContents_NoSystem(t *testing.T) {
	system, turns := toContents([]domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}})
	require.Nil(t, system)
	require.Len(t, turns, 1)
}

func TestChat_HappyPath(t *testing.T) {
	gen := &fakeGenerator{reply: `{"ship_name":"USS Kidd"}`}
	c := newTestClient(t, gen)

	out, err := c.Chat(context.Background(), "gemini-2.5-flash", []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "extract"},
		{Role: domain.RoleUser, Content: "USS Kidd, a destroyer"},
	})
	require.NoError(t, err)
	require.Equal(t, `{"ship_name":"USS Kidd"}`, out)
	require.Equal(t, "gemini-2.5-flash", gen.gotModel)
	require.Len(t, gen.gotTurns, 1)
	require.Equal(t, "extract", gen.gotConfig.SystemInstruction.Parts[0].Text)
	require.Equal(t, float32(0), *gen.gotConfig.Temperature)
}

func TestChat_Errors(t *testing.T) {
	c := newTestClient(t, &fakeGenerator{reply: "ok"})
	_, err := c.Chat(context.Background(), "", []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}})
	require.ErrorContains(t, err, "model")

	_, err = c.Chat(context.Background(), "m", []domain.ChatMessage{{Role: domain.RoleSystem, Content: "only system"}})
	require.ErrorContains(t, err, "non-system")

	c = newTestClient(t, &fakeGenerator{reply: "  "})
	_, err = c.Chat(context.Background(), "m", []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}})
	require.ErrorContains(t, err, "empty response")
}

func TestChat_APIErrorCarriesStatus(t *testing.T) {
	gen := &fakeGenerator{err: genai.APIError{Code: 429, Message: "quota exceeded", Status: "RESOURCE_EXHAUSTED"}}
	c := newTestClient(t, gen)

	_, err := c.Chat(context.Background(), "m", []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}})
	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, 429, statusErr.HTTPStatusCode())
}

func TestChat_TokenErrorIsSticky(t *testing.T) {
	g := &fakeGetter{err: errors.New("ssm unavailable")}
	c, err := NewClient(g, "/navy-registrar")
	require.NoError(t, err)

	_, err = c.Chat(context.Background(), "m", []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}})
	require.ErrorContains(t, err, "ssm unavailable")
	_, err = c.Chat(context.Background(), "m", []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}})
	require.Error(t, err)
	require.Equal(t, 1, g.calls)
}
