package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memgraph-agent/server/internal/agent/model"
	errx "github.com/memgraph-agent/server/internal/core/error"
)

func call(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Function: schema.FunctionCall{Name: name, Arguments: args}}
}

func TestInfos(t *testing.T) {
	names := []string{}
	for _, info := range Infos() {
		names = append(names, info.Name)
		assert.NotEmpty(t, info.Desc)
		assert.NotNil(t, info.ParamsOneOf)
	}
	assert.ElementsMatch(t, []string{
		model.ToolNameSaveCore, model.ToolNameSaveRecall, model.ToolNameSearchRecall,
		model.ToolNameAskKnowledgeBase, model.ToolNameWebSearch,
	}, names)
}

func TestDecode(t *testing.T) {
	c, err := Decode(call("1", model.ToolNameSaveCore, `{"key":" pet.dog.name ","value":"Spot"}`))
	require.NoError(t, err)
	assert.Equal(t, SaveCore{Args: model.SaveCoreArgs{Key: "pet.dog.name", Value: "Spot"}}, c)

	c, err = Decode(call("2", model.ToolNameSearchRecall, `{"query":"beach"}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultSearchTopK, c.(SearchRecall).Args.TopK)

	c, err = Decode(call("3", model.ToolNameSearchRecall, `{"query":"beach","top_k":500}`))
	require.NoError(t, err)
	assert.Equal(t, MaxSearchTopK, c.(SearchRecall).Args.TopK)

	c, err = Decode(call("4", model.ToolNameWebSearch, `{"query":"weather"}`))
	require.NoError(t, err)
	assert.Equal(t, model.ToolWebSearch, c.Kind())
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(call("1", "rm_rf", `{}`))
	assert.True(t, errors.Is(err, errx.ErrUnknownTool))

	_, err = Decode(call("1", model.ToolNameSaveRecall, `not json`))
	assert.True(t, errors.Is(err, errx.ErrInvalidToolArgs))

	_, err = Decode(call("1", model.ToolNameSaveCore, `{"key":"name"}`))
	assert.True(t, errors.Is(err, errx.ErrInvalidToolArgs))

	_, err = Decode(call("1", model.ToolNameAskKnowledgeBase, ``))
	assert.True(t, errors.Is(err, errx.ErrInvalidToolArgs))
}

type fakeMemory struct {
	core   map[string]string
	recall []string
	err    error
}

func (f *fakeMemory) SaveCoreMemory(_ context.Context, _ string, key, value string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.core[key] = value
	return "Memory stored: " + key + " = " + value, nil
}

func (f *fakeMemory) SaveRecallMemory(_ context.Context, _ string, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.recall = append(f.recall, text)
	return text, nil
}

func (f *fakeMemory) SearchRecallMemories(context.Context, string, string, int) []string {
	return f.recall
}

type fakeKB struct{}

func (fakeKB) Ask(context.Context, string) (string, error) { return "Patience is bitter.", nil }

func TestExecutor_Run(t *testing.T) {
	mem := &fakeMemory{core: map[string]string{}}
	ex := NewExecutor(mem, fakeKB{}, nil, 10)

	msgs, executed := ex.Run(context.Background(), "u1", []schema.ToolCall{
		call("c1", model.ToolNameSaveCore, `{"key":"name","value":"Ana"}`),
		call("c2", model.ToolNameSaveRecall, `{"memory":"went to the beach"}`),
		call("c3", model.ToolNameSearchRecall, `{"query":"beach"}`),
		call("c4", model.ToolNameAskKnowledgeBase, `{"query":"patience"}`),
		call("c5", model.ToolNameWebSearch, `{"query":"news"}`),
		call("c6", "launch_rockets", `{}`),
	}, 0)

	require.Len(t, msgs, 6)
	assert.Equal(t, 6, executed)
	for i, m := range msgs {
		assert.Equal(t, schema.Tool, m.Role)
		assert.Equal(t, []string{"c1", "c2", "c3", "c4", "c5", "c6"}[i], m.ToolCallID)
	}
	assert.Equal(t, "Memory stored: name = Ana", msgs[0].Content)
	assert.Equal(t, "went to the beach", msgs[1].Content)

	var hits []string
	require.NoError(t, json.Unmarshal([]byte(msgs[2].Content), &hits))
	assert.Equal(t, []string{"went to the beach"}, hits)

	assert.Equal(t, "Patience is bitter.", msgs[3].Content)
	assert.Equal(t, "Error performing web_search: web search is not configured", msgs[4].Content)
	assert.Contains(t, msgs[5].Content, "Error performing launch_rockets: unknown tool")
	assert.Equal(t, "Ana", mem.core["name"])
}

func TestExecutor_FailureBecomesResult(t *testing.T) {
	mem := &fakeMemory{core: map[string]string{}, err: errx.WrapStore(errors.New("connection refused"))}
	ex := NewExecutor(mem, nil, nil, 0)

	msgs, _ := ex.Run(context.Background(), "u1", []schema.ToolCall{
		call("c1", model.ToolNameSaveRecall, `{"memory":"x"}`),
	}, 0)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Error performing save_recall_memory: memory store unavailable: connection refused", msgs[0].Content)
}

func TestExecutor_Limit(t *testing.T) {
	mem := &fakeMemory{core: map[string]string{}}
	ex := NewExecutor(mem, nil, nil, 2)

	msgs, executed := ex.Run(context.Background(), "u1", []schema.ToolCall{
		call("c1", model.ToolNameSaveRecall, `{"memory":"a"}`),
		call("c2", model.ToolNameSaveRecall, `{"memory":"b"}`),
	}, 1)
	require.Len(t, msgs, 2)
	assert.Equal(t, 2, executed)
	assert.Equal(t, "a", msgs[0].Content)
	assert.Equal(t, "Error performing save_recall_memory: tool call limit reached (2)", msgs[1].Content)
	assert.Equal(t, []string{"a"}, mem.recall)
}

func TestTavilyClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "go 1.25", req.Query)
		assert.Equal(t, "advanced", req.SearchDepth)
		assert.Equal(t, 3, req.MaxResults)

		_, _ = w.Write([]byte(`{"results":[{"title":"Go 1.25","url":"https://go.dev","content":"Released."}]}`))
	}))
	defer srv.Close()

	c := NewTavilyClient(model.WebSearchConfig{APIKey: "secret", BaseURL: srv.URL + "/", MaxResults: 3})
	out, err := c.Search(context.Background(), "go 1.25")
	require.NoError(t, err)
	assert.Equal(t, "Go 1.25 (https://go.dev)\nReleased.", out)
}

func TestTavilyClient_Errors(t *testing.T) {
	_, err := NewTavilyClient(model.WebSearchConfig{}).Search(context.Background(), "x")
	assert.ErrorContains(t, err, "TAVILY_API_KEY")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err = NewTavilyClient(model.WebSearchConfig{APIKey: "k", BaseURL: srv.URL}).Search(context.Background(), "x")
	assert.ErrorContains(t, err, "status 401")
}

func TestTavilyClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewTavilyClient(model.WebSearchConfig{APIKey: "k", BaseURL: url}).Search(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorContains(t, err, "tavily search")
	assert.NotErrorIs(t, err, errx.ErrStoreUnavailable)
}
