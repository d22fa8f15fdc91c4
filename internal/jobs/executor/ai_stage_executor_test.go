package executor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/Christopher-Schulze/crPipeline-sub000/internal/httpclient"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/jobs/resolver"
	"github.com/Christopher-Schulze/crPipeline-sub000/internal/models"
)

type aiFixture struct {
	executor *AIStageExecutor
	mock     sqlmock.Sqlmock
	blobs    *memBlobStore
}

func newAIFixture(t *testing.T, env resolver.Env) *aiFixture {
	t.Helper()
	store, mock := newMockPostgres(t)
	blobs := newMemBlobStore()
	logger := arbor.NewLogger()
	recorder := NewArtifactRecorder(store, blobs, logger)
	return &aiFixture{
		executor: NewAIStageExecutor(httpclient.NewAIClient(logger), recorder, env, logger),
		mock:     mock,
		blobs:    blobs,
	}
}

func newAIStageContext(t *testing.T, rolling string, settings *models.OrgSettings) *StageContext {
	t.Helper()
	sc := &StageContext{
		JobID:    "j-1",
		OrgID:    "org-1",
		Rolling:  NewContext(),
		Settings: settings,
	}
	require.NoError(t, sc.Rolling.Replace(json.RawMessage(rolling)))
	return sc
}

func TestAIStageReplacesRollingContext(t *testing.T) {
	var gotBody []byte
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"classification":"invoice"}`))
	}))
	defer server.Close()

	f := newAIFixture(t, resolver.Env{AIEndpoint: server.URL, AIKey: "env-key"})
	// Input body artifact, then the response artifact
	f.mock.ExpectExec(`INSERT INTO job_stage_outputs`).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(`INSERT INTO job_stage_outputs`).WillReturnResult(sqlmock.NewResult(0, 1))

	sc := newAIStageContext(t, `{"lines":["a","b"]}`, nil)
	require.NoError(t, f.executor.ExecuteStage(context.Background(), models.Stage{Type: models.StageTypeAI}, sc))

	assert.JSONEq(t, `{"lines":["a","b"]}`, string(gotBody), "without a template the rolling context goes out unchanged")
	assert.Equal(t, "Bearer env-key", gotAuth)
	assert.JSONEq(t, `{"classification":"invoice"}`, string(sc.Rolling.Raw()))
	assert.Len(t, f.blobs.keys(), 2)
}

func TestAIStageRendersPromptTemplate(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	f := newAIFixture(t, resolver.Env{AIEndpoint: server.URL})
	f.mock.ExpectExec(`INSERT INTO job_stage_outputs`).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(`INSERT INTO job_stage_outputs`).WillReturnResult(sqlmock.NewResult(0, 1))

	settings := &models.OrgSettings{
		PromptTemplates: []byte(`[{"name":"summary","text":"Summarize this: {{json_input}}"}]`),
	}
	sc := newAIStageContext(t, `{"total":42}`, settings)

	stage := models.Stage{Type: models.StageTypeAI, PromptName: "summary"}
	require.NoError(t, f.executor.ExecuteStage(context.Background(), stage, sc))

	var request aiRequest
	require.NoError(t, json.Unmarshal(gotBody, &request))
	assert.Equal(t, `Summarize this: {"total":42}`, request.Prompt)
	assert.JSONEq(t, `{"total":42}`, string(request.ContextData))
}

func TestAIStageUnmatchedTemplateSendsRawContext(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	f := newAIFixture(t, resolver.Env{AIEndpoint: server.URL})
	f.mock.ExpectExec(`INSERT INTO job_stage_outputs`).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(`INSERT INTO job_stage_outputs`).WillReturnResult(sqlmock.NewResult(0, 1))

	sc := newAIStageContext(t, `{"x":1}`, &models.OrgSettings{})
	stage := models.Stage{Type: models.StageTypeAI, PromptName: "missing"}
	require.NoError(t, f.executor.ExecuteStage(context.Background(), stage, sc))

	assert.JSONEq(t, `{"x":1}`, string(gotBody))
}

func TestAIStageMissingEndpointIsCritical(t *testing.T) {
	f := newAIFixture(t, resolver.Env{})

	sc := newAIStageContext(t, `{}`, nil)
	err := f.executor.ExecuteStage(context.Background(), models.Stage{Type: models.StageTypeAI}, sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no AI endpoint configured")
	assert.Empty(t, f.blobs.keys())
}

func TestAIStageNonJSONResponseIsCritical(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	f := newAIFixture(t, resolver.Env{AIEndpoint: server.URL})
	// The request body artifact is still saved before the call
	f.mock.ExpectExec(`INSERT INTO job_stage_outputs`).WillReturnResult(sqlmock.NewResult(0, 1))

	sc := newAIStageContext(t, `{"x":1}`, nil)
	err := f.executor.ExecuteStage(context.Background(), models.Stage{Type: models.StageTypeAI}, sc)
	require.Error(t, err)
	assert.JSONEq(t, `{"x":1}`, string(sc.Rolling.Raw()), "a failed call must not touch the rolling context")
	assert.Len(t, f.blobs.keys(), 1, "the input artifact survives the failure")
}

func TestAIStageCustomHeadersForwarded(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Org-Token")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	f := newAIFixture(t, resolver.Env{AIEndpoint: server.URL})
	f.mock.ExpectExec(`INSERT INTO job_stage_outputs`).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec(`INSERT INTO job_stage_outputs`).WillReturnResult(sqlmock.NewResult(0, 1))

	settings := &models.OrgSettings{
		AICustomHeaders: []byte(`[{"name":"X-Org-Token","value":"org-secret"}]`),
	}
	sc := newAIStageContext(t, `{}`, settings)
	require.NoError(t, f.executor.ExecuteStage(context.Background(), models.Stage{Type: models.StageTypeAI}, sc))

	assert.Equal(t, "org-secret", gotHeader)
}
