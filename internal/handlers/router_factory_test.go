package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"dailyfeed/internal/config"
	"dailyfeed/internal/models"
	"dailyfeed/internal/observability"
	"dailyfeed/internal/serviceinterfaces"
	"dailyfeed/internal/services"
	"dailyfeed/internal/store/memory"
	"dailyfeed/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "s3cret"

type stubTextGenerator struct{}

func (stubTextGenerator) Complete(_ context.Context, _ serviceinterfaces.CompletionRequest) (*serviceinterfaces.CompletionResult, error) {
	return &serviceinterfaces.CompletionResult{Text: "An answer", TotalTokens: 12, Model: "stub"}, nil
}

type routerFixture struct {
	router   *gin.Engine
	store    *memory.Store
	runner   *worker.TaskRunner
	topic    models.Topic
	question models.Question
	user     models.User
}

func newTestLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}

func newRouterFixture(t *testing.T, adminToken string) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := newTestLogger()
	metrics := observability.NewNoopPipelineMetrics()
	store := memory.New(time.Now)

	dispatcher := services.NewNotificationDispatcher(services.NewLogMessenger(logger), store, store, store,
		config.PushConfig{BatchSize: 100}, logger, metrics)
	orchestrator := services.NewDailyOrchestrator(store, store, store, dispatcher,
		config.PipelineConfig{Timezone: "UTC", BodyMaxLength: 100}, logger)
	generator := services.NewAnswerGenerator(store, stubTextGenerator{},
		config.GenerationConfig{MaxAttempts: 1, BatchSize: 10}, logger, metrics)

	runner := worker.NewTaskRunner(logger, 20)
	scheduler, err := worker.NewScheduler(config.ScheduleConfig{
		ResetStreaks:     "00:00",
		AnswerGeneration: "02:00",
		TokenCleanup:     "03:00",
		DailyFlow:        "05:00",
	}, "UTC", worker.PipelineJobs(orchestrator, dispatcher, generator), runner, logger, metrics)
	require.NoError(t, err)

	topic := store.AddTopic(models.Topic{Name: "Go", IsActive: true})
	question := store.AddQuestion(models.Question{TopicID: topic.ID, Text: "What is a goroutine?", Difficulty: "easy", IsActive: true})
	token := "device-token-1"
	user := store.AddUser(models.User{IsActive: true, SubscribedTopicIDs: []int64{topic.ID}, PushToken: &token})

	cfg := &config.Config{Server: config.ServerConfig{AdminToken: adminToken}}
	return &routerFixture{
		router:   NewRouter(cfg, orchestrator, dispatcher, generator, scheduler, runner, logger),
		store:    store,
		runner:   runner,
		topic:    topic,
		question: question,
		user:     user,
	}
}

func (f *routerFixture) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	}
	return w, body
}

// runDailyFlow triggers the daily flow over HTTP and waits for the task
func (f *routerFixture) runDailyFlow(t *testing.T) string {
	t.Helper()
	w, body := f.do(t, http.MethodPost, "/v1/admin/jobs/daily_flow/trigger")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	taskID, _ := body["task_id"].(string)
	require.NotEmpty(t, taskID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	info, err := f.runner.Wait(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, worker.TaskSucceeded, info.State, info.Error)
	return taskID
}

func TestRouter_PublicEndpoints(t *testing.T) {
	f := newRouterFixture(t, testAdminToken)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	req = httptest.NewRequest(http.MethodGet, "/v1/version", nil)
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"service":"dailyfeed-worker"`)
}

func TestRouter_AdminTokenRequired(t *testing.T) {
	f := newRouterFixture(t, testAdminToken)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong token", "Bearer nope"},
		{"wrong scheme", "Basic " + testAdminToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/admin/generation/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"kind":"unauthorized"`)
		})
	}

	t.Run("user routes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/users/"+strconv.FormatInt(f.user.ID, 10)+"/feed", nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRouter_EmptyConfiguredTokenRejectsEverything(t *testing.T) {
	f := newRouterFixture(t, "")

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/jobs/history", nil)
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_TriggerJobAndTaskStatus(t *testing.T) {
	f := newRouterFixture(t, testAdminToken)

	taskID := f.runDailyFlow(t)

	w, body := f.do(t, http.MethodGet, "/v1/admin/tasks/"+taskID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "succeeded", body["state"])
	assert.Equal(t, "daily_flow", body["name"])
	assert.Contains(t, body["details"], "1 topics, 1 selected, 1 notifications")

	w, body = f.do(t, http.MethodGet, "/v1/admin/jobs/history")
	require.Equal(t, http.StatusOK, w.Code)
	history, ok := body["history"].([]interface{})
	require.True(t, ok)
	require.Len(t, history, 1)
	record := history[0].(map[string]interface{})
	assert.Equal(t, "manual", record["trigger"])
	assert.Equal(t, taskID, record["task_id"])
	jobs, ok := body["jobs"].([]interface{})
	require.True(t, ok)
	assert.Len(t, jobs, 4)

	w, body = f.do(t, http.MethodPost, "/v1/admin/jobs/launch_rockets/trigger")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", body["kind"])

	w, body = f.do(t, http.MethodGet, "/v1/admin/tasks/no-such-task")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["kind"])
}

func TestRouter_DailyAndDeliveryStats(t *testing.T) {
	f := newRouterFixture(t, testAdminToken)
	f.runDailyFlow(t)

	w, body := f.do(t, http.MethodGet, "/v1/admin/daily/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["topics_with_content"])
	assert.EqualValues(t, 1, body["total_notifications_sent"])

	w, body = f.do(t, http.MethodGet, "/v1/admin/daily/stats?date=2025-13-40")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", body["kind"])

	sels := f.store.Selections()
	require.Len(t, sels, 1)
	w, body = f.do(t, http.MethodGet, "/v1/admin/selections/"+strconv.FormatInt(sels[0].ID, 10)+"/delivery")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])
	assert.EqualValues(t, 1, body["sent"])

	w, _ = f.do(t, http.MethodGet, "/v1/admin/selections/9999/delivery")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, http.MethodGet, "/v1/admin/selections/abc/delivery")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_GenerationStatsAndStale(t *testing.T) {
	f := newRouterFixture(t, testAdminToken)
	_, err := f.store.UpsertAnswer(context.Background(), &models.Answer{
		QuestionID: f.question.ID, Content: "Lightweight thread", GeneratedAt: time.Now(), Model: "stub",
	})
	require.NoError(t, err)

	w, body := f.do(t, http.MethodGet, "/v1/admin/generation/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total_answers"])
	assert.EqualValues(t, 0, body["stale_answers"])

	path := "/v1/admin/questions/" + strconv.FormatInt(f.question.ID, 10) + "/stale"
	w, body = f.do(t, http.MethodPost, path)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["marked"])

	w, body = f.do(t, http.MethodGet, "/v1/admin/generation/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["stale_answers"])

	w, body = f.do(t, http.MethodPost, "/v1/admin/questions/424242/stale")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["marked"])

	w, _ = f.do(t, http.MethodPost, "/v1/admin/questions/-3/stale")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_UserFeedReadAndHistory(t *testing.T) {
	f := newRouterFixture(t, testAdminToken)
	f.runDailyFlow(t)
	userPath := "/v1/users/" + strconv.FormatInt(f.user.ID, 10)

	w, body := f.do(t, http.MethodGet, userPath+"/feed")
	require.Equal(t, http.StatusOK, w.Code)
	items, ok := body["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.Equal(t, "What is a goroutine?", item["question_text"])
	selectionID := int64(item["selection_id"].(float64))

	w, body = f.do(t, http.MethodPost, userPath+"/selections/"+strconv.FormatInt(selectionID, 10)+"/read")
	require.Equal(t, http.StatusOK, w.Code)
	streak := body["streak"].(map[string]interface{})
	assert.EqualValues(t, 1, streak["count"])

	w, _ = f.do(t, http.MethodPost, userPath+"/selections/9999/read")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = f.do(t, http.MethodGet, userPath+"/notifications")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])
	assert.EqualValues(t, 1, body["page"])
	assert.EqualValues(t, config.DefaultHistoryPageSize, body["limit"])

	w, body = f.do(t, http.MethodGet, userPath+"/notifications?page=2&limit=500")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, config.MaxHistoryPageSize, body["limit"])
	assert.Empty(t, body["items"])

	w, _ = f.do(t, http.MethodGet, userPath+"/notifications?limit=lots")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = f.do(t, http.MethodGet, "/v1/users/777777/feed")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["kind"])
}
