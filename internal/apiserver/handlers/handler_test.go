package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/crowdrank/crowdrank-backend/internal/apiserver/events"
	"github.com/crowdrank/crowdrank-backend/internal/apiserver/metrics"
	"github.com/crowdrank/crowdrank-backend/internal/apiserver/websocket"
	"github.com/crowdrank/crowdrank-backend/internal/consensus"
	"github.com/crowdrank/crowdrank-backend/internal/ledger"
	"github.com/crowdrank/crowdrank-backend/pkg/logging"
	"github.com/crowdrank/crowdrank-backend/pkg/payout"
	"github.com/crowdrank/crowdrank-backend/pkg/pricing"
)

const (
	wallet1 = "0x1111111111111111111111111111111111111111"
	wallet2 = "0x2222222222222222222222222222222222222222"
	wallet3 = "0x3333333333333333333333333333333333333333"
	wallet4 = "0x4444444444444444444444444444444444444444"
)

// testPricingConfig prices thumbnails with a 5-review tier and rewards of
// 100/70/40 so assertions stay readable.
func testPricingConfig() pricing.Config {
	return pricing.Config{
		Categories: map[pricing.Category]pricing.CategoryPricing{
			pricing.CategoryThumbnail: {
				Tiers:      map[int]int64{5: 2_000_000, 10: 3_500_000},
				BaseReward: 100,
			},
			pricing.CategoryVideo: {
				Tiers:      map[int]int64{5: 9_000_000},
				BaseReward: 300,
			},
		},
		RankMultiplierPct: []int{100, 70, 40},
		SubmissionCredit:  200,
		FallbackRate:      "1.75",
	}
}

// fakeContentClient stores uploads in memory and can be told to fail after
// a number of successful uploads.
type fakeContentClient struct {
	mu        sync.Mutex
	uploads   map[string][]byte
	deleted   []string
	failAfter int
	counter   int
}

func newFakeContentClient() *fakeContentClient {
	return &fakeContentClient{uploads: make(map[string][]byte), failAfter: -1}
}

func (f *fakeContentClient) Upload(_ context.Context, _ string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter >= 0 && f.counter >= f.failAfter {
		return "", fmt.Errorf("pin rejected")
	}
	f.counter++
	cid := fmt.Sprintf("bafy-fake-%d", f.counter)
	f.uploads[cid] = append([]byte(nil), data...)
	return cid, nil
}

func (f *fakeContentClient) Fetch(_ context.Context, cid string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.uploads[cid]
	if !ok {
		return nil, fmt.Errorf("unknown cid %s", cid)
	}
	return data, nil
}

func (f *fakeContentClient) Delete(_ context.Context, cid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.uploads, cid)
	f.deleted = append(f.deleted, cid)
	return nil
}

func (f *fakeContentClient) Close() error { return nil }

func (f *fakeContentClient) deletedCIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type handlerEnv struct {
	store       *ledger.Store
	engine      *consensus.Engine
	withdrawals *consensus.WithdrawalService
	dispatcher  *payout.MockDispatcher
	content     *fakeContentClient
	hub         *websocket.Hub
	router      *gin.Engine
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.NewNoOpLogger()

	store := ledger.NewTestStore(t)
	oracle, err := pricing.NewOracle(testPricingConfig(), nil, logger)
	require.NoError(t, err)

	dispatcher := payout.NewMockDispatcher()
	hub := websocket.NewHub(logger)
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	publisher := events.NewPublisher(hub, logger)
	engine := consensus.NewEngine(store, oracle, dispatcher, publisher, logger)
	withdrawals := consensus.NewWithdrawalService(store, dispatcher, publisher, logger)
	content := newFakeContentClient()

	handler := NewHandler(Dependencies{
		Store:       store,
		Engine:      engine,
		Withdrawals: withdrawals,
		Oracle:      oracle,
		Content:     content,
		Hub:         hub,
		Metrics:     metrics.NewDefault(),
		Logger:      logger,
	})

	router := gin.New()
	router.GET("/health", handler.HealthCheck)
	api := router.Group("/api")
	api.POST("/tasks", handler.CreateTask)
	api.GET("/tasks/:id", handler.GetTask)
	api.GET("/tasks/:id/completion", handler.GetTaskCompletion)
	api.GET("/tasks/:id/result", handler.GetTaskResult)
	api.POST("/tasks/:id/submissions", handler.CreateSubmission)
	api.GET("/workers/:id", handler.GetWorker)
	api.GET("/workers/:id/stats", handler.GetWorkerStats)
	api.GET("/workers/:id/withdrawals", handler.ListWorkerWithdrawals)
	api.GET("/workers/wallet/:address", handler.GetWorkerByWallet)
	api.POST("/withdrawals", handler.CreateWithdrawal)
	api.GET("/withdrawals/:id", handler.GetWithdrawal)
	api.GET("/leaderboard/workers", handler.GetWorkerLeaderboard)
	api.GET("/pricing", handler.GetPricing)

	return &handlerEnv{
		store:       store,
		engine:      engine,
		withdrawals: withdrawals,
		dispatcher:  dispatcher,
		content:     content,
		hub:         hub,
		router:      router,
	}
}

func (env *handlerEnv) request(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *handlerEnv) getJSON(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return env.request(t, http.MethodGet, path, nil, "")
}

func (env *handlerEnv) postJSON(t *testing.T, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return env.request(t, http.MethodPost, path, bytes.NewReader(data), "application/json")
}

func (env *handlerEnv) createTask(t *testing.T, required, optionCount int) *ledger.Task {
	t.Helper()
	task := &ledger.Task{
		Title:           "pick the best thumbnail",
		Category:        "thumbnail",
		RequiredReviews: required,
		PaymentAmount:   2_000_000,
	}
	for i := 0; i < optionCount; i++ {
		task.Options = append(task.Options, ledger.Option{
			ContentReference: fmt.Sprintf("bafy-seed-%d", i),
			MediaKind:        ledger.MediaKindImage,
		})
	}
	require.NoError(t, env.store.CreateTask(context.Background(), task))
	return task
}

func (env *handlerEnv) vote(t *testing.T, taskID int64, wallet string, optionID int64) *ledger.Submission {
	t.Helper()
	submission, err := env.engine.SubmitVote(context.Background(), taskID, wallet, optionID)
	require.NoError(t, err)
	return submission
}

func (env *handlerEnv) fundWorker(t *testing.T, wallet string, amount int64) *ledger.Worker {
	t.Helper()
	ctx := context.Background()
	worker, err := env.store.GetOrCreateWorkerByWallet(ctx, wallet)
	require.NoError(t, err)
	if amount > 0 {
		require.NoError(t, env.store.CreditSubmission(ctx, worker.ID, amount))
	}
	refreshed, err := env.store.GetWorker(ctx, worker.ID)
	require.NoError(t, err)
	return refreshed
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, w)
	code, _ := body["code"].(string)
	return code
}
