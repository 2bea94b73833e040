// Package e2e provides end-to-end test infrastructure for the design team
// server: a real database, the real team and runner behind a scripted
// model, and the HTTP and WebSocket surfaces on a local listener.
package e2e

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/design-team/pkg/agent"
	"github.com/codeready-toolchain/design-team/pkg/api"
	"github.com/codeready-toolchain/design-team/pkg/config"
	"github.com/codeready-toolchain/design-team/pkg/database"
	"github.com/codeready-toolchain/design-team/pkg/events"
	"github.com/codeready-toolchain/design-team/pkg/metrics"
	"github.com/codeready-toolchain/design-team/pkg/services"
	"github.com/codeready-toolchain/design-team/pkg/sessions"
	"github.com/codeready-toolchain/design-team/pkg/team"
	testdb "github.com/codeready-toolchain/design-team/test/database"
)

// TestApp boots a complete design team instance for e2e testing.
type TestApp struct {
	Config   *config.Config
	DBClient *database.Client
	Store    *sessions.Store
	Team     *team.Team
	Registry *prometheus.Registry

	// Mocks / test wiring
	LLM *ScriptedLLM

	// Real infrastructure
	EventPublisher *events.EventPublisher
	ConnManager    *events.ConnectionManager
	ChatService    *services.ChatService
	Server         *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"
	WSURL   string // e.g. "ws://127.0.0.1:54321/api/v1/ws"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	cfg        *config.Config
	llm        *ScriptedLLM
	runTimeout time.Duration
	dbClient   *database.Client
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithConfig sets a custom config.
func WithConfig(cfg *config.Config) TestAppOption {
	return func(c *testAppConfig) { c.cfg = cfg }
}

// WithLLM sets a pre-scripted model.
func WithLLM(llm *ScriptedLLM) TestAppOption {
	return func(c *testAppConfig) { c.llm = llm }
}

// WithRunTimeout sets the timeout of one chat run.
func WithRunTimeout(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.runTimeout = d }
}

// WithDBClient injects a pre-created database client, skipping the default
// per-test SQLite file. Used to run the same scenario against PostgreSQL.
func WithDBClient(client *database.Client) TestAppOption {
	return func(c *testAppConfig) { c.dbClient = client }
}

// NewTestApp creates and starts a full test instance.
// Shutdown is registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{runTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.cfg == nil {
		tc.cfg = defaultTestConfig()
	}
	if tc.llm == nil {
		tc.llm = NewScriptedLLM()
	}

	// 1. Database.
	dbClient := tc.dbClient
	if dbClient == nil {
		dbClient = testdb.NewTestClient(t)
	}
	store := sessions.NewStore(dbClient)
	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)

	// 2. Team and runner.
	designTeam, err := team.New(team.Config{
		WorkerModel:           tc.cfg.Team.WorkerModel,
		DesignerModel:         tc.cfg.Team.DesignerModel,
		MaxGameplayIterations: tc.cfg.Team.MaxGameplayIterations,
		ThinkingBudget:        tc.cfg.Team.ThinkingBudget,
		SynthesizePlan:        tc.cfg.Team.SynthesizePlan,
	})
	require.NoError(t, err)
	runner := agent.NewRunner(tc.cfg.AppName, designTeam.Root, store, tc.llm)

	// 3. Streaming infrastructure.
	threadService := services.NewThreadService(dbClient, store, tc.cfg.AppName, m)
	connManager := events.NewConnectionManager(events.NewThreadCatchupAdapter(threadService), 5*time.Second, m)
	eventPublisher := events.NewEventPublisher(connManager)

	// 4. Chat service.
	chatService := services.NewChatService(store, runner, eventPublisher, m, services.ChatConfig{
		AppName:        tc.cfg.AppName,
		WelcomeMessage: tc.cfg.Chat.WelcomeMessage,
		RunTimeout:     tc.runTimeout,
	})

	// 5. HTTP server on a random port.
	server := api.NewServer(tc.cfg, dbClient, threadService, chatService, connManager, reg)
	server.SetEventPublisher(eventPublisher)
	ts := httptest.NewServer(server.Handler())

	app := &TestApp{
		Config:         tc.cfg,
		DBClient:       dbClient,
		Store:          store,
		Team:           designTeam,
		Registry:       reg,
		LLM:            tc.llm,
		EventPublisher: eventPublisher,
		ConnManager:    connManager,
		ChatService:    chatService,
		Server:         server,
		BaseURL:        ts.URL,
		WSURL:          "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws",
		t:              t,
	}

	// Register cleanup in reverse-creation order.
	t.Cleanup(func() {
		_ = chatService.Shutdown(context.Background())
		connManager.CloseAll()
		ts.Close()
	})

	return app
}

// defaultTestConfig creates a minimal config suitable for tests that don't
// provide their own.
func defaultTestConfig() *config.Config {
	return &config.Config{
		AppName:          config.DefaultAppName,
		Team:             &config.TeamConfig{WorkerModel: "test-worker", DesignerModel: "test-designer", MaxGameplayIterations: 3},
		LLM:              config.DefaultLLMConfig(),
		Chat:             config.DefaultChatConfig(),
		Retention:        config.DefaultRetentionConfig(),
		AllowedWSOrigins: []string{"*"},
	}
}
