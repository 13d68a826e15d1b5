package container

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approval-workflow/internal/application/service"
	appwf "github.com/garyjia/approval-workflow/internal/application/workflow"
	domainwf "github.com/garyjia/approval-workflow/internal/domain/workflow"
)

const testWorkflows = `
workflows:
  - request_type: expense
    stages:
      - name: finance_manager_review
        required_capability: finance_manager
      - name: admin_review
        required_capability: admin
`

type larkMessages struct {
	mu       sync.Mutex
	received map[string][]string
}

func (m *larkMessages) to(openID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.received[openID]...)
}

func fakeLark(t *testing.T) (*httptest.Server, *larkMessages) {
	t.Helper()
	msgs := &larkMessages{received: make(map[string][]string)}

	mux := http.NewServeMux()
	mux.HandleFunc("/open-apis/auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"code":0,"msg":"ok","tenant_access_token":"t-test","expire":7200}`)
	})
	mux.HandleFunc("/open-apis/im/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ReceiveID string `json:"receive_id"`
			Content   string `json:"content"`
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		var content struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal([]byte(body.Content), &content)

		msgs.mu.Lock()
		msgs.received[body.ReceiveID] = append(msgs.received[body.ReceiveID], content.Text)
		msgs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"code":0,"msg":"success","data":{"message_id":"om_1"}}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, msgs
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	defs := filepath.Join(dir, "workflows.yaml")
	require.NoError(t, os.WriteFile(defs, []byte(testWorkflows), 0644))

	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "approval.db")
	cfg.Workflow.DefinitionsPath = defs
	cfg.Directory.Actors = []ActorSeed{
		{ID: "emp-1", LarkOpenID: "ou_emp1"},
		{ID: "fm-1", LarkOpenID: "ou_fm1", Capabilities: []string{"finance_manager"}},
		{ID: "admin-1", LarkOpenID: "ou_admin1", Capabilities: []string{"admin"}},
	}
	cfg.Notification.InitialInterval = time.Millisecond
	cfg.Notification.MaxInterval = time.Millisecond
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Lark.Enabled = true
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err, "lark credentials are required when enabled")
}

func TestContainer_EndToEnd(t *testing.T) {
	srv, msgs := fakeLark(t)

	cfg := testConfig(t)
	cfg.Lark = LarkConfig{Enabled: true, AppID: "cli_test", AppSecret: "secret", BaseURL: srv.URL}
	cfg.Reminder = ReminderConfig{Enabled: true, Interval: time.Hour, StaleAfter: time.Hour, BatchSize: 10}

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()))

	ctx := context.Background()
	engine := c.Engine()

	req, err := engine.Submit(ctx, appwf.SubmitInput{Type: "expense", RequesterID: "emp-1", Amount: 4200, Description: "team lunch"})
	require.NoError(t, err)

	_, err = engine.Approve(ctx, req.ID, "admin-1", appwf.ApproveOptions{})
	assert.True(t, errors.Is(err, domainwf.ErrAuthorization))

	req, err = engine.Approve(ctx, req.ID, "fm-1", appwf.ApproveOptions{})
	require.NoError(t, err)
	req, err = engine.Approve(ctx, req.ID, "admin-1", appwf.ApproveOptions{})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateApproved, req.Status)
	assert.Equal(t, int64(3), req.Version)

	report, err := c.Services().History.Report(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.Len(t, report.Transitions, 3)

	queue, err := c.Services().Queue.ListActionable(ctx, "fm-1", "expense", service.QueueFilter{})
	require.NoError(t, err)
	assert.Empty(t, queue)

	health := c.Health(ctx)
	assert.Equal(t, "ok", health["database"])
	assert.Equal(t, "ok", health["dispatcher"])
	assert.Equal(t, "ok", health["worker.ReminderWorker"])
	assert.Equal(t, "ok", health["notifications"])

	families, err := c.Gatherer().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	require.NoError(t, c.Close())
	assert.Error(t, c.Close())

	// Close drained the dispatcher, so every notification has been delivered
	assert.Len(t, msgs.to("ou_fm1"), 1, "submit notifies the first stage")
	assert.Len(t, msgs.to("ou_admin1"), 1, "approval notifies the next stage")
	require.Len(t, msgs.to("ou_emp1"), 1, "final approval notifies the requester")
}

func TestContainer_WithoutLark(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Nil(t, c.Services().Notification)
	_, hasNotifications := c.Health(context.Background())["notifications"]
	assert.False(t, hasNotifications)
	assert.Equal(t, 0, c.Workers().WorkerCount())

	_, err = c.Engine().Submit(context.Background(), appwf.SubmitInput{Type: "expense", RequesterID: "emp-1", Amount: 100})
	assert.NoError(t, err)
}

func TestContainer_StartFailsOnMissingDefinitions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.DefinitionsPath = filepath.Join(t.TempDir(), "missing.yaml")

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Error(t, c.Start(context.Background()))
	assert.False(t, c.Ready())
}
