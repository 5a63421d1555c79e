package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type execCall struct {
	query string
	args  []interface{}
}

// mockExecutor はExecutorインターフェースのモック実装。
// テストではPostgreSQLを使わず、SQLクエリの内容と引数を検証する。
type mockExecutor struct {
	mu      sync.Mutex
	calls   []execCall
	results []sql.Result // 呼び出し順に返す結果
	err     error
	failOn  string // クエリにこの文字列を含む場合のみerrを返す
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, execCall{query: query, args: args})
	if m.err != nil && (m.failOn == "" || strings.Contains(query, m.failOn)) {
		return nil, m.err
	}
	i := len(m.calls) - 1
	if i < len(m.results) {
		return m.results[i], nil
	}
	return &fakeResult{}, nil
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogEntry はキーを含む最初のJSONログ行を返す。
func findLogEntry(t *testing.T, buf *bytes.Buffer, key string) map[string]interface{} {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if _, ok := entry[key]; ok {
			return entry
		}
	}
	return nil
}

func TestNewCleanupJob_SetsRetentionDays(t *testing.T) {
	job := NewCleanupJob(&mockExecutor{}, newTestLogger(&bytes.Buffer{}))

	if job == nil {
		t.Fatal("NewCleanupJob は nil を返してはならない")
	}
	if job.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", job.RetentionDays)
	}
}

func TestCleanupJob_Run_DeletesSessionsAndEvents(t *testing.T) {
	mock := &mockExecutor{}
	job := NewCleanupJob(mock, newTestLogger(&bytes.Buffer{}))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	if len(mock.calls) != 2 {
		t.Fatalf("ExecContext 呼び出し回数 = %d, want 2", len(mock.calls))
	}

	if !strings.Contains(mock.calls[0].query, "DELETE FROM sessions") ||
		!strings.Contains(mock.calls[0].query, "expires_at") {
		t.Errorf("1件目のクエリが期限切れセッションの削除ではない: %s", mock.calls[0].query)
	}

	events := mock.calls[1].query
	if !strings.Contains(events, "DELETE FROM channel_events") {
		t.Errorf("2件目のクエリが 'DELETE FROM channel_events' ではない: %s", events)
	}
	// 未送信イベントを削除しないこと
	if !strings.Contains(events, "published_at IS NOT NULL") || !strings.Contains(events, "dead = true") {
		t.Errorf("処理済みイベントの条件が含まれていない: %s", events)
	}
}

func TestCleanupJob_Run_UsesIntervalParameter(t *testing.T) {
	mock := &mockExecutor{}
	job := NewCleanupJob(mock, newTestLogger(&bytes.Buffer{}))
	job.RetentionDays = 30

	_ = job.Run(context.Background())

	args := mock.calls[1].args
	if len(args) != 1 {
		t.Fatalf("イベント削除の引数 = %v", args)
	}
	if got, _ := args[0].(string); got != "30 days" {
		t.Errorf("interval引数 = %q, want %q", got, "30 days")
	}
}

func TestCleanupJob_Run_LogsDeletedCounts(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{results: []sql.Result{
		&fakeResult{rowsAffected: 4},
		&fakeResult{rowsAffected: 42},
	}}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	_ = job.Run(context.Background())

	entry := findLogEntry(t, &buf, "deleted_events")
	if entry == nil {
		t.Fatalf("完了ログが記録されていない。ログ出力: %s", buf.String())
	}
	if entry["deleted_sessions"] != float64(4) || entry["deleted_events"] != float64(42) {
		t.Errorf("削除件数 = %v / %v, want 4 / 42", entry["deleted_sessions"], entry["deleted_events"])
	}
	if entry["retention_days"] != float64(7) {
		t.Errorf("retention_days = %v, want 7", entry["retention_days"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("ログに duration_ms が記録されていない")
	}
}

func TestCleanupJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{err: sql.ErrConnDone}
	job := NewCleanupJob(mock, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}
	if len(mock.calls) != 1 {
		t.Errorf("セッション削除の失敗後は処理を中断すべき: calls = %d", len(mock.calls))
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_EventFailureNamesTable(t *testing.T) {
	mock := &mockExecutor{err: sql.ErrConnDone, failOn: "channel_events"}
	job := NewCleanupJob(mock, newTestLogger(&bytes.Buffer{}))

	err := job.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "channel_events") {
		t.Errorf("エラーにテーブル名が含まれるべき: %v", err)
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	job := NewCleanupJob(&mockExecutor{}, newTestLogger(&bytes.Buffer{}))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("1回目の Run() がエラーを返した: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("2回目の Run() がエラーを返した: %v", err)
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStops(t *testing.T) {
	mock := &mockExecutor{}
	job := NewCleanupJob(mock, newTestLogger(&bytes.Buffer{}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for mock.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start がキャンセル後に終了しなかった")
	}
	if mock.callCount() != 2 {
		t.Errorf("起動直後に1回実行されるべき: calls = %d", mock.callCount())
	}
}
