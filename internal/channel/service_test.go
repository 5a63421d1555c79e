package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/vipchannel/internal/feed"
	"github.com/hitoshi/vipchannel/internal/metrics"
	"github.com/hitoshi/vipchannel/internal/model"
	"github.com/hitoshi/vipchannel/internal/prediction"
	"github.com/hitoshi/vipchannel/internal/security"
)

var pngData = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testEnv struct {
	store   *memStore
	images  *fakeImageStore
	fetcher *fakeFetcher
	counts  *fakeCountCache
	metrics *fakeMetrics
	logs    *bytes.Buffer
	svc     *Service
	clock   time.Time
}

// newTestEnv はチャンネルC1（作成者U1、購読者U2）を持つテスト環境を生成する。
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   newMemStore(),
		images:  newFakeImageStore(),
		fetcher: &fakeFetcher{},
		counts:  newFakeCountCache(),
		metrics: newFakeMetrics(),
		logs:    &bytes.Buffer{},
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	env.store.channels["C1"] = &model.Channel{ID: "C1", Name: "VIP Winpro", CreatorID: "U1"}
	env.store.profiles["U1"] = &model.Profile{UserID: "U1", Username: "winpro", DisplayName: "Winpro", Badge: "Expert"}
	env.store.subs["C1"] = map[string]bool{"U2": true}

	env.svc = NewService(Deps{
		Channels:      env.store,
		Profiles:      profileRepo{env.store},
		Subscriptions: subRepo{env.store},
		Messages:      messageRepo{env.store},
		Predictions:   predictionRepo{env.store},
		Images:        env.images,
		Fetcher:       env.fetcher,
		Counts:        env.counts,
		Metrics:       env.metrics,
		Logger:        slog.New(slog.NewJSONHandler(env.logs, nil)),
		Now: func() time.Time {
			env.clock = env.clock.Add(time.Second)
			return env.clock
		},
	})
	return env
}

func validDraft() prediction.Draft {
	return prediction.Draft{Odds: "2.50", Description: "Match analysis", PredictionText: "Team A wins"}
}

func assertAPIError(t *testing.T, err error, code string) *model.APIError {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError(%s), got %v", code, err)
	}
	if apiErr.Code != code {
		t.Fatalf("Code = %q, want %q", apiErr.Code, code)
	}
	return apiErr
}

// TestScenario_CreatorPostsSubscriberRejected は作成者の投稿と購読者の投稿拒否の一連の流れを検証する。
func TestScenario_CreatorPostsSubscriberRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	msg, err := env.svc.PostMessage(ctx, "C1", "U1", "Hello")
	if err != nil {
		t.Fatalf("U1 PostMessage returned error: %v", err)
	}
	if msg.AuthorID != "U1" || msg.AuthorName != "Winpro" {
		t.Errorf("message author = %q/%q", msg.AuthorID, msg.AuthorName)
	}

	view, err := env.svc.Load(ctx, "C1", "U2")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(view.Entries) != 1 || view.Entries[0].Kind != feed.KindMessage || view.Entries[0].AuthorID() != "U1" {
		t.Fatalf("feed after U1 post = %+v", view.Entries)
	}

	_, err = env.svc.PostMessage(ctx, "C1", "U2", "Hi")
	assertAPIError(t, err, model.ErrCodePermissionDenied)

	view, _ = env.svc.Load(ctx, "C1", "U2")
	if len(view.Entries) != 1 {
		t.Fatalf("feed should be unchanged after U2 attempt, got %d entries", len(view.Entries))
	}

	p, err := env.svc.PostPrediction(ctx, "C1", "U1", PredictionInput{Draft: validDraft()})
	if err != nil {
		t.Fatalf("U1 PostPrediction returned error: %v", err)
	}
	if got := prediction.FormatOdds(p.Odds); got != "2.50" {
		t.Errorf("odds = %q, want 2.50", got)
	}

	view, _ = env.svc.Load(ctx, "C1", "U2")
	if len(view.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(view.Entries))
	}
	last := view.Entries[1]
	if last.Kind != feed.KindPrediction || last.Prediction.Description != "Match analysis" || last.Prediction.PredictionText != "Team A wins" {
		t.Errorf("prediction entry = %+v", last.Prediction)
	}
	if len(env.store.events) != 2 {
		t.Errorf("outbox events = %d, want 2", len(env.store.events))
	}
}

// TestLoad_Roles は閲覧者ごとのロールと操作可否を検証する。
func TestLoad_Roles(t *testing.T) {
	env := newTestEnv(t)
	env.store.subs["C1"]["U1"] = true // 作成者が購読していても作成者扱い

	tests := []struct {
		viewer  string
		want    model.ViewerRole
		canPost bool
	}{
		{"U1", model.RoleCreator, true},
		{"U2", model.RoleSubscriber, false},
		{"U3", model.RoleGuest, false},
	}
	for _, tt := range tests {
		view, err := env.svc.Load(context.Background(), "C1", tt.viewer)
		if err != nil {
			t.Fatalf("Load(%s) returned error: %v", tt.viewer, err)
		}
		if view.Role != tt.want {
			t.Errorf("Load(%s).Role = %q, want %q", tt.viewer, view.Role, tt.want)
		}
		if view.Capabilities.CanPostMessage != tt.canPost || view.Capabilities.CanPostPrediction != tt.canPost {
			t.Errorf("Load(%s).Capabilities = %+v", tt.viewer, view.Capabilities)
		}
	}
}

// TestLoad_ChannelNotFound は存在しないチャンネルがNotFoundとなることを検証する。
func TestLoad_ChannelNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Load(context.Background(), "missing", "U1")
	assertAPIError(t, err, model.ErrCodeChannelNotFound)
}

// TestLoad_EmptyStateByRole は空フィードの表示がロールで異なることを検証する。
func TestLoad_EmptyStateByRole(t *testing.T) {
	env := newTestEnv(t)

	creatorView, _ := env.svc.Load(context.Background(), "C1", "U1")
	guestView, _ := env.svc.Load(context.Background(), "C1", "U3")

	if creatorView.EmptyState == nil || creatorView.EmptyState.Kind != feed.EmptyCallToAction {
		t.Errorf("creator EmptyState = %+v", creatorView.EmptyState)
	}
	if guestView.EmptyState == nil || guestView.EmptyState.Kind != feed.EmptyWaiting {
		t.Errorf("guest EmptyState = %+v", guestView.EmptyState)
	}

	env.svc.PostMessage(context.Background(), "C1", "U1", "Hello")
	view, _ := env.svc.Load(context.Background(), "C1", "U3")
	if view.EmptyState != nil {
		t.Error("EmptyState should be nil when entries exist")
	}
}

// TestLoad_MissingCreatorProfile は作成者プロフィールがない場合にデフォルト名となることを検証する。
func TestLoad_MissingCreatorProfile(t *testing.T) {
	env := newTestEnv(t)
	delete(env.store.profiles, "U1")

	view, err := env.svc.Load(context.Background(), "C1", "U2")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if view.Creator.DisplayName != model.DefaultDisplayName {
		t.Errorf("DisplayName = %q, want %q", view.Creator.DisplayName, model.DefaultDisplayName)
	}
	if view.Creator.Badge != "" {
		t.Errorf("Badge = %q, want empty", view.Creator.Badge)
	}
}

// TestLoad_RechecksSubscriptionEveryTime は購読解除が次の読み込みで反映されることを検証する。
func TestLoad_RechecksSubscriptionEveryTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	view, _ := env.svc.Load(ctx, "C1", "U2")
	if view.Role != model.RoleSubscriber {
		t.Fatalf("Role = %q, want subscriber", view.Role)
	}

	if err := env.svc.Unsubscribe(ctx, "C1", "U2"); err != nil {
		t.Fatalf("Unsubscribe returned error: %v", err)
	}

	view, _ = env.svc.Load(ctx, "C1", "U2")
	if view.Role != model.RoleGuest {
		t.Errorf("Role after unsubscribe = %q, want guest", view.Role)
	}
	if env.store.existsCalls != 2 {
		t.Errorf("subscription lookups = %d, want 2", env.store.existsCalls)
	}
}

// TestLoad_CreatorSkipsSubscriptionLookup は作成者の読み込みで購読状態を問い合わせないことを検証する。
func TestLoad_CreatorSkipsSubscriptionLookup(t *testing.T) {
	env := newTestEnv(t)

	view, err := env.svc.Load(context.Background(), "C1", "U1")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if view.Role != model.RoleCreator {
		t.Errorf("Role = %q, want creator", view.Role)
	}
	if env.store.existsCalls != 0 {
		t.Errorf("subscription lookups = %d, want 0", env.store.existsCalls)
	}
}

// TestLoad_EmptyViewerIsNeverCreator は作成者IDが空のチャンネルでも空の閲覧者IDが作成者にならないことを検証する。
func TestLoad_EmptyViewerIsNeverCreator(t *testing.T) {
	env := newTestEnv(t)
	env.store.channels["C9"] = &model.Channel{ID: "C9", Name: "orphan"}

	view, err := env.svc.Load(context.Background(), "C9", "")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if view.Role != model.RoleGuest {
		t.Errorf("Role = %q, want guest", view.Role)
	}
	if view.Capabilities.CanPostMessage {
		t.Error("empty viewer must not be able to post")
	}
	if env.store.existsCalls != 1 {
		t.Errorf("subscription lookups = %d, want 1", env.store.existsCalls)
	}
}

// TestPostMessage_EmptyBody は空・空白のみ・タグのみの本文が拒否され何も追加されないことを検証する。
func TestPostMessage_EmptyBody(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{"", "   ", "\n\t", "<script>alert(1)</script>"} {
		_, err := env.svc.PostMessage(context.Background(), "C1", "U1", body)
		apiErr := assertAPIError(t, err, model.ErrCodeEmptyMessage)
		if apiErr.Field != model.FieldBody {
			t.Errorf("Field = %q, want body", apiErr.Field)
		}
	}
	if len(env.store.messages) != 0 || len(env.store.events) != 0 {
		t.Errorf("nothing should be stored, got %d messages", len(env.store.messages))
	}
}

// TestPostMessage_SanitizesBody は本文のHTMLが除去されることを検証する。
func TestPostMessage_SanitizesBody(t *testing.T) {
	env := newTestEnv(t)
	msg, err := env.svc.PostMessage(context.Background(), "C1", "U1", "<b>Hello</b>")
	if err != nil {
		t.Fatalf("PostMessage returned error: %v", err)
	}
	if msg.Body != "Hello" {
		t.Errorf("Body = %q, want Hello", msg.Body)
	}
}

// TestPostMessage_PermissionDenied は作成者以外の投稿が書き込み前に拒否されることを検証する。
func TestPostMessage_PermissionDenied(t *testing.T) {
	env := newTestEnv(t)
	for _, viewer := range []string{"U2", "U3", ""} {
		_, err := env.svc.PostMessage(context.Background(), "C1", viewer, "Hi")
		apiErr := assertAPIError(t, err, model.ErrCodePermissionDenied)
		if apiErr.Category != "permission" {
			t.Errorf("Category = %q", apiErr.Category)
		}
	}
	if len(env.store.messages) != 0 {
		t.Errorf("messages = %d, want 0", len(env.store.messages))
	}
	if env.metrics.rejected[metrics.RejectPermission] != 3 {
		t.Errorf("rejected[permission] = %d, want 3", env.metrics.rejected[metrics.RejectPermission])
	}
	if !strings.Contains(env.logs.String(), "作成者以外による書き込みを拒否しました") {
		t.Error("permission denial should be logged")
	}
}

// TestPostMessage_StoreFailure は保存失敗がエラーとして返ることを検証する。
func TestPostMessage_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.writeErr = errDB

	_, err := env.svc.PostMessage(context.Background(), "C1", "U1", "Hello")
	if !errors.Is(err, errDB) {
		t.Fatalf("expected errDB, got %v", err)
	}
}

// TestPostMessage_EventPayload はアウトボックスイベントの内容を検証する。
func TestPostMessage_EventPayload(t *testing.T) {
	env := newTestEnv(t)
	msg, err := env.svc.PostMessage(context.Background(), "C1", "U1", "Hello")
	if err != nil {
		t.Fatalf("PostMessage returned error: %v", err)
	}

	ev := env.store.events[0]
	var envelope EventEnvelope
	if err := json.Unmarshal(ev.Payload, &envelope); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if envelope.Kind != model.EventMessagePosted || envelope.EntryID != msg.ID || envelope.ChannelID != "C1" {
		t.Errorf("envelope = %+v", envelope)
	}
	if envelope.EventID != ev.ID {
		t.Errorf("EventID = %q, want %q", envelope.EventID, ev.ID)
	}
	var data messagePayload
	if err := json.Unmarshal(envelope.Data, &data); err != nil || data.Body != "Hello" {
		t.Errorf("data = %+v, err = %v", data, err)
	}
}

// TestPostPrediction_ValidationErrors は検証エラーで何も保存されないことを検証する。
func TestPostPrediction_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		draft prediction.Draft
		code  string
	}{
		{"odds 0", prediction.Draft{Odds: "0", Description: "d", PredictionText: "p"}, model.ErrCodeInvalidOdds},
		{"odds -1", prediction.Draft{Odds: "-1", Description: "d", PredictionText: "p"}, model.ErrCodeInvalidOdds},
		{"odds abc", prediction.Draft{Odds: "abc", Description: "d", PredictionText: "p"}, model.ErrCodeInvalidOdds},
		{"html only description", prediction.Draft{Odds: "2", Description: "<b></b>", PredictionText: "p"}, model.ErrCodeEmptyDescription},
		{"6MB image", prediction.Draft{Odds: "2", Description: "d", PredictionText: "p", Image: &prediction.Image{Data: make([]byte, 6*1024*1024)}}, model.ErrCodeImageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.svc.PostPrediction(context.Background(), "C1", "U1", PredictionInput{Draft: tt.draft})
			assertAPIError(t, err, tt.code)
			if len(env.store.predictions) != 0 || len(env.images.objects) != 0 {
				t.Error("nothing should be stored on validation failure")
			}
		})
	}
}

// TestPostPrediction_PermissionCheckedFirst は作成者確認が検証・画像取得より先に行われることを検証する。
func TestPostPrediction_PermissionCheckedFirst(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.PostPrediction(context.Background(), "C1", "U2", PredictionInput{
		Draft:    prediction.Draft{Odds: "abc"},
		ImageURL: "https://images.example.com/a.png",
	})
	assertAPIError(t, err, model.ErrCodePermissionDenied)
	if env.fetcher.calls != 0 {
		t.Error("image must not be fetched for a rejected viewer")
	}
}

// TestPostPrediction_WithImage は画像がストレージへ保存されImageRefが設定されることを検証する。
func TestPostPrediction_WithImage(t *testing.T) {
	env := newTestEnv(t)
	draft := validDraft()
	data := make([]byte, 4*1024*1024)
	copy(data, pngData)
	draft.Image = &prediction.Image{Filename: "analysis.png", Data: data}

	p, err := env.svc.PostPrediction(context.Background(), "C1", "U1", PredictionInput{Draft: draft})
	if err != nil {
		t.Fatalf("PostPrediction returned error: %v", err)
	}
	want := "predictions/C1/" + p.ID + ".png"
	if p.ImageRef != want {
		t.Errorf("ImageRef = %q, want %q", p.ImageRef, want)
	}
	if _, ok := env.images.objects[want]; !ok {
		t.Error("image should be stored")
	}

	url, err := env.svc.PredictionImageURL(context.Background(), "C1", p.ID)
	if err != nil {
		t.Fatalf("PredictionImageURL returned error: %v", err)
	}
	if !strings.Contains(url, want) {
		t.Errorf("url = %q", url)
	}
}

// TestPostPrediction_RemovesImageOnStoreFailure はDB保存失敗時に画像が削除されることを検証する。
func TestPostPrediction_RemovesImageOnStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.writeErr = errDB
	draft := validDraft()
	draft.Image = &prediction.Image{Data: pngData}

	_, err := env.svc.PostPrediction(context.Background(), "C1", "U1", PredictionInput{Draft: draft})
	if !errors.Is(err, errDB) {
		t.Fatalf("expected errDB, got %v", err)
	}
	if len(env.images.removed) != 1 || len(env.images.objects) != 0 {
		t.Errorf("uploaded image should be removed: removed=%v objects=%d", env.images.removed, len(env.images.objects))
	}
}

// TestPostPrediction_ImageWithoutStorage は画像ストレージ未設定時のエラーを検証する。
func TestPostPrediction_ImageWithoutStorage(t *testing.T) {
	env := newTestEnv(t)
	env.svc.images = nil
	draft := validDraft()
	draft.Image = &prediction.Image{Data: pngData}

	_, err := env.svc.PostPrediction(context.Background(), "C1", "U1", PredictionInput{Draft: draft})
	assertAPIError(t, err, model.ErrCodeImageStorageUnavailable)

	// 画像なしの投稿は可能
	if _, err := env.svc.PostPrediction(context.Background(), "C1", "U1", PredictionInput{Draft: validDraft()}); err != nil {
		t.Fatalf("PostPrediction without image returned error: %v", err)
	}
}

// TestPostPrediction_ImageURL はURL指定の画像が取得・検証されることを検証する。
func TestPostPrediction_ImageURL(t *testing.T) {
	t.Run("取得成功", func(t *testing.T) {
		env := newTestEnv(t)
		env.fetcher.img = &security.FetchedImage{Filename: "a.png", ContentType: "image/png", Data: pngData}

		p, err := env.svc.PostPrediction(context.Background(), "C1", "U1", PredictionInput{
			Draft:    validDraft(),
			ImageURL: "https://images.example.com/a.png",
		})
		if err != nil {
			t.Fatalf("PostPrediction returned error: %v", err)
		}
		if !p.HasImage() {
			t.Error("prediction should have an image")
		}
	})

	t.Run("サイズ超過", func(t *testing.T) {
		env := newTestEnv(t)
		env.fetcher.err = security.ErrImageTooLarge

		_, err := env.svc.PostPrediction(context.Background(), "C1", "U1", PredictionInput{
			Draft:    validDraft(),
			ImageURL: "https://images.example.com/big.png",
		})
		assertAPIError(t, err, model.ErrCodeImageTooLarge)
	})

	t.Run("画像ではない", func(t *testing.T) {
		env := newTestEnv(t)
		env.fetcher.img = &security.FetchedImage{ContentType: "text/html", Data: []byte("<html></html>")}

		_, err := env.svc.PostPrediction(context.Background(), "C1", "U1", PredictionInput{
			Draft:    validDraft(),
			ImageURL: "https://example.com/page",
		})
		assertAPIError(t, err, model.ErrCodeInvalidImage)
	})

	t.Run("取得失敗", func(t *testing.T) {
		env := newTestEnv(t)
		env.fetcher.err = errors.New("blocked IP address")

		_, err := env.svc.PostPrediction(context.Background(), "C1", "U1", PredictionInput{
			Draft:    validDraft(),
			ImageURL: "http://10.0.0.1/a.png",
		})
		assertAPIError(t, err, model.ErrCodeImageFetchFailed)
	})
}

// TestSubscribe は購読登録とキャッシュ無効化を検証する。
func TestSubscribe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	count, _ := env.svc.CountSubscribers(ctx, "C1")
	if count != 1 {
		t.Fatalf("initial count = %d, want 1", count)
	}

	if err := env.svc.Subscribe(ctx, "C1", "U3"); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	if err := env.svc.Subscribe(ctx, "C1", "U3"); err != nil {
		t.Fatalf("duplicate Subscribe returned error: %v", err)
	}
	if len(env.counts.invalidated) != 2 {
		t.Errorf("invalidated = %v", env.counts.invalidated)
	}

	view, _ := env.svc.Load(ctx, "C1", "U3")
	if view.Role != model.RoleSubscriber {
		t.Errorf("Role = %q, want subscriber", view.Role)
	}
	if view.SubscriberCount != 2 {
		t.Errorf("SubscriberCount = %d, want 2", view.SubscriberCount)
	}
}

// TestSubscribe_CreatorRejected は作成者が自分のチャンネルを購読できないことを検証する。
func TestSubscribe_CreatorRejected(t *testing.T) {
	env := newTestEnv(t)
	err := env.svc.Subscribe(context.Background(), "C1", "U1")
	assertAPIError(t, err, model.ErrCodeAlreadyMember)
}

// TestCountSubscribers_UsesCache はキャッシュ済みの件数が使用されることを検証する。
func TestCountSubscribers_UsesCache(t *testing.T) {
	env := newTestEnv(t)
	env.counts.values["C1"] = 42

	count, err := env.svc.CountSubscribers(context.Background(), "C1")
	if err != nil {
		t.Fatalf("CountSubscribers returned error: %v", err)
	}
	if count != 42 {
		t.Errorf("count = %d, want cached 42", count)
	}
}

// TestCreate はチャンネル作成を検証する。
func TestCreate(t *testing.T) {
	env := newTestEnv(t)

	ch, err := env.svc.Create(context.Background(), "U5", "  VIP victoirepro ", "Pronos du jour")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if ch.Name != "VIP victoirepro" || ch.CreatorID != "U5" {
		t.Errorf("channel = %+v", ch)
	}

	_, err = env.svc.Create(context.Background(), "U5", "   ", "")
	assertAPIError(t, err, model.ErrCodeInvalidChannelName)
}

// TestPredictionImageURL_NotFound は画像のない予想や別チャンネルの予想がNotFoundとなることを検証する。
func TestPredictionImageURL_NotFound(t *testing.T) {
	env := newTestEnv(t)
	env.store.channels["C2"] = &model.Channel{ID: "C2", CreatorID: "U9"}
	p, _ := env.svc.PostPrediction(context.Background(), "C1", "U1", PredictionInput{Draft: validDraft()})

	_, err := env.svc.PredictionImageURL(context.Background(), "C1", p.ID)
	assertAPIError(t, err, model.ErrCodePredictionNotFound)

	_, err = env.svc.PredictionImageURL(context.Background(), "C2", p.ID)
	assertAPIError(t, err, model.ErrCodePredictionNotFound)
}

// TestCreatorProfile はプロフィールと作成チャンネルの取得を検証する。
func TestCreatorProfile(t *testing.T) {
	env := newTestEnv(t)

	p, channels, err := env.svc.CreatorProfile(context.Background(), "U1")
	if err != nil {
		t.Fatalf("CreatorProfile returned error: %v", err)
	}
	if p.Badge != "Expert" || len(channels) != 1 {
		t.Errorf("profile = %+v, channels = %d", p, len(channels))
	}

	_, _, err = env.svc.CreatorProfile(context.Background(), "nobody")
	assertAPIError(t, err, model.ErrCodeProfileNotFound)
}
