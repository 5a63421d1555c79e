package channel

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/vipchannel/internal/model"
	"github.com/hitoshi/vipchannel/internal/security"
)

// --- モック ---

// memStore はリポジトリ群のインメモリ実装。
type memStore struct {
	mu          sync.Mutex
	channels    map[string]*model.Channel
	profiles    map[string]*model.Profile
	subs        map[string]map[string]bool
	messages    []*model.Message
	predictions []*model.Prediction
	events      []*model.ChannelEvent

	writeErr    error
	existsCalls int
}

func newMemStore() *memStore {
	return &memStore{
		channels: map[string]*model.Channel{},
		profiles: map[string]*model.Profile{},
		subs:     map[string]map[string]bool{},
	}
}

func (m *memStore) FindByID(ctx context.Context, id string) (*model.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[id], nil
}

func (m *memStore) ListByCreatorID(ctx context.Context, creatorID string) ([]*model.Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Channel
	for _, ch := range m.channels {
		if ch.CreatorID == creatorID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) Create(ctx context.Context, ch *model.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.ID] = ch
	return nil
}

// profileRepo はProfileRepositoryの実装。
type profileRepo struct{ *memStore }

func (r profileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profiles[userID], nil
}

func (r profileRepo) FindByUsername(ctx context.Context, username string) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.Username == username {
			return p, nil
		}
	}
	return nil, nil
}

// subRepo はChannelSubscriptionRepositoryの実装。
type subRepo struct{ *memStore }

func (r subRepo) Exists(ctx context.Context, channelID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.existsCalls++
	return r.subs[channelID][userID], nil
}

func (r subRepo) CountByChannelID(ctx context.Context, channelID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[channelID]), nil
}

func (r subRepo) Create(ctx context.Context, sub *model.ChannelSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[sub.ChannelID] == nil {
		r.subs[sub.ChannelID] = map[string]bool{}
	}
	r.subs[sub.ChannelID][sub.UserID] = true
	return nil
}

func (r subRepo) Delete(ctx context.Context, channelID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs[channelID], userID)
	return nil
}

func (r subRepo) DeleteByUserID(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, users := range r.subs {
		delete(users, userID)
	}
	return nil
}

// messageRepo はMessageRepositoryの実装。
type messageRepo struct{ *memStore }

func (r messageRepo) ListByChannelID(ctx context.Context, channelID string) ([]*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Message
	for _, m := range r.messages {
		if m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r messageRepo) CreateWithEvent(ctx context.Context, msg *model.Message, event *model.ChannelEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	r.messages = append(r.messages, msg)
	r.events = append(r.events, event)
	return nil
}

// predictionRepo はPredictionRepositoryの実装。
type predictionRepo struct{ *memStore }

func (r predictionRepo) ListByChannelID(ctx context.Context, channelID string) ([]*model.Prediction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Prediction
	for _, p := range r.predictions {
		if p.ChannelID == channelID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r predictionRepo) FindByID(ctx context.Context, id string) (*model.Prediction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.predictions {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (r predictionRepo) CreateWithEvent(ctx context.Context, p *model.Prediction, event *model.ChannelEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	r.predictions = append(r.predictions, p)
	r.events = append(r.events, event)
	return nil
}

// fakeImageStore はImageStoreのモック。
type fakeImageStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	removed []string
	putErr  error
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{objects: map[string][]byte{}}
}

func (f *fakeImageStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = data
	return nil
}

func (f *fakeImageStore) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.removed = append(f.removed, key)
	return nil
}

func (f *fakeImageStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://storage.example.com/" + key + "?ttl=" + ttl.String(), nil
}

// fakeFetcher はImageFetcherのモック。
type fakeFetcher struct {
	img   *security.FetchedImage
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) (*security.FetchedImage, error) {
	f.calls++
	return f.img, f.err
}

// fakeCountCache はSubscriberCountCacheのモック。
type fakeCountCache struct {
	values      map[string]int
	invalidated []string
}

func newFakeCountCache() *fakeCountCache {
	return &fakeCountCache{values: map[string]int{}}
}

func (f *fakeCountCache) Get(ctx context.Context, channelID string) (int, bool, error) {
	v, ok := f.values[channelID]
	return v, ok, nil
}

func (f *fakeCountCache) Set(ctx context.Context, channelID string, count int) error {
	f.values[channelID] = count
	return nil
}

func (f *fakeCountCache) Invalidate(ctx context.Context, channelID string) error {
	delete(f.values, channelID)
	f.invalidated = append(f.invalidated, channelID)
	return nil
}

// fakeMetrics は記録内容を保持するMetricsCollectorのモック。
type fakeMetrics struct {
	messages    int
	predictions int
	rejected    map[string]int
	loads       int
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{rejected: map[string]int{}} }

func (f *fakeMetrics) RecordMessagePosted() { f.messages++ }
func (f *fakeMetrics) RecordPredictionPosted(bool) { f.predictions++ }
func (f *fakeMetrics) RecordWriteRejected(reason string) { f.rejected[reason]++ }
func (f *fakeMetrics) RecordChannelLoad(time.Duration) { f.loads++ }
func (f *fakeMetrics) RecordHTTPStatus(int) {}
func (f *fakeMetrics) RecordEventPublished(string) {}
func (f *fakeMetrics) RecordEventFailure(bool) {}

var errDB = errors.New("db unavailable")
