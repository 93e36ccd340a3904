package task

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Martaccvlc/ImageResizingAPI/internal/model"
	taskrepo "github.com/Martaccvlc/ImageResizingAPI/internal/repository/task"
)

type mockRepo struct {
	createFn       func(ctx context.Context, t model.Task) error
	getFn          func(ctx context.Context, id uuid.UUID) (model.Task, error)
	updateStatusFn func(ctx context.Context, id uuid.UUID, upd model.StatusUpdate) error
}

func (m *mockRepo) Create(ctx context.Context, t model.Task) error {
	return m.createFn(ctx, t)
}

func (m *mockRepo) Get(ctx context.Context, id uuid.UUID) (model.Task, error) {
	return m.getFn(ctx, id)
}

func (m *mockRepo) UpdateStatus(ctx context.Context, id uuid.UUID, upd model.StatusUpdate) error {
	return m.updateStatusFn(ctx, id, upd)
}

type mockImages struct {
	getByTaskIDFn func(ctx context.Context, taskID uuid.UUID) ([]model.Image, error)
}

func (m *mockImages) GetByTaskID(ctx context.Context, taskID uuid.UUID) ([]model.Image, error) {
	if m.getByTaskIDFn == nil {
		return nil, nil
	}
	return m.getByTaskIDFn(ctx, taskID)
}

// mockCache is an in-memory stand-in for the Redis view cache. A non-nil
// err makes every operation fail.
type mockCache struct {
	store map[string]model.Task
	err   error
}

func newMockCache() *mockCache {
	return &mockCache{store: make(map[string]model.Task)}
}

func (m *mockCache) Get(_ context.Context, taskID string) (model.Task, error) {
	if m.err != nil {
		return model.Task{}, m.err
	}
	t, ok := m.store[taskID]
	if !ok {
		return model.Task{}, errors.New("cache miss")
	}
	return t, nil
}

func (m *mockCache) Set(_ context.Context, t model.Task) error {
	if m.err != nil {
		return m.err
	}
	m.store[t.ID.String()] = t
	return nil
}

func (m *mockCache) Invalidate(_ context.Context, taskID string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.store, taskID)
	return nil
}

type mockFetcher struct {
	fetchFn func(ctx context.Context, rawURL string) (string, error)
}

func (m *mockFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	return m.fetchFn(ctx, rawURL)
}

type mockProducer struct {
	enqueued []uuid.UUID
	err      error
}

func (m *mockProducer) Enqueue(_ context.Context, taskID uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, taskID)
	return nil
}

func acceptAllRepo() (*mockRepo, *[]model.Task) {
	var created []model.Task
	repo := &mockRepo{
		createFn: func(_ context.Context, t model.Task) error {
			created = append(created, t)
			return nil
		},
	}
	return repo, &created
}

func writeLocalImage(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "source.jpg")
	if err := os.WriteFile(path, []byte("jpeg bytes"), 0o644); err != nil {
		t.Fatalf("Failed to write local image: %v", err)
	}
	return path
}

func TestService_Create_RequiresExactlyOneSource(t *testing.T) {
	repo, _ := acceptAllRepo()
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, &mockProducer{}, nil)

	cases := []struct {
		name  string
		input CreateInput
	}{
		{"neither", CreateInput{}},
		{"both", CreateInput{URL: "https://example.com/a.jpg", LocalPath: "/tmp/a.jpg"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.input)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Expected ErrInvalidRequest, got %v", err)
			}
		})
	}
}

func TestService_Create_RejectsMalformedURL(t *testing.T) {
	repo, _ := acceptAllRepo()
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, &mockProducer{}, nil)

	for _, raw := range []string{"not-a-url", "://missing-scheme", "https://"} {
		if _, err := svc.Create(context.Background(), CreateInput{URL: raw}); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("URL %q: expected ErrInvalidRequest, got %v", raw, err)
		}
	}
}

func TestService_Create_RejectsBadLocalPath(t *testing.T) {
	repo, _ := acceptAllRepo()
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, &mockProducer{}, nil)

	for _, path := range []string{"relative/photo.jpg", "/etc/passwd", "/tmp/archive.zip"} {
		if _, err := svc.Create(context.Background(), CreateInput{LocalPath: path}); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Path %q: expected ErrInvalidRequest, got %v", path, err)
		}
	}
}

func TestService_Create_MissingLocalFile(t *testing.T) {
	repo, _ := acceptAllRepo()
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, &mockProducer{}, nil)

	_, err := svc.Create(context.Background(), CreateInput{LocalPath: "/nonexistent/dir/photo.jpg"})
	if !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("Expected ErrSourceNotFound, got %v", err)
	}
}

func TestService_Create_DownloadFailure(t *testing.T) {
	repo, _ := acceptAllRepo()
	fetcher := &mockFetcher{
		fetchFn: func(_ context.Context, _ string) (string, error) {
			return "", errors.New("connection refused")
		},
	}
	svc := NewService(repo, &mockImages{}, fetcher, &mockProducer{}, nil)

	_, err := svc.Create(context.Background(), CreateInput{URL: "https://example.com/a.jpg"})
	if !errors.Is(err, ErrDownloadFailed) {
		t.Errorf("Expected ErrDownloadFailed, got %v", err)
	}
}

func TestService_Create_LocalPath(t *testing.T) {
	repo, created := acceptAllRepo()
	producer := &mockProducer{}
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, producer, nil)

	path := writeLocalImage(t)

	got, err := svc.Create(context.Background(), CreateInput{LocalPath: path})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if got.Status != model.StatusPending {
		t.Errorf("Expected pending status, got %s", got.Status)
	}
	if got.OriginalPath != path {
		t.Errorf("Expected original path %s, got %s", path, got.OriginalPath)
	}
	if len(got.Images) != 0 {
		t.Errorf("Expected no images on creation, got %d", len(got.Images))
	}
	if got.ErrorMessage != nil {
		t.Errorf("Expected no error message on creation, got %q", *got.ErrorMessage)
	}

	if len(*created) != 1 {
		t.Fatalf("Expected 1 persisted task, got %d", len(*created))
	}
	if len(producer.enqueued) != 1 || producer.enqueued[0] != got.ID {
		t.Errorf("Expected task %s enqueued, got %v", got.ID, producer.enqueued)
	}
}

func TestService_Create_URL(t *testing.T) {
	repo, created := acceptAllRepo()
	fetcher := &mockFetcher{
		fetchFn: func(_ context.Context, rawURL string) (string, error) {
			if rawURL != "https://example.com/photo.jpg" {
				t.Errorf("Unexpected URL passed to fetcher: %s", rawURL)
			}
			return "/data/input/abc.jpg", nil
		},
	}
	svc := NewService(repo, &mockImages{}, fetcher, &mockProducer{}, nil)

	got, err := svc.Create(context.Background(), CreateInput{URL: "https://example.com/photo.jpg"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if got.OriginalPath != "/data/input/abc.jpg" {
		t.Errorf("Expected downloaded path recorded, got %s", got.OriginalPath)
	}
	if len(*created) != 1 {
		t.Fatalf("Expected 1 persisted task, got %d", len(*created))
	}
}

func TestService_Create_PriceBounds(t *testing.T) {
	repo, _ := acceptAllRepo()
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, &mockProducer{}, nil)

	path := writeLocalImage(t)

	for i := 0; i < 200; i++ {
		got, err := svc.Create(context.Background(), CreateInput{LocalPath: path})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if got.Price < 5.00 || got.Price > 50.00 {
			t.Fatalf("Price %.2f out of [5.00, 50.00]", got.Price)
		}
		if math.Abs(got.Price*100-math.Round(got.Price*100)) > 1e-6 {
			t.Fatalf("Price %v has more than two decimals", got.Price)
		}
	}
}

func TestService_Create_EnqueueFailure(t *testing.T) {
	repo, created := acceptAllRepo()
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, &mockProducer{err: errors.New("broker down")}, nil)

	path := writeLocalImage(t)

	if _, err := svc.Create(context.Background(), CreateInput{LocalPath: path}); err == nil {
		t.Fatal("Expected error when enqueue fails, got nil")
	}
	if len(*created) != 1 {
		t.Errorf("Expected the record to persist despite enqueue failure, got %d", len(*created))
	}
}

func TestService_Get(t *testing.T) {
	id := uuid.New()
	want := model.Task{ID: id, Status: model.StatusCompleted, Price: 12.34, CreatedAt: time.Now()}

	repo := &mockRepo{
		getFn: func(_ context.Context, got uuid.UUID) (model.Task, error) {
			if got != id {
				return model.Task{}, taskrepo.ErrTaskNotFound
			}
			return want, nil
		},
	}
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, &mockProducer{}, nil)

	got, err := svc.Get(context.Background(), id.String())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != id || got.Status != model.StatusCompleted {
		t.Errorf("Unexpected task: %+v", got)
	}
}

func TestService_Get_NotFound(t *testing.T) {
	repo := &mockRepo{
		getFn: func(_ context.Context, _ uuid.UUID) (model.Task, error) {
			return model.Task{}, taskrepo.ErrTaskNotFound
		},
	}
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, &mockProducer{}, nil)

	for _, id := range []string{uuid.New().String(), "not-a-uuid"} {
		if _, err := svc.Get(context.Background(), id); !errors.Is(err, taskrepo.ErrTaskNotFound) {
			t.Errorf("ID %q: expected ErrTaskNotFound, got %v", id, err)
		}
	}
}

func TestService_Retry(t *testing.T) {
	id := uuid.New()

	var applied *model.StatusUpdate
	repo := &mockRepo{
		updateStatusFn: func(_ context.Context, got uuid.UUID, upd model.StatusUpdate) error {
			if got != id {
				return taskrepo.ErrTaskNotFound
			}
			applied = &upd
			return nil
		},
		getFn: func(_ context.Context, _ uuid.UUID) (model.Task, error) {
			return model.Task{ID: id, Status: model.StatusPending}, nil
		},
	}
	producer := &mockProducer{}
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, producer, nil)

	got, err := svc.Retry(context.Background(), id.String())
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	if applied == nil {
		t.Fatal("Expected a status update")
	}
	if applied.Status != model.StatusPending {
		t.Errorf("Expected pending reset, got %s", applied.Status)
	}
	if len(applied.Images) != 0 || applied.ErrorMessage != nil {
		t.Error("Expected images and error message cleared on retry")
	}
	if len(producer.enqueued) != 1 || producer.enqueued[0] != id {
		t.Errorf("Expected task %s requeued, got %v", id, producer.enqueued)
	}
	if got.Status != model.StatusPending {
		t.Errorf("Expected returned task pending, got %s", got.Status)
	}
}

func TestService_Get_CacheHit(t *testing.T) {
	id := uuid.New()
	cached := model.Task{ID: id, Status: model.StatusCompleted, Price: 18.20}

	cache := newMockCache()
	cache.store[id.String()] = cached

	repo := &mockRepo{
		getFn: func(_ context.Context, _ uuid.UUID) (model.Task, error) {
			t.Error("Cache hit must not reach the store")
			return model.Task{}, nil
		},
	}
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, &mockProducer{}, cache)

	got, err := svc.Get(context.Background(), id.String())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != model.StatusCompleted || got.Price != 18.20 {
		t.Errorf("Unexpected task from cache: %+v", got)
	}
}

func TestService_Get_CacheMissStoresTerminalView(t *testing.T) {
	id := uuid.New()
	cache := newMockCache()

	var storeReads int
	repo := &mockRepo{
		getFn: func(_ context.Context, _ uuid.UUID) (model.Task, error) {
			storeReads++
			return model.Task{ID: id, Status: model.StatusCompleted, Price: 7.77}, nil
		},
	}
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, &mockProducer{}, cache)

	if _, err := svc.Get(context.Background(), id.String()); err != nil {
		t.Fatalf("First get failed: %v", err)
	}
	if _, ok := cache.store[id.String()]; !ok {
		t.Fatal("Expected the terminal view to be cached after a miss")
	}

	if _, err := svc.Get(context.Background(), id.String()); err != nil {
		t.Fatalf("Second get failed: %v", err)
	}
	if storeReads != 1 {
		t.Errorf("Expected 1 store read, got %d", storeReads)
	}
}

func TestService_Get_PendingViewNotCached(t *testing.T) {
	id := uuid.New()
	cache := newMockCache()

	// The processor completes the task and invalidates the cache while the
	// reader's store load is in flight. Re-caching the loaded pending view
	// would mask the terminal state for the full TTL.
	status := model.StatusPending
	repo := &mockRepo{
		getFn: func(_ context.Context, _ uuid.UUID) (model.Task, error) {
			loaded := model.Task{ID: id, Status: status}
			if status == model.StatusPending {
				status = model.StatusCompleted
				cache.Invalidate(context.Background(), id.String())
			}
			return loaded, nil
		},
	}
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, &mockProducer{}, cache)

	first, err := svc.Get(context.Background(), id.String())
	if err != nil {
		t.Fatalf("First get failed: %v", err)
	}
	if first.Status != model.StatusPending {
		t.Fatalf("Expected the first read to observe pending, got %s", first.Status)
	}
	if _, ok := cache.store[id.String()]; ok {
		t.Fatal("Pending view must not be cached")
	}

	second, err := svc.Get(context.Background(), id.String())
	if err != nil {
		t.Fatalf("Second get failed: %v", err)
	}
	if second.Status != model.StatusCompleted {
		t.Errorf("Stale view served: expected completed, got %s", second.Status)
	}
}

func TestService_Get_CacheErrorFallsBack(t *testing.T) {
	id := uuid.New()
	cache := newMockCache()
	cache.err = errors.New("redis unavailable")

	repo := &mockRepo{
		getFn: func(_ context.Context, _ uuid.UUID) (model.Task, error) {
			return model.Task{ID: id, Status: model.StatusCompleted}, nil
		},
	}
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, &mockProducer{}, cache)

	got, err := svc.Get(context.Background(), id.String())
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("Expected the store's view, got %+v", got)
	}
}

func TestService_Images(t *testing.T) {
	id := uuid.New()
	repo := &mockRepo{
		getFn: func(_ context.Context, _ uuid.UUID) (model.Task, error) {
			return model.Task{ID: id, Status: model.StatusCompleted}, nil
		},
	}
	images := &mockImages{
		getByTaskIDFn: func(_ context.Context, taskID uuid.UUID) ([]model.Image, error) {
			if taskID != id {
				t.Errorf("Unexpected task id %s", taskID)
			}
			return []model.Image{
				{TaskID: id, Path: "photo/1024/abc.jpg", Resolution: "1024", MD5: "abc"},
				{TaskID: id, Path: "photo/800/abc.jpg", Resolution: "800", MD5: "abc"},
			}, nil
		},
	}
	svc := NewService(repo, images, &mockFetcher{}, &mockProducer{}, nil)

	got, err := svc.Images(context.Background(), id.String())
	if err != nil {
		t.Fatalf("Images failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(got))
	}
}

func TestService_Images_UnknownTask(t *testing.T) {
	repo := &mockRepo{
		getFn: func(_ context.Context, _ uuid.UUID) (model.Task, error) {
			return model.Task{}, taskrepo.ErrTaskNotFound
		},
	}
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, &mockProducer{}, nil)

	for _, id := range []string{uuid.New().String(), "not-a-uuid"} {
		if _, err := svc.Images(context.Background(), id); !errors.Is(err, taskrepo.ErrTaskNotFound) {
			t.Errorf("ID %q: expected ErrTaskNotFound, got %v", id, err)
		}
	}
}

func TestService_Retry_UnknownTask(t *testing.T) {
	repo := &mockRepo{
		updateStatusFn: func(_ context.Context, _ uuid.UUID, _ model.StatusUpdate) error {
			return taskrepo.ErrTaskNotFound
		},
	}
	svc := NewService(repo, &mockImages{}, &mockFetcher{}, &mockProducer{}, nil)

	if _, err := svc.Retry(context.Background(), uuid.New().String()); !errors.Is(err, taskrepo.ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}
