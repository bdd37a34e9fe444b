package calibration

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/psychro/internal/observability"
	"github.com/RMahshie/psychro/internal/repository"
	"github.com/RMahshie/psychro/internal/repository/sqlite"
	"github.com/RMahshie/psychro/pkg/models"
)

// memoryRepository is an in-memory CalibrationRepository
type memoryRepository struct {
	mu         sync.Mutex
	record     []models.CalibrationExemplar
	loadErr    error
	replaceErr error
	replaces   int
}

func (r *memoryRepository) Load(ctx context.Context) ([]models.CalibrationExemplar, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return append([]models.CalibrationExemplar{}, r.record...), nil
}

func (r *memoryRepository) Replace(ctx context.Context, exemplars []models.CalibrationExemplar) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replaceErr != nil {
		return r.replaceErr
	}
	r.replaces++
	r.record = append([]models.CalibrationExemplar{}, exemplars...)
	return nil
}

func (r *memoryRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record = nil
	return nil
}

// MockImageStore implements storage.ImageStore for testing
type MockImageStore struct {
	mock.Mock
}

func (m *MockImageStore) PutImage(ctx context.Context, key string, image models.Image) error {
	args := m.Called(ctx, key, image)
	return args.Error(0)
}

func (m *MockImageStore) GetImage(ctx context.Context, key string) (models.Image, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(models.Image), args.Error(1)
}

func (m *MockImageStore) DeleteImage(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockImageStore) GenerateDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, key, expiry)
	return args.String(0), args.Error(1)
}

func exemplar(n int) models.CalibrationExemplar {
	return models.CalibrationExemplar{
		ID:           fmt.Sprintf("ex-%d", n),
		Timestamp:    int64(n),
		ImageRef:     fmt.Sprintf("exemplars/ex-%d.jpg", n),
		CorrectedDry: 20 + float64(n),
		CorrectedWet: 15 + float64(n),
	}
}

func newTestStore(repo repository.CalibrationRepository, images *MockImageStore) *Store {
	return NewStore(repo, images, clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)), observability.NewMetricsForTesting())
}

func TestAdd_EvictsOldestBeyondCapacity(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepository{}
	images := &MockImageStore{}
	images.On("DeleteImage", mock.Anything, "exemplars/ex-1.jpg").Return(nil).Once()
	store := newTestStore(repo, images)

	var buffer []models.CalibrationExemplar
	for i := 1; i <= 4; i++ {
		var err error
		buffer, err = store.Add(ctx, exemplar(i))
		require.NoError(t, err)
		assert.LessOrEqual(t, len(buffer), Capacity)
	}

	assert.Equal(t, []models.CalibrationExemplar{exemplar(2), exemplar(3), exemplar(4)}, buffer)
	assert.Equal(t, buffer, repo.record)
	assert.Equal(t, 4, repo.replaces)
	images.AssertExpectations(t)
}

func TestAdd_FailedWriteLeavesBufferUntouched(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepository{}
	store := newTestStore(repo, &MockImageStore{})

	_, err := store.Add(ctx, exemplar(1))
	require.NoError(t, err)

	repo.replaceErr = errors.New("disk full")
	_, err = store.Add(ctx, exemplar(2))
	require.Error(t, err)

	assert.Equal(t, []models.CalibrationExemplar{exemplar(1)}, store.All())
}

func TestAdd_RejectsIncompleteExemplar(t *testing.T) {
	store := newTestStore(&memoryRepository{}, &MockImageStore{})

	_, err := store.Add(context.Background(), models.CalibrationExemplar{ID: "x"})
	assert.ErrorIs(t, err, ErrInvalidExemplar)
}

func TestAdd_ConcurrentWritesAreSerialized(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepository{}
	images := &MockImageStore{}
	images.On("DeleteImage", mock.Anything, mock.Anything).Return(nil)
	store := newTestStore(repo, images)

	var wg sync.WaitGroup
	for i := 1; i <= 12; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.Add(ctx, exemplar(n))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.All(), Capacity)
	assert.Equal(t, store.All(), repo.record)
	assert.Equal(t, 12, repo.replaces)
}

func TestMostRecent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(&memoryRepository{}, &MockImageStore{})

	assert.Empty(t, store.MostRecent(1))

	for i := 1; i <= 3; i++ {
		_, err := store.Add(ctx, exemplar(i))
		require.NoError(t, err)
	}

	assert.Equal(t, []models.CalibrationExemplar{exemplar(3)}, store.MostRecent(1))
	assert.Equal(t, []models.CalibrationExemplar{exemplar(3), exemplar(2), exemplar(1)}, store.MostRecent(10))
	assert.Empty(t, store.MostRecent(0))
}

func TestLoad_ToleratesCorruptAndMissingState(t *testing.T) {
	tests := []struct {
		name string
		repo *memoryRepository
	}{
		{name: "absent record", repo: &memoryRepository{}},
		{name: "corrupt record", repo: &memoryRepository{loadErr: fmt.Errorf("%w: bad json", repository.ErrCorruptRecord)}},
		{name: "unreachable database", repo: &memoryRepository{loadErr: errors.New("connection refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(tt.repo, &MockImageStore{})
			assert.Empty(t, store.Load(context.Background()))
			assert.Empty(t, store.MostRecent(1))
		})
	}
}

func TestLoad_TrimsOversizedRecord(t *testing.T) {
	repo := &memoryRepository{record: []models.CalibrationExemplar{exemplar(1), exemplar(2), exemplar(3), exemplar(4), exemplar(5)}}
	store := newTestStore(repo, &MockImageStore{})

	assert.Equal(t, []models.CalibrationExemplar{exemplar(3), exemplar(4), exemplar(5)}, store.Load(context.Background()))
}

func TestCommit_StoresImageAndExemplar(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepository{}
	images := &MockImageStore{}
	photo := models.Image{Data: []byte("jpeg"), MimeType: "image/jpeg"}
	images.On("PutImage", mock.Anything, mock.AnythingOfType("string"), photo).Return(nil)
	store := newTestStore(repo, images)

	got, err := store.Commit(ctx, photo, 21.4, 16.8)
	require.NoError(t, err)

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "exemplars/"+got.ID+".jpg", got.ImageRef)
	assert.Equal(t, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), got.Timestamp)
	assert.Equal(t, 21.4, got.CorrectedDry)
	assert.Equal(t, 16.8, got.CorrectedWet)
	assert.Equal(t, []models.CalibrationExemplar{got}, repo.record)
	images.AssertExpectations(t)
}

func TestCommit_RemovesImageWhenRecordWriteFails(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepository{replaceErr: errors.New("read-only")}
	images := &MockImageStore{}
	photo := models.Image{Data: []byte("png"), MimeType: "image/png"}
	images.On("PutImage", mock.Anything, mock.AnythingOfType("string"), photo).Return(nil)
	images.On("DeleteImage", mock.Anything, mock.AnythingOfType("string")).Return(nil).Once()
	store := newTestStore(repo, images)

	_, err := store.Commit(ctx, photo, 20, 15)
	require.Error(t, err)
	assert.Empty(t, store.All())
	images.AssertExpectations(t)
}

func TestCommit_ImageUploadFailure(t *testing.T) {
	images := &MockImageStore{}
	images.On("PutImage", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket missing"))
	repo := &memoryRepository{}
	store := newTestStore(repo, images)

	_, err := store.Commit(context.Background(), models.Image{Data: []byte{1}, MimeType: "image/jpeg"}, 20, 15)
	require.Error(t, err)
	assert.Zero(t, repo.replaces)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepository{}
	images := &MockImageStore{}
	images.On("DeleteImage", mock.Anything, mock.Anything).Return(nil)
	store := newTestStore(repo, images)

	_, err := store.Add(ctx, exemplar(1))
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx))

	assert.Empty(t, store.All())
	assert.Empty(t, repo.record)
	images.AssertCalled(t, "DeleteImage", mock.Anything, "exemplars/ex-1.jpg")
}

func TestStore_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "calibration.db")

	repo, err := sqlite.NewSQLiteCalibrationRepository(path, "psychrometer_calibration")
	require.NoError(t, err)
	first := newTestStore(repo, &MockImageStore{})
	first.Load(ctx)
	_, err = first.Add(ctx, exemplar(7))
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := sqlite.NewSQLiteCalibrationRepository(path, "psychrometer_calibration")
	require.NoError(t, err)
	defer reopened.Close()
	second := newTestStore(reopened, &MockImageStore{})

	assert.Equal(t, []models.CalibrationExemplar{exemplar(7)}, second.Load(ctx))
}
