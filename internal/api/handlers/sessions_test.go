package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/RMahshie/psychro/internal/observability"
	"github.com/RMahshie/psychro/internal/session"
	"github.com/RMahshie/psychro/pkg/models"
)

// MockExtractionService implements processing.ExtractionService for testing
type MockExtractionService struct {
	mock.Mock
}

func (m *MockExtractionService) ProcessExtraction(ctx context.Context, sess *session.Session, attempt int) error {
	args := m.Called(ctx, sess, attempt)
	return args.Error(0)
}

// MockCommitter implements session.ExemplarCommitter for testing
type MockCommitter struct {
	mock.Mock
}

func (m *MockCommitter) Commit(ctx context.Context, image models.Image, dryTemp, wetTemp float64) (models.CalibrationExemplar, error) {
	args := m.Called(ctx, image, dryTemp, wetTemp)
	return args.Get(0).(models.CalibrationExemplar), args.Error(1)
}

var jpeg = []byte{0xff, 0xd8, 0xff, 0xe0}

func newSessionHandler() (*SessionHandler, *session.Manager, *MockExtractionService, *MockCommitter) {
	committer := new(MockCommitter)
	extraction := new(MockExtractionService)
	manager := session.NewManager(committer, clockwork.NewFakeClock(), observability.NewMetricsForTesting())
	return NewSessionHandler(manager, extraction), manager, extraction, committer
}

func selectImageRequest(id string, image []byte, mimeType string) *models.SelectImageRequest {
	req := &models.SelectImageRequest{ID: id}
	req.Body.Image = image
	req.Body.MimeType = mimeType
	return req
}

func editRequest(id string, dry, wet float64) *models.EditReadingRequest {
	req := &models.EditReadingRequest{ID: id}
	req.Body.DryTemp = dry
	req.Body.WetTemp = wet
	return req
}

// assertStatus checks that err is a huma error with the given status
func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	var se huma.StatusError
	require.True(t, errors.As(err, &se), "expected huma status error, got %v", err)
	assert.Equal(t, status, se.GetStatus())
}

// extractedSession creates a session whose photo was read as dry/wet
func extractedSession(t *testing.T, manager *session.Manager, dry, wet float64) *session.Session {
	t.Helper()
	sess := manager.Create()
	_, attempt, err := sess.Begin(models.Image{Data: jpeg, MimeType: "image/jpeg"})
	require.NoError(t, err)
	require.NoError(t, sess.Complete(attempt, models.Reading{IsValidSubject: true, DryTemp: dry, WetTemp: wet}, nil))
	return sess
}

func TestCreateAndGetSession(t *testing.T) {
	handler, _, _, _ := newSessionHandler()

	created, err := handler.CreateSession(context.Background(), &struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "idle", created.Body.State)
	assert.NotEmpty(t, created.Body.ID)

	got, err := handler.GetSession(context.Background(), &models.SessionIDRequest{ID: created.Body.ID})
	require.NoError(t, err)
	assert.Equal(t, created.Body.ID, got.Body.ID)

	_, err = handler.GetSession(context.Background(), &models.SessionIDRequest{ID: uuid.New().String()})
	assertStatus(t, err, http.StatusNotFound)

	_, err = handler.GetSession(context.Background(), &models.SessionIDRequest{ID: "not-a-uuid"})
	assertStatus(t, err, http.StatusBadRequest)
}

func TestSelectImage(t *testing.T) {
	tests := []struct {
		name       string
		image      []byte
		mimeType   string
		wantStatus int
	}{
		{name: "valid jpeg", image: jpeg, mimeType: "image/jpeg"},
		{name: "unsupported format", image: jpeg, mimeType: "image/gif", wantStatus: http.StatusBadRequest},
		{name: "empty photo", image: []byte{}, mimeType: "image/png", wantStatus: http.StatusBadRequest},
		{name: "photo too large", image: make([]byte, maxImageBytes+1), mimeType: "image/png", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, manager, extraction, _ := newSessionHandler()
			sess := manager.Create()
			started := make(chan struct{})
			extraction.On("ProcessExtraction", mock.Anything, sess, 1).
				Run(func(mock.Arguments) { close(started) }).
				Return(nil).Maybe()

			resp, err := handler.SelectImage(context.Background(), selectImageRequest(sess.ID, tt.image, tt.mimeType))

			if tt.wantStatus != 0 {
				assertStatus(t, err, tt.wantStatus)
				assert.Equal(t, session.StateIdle, sess.Machine().State)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "awaiting_extraction", resp.Body.State)
			assert.Equal(t, "image/jpeg", resp.Body.ImageMimeType)
			select {
			case <-started:
			case <-time.After(time.Second):
				t.Fatal("extraction was not started")
			}
		})
	}
}

func TestSelectImage_WhileInFlight(t *testing.T) {
	handler, manager, extraction, _ := newSessionHandler()
	sess := manager.Create()
	extraction.On("ProcessExtraction", mock.Anything, sess, 1).Return(nil).Maybe()

	_, err := handler.SelectImage(context.Background(), selectImageRequest(sess.ID, jpeg, "image/jpeg"))
	require.NoError(t, err)

	_, err = handler.SelectImage(context.Background(), selectImageRequest(sess.ID, jpeg, "image/jpeg"))
	assertStatus(t, err, http.StatusConflict)
}

func TestEditReading(t *testing.T) {
	handler, manager, _, _ := newSessionHandler()
	sess := extractedSession(t, manager, 20, 15)

	resp, err := handler.EditReading(context.Background(), editRequest(sess.ID, 20, 25))
	require.NoError(t, err)
	assert.Nil(t, resp.Body.Result)
	assert.NotEmpty(t, resp.Body.ValidationError)
	assert.True(t, resp.Body.Corrected)

	idle := manager.Create()
	_, err = handler.EditReading(context.Background(), editRequest(idle.ID, 20, 15))
	assertStatus(t, err, http.StatusConflict)
}

func TestCalibrate(t *testing.T) {
	t.Run("commits reviewed values", func(t *testing.T) {
		handler, manager, _, committer := newSessionHandler()
		sess := extractedSession(t, manager, 20, 15)
		exemplar := models.CalibrationExemplar{ID: "ex-1", ImageRef: "exemplars/ex-1.jpg", CorrectedDry: 20, CorrectedWet: 15}
		committer.On("Commit", mock.Anything, mock.AnythingOfType("models.Image"), 20.0, 15.0).Return(exemplar, nil)

		resp, err := handler.Calibrate(context.Background(), &models.SessionIDRequest{ID: sess.ID})
		require.NoError(t, err)
		assert.Equal(t, "calibrated", resp.Body.State)
		assert.Equal(t, "ex-1", resp.Body.Exemplar.ID)

		_, err = handler.Calibrate(context.Background(), &models.SessionIDRequest{ID: sess.ID})
		assertStatus(t, err, http.StatusConflict)
		committer.AssertNumberOfCalls(t, "Commit", 1)
	})

	t.Run("blocked while inconsistent", func(t *testing.T) {
		handler, manager, _, committer := newSessionHandler()
		sess := extractedSession(t, manager, 20, 25)

		_, err := handler.Calibrate(context.Background(), &models.SessionIDRequest{ID: sess.ID})
		assertStatus(t, err, http.StatusUnprocessableEntity)
		committer.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store failure", func(t *testing.T) {
		handler, manager, _, committer := newSessionHandler()
		sess := extractedSession(t, manager, 20, 15)
		committer.On("Commit", mock.Anything, mock.Anything, 20.0, 15.0).
			Return(models.CalibrationExemplar{}, errors.New("bucket unavailable"))

		_, err := handler.Calibrate(context.Background(), &models.SessionIDRequest{ID: sess.ID})
		assertStatus(t, err, http.StatusInternalServerError)
		assert.Equal(t, session.StateReviewing, sess.Machine().State)
	})
}

func TestResetAndDeleteSession(t *testing.T) {
	handler, manager, _, _ := newSessionHandler()
	sess := extractedSession(t, manager, 20, 15)

	resp, err := handler.ResetSession(context.Background(), &models.SessionIDRequest{ID: sess.ID})
	require.NoError(t, err)
	assert.Equal(t, "idle", resp.Body.State)
	assert.Nil(t, resp.Body.Reading)

	_, err = handler.DeleteSession(context.Background(), &models.SessionIDRequest{ID: sess.ID})
	require.NoError(t, err)

	_, err = handler.DeleteSession(context.Background(), &models.SessionIDRequest{ID: sess.ID})
	assertStatus(t, err, http.StatusNotFound)
}
