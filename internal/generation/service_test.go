package generation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtrait/backend/internal/models"
	"github.com/pawtrait/backend/internal/prompt"
)

type fakeSubscriptionSource struct {
	sub *models.Subscription
}

func (f *fakeSubscriptionSource) FindActiveForUser(ctx context.Context, userID int64) (*models.Subscription, error) {
	return f.sub, nil
}

type recordingCreator struct {
	created []*models.GenerationRequest
}

func (r *recordingCreator) Create(ctx context.Context, req *models.GenerationRequest) error {
	r.created = append(r.created, req)
	return nil
}

func proSubscription(remaining int) *models.Subscription {
	return &models.Subscription{
		ID:              42,
		UserID:          1,
		Tier:            models.TierPro,
		ImagesTotal:     15,
		ImagesRemaining: remaining,
		Status:          models.SubscriptionActive,
	}
}

func validStart() StartInput {
	return StartInput{
		UserID: 1,
		Selections: models.UserSelections{
			PetType:      "dog",
			Breed:        "corgi",
			StyleID:      "professional-portrait",
			BackgroundID: "studio-white",
		},
		ImageCount: 2,
		PhotoURLs:  []string{"https://photos/one.jpg"},
	}
}

func newTestService(subs SubscriptionSource, creator RequestCreator) *Service {
	dispatcher := NewDispatcher(bigLimiter(), &fakeSubmitter{}, discardLogger())
	return NewService(subs, creator, dispatcher, nil, discardLogger())
}

func TestStartPersistsProcessingRequest(t *testing.T) {
	creator := &recordingCreator{}
	svc := newTestService(&fakeSubscriptionSource{sub: proSubscription(10)}, creator)

	result, err := svc.Start(context.Background(), validStart())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, models.GenerationProcessing, result.Status)
	assert.Equal(t, 2, result.JobCount)
	assert.Greater(t, result.EstimatedSeconds, 0)

	require.Len(t, creator.created, 1)
	stored := creator.created[0]
	assert.Equal(t, result.RequestID, stored.ID)
	assert.Equal(t, int64(42), stored.SubscriptionID)
	assert.Len(t, stored.Jobs, 2)
}

func TestStartWithoutSubscription(t *testing.T) {
	svc := newTestService(&fakeSubscriptionSource{}, &recordingCreator{})
	_, err := svc.Start(context.Background(), validStart())
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestStartRejectsOverdraft(t *testing.T) {
	creator := &recordingCreator{}
	svc := newTestService(&fakeSubscriptionSource{sub: proSubscription(1)}, creator)

	input := validStart()
	input.ImageCount = 2
	_, err := svc.Start(context.Background(), input)
	assert.ErrorIs(t, err, prompt.ErrValidation)
	assert.Empty(t, creator.created)
}

func TestStartValidatesPhotoCount(t *testing.T) {
	svc := newTestService(&fakeSubscriptionSource{sub: proSubscription(10)}, &recordingCreator{})

	input := validStart()
	input.PhotoURLs = nil
	_, err := svc.Start(context.Background(), input)
	assert.ErrorIs(t, err, prompt.ErrValidation)

	input = validStart()
	input.PhotoURLs = []string{"1", "2", "3", "4", "5", "6"}
	_, err = svc.Start(context.Background(), input)
	assert.ErrorIs(t, err, prompt.ErrValidation)
}

func TestStartValidatesImageCount(t *testing.T) {
	svc := newTestService(&fakeSubscriptionSource{sub: proSubscription(10)}, &recordingCreator{})
	input := validStart()
	input.ImageCount = 0
	_, err := svc.Start(context.Background(), input)
	assert.ErrorIs(t, err, prompt.ErrValidation)
}
