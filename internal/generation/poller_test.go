package generation

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawtrait/backend/internal/models"
	"github.com/pawtrait/backend/internal/provider"
)

type memRequestStore struct {
	mu       sync.Mutex
	requests map[string]*models.GenerationRequest
}

func newMemRequestStore(reqs ...*models.GenerationRequest) *memRequestStore {
	s := &memRequestStore{requests: map[string]*models.GenerationRequest{}}
	for _, r := range reqs {
		s.requests[r.ID] = r
	}
	return s
}

func (s *memRequestStore) Create(ctx context.Context, req *models.GenerationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *req
	s.requests[req.ID] = &clone
	return nil
}

func (s *memRequestStore) GetByID(ctx context.Context, id string) (*models.GenerationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	clone := *req
	clone.Jobs = append([]models.GenerationJob(nil), req.Jobs...)
	clone.ImageURLs = append([]string(nil), req.ImageURLs...)
	return &clone, nil
}

func (s *memRequestStore) UpdateJobs(ctx context.Context, id string, jobs []models.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if req, ok := s.requests[id]; ok && req.Status == models.GenerationProcessing {
		req.Jobs = append([]models.GenerationJob(nil), jobs...)
	}
	return nil
}

func (s *memRequestStore) MarkCompleted(ctx context.Context, id string, jobs []models.GenerationJob, imageURLs []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok || req.Status != models.GenerationProcessing {
		return false, nil
	}
	req.Status = models.GenerationCompleted
	req.Jobs = append([]models.GenerationJob(nil), jobs...)
	req.ImageURLs = append([]string(nil), imageURLs...)
	return true, nil
}

func (s *memRequestStore) MarkFailed(ctx context.Context, id string, jobs []models.GenerationJob, message string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok || req.Status != models.GenerationProcessing {
		return false, nil
	}
	req.Status = models.GenerationFailed
	req.Jobs = append([]models.GenerationJob(nil), jobs...)
	req.ErrorMessage = message
	return true, nil
}

type memCreditStore struct {
	mu         sync.Mutex
	decrements []int
}

func (s *memCreditStore) DecrementRemaining(ctx context.Context, subscriptionID int64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decrements = append(s.decrements, count)
	return nil
}

type mapChecker struct {
	mu     sync.Mutex
	states map[string]*provider.JobState
}

func (c *mapChecker) Status(ctx context.Context, jobID string) (*provider.JobState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if state, ok := c.states[jobID]; ok {
		return state, nil
	}
	return &provider.JobState{ID: jobID, Status: provider.StatusProcessing}, nil
}

func processingRequest(id string, jobIDs ...string) *models.GenerationRequest {
	req := &models.GenerationRequest{
		ID:             id,
		UserID:         7,
		SubscriptionID: 42,
		Status:         models.GenerationProcessing,
	}
	for _, jobID := range jobIDs {
		req.Jobs = append(req.Jobs, models.GenerationJob{JobID: jobID, Status: models.JobPending})
	}
	return req
}

func TestCheckOnceStaysProcessing(t *testing.T) {
	store := newMemRequestStore(processingRequest("req-1", "a", "b"))
	credits := &memCreditStore{}
	checker := &mapChecker{states: map[string]*provider.JobState{
		"a": {Status: provider.StatusCompleted, ImageURLs: []string{"https://cdn/img-a"}},
	}}

	p := NewPoller(store, credits, checker, nil, discardLogger())
	result, err := p.CheckOnce(context.Background(), "req-1")
	require.NoError(t, err)

	assert.Equal(t, models.GenerationProcessing, result.Status)
	assert.Equal(t, 50, result.ProgressPercent)
	assert.Empty(t, credits.decrements)

	// Progress survived into the store.
	stored, _ := store.GetByID(context.Background(), "req-1")
	assert.Equal(t, models.JobCompleted, stored.Jobs[0].Status)
}

func TestCheckOnceCompletesAndDecrementsOnce(t *testing.T) {
	store := newMemRequestStore(processingRequest("req-1", "a", "b"))
	credits := &memCreditStore{}
	checker := &mapChecker{states: map[string]*provider.JobState{
		"a": {Status: provider.StatusCompleted, ImageURLs: []string{"https://cdn/img-a"}},
		"b": {Status: provider.StatusCompleted, ImageURLs: []string{"https://cdn/img-b"}},
	}}

	p := NewPoller(store, credits, checker, nil, discardLogger())
	result, err := p.CheckOnce(context.Background(), "req-1")
	require.NoError(t, err)

	assert.Equal(t, models.GenerationCompleted, result.Status)
	assert.Equal(t, 100, result.ProgressPercent)
	assert.Equal(t, []string{"https://cdn/img-a", "https://cdn/img-b"}, result.Images)
	assert.Equal(t, []int{2}, credits.decrements)

	// Terminal state is sticky: a replayed check never re-polls or
	// decrements again.
	again, err := p.CheckOnce(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationCompleted, again.Status)
	assert.Equal(t, []int{2}, credits.decrements)
}

func TestCheckOnceAnyFailureFailsRequest(t *testing.T) {
	store := newMemRequestStore(processingRequest("req-1", "a", "b", "c"))
	credits := &memCreditStore{}
	checker := &mapChecker{states: map[string]*provider.JobState{
		"a": {Status: provider.StatusCompleted, ImageURLs: []string{"https://cdn/img-a"}},
		"b": {Status: provider.StatusFailed, Error: "nsfw filter"},
		"c": {Status: provider.StatusCompleted, ImageURLs: []string{"https://cdn/img-c"}},
	}}

	p := NewPoller(store, credits, checker, nil, discardLogger())
	result, err := p.CheckOnce(context.Background(), "req-1")
	require.NoError(t, err)

	// Completed siblings are discarded and no credits are taken.
	assert.Equal(t, models.GenerationFailed, result.Status)
	assert.Empty(t, result.Images)
	assert.Contains(t, result.ErrorMessage, "nsfw filter")
	assert.Empty(t, credits.decrements)
}

func TestCheckOnceAbsorbsStatusCheckErrors(t *testing.T) {
	store := newMemRequestStore(processingRequest("req-1", "a"))
	credits := &memCreditStore{}
	p := NewPoller(store, credits, failingChecker{}, nil, discardLogger())

	result, err := p.CheckOnce(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationProcessing, result.Status)
}

type failingChecker struct{}

func (failingChecker) Status(ctx context.Context, jobID string) (*provider.JobState, error) {
	return nil, context.DeadlineExceeded
}

func TestCheckOnceUnknownRequest(t *testing.T) {
	p := NewPoller(newMemRequestStore(), &memCreditStore{}, &mapChecker{}, nil, discardLogger())
	_, err := p.CheckOnce(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestConcurrentChecksDecrementExactlyOnce(t *testing.T) {
	store := newMemRequestStore(processingRequest("req-1", "a", "b", "c"))
	credits := &memCreditStore{}
	checker := &mapChecker{states: map[string]*provider.JobState{
		"a": {Status: provider.StatusCompleted, ImageURLs: []string{"u-a"}},
		"b": {Status: provider.StatusCompleted, ImageURLs: []string{"u-b"}},
		"c": {Status: provider.StatusCompleted, ImageURLs: []string{"u-c"}},
	}}
	p := NewPoller(store, credits, checker, nil, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.CheckOnce(context.Background(), "req-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, credits.decrements, 1, "only the single completed transition may decrement")
	assert.Equal(t, 3, credits.decrements[0])
}

type prefixArchiver struct{}

func (prefixArchiver) ArchiveFromURL(ctx context.Context, sourceURL string) (string, error) {
	return "https://cdn.pawtrait.example/" + sourceURL, nil
}

func TestCheckOnceArchivesResults(t *testing.T) {
	store := newMemRequestStore(processingRequest("req-1", "a"))
	credits := &memCreditStore{}
	checker := &mapChecker{states: map[string]*provider.JobState{
		"a": {Status: provider.StatusCompleted, ImageURLs: []string{"tmp/one.png"}},
	}}

	p := NewPoller(store, credits, checker, prefixArchiver{}, discardLogger())
	result, err := p.CheckOnce(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://cdn.pawtrait.example/tmp/one.png"}, result.Images)
}
