package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-interview-go/internal/storage"
	"ai-interview-go/internal/storage/models"
	"ai-interview-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu        sync.Mutex
	jobs      map[string]*models.Job
	apps      map[string]*models.Application
	incrErr   error
	createErr error
}

func newMemoryStore(jobs ...*models.Job) *memoryStore {
	s := &memoryStore{jobs: map[string]*models.Job{}, apps: map[string]*models.Application{}}
	for _, j := range jobs {
		s.jobs[j.JobID] = j
	}
	return s
}

func (s *memoryStore) GetJob(_ context.Context, jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, types.NewNotFoundError("memory.get_job", "岗位不存在")
	}
	cp := *j
	return &cp, nil
}

func (s *memoryStore) ApplicationExists(_ context.Context, jobID, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.apps {
		if a.JobID == jobID && a.CandidateEmail == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) CreateApplication(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, a := range s.apps {
		if a.JobID == app.JobID && a.CandidateEmail == app.CandidateEmail {
			return types.NewConflictError("memory.create", "重复投递")
		}
	}
	cp := *app
	cp.CreatedAt = time.Now()
	s.apps[app.ApplicationID] = &cp
	return nil
}

func (s *memoryStore) IncrementJobApplications(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incrErr != nil {
		return s.incrErr
	}
	s.jobs[jobID].Applications++
	return nil
}

func (s *memoryStore) GetApplication(_ context.Context, id string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return nil, types.NewNotFoundError("memory.get_application", "投递不存在")
	}
	cp := *a
	return &cp, nil
}

func (s *memoryStore) UpdateApplicationStatus(_ context.Context, id string, status types.ApplicationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return types.NewNotFoundError("memory.update_status", "投递不存在")
	}
	a.Status = status
	return nil
}

func (s *memoryStore) ListApplications(_ context.Context, filter storage.ApplicationFilter, page storage.Page) ([]models.Application, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Application
	for _, a := range s.apps {
		if filter.JobID != "" && a.JobID != filter.JobID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ApplicationID < out[j].ApplicationID })
	total := int64(len(out))
	start := page.Offset()
	if start > len(out) {
		start = len(out)
	}
	end := start + page.PageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], total, nil
}

type fixedScorer struct {
	score    float64
	err      error
	lastText string
	calls    int
}

func (f *fixedScorer) Score(_ context.Context, _ *models.Job, text string) (float64, error) {
	f.calls++
	f.lastText = text
	return f.score, f.err
}

type stubExtractor struct {
	text string
	err  error
}

func (e stubExtractor) Extract(context.Context, string, string, []byte) (string, error) {
	return e.text, e.err
}

type memoryBlobs struct {
	objects   map[string][]byte
	uploadErr error
	deleted   []string
}

func (b *memoryBlobs) UploadResume(_ context.Context, appID, filename, _ string, r io.Reader, _ int64) (string, error) {
	if b.uploadErr != nil {
		return "", b.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	key := storage.ResumeObjectKey(appID, filename)
	b.objects[key] = data
	return key, nil
}

func (b *memoryBlobs) PresignResume(_ context.Context, key, _ string) (string, error) {
	return "https://files.test/" + key + "?sig=x", nil
}

func (b *memoryBlobs) DeleteResume(_ context.Context, key string) error {
	b.deleted = append(b.deleted, key)
	delete(b.objects, key)
	return nil
}

func testJob() *models.Job {
	return &models.Job{JobID: "job-1", Title: "Backend Engineer", Company: "Acme"}
}

func validRequest() SubmitRequest {
	return SubmitRequest{
		JobID:     "job-1",
		Candidate: Candidate{Name: "Ana", Email: "Ana@X.io "},
		Resume:    Resume{Bytes: []byte("Go, Postgres"), ContentType: "text/plain", Filename: "cv.txt"},
	}
}

func TestSubmit_Success(t *testing.T) {
	store := newMemoryStore(testJob())
	scorer := &fixedScorer{score: 82}
	blobs := &memoryBlobs{objects: map[string][]byte{}}
	reg := New(store, scorer, WithBlobStore(blobs), WithTextExtractor(stubExtractor{text: "Go, Postgres"}))

	app, err := reg.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, app.ApplicationID)
	assert.Equal(t, types.StatusPending, app.Status)
	assert.Equal(t, 82.0, app.ATSScore)
	assert.Equal(t, "ana@x.io", app.CandidateEmail, "邮箱应归一化为小写")
	assert.Nil(t, app.InterviewScore)
	assert.Equal(t, "Go, Postgres", scorer.lastText)
	assert.Contains(t, blobs.objects, app.ResumeObjectKey)
	assert.EqualValues(t, 1, store.jobs["job-1"].Applications)
}

func TestSubmit_DuplicateEmailIsConflict(t *testing.T) {
	store := newMemoryStore(testJob())
	scorer := &fixedScorer{score: 50}
	reg := New(store, scorer)

	_, err := reg.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.Candidate.Email = "ANA@x.io"
	_, err = reg.Submit(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConflict))
	assert.Equal(t, 1, scorer.calls, "重复投递不应再次调用评分")
	assert.Len(t, store.apps, 1)
}

func TestSubmit_ValidationErrors(t *testing.T) {
	reg := New(newMemoryStore(testJob()), &fixedScorer{})

	cases := map[string]func(r *SubmitRequest){
		"missing email":  func(r *SubmitRequest) { r.Candidate.Email = "" },
		"missing name":   func(r *SubmitRequest) { r.Candidate.Name = "  " },
		"missing resume": func(r *SubmitRequest) { r.Resume.Bytes = nil },
		"bad email":      func(r *SubmitRequest) { r.Candidate.Email = "not-an-email" },
		"bad descriptor": func(r *SubmitRequest) { r.Descriptor = types.Descriptor{0.1, 0.2} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			mutate(&req)
			_, err := reg.Submit(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrValidation), "got %v", err)
		})
	}
}

func TestSubmit_UnknownJobIsNotFound(t *testing.T) {
	reg := New(newMemoryStore(), &fixedScorer{})
	_, err := reg.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestSubmit_ExpiredJobRejected(t *testing.T) {
	job := testJob()
	past := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	job.ExpiresAt = &past
	reg := New(newMemoryStore(job), &fixedScorer{}, WithClock(func() time.Time { return past.Add(time.Hour) }))

	_, err := reg.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestSubmit_ScorerFailureCreatesNothing(t *testing.T) {
	store := newMemoryStore(testJob())
	reg := New(store, &fixedScorer{err: types.NewParseError("ats", "无法解析", nil)})

	_, err := reg.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrExternalService))
	assert.Empty(t, store.apps)
}

func TestSubmit_ExtractionFailureStillScores(t *testing.T) {
	scorer := &fixedScorer{score: 0}
	reg := New(newMemoryStore(testJob()), scorer, WithTextExtractor(stubExtractor{err: fmt.Errorf("损坏的PDF")}))

	app, err := reg.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "", scorer.lastText)
	assert.Equal(t, 0.0, app.ATSScore)
}

func TestSubmit_CreateFailureRemovesBlob(t *testing.T) {
	store := newMemoryStore(testJob())
	store.createErr = fmt.Errorf("connection reset")
	blobs := &memoryBlobs{objects: map[string][]byte{}}
	reg := New(store, &fixedScorer{score: 10}, WithBlobStore(blobs))

	_, err := reg.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.Len(t, blobs.deleted, 1)
	assert.Empty(t, blobs.objects)
}

func TestSubmit_CounterFailureDoesNotFail(t *testing.T) {
	store := newMemoryStore(testJob())
	store.incrErr = fmt.Errorf("deadlock")
	reg := New(store, &fixedScorer{score: 10})

	app, err := reg.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, app.ApplicationID)
}

func TestSubmit_KeepsDescriptor(t *testing.T) {
	reg := New(newMemoryStore(testJob()), &fixedScorer{score: 1}, WithDescriptorDimensions(3))
	req := validRequest()
	req.Descriptor = types.Descriptor{0.1, 0.2, 0.3}

	app, err := reg.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, []float64(app.FaceDescriptor))
}

func TestUpdateStatus(t *testing.T) {
	store := newMemoryStore(testJob())
	reg := New(store, &fixedScorer{score: 1})
	app, err := reg.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	updated, err := reg.UpdateStatus(context.Background(), app.ApplicationID, types.StatusSelected)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSelected, updated.Status)

	// 状态变更不做前置状态检查
	updated, err = reg.UpdateStatus(context.Background(), app.ApplicationID, types.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, updated.Status)

	_, err = reg.UpdateStatus(context.Background(), app.ApplicationID, types.ApplicationStatus("Hired"))
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = reg.UpdateStatus(context.Background(), "missing", types.StatusApproved)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestList_Pagination(t *testing.T) {
	store := newMemoryStore(testJob())
	reg := New(store, &fixedScorer{score: 1})
	for i := 0; i < 5; i++ {
		req := validRequest()
		req.Candidate.Email = fmt.Sprintf("c%d@x.io", i)
		_, err := reg.Submit(context.Background(), req)
		require.NoError(t, err)
	}

	res, err := reg.List(context.Background(), storage.ApplicationFilter{JobID: "job-1"}, storage.Page{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, res.Total)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, 2, res.Page)

	res, err = reg.List(context.Background(), storage.ApplicationFilter{JobID: "other"}, storage.Page{})
	require.NoError(t, err)
	assert.NotNil(t, res.Items)
	assert.Empty(t, res.Items)
	assert.Equal(t, storage.DefaultPageSize, res.PageSize)

	_, err = reg.List(context.Background(), storage.ApplicationFilter{Status: "Unknown"}, storage.Page{})
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestResumeURL(t *testing.T) {
	blobs := &memoryBlobs{objects: map[string][]byte{}}
	reg := New(newMemoryStore(testJob()), &fixedScorer{score: 1}, WithBlobStore(blobs))
	app, err := reg.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	url, err := reg.ResumeURL(context.Background(), app.ApplicationID)
	require.NoError(t, err)
	assert.True(t, strings.Contains(url, app.ApplicationID))

	noBlobs := New(newMemoryStore(testJob()), &fixedScorer{score: 1})
	app2, err := noBlobs.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	_, err = noBlobs.ResumeURL(context.Background(), app2.ApplicationID)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}
