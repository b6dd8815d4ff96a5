// Package triagetest provides in-memory collaborators for coordinator tests.
package triagetest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/item-triage/internal/storage"
	"github.com/cuongbtq/item-triage/internal/triage/domain"
)

// Logger returns a logger that discards everything
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StagingStore keeps staged items per category in insertion order
type StagingStore struct {
	mu    sync.Mutex
	items map[string][]domain.StagedItem

	ListErr   error
	CountErr  error
	DeleteErr map[string]error
}

func NewStagingStore() *StagingStore {
	return &StagingStore{items: make(map[string][]domain.StagedItem), DeleteErr: make(map[string]error)}
}

// Stage appends items for category with the given keys, all owned by institution
func (s *StagingStore) Stage(category, institution string, keys ...string) {
	for i, k := range keys {
		_ = s.Upsert(context.Background(), domain.StagedItem{
			Category:        category,
			ItemKey:         k,
			InstitutionCode: institution,
			StagedAt:        time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
		})
	}
}

func (s *StagingStore) Upsert(_ context.Context, item domain.StagedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.items[item.Category]
	for i := range list {
		if list[i].ItemKey == item.ItemKey {
			list[i].InstitutionCode = item.InstitutionCode
			return nil
		}
	}
	s.items[item.Category] = append(list, item)
	return nil
}

func (s *StagingStore) List(_ context.Context, category string) ([]domain.StagedItem, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.StagedItem(nil), s.items[category]...), nil
}

func (s *StagingStore) Delete(_ context.Context, category, itemKey string) error {
	if err := s.DeleteErr[itemKey]; err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.items[category]
	for i := range list {
		if list[i].ItemKey == itemKey {
			s.items[category] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *StagingStore) Count(_ context.Context, category string) (int, error) {
	if s.CountErr != nil {
		return 0, s.CountErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items[category]), nil
}

// Keys returns the staged keys of category in order
func (s *StagingStore) Keys(category string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.items[category]))
	for _, it := range s.items[category] {
		keys = append(keys, it.ItemKey)
	}
	return keys
}

// JobStore enforces version compare-and-swap like the SQL store
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]domain.BatchJob

	CreateErr error
	GetErr    error
	// BeforeUpdate runs before the version check of every Update, outside the lock
	BeforeUpdate func(job *domain.BatchJob)

	Updates   int
	Conflicts int
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]domain.BatchJob)}
}

func (s *JobStore) Create(_ context.Context, job *domain.BatchJob) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.JobID]; ok {
		return fmt.Errorf("job %s already exists", job.JobID)
	}
	job.Version = 1
	s.jobs[job.JobID] = *job
	return nil
}

func (s *JobStore) Get(_ context.Context, jobID string) (*domain.BatchJob, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return &job, nil
}

func (s *JobStore) Update(_ context.Context, job *domain.BatchJob) error {
	if s.BeforeUpdate != nil {
		s.BeforeUpdate(job)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.JobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if stored.Version != job.Version {
		s.Conflicts++
		return domain.ErrVersionConflict
	}
	job.Version++
	s.jobs[job.JobID] = *job
	s.Updates++
	return nil
}

// Put stores job as-is, bypassing version checks
func (s *JobStore) Put(job domain.BatchJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job
}

// All returns every stored job
func (s *JobStore) All() []domain.BatchJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.BatchJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// List mirrors the SQL keyset query: newest first, at most PageSize+1 rows
func (s *JobStore) List(_ context.Context, filter storage.JobFilter) ([]domain.BatchJob, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	var out []domain.BatchJob
	for _, j := range s.All() {
		if filter.Category != "" && j.Category != filter.Category {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool { return newerJob(out[a], out[b]) })
	if c := filter.Cursor; c != nil {
		pivot := domain.BatchJob{CreatedAt: c.CreatedAt, JobID: c.JobID}
		i := 0
		for i < len(out) && !newerJob(pivot, out[i]) {
			i++
		}
		out = out[i:]
	}
	if len(out) > filter.PageSize+1 {
		out = out[:filter.PageSize+1]
	}
	return out, nil
}

func newerJob(a, b domain.BatchJob) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.JobID > b.JobID
}

// OutcomeStore upserts outcomes on (job_id, item_key)
type OutcomeStore struct {
	mu       sync.Mutex
	outcomes map[string]domain.ItemOutcome
	order    []string

	PutErr  error
	ListErr error
	Puts    int
}

func NewOutcomeStore() *OutcomeStore {
	return &OutcomeStore{outcomes: make(map[string]domain.ItemOutcome)}
}

func (s *OutcomeStore) Put(_ context.Context, o domain.ItemOutcome) error {
	if s.PutErr != nil {
		return s.PutErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := o.JobID + "|" + o.ItemKey
	if _, ok := s.outcomes[key]; !ok {
		s.order = append(s.order, key)
	}
	s.outcomes[key] = o
	s.Puts++
	return nil
}

func (s *OutcomeStore) ListByJob(_ context.Context, jobID string) ([]domain.ItemOutcome, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ItemOutcome
	for _, key := range s.order {
		if o := s.outcomes[key]; o.JobID == jobID {
			out = append(out, o)
		}
	}
	return out, nil
}

// Get returns the outcome for (jobID, itemKey)
func (s *OutcomeStore) Get(jobID, itemKey string) (domain.ItemOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[jobID+"|"+itemKey]
	return o, ok
}

// Queue records sent batch messages
type Queue struct {
	mu   sync.Mutex
	Sent []domain.BatchMessage
	// FailBatches makes SendBatch fail for the listed batch numbers
	FailBatches map[int]bool
	Attempts    int
}

func NewQueue() *Queue {
	return &Queue{FailBatches: make(map[int]bool)}
}

func (q *Queue) SendBatch(_ context.Context, msg domain.BatchMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.Attempts++
	if q.FailBatches[msg.BatchNumber] {
		return fmt.Errorf("broker unavailable for batch %d", msg.BatchNumber)
	}
	q.Sent = append(q.Sent, msg)
	return nil
}

// Directory serves items from memory
type Directory struct {
	mu    sync.Mutex
	items map[string]domain.Item
	Errs  map[string]error
	Calls int
}

func NewDirectory() *Directory {
	return &Directory{items: make(map[string]domain.Item), Errs: make(map[string]error)}
}

// Add registers an item under its institution and barcode
func (d *Directory) Add(item domain.Item) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[item.InstitutionCode+"|"+item.Barcode] = item
}

func (d *Directory) FetchItem(_ context.Context, institutionCode, itemKey string) (*domain.Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	if err := d.Errs[itemKey]; err != nil {
		return nil, err
	}
	item, ok := d.items[institutionCode+"|"+itemKey]
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return &item, nil
}

// Artifact is a stored artifact
type Artifact struct {
	ContentType string
	Data        []byte
}

// ArtifactStore keeps artifacts in memory
type ArtifactStore struct {
	mu        sync.Mutex
	Artifacts map[string]Artifact
	Err       error
}

func NewArtifactStore() *ArtifactStore {
	return &ArtifactStore{Artifacts: make(map[string]Artifact)}
}

func (s *ArtifactStore) PutArtifact(_ context.Context, name, contentType string, data []byte) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Artifacts[name] = Artifact{ContentType: contentType, Data: append([]byte(nil), data...)}
	return nil
}

func (s *ArtifactStore) GetArtifact(_ context.Context, name string) (*storage.Artifact, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.Artifacts[name]
	if !ok {
		return nil, storage.ErrArtifactNotFound
	}
	return &storage.Artifact{Name: name, ContentType: a.ContentType, Data: a.Data}, nil
}

// Names returns the sorted artifact names
func (s *ArtifactStore) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.Artifacts))
	for n := range s.Artifacts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Publisher records downstream messages
type Publisher struct {
	mu            sync.Mutex
	Notifications []domain.Notification
	Updates       []domain.UpdateMessage
	NotifyErr     error
	UpdateErr     error
}

func (p *Publisher) SendNotification(_ context.Context, n domain.Notification) error {
	if p.NotifyErr != nil {
		return p.NotifyErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Notifications = append(p.Notifications, n)
	return nil
}

func (p *Publisher) SendUpdate(_ context.Context, msg domain.UpdateMessage) error {
	if p.UpdateErr != nil {
		return p.UpdateErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Updates = append(p.Updates, msg)
	return nil
}

// Institutions resolves institutions from a fixed list
type Institutions map[string]domain.Institution

func (m Institutions) GetByCode(_ context.Context, code string) (*domain.Institution, error) {
	inst, ok := m[code]
	if !ok {
		return nil, domain.ErrInstitutionNotFound
	}
	return &inst, nil
}
