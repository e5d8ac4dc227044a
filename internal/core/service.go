package core

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/ddrcsv/internal/logging"
	"github.com/JonMunkholm/ddrcsv/internal/models"
	"github.com/JonMunkholm/ddrcsv/internal/vocab"
)

// DefaultImportTimeout bounds one background batch.
const DefaultImportTimeout = 30 * time.Minute

// jobRetention is how long finished jobs stay queryable.
const jobRetention = 30 * time.Minute

// ServiceConfig wires a Service.
type ServiceConfig struct {
	MediaBase string
	LockFile  string
	Timeout   time.Duration
	Importer  *Importer
	Exporter  *Exporter
	Limiter   *ImportLimiter
	History   HistoryStore
}

// Service runs batches for the web API, the inbox watcher and the CLI.
// It serializes batches per collection and bounds them overall.
type Service struct {
	cfg ServiceConfig

	mu   sync.RWMutex
	jobs map[string]*activeJob
	wg   sync.WaitGroup
}

// JobStatus is a snapshot of a background batch.
type JobStatus struct {
	ID         string       `json:"id"`
	Kind       models.Kind  `json:"kind"`
	Collection string       `json:"collection"`
	CSVPath    string       `json:"csv_path"`
	Progress   Progress     `json:"progress"`
	Done       bool         `json:"done"`
	Report     *Report      `json:"report,omitempty"`
	Error      *UserMessage `json:"error,omitempty"`
	Started    time.Time    `json:"started"`
}

type activeJob struct {
	mu     sync.Mutex
	status JobStatus
	done   chan struct{}
	cancel context.CancelFunc
}

func (j *activeJob) snapshot() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *activeJob) setProgress(p Progress) {
	j.mu.Lock()
	j.status.Progress = p
	j.mu.Unlock()
}

// NewService returns a Service. Nil limiter and history select defaults.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Limiter == nil {
		cfg.Limiter = NewImportLimiter(0, 0)
	}
	if cfg.History == nil {
		cfg.History = NopHistory{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultImportTimeout
	}
	return &Service{cfg: cfg, jobs: make(map[string]*activeJob)}
}

// Vocab returns the vocabularies batches are validated against.
func (s *Service) Vocab() *vocab.Set { return s.cfg.Importer.vocab }

// Spec returns the field schema of a kind.
func (s *Service) Spec(kind models.Kind) (models.Spec, error) {
	return s.cfg.Importer.Spec(kind)
}

// TemplateHeader is the header row of an empty import CSV for kind.
func (s *Service) TemplateHeader(kind models.Kind) ([]string, error) {
	return s.cfg.Importer.TemplateHeader(kind)
}

// Limiter exposes the batch limiter for health reporting.
func (s *Service) Limiter() *ImportLimiter { return s.cfg.Limiter }

// CollectionPath resolves a collection ID under the media base.
func (s *Service) CollectionPath(collectionID string) (string, error) {
	cid, err := models.ParseCollectionID(collectionID)
	if err != nil {
		return "", err
	}
	return cid.Path(s.cfg.MediaBase), nil
}

// Run imports one batch synchronously while holding the collection lock
// and a limiter slot. The batch is recorded in history whether or not it
// aborted.
func (s *Service) Run(ctx context.Context, req ImportRequest) (*Report, error) {
	if err := s.cfg.Limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.cfg.Limiter.Release()

	if !req.DryRun {
		release, err := LockCollection(req.CollectionPath, s.cfg.LockFile)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(); err != nil {
				logging.FromContext(ctx).Warn("release collection lock", "error", err)
			}
		}()
	}

	rep, err := s.cfg.Importer.Import(ctx, req)
	if rep != nil {
		entry := NewHistoryEntry(ctx, collectionName(req.CollectionPath), rep)
		if herr := s.cfg.History.Record(context.WithoutCancel(ctx), entry); herr != nil {
			logging.FromContext(ctx).Warn("record import history", "batch_id", rep.ID, "error", herr)
		}
	}
	return rep, err
}

// Check validates a batch without writing anything.
func (s *Service) Check(ctx context.Context, req ImportRequest) (*Report, error) {
	req.DryRun = true
	return s.Run(ctx, req)
}

// Start runs a batch in the background and returns its job ID.
// Values on ctx are kept; its cancellation is not.
func (s *Service) Start(ctx context.Context, req ImportRequest) string {
	id := uuid.New().String()
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.Timeout)

	job := &activeJob{
		status: JobStatus{
			ID:         id,
			Kind:       req.Kind,
			Collection: collectionName(req.CollectionPath),
			CSVPath:    req.CSVPath,
			Progress:   Progress{Phase: PhaseQueued},
			Started:    time.Now(),
		},
		done:   make(chan struct{}),
		cancel: cancel,
	}
	req.OnProgress = job.setProgress

	s.mu.Lock()
	s.jobs[id] = job
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer func() {
			close(job.done)
			s.cleanup(id, jobRetention)
		}()

		rep, err := s.Run(jobCtx, req)

		job.mu.Lock()
		job.status.Done = true
		job.status.Report = rep
		if err != nil {
			msg := MapError(err)
			job.status.Error = &msg
			job.status.Progress.Phase = PhaseFailed
		} else {
			job.status.Progress.Phase = PhaseComplete
		}
		job.mu.Unlock()
	}()

	return id
}

// Job returns the current state of a background batch.
func (s *Service) Job(id string) (JobStatus, error) {
	job, err := s.job(id)
	if err != nil {
		return JobStatus{}, err
	}
	return job.snapshot(), nil
}

// Wait blocks until a background batch finishes or ctx is done.
func (s *Service) Wait(ctx context.Context, id string) (JobStatus, error) {
	job, err := s.job(id)
	if err != nil {
		return JobStatus{}, err
	}
	select {
	case <-job.done:
		return job.snapshot(), nil
	case <-ctx.Done():
		return job.snapshot(), ctx.Err()
	}
}

func (s *Service) job(id string) (*activeJob, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return job, nil
}

// cleanup forgets a job after a delay.
func (s *Service) cleanup(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.jobs, id)
		s.mu.Unlock()
	})
}

// Export writes the records of one collection to CSV. An empty csvPath
// selects the exporter's default path.
func (s *Service) Export(ctx context.Context, kind models.Kind, collectionPath, csvPath string) (ExportResult, error) {
	return s.cfg.Exporter.Export(ctx, kind, collectionPath, csvPath)
}

// History lists recorded batches, newest first.
func (s *Service) History(ctx context.Context, collection string, limit int) ([]HistoryEntry, error) {
	return s.cfg.History.List(ctx, collection, limit)
}

// Shutdown waits for background batches, cancelling them when ctx ends.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.mu.RLock()
		for _, job := range s.jobs {
			job.cancel()
		}
		s.mu.RUnlock()
		return ctx.Err()
	}
}

func collectionName(collectionPath string) string {
	base := filepath.Base(collectionPath)
	cid, err := models.ParseCollectionID(base)
	if err != nil {
		return base
	}
	return cid.String()
}
