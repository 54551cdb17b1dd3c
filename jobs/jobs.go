// Package jobs tracks subtitle generation jobs: submission, progress
// events, cooperative cancellation, and retained results.
package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	goerrors "github.com/skillsenselab/subgen/errors"
	"github.com/skillsenselab/subgen/logger"
	"github.com/skillsenselab/subgen/observability"
	"github.com/skillsenselab/subgen/pipeline"
	"github.com/skillsenselab/subgen/stitch"
	"github.com/skillsenselab/subgen/validation"
)

// Status is a job's lifecycle phase.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelling Status = "cancelling"
	StatusCancelled  Status = "cancelled"
)

// Request describes the work to run.
type Request struct {
	// MediaID identifies the library item to subtitle.
	MediaID string `json:"media_id" binding:"required"`
	// Language for transcription, defaults to "en".
	Language string `json:"language"`
}

// Validate checks the request fields.
func (r *Request) Validate() error {
	v := validation.New()
	v.Required("media_id", r.MediaID)
	if r.Language != "" {
		v.Pattern("language", r.Language, `^[a-zA-Z]{2,3}(-[a-zA-Z0-9]{2,8})?$`)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// Job is a snapshot of one job's state. Snapshots are value copies; mutating
// them does not affect the manager.
type Job struct {
	ID         string     `json:"id"`
	MediaID    string     `json:"media_id"`
	Language   string     `json:"language"`
	Status     Status     `json:"status"`
	State      string     `json:"state,omitempty"`
	Chunks     int        `json:"chunks"`
	Segments   int        `json:"segments"`
	OutputPath string     `json:"output_path,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Event is one progress update, streamed to subscribers.
type Event struct {
	Type      string          `json:"type"`
	JobID     string          `json:"job_id"`
	Status    Status          `json:"status,omitempty"`
	State     string          `json:"state,omitempty"`
	Chunk     *int            `json:"chunk,omitempty"`
	Segment   *stitch.Segment `json:"segment,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

const (
	EventStatus  = "status"
	EventState   = "state"
	EventChunk   = "chunk"
	EventSegment = "segment"
	EventDone    = "done"
)

// Generator runs the actual subtitle generation for one job.
type Generator interface {
	// Generate decodes, transcribes and writes the subtitle file, reporting
	// progress through the observer. It returns the written file path.
	Generate(ctx context.Context, mediaID, language string, obs pipeline.Observer) (string, error)
}

type job struct {
	snapshot Job
	cancel   context.CancelFunc
	subs     map[chan Event]struct{}
}

// Manager owns the job registry. Safe for concurrent use.
type Manager struct {
	gen Generator
	log *logger.Logger

	baseCtx context.Context
	sem     chan struct{}

	mu   sync.Mutex
	jobs map[string]*job
}

// Config holds the manager settings.
type Config struct {
	// MaxConcurrent bounds how many jobs run at once. Defaults to 1 so
	// transcription backends are not oversubscribed.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// NewManager creates a manager. baseCtx bounds the lifetime of all jobs;
// cancelling it cancels every running job.
func NewManager(baseCtx context.Context, cfg Config, gen Generator, log *logger.Logger) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Manager{
		gen:     gen,
		log:     log.WithComponent("jobs"),
		baseCtx: baseCtx,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		jobs:    map[string]*job{},
	}
}

// Submit registers a new job and starts it in the background.
func (m *Manager) Submit(req Request) (Job, error) {
	if err := req.Validate(); err != nil {
		return Job{}, err
	}
	if req.Language == "" {
		req.Language = "en"
	}

	j := &job{
		snapshot: Job{
			ID:        uuid.NewString(),
			MediaID:   req.MediaID,
			Language:  req.Language,
			Status:    StatusQueued,
			CreatedAt: time.Now().UTC(),
		},
		subs: map[chan Event]struct{}{},
	}
	ctx, cancel := context.WithCancel(m.baseCtx)
	j.cancel = cancel

	m.mu.Lock()
	m.jobs[j.snapshot.ID] = j
	m.mu.Unlock()

	m.log.Info("Job submitted", logger.Fields(
		"job_id", j.snapshot.ID,
		"media_id", req.MediaID,
		"language", req.Language,
	))
	go m.run(ctx, j.snapshot.ID)
	return j.snapshot, nil
}

// Get returns a job snapshot by id.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, goerrors.NotFound("job", id)
	}
	return j.snapshot, nil
}

// List returns snapshots of all jobs, newest first.
func (m *Manager) List() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.snapshot)
	}
	sortJobs(out)
	return out
}

// Cancel requests cancellation of a queued or running job. Completed jobs
// are left alone; cancelling one is not an error the second time.
func (m *Manager) Cancel(id string) (Job, error) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return Job{}, goerrors.NotFound("job", id)
	}
	switch j.snapshot.Status {
	case StatusQueued, StatusRunning:
		j.snapshot.Status = StatusCancelling
		m.notifyLocked(j, Event{Type: EventStatus, Status: StatusCancelling})
	case StatusCancelling, StatusCancelled:
	default:
		snap := j.snapshot
		m.mu.Unlock()
		return snap, goerrors.Conflict("job already finished")
	}
	snap := j.snapshot
	cancel := j.cancel
	m.mu.Unlock()

	cancel()
	m.log.Info("Job cancellation requested", logger.Fields("job_id", id))
	return snap, nil
}

// Subscribe returns a channel of progress events for one job plus an
// unsubscribe function. Slow subscribers drop events rather than blocking
// the job.
func (m *Manager) Subscribe(id string) (<-chan Event, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, nil, goerrors.NotFound("job", id)
	}
	ch := make(chan Event, 64)

	// A finished job gets its terminal event replayed and the stream ends
	// right away.
	if finished(j.snapshot.Status) {
		ch <- Event{
			Type:      EventDone,
			JobID:     id,
			Status:    j.snapshot.Status,
			Error:     j.snapshot.Error,
			Timestamp: time.Now().UTC(),
		}
		close(ch)
		return ch, func() {}, nil
	}
	j.subs[ch] = struct{}{}

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := j.subs[ch]; ok {
			delete(j.subs, ch)
			close(ch)
		}
	}
	return ch, unsubscribe, nil
}

func (m *Manager) run(ctx context.Context, id string) {
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	if ctx.Err() != nil {
		m.finish(id, "", ctx.Err())
		return
	}

	var mediaID, language string
	m.update(id, func(j *job) {
		now := time.Now().UTC()
		j.snapshot.Status = StatusRunning
		j.snapshot.StartedAt = &now
		mediaID = j.snapshot.MediaID
		language = j.snapshot.Language
		m.notifyLocked(j, Event{Type: EventStatus, Status: StatusRunning})
	})

	oc := observability.NewOperationContext("subgen", "subtitles.generate", id, "", nil)
	spanCtx, span := oc.StartSpanForOperation(observability.WithOperationContext(ctx, oc), "jobs.generate")

	output, err := m.gen.Generate(spanCtx, mediaID, language, &managerObserver{m: m, id: id})
	m.finish(id, output, err)

	j, getErr := m.Get(id)
	status := string(StatusFailed)
	if getErr == nil {
		status = string(j.Status)
	}
	oc.EndOperation(spanCtx, span, status, err)
}

func (m *Manager) finish(id, output string, err error) {
	m.update(id, func(j *job) {
		now := time.Now().UTC()
		j.snapshot.FinishedAt = &now
		j.snapshot.OutputPath = output
		switch {
		case err == nil:
			j.snapshot.Status = StatusCompleted
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			j.snapshot.Status = StatusCancelled
		default:
			j.snapshot.Status = StatusFailed
			j.snapshot.Error = err.Error()
		}
		m.notifyLocked(j, Event{
			Type:   EventDone,
			Status: j.snapshot.Status,
			Error:  j.snapshot.Error,
		})
		for ch := range j.subs {
			delete(j.subs, ch)
			close(ch)
		}
	})
	if err != nil {
		m.log.Warn("Job finished with error", logger.Fields("job_id", id, "error", err.Error()))
	} else {
		m.log.Info("Job completed", logger.Fields("job_id", id, "output", output))
	}
}

func (m *Manager) update(id string, fn func(*job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		fn(j)
	}
}

// notifyLocked fans an event out to subscribers. Caller holds m.mu.
func (m *Manager) notifyLocked(j *job, ev Event) {
	ev.JobID = j.snapshot.ID
	ev.Timestamp = time.Now().UTC()
	for ch := range j.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// managerObserver forwards pipeline progress into the job registry.
type managerObserver struct {
	m  *Manager
	id string
}

func (o *managerObserver) StateChanged(s pipeline.State) {
	o.m.update(o.id, func(j *job) {
		j.snapshot.State = string(s)
		o.m.notifyLocked(j, Event{Type: EventState, State: string(s)})
	})
}

func (o *managerObserver) ChunkStarted(index int, _ float64) {
	o.m.update(o.id, func(j *job) {
		j.snapshot.Chunks = index + 1
		chunk := index
		o.m.notifyLocked(j, Event{Type: EventChunk, Chunk: &chunk})
	})
}

func (o *managerObserver) SegmentEmitted(seg stitch.Segment) {
	o.m.update(o.id, func(j *job) {
		j.snapshot.Segments++
		s := seg
		o.m.notifyLocked(j, Event{Type: EventSegment, Segment: &s})
	})
}

func finished(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func sortJobs(jobs []Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
}
