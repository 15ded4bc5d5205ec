// Package job provides the export Job aggregate and the ExportService that
// turns an audiobook's merged chapters into chapter files.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/overdrive-chapters/internal/chapter"
	"github.com/maauso/overdrive-chapters/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is planned but not started.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates chapters are being exported.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates every chapter was exported.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates at least one chapter could not be exported.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the caller cancelled the export.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TaskStatus represents the status of a single chapter export.
type TaskStatus string

const (
	// TaskPending indicates the chapter is waiting to be exported.
	TaskPending TaskStatus = "PENDING"
	// TaskRunning indicates the chapter is being split.
	TaskRunning TaskStatus = "RUNNING"
	// TaskCompleted indicates the chapter file was written.
	TaskCompleted TaskStatus = "COMPLETED"
	// TaskFailed indicates the chapter could not be exported.
	TaskFailed TaskStatus = "FAILED"
	// TaskSkipped indicates the chapter was not attempted because the
	// export was stopped early.
	TaskSkipped TaskStatus = "SKIPPED"
)

// Task is the export of one merged chapter.
type Task struct {
	// Index is the 1-based position of the chapter in the book.
	Index int
	// Chapter is the merged chapter being exported.
	Chapter chapter.Chapter
	// OutputPath is the chapter file to create.
	OutputPath string
	// Status is the current export status.
	Status TaskStatus
	// Location is where the chapter was published, if a publisher is set.
	Location string
	// Err is the failure reason for FAILED tasks.
	Err error
	// StartedAt is when the split started.
	StartedAt time.Time
	// CompletedAt is when the task reached a final status.
	CompletedAt time.Time
}

// Job is one export run over an audiobook.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// BookDir is the audiobook directory.
	BookDir string
	// OutputDir is the directory chapter files are written to.
	OutputDir string
	// Status is the current job state.
	Status Status
	// Tasks holds one task per merged chapter, in chapter order.
	Tasks []Task
	// Error contains a summary if the job failed.
	Error string
	// CreatedAt is when the job was planned.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when exporting started.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a job in IN_QUEUE status with the given tasks.
func New(bookDir, outputDir string, tasks []Task) *Job {
	now := time.Now()
	return &Job{
		ID:        id.Generate(),
		BookDir:   bookDir,
		OutputDir: outputDir,
		Status:    StatusInQueue,
		Tasks:     tasks,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED state.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED state with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// Cancel transitions the job to CANCELLED state.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// updateTask applies fn to the task at i (0-based).
func (j *Job) updateTask(i int, fn func(*Task)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if i >= 0 && i < len(j.Tasks) {
		fn(&j.Tasks[i])
		j.UpdatedAt = time.Now()
	}
}

// Snapshot returns a copy of the tasks (thread-safe).
func (j *Job) Snapshot() []Task {
	j.mu.RLock()
	defer j.mu.RUnlock()
	tasks := make([]Task, len(j.Tasks))
	copy(tasks, j.Tasks)
	return tasks
}

// Counts tallies tasks by status.
func (j *Job) Counts() map[TaskStatus]int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	counts := make(map[TaskStatus]int)
	for _, t := range j.Tasks {
		counts[t.Status]++
	}
	return counts
}

// Progress returns the percentage of tasks in a final status (0-100).
func (j *Job) Progress() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if len(j.Tasks) == 0 {
		return 100
	}
	done := 0
	for _, t := range j.Tasks {
		switch t.Status {
		case TaskCompleted, TaskFailed, TaskSkipped:
			done++
		}
	}
	return done * 100 / len(j.Tasks)
}

// Failures returns the FAILED tasks in chapter order.
func (j *Job) Failures() []Task {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var failed []Task
	for _, t := range j.Tasks {
		if t.Status == TaskFailed {
			failed = append(failed, t)
		}
	}
	return failed
}
