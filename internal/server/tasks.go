package server

import (
	"sync"

	"github.com/google/uuid"
)

const (
	insightTaskStatusRunning   = insightTaskStatus("running")
	insightTaskStatusCompleted = insightTaskStatus("completed")
	insightTaskStatusFailed    = insightTaskStatus("failed")
	maxFinishedInsightTasks    = 64
)

// insightTaskStatus represents the lifecycle state of an insight task.
type insightTaskStatus string

type insightTask struct {
	identifier string
	status     insightTaskStatus
	text       string
	failure    string
}

// insightTaskSnapshot copies the public portions of a task for serialization.
type insightTaskSnapshot struct {
	Identifier string            `json:"id"`
	Status     insightTaskStatus `json:"status"`
	Text       string            `json:"text,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// insightTaskTracker tracks active and completed insight tasks.
// Running tasks are always kept; only the most recent finishedLimit finished tasks stay queryable.
type insightTaskTracker struct {
	mutex         sync.Mutex
	tasks         map[string]*insightTask
	finished      []string
	finishedLimit int
}

func newInsightTaskTracker(finishedLimit int) *insightTaskTracker {
	return &insightTaskTracker{tasks: make(map[string]*insightTask), finishedLimit: finishedLimit}
}

// CreateTask registers a running task and returns its snapshot.
func (tracker *insightTaskTracker) CreateTask() insightTaskSnapshot {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	task := &insightTask{identifier: uuid.NewString(), status: insightTaskStatusRunning}
	tracker.tasks[task.identifier] = task
	return task.snapshot()
}

// CompleteTask stores the generated text and moves the task to its terminal status.
func (tracker *insightTaskTracker) CompleteTask(taskIdentifier string, text string, generationErr error) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	task, exists := tracker.tasks[taskIdentifier]
	if !exists || task.status != insightTaskStatusRunning {
		return
	}
	task.text = text
	task.status = insightTaskStatusCompleted
	if generationErr != nil {
		task.status = insightTaskStatusFailed
		task.failure = generationErr.Error()
	}
	tracker.retireFinished(taskIdentifier)
}

// retireFinished records a finished task and evicts the oldest finished tasks beyond the limit.
func (tracker *insightTaskTracker) retireFinished(taskIdentifier string) {
	tracker.finished = append(tracker.finished, taskIdentifier)
	for len(tracker.finished) > tracker.finishedLimit {
		delete(tracker.tasks, tracker.finished[0])
		tracker.finished = tracker.finished[1:]
	}
}

// TaskSnapshot returns a copy of the task state for external observers.
func (tracker *insightTaskTracker) TaskSnapshot(taskIdentifier string) (insightTaskSnapshot, bool) {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	task, exists := tracker.tasks[taskIdentifier]
	if !exists {
		return insightTaskSnapshot{}, false
	}
	return task.snapshot(), true
}

func (task *insightTask) snapshot() insightTaskSnapshot {
	return insightTaskSnapshot{
		Identifier: task.identifier,
		Status:     task.status,
		Text:       task.text,
		Error:      task.failure,
	}
}
