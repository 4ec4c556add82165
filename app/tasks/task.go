package tasks

import (
	"time"

	"github.com/lysyi3m/site-watch/app/database"
)

type TaskType string

const (
	TaskTypeScrapeWebsite TaskType = "scrape_website"
	TaskTypeRunDueScrapes TaskType = "run_due_scrapes"
)

type Task struct {
	ID        string
	Type      TaskType
	Target    string
	StartedAt *time.Time
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func NewTask(taskType TaskType, target string) Task {
	return Task{
		ID:     database.NewID(),
		Type:   taskType,
		Target: target,
	}
}
