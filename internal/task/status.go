package task

// TaskCounts summarizes task outcomes
type TaskCounts struct {
	// Total is every task ever accepted
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	// Dropped counts orphans forgotten under OrphanDrop
	Dropped int `json:"dropped"`
	Queued  int `json:"queued"`
	// Running counts assigned and running tasks
	Running int `json:"running"`
}

// WorkerCounts summarizes the registry by status and category
type WorkerCounts struct {
	Total       int            `json:"total"`
	Idle        int            `json:"idle"`
	Busy        int            `json:"busy"`
	Unreachable int            `json:"unreachable"`
	ByCategory  map[string]int `json:"by_category"`
}

// Status is a point-in-time copy of the scheduler's state
type Status struct {
	Phase   Phase        `json:"phase"`
	Workers []WorkerInfo `json:"workers"`
	Queues  QueueDepths  `json:"queues"`
	Tasks   TaskCounts   `json:"tasks"`
}

// WorkerCounts aggregates Workers.
func (s Status) WorkerCounts() WorkerCounts {
	c := WorkerCounts{ByCategory: make(map[string]int)}
	for _, w := range s.Workers {
		c.Total++
		c.ByCategory[w.Category]++
		switch w.Status {
		case WorkerIdle:
			c.Idle++
		case WorkerBusy:
			c.Busy++
		case WorkerUnreachable:
			c.Unreachable++
		}
	}
	return c
}

// snapshot builds a Status. Called on the loop goroutine only.
func (s *Scheduler) snapshot() Status {
	depths := s.queues.depths()
	running := 0
	for _, t := range s.tasks {
		if t.State == StateAssigned || t.State == StateRunning {
			running++
		}
	}
	return Status{
		Phase:   s.Phase(),
		Workers: s.workers.snapshot(),
		Queues:  depths,
		Tasks: TaskCounts{
			Total:     s.counts.total,
			Completed: s.counts.completed,
			Failed:    s.counts.failed,
			Cancelled: s.counts.cancelled,
			Dropped:   s.counts.dropped,
			Queued:    depths.Total(),
			Running:   running,
		},
	}
}
