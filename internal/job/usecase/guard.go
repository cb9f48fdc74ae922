package usecase

import "sync"

// inflight admits one running workflow per job id
type inflight struct {
	mu   sync.Mutex
	jobs map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{jobs: make(map[string]struct{})}
}

// acquire returns a release func, or false if the job is already running
func (g *inflight) acquire(jobID string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.jobs[jobID]; busy {
		return nil, false
	}
	g.jobs[jobID] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.jobs, jobID)
		g.mu.Unlock()
	}, true
}
