package chainserver

import (
	"context"
)

// markPendingExport remembers a terminal chain whose notebook export did
// not land, so the retry job can pick it up.
func (s *Server) markPendingExport(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id] = true
}

// pendingExports snapshots the queued chain ids.
func (s *Server) pendingExports() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for id := range s.pending {
		out = append(out, id)
	}
	return out
}

// ExportRetryJob re-attempts the notebook export of terminal chains whose
// export failed during conclude. Runs on the hub scheduler.
type ExportRetryJob struct {
	server *Server
}

// NewExportRetryJob binds the job to its chain server.
func NewExportRetryJob(s *Server) *ExportRetryJob {
	return &ExportRetryJob{server: s}
}

func (j *ExportRetryJob) Name() string { return "chain-export-retry" }

func (j *ExportRetryJob) Run(ctx context.Context) error {
	s := j.server
	for _, id := range s.pendingExports() {
		lock := s.lockFor(id)
		lock.Lock()
		chain, err := s.hydrate(ctx, id)
		if err != nil {
			lock.Unlock()
			s.logger.Warn("export retry could not hydrate chain", "chain_id", id, "error", err)
			continue
		}
		err = exportChain(s, chain)
		lock.Unlock()
		if err != nil {
			s.logger.Warn("export retry failed, keeping queued", "chain_id", id, "error", err)
			continue
		}
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		s.logger.Info("queued chain export completed", "chain_id", id)
	}
	return nil
}
