// readiness.go - Readiness probe logic for the EHR ledger node
package server

import (
	"context"
	"time"
)

// NodeReadiness returns true if the chain tail is intact and the backend answers reads.
func (s *Server) NodeReadiness() bool {
	h := s.svc.Height()
	if h == 0 || !s.svc.TailIntact() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.svc.Blocks(ctx, h-1, h)
	return err == nil
}
