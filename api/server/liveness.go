// liveness.go - Liveness probe logic for the EHR ledger node
package server

// NodeLiveness returns true if the node has a committed genesis block.
func (s *Server) NodeLiveness() bool {
	return s.svc.Height() > 0
}
