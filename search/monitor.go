package search

import "github.com/poiesic/semindex/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterStoreLoad(generation string, size int)
	AfterEmbedding(vector []float32, cached bool)
	Finish(hits []core.Hit)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                     {}
func (n *noopMonitor) AfterStoreLoad(_ string, _ int)     {}
func (n *noopMonitor) AfterEmbedding(_ []float32, _ bool) {}
func (n *noopMonitor) Finish(_ []core.Hit)                {}
