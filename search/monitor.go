package search

import (
	"github.com/poiesic/filesense/core"
	"github.com/poiesic/filesense/dense"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterLexicalSearch(hits []core.ScoredChunk)
	AfterDenseSearch(hits []dense.Hit)
	AfterFusion(ids []core.ID)
	Finish(results []*Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                      {}
func (n *noopMonitor) AfterLexicalSearch(_ []core.ScoredChunk) {}
func (n *noopMonitor) AfterDenseSearch(_ []dense.Hit)      {}
func (n *noopMonitor) AfterFusion(_ []core.ID)             {}
func (n *noopMonitor) Finish(_ []*Result)                  {}
