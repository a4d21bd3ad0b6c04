package access

import (
	"sort"
	"time"

	stack "github.com/golang-collections/collections/stack"
	pair "github.com/notEpsilon/go-pair"
	"go.uber.org/zap"

	"github.com/latchdb/latchdb/storage/page"
	"github.com/latchdb/latchdb/types"
)

// AddEdge adds the edge waiter -> holder to the waits-for graph. Exposed
// for testing and diagnostics; the background detector rebuilds the graph
// from scratch every pass and does not call this.
func (lm *LockManager) AddEdge(waiter, holder types.TxnID) {
	lm.graphMu.Lock()
	defer lm.graphMu.Unlock()
	lm.addEdgeLocked(waiter, holder)
}

func (lm *LockManager) addEdgeLocked(waiter, holder types.TxnID) {
	adj, ok := lm.waitsFor[waiter]
	if !ok {
		adj = make(map[types.TxnID]struct{})
		lm.waitsFor[waiter] = adj
	}
	adj[holder] = struct{}{}
}

// RemoveEdge removes the edge waiter -> holder, if present.
func (lm *LockManager) RemoveEdge(waiter, holder types.TxnID) {
	lm.graphMu.Lock()
	defer lm.graphMu.Unlock()
	if adj, ok := lm.waitsFor[waiter]; ok {
		delete(adj, holder)
	}
}

// GetEdgeList returns a deterministic snapshot of every edge in the graph,
// for testing only.
func (lm *LockManager) GetEdgeList() []pair.Pair[types.TxnID, types.TxnID] {
	lm.graphMu.Lock()
	defer lm.graphMu.Unlock()

	out := make([]pair.Pair[types.TxnID, types.TxnID], 0)
	for waiter, holders := range lm.waitsFor {
		for holder := range holders {
			out = append(out, *pair.New(waiter, holder))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].First != out[j].First {
			return out[i].First < out[j].First
		}
		return out[i].Second < out[j].Second
	})
	return out
}

// HasCycle runs a single detection pass over the current graph and reports
// the victim transaction if a cycle exists. For testing and diagnostics;
// the background detector uses the same algorithm internally.
func (lm *LockManager) HasCycle() (types.TxnID, bool) {
	lm.graphMu.Lock()
	defer lm.graphMu.Unlock()
	return lm.hasCycleLocked()
}

// buildWaitsForGraphLocked rebuilds waits_for from scratch from the live
// per-RID queues, rather than maintaining it incrementally as locks are
// granted and released: the queue contents are the single source of truth,
// so a from-scratch rebuild can never drift out of sync with them. Callers
// must hold graphMu.
func (lm *LockManager) buildWaitsForGraphLocked() {
	lm.waitsFor = make(map[types.TxnID]map[types.TxnID]struct{})

	lm.table.forEach(func(_ page.RID, q *lockRequestQueue) {
		q.mu.Lock()
		defer q.mu.Unlock()

		var granted, waiting []*LockRequest
		for _, r := range q.requests {
			if r.granted {
				granted = append(granted, r)
			} else {
				waiting = append(waiting, r)
			}
		}
		for _, w := range waiting {
			wt := lm.lookupTxn(w.txnID)
			if wt == nil || wt.IsAborted() {
				continue
			}
			for _, h := range granted {
				if h.txnID == w.txnID {
					continue
				}
				ht := lm.lookupTxn(h.txnID)
				if ht == nil || ht.IsAborted() {
					continue
				}
				lm.addEdgeLocked(w.txnID, h.txnID)
			}
		}
	})
}

type dfsFrame struct {
	vertex    types.TxnID
	neighbors []types.TxnID
	idx       int
}

const (
	unvisited = 0
	inStack   = 1
	done      = 2
)

// hasCycleLocked performs DFS from the smallest-id vertex not yet visited,
// preferring lower-id neighbors at each step, using an explicit stack and a
// three-state vertex tag so the traversal order (and therefore which cycle
// is found first, if several exist) is deterministic. Callers must hold
// graphMu.
func (lm *LockManager) hasCycleLocked() (types.TxnID, bool) {
	vertices := make(map[types.TxnID]struct{})
	for waiter, holders := range lm.waitsFor {
		vertices[waiter] = struct{}{}
		for holder := range holders {
			vertices[holder] = struct{}{}
		}
	}
	ordered := make([]types.TxnID, 0, len(vertices))
	for v := range vertices {
		ordered = append(ordered, v)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	state := make(map[types.TxnID]int, len(ordered))

	for _, start := range ordered {
		if state[start] != unvisited {
			continue
		}
		if victim, found := lm.dfsFrom(start, state); found {
			return victim, true
		}
	}
	return types.InvalidTxnID, false
}

func (lm *LockManager) sortedNeighbors(v types.TxnID) []types.TxnID {
	adj := lm.waitsFor[v]
	out := make([]types.TxnID, 0, len(adj))
	for n := range adj {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// dfsFrom walks the graph from start using an explicit stack rather than
// recursion, since the graph can be large enough that a recursive walk
// risks stack growth the caller has no way to bound. path mirrors the
// stack's vertex order so a detected cycle's members can be sliced out
// directly.
func (lm *LockManager) dfsFrom(start types.TxnID, state map[types.TxnID]int) (types.TxnID, bool) {
	st := stack.New()
	path := []types.TxnID{start}
	state[start] = inStack
	st.Push(&dfsFrame{vertex: start, neighbors: lm.sortedNeighbors(start)})

	for st.Len() > 0 {
		top := st.Peek().(*dfsFrame)

		if top.idx >= len(top.neighbors) {
			state[top.vertex] = done
			st.Pop()
			path = path[:len(path)-1]
			continue
		}

		next := top.neighbors[top.idx]
		top.idx++

		switch state[next] {
		case inStack:
			cycleStart := indexOfTxn(path, next)
			cycle := path[cycleStart:]
			return youngest(cycle), true
		case unvisited:
			state[next] = inStack
			path = append(path, next)
			st.Push(&dfsFrame{vertex: next, neighbors: lm.sortedNeighbors(next)})
		case done:
			// already fully explored, no cycle through it from here
		}
	}
	return types.InvalidTxnID, false
}

func indexOfTxn(path []types.TxnID, v types.TxnID) int {
	for i, p := range path {
		if p == v {
			return i
		}
	}
	return 0
}

// youngest returns the largest (youngest) transaction id in cycle. Aborting
// the youngest participant favors transactions that have already done more
// work and are closer to committing.
func youngest(cycle []types.TxnID) types.TxnID {
	max := cycle[0]
	for _, v := range cycle[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// runDetector is the lock manager's background deadlock-detection loop. It
// samples stopCh at least once per sleep interval so Close's join has
// bounded latency.
func (lm *LockManager) runDetector() {
	defer close(lm.stopped)
	ticker := time.NewTicker(lm.cycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lm.stopCh:
			return
		case <-ticker.C:
			lm.detectionPass()
		}
	}
}

// detectionPass resolves cycles one victim at a time until the graph is
// acyclic: aborting one victim can uncover a second, independent cycle
// among the remaining transactions, so a single pass is not enough.
func (lm *LockManager) detectionPass() {
	lm.graphMu.Lock()
	defer lm.graphMu.Unlock()

	for {
		lm.buildWaitsForGraphLocked()
		victim, found := lm.hasCycleLocked()
		if !found {
			return
		}
		lm.abortVictimLocked(victim)
	}
}

func (lm *LockManager) abortVictimLocked(victim types.TxnID) {
	txn := lm.lookupTxn(victim)
	if txn != nil {
		txn.Abort(Deadlock)
	}

	delete(lm.waitsFor, victim)
	for _, adj := range lm.waitsFor {
		delete(adj, victim)
	}

	lm.log.Info("deadlock detector aborted transaction", zap.Int32("txn_id", int32(victim)))

	if txn == nil {
		return
	}
	for _, rid := range txn.waitSet() {
		if q, ok := lm.table.get(rid); ok {
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		}
	}
}
