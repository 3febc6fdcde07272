package node

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Info describes a connected node: its id, type, and the capabilities it is
// willing to serve tool calls for.
type Info struct {
	ID           string
	Type         string
	Capabilities []string
	LastSeen     time.Time

	// conn is nil for nodes registered without a live connection (used in
	// tests and for resolution-only registries).
	conn *Connection
}

// Connection returns the live connection for this node, if any.
func (i *Info) Connection() *Connection {
	return i.conn
}

// RegisterOptions controls how a node's capabilities are filtered at
// registration time.
type RegisterOptions struct {
	// Allowlist, if non-empty, restricts which advertised capabilities are
	// actually registered. A capability is kept if it equals an allowlist
	// entry or is a dotted-prefix child of one ("browser.click" is kept
	// under allowlist entry "browser").
	Allowlist []string
}

// Registry tracks connected nodes and resolves tool names to the node best
// suited to handle them. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]*Info

	// generation increments on every Register/Remove/PruneStale that
	// changes membership, so callers can cheaply detect staleness of any
	// cached tool-definition list built from a List() snapshot.
	generation int64

	snapMu   sync.Mutex
	snapGen  int64
	snapshot []*Info
}

// NewRegistry creates an empty node registry.
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]*Info)}
}

// Generation returns the current membership generation counter.
func (r *Registry) Generation() int64 {
	return atomic.LoadInt64(&r.generation)
}

func (r *Registry) bumpGeneration() {
	atomic.AddInt64(&r.generation, 1)
}

// Register inserts or replaces a node's registration. Capabilities are
// filtered through opts.Allowlist, if provided.
func (r *Registry) Register(id, nodeType string, capabilities []string, opts RegisterOptions, conn *Connection) *Info {
	filtered := filterCapabilities(capabilities, opts.Allowlist)

	info := &Info{
		ID:           id,
		Type:         nodeType,
		Capabilities: filtered,
		LastSeen:     time.Now(),
		conn:         conn,
	}

	r.mu.Lock()
	r.nodes[id] = info
	r.mu.Unlock()

	r.bumpGeneration()
	return info
}

func filterCapabilities(capabilities, allowlist []string) []string {
	if len(allowlist) == 0 {
		out := make([]string, len(capabilities))
		copy(out, capabilities)
		return out
	}
	out := make([]string, 0, len(capabilities))
	for _, cap := range capabilities {
		if capabilityAllowed(cap, allowlist) {
			out = append(out, cap)
		}
	}
	return out
}

func capabilityAllowed(capability string, allowlist []string) bool {
	for _, allowed := range allowlist {
		if capability == allowed || strings.HasPrefix(capability, allowed+".") {
			return true
		}
	}
	return false
}

// Remove deregisters a node by id. It is a no-op if the node is unknown.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, ok := r.nodes[id]
	delete(r.nodes, id)
	r.mu.Unlock()

	if ok {
		r.bumpGeneration()
	}
}

// Touch updates a node's last-seen timestamp without changing the
// membership generation (heartbeats should not invalidate tool-def caches).
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.nodes[id]
	if !ok {
		return false
	}
	info.LastSeen = time.Now()
	return true
}

// List returns a generation-gated snapshot of all registered nodes. Callers
// that only read (never mutate) the returned slice/Info values can safely
// share it across goroutines between generation bumps.
func (r *Registry) List() []*Info {
	gen := r.Generation()

	r.snapMu.Lock()
	defer r.snapMu.Unlock()
	if r.snapshot != nil && r.snapGen == gen {
		return r.snapshot
	}

	r.mu.RLock()
	snap := make([]*Info, 0, len(r.nodes))
	for _, info := range r.nodes {
		snap = append(snap, info)
	}
	r.mu.RUnlock()

	sort.Slice(snap, func(i, j int) bool { return snap[i].ID < snap[j].ID })

	r.snapshot = snap
	r.snapGen = gen
	return snap
}

// PruneStale removes nodes whose last-seen timestamp is older than timeout,
// bumping the generation counter if any were removed. Returns the ids
// removed.
func (r *Registry) PruneStale(timeout time.Duration) []string {
	cutoff := time.Now().Add(-timeout)

	r.mu.Lock()
	var removed []string
	for id, info := range r.nodes {
		if info.LastSeen.Before(cutoff) {
			removed = append(removed, id)
			delete(r.nodes, id)
		}
	}
	r.mu.Unlock()

	if len(removed) > 0 {
		r.bumpGeneration()
	}
	return removed
}

// Resolve finds the node best suited to handle toolName.
//
// A capability matches toolName if it equals toolName or toolName starts
// with capability+".". Among matches, the node with the longest matching
// capability wins (most specific handler). Ties are broken first by an
// affinity hint (node id or node type prefixes, checked in order) and then
// by the lexicographically smallest node id for determinism.
func (r *Registry) Resolve(toolName string, affinity []string) (*Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Info
	bestLen := -1

	for _, info := range r.nodes {
		capLen := longestMatchingCapability(info.Capabilities, toolName)
		if capLen < 0 {
			continue
		}
		if best == nil || capLen > bestLen {
			best, bestLen = info, capLen
			continue
		}
		if capLen == bestLen {
			best = breakResolveTie(best, info, affinity)
		}
	}

	if best == nil {
		return nil, false
	}
	return best, true
}

func longestMatchingCapability(capabilities []string, toolName string) int {
	best := -1
	for _, cap := range capabilities {
		if cap == toolName || strings.HasPrefix(toolName, cap+".") {
			if len(cap) > best {
				best = len(cap)
			}
		}
	}
	return best
}

func breakResolveTie(current, candidate *Info, affinity []string) *Info {
	currentAffine := matchesAffinity(current, affinity)
	candidateAffine := matchesAffinity(candidate, affinity)
	if candidateAffine && !currentAffine {
		return candidate
	}
	if currentAffine && !candidateAffine {
		return current
	}
	if candidate.ID < current.ID {
		return candidate
	}
	return current
}

func matchesAffinity(info *Info, affinity []string) bool {
	for _, hint := range affinity {
		if info.ID == hint || info.Type == hint || strings.HasPrefix(info.ID, hint) || strings.HasPrefix(info.Type, hint) {
			return true
		}
	}
	return false
}
