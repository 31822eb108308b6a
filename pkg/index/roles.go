package index

import "sync"

// ReplicaRole is a capability token proving the holder was granted the
// replica role for an index at admission time. Engines receive the token
// at launch rather than re-checking global role state mid-flight.
type ReplicaRole struct {
	Index string
}

// Roles tracks which indexes this node currently replicates.
type Roles struct {
	mu       sync.RWMutex
	replicas map[string]struct{}
}

// NewRoles creates the role table from the configured replica index names.
func NewRoles(replicaIndexes []string) *Roles {
	replicas := make(map[string]struct{}, len(replicaIndexes))
	for _, name := range replicaIndexes {
		replicas[name] = struct{}{}
	}
	return &Roles{replicas: replicas}
}

// ReplicaToken returns a capability token for the index if this node holds
// its replica role.
func (r *Roles) ReplicaToken(indexName string) (ReplicaRole, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.replicas[indexName]; !ok {
		return ReplicaRole{}, false
	}
	return ReplicaRole{Index: indexName}, true
}

// SetReplica grants or revokes the replica role for an index.
func (r *Roles) SetReplica(indexName string, replica bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if replica {
		r.replicas[indexName] = struct{}{}
	} else {
		delete(r.replicas, indexName)
	}
}
