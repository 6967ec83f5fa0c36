package shuffle

import "github.com/spaolacci/murmur3"

// Router maps record keys to local partition ids. The sending side applies
// the same hash so that every record for a vertex lands in the partition
// owning that vertex, regardless of which worker produced it.
type Router struct {
	partitions uint32
}

// NewRouter creates a router over the given number of partitions.
func NewRouter(partitions int) *Router {
	if partitions <= 0 {
		partitions = 1
	}
	return &Router{partitions: uint32(partitions)}
}

// PartitionOf returns the partition id owning the given record key.
func (r *Router) PartitionOf(key []byte) int {
	return int(murmur3.Sum32(key) % r.partitions)
}

// Partitions returns the number of partitions this router spreads over.
func (r *Router) Partitions() int {
	return int(r.partitions)
}
