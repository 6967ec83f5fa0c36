package shuffle

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

// PathAllocator issues unique spill file paths, scoped to one
// (job, superstep, partition) and keyed by the record-type tag.
type PathAllocator interface {
	// NextPath returns a path that has never been returned before for this
	// allocator. The parent directory exists on return.
	NextPath(kind string) (string, error)
}

// SpillPaths is the default PathAllocator. It round-robins across the
// configured spill directories (typically one per disk) and lays files out
// as dir/job/superstep/partition/kind/<uuid>.spill.
type SpillPaths struct {
	dirs      []string
	job       string
	superstep int
	partition int
	seq       atomic.Uint64
}

// NewSpillPaths creates an allocator over the given spill directories.
func NewSpillPaths(dirs []string, job string, superstep, partition int) (*SpillPaths, error) {
	if len(dirs) == 0 {
		return nil, fmt.Errorf("shuffle: at least one spill directory is required")
	}
	return &SpillPaths{
		dirs:      dirs,
		job:       job,
		superstep: superstep,
		partition: partition,
	}, nil
}

// NextPath implements PathAllocator.
func (s *SpillPaths) NextPath(kind string) (string, error) {
	n := s.seq.Inc() - 1
	dir := filepath.Join(
		s.dirs[n%uint64(len(s.dirs))],
		s.job,
		strconv.Itoa(s.superstep),
		fmt.Sprintf("p%03d", s.partition),
		kind,
	)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create spill dir: %w", err)
	}
	return filepath.Join(dir, uuid.NewString()+".spill"), nil
}
