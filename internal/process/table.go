package process

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/shirou/gopsutil/v4/process"
)

// Handle identifies one running process. CreateTime (milliseconds since the
// epoch) distinguishes a process from a later one that reuses its PID.
type Handle struct {
	PID        int32
	Name       string
	CreateTime int64
}

// Table is a view of the OS process table.
type Table interface {
	// List enumerates running processes.
	List(ctx context.Context) ([]Handle, error)

	// Alive reports whether the process behind h is still running.
	Alive(ctx context.Context, h Handle) (bool, error)
}

// SystemTable reads the host process table through gopsutil.
type SystemTable struct{}

// NewSystemTable returns the host process table.
func NewSystemTable() *SystemTable {
	return &SystemTable{}
}

// List enumerates running processes. Processes that vanish or deny access
// while being inspected are left out rather than failing the whole listing,
// and so are zombies and processes without a readable create time.
func (SystemTable) List(ctx context.Context) ([]Handle, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}

	handles := make([]Handle, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		// Without a create time Alive cannot tell a reused PID apart.
		created, err := p.CreateTimeWithContext(ctx)
		if err != nil || created == 0 {
			continue
		}
		if isZombie(ctx, p) {
			continue
		}
		handles = append(handles, Handle{
			PID:        p.Pid,
			Name:       name,
			CreateTime: created,
		})
	}

	return handles, nil
}

// Alive reports whether h is still running. A PID that now belongs to a
// different process, or a zombie, counts as exited.
func (SystemTable) Alive(ctx context.Context, h Handle) (bool, error) {
	exists, err := process.PidExistsWithContext(ctx, h.PID)
	if err != nil {
		return false, fmt.Errorf("check pid %d: %w", h.PID, err)
	}
	if !exists {
		return false, nil
	}

	p, err := process.NewProcessWithContext(ctx, h.PID)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return false, nil
		}
		return false, fmt.Errorf("inspect pid %d: %w", h.PID, err)
	}

	if h.CreateTime != 0 {
		created, err := p.CreateTimeWithContext(ctx)
		if err == nil && created != h.CreateTime {
			return false, nil
		}
	}

	if isZombie(ctx, p) {
		return false, nil
	}

	return true, nil
}

// isZombie reports whether p has terminated but not yet been reaped.
func isZombie(ctx context.Context, p *process.Process) bool {
	status, err := p.StatusWithContext(ctx)
	return err == nil && slices.Contains(status, process.Zombie)
}
