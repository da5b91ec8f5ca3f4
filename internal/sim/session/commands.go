package session

import (
	"context"
	"errors"
	"fmt"

	"nanitecraft.ai/internal/sim/mining"
)

var (
	ErrQueueFull = errors.New("command queue full")
	ErrNotFound  = errors.New("not found")
	ErrRejected  = errors.New("rejected")
)

// Command is one unit of mutation applied on the session goroutine. Queued commands
// are applied in FIFO order and each runs to completion before the next starts, so
// units from different stations only interleave at unit boundaries.
type Command interface {
	Name() string
	Apply(s *Session) error
}

// Submit enqueues cmd without blocking. It reports false if the queue is full.
func (s *Session) Submit(cmd Command) bool {
	select {
	case s.commands <- cmd:
		return true
	default:
		s.droppedCmds.Add(1)
		s.log.Printf("command %s dropped: %v", cmd.Name(), ErrQueueFull)
		return false
	}
}

// Exec enqueues cmd and waits for it to be applied.
func (s *Session) Exec(ctx context.Context, cmd Command) error {
	rc := replyCommand{cmd: cmd, resp: make(chan error, 1)}
	select {
	case s.commands <- rc:
	case <-s.stop:
		return errors.New("session stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-rc.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post is the worker-side hand-off; it waits for queue space until the session stops.
func (s *Session) post(cmd Command) bool {
	select {
	case s.commands <- cmd:
		return true
	case <-s.stop:
		return false
	}
}

func (s *Session) applyCommands() {
	n := len(s.commands)
	for i := 0; i < n; i++ {
		cmd := <-s.commands
		if err := cmd.Apply(s); err != nil {
			s.log.Printf("command %s: %v", cmd.Name(), err)
		}
		s.tickCmds = append(s.tickCmds, cmd.Name())
	}
}

type replyCommand struct {
	cmd  Command
	resp chan error
}

func (c replyCommand) Name() string { return c.cmd.Name() }

func (c replyCommand) Apply(s *Session) error {
	err := c.cmd.Apply(s)
	c.resp <- err
	return err
}

// assignCommand carries a freshly collected candidate queue back to the session and
// runs the scheduler for it in the same unit.
type assignCommand struct {
	stationID  string
	candidates []mining.CandidateTarget
}

func (c assignCommand) Name() string { return "ASSIGN:" + c.stationID }

func (c assignCommand) Apply(s *Session) error {
	st := s.stationByID[c.stationID]
	if st == nil {
		return fmt.Errorf("unknown station %q", c.stationID)
	}
	st.collecting = false
	st.view.ReplaceCandidates(c.candidates)
	s.assign(st)
	return nil
}

type SetStationEnabled struct {
	StationID string
	Enabled   bool
}

func (c SetStationEnabled) Name() string { return "SET_STATION_ENABLED" }

func (c SetStationEnabled) Apply(s *Session) error {
	st := s.stationByID[c.StationID]
	if st == nil {
		return fmt.Errorf("%w: station %q", ErrNotFound, c.StationID)
	}
	st.budget.enabled = c.Enabled
	s.audit(AuditEntry{Station: c.StationID, Action: c.Name(), Reason: fmt.Sprintf("enabled=%t", c.Enabled)})
	return nil
}

// SetUserTargetCap changes the operator cap; 0 removes it. Targets already claimed
// beyond a lowered cap are kept.
type SetUserTargetCap struct {
	StationID string
	Cap       int
}

func (c SetUserTargetCap) Name() string { return "SET_USER_TARGET_CAP" }

func (c SetUserTargetCap) Apply(s *Session) error {
	st := s.stationByID[c.StationID]
	if st == nil {
		return fmt.Errorf("%w: station %q", ErrNotFound, c.StationID)
	}
	if c.Cap < 0 {
		return fmt.Errorf("%w: user target cap must be >= 0, got %d", ErrRejected, c.Cap)
	}
	st.budget.userCap = c.Cap
	s.audit(AuditEntry{Station: c.StationID, Action: c.Name(), Reason: fmt.Sprintf("cap=%d", c.Cap)})
	return nil
}

// ResetField regenerates a field from its seed. Scanner caches built against the old
// contents report ErrIndexInvalidated on their next use.
type ResetField struct {
	FieldID string
}

func (c ResetField) Name() string { return "RESET_FIELD" }

func (c ResetField) Apply(s *Session) error {
	f, ok := s.fields.Get(c.FieldID)
	if !ok {
		return fmt.Errorf("%w: field %q", ErrNotFound, c.FieldID)
	}
	f.Reset()
	s.audit(AuditEntry{Field: c.FieldID, Action: c.Name(), Reason: fmt.Sprintf("generation=%d", f.Generation())})
	return nil
}

// RemoveField takes a field out of the session. Targets still claimed inside it fail
// with an entity-gone outcome on their next attempt and keep their claims.
type RemoveField struct {
	FieldID string
}

func (c RemoveField) Name() string { return "REMOVE_FIELD" }

func (c RemoveField) Apply(s *Session) error {
	if _, ok := s.fields.Get(c.FieldID); !ok {
		return fmt.Errorf("%w: field %q", ErrNotFound, c.FieldID)
	}
	s.fields.Remove(c.FieldID)
	for _, d := range s.scanners {
		if d.FieldID() == c.FieldID {
			d.ClearDeposits()
		}
	}
	s.audit(AuditEntry{Field: c.FieldID, Action: c.Name()})
	return nil
}

// RemoveCargo takes a cargo container out of service. Links to it are pruned on the
// next distribution pass.
type RemoveCargo struct {
	CargoID string
}

func (c RemoveCargo) Name() string { return "REMOVE_CARGO" }

func (c RemoveCargo) Apply(s *Session) error {
	cg := s.cargo[c.CargoID]
	if cg == nil {
		return fmt.Errorf("%w: cargo %q", ErrNotFound, c.CargoID)
	}
	if _, isStation := s.stationByID[c.CargoID]; isStation {
		return fmt.Errorf("%w: cargo %q belongs to a station", ErrRejected, c.CargoID)
	}
	cg.Remove()
	s.audit(AuditEntry{Station: c.CargoID, Action: c.Name()})
	return nil
}
