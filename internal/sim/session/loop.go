package session

import (
	"context"
	"time"
)

func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tune.TickInterval())
	defer ticker.Stop()

	var pendingAdmin []adminSnapshotReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.observerJoin:
			s.handleObserverJoin(req)
		case req := <-s.observerSub:
			s.handleObserverSubscribe(req)
		case id := <-s.observerLeave:
			s.handleObserverLeave(id)
		case req := <-s.eventsReq:
			s.handleEventsReq(req)
		case req := <-s.admin:
			pendingAdmin = append(pendingAdmin, req)
		case <-ticker.C:
			s.step()
			s.handleAdminSnapshotRequests(pendingAdmin)
			pendingAdmin = pendingAdmin[:0]
		}
	}
}

// Stop ends Run and the worker pool. It is safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Close stops the session and waits for the workers to exit.
func (s *Session) Close() {
	s.Stop()
	s.workers.Wait()
}

// StepOnce advances the session by a single tick with the same ordering as Run.
// It is intended for tests and replays.
func (s *Session) StepOnce() (tick uint64, digest string) {
	tick = s.tick.Load()
	s.step()
	return tick, s.stateDigest(tick)
}

func (s *Session) every(n int) bool {
	return n > 0 && s.tick.Load()%uint64(n) == 0
}

func (s *Session) step() {
	start := time.Now()
	tick := s.tick.Load()
	s.tickEvents = s.tickEvents[:0]
	s.tickCmds = s.tickCmds[:0]

	s.applyCommands()

	if s.every(s.tune.ScanEveryTicks) {
		s.rescanScanners()
		for _, st := range s.stations {
			if st.budget.IsEnabled() {
				s.dispatch(st)
			}
		}
	}

	for _, st := range s.stations {
		if !st.collecting && st.hasSpareCapacity() {
			s.assign(st)
		}
	}

	s.advanceTargets()

	if s.every(s.tune.DistributeEveryTicks) {
		s.distribute()
	}

	s.lastStep = time.Since(start)
	s.writeTickLog(tick)
	s.publishMetrics()
	s.broadcastObservers(tick)

	s.now += s.tune.TickInterval()
	s.tick.Add(1)

	if n := s.tune.SnapshotEveryTicks; n > 0 && tick > 0 && tick%uint64(n) == 0 {
		s.emitSnapshot(tick)
	}
}

// rescanScanners rebuilds every scanner cache that is empty. Field reads are not
// reentrant, so this stays on the session goroutine.
func (s *Session) rescanScanners() {
	for _, d := range s.scanners {
		if !d.NeedsRescan() {
			continue
		}
		f, ok := s.fields.Get(d.FieldID())
		if !ok {
			s.log.Printf("scanner=%s field=%s: field gone", d.ID(), d.FieldID())
			continue
		}
		if err := d.Rescan(f); err != nil {
			s.log.Printf("scanner=%s field=%s: rescan: %v", d.ID(), d.FieldID(), err)
		}
	}
}

func (s *Session) emitSnapshot(tick uint64) {
	if s.snapshotSink == nil {
		return
	}
	snap := s.ExportSnapshot(tick)
	select {
	case s.snapshotSink <- snap:
	default:
		s.log.Printf("snapshot tick=%d dropped: sink busy", tick)
	}
}
