package session

type collectJob struct {
	st *stationState
}

func (s *Session) startWorkers(n int) {
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		s.workers.Add(1)
		go s.worker()
	}
}

// worker runs candidate collection off the session goroutine. It never touches
// station or registry state directly; results go back through the command queue.
func (s *Session) worker() {
	defer s.workers.Done()
	for {
		select {
		case <-s.stop:
			return
		case job := <-s.jobs:
			cands := job.st.collector.Collect(s.feeds)
			s.post(assignCommand{stationID: job.st.view.ID, candidates: cands})
			s.inflight.Done()
		}
	}
}

// dispatch queues a collection job for st unless one is already outstanding.
func (s *Session) dispatch(st *stationState) bool {
	if st.collecting {
		return false
	}
	s.inflight.Add(1)
	select {
	case s.jobs <- collectJob{st: st}:
		st.collecting = true
		return true
	default:
		s.inflight.Done()
		return false
	}
}

// WaitIdle blocks until every dispatched collection job has posted its result. It is
// meant for tests driving the session with StepOnce and must be called from that
// goroutine.
func (s *Session) WaitIdle() { s.inflight.Wait() }
