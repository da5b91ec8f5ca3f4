package session

import (
	"context"
	"errors"
)

type adminSnapshotReq struct {
	Resp chan adminSnapshotResp
}

type adminSnapshotResp struct {
	Tick uint64
	Err  string
}

// RequestSnapshot asks the session goroutine to export a snapshot to the sink.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (s *Session) RequestSnapshot(ctx context.Context) (tick uint64, err error) {
	if s == nil || s.admin == nil {
		return 0, errors.New("admin snapshot not available")
	}
	resp := make(chan adminSnapshotResp, 1)
	select {
	case s.admin <- adminSnapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case r := <-resp:
		if r.Err != "" {
			return r.Tick, errors.New(r.Err)
		}
		return r.Tick, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *Session) handleAdminSnapshotRequests(reqs []adminSnapshotReq) {
	if len(reqs) == 0 {
		return
	}
	cur := s.tick.Load()
	snapTick := uint64(0)
	if cur > 0 {
		snapTick = cur - 1
	}

	errStr := ""
	if s.snapshotSink == nil {
		errStr = "snapshot sink not configured"
	} else {
		snap := s.ExportSnapshot(snapTick)
		select {
		case s.snapshotSink <- snap:
		default:
			errStr = "snapshot sink backpressure"
		}
	}
	for _, r := range reqs {
		select {
		case r.Resp <- adminSnapshotResp{Tick: snapTick, Err: errStr}:
		default:
		}
	}
}
