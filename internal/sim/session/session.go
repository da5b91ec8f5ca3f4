package session

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"nanitecraft.ai/internal/persistence/snapshot"
	"nanitecraft.ai/internal/protocol"
	"nanitecraft.ai/internal/sim/catalogs"
	"nanitecraft.ai/internal/sim/effects"
	"nanitecraft.ai/internal/sim/field"
	"nanitecraft.ai/internal/sim/geom"
	"nanitecraft.ai/internal/sim/layout"
	"nanitecraft.ai/internal/sim/mining"
	"nanitecraft.ai/internal/sim/scanner"
	"nanitecraft.ai/internal/sim/storage"
	"nanitecraft.ai/internal/sim/tuning"
)

type Config struct {
	// ID names the world this session runs; it is recorded in snapshot headers.
	ID       string
	Seed     int64
	Tuning   tuning.Tuning
	Layout   layout.Config
	Catalogs *catalogs.Catalogs
	Logger   *log.Logger
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// Session is the authoritative execution context of one mining world. All claim,
// active-list, tracker, field and cargo mutation happens on the goroutine running
// Run (or the caller of StepOnce). Collection runs on a worker pool and hands its
// results back as commands.
type Session struct {
	cfg  Config
	id   string
	log  *log.Logger
	tune tuning.Tuning

	tick atomic.Uint64
	now  time.Duration

	fields      *field.Store
	scanners    []*scanner.Detector
	scannerByID map[string]*scanner.Detector
	feeds       []mining.ScannerFeed

	stations    []*stationState
	stationByID map[string]*stationState
	views       []*mining.Station
	cargo       map[string]*storage.Cargo

	registry    *mining.ClaimRegistry
	scheduler   *mining.Scheduler
	tracker     *mining.Tracker
	engine      *mining.Engine
	effects     *effects.Manager
	distributor *storage.Distributor

	commands chan Command
	jobs     chan collectJob
	inflight sync.WaitGroup
	workers  sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once

	admin         chan adminSnapshotReq
	eventsReq     chan eventsReq
	observerJoin  chan ObserverJoinRequest
	observerSub   chan ObserverSubscribeRequest
	observerLeave chan string
	observers     map[string]*observerClient

	tickLogger   TickLogger
	auditLogger  AuditLogger
	snapshotSink chan<- snapshot.SnapshotV1

	tickEvents  []protocol.TargetEvent
	tickCmds    []string
	journal     *eventJournal
	stats       counters
	droppedCmds atomic.Uint64
	lastStep    time.Duration

	metrics atomic.Value
}

func New(cfg Config) (*Session, error) {
	if cfg.Catalogs == nil {
		return nil, errors.New("session: catalogs required")
	}
	tune := cfg.Tuning
	tune.Normalize()
	if err := tune.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	lay := cfg.Layout
	lay.Normalize()
	if err := lay.Validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	s := &Session{
		cfg:         cfg,
		id:          uuid.NewString(),
		log:         logger,
		tune:        tune,
		fields:      field.NewStore(),
		scannerByID: map[string]*scanner.Detector{},
		stationByID: map[string]*stationState{},
		cargo:       map[string]*storage.Cargo{},
		registry:    mining.NewClaimRegistry(),
		effects:     effects.NewManager(tune.Mining.MaxEffects),

		commands:      make(chan Command, tune.CommandQueue),
		jobs:          make(chan collectJob, len(lay.Stations)+1),
		stop:          make(chan struct{}),
		admin:         make(chan adminSnapshotReq, 16),
		eventsReq:     make(chan eventsReq, 64),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerSub:   make(chan ObserverSubscribeRequest, 64),
		observerLeave: make(chan string, 64),
		observers:     map[string]*observerClient{},
		journal:       newEventJournal(defaultJournalSize),
		stats:         newCounters(),
	}

	for _, fs := range lay.Fields {
		gen := fs.Gen
		if gen.Seed == 0 {
			gen.Seed = cfg.Seed
		}
		f, err := field.New(field.Config{
			ID:       fs.ID,
			Origin:   geom.Vec3FromArray(fs.Origin),
			Size:     geom.Vec3iFromArray(fs.Size),
			CellSize: fs.CellSize,
			Gen:      gen,
		})
		if err != nil {
			return nil, fmt.Errorf("session: field %s: %w", fs.ID, err)
		}
		s.fields.Add(f)
	}

	for _, sc := range lay.Scanners {
		d := scanner.New(scanner.Config{
			ID:       sc.ID,
			Owner:    sc.Owner,
			FieldID:  sc.Field,
			Position: geom.Vec3FromArray(sc.Position),
			Range:    sc.Range,
		}, cfg.Catalogs)
		s.scanners = append(s.scanners, d)
		s.scannerByID[sc.ID] = d
		s.feeds = append(s.feeds, d)
	}

	for _, cs := range lay.Cargo {
		s.cargo[cs.ID] = storage.NewCargo(cs.ID, cs.Capacity, cfg.Catalogs)
	}

	s.scheduler = mining.NewScheduler(s.registry, mining.SchedulerConfig{
		MaxDistance: tune.Mining.MaxDistance,
		Logger:      logger,
	})
	s.tracker = mining.NewTracker(mining.TrackerConfig{
		RecheckInterval: tune.Mining.RecheckInterval(),
		CarryMargin:     tune.Mining.CarryMargin(),
	}, s.effects)
	s.engine = mining.NewEngine(s.fields, s, mining.EngineConfig{
		HarvestRatio: tune.Mining.HarvestRatio,
		CellVolume:   tune.Mining.CellVolumeM3,
		CutRadius:    tune.Mining.CutRadius,
		RegionPad:    tune.Mining.RegionPad,
		Logger:       logger,
	})
	s.distributor = storage.NewDistributor(cfg.Catalogs, storage.DefaultAttempts, logger)

	relations := layout.NewRelations(lay.Factions)
	for _, spec := range lay.Stations {
		st := newStationState(spec, tune.Mining, cfg.Catalogs)
		st.collector = mining.NewCollector(st.view, s.registry, mining.CollectorConfig{
			MaxDistance: tune.Mining.MaxDistance,
			StallCycles: tune.Mining.StallCycles,
			Relations:   relations,
			Logger:      logger,
		}, stationRand(cfg.Seed, spec.ID))
		s.stations = append(s.stations, st)
		s.stationByID[spec.ID] = st
		s.views = append(s.views, st.view)
		s.cargo[spec.ID] = st.cargo
	}
	for _, st := range s.stations {
		for _, id := range st.spec.Links {
			if c := s.cargo[id]; c != nil {
				st.links = append(st.links, c)
			}
		}
	}

	s.startWorkers(tune.Workers)
	s.publishMetrics()
	return s, nil
}

// stationRand gives every station its own shuffle stream, derived from the world seed.
func stationRand(seed int64, stationID string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(stationID))
	return rand.New(rand.NewPCG(uint64(seed), h.Sum64()))
}

func (s *Session) ID() string { return s.id }

func (s *Session) WorldID() string { return s.cfg.ID }

func (s *Session) CurrentTick() uint64 { return s.tick.Load() }

func (s *Session) TickRateHz() int { return s.tune.TickRateHz }

func (s *Session) SetTickLogger(l TickLogger)   { s.tickLogger = l }
func (s *Session) SetAuditLogger(l AuditLogger) { s.auditLogger = l }

func (s *Session) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { s.snapshotSink = ch }

// Bootstrap describes the static layout for observers. It only reads immutable state.
func (s *Session) Bootstrap() protocol.BootstrapResponse {
	resp := protocol.BootstrapResponse{
		ProtocolVersion: protocol.Version,
		SessionID:       s.id,
		WorldID:         s.cfg.ID,
		Tick:            s.tick.Load(),
		TickRateHz:      s.tune.TickRateHz,
	}
	for _, id := range s.fields.IDs() {
		f, ok := s.fields.Get(id)
		if !ok {
			continue
		}
		resp.Fields = append(resp.Fields, protocol.FieldInfo{
			ID:       id,
			Origin:   f.Origin().ToArray(),
			Size:     f.Size().ToArray(),
			CellSize: f.CellSize(),
		})
	}
	for _, st := range s.stations {
		resp.Stations = append(resp.Stations, st.view.ID)
	}
	for _, d := range s.scanners {
		resp.Scanners = append(resp.Scanners, d.ID())
	}
	return resp
}

// RecordMined marks a finished cell in the scanner that reported it.
func (s *Session) RecordMined(t mining.ActiveTarget) {
	d := s.scannerByID[t.ScannerID]
	if d == nil {
		s.log.Printf("record mined station=%s field=%s pos=%s material=%d: unknown scanner %q", t.StationID, t.Cell.FieldID, t.Cell.World, t.Cell.MaterialID, t.ScannerID)
		return
	}
	d.MarkMined(t.Key())
}
