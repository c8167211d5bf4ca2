package flexconfig

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrSourceClosed is returned by Load and Reload after Close.
var ErrSourceClosed = errors.New("flexconfig: source closed")

// State is the lifecycle position of a Source.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateLoaded
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Source loads one Store into immutable snapshots and optionally keeps them
// fresh on a timer.
//
// Every successful load replaces the published snapshot in a single atomic
// swap; readers see either the previous or the new snapshot, never a mix.
// Only one load runs at a time: concurrent Load and Reload calls share the
// in-flight load, and a reload tick that fires while a load is running is
// skipped. The shared load runs on the source's own context: a caller whose
// context ends stops waiting, and the load is abandoned once no caller is
// left waiting for it. An abandoned load publishes nothing.
//
// OnChange callbacks and the LoadErrorHandler may call Close; Close then
// returns without waiting for the running load.
type Source struct {
	store Store
	name  string

	optional       bool
	reloadInterval time.Duration
	jsonProcessing bool
	jsonKeys       map[string]struct{}
	versionStage   string
	onLoadError    LoadErrorHandler
	keyTransform   func(string) string
	listDelimiter  string
	logger         *zap.Logger
	metrics        *Metrics

	snapshot   atomic.Pointer[Snapshot]
	state      atomic.Int32
	loading    atomic.Bool
	inCallback atomic.Int32
	group      singleflight.Group

	lifetime context.Context
	stop     context.CancelFunc
	flights  sync.WaitGroup

	mu        sync.Mutex
	current   *loadFlight
	lastErr   error
	callbacks []func(*Snapshot)
	started   bool
	closed    bool
	done      chan struct{}
}

// loadFlight is the load currently shared by Load, Reload and timer callers.
type loadFlight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewSource constructs a Source over store. Nothing is fetched until Load.
func NewSource(store Store, opts ...Option) (*Source, error) {
	if store == nil {
		return nil, errors.New("flexconfig: store is required")
	}
	s := &Source{
		store:         store,
		name:          store.Name(),
		listDelimiter: ",",
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.name == "" {
		s.name = "(unnamed)"
	}
	s.logger = s.logger.With(zap.String("source", s.name))
	s.lifetime, s.stop = context.WithCancel(context.Background())
	s.snapshot.Store(EmptySnapshot())
	return s, nil
}

// Name returns the source identity.
func (s *Source) Name() string {
	return s.name
}

// Optional reports whether load failures are tolerated.
func (s *Source) Optional() bool {
	return s.optional
}

// State returns the current lifecycle state.
func (s *Source) State() State {
	return State(s.state.Load())
}

// Snapshot returns the most recently published snapshot. Before the first
// successful load it is empty.
func (s *Source) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Tree returns a view over the current snapshot.
func (s *Source) Tree() Tree {
	return NewTree(s.Snapshot())
}

// LastError returns the failure of the most recent load, or the *LoadErrors
// of entries an optional source skipped. It is nil after a clean load.
func (s *Source) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// OnChange registers fn to be called with the new snapshot after every
// successful load.
func (s *Source) OnChange(fn func(*Snapshot)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Load performs the initial load and starts the reload timer when an interval
// is configured. The timer starts even if the load fails. For required
// sources the load error is returned as a *SourceError; optional sources
// report it to the LoadErrorHandler and return nil.
func (s *Source) Load(ctx context.Context) error {
	if s.isClosed() {
		return ErrSourceClosed
	}
	err := s.load(ctx)
	s.startTimer()
	return err
}

// Reload fetches the store again. It follows the same error policy as Load.
func (s *Source) Reload(ctx context.Context) error {
	if s.isClosed() {
		return ErrSourceClosed
	}
	return s.load(ctx)
}

// Close stops the reload timer, abandons any in-flight load and waits for it
// to return. It is safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	done := s.done
	s.mu.Unlock()

	s.stop()
	if s.inCallback.Load() == 0 {
		if done != nil {
			<-done
		}
		s.flights.Wait()
	}
	s.logger.Debug("source closed")
	return nil
}

func (s *Source) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// load joins the in-flight load or starts one. The flight is registered and
// forgotten under mu, so a caller that finds s.current always joins that
// same singleflight call.
func (s *Source) load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSourceClosed
	}
	f := s.current
	if f == nil {
		loadCtx, cancel := context.WithCancel(s.lifetime)
		f = &loadFlight{ctx: loadCtx, cancel: cancel}
		s.current = f
		s.flights.Add(1)
	} else {
		s.logger.Debug("joined in-flight load")
	}
	f.waiters++
	ch := s.group.DoChan("load", func() (any, error) {
		defer s.flights.Done()
		err := s.doLoad(f.ctx)
		s.mu.Lock()
		if s.current == f {
			s.current = nil
			s.group.Forget("load")
		}
		s.mu.Unlock()
		f.cancel()
		return nil, err
	})
	s.mu.Unlock()

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		s.mu.Lock()
		f.waiters--
		if f.waiters == 0 {
			f.cancel()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *Source) doLoad(ctx context.Context) error {
	s.loading.Store(true)
	defer s.loading.Store(false)
	prev := s.state.Swap(int32(StateLoading))

	start := time.Now()
	s.logger.Debug("loading source")
	snap, skipped, err := s.fetch(ctx)
	took := time.Since(start)
	if ctx.Err() != nil {
		s.state.Store(prev)
		s.logger.Debug("load abandoned", zap.Duration("took", took))
		if s.lifetime.Err() != nil {
			return ErrSourceClosed
		}
		return ctx.Err()
	}
	if err != nil {
		s.state.Store(int32(StateFailed))
		s.setLastErr(err)
		s.metrics.observeLoad(s.name, "error", took)
		if s.optional {
			s.logger.Warn("optional source failed to load", zap.Error(err))
			s.report(err)
			return nil
		}
		s.logger.Error("source failed to load", zap.Error(err))
		return err
	}

	s.snapshot.Store(snap)
	s.state.Store(int32(StateLoaded))
	result := "success"
	if skipped.Has() {
		result = "partial"
		s.setLastErr(skipped)
	} else {
		s.setLastErr(nil)
	}
	s.metrics.observeLoad(s.name, result, took)
	s.metrics.setEntries(s.name, snap.Len())
	s.logger.Debug("source loaded",
		zap.Int("keys", snap.Len()),
		zap.Duration("took", took),
		zap.String("result", result))

	s.mu.Lock()
	callbacks := make([]func(*Snapshot), len(s.callbacks))
	copy(callbacks, s.callbacks)
	s.mu.Unlock()
	s.inCallback.Add(1)
	defer s.inCallback.Add(-1)
	for _, cb := range callbacks {
		cb(snap)
	}
	return nil
}

func (s *Source) fetch(ctx context.Context) (*Snapshot, *LoadErrors, error) {
	out := NewFlatMap()
	collector := newEntryCollector(s.name)
	err := s.store.ListEntries(ctx, func(page []RemoteEntry) error {
		for _, entry := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			srcErr, ok := collector.try(entry.Name, func() error {
				return s.processEntry(ctx, entry, out)
			})
			if ok {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if !s.optional {
				return srcErr
			}
			s.logger.Warn("skipping entry", zap.String("entry", entry.Name), zap.Error(srcErr.Err))
			s.report(srcErr)
		}
		return nil
	})
	if err != nil {
		var srcErr *SourceError
		if errors.As(err, &srcErr) {
			return nil, nil, srcErr
		}
		if !isClassified(err) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
		}
		return nil, nil, &SourceError{Source: s.name, Err: err}
	}
	return out.Snapshot(), collector.result(), nil
}

func (s *Source) processEntry(ctx context.Context, entry RemoteEntry, out *FlatMap) error {
	if !entry.Enabled {
		return nil
	}
	name := entry.Name
	switch {
	case s.versionStage != "" && supportsStages(s.store):
		fetched, err := s.store.GetEntryValue(ctx, name, s.versionStage)
		if err != nil {
			return err
		}
		entry = fetched
	case !entry.Resolved:
		fetched, err := s.store.GetEntryValue(ctx, name, "")
		if err != nil {
			return err
		}
		entry = fetched
	}
	if !entry.Enabled {
		return nil
	}

	key := CanonicalKey(name, s.store.Separator())
	if s.keyTransform != nil {
		if key = s.keyTransform(key); key == "" && name != "" {
			return nil
		}
	}
	return s.storeEntry(entry, key, out)
}

func (s *Source) storeEntry(entry RemoteEntry, key string, out *FlatMap) error {
	switch entry.Kind {
	case KindList:
		if key == "" {
			return nil
		}
		if entry.Null {
			out.Set(key, nil)
			return nil
		}
		if entry.Value == "" {
			return nil
		}
		for i, item := range strings.Split(entry.Value, s.listDelimiter) {
			out.SetString(joinKey(key, strconv.Itoa(i)), strings.TrimSpace(item))
		}
		return nil
	case KindBinary:
		if key == "" {
			return nil
		}
		data := entry.Binary
		if data == nil {
			decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(entry.Value))
			if err != nil {
				return fmt.Errorf("%w: binary payload: %w", ErrMalformedValue, err)
			}
			data = decoded
		}
		out.SetString(key, base64.StdEncoding.EncodeToString(data))
		return nil
	}

	if entry.Null {
		if key != "" {
			out.Set(key, nil)
		}
		return nil
	}
	if s.shouldFlatten(key) {
		Flatten(entry.Value, key, out)
		return nil
	}
	if key != "" {
		out.SetString(key, entry.Value)
	}
	return nil
}

func (s *Source) shouldFlatten(key string) bool {
	if !s.jsonProcessing {
		return false
	}
	if len(s.jsonKeys) == 0 {
		return true
	}
	_, ok := s.jsonKeys[strings.ToLower(key)]
	return ok
}

func (s *Source) setLastErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

func (s *Source) report(err error) {
	if s.onLoadError != nil {
		s.inCallback.Add(1)
		defer s.inCallback.Add(-1)
		s.onLoadError(err)
	}
}

func (s *Source) startTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed || s.reloadInterval <= 0 {
		return
	}
	s.started = true
	s.done = make(chan struct{})
	go s.reloadLoop(s.lifetime, s.done)
}

func (s *Source) reloadLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.reloadInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Source) tick(ctx context.Context) {
	if s.loading.Load() {
		s.logger.Debug("reload skipped, load in flight")
		s.metrics.skipReload(s.name)
		return
	}
	err := s.load(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	s.logger.Warn("scheduled reload failed", zap.Error(err))
	s.report(err)
}

func isClassified(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrEntryNotFound) ||
		errors.Is(err, ErrMalformedValue) ||
		errors.Is(err, ErrVersionStageNotFound) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
