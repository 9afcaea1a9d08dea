package audit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// DispatcherConfig tunes the async write path between Logger and Store.
type DispatcherConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type dispatcher struct {
	cfg       DispatcherConfig
	store     Store
	log       zerolog.Logger
	ch        chan Entry
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newDispatcher(cfg DispatcherConfig, store Store, log zerolog.Logger) *dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	d := &dispatcher{
		cfg:   cfg,
		store: store,
		log:   log,
		ch:    make(chan Entry, cfg.BufferSize),
		done:  make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case e := <-d.ch:
			d.write(e)
		case <-d.done:
			for {
				select {
				case e := <-d.ch:
					d.write(e)
				default:
					return
				}
			}
		}
	}
}

func (d *dispatcher) write(e Entry) {
	if err := d.store.Append(context.Background(), e); err != nil {
		d.log.Error().Err(err).
			Str("audit_id", e.ID).
			Str("action", e.Action).
			Msg("audit append failed")
	}
}

func (d *dispatcher) dispatch(ctx context.Context, e Entry) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- e:
		case <-d.done:
		default:
			d.dropped.Add(1)
			d.log.Warn().
				Str("action", e.Action).
				Uint64("dropped_total", d.dropped.Load()).
				Msg("audit entry dropped, buffer full")
		}
		return
	}

	select {
	case d.ch <- e:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close stops the worker after draining buffered entries.
func (d *dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many entries were discarded because the buffer was full.
func (d *dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
