package backend

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sunsided/yeet-yoink/internal/backbone"
	"github.com/sunsided/yeet-yoink/internal/config"
	"github.com/sunsided/yeet-yoink/internal/debug"
	"github.com/sunsided/yeet-yoink/internal/errors"
	"github.com/sunsided/yeet-yoink/internal/rendezvous"
)

// perCommandTimeout bounds how long a single command may take, across all
// of its backend calls, before the dispatcher's own context for that
// command is cancelled. Individual backends remain free to apply their
// own, tighter timeouts.
const perCommandTimeout = 5 * time.Minute

// Dispatcher is the backend registry and dispatcher. It reads commands
// from a bounded channel and forks an independent task per command so
// that uploads never block on downloads or on one backend's latency.
type Dispatcher struct {
	backends     []Backend
	fileProvider FileProvider

	sendOnce sync.Once
	cmdCh    chan Command
	sender   Sender

	guard rendezvous.Guard
}

// Sender is the at-most-once handed-out command channel. It is obtained
// by calling Dispatcher.GetSender exactly once.
type Sender struct {
	ch chan<- Command
}

// Send enqueues a command. It blocks if the dispatcher's channel is full,
// which is the intended backpressure mechanism.
func (s Sender) Send(cmd Command) {
	s.ch <- cmd
}

// Close closes the underlying channel; once all Senders derived from the
// same Dispatcher are closed, the dispatcher loop exits and signals its
// rendezvous guard complete.
func (s Sender) Close() {
	close(s.ch)
}

// DistributeFile implements backbone.DistributionSink, letting the
// backbone registry forward ReadyForDistribution events straight into the
// dispatcher without the backbone package needing to import this one.
func (d *Dispatcher) DistributeFile(id backbone.FileId, summary backbone.FileSummary) {
	d.cmdCh <- DistributeFile(id, summary)
}

// GetSender returns the command sender exactly once; subsequent calls
// return the zero Sender and ok=false, making the ownership boundary
// between the HTTP layer and the dispatcher explicit.
func (d *Dispatcher) GetSender() (Sender, bool) {
	var s Sender
	var ok bool
	d.sendOnce.Do(func() {
		s = d.sender
		ok = true
	})
	return s, ok
}

// Builder accumulates backends from typed factories before building a
// Dispatcher.
type Builder struct {
	backends     []Backend
	fileProvider FileProvider
	guard        rendezvous.Guard
	cfgs         []config.BackendConfig
}

// NewBuilder starts a Builder. fileProvider is handed to every backend's
// DistributeFile call; guard tracks every spawned per-command task so
// shutdown can await their completion.
func NewBuilder(fileProvider FileProvider, guard rendezvous.Guard, cfgs []config.BackendConfig) *Builder {
	return &Builder{fileProvider: fileProvider, guard: guard, cfgs: cfgs}
}

// AddBackends registers every backend that factory can construct from the
// configured entries matching factory.BackendName(), logging a
// registration line for each.
func (b *Builder) AddBackends(factory Factory) error {
	added := 0
	for _, cfg := range b.cfgs {
		if cfg.Kind != factory.BackendName() {
			continue
		}
		backends, err := factory.TryFromConfig(cfg)
		if err != nil {
			return errors.Wrapf(err, "constructing %s backends", factory.BackendName())
		}
		if len(backends) == 0 {
			continue
		}
		log.Info().
			Str("backend", factory.BackendName()).
			Str("backend_version", factory.BackendVersion()).
			Int("count", len(backends)).
			Msg("registering backends")
		b.backends = append(b.backends, backends...)
		added += len(backends)
	}
	return nil
}

// Build spawns the dispatcher task and returns the Dispatcher.
func (b *Builder) Build(commandBuffer int) *Dispatcher {
	cmdCh := make(chan Command, commandBuffer)
	d := &Dispatcher{
		backends:     b.backends,
		fileProvider: b.fileProvider,
		cmdCh:        cmdCh,
		sender:       Sender{ch: cmdCh},
		guard:        b.guard.Fork(),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.guard.Completed()
	for cmd := range d.cmdCh {
		taskGuard := d.guard.Fork()
		backends := d.backends
		provider := d.fileProvider
		cmd := cmd
		go func() {
			defer taskGuard.Completed()
			ctx, cancel := context.WithTimeout(context.Background(), perCommandTimeout)
			defer cancel()

			switch cmd.kind {
			case kindDistribute:
				distributeToAll(ctx, backends, provider, cmd.id, cmd.summary)
			case kindReceive:
				receiveFirstSuccess(ctx, backends, cmd.id, cmd.reply)
			}
		}()
	}
}

// distributeToAll invokes every backend in registration order, one at a
// time: no retries at this layer, a failing backend only logs a warning and
// the loop continues with the next one. Concurrency is already scoped
// across commands by Dispatcher.run, which forks a task per command; this
// loop does not additionally fan out within a single command, so backends
// always observe a given file in the order they were registered.
func distributeToAll(ctx context.Context, backends []Backend, provider FileProvider, id backbone.FileId, summary backbone.FileSummary) {
	debug.Log("dispatching distribution for %s to %d backends", id, len(backends))
	for _, be := range backends {
		if err := be.DistributeFile(ctx, id, summary, provider); err != nil {
			log.Warn().
				Str("backend", be.Tag()).
				Str("file_id", id.String()).
				Err(err).
				Msg("backend failed to distribute file")
		}
	}
}

// receiveFirstSuccess implements the download policy: try backends in
// registration order, first success wins; if none succeeds, reply with
// ErrNotFound.
func receiveFirstSuccess(ctx context.Context, backends []Backend, id backbone.FileId, reply chan<- ReceiveResult) {
	for _, be := range backends {
		if !be.CanReceive() {
			continue
		}
		rd, err := be.ReceiveFile(ctx, id)
		if err == nil {
			reply <- ReceiveResult{Reader: rd}
			return
		}
		debug.Log("backend %s could not provide file %s: %v", be.Tag(), id, err)
	}
	reply <- ReceiveResult{Err: ErrNotFound}
}
