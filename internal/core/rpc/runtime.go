// Package rpc implements the invocation runtime: lazily connected service
// handles with heartbeat liveness, inbound request dispatch and correlation
// of responses to pending calls.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zeusync/zeusrpc/internal/core/observability/log"
	"github.com/zeusync/zeusrpc/internal/core/registry"
	"github.com/zeusync/zeusrpc/internal/core/scheduler"
	"github.com/zeusync/zeusrpc/internal/core/transport"
	"github.com/zeusync/zeusrpc/pkg/concurrent"
)

// Options configures a Runtime. Registry and Transport are required.
type Options struct {
	Registry  registry.Registry
	Transport transport.Factory

	// Executor runs local request handlers. When nil the runtime owns a
	// pool of Workers goroutines with a queue of WorkerQueue tasks.
	Executor    concurrent.Executor
	Workers     int
	WorkerQueue int

	HeartbeatInterval time.Duration
	TableShards       int
	SchedulerQueue    int
	Logger            log.Log
}

// PublishOptions describes where a service accepts connections. The
// published host is Host, or the local address on the network whose
// broadcast address is Broadcast.
type PublishOptions struct {
	Service   string
	Host      string
	Broadcast string
	Port      int

	// ListenHost overrides the host the transport binds to.
	ListenHost string
}

// Runtime owns the shared state of one process: transport, registry,
// control loop, worker pool, service connections and local providers.
type Runtime struct {
	registry  registry.Registry
	transport transport.Transport
	loop      *scheduler.Loop
	provider  *Provider
	router    *Router
	table     *Table
	executor  concurrent.Executor
	pool      *concurrent.Pool
	heartbeat Heartbeat
	logger    log.Log

	localsMu sync.RWMutex
	locals   map[string]any

	ctx     context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	started atomic.Bool
	closed  atomic.Bool
}

// NewRuntime builds a runtime from opts. Nothing runs until Start is called.
func NewRuntime(opts Options) (*Runtime, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidOptions)
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("%w: transport factory is required", ErrInvalidOptions)
	}
	if opts.Logger == nil {
		opts.Logger = log.Provide()
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		registry:  opts.Registry,
		loop:      scheduler.New(opts.SchedulerQueue, opts.Logger),
		provider:  NewProvider(),
		heartbeat: NewHeartbeat(opts.HeartbeatInterval),
		logger:    opts.Logger.With(log.String("component", "runtime")),
		locals:    make(map[string]any),
		ctx:       ctx,
		cancel:    cancel,
		executor:  opts.Executor,
	}
	if rt.executor == nil {
		workers := opts.Workers
		if workers <= 0 {
			workers = 8
		}
		queue := opts.WorkerQueue
		if queue <= 0 {
			queue = 1024
		}
		rt.pool = concurrent.NewPool(workers, queue)
		rt.executor = rt.pool
	}

	rt.router = NewRouter(ctx, rt.provider, rt.executor, opts.Logger)
	rt.transport = opts.Transport(rt.router)

	env := &environment{
		registry:  rt.registry,
		transport: rt.transport,
		loop:      rt.loop,
		heartbeat: rt.heartbeat,
		ids:       NewCorrelationID,
		ready:     rt.ready,
		logger:    opts.Logger,
	}
	rt.table = NewTable(opts.TableShards, func(key ServiceKey) *ServiceConnection {
		return newServiceConnection(key, env)
	})
	return rt, nil
}

// Start runs the control loop and the owned worker pool until ctx is done
// or Stop is called.
func (rt *Runtime) Start(ctx context.Context) error {
	if rt.closed.Load() {
		return ErrRuntimeClosed
	}
	if !rt.started.CompareAndSwap(false, true) {
		return nil
	}

	group, gctx := errgroup.WithContext(ctx)
	rt.group = group
	group.Go(func() error {
		return rt.loop.Run(gctx)
	})
	if rt.pool != nil {
		if err := rt.pool.Start(gctx); err != nil {
			return err
		}
	}

	rt.logger.Info("Runtime started",
		log.Duration("heartbeat_interval", rt.heartbeat.Interval),
		log.Duration("heartbeat_timeout", rt.heartbeat.Timeout()),
	)
	return nil
}

// Stop closes the transport, which disconnects every connection, then closes
// the registry when it holds resources and stops the control loop and the
// owned worker pool.
func (rt *Runtime) Stop() error {
	if !rt.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if err := rt.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}
	if closer, ok := rt.registry.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close registry: %w", err))
		}
	}
	rt.loop.Stop()
	rt.cancel()
	if rt.pool != nil {
		if err := rt.pool.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop worker pool: %w", err))
		}
	}
	if rt.group != nil {
		if err := rt.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}

	rt.logger.Info("Runtime stopped")
	return errors.Join(errs...)
}

// ready reports whether the control loop and workers are running.
func (rt *Runtime) ready() error {
	switch {
	case rt.closed.Load():
		return newError(ErrorCodeRuntimeClosed, "runtime is closed", nil)
	case !rt.started.Load():
		return newError(ErrorCodeRuntimeNotStarted, "runtime is not started", nil)
	default:
		return nil
	}
}

// Publish starts accepting connections and announces the service address.
// A zero port binds an ephemeral one, which is what gets published. The
// runtime must be started first.
func (rt *Runtime) Publish(ctx context.Context, opts PublishOptions) error {
	if err := rt.ready(); err != nil {
		return err
	}

	host := opts.Host
	if opts.Broadcast != "" {
		found, err := registry.HostForBroadcast(opts.Broadcast)
		if err != nil {
			return fmt.Errorf("publish %s: %w", opts.Service, err)
		}
		host = found
	}
	if host == "" {
		return fmt.Errorf("publish %s: %w", opts.Service, registry.ErrInvalidAddress)
	}

	listenHost := host
	if opts.ListenHost != "" {
		listenHost = opts.ListenHost
	}
	if err := rt.transport.Listen(ctx, registry.JoinAddress(listenHost, opts.Port)); err != nil {
		return fmt.Errorf("publish %s: %w", opts.Service, err)
	}

	port := opts.Port
	if port == 0 {
		_, p, err := net.SplitHostPort(rt.transport.Addr())
		if err != nil {
			return fmt.Errorf("publish %s: %w", opts.Service, err)
		}
		if port, err = strconv.Atoi(p); err != nil {
			return fmt.Errorf("publish %s: %w", opts.Service, err)
		}
	}

	if err := rt.registry.Publish(ctx, opts.Service, host, port); err != nil {
		return fmt.Errorf("publish %s: %w", opts.Service, err)
	}
	rt.logger.Info("Service published",
		log.String("service", opts.Service),
		log.String("address", registry.JoinAddress(host, port)),
		log.String("listen", rt.transport.Addr()),
	)
	return nil
}

// Connection returns the single ServiceConnection for key. Invocations on it
// fail with ErrRuntimeNotStarted until Start is called.
func (rt *Runtime) Connection(key ServiceKey) *ServiceConnection {
	return rt.table.GetOrCreate(key)
}

// Provider returns the handlers served to remote callers.
func (rt *Runtime) Provider() *Provider {
	return rt.provider
}

// Transport returns the transport shared by inbound and dialed connections.
func (rt *Runtime) Transport() transport.Transport {
	return rt.transport
}

// Table returns the service connection table.
func (rt *Runtime) Table() *Table {
	return rt.table
}

// Heartbeat returns the liveness timing applied to dialed connections.
func (rt *Runtime) Heartbeat() Heartbeat {
	return rt.heartbeat
}

func (rt *Runtime) local(iface string) (any, bool) {
	rt.localsMu.RLock()
	defer rt.localsMu.RUnlock()
	impl, ok := rt.locals[iface]
	return impl, ok
}

func (rt *Runtime) setLocal(iface string, impl any) {
	rt.localsMu.Lock()
	rt.locals[iface] = impl
	rt.localsMu.Unlock()
}
