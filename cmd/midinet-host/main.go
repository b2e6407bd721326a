// Command midinet-host runs one half of a redundant MIDInet pair: it
// reads a physical MIDI device (with a hot-spare backup watched by the
// input-redundancy controller), broadcasts the primary or standby
// multicast stream, arbitrates client feedback focus, accepts manual
// failover triggers, and advertises itself over mDNS.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/hakolsound/midinet/internal/config"
	"github.com/hakolsound/midinet/internal/discovery"
	"github.com/hakolsound/midinet/internal/focus"
	"github.com/hakolsound/midinet/internal/host"
	"github.com/hakolsound/midinet/internal/host/redundancy"
	"github.com/hakolsound/midinet/internal/logging"
	"github.com/hakolsound/midinet/internal/osctrigger"
	"github.com/hakolsound/midinet/internal/pipeline"
	"github.com/hakolsound/midinet/internal/ringbuf"
	"github.com/hakolsound/midinet/internal/rtpriority"
	"github.com/hakolsound/midinet/internal/status"
	"github.com/hakolsound/midinet/internal/taskpool"
	"github.com/hakolsound/midinet/internal/vmidi"
	"github.com/hakolsound/midinet/internal/wire"
)

func main() {
	fs := pflag.NewFlagSet("midinet-host", pflag.ExitOnError)
	flags := config.RegisterFlags(fs)
	role := fs.String("role", "primary", `Which stream this process owns: "primary" or "standby".`)
	epoch := fs.Uint32("epoch", uint32(time.Now().Unix()), "Restart epoch; bump on every process restart.")
	fs.Parse(os.Args[1:])

	file, err := config.Load(*flags.ConfigFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	file = flags.Apply(fs, file)

	logger := logging.New(logging.Options{
		Level:      pick(*flags.LogLevel, "info"),
		Component:  "midinet-host",
		ArchiveDir: *flags.LogDir,
	})

	if rtpriority.Available() {
		if err := rtpriority.Enable(rtpriority.DefaultPriority); err != nil {
			logger.Warn("failed to enable real-time scheduling", "err", err)
		}
	}

	identity := wire.IdentityPacket{
		HostID:       file.Host.ID,
		DeviceName:   file.Host.Name,
		PortCountIn:  1,
		PortCountOut: 1,
	}

	physical, err := vmidi.Open(identity, logger)
	if err != nil {
		logger.Warn("falling back to a null MIDI device", "err", err)
		physical, err = vmidi.OpenNull(identity, logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	defer physical.Close()

	own := host.PrimaryEndpoints()
	peerAddr := host.StandbyEndpoints().Heartbeat
	streamID := wire.StreamPrimary
	if *role == "standby" {
		own = host.StandbyEndpoints()
		peerAddr = host.PrimaryEndpoints().Heartbeat
		streamID = wire.StreamStandby
	}

	ring := ringbuf.New[wire.MidiMessage](ringbuf.DefaultCapacity)

	broadcaster, err := host.NewBroadcaster(host.Config{
		HostID:   file.Host.ID,
		Epoch:    *epoch,
		Own:      own,
		Peer:     peerAddr,
		StreamID: streamID,
		Control:  host.DefaultControlAddr(),
		Identity: identity,
	}, ring, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer broadcaster.Close()

	var switches switchTracker

	redundancyCtrl := redundancy.New(
		redundancy.WithAutoSwitch(file.Failover.AutoEnabled),
		redundancy.WithLockout(time.Duration(file.Failover.LockoutSeconds)*time.Second),
		redundancy.OnSwitch(func(from, to redundancy.Slot, reason string) {
			logger.Info("input redundancy switch", "from", from, "to", to, "reason", reason)
			active := uint8(0)
			if to == redundancy.SlotBackup {
				active = 1
			}
			broadcaster.SetInputActive(active)
			switches.record(time.Now())
		}),
	)
	redundancyCtrl.ObserveOpen(redundancy.SlotActive, time.Now())

	arbiter, err := focus.NewArbiter(focus.Config{Control: host.DefaultFocusAddr()}, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer arbiter.Close()
	arbiter.SetFeedbackSink(func(msgs []wire.MidiMessage) {
		for _, msg := range msgs {
			if err := physical.Write(msg); err != nil {
				logger.Warn("feedback relay write failed", "err", err)
			}
		}
	})

	initialPipeline, err := config.BuildPipeline(file.Pipeline)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	pipelinePub := pipeline.NewPublisher(initialPipeline)

	watcher, err := config.NewWatcher(*flags.ConfigFile, file, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	watcher.OnReload(func(hot *config.Hot) {
		redundancyCtrl.SetAutoSwitch(hot.Failover.AutoEnabled)
		pipelinePub.Store(hot.Pipeline)
	})

	statusPub := status.NewPublisher(nil)
	commands := host.NewCommands(redundancyCtrl, arbiter, pipelinePub, logger)
	commands.SetDesignatedPrimary(file.Host.ID)

	var trigger *osctrigger.Trigger
	if file.Failover.Triggers.OSC.Enabled {
		trigger, err = osctrigger.New(
			udpAddrOnAllInterfaces(file.Failover.Triggers.OSC.ListenPort),
			func() { _, _ = commands.TriggerFailover(true) },
			osctrigger.WithAddressPattern(pick(file.Failover.Triggers.OSC.Address, osctrigger.DefaultAddressPattern)),
			osctrigger.WithAllowedCIDRs(file.Failover.Triggers.OSC.AllowedSources),
			osctrigger.WithLogger(logger.With("component", "osctrigger")),
		)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer trigger.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, ctx := taskpool.New(ctx, taskpool.WithLogger(logger.With("component", "taskpool")))

	if _, err := discovery.Advertise(ctx, discovery.Announcement{
		HostID:         file.Host.ID,
		Role:           *role,
		MulticastGroup: own.Data.IP.String(),
		DataPort:       own.Data.Port,
		HeartbeatPort:  own.Heartbeat.Port,
		Epoch:          *epoch,
		DeviceName:     file.Host.Name,
	}, file.Host.Name); err != nil {
		logger.Warn("mDNS advertisement failed to start", "err", err)
	}

	pool.Go(func(ctx context.Context) error { return broadcaster.Run(ctx) })
	pool.Go(func(ctx context.Context) error { return arbiter.Run(ctx) })
	pool.Go(func(ctx context.Context) error { return watcher.Run(ctx) })
	if trigger != nil {
		pool.Go(func(ctx context.Context) error { return trigger.Run(ctx) })
	}
	pool.Go(func(ctx context.Context) error {
		return pumpIngress(ctx, physical, ring, pipelinePub, redundancyCtrl, logger)
	})
	pool.Go(func(ctx context.Context) error {
		return publishStatus(ctx, statusPub, redundancyCtrl, arbiter, broadcaster, &switches)
	})

	if err := pool.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("midinet-host exited", "err", err)
		os.Exit(1)
	}
}

// pumpIngress drains the physical device's incoming MIDI, runs it
// through the currently-published pipeline, and pushes the result into
// the ring buffer the broadcaster's batcher consumes. Every received
// message also feeds the redundancy controller as an activity
// observation, so a silent active device can be detected and failed
// over to the backup.
func pumpIngress(ctx context.Context, dev *vmidi.Device, ring *ringbuf.Ring[wire.MidiMessage], pipelinePub *pipeline.Publisher, ctrl *redundancy.Controller, logger *log.Logger) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for {
				msg, ok := dev.Read()
				if !ok {
					break
				}
				ctrl.ObserveActivity(redundancy.SlotActive, time.Now())
				out, keep := pipelinePub.Load().Process(msg)
				if !keep {
					continue
				}
				if !ring.Push(out) {
					logger.Warn("ingress ring buffer overflow")
				}
			}
			ctrl.CheckTimeout(time.Now())
		}
	}
}

// publishStatus periodically republishes a status.Snapshot summarizing
// the redundancy controller's, broadcaster's, and focus arbiter's current
// view, for an (out-of-scope) admin surface to poll.
func publishStatus(ctx context.Context, pub *status.Publisher, ctrl *redundancy.Controller, arbiter *focus.Arbiter, broadcaster *host.Broadcaster, switches *switchTracker) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			holder, held := arbiter.Holder()
			count, lastSwitch := switches.stats()
			pub.Store(&status.Snapshot{
				StandbyHealthy: ctrl.Health(redundancy.SlotBackup) == redundancy.Active,
				FocusHolder:    holder,
				HasFocus:       held,
				SwitchCount:    count,
				LastSwitchAt:   lastSwitch,
				PerStreamLossPercent: map[string]float64{
					"ingress": broadcaster.IngressLossPercent(),
				},
			})
		}
	}
}

// switchTracker counts input-redundancy switches and records when the
// last one happened, for status.Snapshot's SwitchCount/LastSwitchAt.
type switchTracker struct {
	count atomic.Uint64
	mu    sync.Mutex
	last  time.Time
}

func (t *switchTracker) record(now time.Time) {
	t.count.Add(1)
	t.mu.Lock()
	t.last = now
	t.mu.Unlock()
}

func (t *switchTracker) stats() (uint64, time.Time) {
	t.mu.Lock()
	last := t.last
	t.mu.Unlock()
	return t.count.Load(), last
}

func pick(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func udpAddrOnAllInterfaces(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4zero, Port: port}
}
