// Command midinet-client subscribes to a MIDInet host pair, forwards
// the active stream's MIDI to a local virtual device, fails over
// between streams on heartbeat loss, and claims feedback focus so at
// most one client instance's local input is ever treated as live.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/hakolsound/midinet/internal/client"
	"github.com/hakolsound/midinet/internal/config"
	"github.com/hakolsound/midinet/internal/discovery"
	"github.com/hakolsound/midinet/internal/focus"
	"github.com/hakolsound/midinet/internal/host"
	"github.com/hakolsound/midinet/internal/logging"
	"github.com/hakolsound/midinet/internal/rtpriority"
	"github.com/hakolsound/midinet/internal/status"
	"github.com/hakolsound/midinet/internal/taskpool"
	"github.com/hakolsound/midinet/internal/vmidi"
	"github.com/hakolsound/midinet/internal/wire"
)

func main() {
	fs := pflag.NewFlagSet("midinet-client", pflag.ExitOnError)
	flags := config.RegisterFlags(fs)
	autoClaimFlag := fs.Bool("claim-focus", false, "Claim feedback focus on startup.")
	fs.Parse(os.Args[1:])

	file, err := config.Load(*flags.ConfigFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	file = flags.Apply(fs, file)

	logger := logging.New(logging.Options{
		Level:      pick(*flags.LogLevel, "info"),
		Component:  "midinet-client",
		ArchiveDir: *flags.LogDir,
	})

	if rtpriority.Available() {
		if err := rtpriority.Enable(rtpriority.DefaultPriority); err != nil {
			logger.Warn("failed to enable real-time scheduling", "err", err)
		}
	}

	identity := wire.IdentityPacket{
		HostID:       file.Host.ID,
		DeviceName:   pick(file.Host.Name, "MIDInet Client"),
		PortCountIn:  1,
		PortCountOut: 1,
	}
	localDevice, err := vmidi.Open(identity, logger)
	if err != nil {
		logger.Warn("falling back to a null MIDI device", "err", err)
		localDevice, err = vmidi.OpenNull(identity, logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	defer localDevice.Close()

	monitor, err := client.New(client.Config{
		Primary: client.StreamAddrs{
			Data:      host.PrimaryEndpoints().Data,
			Heartbeat: host.PrimaryEndpoints().Heartbeat,
		},
		Standby: client.StreamAddrs{
			Data:      host.StandbyEndpoints().Data,
			Heartbeat: host.StandbyEndpoints().Heartbeat,
		},
		Control:           host.DefaultControlAddr(),
		HeartbeatInterval: time.Duration(file.Heartbeat.IntervalMS) * time.Millisecond,
		MissThreshold:     file.Heartbeat.MissThreshold,
		SwitchLockout:     time.Duration(file.Failover.LockoutSeconds) * time.Second,
	}, client.SinkFunc(localDevice.Write), logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer monitor.Close()

	claimant, err := focus.NewClaimant(focus.Config{Control: host.DefaultFocusAddr()}, focus.NewClientID(), logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer claimant.Close()

	commands := client.NewCommands(monitor, claimant)
	statusPub := status.NewPublisher(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, ctx := taskpool.New(ctx, taskpool.WithLogger(logger.With("component", "taskpool")))

	browser, err := discovery.NewBrowser(ctx)
	if err != nil {
		logger.Warn("mDNS browsing failed to start", "err", err)
	}

	pool.Go(func(ctx context.Context) error { return monitor.Run(ctx) })
	pool.Go(func(ctx context.Context) error { return claimant.Listen(ctx) })
	pool.Go(func(ctx context.Context) error { return claimant.RenewLoop(ctx) })
	pool.Go(func(ctx context.Context) error { return forwardLocalFeedback(ctx, localDevice, claimant, logger) })
	pool.Go(func(ctx context.Context) error { return publishStatus(ctx, statusPub, monitor, claimant, browser) })

	if file.Focus.AutoClaim || *autoClaimFlag {
		pool.Go(func(ctx context.Context) error {
			if _, err := commands.ClaimFocus(ctx, false); err != nil {
				logger.Warn("initial focus claim failed", "err", err)
			}
			return nil
		})
	}

	if err := pool.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("midinet-client exited", "err", err)
		os.Exit(1)
	}
}

// forwardLocalFeedback drains the local virtual device's incoming MIDI
// and relays it to the host as focus feedback whenever this client
// currently holds the lease (spec.md §4.11); input captured while
// unclaimed is simply dropped rather than buffered for later.
func forwardLocalFeedback(ctx context.Context, dev *vmidi.Device, claimant *focus.Claimant, logger *log.Logger) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var batch []wire.MidiMessage
			for {
				msg, ok := dev.Read()
				if !ok {
					break
				}
				batch = append(batch, msg)
			}
			if len(batch) == 0 || !claimant.Held() {
				continue
			}
			if err := claimant.SendFeedback(batch); err != nil {
				logger.Warn("feedback send failed", "err", err)
			}
		}
	}
}

// publishStatus periodically republishes a status.Snapshot summarizing
// the monitor's and claimant's current view, for an (out-of-scope)
// admin surface to poll.
func publishStatus(ctx context.Context, pub *status.Publisher, monitor *client.Monitor, claimant *focus.Claimant, browser *discovery.Browser) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			active := uint16(0)
			if browser != nil {
				for id, h := range browser.Hosts() {
					if h.Role == streamRole(monitor.Active()) {
						active = id
					}
				}
			}
			held := claimant.Held()
			var holder uint64
			if held {
				holder = claimant.ClientID()
			}
			switchCount, lastSwitch := monitor.SwitchStats()
			rxRate, lossPercent := monitor.StreamMetrics()
			pub.Store(&status.Snapshot{
				ActiveHost:           active,
				HasFocus:             held,
				FocusHolder:          holder,
				SwitchCount:          switchCount,
				LastSwitchAt:         lastSwitch,
				PerStreamRxRate:      rxRate,
				PerStreamLossPercent: lossPercent,
			})
		}
	}
}

func streamRole(id wire.StreamID) string {
	if id == wire.StreamStandby {
		return "standby"
	}
	return "primary"
}

func pick(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
