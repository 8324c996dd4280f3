// Package main provides the entry point for the CH347 bridge control tool.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hidbridge/ch347/internal/bridge"
	"github.com/hidbridge/ch347/internal/dbus"
	"github.com/hidbridge/ch347/internal/oled"
	"github.com/hidbridge/ch347/internal/scan"
	"github.com/hidbridge/ch347/internal/udev"
	"github.com/hidbridge/ch347/internal/usb"
)

var (
	verbose bool
	serial  string

	rootCmd = &cobra.Command{
		Use:   "ch347ctl",
		Short: "Control tool and D-Bus daemon for CH347 USB bridges",
		Long: `ch347ctl drives WCH CH347 USB multi-protocol bridges in HID mode.

It can enumerate connected bridges, scan and inspect I2C buses, drive
SSD1306-style OLED panels, and run as a D-Bus daemon that tracks bridge
hot-plug events.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&serial, "serial", "s", "", "Bridge serial number (default: first bridge found)")

	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newDumpCmd())
	rootCmd.AddCommand(newPokeCmd())
	rootCmd.AddCommand(newDemoCmd())
	rootCmd.AddCommand(newDaemonCmd())
}

func configureLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// openBridge opens the bridge selected by the --serial flag, or the
// first enumerated bridge when the flag is empty.
func openBridge() (*bridge.Bridge, error) {
	br := bridge.New()
	if serial != "" {
		if err := br.OpenBySerial(serial); err != nil {
			return nil, err
		}
		return br, nil
	}
	if err := br.Open(0); err != nil {
		return nil, err
	}
	return br, nil
}

// parseByte parses a numeric argument, accepting 0x-prefixed hex.
func parseByte(arg string) (byte, error) {
	v, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", arg, err)
	}
	return byte(v), nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connected CH347 bridges",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := usb.Enumerate()
			if err != nil {
				return fmt.Errorf("enumeration failed: %w", err)
			}
			if len(infos) == 0 {
				cmd.Println("No CH347 bridges found")
				return nil
			}
			for _, info := range infos {
				cmd.Printf("%-16s %-24s %s\n", info.Serial, info.Product, info.Path)
			}
			return nil
		},
	}
}

func newScanCmd() *cobra.Command {
	var start, end int

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the I2C bus for responding devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			br, err := openBridge()
			if err != nil {
				return err
			}
			defer br.Close()

			found, err := scan.New(br).Scan(start, end)
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			if len(found) == 0 {
				cmd.Println("No devices responded")
				return nil
			}
			for _, addr := range found {
				cmd.Printf("0x%02x\n", addr)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&start, "start", 0x03, "First address to probe")
	cmd.Flags().IntVar(&end, "end", 0x77, "Last address to probe")
	return cmd
}

func newDumpCmd() *cobra.Command {
	var offset byte
	var count int

	cmd := &cobra.Command{
		Use:   "dump <addr>",
		Short: "Read registers from an I2C device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseByte(args[0])
			if err != nil {
				return err
			}

			br, err := openBridge()
			if err != nil {
				return err
			}
			defer br.Close()

			cmd.Println(scan.New(br).ReadRegistersHex(addr, offset, count))
			return nil
		},
	}

	cmd.Flags().Uint8Var(&offset, "offset", 0, "First register offset")
	cmd.Flags().IntVar(&count, "count", 16, "Number of registers to read")
	return cmd
}

func newPokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poke <addr> <offset> <byte>...",
		Short: "Write bytes to an I2C device register",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseByte(args[0])
			if err != nil {
				return err
			}
			offset, err := parseByte(args[1])
			if err != nil {
				return err
			}
			data := make([]byte, 0, len(args)-2)
			for _, arg := range args[2:] {
				b, err := parseByte(arg)
				if err != nil {
					return err
				}
				data = append(data, b)
			}

			br, err := openBridge()
			if err != nil {
				return err
			}
			defer br.Close()

			if err := scan.New(br).WriteMemory(addr, offset, data); err != nil {
				return fmt.Errorf("write failed: %w", err)
			}
			cmd.Printf("Wrote %d byte(s) to 0x%02x @ 0x%02x\n", len(data), addr, offset)
			return nil
		},
	}
}

func newDemoCmd() *cobra.Command {
	var addr byte

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a drawing demo on an attached OLED panel",
		RunE: func(cmd *cobra.Command, args []string) error {
			br, err := openBridge()
			if err != nil {
				return err
			}

			if err := br.InitI2CMaster(bridge.I2CSpeed400K); err != nil {
				br.Close()
				return err
			}

			d := oled.New(br, oled.WithAddress(addr), oled.WithOwnedBridge())
			defer d.Close()

			if err := d.Init(); err != nil {
				return fmt.Errorf("panel init failed: %w", err)
			}

			w, h := d.Width(), d.Height()
			d.DrawRectangle(0, 0, w, h, oled.White)
			d.DrawCircle(w/2, h/2, h/2-4, oled.White)
			d.DrawLine(4, h-5, w-5, 4, oled.White)
			d.SetCursor(8, 8)
			if r, ok := d.Printf(oled.Font8x8, oled.White, "%dx%d", w, h); !ok {
				return fmt.Errorf("cannot render %q", r)
			}
			if err := d.UpdateScreen(); err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			time.Sleep(time.Second)
			if err := d.ToggleInvert(); err != nil {
				return err
			}
			time.Sleep(time.Second)
			return d.ToggleInvert()
		},
	}

	cmd.Flags().Uint8Var(&addr, "addr", oled.DefaultAddress, "Panel I2C address")
	return cmd
}

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the D-Bus bridge daemon",
		Long: `Runs as a D-Bus service that tracks connected bridges, exposes
bus scan and display control methods, and emits signals on hot-plug.`,
		Run: func(cmd *cobra.Command, args []string) {
			runDaemon()
		},
	}
}

func runDaemon() {
	log.Info().Msg("Starting ch347ctl daemon")

	manager := bridge.NewManager()
	if err := manager.Refresh(); err != nil {
		log.Error().Err(err).Msg("Failed to enumerate bridges")
	}

	bridgeCount := manager.Count()
	if bridgeCount == 0 {
		log.Warn().Msg("No CH347 bridges found")
	} else {
		log.Info().Int("count", bridgeCount).Msg("Found CH347 bridges")
	}

	server := dbus.NewServer(manager)
	if err := server.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start D-Bus server")
	}
	server.SetDeviceErrorHandler(func(serial string, err error) {
		refreshMu.Lock()
		defer refreshMu.Unlock()
		old := getBridgesSnapshot(manager)
		if found, err := refreshBridgesWithRetry(manager, 3); err != nil || !found {
			return
		}
		emitBridgeChanges(server, diffBridges(old, getBridgesSnapshot(manager)))
	})

	monitor := udev.NewMonitor(createHotplugHandler(manager, server))
	monitor.SetRecoveryHandler(createRecoveryHandler(manager, server))
	if err := monitor.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start udev monitor (hot-plug detection disabled)")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Msg("Daemon running, press Ctrl+C to stop")
	<-sigChan

	log.Info().Msg("Shutting down...")
	if err := monitor.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop udev monitor")
	}
	if err := server.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop D-Bus server")
	}
	manager.Close()

	log.Info().Msg("Daemon stopped")
}

// refreshMu serializes bridge refresh operations to prevent race conditions
// between hotplug handlers and recovery handlers.
var refreshMu sync.Mutex

// bridgeChanges describes the delta between two bridge snapshots.
type bridgeChanges struct {
	added   []usb.DeviceInfo
	removed []string
}

// getBridgesSnapshot captures the current bridge set keyed by serial.
func getBridgesSnapshot(manager *bridge.Manager) map[string]usb.DeviceInfo {
	snapshot := make(map[string]usb.DeviceInfo)
	for _, info := range manager.ListBridges() {
		snapshot[info.Serial] = info
	}
	return snapshot
}

// diffBridges computes which bridges appeared and disappeared between
// two snapshots.
func diffBridges(old, current map[string]usb.DeviceInfo) bridgeChanges {
	var changes bridgeChanges
	for serial, info := range current {
		if _, exists := old[serial]; !exists {
			changes.added = append(changes.added, info)
		}
	}
	for serial := range old {
		if _, exists := current[serial]; !exists {
			changes.removed = append(changes.removed, serial)
		}
	}
	return changes
}

// emitBridgeChanges emits D-Bus signals for every detected change.
func emitBridgeChanges(server *dbus.Server, changes bridgeChanges) {
	for _, info := range changes.added {
		server.EmitBridgeAdded(info.Serial, info.Product)
	}
	for _, serial := range changes.removed {
		server.EmitBridgeRemoved(serial)
	}
}

// refreshBridgesWithRetry attempts to refresh bridges with linear backoff.
// It retries up to maxRetries times with increasing delays between
// attempts and reports whether any bridge is present afterwards.
func refreshBridgesWithRetry(manager *bridge.Manager, maxRetries int) (bool, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff: 500ms, 1000ms, 1500ms, ...
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			log.Debug().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying bridge refresh")
			time.Sleep(backoff)
		}

		if err := manager.Refresh(); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("maxRetries", maxRetries+1).
				Msg("Bridge refresh failed")
			continue
		}

		if attempt > 0 {
			log.Info().Int("attempts", attempt+1).Msg("Bridge refresh succeeded after retry")
		}
		return manager.Count() > 0, nil
	}
	return false, lastErr
}

// createHotplugHandler returns an event handler that refreshes bridges and
// emits D-Bus signals for the resulting changes. The shared refreshMu
// serializes it against the recovery handler.
func createHotplugHandler(manager *bridge.Manager, server *dbus.Server) udev.EventHandler {
	return func(event udev.Event) {
		refreshMu.Lock()
		defer refreshMu.Unlock()

		oldBridges := getBridgesSnapshot(manager)

		// For add events, wait for the device to fully initialize.
		// USB devices need time to enumerate all interfaces before HID
		// is accessible. Remove events don't need this delay.
		if event.Type == udev.EventAdd {
			time.Sleep(500 * time.Millisecond)
		}

		found, err := refreshBridgesWithRetry(manager, 3)
		if err != nil {
			log.Error().Err(err).Msg("Failed to refresh bridges after hot-plug event (all retries exhausted)")
			return
		}

		// A transiently empty enumeration right after an event must not
		// produce removal signals for every known bridge. Skip the diff
		// unless something is actually present, except when the event
		// itself was a removal.
		if !found && event.Type == udev.EventAdd {
			log.Warn().Msg("No bridges found after add event, skipping diff")
			return
		}

		emitBridgeChanges(server, diffBridges(oldBridges, getBridgesSnapshot(manager)))
	}
}

// createRecoveryHandler returns a handler for netlink buffer overflow
// recovery. It refreshes bridges to catch up on potentially missed udev
// events, serialized against the hotplug handler via refreshMu.
func createRecoveryHandler(manager *bridge.Manager, server *dbus.Server) udev.RecoveryHandler {
	return func() {
		refreshMu.Lock()
		defer refreshMu.Unlock()

		log.Info().Msg("Performing recovery refresh after netlink buffer overflow")

		oldBridges := getBridgesSnapshot(manager)

		// Let any pending USB operations settle
		time.Sleep(500 * time.Millisecond)

		found, err := refreshBridgesWithRetry(manager, 3)
		if err != nil {
			log.Error().Err(err).Msg("Recovery refresh failed (all retries exhausted)")
			return
		}
		if !found && len(oldBridges) == 0 {
			return
		}

		newBridges := getBridgesSnapshot(manager)
		changes := diffBridges(oldBridges, newBridges)
		for _, info := range changes.added {
			log.Info().Str("serial", info.Serial).Msg("Bridge found during recovery")
		}
		for _, serial := range changes.removed {
			log.Info().Str("serial", serial).Msg("Bridge lost during recovery")
		}
		emitBridgeChanges(server, changes)

		log.Info().Int("bridges", len(newBridges)).Msg("Recovery refresh completed")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}
