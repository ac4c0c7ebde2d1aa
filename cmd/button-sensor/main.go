// Command button-sensor hosts GPIO button sensors and reports their state to
// a MySensors controller over MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/button-sensor/internal/config"
	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/mqtt"
	"github.com/sweeney/button-sensor/internal/node"
	"github.com/sweeney/button-sensor/internal/sensor"
	"github.com/sweeney/button-sensor/internal/status"
	"github.com/sweeney/button-sensor/internal/web"
)

func main() {
	cfg, printState, err := parseFlags(os.Args[1:])
	if err == flag.ErrHelp {
		return
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := run(cfg, printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseFlags loads the config file named by -config and applies every flag
// given explicitly on top of it.
func parseFlags(args []string) (*config.Config, bool, error) {
	def := config.Default()
	fs := flag.NewFlagSet("button-sensor", flag.ContinueOnError)

	path := fs.String("config", "", "YAML config file (sensors, MQTT and timing)")
	chip := fs.String("chip", def.Chip, "GPIO character device")
	nodeID := fs.Int("node-id", def.NodeID, "MySensors node id")
	broker := fs.String("broker", def.MQTT.Broker, "MQTT broker address")
	httpAddr := fs.String("http", def.HTTPAddr, "HTTP status address (empty to disable)")
	heartbeat := fs.Duration("heartbeat", millis(def.HeartbeatMs), "Heartbeat interval (0 to disable)")
	poll := fs.Duration("poll", millis(def.PollMs), "GPIO polling interval when interrupts are off")
	debounce := fs.Duration("debounce", millis(def.DebounceMs), "Debounce duration")
	interrupts := fs.Bool("interrupts", def.Interrupts, "Use hardware edge events (false polls the pins)")
	printState := fs.Bool("print-state", false, "Set up sensors, print pin levels and exit")

	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	cfg, err := config.Load(*path)
	if err != nil {
		return nil, false, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "chip":
			cfg.Chip = *chip
		case "node-id":
			cfg.NodeID = *nodeID
		case "broker":
			cfg.MQTT.Broker = *broker
		case "http":
			cfg.HTTPAddr = *httpAddr
		case "heartbeat":
			cfg.HeartbeatMs = int(heartbeat.Milliseconds())
		case "poll":
			cfg.PollMs = int(poll.Milliseconds())
		case "debounce":
			cfg.DebounceMs = int(debounce.Milliseconds())
		case "interrupts":
			cfg.Interrupts = *interrupts
		}
	})
	if err := cfg.Finish(); err != nil {
		return nil, false, err
	}
	return cfg, *printState, nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func run(cfg *config.Config, printState bool) error {
	// Kernel debounce only applies to edge events; poll mode debounces in software.
	var hwDebounce time.Duration
	if cfg.Interrupts {
		hwDebounce = cfg.Debounce
	}
	pins, err := gpio.NewRealPins(cfg.Chip, hwDebounce)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer pins.Close()

	if printState {
		n := node.New(nodeConfig(cfg), pins, nil, nil)
		if err := addSensors(n, cfg); err != nil {
			return err
		}
		return printPins(os.Stdout, n, pins)
	}

	reporter := mqtt.NewRealReporter(mqtt.Options{
		Broker:     cfg.MQTT.Broker,
		ClientID:   cfg.MQTT.ClientID,
		Topics:     mqtt.Topics{Prefix: cfg.MQTT.Prefix, NodeID: cfg.NodeID},
		BufferSize: cfg.MQTT.Buffer,
	})
	defer reporter.Close()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	refreshNetwork(tracker)

	n := node.New(nodeConfig(cfg), pins, reporter, tracker)
	n.OnHeartbeat(func() { refreshNetwork(tracker) })
	if err := addSensors(n, cfg); err != nil {
		return err
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: node=%d interrupts=%v poll=%v debounce=%v broker=%s heartbeat=%v",
		cfg.NodeID, cfg.Interrupts, cfg.Poll, cfg.Debounce, cfg.MQTT.Broker, cfg.Heartbeat)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runNode(n, reporter, tracker, sigCh)
}

func nodeConfig(cfg *config.Config) node.Config {
	return node.Config{
		Interrupts:     cfg.Interrupts,
		PollInterval:   cfg.Poll,
		Debounce:       cfg.Debounce,
		ReportInterval: cfg.ReportInterval,
		Heartbeat:      cfg.Heartbeat,
	}
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		NodeID:           cfg.NodeID,
		Interrupts:       cfg.Interrupts,
		PollMs:           cfg.Poll.Milliseconds(),
		DebounceMs:       cfg.Debounce.Milliseconds(),
		ReportIntervalMs: cfg.ReportInterval.Milliseconds(),
		HeartbeatMs:      cfg.Heartbeat.Milliseconds(),
		Broker:           cfg.MQTT.Broker,
		HTTPAddr:         cfg.HTTPAddr,
	}
}

// addSensors builds the configured sensors against n and registers them.
func addSensors(n *node.Node, cfg *config.Config) error {
	sensors, err := cfg.Build(n.Deps())
	if err != nil {
		return fmt.Errorf("build sensors: %w", err)
	}
	for _, s := range sensors {
		n.Add(s)
	}
	return nil
}

// runNode starts n, announces STARTUP, dispatches until a signal arrives and
// announces SHUTDOWN.
func runNode(n *node.Node, reporter mqtt.Reporter, tracker *status.Tracker, sig <-chan os.Signal) error {
	if err := n.Start(); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	publishSystem(reporter, systemEvent(tracker, "STARTUP", ""))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reason := make(chan string, 1)
	go func() {
		s := <-sig
		log.Printf("received %v, shutting down", s)
		reason <- signalName(s)
		cancel()
	}()

	if err := n.Run(ctx); err != nil {
		return err
	}
	publishSystem(reporter, systemEvent(tracker, "SHUTDOWN", <-reason))
	return nil
}

func systemEvent(tracker *status.Tracker, event, reason string) mqtt.SystemEvent {
	snap := tracker.Snapshot()
	return mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
}

func publishSystem(reporter mqtt.Reporter, event mqtt.SystemEvent) {
	if err := reporter.PublishSystem(event); err != nil {
		log.Printf("failed to publish %s event: %v", event.Event, err)
		return
	}
	log.Printf("published %s event", event.Event)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// printPins runs sensor setup and prints the level of every pin in use.
func printPins(w io.Writer, n *node.Node, pins sensor.Pins) error {
	if err := n.Setup(); err != nil {
		return err
	}
	for _, s := range n.Sensors() {
		for _, pin := range s.Pins() {
			level, err := pins.Read(pin)
			if err != nil {
				return fmt.Errorf("read pin %d: %w", pin, err)
			}
			fmt.Fprintf(w, "child %d pin %d: %s\n", s.Child().ID(), pin, level)
		}
	}
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func refreshNetwork(tracker *status.Tracker) {
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
}
