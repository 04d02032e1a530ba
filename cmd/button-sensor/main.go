// Command button-sensor samples two push buttons on GPIO and serves their
// state as a live web dashboard. Transitions are optionally published to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sweeney/button-sensor/internal/config"
	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/logic"
	"github.com/sweeney/button-sensor/internal/metrics"
	"github.com/sweeney/button-sensor/internal/mqtt"
	"github.com/sweeney/button-sensor/internal/status"
	"github.com/sweeney/button-sensor/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config.Config) error {
	reader, err := gpio.Open(cfg.GPIODriver, cfg.PinA, cfg.PinB)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	// Print state mode
	if cfg.PrintState {
		aHigh, bHigh, err := reader.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		fmt.Println(formatState(aHigh, bHigh))
		return nil
	}

	labels, _ := web.LookupLabels(cfg.Lang)
	renderer, err := web.NewRenderer(labels)
	if err != nil {
		return fmt.Errorf("init dashboard: %w", err)
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      cfg.Poll.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.Broker,
		HTTPAddr:    cfg.HTTPAddr,
		MetricsAddr: cfg.MetricsAddr,
		Lang:        cfg.Lang,
		PinA:        cfg.PinA,
		PinB:        cfg.PinB,
	})
	if info := readNetworkInfo(); info != nil {
		tracker.SetNetwork(info)
		log.Printf("network: %s %s ip=%s ssid=%s", info.Type, info.Status, info.IP, info.SSID)
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(reg)

		ln, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listen on %s: %w", cfg.MetricsAddr, err)
		}
		msrv := metrics.NewServer(cfg.MetricsAddr, reg, tracker)
		go func() {
			if err := msrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server error: %v", err)
			}
		}()
		defer msrv.Shutdown(context.Background())
		log.Printf("metrics listening on %s", cfg.MetricsAddr)
	}

	// The dashboard listener is the reason the daemon exists; failing to
	// bind it is fatal.
	srv := web.New(cfg.HTTPAddr, web.NewHandler(renderer, tracker, m), m, cfg.WriteTimeout)
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Close()
	log.Printf("dashboard listening on %s (lang=%s)", srv.Addr(), labels.Lang)

	var publisher mqtt.Publisher = mqtt.Discard{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.Discard{}
	if cfg.Broker != "" {
		p := mqtt.NewRealPublisher(cfg.Broker)
		publisher, mqttStatus = p, p
	}
	defer publisher.Close()

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	log.Printf("started: poll=%v pins=%d,%d driver=%s broker=%q heartbeat=%v",
		cfg.Poll, cfg.PinA, cfg.PinB, cfg.GPIODriver, cfg.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loopDeps{
		reader:     reader,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		metrics:    m,
		dispatcher: srv,
		heartbeat:  cfg.Heartbeat,
		now:        time.Now,
	}, ticker.C, srv.Inbound(), sigCh)
}

// dispatcher answers one inbound connection buffer.
type dispatcher interface {
	Dispatch(in web.Inbound)
}

type loopDeps struct {
	reader     gpio.Reader
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	dispatcher dispatcher
	heartbeat  time.Duration
	now        func() time.Time
}

// runLoop is the only place where sampling and request handling happen, so
// a tick and a request are never processed at the same time.
func runLoop(d loopDeps, tick <-chan time.Time, inbound <-chan web.Inbound, sig <-chan os.Signal) error {
	sampler := logic.NewSampler(d.now())

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			d.refreshMQTT()
			snap := d.tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  d.now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := d.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			}
			return nil

		case in := <-inbound:
			d.dispatcher.Dispatch(in)

		case <-tick:
			t := d.now()
			aHigh, bHigh, err := d.reader.Read()
			if err != nil {
				// Keep the last known state; the dashboard keeps serving it.
				log.Printf("gpio read error: %v", err)
				d.metrics.ReadError()
				continue
			}

			events := sampler.Process(logic.Input{AHigh: aHigh, BHigh: bHigh, Time: t})
			for _, event := range events {
				log.Printf("event: %s (A=%s B=%s)", event.Type, event.AState, event.BState)
				d.metrics.Transition(event.Type)
				if err := d.publisher.Publish(event); err != nil {
					log.Printf("publish error: %v", err)
				}
			}

			pressed := sampler.Current()
			d.tracker.Update(pressed, sampler.Samples(), sampler.EventCountsSnapshot())
			d.metrics.Sample(pressed)
			d.refreshMQTT()

			if hb := sampler.CheckHeartbeat(t, d.heartbeat); hb != nil {
				log.Printf("heartbeat: uptime=%v samples=%d a_pressed=%d a_released=%d b_pressed=%d b_released=%d",
					hb.Uptime, hb.Samples, hb.Counts.APressed, hb.Counts.AReleased, hb.Counts.BPressed, hb.Counts.BReleased)

				// Refresh network info for heartbeat
				if info := readNetworkInfo(); info != nil {
					d.tracker.SetNetwork(info)
				}
				snap := d.tracker.Snapshot()
				hbEvent := mqtt.SystemEvent{
					Timestamp:  hb.Timestamp,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := d.publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

func (d loopDeps) refreshMQTT() {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

// formatState renders one raw reading for --print-state.
func formatState(aHigh, bHigh bool) string {
	return fmt.Sprintf("A: %s, B: %s", logic.StateOf(!aHigh), logic.StateOf(!bHigh))
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
