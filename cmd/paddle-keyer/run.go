package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/sweeney/paddle-keyer/internal/config"
	"github.com/sweeney/paddle-keyer/internal/keyer"
	"github.com/sweeney/paddle-keyer/internal/mqtt"
	"github.com/sweeney/paddle-keyer/internal/paddle"
	"github.com/sweeney/paddle-keyer/internal/status"
	"github.com/sweeney/paddle-keyer/internal/web"
)

// dispatchQueue is the capacity of the engine's task queue.
const dispatchQueue = 16

func run(cfg config.Config, v *viper.Viper, logger *log.Logger) error {
	sampler, err := newSampler(cfg, logger)
	if err != nil {
		return err
	}

	var publisher mqtt.Publisher = mqtt.Discard
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Enabled {
		rp := mqtt.NewRealPublisher(mqtt.Config{
			Broker:        cfg.MQTT.Broker,
			ClientID:      cfg.MQTT.ClientID,
			ElementsTopic: cfg.MQTT.ElementsTopic,
			SystemTopic:   cfg.MQTT.SystemTopic,
			BufferSize:    cfg.MQTT.BufferSize,
		}, logger)
		publisher, mqttStatus = rp, rp
	}
	defer publisher.Close()

	// Status tracker before STARTUP so the snapshot is available.
	tracker := status.NewTracker(time.Now(), status.Config{
		Source:      cfg.SourceName(),
		PollMs:      cfg.Source.PollInterval.Milliseconds(),
		Debounce:    cfg.Source.Debounce,
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      brokerIfEnabled(cfg.MQTT),
		HTTPAddr:    cfg.HTTP.Addr,
	})
	tracker.SetNetwork(status.ReadNetworkInfo())

	disp := keyer.NewDispatcher(dispatchQueue)
	defer disp.Close()

	d := newDaemon(cfg.EngineConfig(), disp, sampler, publisher, mqttStatus, tracker, logger)
	d.publishSystem("STARTUP", "", true)

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background()) //nolint:errcheck
		logger.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	// Keyer settings follow the config file; the engine is only touched on
	// the run loop.
	config.Watch(v, logger, func(c config.Config) {
		ec := c.EngineConfig()
		disp.Post(func() { d.applyConfig(ec) })
	})

	if err := sampler.Start(); err != nil {
		// The daemon stays up so the failure is visible on MQTT and HTTP.
		d.sourceFailed(err)
	}
	defer sampler.Stop() //nolint:errcheck

	logger.Info("started",
		"source", sampler.Name(),
		"wpm", d.engine.WPM(),
		"mode", d.engine.Mode(),
		"mqtt", brokerIfEnabled(cfg.MQTT),
		"heartbeat", cfg.Heartbeat,
	)

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		t := time.NewTicker(cfg.Heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return d.loop(context.Background(), disp.C(), heartbeat, sigCh)
}

func brokerIfEnabled(c config.MQTTConfig) string {
	if !c.Enabled {
		return ""
	}
	return c.Broker
}

// daemon owns the engine. Every method runs on the loop goroutine.
type daemon struct {
	engine     *keyer.Engine
	sched      keyer.Scheduler
	sampler    paddle.Sampler
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	logger     *log.Logger

	paddles paddle.State
	dirty   bool // paddles changed inside an unfinished sample run
	resets  int
}

func newDaemon(cfg keyer.Config, sched keyer.Scheduler, sampler paddle.Sampler, pub mqtt.Publisher,
	mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, logger *log.Logger) *daemon {
	d := &daemon{
		sched:      sched,
		sampler:    sampler,
		publisher:  pub,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		logger:     logger,
	}
	d.engine = keyer.NewEngine(cfg, sched, elementSink{d}, logger)
	d.syncTracker()
	return d
}

// loop runs until a signal arrives or ctx ends.
func (d *daemon) loop(ctx context.Context, tasks <-chan func(), heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	events := d.sampler.Events()
	for {
		select {
		case <-ctx.Done():
			d.shutdown("CONTEXT")
			return ctx.Err()

		case s := <-sig:
			d.logger.Info("shutting down", "signal", s)
			d.shutdown(signalName(s))
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			d.handleEvent(ev)

		case f := <-tasks:
			f()

		case <-heartbeat:
			d.heartbeat()
		}
		d.syncTracker()
	}
}

func (d *daemon) handleEvent(ev paddle.Event) {
	switch ev.Type {
	case paddle.EventConnected:
		d.logger.Info("paddle source connected", "source", d.sampler.Name())
		d.tracker.SetSourceConnected(true)
		d.publishSystem("SOURCE_CONNECTED", d.sampler.Name(), false)

	case paddle.EventDisconnected:
		d.logger.Warn("paddle source disconnected", "source", d.sampler.Name())
		d.engine.Stop()
		d.paddles = paddle.State{}
		d.dirty = false
		d.tracker.SetPaddle(false, false)
		d.tracker.SetSourceConnected(false)
		d.publishSystem("SOURCE_DISCONNECTED", d.sampler.Name(), false)

	case paddle.EventError:
		d.logger.Error("paddle source error", "source", d.sampler.Name(), "err", ev.Message)
		d.tracker.SetSourceError(ev.Message)
		d.publishSystem("SOURCE_ERROR", ev.Message, false)

	case paddle.EventDit, paddle.EventDah:
		if d.paddles.Apply(ev) {
			d.dirty = true
		}
		// Changes read together reach the engine as one update, so a
		// simultaneous squeeze is not seen as a second paddle's edge.
		if ev.More || !d.dirty {
			return
		}
		d.dirty = false
		fields := []any{"dit", d.paddles.Dit, "dah", d.paddles.Dah}
		if !ev.Time.IsZero() {
			fields = append(fields, "latency", d.sched.Now().Sub(ev.Time))
		}
		d.logger.Debug("paddle", fields...)
		d.tracker.SetPaddle(d.paddles.Dit, d.paddles.Dah)
		d.engine.UpdatePaddleState(d.paddles.Dit, d.paddles.Dah)
		d.checkWatchdog()
	}
}

// sourceFailed records a Start failure.
func (d *daemon) sourceFailed(err error) {
	d.logger.Error("paddle source unavailable", "source", d.sampler.Name(), "err", err)
	d.tracker.SetSourceConnected(false)
	d.tracker.SetSourceError(err.Error())
	d.publishSystem("SOURCE_ERROR", err.Error(), false)
}

func (d *daemon) checkWatchdog() {
	n := d.engine.Counts().WatchdogResets
	if n == d.resets {
		return
	}
	d.resets = n
	d.publishSystem("WATCHDOG_RESET", fmt.Sprintf("stuck longer than %v", keyer.SafetyTimeout), false)
}

func (d *daemon) applyConfig(c keyer.Config) {
	if c.WPM == d.engine.WPM() && c.Mode == d.engine.Mode() {
		return
	}
	d.engine.SetWPM(c.WPM)
	d.engine.SetMode(c.Mode)
	d.logger.Info("keyer settings changed", "wpm", d.engine.WPM(), "mode", d.engine.Mode())
}

func (d *daemon) heartbeat() {
	c := d.engine.Counts()
	d.tracker.SetNetwork(status.ReadNetworkInfo())
	d.logger.Info("heartbeat", "dits", c.Dits, "dahs", c.Dahs, "watchdog_resets", c.WatchdogResets)
	d.publishSystem("HEARTBEAT", "", false)
}

func (d *daemon) shutdown(reason string) {
	d.engine.Stop()
	d.syncTracker()
	d.publishSystem("SHUTDOWN", reason, true)
}

// publishSystem sends a system event carrying the full status snapshot.
func (d *daemon) publishSystem(event, reason string, retained bool) {
	d.syncTracker()
	snap := d.tracker.Snapshot()
	err := d.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		d.logger.Warn("system event publish failed", "event", event, "err", err)
	}
}

func (d *daemon) syncTracker() {
	d.tracker.UpdateKeyer(d.engine.State(), d.engine.WPM(), d.engine.Mode(), d.engine.Counts())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// elementSink receives the engine's output on the loop goroutine and fans
// it out to the log, the status tracker and MQTT.
type elementSink struct {
	d *daemon
}

func (s elementSink) KeyDown(isDit bool) {
	d := s.d
	d.logger.Debug("key down", "dit", isDit)
	d.tracker.SetKeyDown(true)
	d.publishElement(mqtt.ElementEvent{Down: true, IsDit: isDit})
}

func (s elementSink) KeyUp() {
	d := s.d
	d.logger.Debug("key up")
	d.tracker.SetKeyDown(false)
	d.publishElement(mqtt.ElementEvent{})
}

func (d *daemon) publishElement(ev mqtt.ElementEvent) {
	ev.Timestamp = d.sched.Now()
	ev.WPM = d.engine.WPM()
	if err := d.publisher.PublishElement(ev); err != nil {
		d.logger.Debug("element publish failed", "err", err)
	}
}
