package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/paddle-keyer/internal/config"
	"github.com/sweeney/paddle-keyer/internal/keyer"
	"github.com/sweeney/paddle-keyer/internal/mqtt"
	"github.com/sweeney/paddle-keyer/internal/paddle"
	"github.com/sweeney/paddle-keyer/internal/status"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

const ms = time.Millisecond

type fakeSampler struct {
	ch chan paddle.Event
}

func newFakeSampler() *fakeSampler {
	return &fakeSampler{ch: make(chan paddle.Event, 16)}
}

func (f *fakeSampler) Start() error { return nil }

func (f *fakeSampler) Stop() error { return nil }

func (f *fakeSampler) Events() <-chan paddle.Event { return f.ch }

func (f *fakeSampler) Name() string { return "fake" }

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

type harness struct {
	d       *daemon
	clock   *keyer.FakeClock
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	sampler *fakeSampler
}

func newHarness(t *testing.T, mode keyer.Mode) *harness {
	t.Helper()
	h := &harness{
		clock:   keyer.NewFakeClock(epoch),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(epoch, status.Config{Source: "fake"}),
		sampler: newFakeSampler(),
	}
	h.pub.Connected = true
	h.d = newDaemon(keyer.Config{WPM: 25, Mode: mode}, h.clock, h.sampler, h.pub, h.pub, h.tracker, quietLogger())
	return h
}

func press(p paddle.EventType, pressed bool) paddle.Event {
	return paddle.Event{Type: p, Pressed: pressed}
}

func TestDaemonDitTapPublishesElements(t *testing.T) {
	h := newHarness(t, keyer.ModeB)

	h.d.handleEvent(paddle.Event{Type: paddle.EventConnected})
	h.d.handleEvent(press(paddle.EventDit, true))

	require.Equal(t, 1, h.pub.ElementCount())
	down := h.pub.Elements[0]
	assert.True(t, down.Down)
	assert.True(t, down.IsDit)
	assert.Equal(t, 25, down.WPM)
	assert.Equal(t, epoch, down.Timestamp)
	assert.True(t, h.tracker.Snapshot().KeyDown)

	h.d.handleEvent(press(paddle.EventDit, false))
	h.clock.Advance(48 * ms)

	require.Equal(t, 2, h.pub.ElementCount())
	assert.False(t, h.pub.Elements[1].Down)
	assert.Equal(t, epoch.Add(48*ms), h.pub.Elements[1].Timestamp)
	assert.False(t, h.tracker.Snapshot().KeyDown)

	h.clock.Advance(200 * ms)
	assert.Equal(t, 2, h.pub.ElementCount(), "released paddle keys nothing more")
	assert.Equal(t, []string{"SOURCE_CONNECTED"}, h.pub.SystemEventNames())
}

func TestDaemonIgnoresRepeatedPaddleState(t *testing.T) {
	h := newHarness(t, keyer.ModeA)

	h.d.handleEvent(press(paddle.EventDah, true))
	h.d.handleEvent(press(paddle.EventDah, true))
	assert.Equal(t, 1, h.pub.ElementCount())

	snap := h.tracker.Snapshot()
	assert.True(t, snap.Dah)
	assert.False(t, snap.Dit)
}

// squeeze closes both contacts in one read, holds them into the first
// inter-element space and releases them together.
func squeeze(h *harness) {
	h.d.handleEvent(paddle.Event{Type: paddle.EventDit, Pressed: true, More: true})
	h.d.handleEvent(press(paddle.EventDah, true))
	h.clock.Advance(60 * ms)
	h.d.handleEvent(paddle.Event{Type: paddle.EventDit, More: true})
	h.d.handleEvent(press(paddle.EventDah, false))
	h.clock.Advance(time.Second)
}

func TestDaemonSimultaneousSqueezeModeA(t *testing.T) {
	h := newHarness(t, keyer.ModeA)
	squeeze(h)

	require.Equal(t, 2, h.pub.ElementCount(), "mode A stops after the dit")
	assert.True(t, h.pub.Elements[0].IsDit)
	assert.Equal(t, 1, h.d.engine.Counts().Dits)
	assert.Zero(t, h.d.engine.Counts().Dahs)
}

func TestDaemonSimultaneousSqueezeModeB(t *testing.T) {
	h := newHarness(t, keyer.ModeB)
	squeeze(h)

	require.Equal(t, 4, h.pub.ElementCount(), "mode B adds one dah")
	assert.True(t, h.pub.Elements[0].IsDit)
	assert.True(t, h.pub.Elements[2].Down)
	assert.False(t, h.pub.Elements[2].IsDit)
}

func TestDaemonWaitsForEndOfSampleRun(t *testing.T) {
	h := newHarness(t, keyer.ModeA)

	h.d.handleEvent(paddle.Event{Type: paddle.EventDit, Pressed: true, More: true})
	assert.Zero(t, h.pub.ElementCount(), "engine not updated mid-run")
	assert.False(t, h.tracker.Snapshot().Dit)

	h.d.handleEvent(press(paddle.EventDah, true))
	assert.Equal(t, 1, h.pub.ElementCount())
	snap := h.tracker.Snapshot()
	assert.True(t, snap.Dit)
	assert.True(t, snap.Dah)
}

func TestDaemonLogsSampleLatency(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	clock := keyer.NewFakeClock(epoch)
	d := newDaemon(keyer.Config{WPM: 25}, clock, newFakeSampler(), mqtt.NewFakePublisher(), nil,
		status.NewTracker(epoch, status.Config{}), logger)

	d.handleEvent(paddle.Event{Type: paddle.EventDit, Pressed: true, Time: epoch.Add(-2 * ms)})

	assert.Contains(t, buf.String(), "latency=2ms")
}

func TestDaemonDisconnectStopsKeying(t *testing.T) {
	h := newHarness(t, keyer.ModeB)
	h.d.handleEvent(paddle.Event{Type: paddle.EventConnected})
	h.d.handleEvent(press(paddle.EventDah, true))
	require.Equal(t, 1, h.pub.ElementCount())

	h.d.handleEvent(paddle.Event{Type: paddle.EventError, Message: "device unplugged"})
	h.d.handleEvent(paddle.Event{Type: paddle.EventDisconnected})

	require.Equal(t, 2, h.pub.ElementCount())
	assert.False(t, h.pub.Elements[1].Down, "tone in progress is closed with a key up")

	h.clock.Advance(time.Second)
	assert.Equal(t, 2, h.pub.ElementCount())

	snap := h.tracker.Snapshot()
	assert.False(t, snap.Source.Connected)
	assert.False(t, snap.Dah)
	assert.Equal(t, "device unplugged", snap.Source.LastError)
	assert.Equal(t, keyer.StateIdle, snap.KeyerState)
	assert.Equal(t, []string{"SOURCE_CONNECTED", "SOURCE_ERROR", "SOURCE_DISCONNECTED"}, h.pub.SystemEventNames())
	assert.Equal(t, "device unplugged", h.pub.SystemEvents[1].Reason)
}

func TestDaemonSystemEventsCarryStatus(t *testing.T) {
	h := newHarness(t, keyer.ModeB)
	h.d.handleEvent(press(paddle.EventDit, true))
	h.clock.Advance(48 * ms)
	h.d.heartbeat()

	require.Equal(t, []string{"HEARTBEAT"}, h.pub.SystemEventNames())
	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(h.pub.SystemPayloads[0], &sj))
	assert.Equal(t, "HEARTBEAT", sj.Status.Event)
	assert.Equal(t, 1, sj.Status.Counts.Dits)
	assert.Equal(t, "SPACE", sj.Status.Keyer.State)
	assert.True(t, sj.Status.MQTT.Connected)
}

func TestDaemonStartFailure(t *testing.T) {
	h := newHarness(t, keyer.ModeB)
	h.d.sourceFailed(&paddle.ConnectionError{Source: "serial:/dev/ttyUSB9", Err: errors.New("no such file")})

	snap := h.tracker.Snapshot()
	assert.False(t, snap.Source.Connected)
	assert.Contains(t, snap.Source.LastError, "no such file")
	assert.Equal(t, []string{"SOURCE_ERROR"}, h.pub.SystemEventNames())
}

func TestDaemonApplyConfig(t *testing.T) {
	h := newHarness(t, keyer.ModeB)

	h.d.applyConfig(keyer.Config{WPM: 30, Mode: keyer.ModeA})
	assert.Equal(t, 30, h.d.engine.WPM())
	assert.Equal(t, keyer.ModeA, h.d.engine.Mode())
	assert.Equal(t, 40*ms, h.d.engine.DitLength())

	h.d.applyConfig(keyer.Config{WPM: 100, Mode: keyer.ModeA})
	assert.Equal(t, keyer.MaxWPM, h.d.engine.WPM())
}

// stuckClock never fires timers, so a started tone never ends.
type stuckClock struct {
	now time.Time
}

type stuckTimer struct{}

func (stuckTimer) Stop() bool { return true }

func (c *stuckClock) Now() time.Time { return c.now }

func (c *stuckClock) AfterFunc(time.Duration, func()) keyer.Timer { return stuckTimer{} }

func TestDaemonPublishesWatchdogReset(t *testing.T) {
	clock := &stuckClock{now: epoch}
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(epoch, status.Config{})
	d := newDaemon(keyer.Config{WPM: 25}, clock, newFakeSampler(), pub, nil, tracker, quietLogger())

	d.handleEvent(press(paddle.EventDit, true))
	clock.now = epoch.Add(keyer.SafetyTimeout + ms)
	d.handleEvent(press(paddle.EventDit, false))

	assert.Equal(t, []string{"WATCHDOG_RESET"}, pub.SystemEventNames())
	assert.Equal(t, 1, tracker.Snapshot().Counts.WatchdogResets)
	assert.Equal(t, keyer.StateIdle, d.engine.State())
}

func TestLoopShutdownOnSignal(t *testing.T) {
	disp := keyer.NewDispatcher(dispatchQueue)
	defer disp.Close()

	sampler := newFakeSampler()
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(time.Now(), status.Config{})
	d := newDaemon(keyer.Config{WPM: 60, Mode: keyer.ModeB}, disp, sampler, pub, pub, tracker, quietLogger())

	sig := make(chan os.Signal, 1)
	heartbeat := make(chan time.Time, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- d.loop(context.Background(), disp.C(), heartbeat, sig) }()

	sampler.ch <- paddle.Event{Type: paddle.EventConnected}
	sampler.ch <- press(paddle.EventDit, true)
	// 60 wpm: 20ms dits, repeated while held.
	assert.Eventually(t, func() bool { return pub.ElementCount() >= 4 }, 2*time.Second, 5*ms)

	heartbeat <- time.Now()
	assert.Eventually(t, func() bool { return len(pub.SystemEventNames()) == 2 }, 2*time.Second, 5*ms)
	sig <- syscall.SIGTERM

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}

	names := pub.SystemEventNames()
	require.Equal(t, []string{"SOURCE_CONNECTED", "HEARTBEAT", "SHUTDOWN"}, names)
	shutdown := pub.SystemEvents[2]
	assert.Equal(t, "SIGTERM", shutdown.Reason)
	assert.True(t, shutdown.Retained)

	// Elements alternate down/up and the last one is a key up.
	for i, ev := range pub.Elements {
		assert.Equal(t, i%2 == 0, ev.Down, "element %d", i)
	}
	assert.Equal(t, 0, len(pub.Elements)%2, "shutdown closes any open tone")
}

func TestLoopContextCancel(t *testing.T) {
	h := newHarness(t, keyer.ModeB)
	close(h.sampler.ch)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.d.loop(ctx, nil, nil, nil) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit")
	}
	assert.Equal(t, []string{"SHUTDOWN"}, h.pub.SystemEventNames())
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, "UNKNOWN", signalName(syscall.SIGHUP))
}

func defaultConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load(config.New())
	require.NoError(t, err)
	return cfg
}

func TestNewSamplerPerSource(t *testing.T) {
	tests := []struct {
		source string
		want   any
		name   string
	}{
		{config.SourceSerial, &paddle.PollingSampler{}, "serial:/dev/ttyUSB0"},
		{config.SourceGPIO, &paddle.PollingSampler{}, "gpio:gpiochip0/17,27"},
		{config.SourceGPIOEdge, &paddle.EdgeSampler{}, "gpio-edge:gpiochip0/17,27"},
		{config.SourceMIDI, &paddle.MIDISampler{}, "midi:*"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			cfg := defaultConfig(t)
			cfg.Source.Type = tt.source
			s, err := newSampler(cfg, quietLogger())
			require.NoError(t, err)
			assert.IsType(t, tt.want, s)
			assert.Equal(t, tt.name, s.Name())
		})
	}
}

func TestNewSamplerUnknownSource(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Source.Type = "usb"
	_, err := newSampler(cfg, nil)
	assert.Error(t, err)
}

func TestDebounceReads(t *testing.T) {
	assert.Equal(t, 3, debounceReads(config.SourceConfig{}, serialDebounce))
	assert.Equal(t, 2, debounceReads(config.SourceConfig{}, gpioDebounce))
	assert.Equal(t, 5, debounceReads(config.SourceConfig{Debounce: 5}, gpioDebounce))
}

func TestReadOnceMIDIUnsupported(t *testing.T) {
	_, _, err := readOnce(config.SourceConfig{Type: config.SourceMIDI})
	assert.Error(t, err)
}

func TestFlagBindingsResolve(t *testing.T) {
	for _, b := range []struct {
		cmd  string
		keys map[string]string
	}{
		{"root", persistentBindings},
		{"run", runBindings},
	} {
		fs := rootCmd.PersistentFlags()
		if b.cmd == "run" {
			fs = runCmd.Flags()
		}
		for key, name := range b.keys {
			assert.NotNil(t, fs.Lookup(name), "%s flag %q for %s", b.cmd, name, key)
		}
	}
}

func TestBindRejectsUnknownFlag(t *testing.T) {
	err := bind(config.New(), runCmd.Flags(), map[string]string{"keyer.wpm": "speed"})
	assert.ErrorContains(t, err, "speed")
}

func TestOnOff(t *testing.T) {
	assert.Equal(t, "ON", onOff(true))
	assert.Equal(t, "OFF", onOff(false))
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paddle-keyer.yaml")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "init", path})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultYAML, string(data))
}

func TestManCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"man"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "paddle-keyer")
}
