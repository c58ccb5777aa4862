// Package monitors tracks which output ports are observed, records one
// sample per port per simulation cycle, and renders or exports the
// resulting traces.
package monitors

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-redis/redis/v8"
	"golang.org/x/term"

	"github.com/sarchlab/logsim/devices"
	"github.com/sarchlab/logsim/names"
	"github.com/sarchlab/logsim/network"
)

// Error is one of Monitors' fixed construction-error kinds, backed by a
// unique code allocated from the shared Names namespace.
type Error int

// Monitors owns the per-cycle trace buffers for every monitored port.
type Monitors struct {
	names   *names.Names
	devices *devices.Devices
	network *network.Network

	order   []portKey
	buffers map[portKey][]devices.SignalLevel
	cycles  int

	broadcaster *Broadcaster

	NoError        Error
	MonitorPresent Error
	DeviceAbsent   Error
	PortAbsent     Error
	NotOutput      Error
}

type portKey struct {
	dev  names.NameId
	port names.NameId
}

// New creates an empty Monitors registry over d/net, allocating its
// error-code range from n.
func New(n *names.Names, d *devices.Devices, net *network.Network) (*Monitors, error) {
	codes, err := n.UniqueErrorCodes(5)
	if err != nil {
		return nil, err
	}
	return &Monitors{
		names:          n,
		devices:        d,
		network:        net,
		buffers:        make(map[portKey][]devices.SignalLevel),
		NoError:        Error(codes[0]),
		MonitorPresent: Error(codes[1]),
		DeviceAbsent:   Error(codes[2]),
		PortAbsent:     Error(codes[3]),
		NotOutput:      Error(codes[4]),
	}, nil
}

// SetBroadcaster attaches an optional Redis pub/sub fan-out of
// GetSignalsForGUI snapshots, invoked after every RecordSignals.
func (m *Monitors) SetBroadcaster(b *Broadcaster) {
	m.broadcaster = b
}

// Messages returns the human-readable text for every construction-error
// code this registry can return, keyed by the underlying shared error code.
func (m *Monitors) Messages() map[int]string {
	return map[int]string{
		int(m.MonitorPresent): "Cannot assign more than one monitor to a single device output port",
		int(m.DeviceAbsent):   "Cannot monitor a signal on an undefined device",
		int(m.PortAbsent):     "Cannot monitor a port that does not exist",
		int(m.NotOutput):      "Cannot monitor a port that is not a device output",
	}
}

func isOutputPort(dev *devices.Device, port names.NameId) bool {
	for _, id := range dev.OutputOrder {
		if id == port {
			return true
		}
	}
	return false
}

func isInputPort(dev *devices.Device, port names.NameId) bool {
	for _, id := range dev.InputOrder {
		if id == port {
			return true
		}
	}
	return false
}

// MakeMonitor starts observing dev.port. If simulation has already run, the
// new buffer is back-filled with BLANK samples for every cycle elapsed so
// far, keeping every trace aligned on a common timebase.
func (m *Monitors) MakeMonitor(dev, port names.NameId) Error {
	key := portKey{dev, port}
	if _, ok := m.buffers[key]; ok {
		return m.MonitorPresent
	}

	d := m.devices.GetDevice(dev)
	if d == nil {
		return m.DeviceAbsent
	}
	if isInputPort(d, port) {
		return m.NotOutput
	}
	if !isOutputPort(d, port) {
		return m.PortAbsent
	}

	buf := make([]devices.SignalLevel, m.cycles)
	for i := range buf {
		buf[i] = devices.BLANK
	}
	m.buffers[key] = buf
	m.order = append(m.order, key)
	return m.NoError
}

// RemoveMonitor stops observing dev.port. Idempotent: removing an
// unmonitored port is a no-op.
func (m *Monitors) RemoveMonitor(dev, port names.NameId) {
	key := portKey{dev, port}
	if _, ok := m.buffers[key]; !ok {
		return
	}
	delete(m.buffers, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// RecordSignals appends the current output level of every monitored port to
// its buffer. Called by the driver once per cycle, after a successful
// ExecuteNetwork. If a Broadcaster is attached, the resulting GUI snapshot
// is also published.
func (m *Monitors) RecordSignals() {
	for _, key := range m.order {
		d := m.devices.GetDevice(key.dev)
		m.buffers[key] = append(m.buffers[key], d.Outputs[key.port])
	}
	m.cycles++

	if m.broadcaster != nil {
		m.broadcaster.Publish(m.GetSignalsForGUI())
	}
}

// ResetMonitors clears every buffer and resets the shared cycle counter to
// zero, without removing any observer. A monitor added after a reset
// begins at cycle zero with no BLANK back-fill from before the reset.
func (m *Monitors) ResetMonitors() {
	for key := range m.buffers {
		m.buffers[key] = nil
	}
	m.cycles = 0
}

// GetSignalNames returns the "dev.port" labels of every monitored port, and
// of every output port that is not monitored.
func (m *Monitors) GetSignalNames() (monitored []string, unmonitored []string) {
	monitoredSet := make(map[portKey]bool, len(m.order))
	for _, key := range m.order {
		monitoredSet[key] = true
		monitored = append(monitored, m.devices.GetSignalName(key.dev, key.port))
	}

	for _, devID := range m.devices.Order() {
		d := m.devices.GetDevice(devID)
		for _, port := range d.OutputOrder {
			if !monitoredSet[portKey{devID, port}] {
				unmonitored = append(unmonitored, m.devices.GetSignalName(devID, port))
			}
		}
	}
	return monitored, unmonitored
}

// Trace is one monitored port's label and recorded samples, as consumed by
// an external trace viewer.
type Trace struct {
	Label   string
	Samples []devices.SignalLevel
}

// GetSignalsForGUI returns every monitored trace in display order.
func (m *Monitors) GetSignalsForGUI() []Trace {
	traces := make([]Trace, 0, len(m.order))
	for _, key := range m.order {
		traces = append(traces, Trace{
			Label:   m.devices.GetSignalName(key.dev, key.port),
			Samples: append([]devices.SignalLevel(nil), m.buffers[key]...),
		})
	}
	return traces
}

// DisplaySignals renders every trace as an ASCII top/bottom bar, sized to
// the terminal width when w is a terminal (falling back to an
// 80-column default otherwise).
func (m *Monitors) DisplaySignals(w io.Writer) {
	width := 80
	if fd, ok := w.(interface{ Fd() uintptr }); ok && term.IsTerminal(int(fd.Fd())) {
		if cols, _, err := term.GetSize(int(fd.Fd())); err == nil && cols > 0 {
			width = cols
		}
	}

	for _, trace := range m.GetSignalsForGUI() {
		top, bottom := renderBars(trace.Samples, width-len(trace.Label)-2)
		fmt.Fprintf(w, "%s: %s\n", trace.Label, top)
		fmt.Fprintf(w, "%s  %s\n", strings.Repeat(" ", len(trace.Label)), bottom)
	}
}

// renderBars draws a two-line ASCII waveform: '-' on the top line for HIGH
// samples, '_' on the bottom line for LOW samples, '/' / '\' marking
// RISING/FALLING, and a blank space for BLANK.
func renderBars(samples []devices.SignalLevel, maxWidth int) (top, bottom string) {
	n := len(samples)
	if maxWidth > 0 && n > maxWidth {
		samples = samples[n-maxWidth:]
	}

	var t, b strings.Builder
	for _, s := range samples {
		switch s {
		case devices.HIGH:
			t.WriteByte('-')
			b.WriteByte(' ')
		case devices.LOW:
			t.WriteByte(' ')
			b.WriteByte('_')
		case devices.RISING:
			t.WriteByte('/')
			b.WriteByte(' ')
		case devices.FALLING:
			t.WriteByte('\\')
			b.WriteByte(' ')
		default: // BLANK
			t.WriteByte(' ')
			b.WriteByte(' ')
		}
	}
	return t.String(), b.String()
}

// Broadcaster publishes GetSignalsForGUI snapshots to a Redis pub/sub
// channel so an out-of-process trace viewer can subscribe instead of
// polling in-process. Publication is best-effort and lossy: each publish is
// a synchronous Redis round trip, and RecordSignals discards its error, so a
// failed publish never aborts simulation.
type Broadcaster struct {
	client  *redis.Client
	channel string
}

// NewBroadcaster connects to a Redis server at addr for publication on
// channel.
func NewBroadcaster(addr, channel string) *Broadcaster {
	return &Broadcaster{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
	}
}

// Publish encodes traces as a compact text snapshot and publishes it,
// returning any transport error without affecting the caller's control
// flow.
func (b *Broadcaster) Publish(traces []Trace) error {
	var sb strings.Builder
	for i, t := range traces {
		if i > 0 {
			sb.WriteString(";")
		}
		sb.WriteString(t.Label)
		sb.WriteString("=")
		for _, s := range t.Samples {
			sb.WriteString(s.String())
			sb.WriteString(",")
		}
	}
	return b.client.Publish(context.Background(), b.channel, sb.String()).Err()
}

// Close releases the broadcaster's Redis connection.
func (b *Broadcaster) Close() error {
	return b.client.Close()
}
