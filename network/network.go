// Package network resolves connectivity between devices and drives signal
// propagation: connection validation, the completeness check that gates
// simulation, and the bounded fixed-point iteration that computes one
// cycle's stable outputs (or detects oscillation).
package network

import (
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/logsim/devices"
	"github.com/sarchlab/logsim/names"
)

// defaultMaxIterations bounds the fixed-point search for a stable cycle. A
// network that hasn't settled by then is declared oscillating. Overridable
// per Network via SetMaxIterations (see config.Options.MaxIterations).
const defaultMaxIterations = 20

// HookPosOscillation marks the cycle at which ExecuteNetwork gives up
// looking for a stable fixed point and reports oscillation.
var HookPosOscillation = &sim.HookPos{Name: "Network Oscillation"}

// Error is one of Network's fixed connection-error kinds, backed by a
// unique code allocated from the shared Names namespace.
type Error int

// Network mediates all connectivity mutation for a Devices table: it is the
// only component permitted to write into a device's input slots.
type Network struct {
	sim.HookableBase

	names         *names.Names
	devices       *devices.Devices
	maxIterations int

	NoError        Error
	DeviceAbsent   Error
	PortAbsent     Error
	InputConnected Error
	InputToInput   Error
	OutputToOutput Error
}

// New creates a Network mediating connectivity for d, allocating its
// error-code range from n.
func New(n *names.Names, d *devices.Devices) (*Network, error) {
	codes, err := n.UniqueErrorCodes(6)
	if err != nil {
		return nil, err
	}
	return &Network{
		names:          n,
		devices:        d,
		maxIterations:  defaultMaxIterations,
		NoError:        Error(codes[0]),
		DeviceAbsent:   Error(codes[1]),
		PortAbsent:     Error(codes[2]),
		InputConnected: Error(codes[3]),
		InputToInput:   Error(codes[4]),
		OutputToOutput: Error(codes[5]),
	}, nil
}

// Messages returns the human-readable text for every connection-error code
// this Network can return, keyed by the underlying shared error code.
func (net *Network) Messages() map[int]string {
	return map[int]string{
		int(net.DeviceAbsent):   "Cannot make connection as device is undefined in DEVICE list",
		int(net.PortAbsent):     "Cannot make connection as specified port does not exist",
		int(net.InputConnected): "Cannot connect input port as it is already connected",
		int(net.InputToInput):   "Cannot connect an input port to another input port",
		int(net.OutputToOutput): "Cannot connect an output port to another output port",
	}
}

// SetMaxIterations overrides the fixed-point iteration bound used by
// ExecuteNetwork. n must be positive.
func (net *Network) SetMaxIterations(n int) {
	if n > 0 {
		net.maxIterations = n
	}
}

// isInputPort reports whether portID names one of dev's declared input
// ports (as opposed to one of its outputs, or names.NoName for "the
// device's default output").
func isInputPort(dev *devices.Device, portID names.NameId) bool {
	for _, id := range dev.InputOrder {
		if id == portID {
			return true
		}
	}
	return false
}

func isOutputPort(dev *devices.Device, portID names.NameId) bool {
	for _, id := range dev.OutputOrder {
		if id == portID {
			return true
		}
	}
	return false
}

// MakeConnection wires outDev.outPort (a source output) to inDev.inPort (a
// destination input). Both endpoints must name existing devices and ports,
// outPort must be an output and inPort must be an input, and inPort must
// not already be connected.
func (net *Network) MakeConnection(outDev, outPort, inDev, inPort names.NameId) Error {
	out := net.devices.GetDevice(outDev)
	if out == nil {
		return net.DeviceAbsent
	}
	in := net.devices.GetDevice(inDev)
	if in == nil {
		return net.DeviceAbsent
	}

	if !isOutputPort(out, outPort) {
		if isInputPort(out, outPort) {
			return net.InputToInput // the purported source is itself an input
		}
		return net.PortAbsent
	}
	if !isInputPort(in, inPort) {
		if isOutputPort(in, inPort) {
			return net.OutputToOutput // the purported destination is itself an output
		}
		return net.PortAbsent
	}

	if in.Inputs[inPort] != nil {
		return net.InputConnected
	}

	in.Inputs[inPort] = &devices.InputSource{DeviceID: outDev, PortID: outPort}
	return net.NoError
}

// CheckNetwork reports whether every input slot of every device has been
// connected — the precondition for ExecuteNetwork.
func (net *Network) CheckNetwork() bool {
	for _, id := range net.devices.Order() {
		dev := net.devices.GetDevice(id)
		for _, portID := range dev.InputOrder {
			if dev.Inputs[portID] == nil {
				return false
			}
		}
	}
	return true
}

// ExecuteNetwork runs the bounded fixed-point iteration that computes the
// next stable set of device outputs for this cycle, in deterministic
// device-creation order. It returns true once a full pass over every device
// leaves every output unchanged, or false if maxIterations is exceeded
// (oscillation) — in which case outputs may be left in any
// intermediate, invalid state.
func (net *Network) ExecuteNetwork() bool {
	order := net.devices.Order()

	for iter := 0; iter < net.maxIterations; iter++ {
		changed := false

		for _, id := range order {
			dev := net.devices.GetDevice(id)
			inputs := net.resolveInputs(dev)

			before := snapshotOutputs(dev)
			net.devices.Evaluate(dev, inputs)
			if !sameOutputs(before, dev.Outputs) {
				changed = true
			}
		}

		if !changed {
			return true
		}
	}

	net.InvokeHook(sim.HookCtx{Domain: net, Pos: HookPosOscillation})
	return false
}

// resolveInputs gathers, for each of dev's input ports, the raw (untranslated)
// current output level of whatever source drives it. devices.Translate is
// applied by Devices.Evaluate at the point of use, except for DTYPE's CLK
// input, which inspects the raw RISING marker directly.
func (net *Network) resolveInputs(dev *devices.Device) map[names.NameId]devices.SignalLevel {
	inputs := make(map[names.NameId]devices.SignalLevel, len(dev.InputOrder))
	for _, portID := range dev.InputOrder {
		src := dev.Inputs[portID]
		if src == nil {
			inputs[portID] = devices.LOW
			continue
		}
		srcDev := net.devices.GetDevice(src.DeviceID)
		inputs[portID] = srcDev.Outputs[src.PortID]
	}
	return inputs
}

func snapshotOutputs(dev *devices.Device) map[names.NameId]devices.SignalLevel {
	snap := make(map[names.NameId]devices.SignalLevel, len(dev.OutputOrder))
	for _, portID := range dev.OutputOrder {
		snap[portID] = dev.Outputs[portID]
	}
	return snap
}

func sameOutputs(before, after map[names.NameId]devices.SignalLevel) bool {
	for portID, level := range before {
		if after[portID] != level {
			return false
		}
	}
	return true
}
