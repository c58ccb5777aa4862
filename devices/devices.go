// Package devices implements the device type registry: device construction,
// per-device state, and the primitive evaluation rules for each device
// kind. It knows nothing about connectivity or propagation — that belongs
// to package network.
package devices

import (
	"fmt"
	"math/rand"

	"github.com/sarchlab/logsim/names"
)

// Kind identifies a device's primitive behavior.
type Kind int

const (
	AND Kind = iota
	NAND
	OR
	NOR
	XOR
	DTYPE
	SWITCH
	CLOCK
	SIGGEN
	RC
)

func (k Kind) String() string {
	switch k {
	case AND:
		return "AND"
	case NAND:
		return "NAND"
	case OR:
		return "OR"
	case NOR:
		return "NOR"
	case XOR:
		return "XOR"
	case DTYPE:
		return "DTYPE"
	case SWITCH:
		return "SWITCH"
	case CLOCK:
		return "CLOCK"
	case SIGGEN:
		return "SIGGEN"
	case RC:
		return "RC"
	default:
		return "UNKNOWN"
	}
}

// SignalLevel is one of the five values a port can carry.
type SignalLevel int

const (
	LOW SignalLevel = iota
	HIGH
	RISING
	FALLING
	BLANK
)

func (s SignalLevel) String() string {
	switch s {
	case LOW:
		return "LOW"
	case HIGH:
		return "HIGH"
	case RISING:
		return "RISING"
	case FALLING:
		return "FALLING"
	case BLANK:
		return "BLANK"
	default:
		return "UNKNOWN"
	}
}

// Translate collapses a transient edge marker to the steady level a
// downstream input samples this cycle: RISING reads as HIGH, FALLING reads
// as LOW. LOW and HIGH pass through unchanged. Only DTYPE's CLK input ever
// looks at the untranslated value, to detect the edge itself.
func Translate(level SignalLevel) SignalLevel {
	switch level {
	case RISING:
		return HIGH
	case FALLING:
		return LOW
	default:
		return level
	}
}

// InputSource names the device/port pair driving an input, or the absence
// of one for a not-yet-connected input slot.
type InputSource struct {
	DeviceID names.NameId
	PortID   names.NameId // names.NoName for a gate's single default output
}

// Qualifier carries the kind-specific construction argument accepted by
// MakeDevice. Use the IntQualifier/SiggenQualifier/NoQualifier constructors.
type Qualifier struct {
	present       bool
	intValue      int
	siggenInitial int
	siggenRuns    []int
	isSiggen      bool
}

// NoQualifier represents the absence of a qualifier (XOR, DTYPE).
func NoQualifier() Qualifier { return Qualifier{} }

// IntQualifier carries a single integer qualifier (gate arity, SWITCH
// initial state, CLOCK half-period, RC period).
func IntQualifier(v int) Qualifier { return Qualifier{present: true, intValue: v} }

// SiggenQualifier carries a SIGGEN's (initial level, run lengths) pair.
func SiggenQualifier(initial int, runs []int) Qualifier {
	return Qualifier{present: true, isSiggen: true, siggenInitial: initial, siggenRuns: runs}
}

// Device is a single simulated component: its identity, kind, connectivity
// slots, current outputs and kind-specific state.
type Device struct {
	ID   names.NameId
	Kind Kind

	InputOrder []names.NameId
	Inputs     map[names.NameId]*InputSource

	OutputOrder []names.NameId // names.NoName for the single default output
	Outputs     map[names.NameId]SignalLevel

	SwitchState SignalLevel

	HalfPeriod   int
	ClockCounter int

	Memory SignalLevel

	SiggenList    []SignalLevel
	SiggenCounter int

	RCPeriod  int
	RCCounter int
}

// Error is one of the fixed construction-error kinds MakeDevice can return,
// each backed by a unique code allocated from the shared Names namespace.
type Error int

// Devices owns the device table: construction, evaluation and lookup.
type Devices struct {
	names *names.Names

	order []names.NameId
	table map[names.NameId]*Device

	NoError          Error
	BadDevice        Error
	DevicePresent    Error
	QualifierPresent Error
	NoQualifier      Error
	InvalidQualifier Error
}

// New creates an empty device table, allocating its error-code range from n.
func New(n *names.Names) (*Devices, error) {
	codes, err := n.UniqueErrorCodes(6)
	if err != nil {
		return nil, err
	}

	d := &Devices{
		names:            n,
		table:            make(map[names.NameId]*Device),
		NoError:          Error(codes[0]),
		BadDevice:        Error(codes[1]),
		DevicePresent:    Error(codes[2]),
		QualifierPresent: Error(codes[3]),
		NoQualifier:      Error(codes[4]),
		InvalidQualifier: Error(codes[5]),
	}
	return d, nil
}

func (d *Devices) inputSuffixIDs(count int) []names.NameId {
	strs := make([]string, count)
	for i := 0; i < count; i++ {
		strs[i] = fmt.Sprintf("I%d", i+1)
	}
	return d.names.Lookup(strs)
}

func (d *Devices) portIDs(labels ...string) []names.NameId {
	return d.names.Lookup(labels)
}

// MakeDevice validates id/kind/qualifier and, on success, creates the
// device's fixed input/output port maps. It returns NoError on success or
// one of {BadDevice, DevicePresent, QualifierPresent, NoQualifier,
// InvalidQualifier} otherwise.
func (d *Devices) MakeDevice(id names.NameId, kind Kind, qualifier Qualifier) Error {
	if _, exists := d.table[id]; exists {
		return d.DevicePresent
	}
	if kind < AND || kind > RC {
		return d.BadDevice
	}

	dev := &Device{
		ID:      id,
		Kind:    kind,
		Inputs:  make(map[names.NameId]*InputSource),
		Outputs: make(map[names.NameId]SignalLevel),
	}

	switch kind {
	case AND, NAND, OR, NOR:
		if !qualifier.present || qualifier.isSiggen {
			return d.NoQualifier
		}
		n := qualifier.intValue
		if n < 1 || n > 16 {
			return d.InvalidQualifier
		}
		for _, portID := range d.inputSuffixIDs(n) {
			dev.InputOrder = append(dev.InputOrder, portID)
			dev.Inputs[portID] = nil
		}
		dev.OutputOrder = []names.NameId{names.NoName}
		dev.Outputs[names.NoName] = LOW

	case XOR:
		if qualifier.present {
			return d.QualifierPresent
		}
		ports := d.portIDs("I1", "I2")
		i1, i2 := ports[0], ports[1]
		dev.InputOrder = []names.NameId{i1, i2}
		dev.Inputs[i1] = nil
		dev.Inputs[i2] = nil
		dev.OutputOrder = []names.NameId{names.NoName}
		dev.Outputs[names.NoName] = LOW

	case DTYPE:
		if qualifier.present {
			return d.QualifierPresent
		}
		ids := d.portIDs("DATA", "SET", "CLEAR", "CLK")
		for _, portID := range ids {
			dev.InputOrder = append(dev.InputOrder, portID)
			dev.Inputs[portID] = nil
		}
		q, qbar := d.portIDs("Q", "QBAR")[0], d.portIDs("Q", "QBAR")[1]
		dev.OutputOrder = []names.NameId{q, qbar}
		dev.Memory = randomBit()
		dev.Outputs[q] = dev.Memory
		dev.Outputs[qbar] = negate(dev.Memory)

	case SWITCH:
		if !qualifier.present || qualifier.isSiggen {
			return d.NoQualifier
		}
		if qualifier.intValue != 0 && qualifier.intValue != 1 {
			return d.InvalidQualifier
		}
		dev.SwitchState = intToLevel(qualifier.intValue)
		dev.OutputOrder = []names.NameId{names.NoName}
		dev.Outputs[names.NoName] = dev.SwitchState

	case CLOCK:
		if !qualifier.present || qualifier.isSiggen {
			return d.NoQualifier
		}
		if qualifier.intValue < 1 {
			return d.InvalidQualifier
		}
		dev.HalfPeriod = qualifier.intValue
		dev.ClockCounter = rand.Intn(dev.HalfPeriod) // always < HalfPeriod: starts in the LOW phase
		dev.OutputOrder = []names.NameId{names.NoName}
		dev.Outputs[names.NoName] = LOW

	case SIGGEN:
		if !qualifier.present || !qualifier.isSiggen {
			return d.NoQualifier
		}
		if (qualifier.siggenInitial != 0 && qualifier.siggenInitial != 1) || len(qualifier.siggenRuns) == 0 {
			return d.InvalidQualifier
		}
		for _, run := range qualifier.siggenRuns {
			if run < 1 {
				return d.InvalidQualifier
			}
		}
		dev.SiggenList = expandRunLengths(qualifier.siggenInitial, qualifier.siggenRuns)
		dev.OutputOrder = []names.NameId{names.NoName}
		dev.Outputs[names.NoName] = dev.SiggenList[0]

	case RC:
		if !qualifier.present || qualifier.isSiggen {
			return d.NoQualifier
		}
		if qualifier.intValue < 1 {
			return d.InvalidQualifier
		}
		dev.RCPeriod = qualifier.intValue
		dev.OutputOrder = []names.NameId{names.NoName}
		dev.Outputs[names.NoName] = HIGH
	}

	d.table[id] = dev
	d.order = append(d.order, id)
	return d.NoError
}

func randomBit() SignalLevel {
	return intToLevel(rand.Intn(2))
}

func intToLevel(v int) SignalLevel {
	if v == 1 {
		return HIGH
	}
	return LOW
}

func negate(level SignalLevel) SignalLevel {
	if Translate(level) == HIGH {
		return LOW
	}
	return HIGH
}

// expandRunLengths alternates level starting at initial for each run length,
// e.g. (1, [2,3]) -> [HIGH,HIGH, LOW,LOW,LOW].
func expandRunLengths(initial int, runs []int) []SignalLevel {
	var out []SignalLevel
	level := intToLevel(initial)
	for _, run := range runs {
		for i := 0; i < run; i++ {
			out = append(out, level)
		}
		if level == HIGH {
			level = LOW
		} else {
			level = HIGH
		}
	}
	return out
}

// Messages returns the human-readable text for every construction-error
// code this table can return, keyed by the underlying shared error code.
func (d *Devices) Messages() map[int]string {
	return map[int]string{
		int(d.BadDevice):        "Invalid type of device",
		int(d.DevicePresent):    "Device already exists in the device list",
		int(d.QualifierPresent): "Expected no device property for this device",
		int(d.NoQualifier):      "Expected a device property for initialisation",
		int(d.InvalidQualifier): "Device property is out of range",
	}
}

// GetDevice returns the device for id, or nil if none exists.
func (d *Devices) GetDevice(id names.NameId) *Device {
	return d.table[id]
}

// FindDevices returns the ids of every device, in creation order, or only
// those of the given kind when kind is non-nil.
func (d *Devices) FindDevices(kind *Kind) []names.NameId {
	if kind == nil {
		out := make([]names.NameId, len(d.order))
		copy(out, d.order)
		return out
	}
	var out []names.NameId
	for _, id := range d.order {
		if d.table[id].Kind == *kind {
			out = append(out, id)
		}
	}
	return out
}

// Order returns every device id in creation order — the deterministic
// evaluation order network.ExecuteNetwork relies on.
func (d *Devices) Order() []names.NameId {
	out := make([]names.NameId, len(d.order))
	copy(out, d.order)
	return out
}

// GetSignalName renders "dev.port", or "dev" when port is names.NoName.
func (d *Devices) GetSignalName(dev names.NameId, port names.NameId) string {
	devName, _ := d.names.GetNameString(dev)
	if port == names.NoName {
		return devName
	}
	portName, _ := d.names.GetNameString(port)
	return devName + "." + portName
}

// GetSignalIDs parses "dev" or "dev.port" and resolves both parts, returning
// names.NoName for whichever part was not found (or absent for the port).
func (d *Devices) GetSignalIDs(signal string) (names.NameId, names.NameId) {
	dot := -1
	for i, c := range signal {
		if c == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		devID, ok := d.names.Query(signal)
		if !ok {
			return names.NoName, names.NoName
		}
		return devID, names.NoName
	}
	devPart, portPart := signal[:dot], signal[dot+1:]
	devID, ok := d.names.Query(devPart)
	if !ok {
		devID = names.NoName
	}
	portID, ok := d.names.Query(portPart)
	if !ok {
		portID = names.NoName
	}
	return devID, portID
}

// SetSwitch mutates a SWITCH device's state, returning false if id does not
// name a SWITCH.
func (d *Devices) SetSwitch(id names.NameId, level SignalLevel) bool {
	dev := d.table[id]
	if dev == nil || dev.Kind != SWITCH {
		return false
	}
	dev.SwitchState = Translate(level)
	return true
}

// Evaluate computes a device's output(s) from the current (already-resolved)
// levels of its inputs. inputs holds the raw level currently presented by
// each input's source device — DTYPE's CLK reads it untranslated to detect
// the RISING edge; every other use translates RISING/FALLING to HIGH/LOW
// first.
func (d *Devices) Evaluate(dev *Device, inputs map[names.NameId]SignalLevel) {
	switch dev.Kind {
	case AND, NAND:
		out := HIGH
		for _, portID := range dev.InputOrder {
			if Translate(inputs[portID]) == LOW {
				out = LOW
				break
			}
		}
		if dev.Kind == NAND {
			out = negate(out)
		}
		dev.Outputs[names.NoName] = out

	case OR, NOR:
		out := LOW
		for _, portID := range dev.InputOrder {
			if Translate(inputs[portID]) == HIGH {
				out = HIGH
				break
			}
		}
		if dev.Kind == NOR {
			out = negate(out)
		}
		dev.Outputs[names.NoName] = out

	case XOR:
		i1, i2 := dev.InputOrder[0], dev.InputOrder[1]
		a := Translate(inputs[i1]) == HIGH
		b := Translate(inputs[i2]) == HIGH
		dev.Outputs[names.NoName] = intToLevel(boolToInt(a != b))

	case DTYPE:
		dataID, setID, clearID, clkID := dev.InputOrder[0], dev.InputOrder[1], dev.InputOrder[2], dev.InputOrder[3]
		switch {
		case Translate(inputs[setID]) == HIGH:
			dev.Memory = HIGH
		case Translate(inputs[clearID]) == HIGH:
			dev.Memory = LOW
		case inputs[clkID] == RISING:
			dev.Memory = Translate(inputs[dataID])
		}
		q, qbar := dev.OutputOrder[0], dev.OutputOrder[1]
		dev.Outputs[q] = dev.Memory
		dev.Outputs[qbar] = negate(dev.Memory)

	case SWITCH:
		dev.Outputs[names.NoName] = dev.SwitchState

	case CLOCK:
		// Stable within a cycle; transitions happen in AdvanceState.

	case SIGGEN:
		dev.Outputs[names.NoName] = dev.SiggenList[dev.SiggenCounter%len(dev.SiggenList)]

	case RC:
		if dev.RCCounter < dev.RCPeriod {
			dev.Outputs[names.NoName] = HIGH
		} else {
			dev.Outputs[names.NoName] = LOW
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// AdvanceState is called once per cycle, after propagation and recording,
// for every CLOCK, SIGGEN and RC device: it advances their internal
// counters and, for CLOCK, marks the output RISING/FALLING on the cycle a
// half-period boundary is crossed.
func (d *Devices) AdvanceState() {
	for _, id := range d.order {
		dev := d.table[id]
		switch dev.Kind {
		case CLOCK:
			advanceClock(dev)
		case SIGGEN:
			dev.SiggenCounter++
		case RC:
			if dev.RCCounter < dev.RCPeriod {
				dev.RCCounter++
			}
		}
	}
}

func advanceClock(dev *Device) {
	oldHigh := dev.ClockCounter >= dev.HalfPeriod
	dev.ClockCounter = (dev.ClockCounter + 1) % (2 * dev.HalfPeriod)
	newHigh := dev.ClockCounter >= dev.HalfPeriod

	switch {
	case !oldHigh && newHigh:
		dev.Outputs[names.NoName] = RISING
	case oldHigh && !newHigh:
		dev.Outputs[names.NoName] = FALLING
	case newHigh:
		dev.Outputs[names.NoName] = HIGH
	default:
		dev.Outputs[names.NoName] = LOW
	}
}
