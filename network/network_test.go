package network_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/logsim/devices"
	"github.com/sarchlab/logsim/names"
	"github.com/sarchlab/logsim/network"
)

var _ = Describe("Network", func() {
	var (
		n   *names.Names
		d   *devices.Devices
		net *network.Network
	)

	BeforeEach(func() {
		n = names.New()
		var err error
		d, err = devices.New(n)
		Expect(err).NotTo(HaveOccurred())
		net, err = network.New(n, d)
		Expect(err).NotTo(HaveOccurred())
	})

	It("reports DeviceAbsent for an unknown endpoint", func() {
		sw := n.Lookup([]string{"sw1"})[0]
		d.MakeDevice(sw, devices.SWITCH, devices.IntQualifier(0))
		ghost := n.Lookup([]string{"ghost"})[0]

		Expect(net.MakeConnection(ghost, names.NoName, sw, names.NoName)).To(Equal(net.DeviceAbsent))
	})

	It("rejects connecting an input port as the source endpoint", func() {
		g1 := n.Lookup([]string{"g1"})[0]
		d.MakeDevice(g1, devices.AND, devices.IntQualifier(2))
		dev := d.GetDevice(g1)
		i1 := dev.InputOrder[0]
		i2 := dev.InputOrder[1]

		Expect(net.MakeConnection(g1, i1, g1, i2)).To(Equal(net.InputToInput))
	})

	It("rejects connecting an output port as the destination endpoint", func() {
		sw1 := n.Lookup([]string{"sw1"})[0]
		sw2 := n.Lookup([]string{"sw2"})[0]
		d.MakeDevice(sw1, devices.SWITCH, devices.IntQualifier(0))
		d.MakeDevice(sw2, devices.SWITCH, devices.IntQualifier(0))

		Expect(net.MakeConnection(sw1, names.NoName, sw2, names.NoName)).To(Equal(net.OutputToOutput))
	})

	It("rejects connecting a second source into an already-connected input", func() {
		sw1 := n.Lookup([]string{"sw1"})[0]
		sw2 := n.Lookup([]string{"sw2"})[0]
		g1 := n.Lookup([]string{"g1"})[0]
		d.MakeDevice(sw1, devices.SWITCH, devices.IntQualifier(0))
		d.MakeDevice(sw2, devices.SWITCH, devices.IntQualifier(0))
		d.MakeDevice(g1, devices.AND, devices.IntQualifier(2))
		i1 := d.GetDevice(g1).InputOrder[0]

		Expect(net.MakeConnection(sw1, names.NoName, g1, i1)).To(Equal(net.NoError))
		Expect(net.MakeConnection(sw2, names.NoName, g1, i1)).To(Equal(net.InputConnected))
	})

	It("reports CheckNetwork false until every input is connected, true once wired", func() {
		sw1 := n.Lookup([]string{"sw1"})[0]
		sw2 := n.Lookup([]string{"sw2"})[0]
		g1 := n.Lookup([]string{"g1"})[0]
		d.MakeDevice(sw1, devices.SWITCH, devices.IntQualifier(1))
		d.MakeDevice(sw2, devices.SWITCH, devices.IntQualifier(1))
		d.MakeDevice(g1, devices.AND, devices.IntQualifier(2))
		dev := d.GetDevice(g1)
		i1, i2 := dev.InputOrder[0], dev.InputOrder[1]

		Expect(net.CheckNetwork()).To(BeFalse())
		net.MakeConnection(sw1, names.NoName, g1, i1)
		Expect(net.CheckNetwork()).To(BeFalse())
		net.MakeConnection(sw2, names.NoName, g1, i2)
		Expect(net.CheckNetwork()).To(BeTrue())
	})

	It("propagates a SWITCH through an AND gate to a stable fixed point", func() {
		sw1 := n.Lookup([]string{"sw1"})[0]
		sw2 := n.Lookup([]string{"sw2"})[0]
		g1 := n.Lookup([]string{"g1"})[0]
		d.MakeDevice(sw1, devices.SWITCH, devices.IntQualifier(1))
		d.MakeDevice(sw2, devices.SWITCH, devices.IntQualifier(0))
		d.MakeDevice(g1, devices.AND, devices.IntQualifier(2))
		dev := d.GetDevice(g1)
		i1, i2 := dev.InputOrder[0], dev.InputOrder[1]
		net.MakeConnection(sw1, names.NoName, g1, i1)
		net.MakeConnection(sw2, names.NoName, g1, i2)

		Expect(net.ExecuteNetwork()).To(BeTrue())
		Expect(dev.Outputs[names.NoName]).To(Equal(devices.LOW))

		d.SetSwitch(sw2, devices.HIGH)
		Expect(net.ExecuteNetwork()).To(BeTrue())
		Expect(dev.Outputs[names.NoName]).To(Equal(devices.HIGH))
	})

	It("reports oscillation for a combinational feedback loop", func() {
		inv := n.Lookup([]string{"inv"})[0]
		d.MakeDevice(inv, devices.NAND, devices.IntQualifier(1))
		i1 := d.GetDevice(inv).InputOrder[0]
		net.MakeConnection(inv, names.NoName, inv, i1)

		Expect(net.ExecuteNetwork()).To(BeFalse())
	})

	It("latches DTYPE memory from DATA only on its CLK's RISING edge", func() {
		clk := n.Lookup([]string{"clk"})[0]
		data := n.Lookup([]string{"data"})[0]
		low := n.Lookup([]string{"low"})[0]
		dff := n.Lookup([]string{"dff"})[0]

		d.MakeDevice(clk, devices.CLOCK, devices.IntQualifier(1))
		d.MakeDevice(data, devices.SWITCH, devices.IntQualifier(1))
		d.MakeDevice(low, devices.SWITCH, devices.IntQualifier(0))
		d.MakeDevice(dff, devices.DTYPE, devices.NoQualifier())

		clkDev := d.GetDevice(clk)
		clkDev.ClockCounter = 0
		dffDev := d.GetDevice(dff)
		dataPort, setPort, clearPort, clkPort := dffDev.InputOrder[0], dffDev.InputOrder[1], dffDev.InputOrder[2], dffDev.InputOrder[3]
		qPort := dffDev.OutputOrder[0]

		net.MakeConnection(data, names.NoName, dff, dataPort)
		net.MakeConnection(low, names.NoName, dff, setPort)
		net.MakeConnection(low, names.NoName, dff, clearPort)
		net.MakeConnection(clk, names.NoName, dff, clkPort)

		Expect(net.CheckNetwork()).To(BeTrue())

		// Cycle 1: clock starts LOW, no edge yet.
		Expect(net.ExecuteNetwork()).To(BeTrue())
		d.AdvanceState() // crosses into HIGH: RISING this cycle

		// Cycle 2: CLK presents RISING -> DTYPE samples DATA (HIGH).
		Expect(net.ExecuteNetwork()).To(BeTrue())
		Expect(dffDev.Outputs[qPort]).To(Equal(devices.HIGH))
	})
})
