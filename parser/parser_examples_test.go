package parser_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/logsim/devices"
	"github.com/sarchlab/logsim/monitors"
	"github.com/sarchlab/logsim/names"
	"github.com/sarchlab/logsim/network"
	"github.com/sarchlab/logsim/parser"
	"github.com/sarchlab/logsim/scanner"
)

var _ = Describe("Parser against the canonical example files", func() {
	DescribeTable("parses cleanly and leaves a complete network",
		func(path string) {
			n := names.New()
			d, err := devices.New(n)
			Expect(err).NotTo(HaveOccurred())
			net, err := network.New(n, d)
			Expect(err).NotTo(HaveOccurred())
			m, err := monitors.New(n, d, net)
			Expect(err).NotTo(HaveOccurred())

			sc, err := scanner.Open(path, n)
			Expect(err).NotTo(HaveOccurred())
			defer sc.Close()

			p, err := parser.New(n, sc, d, net, m, GinkgoWriter)
			Expect(err).NotTo(HaveOccurred())

			Expect(p.ParseNetwork()).To(BeTrue())
			Expect(net.CheckNetwork()).To(BeTrue())
			Expect(p.ErrorCount()).To(Equal(0))
		},
		Entry("example1", "../testdata/example1_logic_description.txt"),
		Entry("example2", "../testdata/example2_logic_description.txt"),
	)
})
