package parser_test

import (
	"bytes"
	"io"
	"reflect"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/golang/mock/gomock"

	"github.com/sarchlab/logsim/devices"
	"github.com/sarchlab/logsim/monitors"
	"github.com/sarchlab/logsim/names"
	"github.com/sarchlab/logsim/network"
	"github.com/sarchlab/logsim/parser"
	"github.com/sarchlab/logsim/scanner"
)

// mockTokenSource is a hand-authored gomock-style mock of parser.TokenSource,
// standing in for a real *scanner.Scanner so a feed of symbols can be
// scripted directly without reading a source file. Written by hand rather
// than with mockgen, per the no-toolchain constraint.
type mockTokenSource struct {
	ctrl     *gomock.Controller
	recorder *mockTokenSourceRecorder
}

type mockTokenSourceRecorder struct {
	mock *mockTokenSource
}

func newMockTokenSource(ctrl *gomock.Controller) *mockTokenSource {
	m := &mockTokenSource{ctrl: ctrl}
	m.recorder = &mockTokenSourceRecorder{mock: m}
	return m
}

func (m *mockTokenSource) EXPECT() *mockTokenSourceRecorder {
	return m.recorder
}

func (m *mockTokenSource) GetSymbol() scanner.Symbol {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetSymbol")
	return ret[0].(scanner.Symbol)
}

func (mr *mockTokenSourceRecorder) GetSymbol() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetSymbol",
		reflect.TypeOf((*mockTokenSource)(nil).GetSymbol))
}

func (m *mockTokenSource) DisplayLineAndMarker(w io.Writer, sym scanner.Symbol) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "DisplayLineAndMarker", w, sym)
}

func (mr *mockTokenSourceRecorder) DisplayLineAndMarker(w, sym interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DisplayLineAndMarker",
		reflect.TypeOf((*mockTokenSource)(nil).DisplayLineAndMarker), w, sym)
}

var _ = Describe("Parser against a scripted TokenSource", func() {
	It("reports EmptyFile immediately when the first symbol is EOF", func() {
		ctrl := gomock.NewController(GinkgoT())
		defer ctrl.Finish()

		src := newMockTokenSource(ctrl)
		src.EXPECT().GetSymbol().Return(scanner.Symbol{Type: scanner.EOF, LineNumber: 1})

		n := names.New()
		d, err := devices.New(n)
		Expect(err).NotTo(HaveOccurred())
		net, err := network.New(n, d)
		Expect(err).NotTo(HaveOccurred())
		m, err := monitors.New(n, d, net)
		Expect(err).NotTo(HaveOccurred())

		var out bytes.Buffer
		p, err := parser.New(n, src, d, net, m, &out)
		Expect(err).NotTo(HaveOccurred())

		Expect(p.ParseNetwork()).To(BeFalse())
		Expect(out.String()).To(ContainSubstring("Cannot parse an empty file"))
	})

	It("reports SymbolAfterEnd when a keyword follows END before EOF", func() {
		ctrl := gomock.NewController(GinkgoT())
		defer ctrl.Finish()

		src := newMockTokenSource(ctrl)

		n := names.New()
		endID, _ := n.Query(names.KeywordEnd)
		devicesID, _ := n.Query(names.KeywordDevices)

		symbols := []scanner.Symbol{
			{Type: scanner.Keyword, ID: devicesID, LineNumber: 1},
			{Type: scanner.BraceOpen, LineNumber: 1},
			{Type: scanner.BraceClose, LineNumber: 1},
			{Type: scanner.Keyword, ID: mustQuery(n, names.KeywordConnections), LineNumber: 2},
			{Type: scanner.BraceOpen, LineNumber: 2},
			{Type: scanner.BraceClose, LineNumber: 2},
			{Type: scanner.Keyword, ID: mustQuery(n, names.KeywordMonitors), LineNumber: 3},
			{Type: scanner.BraceOpen, LineNumber: 3},
			{Type: scanner.BraceClose, LineNumber: 3},
			{Type: scanner.Keyword, ID: endID, LineNumber: 4},
			{Type: scanner.Keyword, ID: devicesID, LineNumber: 5},
		}
		for _, sym := range symbols {
			src.EXPECT().GetSymbol().Return(sym)
		}
		src.EXPECT().DisplayLineAndMarker(gomock.Any(), gomock.Any()).AnyTimes()

		d, err := devices.New(n)
		Expect(err).NotTo(HaveOccurred())
		net, err := network.New(n, d)
		Expect(err).NotTo(HaveOccurred())
		m, err := monitors.New(n, d, net)
		Expect(err).NotTo(HaveOccurred())

		var out bytes.Buffer
		p, err := parser.New(n, src, d, net, m, &out)
		Expect(err).NotTo(HaveOccurred())

		Expect(p.ParseNetwork()).To(BeFalse())
		Expect(out.String()).To(ContainSubstring("should not be any text after"))
	})
})

func mustQuery(n *names.Names, s string) names.NameId {
	id, ok := n.Query(s)
	if !ok {
		panic("reserved word not interned: " + s)
	}
	return id
}
