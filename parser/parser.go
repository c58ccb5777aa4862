// Package parser implements the recursive-descent parser: it drains a
// Scanner's token stream, validates it against the circuit description
// grammar, builds the Devices/Network/Monitors network as it goes, and on
// failure reports human-readable diagnostics before recovering to continue
// analysis rather than aborting at the first error.
package parser

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sarchlab/logsim/devices"
	"github.com/sarchlab/logsim/monitors"
	"github.com/sarchlab/logsim/names"
	"github.com/sarchlab/logsim/network"
	"github.com/sarchlab/logsim/scanner"
)

// Error is one of Parser's own fixed syntax-error kinds, backed by a unique
// code allocated from the shared Names namespace. Semantic errors reported
// by Devices/Network/Monitors use their own Error types but are displayed
// through the same DisplayError path.
type Error int

// defaultStoppingTypes is the recovery set used whenever a caller doesn't
// need a narrower one: '{', '}', ';' and any KEYWORD.
var defaultStoppingTypes = []scanner.TokenType{
	scanner.BraceOpen, scanner.BraceClose, scanner.Semicolon, scanner.Keyword,
}

// TokenSource is the narrow slice of *scanner.Scanner the parser actually
// depends on, so tests can drive it from a hand-authored mock instead of a
// real source file.
type TokenSource interface {
	GetSymbol() scanner.Symbol
	DisplayLineAndMarker(w io.Writer, sym scanner.Symbol)
}

// Parser drains a TokenSource, validating and building a device network as
// it goes.
type Parser struct {
	names    *names.Names
	scan     TokenSource
	devices  *devices.Devices
	network  *network.Network
	monitors *monitors.Monitors
	out      io.Writer

	symbol     scanner.Symbol
	errorCount int

	devicesID, connectionsID, monitorsID, endID                       names.NameId
	andID, nandID, orID, norID, xorID, dtypeID                        names.NameId
	switchID, clockID, siggenID, rcID                                 names.NameId
	qID, qbarID                                                       names.NameId
	validInputSuffixes                                                map[names.NameId]bool

	NoDevicesKeyword       Error
	NoConnectionsKeyword   Error
	NoMonitorsKeyword      Error
	NoEndKeyword           Error
	NoBraceOpen            Error
	NoBraceClose           Error
	InvalidName            Error
	NoEquals               Error
	InvalidComponent       Error
	NoBracketOpen          Error
	NoBracketClose         Error
	NoNumber               Error
	InputOutOfRange        Error
	ClkOutOfRange          Error
	BinaryNumberOutOfRange Error
	UndefinedName          Error
	NoFullstop             Error
	NoSemicolon            Error
	NoQOrQbar              Error
	NoInputSuffix          Error
	NoComma                Error
	NoSquareOpen           Error
	NoSquareClose          Error
	SymbolAfterEnd         Error
	EmptyFile              Error
	Terminate              Error
}

// New creates a Parser bound to sc, wiring its results into d/net/m. It
// allocates its own error-code range from n. Diagnostics are written to w
// (typically os.Stdout).
func New(n *names.Names, sc TokenSource, d *devices.Devices, net *network.Network, m *monitors.Monitors, w io.Writer) (*Parser, error) {
	if w == nil {
		w = os.Stdout
	}
	codes, err := n.UniqueErrorCodes(24)
	if err != nil {
		return nil, err
	}

	p := &Parser{
		names: n, scan: sc, devices: d, network: net, monitors: m, out: w,

		NoDevicesKeyword:       Error(codes[0]),
		NoConnectionsKeyword:   Error(codes[1]),
		NoMonitorsKeyword:      Error(codes[2]),
		NoEndKeyword:           Error(codes[3]),
		NoBraceOpen:            Error(codes[4]),
		NoBraceClose:           Error(codes[5]),
		InvalidName:            Error(codes[6]),
		NoEquals:               Error(codes[7]),
		InvalidComponent:       Error(codes[8]),
		NoBracketOpen:          Error(codes[9]),
		NoBracketClose:         Error(codes[10]),
		NoNumber:               Error(codes[11]),
		InputOutOfRange:        Error(codes[12]),
		ClkOutOfRange:          Error(codes[13]),
		BinaryNumberOutOfRange: Error(codes[14]),
		UndefinedName:          Error(codes[15]),
		NoFullstop:             Error(codes[16]),
		NoSemicolon:            Error(codes[17]),
		NoQOrQbar:              Error(codes[18]),
		NoInputSuffix:          Error(codes[19]),
		NoComma:                Error(codes[20]),
		NoSquareOpen:           Error(codes[21]),
		NoSquareClose:          Error(codes[22]),
		SymbolAfterEnd:         Error(codes[23]),
	}
	// EmptyFile/Terminate piggyback on the same block via a second small
	// allocation so the struct literal above stays within codes' bounds.
	extra, err := n.UniqueErrorCodes(2)
	if err != nil {
		return nil, err
	}
	p.EmptyFile = Error(extra[0])
	p.Terminate = Error(extra[1])

	ids := n.Lookup([]string{
		names.KeywordDevices, names.KeywordConnections, names.KeywordMonitors, names.KeywordEnd,
		names.KeywordAnd, names.KeywordNand, names.KeywordOr, names.KeywordNor, names.KeywordXor, names.KeywordDtype,
		names.KeywordSwitch, names.KeywordClock, names.KeywordSiggen, names.KeywordRC,
		names.KeywordQ, names.KeywordQBar,
	})
	p.devicesID, p.connectionsID, p.monitorsID, p.endID = ids[0], ids[1], ids[2], ids[3]
	p.andID, p.nandID, p.orID, p.norID, p.xorID, p.dtypeID = ids[4], ids[5], ids[6], ids[7], ids[8], ids[9]
	p.switchID, p.clockID, p.siggenID, p.rcID = ids[10], ids[11], ids[12], ids[13]
	p.qID, p.qbarID = ids[14], ids[15]

	inputSuffixes := []string{"DATA", "SET", "CLEAR", "CLK"}
	for i := 1; i <= 16; i++ {
		inputSuffixes = append(inputSuffixes, fmt.Sprintf("I%d", i))
	}
	suffixIDs := n.Lookup(inputSuffixes)
	p.validInputSuffixes = make(map[names.NameId]bool, len(suffixIDs))
	for _, id := range suffixIDs {
		p.validInputSuffixes[id] = true
	}

	return p, nil
}

// ErrorCount returns the number of errors reported so far.
func (p *Parser) ErrorCount() int {
	return p.errorCount
}

func (p *Parser) advance() {
	p.symbol = p.scan.GetSymbol()
}

func stoppingContains(types []scanner.TokenType, t scanner.TokenType) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

// messageFor resolves a syntax error's fixed text. Semantic errors from
// Devices/Network/Monitors use reportExternal instead, with their own
// Messages() map.
func (p *Parser) messageFor(code Error) string {
	switch code {
	case p.NoDevicesKeyword:
		return "Expected the keyword DEVICES"
	case p.NoConnectionsKeyword:
		return "Expected the keyword CONNECTIONS"
	case p.NoMonitorsKeyword:
		return "Expected the keyword MONITORS"
	case p.NoEndKeyword:
		return "Expected the keyword END straight after monitors list"
	case p.NoBraceOpen:
		return "Expected a '{' symbol"
	case p.NoBraceClose:
		return "Expected a '}' symbol"
	case p.InvalidName:
		return "Invalid user name entered"
	case p.NoEquals:
		return "Expected an '=' symbol"
	case p.InvalidComponent:
		return "Invalid component name entered"
	case p.NoBracketOpen:
		return "Expected a '(' for a device property"
	case p.NoBracketClose:
		return "Expected a ')' for a device property"
	case p.NoNumber:
		return "Expected a positive integer"
	case p.InputOutOfRange:
		return "Input number of gates is out of range. Must be an integer between 1 and 16"
	case p.ClkOutOfRange:
		return "Input period is out of range. Must be a positive integer"
	case p.BinaryNumberOutOfRange:
		return "Input number is out of range. Must be either 1 or 0"
	case p.UndefinedName:
		return "Undefined device name given"
	case p.NoFullstop:
		return "Expected a full stop"
	case p.NoSemicolon:
		return "Expected a semicolon"
	case p.NoQOrQbar:
		return "Expected a Q or QBAR after the full stop"
	case p.NoInputSuffix:
		return "Expected a valid input suffix"
	case p.NoComma:
		return "Expected a comma"
	case p.NoSquareOpen:
		return "Expected a '[' symbol"
	case p.NoSquareClose:
		return "Expected a ']' symbol"
	case p.SymbolAfterEnd:
		return "There should not be any text after the keyword END"
	case p.EmptyFile:
		return "Cannot parse an empty file"
	case p.Terminate:
		return "Could not find parsing point to restart, program terminated early"
	default:
		return "Unknown error"
	}
}

// DisplayError reports a syntax error at symbol: it increments the error
// count, prints the fixed message and (unless symbol is EOF) the offending
// source line with a caret/tilde marker, then invokes ErrorRecovery.
func (p *Parser) DisplayError(symbol scanner.Symbol, code Error, proceed bool, stoppingTypes []scanner.TokenType) {
	if stoppingTypes == nil {
		stoppingTypes = defaultStoppingTypes
	}
	p.errorCount++
	fmt.Fprintf(p.out, "\n  Line %d: Syntax Error: %s\n \n", symbol.LineNumber, p.messageFor(code))

	if symbol.Type != scanner.EOF {
		p.scan.DisplayLineAndMarker(p.out, symbol)
	}
	p.ErrorRecovery(proceed, stoppingTypes)
}

// reportExternal reports a semantic error surfaced by Devices, Network or
// Monitors, whose message lives in that component's own Messages() map.
func (p *Parser) reportExternal(symbol scanner.Symbol, code int, messages map[int]string) {
	p.errorCount++
	msg, ok := messages[code]
	if !ok {
		msg = "Unknown semantic error"
	}
	fmt.Fprintf(p.out, "\n  Line %d: Semantic Error: %s\n \n", symbol.LineNumber, msg)
	if symbol.Type != scanner.EOF {
		p.scan.DisplayLineAndMarker(p.out, symbol)
	}
}

// ErrorRecovery resumes parsing at an appropriate point. If proceed is
// true, the error was absorbed locally and nothing further happens.
// Otherwise symbols are consumed until one of stoppingTypes or EOF is seen;
// EOF with no stopping symbol found reports Terminate.
func (p *Parser) ErrorRecovery(proceed bool, stoppingTypes []scanner.TokenType) {
	if proceed {
		return
	}
	if stoppingTypes == nil {
		stoppingTypes = defaultStoppingTypes
	}
	for !stoppingContains(stoppingTypes, p.symbol.Type) && p.symbol.Type != scanner.EOF {
		p.advance()
	}
	if p.symbol.Type == scanner.EOF {
		p.DisplayError(p.symbol, p.Terminate, true, nil)
	}
}

// InitialErrorChecks implements the shared six-case table used at the head
// of every list (DEVICES/CONNECTIONS/MONITORS): it checks for the keyword
// and the '{' that should follow it, reporting missingErr and/or
// NoBraceOpen as appropriate, and leaves p.symbol positioned just past
// whatever was successfully matched.
func (p *Parser) InitialErrorChecks(keywordID names.NameId, missingErr Error) {
	if p.symbol.Type == scanner.Keyword && p.symbol.ID == keywordID {
		// Case 1/5: keyword present.
		p.advance()
		if p.symbol.Type != scanner.BraceOpen {
			p.DisplayError(p.symbol, p.NoBraceOpen, true, nil) // case 5
			return
		}
		p.advance() // case 1
		return
	}

	if p.symbol.Type == scanner.Name {
		// Case 2/4/6: a NAME stands where the keyword should be.
		p.advance()
		if p.symbol.Type != scanner.BraceOpen {
			// Case 4/6: neither keyword nor brace found cleanly.
			p.DisplayError(p.symbol, missingErr, true, nil)
			p.DisplayError(p.symbol, p.NoBraceOpen, false, nil)
			return
		}
		// Case 2: NAME { ...
		p.DisplayError(p.symbol, missingErr, true, nil)
		p.advance()
		return
	}

	if p.symbol.Type == scanner.BraceOpen {
		// Case 3: { ... with no keyword at all.
		p.DisplayError(p.symbol, missingErr, true, nil)
		p.advance()
	}
	// Else: neither keyword, NAME nor brace — fall through with no
	// progress; the caller's own recovery will resynchronize.
}

// parseList implements the shared semicolon-list idiom repeated across
// deviceList/connectionList/monitorList: parse one item, expect ';'
// between items, and stop cleanly at '}'.
func (p *Parser) parseList(item func()) {
	if p.symbol.Type == scanner.BraceClose {
		p.advance()
		return
	}

	item()
	if p.symbol.Type != scanner.Semicolon {
		p.DisplayError(p.symbol, p.NoSemicolon, false, nil)
	}

	for p.symbol.Type == scanner.Semicolon {
		p.advance()

		if p.symbol.Type == scanner.Keyword {
			p.DisplayError(p.symbol, p.NoBraceClose, true, nil)
			return
		}
		if p.symbol.Type == scanner.BraceClose {
			p.advance()
			return
		}

		item()

		switch {
		case p.symbol.Type == scanner.Name:
			p.DisplayError(p.symbol, p.NoSemicolon, false, nil)
			if p.symbol.Type == scanner.BraceClose {
				p.advance()
				return
			}
		case p.symbol.Type == scanner.BraceClose:
			p.DisplayError(p.symbol, p.NoSemicolon, true, nil)
			p.advance()
			return
		case p.symbol.Type != scanner.Semicolon:
			p.DisplayError(p.symbol, p.NoSemicolon, true, nil)
			return
		}
	}
}

func (p *Parser) deviceList() {
	p.InitialErrorChecks(p.devicesID, p.NoDevicesKeyword)
	p.parseList(p.device)
}

func (p *Parser) connectionList() {
	p.InitialErrorChecks(p.connectionsID, p.NoConnectionsKeyword)
	p.parseList(p.connection)
}

func (p *Parser) monitorList() {
	p.InitialErrorChecks(p.monitorsID, p.NoMonitorsKeyword)
	p.parseList(p.monitorItem)
}

func (p *Parser) device() {
	if p.symbol.Type != scanner.Name {
		p.DisplayError(p.symbol, p.InvalidName, false, nil)
		return
	}
	nameID := p.symbol.ID
	p.advance()

	if p.symbol.Type != scanner.Equals {
		p.DisplayError(p.symbol, p.NoEquals, false, nil)
		return
	}
	p.advance()

	kind, qualifier, ok := p.checkDeviceIsValid()
	if !ok {
		return
	}

	errCode := p.devices.MakeDevice(nameID, kind, qualifier)
	if errCode != p.devices.NoError {
		p.reportExternal(p.symbol, int(errCode), p.devices.Messages())
	}
}

func (p *Parser) gateKind(id names.NameId) (devices.Kind, bool) {
	switch id {
	case p.andID:
		return devices.AND, true
	case p.nandID:
		return devices.NAND, true
	case p.orID:
		return devices.OR, true
	case p.norID:
		return devices.NOR, true
	}
	return 0, false
}

// checkDeviceIsValid parses a deviceSpec and returns the resulting kind and
// qualifier, or ok=false if a syntax error aborted the parse.
func (p *Parser) checkDeviceIsValid() (devices.Kind, devices.Qualifier, bool) {
	if kind, isGate := p.gateKind(p.symbol.ID); isGate {
		p.advance()
		n, ok := p.parseBracketedInt(p.InputOutOfRange, func(v int) bool { return v >= 1 && v <= 16 })
		if !ok {
			return 0, devices.Qualifier{}, false
		}
		return kind, devices.IntQualifier(n), true
	}

	switch p.symbol.ID {
	case p.xorID:
		p.advance()
		return devices.XOR, devices.NoQualifier(), true

	case p.dtypeID:
		p.advance()
		return devices.DTYPE, devices.NoQualifier(), true

	case p.switchID:
		p.advance()
		n, ok := p.parseBracketedInt(p.BinaryNumberOutOfRange, func(v int) bool { return v == 0 || v == 1 })
		if !ok {
			return 0, devices.Qualifier{}, false
		}
		return devices.SWITCH, devices.IntQualifier(n), true

	case p.clockID:
		p.advance()
		n, ok := p.parseBracketedInt(p.ClkOutOfRange, func(v int) bool { return v >= 1 })
		if !ok {
			return 0, devices.Qualifier{}, false
		}
		return devices.CLOCK, devices.IntQualifier(n), true

	case p.rcID:
		p.advance()
		n, ok := p.parseBracketedInt(p.ClkOutOfRange, func(v int) bool { return v >= 1 })
		if !ok {
			return 0, devices.Qualifier{}, false
		}
		return devices.RC, devices.IntQualifier(n), true

	case p.siggenID:
		p.advance()
		return p.parseSiggen()

	default:
		p.DisplayError(p.symbol, p.InvalidComponent, false, nil)
		return 0, devices.Qualifier{}, false
	}
}

// parseBracketedInt parses '(' NUMBER ')', validating the number against
// valid and reporting rangeErr if it fails.
func (p *Parser) parseBracketedInt(rangeErr Error, valid func(int) bool) (int, bool) {
	if p.symbol.Type != scanner.BracketOpen {
		p.DisplayError(p.symbol, p.NoBracketOpen, false, nil)
		return 0, false
	}
	p.advance()

	if p.symbol.Type != scanner.Number {
		p.DisplayError(p.symbol, p.NoNumber, false, nil)
		return 0, false
	}
	text, _ := p.names.GetNameString(p.symbol.ID)
	n, _ := strconv.Atoi(text)
	if !valid(n) {
		p.DisplayError(p.symbol, rangeErr, false, nil)
		return 0, false
	}
	p.advance()

	if p.symbol.Type != scanner.BracketClose {
		p.DisplayError(p.symbol, p.NoBracketClose, false, nil)
		return 0, false
	}
	p.advance()
	return n, true
}

// parseSiggen parses 'SIGGEN' '(' NUMBER ',' '[' NUMBER (',' NUMBER)* ']' ')'.
func (p *Parser) parseSiggen() (devices.Kind, devices.Qualifier, bool) {
	if p.symbol.Type != scanner.BracketOpen {
		p.DisplayError(p.symbol, p.NoBracketOpen, false, nil)
		return 0, devices.Qualifier{}, false
	}
	p.advance()

	if p.symbol.Type != scanner.Number {
		p.DisplayError(p.symbol, p.NoNumber, false, nil)
		return 0, devices.Qualifier{}, false
	}
	text, _ := p.names.GetNameString(p.symbol.ID)
	initial, _ := strconv.Atoi(text)
	if initial != 0 && initial != 1 {
		p.DisplayError(p.symbol, p.BinaryNumberOutOfRange, false, nil)
		return 0, devices.Qualifier{}, false
	}
	p.advance()

	if p.symbol.Type != scanner.Comma {
		p.DisplayError(p.symbol, p.NoComma, false, nil)
		return 0, devices.Qualifier{}, false
	}
	p.advance()

	if p.symbol.Type != scanner.SquareOpen {
		p.DisplayError(p.symbol, p.NoSquareOpen, false, nil)
		return 0, devices.Qualifier{}, false
	}
	p.advance()

	var runs []int
	for {
		if p.symbol.Type != scanner.Number {
			p.DisplayError(p.symbol, p.NoNumber, false, nil)
			return 0, devices.Qualifier{}, false
		}
		text, _ := p.names.GetNameString(p.symbol.ID)
		run, _ := strconv.Atoi(text)
		if run < 1 {
			p.DisplayError(p.symbol, p.ClkOutOfRange, false, nil)
			return 0, devices.Qualifier{}, false
		}
		runs = append(runs, run)
		p.advance()

		if p.symbol.Type != scanner.Comma {
			break
		}
		p.advance()
	}

	if p.symbol.Type != scanner.SquareClose {
		p.DisplayError(p.symbol, p.NoSquareClose, false, nil)
		return 0, devices.Qualifier{}, false
	}
	p.advance()

	if p.symbol.Type != scanner.BracketClose {
		p.DisplayError(p.symbol, p.NoBracketClose, false, nil)
		return 0, devices.Qualifier{}, false
	}
	p.advance()

	return devices.SIGGEN, devices.SiggenQualifier(initial, runs), true
}

// output parses `output := NAME ('.' ('Q'|'QBAR'))?`, returning the
// resolved device/port ids. portID is names.NoName when no suffix was
// given (the device's single default output).
func (p *Parser) output() (devID, portID names.NameId, ok bool) {
	if p.symbol.Type != scanner.Name {
		p.DisplayError(p.symbol, p.InvalidName, false, nil)
		return names.NoName, names.NoName, false
	}
	devID = p.symbol.ID
	p.advance()

	if p.symbol.Type != scanner.FullStop {
		return devID, names.NoName, true
	}
	p.advance()

	if p.symbol.ID != p.qID && p.symbol.ID != p.qbarID {
		p.DisplayError(p.symbol, p.NoQOrQbar, false, nil)
		return devID, names.NoName, false
	}
	portID = p.symbol.ID
	p.advance()
	return devID, portID, true
}

// input parses `input := NAME '.' inputPort`.
func (p *Parser) input() (devID, portID names.NameId, ok bool) {
	if p.symbol.Type != scanner.Name {
		p.DisplayError(p.symbol, p.InvalidName, false, nil)
		return names.NoName, names.NoName, false
	}
	devID = p.symbol.ID
	p.advance()

	if p.symbol.Type != scanner.FullStop {
		p.DisplayError(p.symbol, p.NoFullstop, false, nil)
		return devID, names.NoName, false
	}
	p.advance()

	if !p.validInputSuffixes[p.symbol.ID] {
		p.DisplayError(p.symbol, p.NoInputSuffix, false, nil)
		return devID, names.NoName, false
	}
	portID = p.symbol.ID
	p.advance()
	return devID, portID, true
}

func (p *Parser) connection() {
	outDev, outPort, outOK := p.output()

	if p.symbol.Type != scanner.Equals {
		p.DisplayError(p.symbol, p.NoEquals, false, nil)
		return
	}
	p.advance()

	inDev, inPort, inOK := p.input()
	if !outOK || !inOK {
		return
	}

	if p.devices.GetDevice(outDev) == nil || p.devices.GetDevice(inDev) == nil {
		p.DisplayError(p.symbol, p.UndefinedName, true, nil)
		return
	}

	errCode := p.network.MakeConnection(outDev, outPort, inDev, inPort)
	if errCode != p.network.NoError {
		p.reportExternal(p.symbol, int(errCode), p.network.Messages())
	}
}

func (p *Parser) monitorItem() {
	devID, portID, ok := p.output()
	if !ok {
		return
	}
	if p.devices.GetDevice(devID) == nil {
		p.DisplayError(p.symbol, p.UndefinedName, true, nil)
		return
	}
	errCode := p.monitors.MakeMonitor(devID, portID)
	if errCode != p.monitors.NoError {
		p.reportExternal(p.symbol, int(errCode), p.monitors.Messages())
	}
}

func (p *Parser) end() {
	if p.symbol.Type == scanner.EOF {
		p.DisplayError(p.symbol, p.NoEndKeyword, true, nil)
		return
	}
	if p.symbol.ID == p.endID && p.symbol.Type == scanner.Keyword {
		p.advance()
		return
	}

	p.DisplayError(p.symbol, p.NoEndKeyword, true, nil)
	if p.symbol.Type == scanner.EOF {
		return
	}
	for p.symbol.ID != p.endID && p.symbol.Type != scanner.EOF {
		p.advance()
	}
	if p.symbol.Type == scanner.EOF {
		p.DisplayError(p.symbol, p.Terminate, true, nil)
		return
	}
	p.advance()
}

// ParseNetwork drains the scanner, building Devices/Network/Monitors as it
// goes, and returns true iff no errors were reported and the resulting
// network is complete (every input connected). On false, the caller should
// discard the partially-built network.
func (p *Parser) ParseNetwork() bool {
	p.advance()
	if p.symbol.Type == scanner.EOF {
		p.DisplayError(p.symbol, p.EmptyFile, true, nil)
		return false
	}

	p.deviceList()
	p.connectionList()
	p.monitorList()
	p.end()

	if p.symbol.Type != scanner.EOF {
		p.DisplayError(p.symbol, p.SymbolAfterEnd, true, nil)
	}

	return p.errorCount == 0 && p.network.CheckNetwork()
}
