package adcsim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

// Observer receives request and conversion outcomes, e.g. for metrics.
type Observer interface {
	ObserveRequest(functionCode uint8, err error)
	ObserveSample(ch *Channel, st ChannelState, r Result, err error)
}

// ModbusServer represents a TCP based modbus server with multiple slaves connected to it. Every
// slave (unit id) serves the register blocks of its channels; slaves start offline and do not
// answer until connected.
type ModbusServer struct {
	url         string
	bank        *Bank
	logger      Logger
	observer    Observer
	tcpListener net.Listener

	mu     sync.Mutex
	slaves map[uint8]bool
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

type nopLogger struct{}

func (nopLogger) Append(string) {}

// NewModbusServer creates a server for bank listening on url (tcp://host:port). logger and
// observer may be nil.
func NewModbusServer(url string, bank *Bank, logger Logger, observer Observer) (*ModbusServer, error) {
	splitURL := strings.SplitN(url, "://", 2)
	if len(splitURL) != 2 || splitURL[0] != "tcp" || splitURL[1] == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, url)
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &ModbusServer{
		url:      splitURL[1],
		bank:     bank,
		logger:   logger,
		observer: observer,
		slaves:   make(map[uint8]bool),
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

func (s *ModbusServer) Start() (err error) {
	s.tcpListener, err = net.Listen("tcp", s.url)
	if err == nil {
		go s.acceptTCPClients()
	}
	return
}

// Addr returns the listening address, nil before Start.
func (s *ModbusServer) Addr() net.Addr {
	if s.tcpListener == nil {
		return nil
	}
	return s.tcpListener.Addr()
}

// Stop closes the listener and all client connections.
func (s *ModbusServer) Stop() error {
	s.mu.Lock()
	s.closed = true
	var err error
	if s.tcpListener != nil {
		err = s.tcpListener.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

func (s *ModbusServer) Connect(slaveID uint8) {
	s.mu.Lock()
	s.slaves[slaveID] = true
	s.mu.Unlock()
}

func (s *ModbusServer) Disconnect(slaveID uint8) {
	s.mu.Lock()
	s.slaves[slaveID] = false
	s.mu.Unlock()
}

func (s *ModbusServer) Online(slaveID uint8) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slaves[slaveID]
}

func (s *ModbusServer) logf(format string, args ...any) {
	ts := time.Now().Format(time.DateTime)
	s.logger.Append(ts + " " + fmt.Sprintf(format, args...))
}

func (s *ModbusServer) acceptTCPClients() {
	for {
		sock, err := s.tcpListener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("failed to accept client connection", "err", err)
			continue
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = sock.Close()
			return
		}
		s.conns[sock] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		s.logf("client %s connected", sock.RemoteAddr())
		go s.handleClient(sock)
	}
}

const (
	fcReadDiscreteInputs     uint8 = 0x02
	fcReadHoldingRegisters   uint8 = 0x03
	fcReadInputRegisters     uint8 = 0x04
	fcWriteSingleRegister    uint8 = 0x06
	fcWriteMultipleRegisters uint8 = 0x10

	mbapHeaderLength  int = 7
	maxTCPFrameLength int = 260

	maxReadBits       uint16 = 2000
	maxReadRegisters  uint16 = 125
	maxWriteRegisters uint16 = 123
)

type pdu struct {
	unitId       uint8
	functionCode uint8
	payload      []byte
}

func (s *ModbusServer) handleClient(sock net.Conn) {
	defer func() {
		_ = sock.Close()
		s.mu.Lock()
		delete(s.conns, sock)
		s.mu.Unlock()
		s.wg.Done()
	}()

	for {
		req, txnId, err := readMBAPFrame(sock)
		if errors.Is(err, ErrUnknownProtocolId) {
			// the frame was consumed, the stream is still in sync
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logf("client %s: %v", sock.RemoteAddr(), err)
			}
			s.logf("client %s disconnected", sock.RemoteAddr())
			return
		}
		s.logf("req: slave id: %d fc: %X payload: % X", req.unitId, req.functionCode, req.payload)

		if !s.Online(req.unitId) {
			s.logf("req: slave id: %d is offline", req.unitId)
			continue
		}

		res := s.handleRequest(req)
		s.logf("res: slave id: %d fc: %X payload: % X", res.unitId, res.functionCode, res.payload)

		if _, err = sock.Write(assembleMBAPFrame(txnId, res)); err != nil {
			return
		}
	}
}

// handleRequest dispatches one PDU and builds either the response or an exception response.
func (s *ModbusServer) handleRequest(req *pdu) *pdu {
	var payload []byte
	var err error
	switch req.functionCode {
	case fcReadDiscreteInputs:
		payload, err = s.readDiscreteInputs(req)
	case fcReadHoldingRegisters:
		payload, err = s.readRegisters(req, (*MemoryMap).GetHoldingReg)
	case fcReadInputRegisters:
		payload, err = s.readRegisters(req, (*MemoryMap).GetInputReg)
	case fcWriteSingleRegister:
		payload, err = s.writeSingleRegister(req)
	case fcWriteMultipleRegisters:
		payload, err = s.writeMultipleRegisters(req)
	default:
		err = ErrIllegalFunction
	}
	if s.observer != nil {
		s.observer.ObserveRequest(req.functionCode, err)
	}
	if err != nil {
		if exceptionCode(err) == 0x04 {
			slog.Error("modbus request failed", "unit", req.unitId, "fc", req.functionCode, "err", err)
		}
		return &pdu{
			unitId:       req.unitId,
			functionCode: req.functionCode | 0x80,
			payload:      []byte{exceptionCode(err)},
		}
	}
	return &pdu{unitId: req.unitId, functionCode: req.functionCode, payload: payload}
}

func exceptionCode(err error) uint8 {
	switch {
	case errors.Is(err, ErrIllegalFunction):
		return 0x01
	case errors.Is(err, ErrIllegalDataAddress):
		return 0x02
	case errors.Is(err, ErrIllegalDataValue):
		return 0x03
	default:
		return 0x04
	}
}

// addressAndQuantity decodes the common addr/quantity request header.
func addressAndQuantity(payload []byte, max uint16) (addr, quantity uint16, err error) {
	if len(payload) < 4 {
		return 0, 0, ErrIllegalDataValue
	}
	addr = bytesToUint16(payload[0:2])
	quantity = bytesToUint16(payload[2:4])
	if quantity == 0 || quantity > max {
		return 0, 0, ErrIllegalDataValue
	}
	if int(addr)+int(quantity) > 0x10000 {
		return 0, 0, ErrIllegalDataAddress
	}
	return addr, quantity, nil
}

func (s *ModbusServer) snapshot(unit uint8) (*MemoryMap, error) {
	mm, err := s.bank.Snapshot(unit, s.observer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerDeviceFailure, err)
	}
	return mm, nil
}

func (s *ModbusServer) readDiscreteInputs(req *pdu) ([]byte, error) {
	addr, quantity, err := addressAndQuantity(req.payload, maxReadBits)
	if err != nil {
		return nil, err
	}
	mm, err := s.snapshot(req.unitId)
	if err != nil {
		return nil, err
	}
	values := make([]bool, quantity)
	for i := range values {
		v, ok := mm.GetDiscreteInput(addr + uint16(i))
		if !ok {
			return nil, ErrIllegalDataAddress
		}
		values[i] = v
	}

	encoded := encodeBools(values)
	return append([]byte{uint8(len(encoded))}, encoded...), nil
}

func (s *ModbusServer) readRegisters(req *pdu, get func(*MemoryMap, uint16) (uint16, bool)) ([]byte, error) {
	addr, quantity, err := addressAndQuantity(req.payload, maxReadRegisters)
	if err != nil {
		return nil, err
	}
	mm, err := s.snapshot(req.unitId)
	if err != nil {
		return nil, err
	}
	payload := []byte{uint8(2 * quantity)}
	for i := uint16(0); i < quantity; i++ {
		v, ok := get(mm, addr+i)
		if !ok {
			return nil, ErrIllegalDataAddress
		}
		payload = append(payload, uint16ToBytes(v)...)
	}
	return payload, nil
}

func (s *ModbusServer) writeSingleRegister(req *pdu) ([]byte, error) {
	if len(req.payload) != 4 {
		return nil, ErrIllegalDataValue
	}
	addr := bytesToUint16(req.payload[0:2])
	value := bytesToUint16(req.payload[2:4])
	if err := s.bank.WriteHolding(req.unitId, addr, []uint16{value}); err != nil {
		return nil, err
	}
	// the response echoes the request
	return req.payload, nil
}

func (s *ModbusServer) writeMultipleRegisters(req *pdu) ([]byte, error) {
	addr, quantity, err := addressAndQuantity(req.payload, maxWriteRegisters)
	if err != nil {
		return nil, err
	}
	if len(req.payload) < 5 || int(req.payload[4]) != 2*int(quantity) || len(req.payload) != 5+2*int(quantity) {
		return nil, ErrIllegalDataValue
	}
	values := make([]uint16, quantity)
	for i := range values {
		values[i] = bytesToUint16(req.payload[5+2*i:7+2*i])
	}
	if err := s.bank.WriteHolding(req.unitId, addr, values); err != nil {
		return nil, err
	}
	return req.payload[0:4], nil
}

// Reads an entire frame (MBAP header + modbus PDU) from the socket.
func readMBAPFrame(sock io.Reader) (p *pdu, txnId uint16, err error) {
	var rxbuf []byte
	var bytesNeeded int
	var protocolId uint16
	var unitId uint8

	// read the MBAP header
	rxbuf = make([]byte, mbapHeaderLength)
	_, err = io.ReadFull(sock, rxbuf)
	if err != nil {
		return
	}

	// decode the transaction identifier
	txnId = bytesToUint16(rxbuf[0:2])
	// decode the protocol identifier
	protocolId = bytesToUint16(rxbuf[2:4])
	// store the source unit id
	unitId = rxbuf[6]

	// determine how many more bytes we need to read
	bytesNeeded = int(bytesToUint16(rxbuf[4:6]))

	// the byte count includes the unit ID field, which we already have
	bytesNeeded--

	// never read more than the max allowed frame length
	if bytesNeeded+mbapHeaderLength > maxTCPFrameLength {
		err = ErrProtocolError
		return
	}

	// an MBAP length of 0 is illegal
	if bytesNeeded <= 0 {
		err = ErrProtocolError
		return
	}

	// read the PDU
	rxbuf = make([]byte, bytesNeeded)
	_, err = io.ReadFull(sock, rxbuf)
	if err != nil {
		return
	}

	// validate the protocol identifier
	if protocolId != 0x0000 {
		err = ErrUnknownProtocolId
		slog.Warn("received unexpected protocol id", "protocol_id", fmt.Sprintf("0x%04x", protocolId))
		return
	}

	// store unit id, function code and payload in the PDU object
	p = &pdu{
		unitId:       unitId,
		functionCode: rxbuf[0],
		payload:      rxbuf[1:],
	}

	return
}

// Turns a PDU into an MBAP frame (MBAP header + PDU) and returns it as bytes.
func assembleMBAPFrame(txnId uint16, p *pdu) (payload []byte) {
	// transaction identifier
	payload = uint16ToBytes(txnId)
	// protocol identifier (always 0x0000)
	payload = append(payload, 0x00, 0x00)
	// length (covers unit identifier + function code + payload fields)
	payload = append(payload, uint16ToBytes(uint16(2+len(p.payload)))...)
	// unit identifier
	payload = append(payload, p.unitId)
	// function code
	payload = append(payload, p.functionCode)
	// payload
	payload = append(payload, p.payload...)

	return
}

// Modbus registers travel big-endian.
func bytesToUint16(in []byte) uint16 {
	return binary.BigEndian.Uint16(in)
}

func uint16ToBytes(in uint16) (out []byte) {
	out = make([]byte, 2)
	binary.BigEndian.PutUint16(out, in)
	return
}

func encodeBools(in []bool) (out []byte) {
	var byteCount uint
	var i uint

	byteCount = uint(len(in)) / 8
	if len(in)%8 != 0 {
		byteCount++
	}

	out = make([]byte, byteCount)
	for i = 0; i < uint(len(in)); i++ {
		if in[i] {
			out[i/8] |= (0x01 << (i % 8))
		}
	}

	return
}
