package p2p

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/p2p/message"
	"github.com/kgricour/archethic-node/utils"
)

// maxPacketSize bounds one stream packet: a transaction of maximal
// content plus the frame overhead; oversized contents must still reach
// the validator to be rejected with their contract message
const maxPacketSize = 8 * 1024 * 1024

// Service accepts peer connections and pumps their frames through the
// dispatcher. Each connection runs in its own goroutine; a dropped
// connection cancels its in-flight request.
type Service struct {
	handler   *Handler
	tcpServer utils.TCPServer
	lm        *utils.LoopMode
	logger    *logrus.Entry
}

func NewService(ip net.IP, port int, handler *Handler) *Service {
	return &Service{
		handler:   handler,
		tcpServer: utils.NewTCPServer(ip, port),
		lm:        utils.NewLoop(1),
		logger:    logrus.WithField("component", "p2p"),
	}
}

func (s *Service) Start() bool {
	if !s.tcpServer.Start() {
		return false
	}

	go s.acceptLoop()
	s.lm.StartWorking()
	s.logger.Infof("p2p service listening on %s", s.tcpServer.Addr())
	return true
}

func (s *Service) Stop() {
	if s.lm.Stop() {
		s.tcpServer.Stop()
	}
}

func (s *Service) acceptLoop() {
	s.lm.Add()
	defer s.lm.Done()

	for {
		select {
		case <-s.lm.D:
			return
		case conn := <-s.tcpServer.GetTCPAcceptConnChannel():
			go s.serveConn(conn)
		}
	}
}

// serveConn pumps one connection; frames are processed in arrival order
func (s *Service) serveConn(conn utils.TCPConn) {
	ctx, cancel := context.WithCancel(context.Background())
	conn.SetSplitFunc(splitPackets)
	conn.SetDisconnectCb(func(net.Addr) { cancel() })
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.lm.D:
			conn.Disconnect()
			return
		case pkt, ok := <-conn.GetRecvChannel():
			if !ok {
				return
			}
			s.servePacket(ctx, conn, pkt)
		}
	}
}

func (s *Service) servePacket(ctx context.Context, conn utils.TCPConn, pkt []byte) {
	req, rest, err := message.Decode(pkt)
	if err != nil {
		s.logger.Warnf("drop undecodable frame from %v:%v", conn.RemoteAddr(), err)
		if decodeErrorAnswerable(err) {
			conn.Send(packPacket((&message.Error{
				Reason: message.ReasonInvalidTransaction,
			}).Marshal()))
		}
		return
	}
	if len(rest) != 0 {
		s.logger.Warnf("trailing bytes after frame from %v", conn.RemoteAddr())
	}

	resp, err := s.handler.Process(ctx, req)
	if err != nil {
		s.logger.Warnf("request %s from %v failed:%v", req, conn.RemoteAddr(), err)
		conn.Disconnect()
		return
	}

	conn.Send(packPacket(resp.Marshal()))
}

// decodeErrorAnswerable reports whether the framing still allows an
// Error response after a decode failure
func decodeErrorAnswerable(err error) bool {
	var incomplete *message.IncompleteError
	if errors.As(err, &incomplete) {
		return false
	}
	return errors.Is(err, message.ErrUnknownFrame) ||
		errors.Is(err, message.ErrMalformed) ||
		errors.Is(err, crypto.ErrUnknownAlgorithm)
}

// packPacket prefixes a frame with its 32 bit length for the stream layer
func packPacket(frame []byte) []byte {
	result := make([]byte, 4, 4+len(frame))
	binary.BigEndian.PutUint32(result, uint32(len(frame)))
	return append(result, frame...)
}

// splitPackets cuts length-prefixed frames out of the receive buffer
func splitPackets(received *bytes.Buffer) ([][]byte, error) {
	var result [][]byte

	for {
		if received.Len() < 4 {
			return result, nil
		}

		size := binary.BigEndian.Uint32(received.Bytes()[:4])
		if size > maxPacketSize {
			return nil, errors.New("oversized packet")
		}
		if uint32(received.Len()-4) < size {
			return result, nil
		}

		received.Next(4)
		pkt := make([]byte, size)
		copy(pkt, received.Next(int(size)))
		result = append(result, pkt)
	}
}
