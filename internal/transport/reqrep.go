// Package transport carries the PLC/SCADA protocol over a mangos
// req/rep pair, so agents can run out of process from the coordinator.
// Addresses use mangos URLs (tcp://host:port, inproc://name).
package transport

import (
	"errors"
	"log"
	"sync"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/rep"
	"go.nanomsg.org/mangos/v3/protocol/req"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"waterscada/internal/protocol"
)

// Handler answers decoded observation requests. *scada.Coordinator
// satisfies it.
type Handler interface {
	HandleRequest(req protocol.ObservationRequest) protocol.CoordinatorReply
}

// Server listens on a rep socket and serves one handler.
type Server struct {
	sock    mangos.Socket
	handler Handler
	logger  *log.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewServer opens the listening socket and starts serving.
func NewServer(addr string, handler Handler, logger *log.Logger) (*Server, error) {
	if handler == nil {
		return nil, errors.New("transport: nil handler")
	}
	sock, err := rep.NewSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, err
	}
	s := &Server{sock: sock, handler: handler, logger: logger, done: make(chan struct{})}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	defer close(s.done)
	for {
		payload, err := s.sock.Recv()
		if err != nil {
			if errors.Is(err, mangos.ErrClosed) {
				return
			}
			if s.logger != nil {
				s.logger.Printf("transport: recv: %v", err)
			}
			return
		}
		out, err := protocol.EncodeReply(s.answer(payload))
		if err != nil {
			if s.logger != nil {
				s.logger.Printf("transport: encode reply: %v", err)
			}
			continue
		}
		if err := s.sock.Send(out); err != nil {
			if errors.Is(err, mangos.ErrClosed) {
				return
			}
			if s.logger != nil {
				s.logger.Printf("transport: send: %v", err)
			}
		}
	}
}

// answer decodes one payload and runs the handler. Undecodable
// payloads are answered in-band, keeping the rep socket in lockstep.
func (s *Server) answer(payload []byte) protocol.CoordinatorReply {
	request, err := protocol.DecodeRequest(payload)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("transport: bad request: %v", err)
		}
		return protocol.CoordinatorReply{Responses: map[string]any{}, Error: protocol.ErrorBadRequest}
	}
	return s.handler.HandleRequest(request)
}

// Close shuts the socket down and waits for the serve loop to exit.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.sock.Close()
		<-s.done
	})
	return err
}

// Client is a req-socket client for one coordinator endpoint. A req
// socket is lockstep, so exchanges are serialized by a mutex.
type Client struct {
	mu   sync.Mutex
	sock mangos.Socket
}

// DialClient connects to a coordinator endpoint. A non-zero timeout
// bounds both directions of every exchange.
func DialClient(addr string, timeout time.Duration) (*Client, error) {
	sock, err := req.NewSocket()
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		if err := sock.SetOption(mangos.OptionRecvDeadline, timeout); err != nil {
			sock.Close()
			return nil, err
		}
		if err := sock.SetOption(mangos.OptionSendDeadline, timeout); err != nil {
			sock.Close()
			return nil, err
		}
	}
	if err := sock.Dial(addr); err != nil {
		sock.Close()
		return nil, err
	}
	return &Client{sock: sock}, nil
}

// Exchange performs one request/reply cycle.
func (c *Client) Exchange(request protocol.ObservationRequest) (protocol.CoordinatorReply, error) {
	payload, err := protocol.EncodeRequest(request)
	if err != nil {
		return protocol.CoordinatorReply{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sock.Send(payload); err != nil {
		return protocol.CoordinatorReply{}, err
	}
	raw, err := c.sock.Recv()
	if err != nil {
		return protocol.CoordinatorReply{}, err
	}
	return protocol.DecodeReply(raw)
}

// Close shuts the client socket down.
func (c *Client) Close() error {
	return c.sock.Close()
}
