package network

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/luminal-games/driftsync/replica"
	"github.com/luminal-games/driftsync/shared/protocol"
)

const (
	reliableQueueSize = 128
	eventQueueSize    = 1024
	writeTimeout      = 5 * time.Second
)

// Server accepts observer connections and implements replica.Sender for
// the authority. All sends are non-blocking: a peer that cannot keep up
// loses stale unreliable payloads first and its connection second.
type Server struct {
	mu     sync.RWMutex
	peers  map[replica.PeerID]*serverPeer
	nextID replica.PeerID

	events   chan Event
	httpSrv  *http.Server
	listener net.Listener
}

type serverPeer struct {
	id   replica.PeerID
	conn *websocket.Conn

	reliable chan []byte

	mu      sync.Mutex
	mailbox map[protocol.CoalesceKey][]byte
	kick    chan struct{}

	closed chan struct{}
	once   sync.Once
}

// NewServer creates an unstarted server.
func NewServer() *Server {
	return &Server{
		peers:  make(map[replica.PeerID]*serverPeer),
		events: make(chan Event, eventQueueSize),
	}
}

// Listen binds addr and begins accepting websocket connections at
// /sync in a background goroutine. It returns once the listener is
// bound so callers know the port is live.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/sync", s.handleSync)
	s.httpSrv = &http.Server{Handler: mux}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("[network] server stopped")
		}
	}()

	log.WithField("addr", ln.Addr().String()).Info("[network] listening")
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close drops all peers and stops the listener.
func (s *Server) Close() error {
	s.mu.Lock()
	peers := make([]*serverPeer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.peers = map[replica.PeerID]*serverPeer{}
	s.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	if s.httpSrv != nil {
		return s.httpSrv.Close()
	}
	return nil
}

// Drain returns every pending event, non-blocking. The host tick loop
// calls this once per tick and processes the batch synchronously.
func (s *Server) Drain() []Event {
	return drainChan(s.events)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.WithError(err).Warn("[network] accept failed")
		return
	}

	s.mu.Lock()
	s.nextID++
	p := &serverPeer{
		id:       s.nextID,
		conn:     conn,
		reliable: make(chan []byte, reliableQueueSize),
		mailbox:  make(map[protocol.CoalesceKey][]byte),
		kick:     make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
	s.peers[p.id] = p
	s.mu.Unlock()

	log.WithField("peer", p.id).Info("[network] peer connected")
	s.publish(PeerJoined{Peer: p.id})

	go p.writeLoop()
	s.readLoop(p)
}

func (s *Server) readLoop(p *serverPeer) {
	var readErr error
	for {
		typ, data, err := p.conn.Read(context.Background())
		if err != nil {
			readErr = err
			break
		}
		if typ != websocket.MessageBinary {
			continue
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			log.WithError(err).WithField("peer", p.id).Warn("[network] bad frame")
			continue
		}
		select {
		case s.events <- Message{From: p.id, Msg: msg}:
		default:
			// Event queue full: the tick loop has stalled. Stale
			// inbound samples are droppable by protocol design.
			log.WithField("peer", p.id).Warn("[network] inbound queue full, dropping")
		}
	}

	s.dropPeer(p, readErr)
}

func (s *Server) dropPeer(p *serverPeer, err error) {
	s.mu.Lock()
	_, present := s.peers[p.id]
	delete(s.peers, p.id)
	s.mu.Unlock()

	p.close()
	if present {
		log.WithField("peer", p.id).WithError(err).Info("[network] peer left")
		s.publish(PeerLeft{Peer: p.id, Err: err})
	}
}

// publish enqueues a lifecycle event without ever blocking. dropPeer
// runs on the host's own tick goroutine when a send fails, so a
// blocking send into a full queue would deadlock the loop that drains
// it.
func (s *Server) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
		log.Warn("[network] event queue full, dropping lifecycle event")
	}
}

// SendToAll delivers msg to every connected peer.
func (s *Server) SendToAll(rel protocol.Reliability, msg any) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	s.mu.RLock()
	peers := make([]*serverPeer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.RUnlock()

	for _, p := range peers {
		if err := p.enqueue(rel, msg, frame); err != nil {
			log.WithField("peer", p.id).WithError(err).Warn("[network] dropping peer")
			s.dropPeer(p, err)
		}
	}
	return nil
}

// SendTo delivers msg to a single peer.
func (s *Server) SendTo(peer replica.PeerID, rel protocol.Reliability, msg any) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	s.mu.RLock()
	p, ok := s.peers[peer]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, peer)
	}
	if err := p.enqueue(rel, msg, frame); err != nil {
		s.dropPeer(p, err)
		return err
	}
	return nil
}

func (p *serverPeer) enqueue(rel protocol.Reliability, msg any, frame []byte) error {
	if rel == protocol.Reliable {
		select {
		case p.reliable <- frame:
			return nil
		default:
			return ErrBackpressure
		}
	}

	key, ok := protocol.Coalesce(msg)
	if !ok {
		// Non-coalescible but unreliable: best effort through the
		// ordered queue, droppable under pressure.
		select {
		case p.reliable <- frame:
		default:
		}
		return nil
	}

	p.mu.Lock()
	p.mailbox[key] = frame
	p.mu.Unlock()
	select {
	case p.kick <- struct{}{}:
	default:
	}
	return nil
}

func (p *serverPeer) writeLoop() {
	for {
		select {
		case <-p.closed:
			return
		case frame := <-p.reliable:
			if !p.write(frame) {
				return
			}
		case <-p.kick:
			p.mu.Lock()
			frames := make([][]byte, 0, len(p.mailbox))
			for _, f := range p.mailbox {
				frames = append(frames, f)
			}
			p.mailbox = make(map[protocol.CoalesceKey][]byte)
			p.mu.Unlock()

			for _, f := range frames {
				if !p.write(f) {
					return
				}
			}
		}
	}
}

func (p *serverPeer) write(frame []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
		p.close()
		return false
	}
	return true
}

func (p *serverPeer) close() {
	p.once.Do(func() {
		close(p.closed)
		_ = p.conn.CloseNow()
	})
}

var _ replica.Sender = (*Server)(nil)
