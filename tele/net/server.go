package telenet

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/udpinsert/helpers"
	"github.com/temoto/udpinsert/helpers/atomic_clock"
	"github.com/temoto/udpinsert/log2"
	"github.com/temoto/udpinsert/schema"
	"github.com/temoto/udpinsert/tele"
)

const (
	DefaultMaxDeltaT       = 10
	DefaultForwardTimeout  = 5 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	DefaultGuardTimeout    = time.Second
	DefaultReadLimit       = 16 << 10
)

var ErrClosing = fmt.Errorf("closing")

// Telemetry receiver.
// Authenticates each datagram, rejects replays and forwards decoded records to Sink
// without waiting for it.
type Server struct {
	alive    *alive.Alive // read loops
	forwards *alive.Alive // in-flight Sink.Write
	listens  struct {
		sync.RWMutex
		m map[string]net.PacketConn
	}
	log        *log2.Log
	opt        ServerOptions
	stat       ServerStat
	lastAccept atomic_clock.Clock
}

type ServerOptions struct {
	Log      *log2.Log
	Registry *schema.Registry
	Sink     tele.Sink
	Guard    ReplayGuard // default MemoryGuard
	// OnMessage is called after message is accepted, before forward.
	OnMessage func(*tele.Message, schema.Data)

	MaxDeltaT       int
	ForwardTimeout  time.Duration
	ShutdownTimeout time.Duration
	GuardTimeout    time.Duration
	Now             func() int64 // default time.Now().Unix()
}

type ListenOptions struct {
	PacketURL string
	ReadLimit uint32
}

func NewServer(opt ServerOptions) (*Server, error) {
	if opt.Registry == nil {
		return nil, errors.NotValidf("code error server Registry=nil")
	}
	if opt.Sink == nil {
		opt.Sink = tele.Noop{}
	}
	if opt.Guard == nil {
		opt.Guard = NewMemoryGuard()
	}
	if opt.MaxDeltaT <= 0 {
		opt.MaxDeltaT = DefaultMaxDeltaT
	}
	if opt.ForwardTimeout <= 0 {
		opt.ForwardTimeout = DefaultForwardTimeout
	}
	if opt.ShutdownTimeout <= 0 {
		opt.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opt.GuardTimeout <= 0 {
		opt.GuardTimeout = DefaultGuardTimeout
	}
	if opt.Now == nil {
		opt.Now = func() int64 { return time.Now().Unix() }
	}
	s := &Server{
		alive:    alive.NewAlive(),
		forwards: alive.NewAlive(),
		log:      opt.Log,
		opt:      opt,
	}
	s.listens.m = make(map[string]net.PacketConn)
	return s, nil
}

func (s *Server) Addrs() []string {
	s.listens.RLock()
	defer s.listens.RUnlock()
	addrs := make([]string, 0, len(s.listens.m))
	for _, pc := range s.listens.m {
		addrs = append(addrs, pc.LocalAddr().String())
	}
	return addrs
}

func (s *Server) Listen(ctx context.Context, opts []ListenOptions) error {
	s.listens.Lock()
	defer s.listens.Unlock()

	errs := make([]error, 0)
	for _, opt := range opts {
		if !s.alive.Add(1) {
			return ErrClosing
		}
		s.log.Debugf("listen url=%s", opt.PacketURL)
		if opt.ReadLimit == 0 {
			opt.ReadLimit = DefaultReadLimit
		}
		if err := s.listenPacket(ctx, opt); err != nil {
			s.alive.Done()
			err = errors.Annotatef(err, "listenPacket %s", opt.PacketURL)
			errs = append(errs, err)
			continue
		}
	}
	return helpers.FoldErrors(errs)
}

// LastAccept returns time of last accepted message, zero if none.
func (s *Server) LastAccept() time.Time {
	if s.lastAccept.IsZero() {
		return time.Time{}
	}
	return s.lastAccept.Time()
}

func (s *Server) Stat() *ServerStat { return &s.stat }

// Close stops read loops and waits for in-flight forwards at most ShutdownTimeout.
func (s *Server) Close() error {
	s.alive.Stop()
	errs := make([]error, 0)
	helpers.WithLock(&s.listens, func() {
		for key, pc := range s.listens.m {
			if err := pc.Close(); err != nil {
				errs = append(errs, errors.Annotatef(err, "close listen=%s", key))
			}
			delete(s.listens.m, key)
		}
	})
	s.alive.Wait()
	if !helpers.StopWait(s.forwards, s.opt.ShutdownTimeout) {
		s.log.Errorf("shutdown timeout=%v abandoned forwards", s.opt.ShutdownTimeout)
	}
	return helpers.FoldErrors(errs)
}

func (s *Server) listenPacket(ctx context.Context, opt ListenOptions) error {
	network, hostport, err := parseURI(opt.PacketURL)
	if err != nil {
		return errors.Annotate(err, "parse url")
	}
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, network, hostport)
	if err != nil {
		return errors.Annotatef(err, "net.ListenPacket network=%s address=%s", network, hostport)
	}
	s.listens.m[opt.PacketURL] = pc
	go s.readLoop(pc, opt)
	return nil
}

func (s *Server) readLoop(pc net.PacketConn, opt ListenOptions) {
	defer s.alive.Done() // one alive subtask for each socket
	buf := make([]byte, opt.ReadLimit)
	for {
		n, from, err := pc.ReadFrom(buf)
		if !s.alive.IsRunning() {
			return
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Temporary() { //nolint:staticcheck
				s.log.Debugf("read listen=%s err=%v", addrString(pc.LocalAddr()), err)
				continue
			}
			err = errors.Annotatef(err, "read listen=%s", addrString(pc.LocalAddr()))
			s.log.Error(err)
			return
		}
		// errors are logged and counted inside
		_ = s.HandleDatagram(buf[:n], from)
	}
}

// HandleDatagram authenticates, decodes and replay checks one datagram,
// then dispatches forward to Sink. Any error drops only this datagram.
// `b` is not retained.
func (s *Server) HandleDatagram(b []byte, from net.Addr) (err error) {
	s.stat.Recv.Register(len(b))
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
		if err != nil {
			s.stat.Drop.Register(err)
			s.log.Debugf("drop from=%s err=%v", addrString(from), err)
		}
	}()

	sch, m, data, err := s.accept(b)
	if err != nil {
		return err
	}
	s.stat.Accepted.Add(1)
	s.lastAccept.SetNow()
	s.log.Debugf("accept from=%s m=%s", addrString(from), m.String())
	if s.opt.OnMessage != nil {
		s.opt.OnMessage(m, data)
	}
	s.forward(m, tele.PointsFromData(sch, data, m.Timestamp))
	return nil
}

func (s *Server) accept(b []byte) (*schema.Schema, *tele.Message, schema.Data, error) {
	if len(b) < MinFrameSize {
		return nil, nil, nil, errors.Annotatef(ErrFrameShort, "length=%d min=%d", len(b), MinFrameSize)
	}
	id, _ := PeekIdentifier(b)
	sch, err := s.opt.Registry.Get(id)
	if err != nil {
		return nil, nil, nil, err
	}
	now := s.opt.Now()
	m, data, err := FrameUnmarshal(b, sch, now, s.opt.MaxDeltaT)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opt.GuardTimeout)
	defer cancel()
	if err = s.opt.Guard.Check(ctx, m.Timestamp, m.Nonce); err != nil {
		return nil, nil, nil, errors.Annotatef(err, "identifier=%s", id)
	}
	s.opt.Guard.Prune(ctx, now, s.opt.MaxDeltaT)
	return sch, m, data, nil
}

func (s *Server) forward(m *tele.Message, points []tele.Point) {
	if !s.forwards.Add(1) {
		s.stat.Forward.Abandoned.Add(1)
		return
	}
	go func() {
		defer s.forwards.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opt.ForwardTimeout)
		defer cancel()
		if err := s.opt.Sink.Write(ctx, m.Database, points); err != nil {
			s.stat.Forward.Error.Add(1)
			s.log.Errorf("forward database=%s m=%s err=%v", m.Database, m.String(), err)
			return
		}
		s.stat.Forward.Ok.Add(1)
	}()
}
