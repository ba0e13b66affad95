package telenet

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/udpinsert/helpers"
	"github.com/temoto/udpinsert/log2"
	"github.com/temoto/udpinsert/schema"
	"github.com/temoto/udpinsert/tele"
)

const (
	DefaultNetworkTimeout = 3 * time.Second
	DefaultRetryDelay     = time.Second
)

// Telemetry sender.
// Each Send is exactly one datagram, no ack, no retry.
// Write error closes socket, next Send redials after backoff delay.
type Client struct { //nolint:maligned
	sync.Mutex // protects current
	alive      *alive.Alive
	current    net.Conn
	opt        *ClientOptions
	stat       ClientStat
	backoff    *helpers.Backoff
	nonce      uint32
}

type ClientOptions struct {
	Log            *log2.Log
	PacketURL      string
	NetworkTimeout time.Duration
	RetryDelay     time.Duration
	Dialer         *net.Dialer
	Now            func() int64 // default time.Now().Unix()
}

func NewClient(opt *ClientOptions) (*Client, error) {
	if opt.NetworkTimeout == 0 {
		opt.NetworkTimeout = DefaultNetworkTimeout
	}
	if opt.RetryDelay == 0 {
		opt.RetryDelay = DefaultRetryDelay
	}
	if opt.Dialer == nil {
		opt.Dialer = &net.Dialer{Timeout: opt.NetworkTimeout}
	}
	if opt.Now == nil {
		opt.Now = func() int64 { return time.Now().Unix() }
	}
	if _, _, err := parseURI(opt.PacketURL); err != nil {
		return nil, errors.Annotatef(err, "config error tele PacketURL=%s", opt.PacketURL)
	}
	c := &Client{
		alive: alive.NewAlive(),
		backoff: &helpers.Backoff{
			Min: opt.RetryDelay,
			Max: 10 * opt.RetryDelay,
			K:   2,
		},
		opt:   opt,
		nonce: rand.Uint32(),
	}
	return c, nil
}

func (c *Client) Close() error {
	c.alive.Stop()
	c.Lock()
	conn := c.current
	c.current = nil
	c.Unlock()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	c.alive.Wait()
	return err
}

// NextNonce returns rolling 16 bit counter, never 0.
func (c *Client) NextNonce() uint16 { return nonceNext(&c.nonce) }

// Send encodes `data` with schema `s`, signs with current time and writes one datagram.
func (c *Client) Send(ctx context.Context, s *schema.Schema, data schema.Data, nonce uint16) (*tele.Message, error) {
	if !c.alive.Add(1) {
		return nil, ErrClosing
	}
	defer c.alive.Done()

	m, b, err := FrameMarshal(s, data, nonce, uint64(c.opt.Now()))
	if err != nil {
		c.stat.Error.Add(1)
		return nil, err
	}
	conn, err := c.mustConn(ctx)
	if err != nil {
		c.stat.Error.Add(1)
		return nil, err
	}
	deadline := time.Now().Add(c.opt.NetworkTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	if _, err = conn.Write(b); err != nil {
		c.stat.Error.Add(1)
		c.dropConn(conn)
		return nil, errors.Annotatef(err, "send url=%s", c.opt.PacketURL)
	}
	c.stat.Send.Register(len(b))
	c.opt.Log.Debugf("send m=%s", m.String())
	return m, nil
}

func (c *Client) Stat() *ClientStat { return &c.stat }

func (c *Client) dropConn(conn net.Conn) {
	c.Lock()
	defer c.Unlock()
	if c.current == conn {
		c.current = nil
	}
	_ = conn.Close()
}

func (c *Client) mustConn(ctx context.Context) (net.Conn, error) {
	c.Lock()
	defer c.Unlock()
	if c.current != nil {
		return c.current, nil
	}

	delay := c.backoff.DelayBefore()
	if delay > 0 {
		c.opt.Log.Debugf("redial delay=%s", delay)
	}
	if err := c.sleep(ctx, delay); err != nil {
		return nil, err
	}
	network, hostport, _ := parseURI(c.opt.PacketURL)
	conn, err := c.opt.Dialer.DialContext(ctx, network, hostport)
	c.backoff.Update(err == nil)
	if err != nil {
		return nil, errors.Annotatef(err, "dial url=%s", c.opt.PacketURL)
	}
	c.current = conn
	return conn, nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil

	case <-ctx.Done():
		return context.Canceled

	case <-c.alive.StopChan():
		return ErrClosing
	}
}

// Send is one-shot form of Client.Send.
func Send(ctx context.Context, url string, s *schema.Schema, data schema.Data, nonce uint16) (*tele.Message, error) {
	c, err := NewClient(&ClientOptions{PacketURL: url})
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.Send(ctx, s, data, nonce)
}
