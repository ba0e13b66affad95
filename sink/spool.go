package sink

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/spq"
	"github.com/temoto/udpinsert/helpers"
	"github.com/temoto/udpinsert/log2"
	"github.com/temoto/udpinsert/tele"
)

const (
	DefaultSpoolRetryMin = time.Second
	DefaultSpoolRetryMax = time.Minute
)

// Spool persists batches on disk and drains them into Next in background.
// Write returns after fsync, so Next outage does not lose accepted telemetry.
// Failed batch is moved to queue tail and retried after backoff delay,
// batch rejected by destination (IsRejected) is dropped and counted.
type Spool struct {
	alive   *alive.Alive
	log     *log2.Log
	q       *spq.Queue
	next    tele.Sink
	backoff helpers.Backoff
	timeout time.Duration
	stat    SpoolStat
}

type SpoolOptions struct {
	Log      *log2.Log
	Path     string // spq.OnlyForTesting keeps queue in memory
	Next     tele.Sink
	Timeout  time.Duration // for each Next.Write
	RetryMin time.Duration
	RetryMax time.Duration
}

type SpoolStat struct {
	Pushed   expvar.Int
	Sent     expvar.Int
	Retried  expvar.Int
	Rejected expvar.Int
	Corrupt  expvar.Int
}

func (ss *SpoolStat) String() string {
	return fmt.Sprintf(`{"pushed":%d,"sent":%d,"retried":%d,"rejected":%d,"corrupt":%d}`,
		ss.Pushed.Value(), ss.Sent.Value(), ss.Retried.Value(), ss.Rejected.Value(), ss.Corrupt.Value())
}

var _ tele.Sink = &Spool{}

// spool item on disk
type spoolItem struct {
	Database string       `json:"db"`
	Points   []tele.Point `json:"p"`
}

func (si *spoolItem) MarshalBinary() ([]byte, error)  { return json.Marshal(si) }
func (si *spoolItem) UnmarshalBinary(b []byte) error { return json.Unmarshal(b, si) }

func NewSpool(opt SpoolOptions) (*Spool, error) {
	if opt.Next == nil {
		return nil, errors.NotValidf("code error spool Next=nil")
	}
	if opt.Path == "" {
		return nil, errors.NotValidf("spool path empty")
	}
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultInfluxTimeout
	}
	if opt.RetryMin <= 0 {
		opt.RetryMin = DefaultSpoolRetryMin
	}
	if opt.RetryMax <= 0 {
		opt.RetryMax = DefaultSpoolRetryMax
	}
	q, err := spq.Open(opt.Path)
	if err != nil {
		return nil, errors.Annotatef(err, "spool open path=%s", opt.Path)
	}
	self := &Spool{
		alive: alive.NewAlive(),
		log:   opt.Log,
		q:     q,
		next:  opt.Next,
		backoff: helpers.Backoff{
			Min: opt.RetryMin,
			Max: opt.RetryMax,
			K:   2,
		},
		timeout: opt.Timeout,
	}
	self.alive.Add(1)
	go self.drain()
	return self, nil
}

func (self *Spool) Write(ctx context.Context, database string, points []tele.Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := self.q.MarshalPush(&spoolItem{Database: database, Points: points}); err != nil {
		return errors.Annotate(err, "spool push")
	}
	self.stat.Pushed.Add(1)
	return nil
}

func (self *Spool) Stat() *SpoolStat { return &self.stat }

func (self *Spool) Close() error {
	self.alive.Stop()
	err := self.q.Close()
	self.alive.Wait()
	return err
}

func (self *Spool) drain() {
	defer self.alive.Done()
	for {
		box, err := self.q.Peek()
		switch err {
		case nil: // success path
			self.handle(box)

		case spq.ErrClosed:
			if self.alive.IsRunning() {
				self.log.Errorf("CRITICAL spool closed unexpectedly")
			}
			return

		default:
			self.log.Errorf("CRITICAL spool peek err=%v", err)
			if !self.sleep(self.backoff.Max) {
				return
			}
		}
	}
}

func (self *Spool) handle(box spq.Box) {
	var item spoolItem
	if err := box.Unmarshal(&item); err != nil {
		self.stat.Corrupt.Add(1)
		self.log.Errorf("spool unmarshal b=%x err=%v", box.Bytes(), err)
		self.delete(box)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), self.timeout)
	err := self.next.Write(ctx, item.Database, item.Points)
	cancel()
	self.backoff.Update(err == nil || IsRejected(err))
	switch {
	case err == nil:
		self.stat.Sent.Add(1)
		self.delete(box)
		return

	case IsRejected(err):
		self.stat.Rejected.Add(1)
		self.log.Errorf("spool drop database=%s points=%d err=%v", item.Database, len(item.Points), err)
		self.delete(box)
		return
	}

	self.stat.Retried.Add(1)
	self.log.Errorf("spool forward database=%s points=%d err=%v", item.Database, len(item.Points), err)
	if err = self.q.DeletePush(box); err != nil && err != spq.ErrClosed {
		self.log.Errorf("spool DeletePush err=%v", err)
	}
	self.sleep(self.backoff.DelayBefore())
}

func (self *Spool) delete(box spq.Box) {
	if err := self.q.Delete(box); err != nil && err != spq.ErrClosed {
		self.log.Errorf("spool Delete err=%v", err)
	}
}

// sleep returns false if spool is closing.
func (self *Spool) sleep(d time.Duration) bool {
	if d <= 0 {
		return self.alive.IsRunning()
	}
	select {
	case <-time.After(d):
		return true
	case <-self.alive.StopChan():
		return false
	}
}
