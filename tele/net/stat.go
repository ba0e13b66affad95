package telenet

// Values are read and modified atomically, but not consistently,
// i.e. it is possible to read Recv.Count=1 Accepted=0 because Accepted has not updated yet.

import (
	"expvar"
	"fmt"

	"github.com/juju/errors"
	"github.com/temoto/udpinsert/schema"
)

type ServerStat struct {
	Recv     CountSizePair
	Accepted expvar.Int
	Drop     DropCounters
	Forward  ForwardCounters
}

type DropCounters struct {
	Short   expvar.Int
	Unknown expvar.Int
	Auth    expvar.Int
	Size    expvar.Int
	Replay  expvar.Int
	Other   expvar.Int
}

type ForwardCounters struct {
	Ok        expvar.Int
	Error     expvar.Int
	Abandoned expvar.Int
}

// Register counts dropped datagram by error cause.
func (d *DropCounters) Register(err error) {
	switch errors.Cause(err) {
	case ErrFrameShort:
		d.Short.Add(1)
	case schema.ErrUnknownSchema:
		d.Unknown.Add(1)
	case ErrAuth:
		d.Auth.Add(1)
	case schema.ErrSizeMismatch:
		d.Size.Add(1)
	case ErrReplay:
		d.Replay.Add(1)
	default:
		d.Other.Add(1)
	}
}

func (d *DropCounters) Total() int64 {
	return d.Short.Value() + d.Unknown.Value() + d.Auth.Value() +
		d.Size.Value() + d.Replay.Value() + d.Other.Value()
}

func (d *DropCounters) String() string {
	return fmt.Sprintf(`{"short":%d,"unknown":%d,"auth":%d,"size":%d,"replay":%d,"other":%d}`,
		d.Short.Value(), d.Unknown.Value(), d.Auth.Value(),
		d.Size.Value(), d.Replay.Value(), d.Other.Value())
}

func (f *ForwardCounters) String() string {
	return fmt.Sprintf(`{"ok":%d,"error":%d,"abandoned":%d}`,
		f.Ok.Value(), f.Error.Value(), f.Abandoned.Value())
}

func (ss *ServerStat) String() string {
	return fmt.Sprintf(`{"recv":%s,"accepted":%d,"drop":%s,"forward":%s}`,
		ss.Recv.String(), ss.Accepted.Value(), ss.Drop.String(), ss.Forward.String())
}

type ClientStat struct {
	Send  CountSizePair
	Error expvar.Int
}

func (cs *ClientStat) String() string {
	return fmt.Sprintf(`{"send":%s,"error":%d}`, cs.Send.String(), cs.Error.Value())
}

type CountSizePair struct {
	Count expvar.Int
	Size  expvar.Int
}

func (csp *CountSizePair) Register(size int) {
	csp.Count.Add(1)
	csp.Size.Add(int64(size))
}

func (csp *CountSizePair) String() string {
	return fmt.Sprintf(`{"count":%d,"size":%d}`, csp.Count.Value(), csp.Size.Value())
}
