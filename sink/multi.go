package sink

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/udpinsert/helpers"
	"github.com/temoto/udpinsert/tele"
)

// Multi writes to every sink concurrently and folds errors.
// Result is ErrRejected only if every failed sink rejected the batch.
type Multi []tele.Sink

var _ tele.Sink = Multi{}

func (ms Multi) Write(ctx context.Context, database string, points []tele.Point) error {
	switch len(ms) {
	case 0:
		return nil
	case 1:
		return ms[0].Write(ctx, database, points)
	}
	errs := make([]error, len(ms))
	var wg sync.WaitGroup
	wg.Add(len(ms))
	for i, s := range ms {
		go func(i int, s tele.Sink) {
			defer wg.Done()
			errs[i] = s.Write(ctx, database, points)
		}(i, s)
	}
	wg.Wait()
	nonNil := make([]error, 0, len(errs))
	rejected := 0
	for _, e := range errs {
		if e != nil {
			nonNil = append(nonNil, e)
			if IsRejected(e) {
				rejected++
			}
		}
	}
	if len(nonNil) == 0 {
		return nil
	}
	err := helpers.FoldErrors(nonNil)
	// batch is rejected only when no destination may accept it on retry
	if rejected == len(nonNil) {
		return errors.Annotatef(ErrRejected, "multi failed=%d/%d %v", len(nonNil), len(ms), err)
	}
	return errors.Annotatef(err, "multi failed=%d/%d", len(nonNil), len(ms))
}
