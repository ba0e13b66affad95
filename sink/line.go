package sink

import (
	"bytes"
	"math"
	"time"

	influxdb "github.com/influxdata/influxdb1-client/v2"
	"github.com/juju/errors"
	"github.com/temoto/udpinsert/helpers"
	"github.com/temoto/udpinsert/tele"
)

const linePrecision = "s"

// MarshalLines formats points as influx line protocol, one line per point.
// Values that fit int64 carry `i` suffix, larger ones `u`.
// Time is unix seconds when set.
// Points the protocol can not express (no fields, time out of range) are skipped,
// returned error describes each of them while valid lines are still returned.
func MarshalLines(points []tele.Point) ([]byte, error) {
	var b bytes.Buffer
	errs := make([]error, 0)
	for i := range points {
		p := &points[i]
		pt, err := newLinePoint(p)
		if err != nil {
			errs = append(errs, errors.Annotatef(err, "skip measurement=%s", p.Measurement))
			continue
		}
		b.WriteString(pt.PrecisionString(linePrecision))
		b.WriteByte('\n')
	}
	return b.Bytes(), helpers.FoldErrors(errs)
}

func newLinePoint(p *tele.Point) (*influxdb.Point, error) {
	fields := make(map[string]interface{}, len(p.Fields))
	for k, v := range p.Fields {
		fields[k] = fieldValue(v)
	}
	if p.Time == 0 {
		return influxdb.NewPoint(p.Measurement, p.Tags, fields)
	}
	return influxdb.NewPoint(p.Measurement, p.Tags, fields, time.Unix(int64(p.Time), 0))
}

func fieldValue(v uint64) interface{} {
	if v > math.MaxInt64 {
		return v
	}
	return int64(v)
}

func hasTime(points []tele.Point) bool {
	for i := range points {
		if points[i].Time != 0 {
			return true
		}
	}
	return false
}
