package tele

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/temoto/udpinsert/schema"
)

// Point is one measurement for time-series sink.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]uint64
	Time        uint64 // unix seconds, 0 = sink assigns
}

// Sink receives decoded records, owns persistence and transport.
// Receiver calls Write from separate goroutine with deadline in ctx,
// errors are logged and dropped.
type Sink interface {
	Write(ctx context.Context, database string, points []Point) error
}

type SinkFunc func(ctx context.Context, database string, points []Point) error

func (f SinkFunc) Write(ctx context.Context, database string, points []Point) error {
	return f(ctx, database, points)
}

type Noop struct{}

var _ Sink = Noop{} // compile-time interface test

func (Noop) Write(context.Context, string, []Point) error { return nil }

// PointsFromData makes one point per record in schema order, measurement is record name.
func PointsFromData(s *schema.Schema, data schema.Data, timestamp uint64) []Point {
	records := s.Records()
	points := make([]Point, 0, len(records))
	for _, r := range records {
		values, ok := data[r.Name]
		if !ok {
			continue
		}
		fields := make(map[string]uint64, len(values))
		for k, v := range values {
			fields[k] = v
		}
		points = append(points, Point{
			Measurement: r.Name,
			Tags:        map[string]string{},
			Fields:      fields,
			Time:        timestamp,
		})
	}
	return points
}

func (p *Point) String() string {
	keys := make([]string, 0, len(p.Fields))
	for k := range p.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(p.Measurement)
	for i, k := range keys {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%d", k, p.Fields[k])
	}
	return b.String()
}
