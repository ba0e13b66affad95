package sink

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/udpinsert/log2"
	"github.com/temoto/udpinsert/tele"
)

const (
	DefaultInfluxTimeout = 5 * time.Second
	influxContentType    = "application/x-www-form-urlencoded"
	influxErrorBodyLimit = 512
)

// Influx posts points to <URL>?db=<database> of InfluxDB 1.x write endpoint.
type Influx struct {
	log    *log2.Log
	url    *url.URL
	client *http.Client
}

type InfluxOptions struct {
	Log       *log2.Log
	URL       string // http://host:8086/write
	Timeout   time.Duration
	Transport http.RoundTripper // default http.DefaultTransport
}

var _ tele.Sink = &Influx{}

func NewInflux(opt InfluxOptions) (*Influx, error) {
	u, err := url.Parse(opt.URL)
	if err != nil {
		return nil, errors.Annotatef(err, "influx url=%s", opt.URL)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, errors.NotValidf("influx url=%s scheme", opt.URL)
	}
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultInfluxTimeout
	}
	return &Influx{
		log: opt.Log,
		url: u,
		client: &http.Client{
			Timeout:   opt.Timeout,
			Transport: opt.Transport,
		},
	}, nil
}

func (self *Influx) Write(ctx context.Context, database string, points []tele.Point) error {
	if len(points) == 0 {
		return nil
	}
	u := *self.url
	q := u.Query()
	q.Set("db", database)
	if hasTime(points) {
		q.Set("precision", "s")
	}
	u.RawQuery = q.Encode()

	body, err := MarshalLines(points)
	if err != nil {
		self.log.Errorf("influx database=%s %v", database, err)
	}
	if len(body) == 0 {
		return nil
	}
	req, err := http.NewRequest(http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return errors.Annotate(err, "influx request")
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", influxContentType)

	resp, err := self.client.Do(req)
	if err != nil {
		return errors.Annotatef(err, "influx post database=%s", database)
	}
	defer resp.Body.Close()
	self.log.Debugf("influx post database=%s points=%d status=%s", database, len(points), resp.Status)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := ioutil.ReadAll(io.LimitReader(resp.Body, influxErrorBodyLimit))
		if influxRejected(resp.StatusCode) {
			return errors.Annotatef(ErrRejected, "influx post database=%s status=%s body=%s", database, resp.Status, bytes.TrimSpace(msg))
		}
		return errors.Errorf("influx post database=%s status=%s body=%s", database, resp.Status, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(ioutil.Discard, resp.Body)
	return nil
}

// 4xx means bad request (line protocol parse error, unknown database),
// except timeout and rate limit which are worth retry.
func influxRejected(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status <= 499
}
