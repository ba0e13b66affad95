package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/udpinsert/log2"
	"github.com/temoto/udpinsert/tele"
)

const DefaultMqttTopicPrefix = "udpinsert"

type PublishFunc func(ctx context.Context, topic string, payload []byte) error

// Mqtt publishes each point as line protocol to <prefix>/<database>/<measurement>.
type Mqtt struct {
	log     *log2.Log
	m       mqtt.Client
	prefix  string
	publish PublishFunc
}

type MqttOptions struct {
	Log         *log2.Log
	Broker      string // tcp://host:1883
	ClientID    string
	TopicPrefix string
	Qos         byte
	Timeout     time.Duration
	// Publish replaces paho client, used in tests.
	Publish PublishFunc
}

var _ tele.Sink = &Mqtt{}

func NewMqtt(opt MqttOptions) (*Mqtt, error) {
	self := &Mqtt{
		log:     opt.Log,
		prefix:  strings.TrimSuffix(opt.TopicPrefix, "/"),
		publish: opt.Publish,
	}
	if self.prefix == "" {
		self.prefix = DefaultMqttTopicPrefix
	}
	if self.publish != nil {
		return self, nil
	}

	if opt.Broker == "" {
		return nil, errors.NotValidf("mqtt broker empty")
	}
	if opt.ClientID == "" {
		opt.ClientID = fmt.Sprintf("udpinsert-%d", time.Now().UnixNano()%100000)
	}
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultInfluxTimeout
	}
	if opt.Log != nil {
		mqtt.ERROR = opt.Log
		mqtt.CRITICAL = opt.Log
		mqtt.WARN = opt.Log
	}
	mopt := mqtt.NewClientOptions().
		AddBroker(opt.Broker).
		SetClientID(opt.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(opt.Timeout).
		SetWriteTimeout(opt.Timeout).
		SetOnConnectHandler(func(mqtt.Client) { self.log.Infof("mqtt connect broker=%s", opt.Broker) }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			self.log.Infof("mqtt disconnect broker=%s err=%v", opt.Broker, err)
		})
	self.m = mqtt.NewClient(mopt)
	token := self.m.Connect()
	if !token.WaitTimeout(opt.Timeout) {
		return nil, errors.Timeoutf("mqtt connect broker=%s", opt.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Annotatef(err, "mqtt connect broker=%s", opt.Broker)
	}
	qos := opt.Qos
	self.publish = func(ctx context.Context, topic string, payload []byte) error {
		token := self.m.Publish(topic, qos, false, payload)
		select {
		case <-waitToken(token):
			return token.Error()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return self, nil
}

func (self *Mqtt) Topic(database, measurement string) string {
	return self.prefix + "/" + database + "/" + measurement
}

func (self *Mqtt) Write(ctx context.Context, database string, points []tele.Point) error {
	for i := range points {
		p := &points[i]
		topic := self.Topic(database, p.Measurement)
		payload, err := MarshalLines(points[i : i+1])
		if err != nil {
			self.log.Errorf("mqtt topic=%s %v", topic, err)
			continue
		}
		if err = self.publish(ctx, topic, payload); err != nil {
			return errors.Annotatef(err, "mqtt publish topic=%s", topic)
		}
	}
	return nil
}

func (self *Mqtt) Close() error {
	if self.m != nil {
		self.m.Disconnect(250)
	}
	return nil
}

func waitToken(t mqtt.Token) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		t.Wait()
		close(ch)
	}()
	return ch
}
