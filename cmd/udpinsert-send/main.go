// Test sender: fills every field of schema with deterministic fake value and sends datagrams.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/udpinsert/log2"
	"github.com/temoto/udpinsert/schema"
	telenet "github.com/temoto/udpinsert/tele/net"
)

func main() {
	flagURL := flag.String("url", "udp://127.0.0.1:9999", "receiver address")
	flagFormat := flag.String("format", "", "schema file .json .toml .hcl")
	flagCount := flag.Int("count", 1, "number of datagrams, 0 = until killed")
	flagInterval := flag.Duration("interval", time.Second, "delay between datagrams")
	flagDebug := flag.Bool("debug", false, "")
	flag.Parse()

	log := log2.NewStderr(log2.LInfo)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	}
	if *flagDebug {
		log.SetLevel(log2.LDebug)
	}
	if *flagFormat == "" {
		log.Fatal("-format required")
	}

	d, err := schema.ReadDescriptionFile(*flagFormat)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	s, err := d.Build()
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	data := FakeData(s)

	cli, err := telenet.NewClient(&telenet.ClientOptions{Log: log, PacketURL: *flagURL})
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	defer cli.Close()

	ctx := context.Background()
	for i := 0; *flagCount == 0 || i < *flagCount; i++ {
		if i != 0 {
			time.Sleep(*flagInterval)
		}
		m, err := cli.Send(ctx, s, data, cli.NextNonce())
		if err != nil {
			log.Errorf("send err=%v", err)
			continue
		}
		log.Infof("sent %s", m.String())
	}
	log.Infof("stat=%s", cli.Stat().String())
}

// FakeData sets each field to sum of bytes of record and field names modulo 0xff.
func FakeData(s *schema.Schema) schema.Data {
	data := make(schema.Data)
	for _, r := range s.Records() {
		values := make(schema.Values, len(r.Fields))
		for _, f := range r.Fields {
			sum := 0
			for _, b := range []byte(r.Name + f.Name) {
				sum += int(b)
			}
			values[f.Name] = uint64(sum % 0xff)
		}
		data[r.Name] = values
	}
	return data
}
