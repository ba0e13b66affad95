package config

import (
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/udpinsert/helpers"
	"github.com/temoto/udpinsert/log2"
	"github.com/temoto/udpinsert/schema"
)

const (
	DefaultListen          = "udp://0.0.0.0:9999"
	DefaultMaxDeltaSec     = 10
	DefaultForwardSec      = 5
	DefaultShutdownSec     = 5
	DefaultInfluxTimeout   = 5
	DefaultMqttTopicPrefix = "udpinsert"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include"`

	Listen             []string `hcl:"listen"`
	MaxDeltaSec        int      `hcl:"max_delta_sec"`
	ForwardTimeoutSec  int      `hcl:"forward_timeout_sec"`
	ShutdownTimeoutSec int      `hcl:"shutdown_timeout_sec"`
	LogDebug           bool     `hcl:"log_debug"`
	AdminListen        string   `hcl:"admin_listen"`
	SchemaFiles        []string `hcl:"schema_files"`

	Sink struct {
		InfluxURL        string `hcl:"influx_url"`
		InfluxTimeoutSec int    `hcl:"influx_timeout_sec"`
		MqttBroker       string `hcl:"mqtt_broker"`
		MqttTopicPrefix  string `hcl:"mqtt_topic_prefix"`
		MqttClientId     string `hcl:"mqtt_client_id"`
		SpoolPath        string `hcl:"spool_path"`
	} `hcl:"sink"`

	Replay struct {
		RedisAddr   string `hcl:"redis_addr"`
		RedisPrefix string `hcl:"redis_prefix"`
		RedisDB     int    `hcl:"redis_db"`
	} `hcl:"replay"`

	Schema []schema.Block `hcl:"schema"`
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) ListenURLs() []string {
	if len(c.Listen) == 0 {
		return []string{DefaultListen}
	}
	return c.Listen
}
func (c *Config) MaxDeltaT() int {
	if c.MaxDeltaSec <= 0 {
		return DefaultMaxDeltaSec
	}
	return c.MaxDeltaSec
}
func (c *Config) ForwardTimeout() time.Duration {
	return helpers.IntSecondDefault(c.ForwardTimeoutSec, DefaultForwardSec*time.Second)
}
func (c *Config) ShutdownTimeout() time.Duration {
	return helpers.IntSecondDefault(c.ShutdownTimeoutSec, DefaultShutdownSec*time.Second)
}
func (c *Config) InfluxTimeout() time.Duration {
	return helpers.IntSecondDefault(c.Sink.InfluxTimeoutSec, DefaultInfluxTimeout*time.Second)
}
func (c *Config) MqttTopicPrefix() string {
	if c.Sink.MqttTopicPrefix == "" {
		return DefaultMqttTopicPrefix
	}
	return c.Sink.MqttTopicPrefix
}

// Descriptions converts inline schema blocks. Broken blocks are skipped and reported in error.
func (c *Config) Descriptions() ([]schema.Description, error) {
	ds := make([]schema.Description, 0, len(c.Schema))
	errs := make([]error, 0)
	for i := range c.Schema {
		b := &c.Schema[i]
		d, err := b.Description("config schema=" + b.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		ds = append(ds, d)
	}
	return ds, helpers.FoldErrors(errs)
}

// Registry builds schema registry from inline blocks and schema_files globs.
// Valid schemas are registered even if others fail, error lists all failures.
func (c *Config) Registry(log *log2.Log) (*schema.Registry, error) {
	r := schema.NewRegistry()
	errs := make([]error, 0)
	ds, err := c.Descriptions()
	if err != nil {
		errs = append(errs, err)
	}
	if err = r.AddAll(ds); err != nil {
		errs = append(errs, err)
	}
	if len(c.SchemaFiles) != 0 {
		if err = schema.LoadGlob(r, log, c.SchemaFiles...); err != nil {
			errs = append(errs, err)
		}
	}
	return r, helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		// content is not logged, it may contain secrets
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig merges sources in order, later values override scalars, lists append.
// With OsFullReader, includes are relative to directory of first name.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.NotValidf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, Source{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
