package schema

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/udpinsert/helpers"
	"github.com/temoto/udpinsert/log2"
)

const (
	FormatJSON = "json"
	FormatTOML = "toml"
	FormatHCL  = "hcl"
)

// Block is HCL form of Description for `schema "name" { ... }` in main config.
//
//   schema "temp" {
//     identifier = [1, 1, 1]
//     secret     = "topsecret"
//     database   = "data"
//     record "temp" { fields = ["c:uint16"] }
//   }
type Block struct {
	Name        string        `hcl:"name,key"`
	Identifier  []int         `hcl:"identifier"`
	Secret      string        `hcl:"secret"`
	SecretBytes []int         `hcl:"secret_bytes"`
	Database    string        `hcl:"database"`
	Records     []BlockRecord `hcl:"record"`
}

// hclDescription is root of .hcl format file, Block without name.
// hcl can not decode document root into struct with `name,key` field.
type hclDescription struct {
	Identifier  []int         `hcl:"identifier"`
	Secret      string        `hcl:"secret"`
	SecretBytes []int         `hcl:"secret_bytes"`
	Database    string        `hcl:"database"`
	Records     []BlockRecord `hcl:"record"`
}

type BlockRecord struct {
	Name   string   `hcl:"name,key"`
	Fields []string `hcl:"fields"`
}

func (b *Block) Description(source string) (Description, error) {
	hd := hclDescription{
		Identifier:  b.Identifier,
		Secret:      b.Secret,
		SecretBytes: b.SecretBytes,
		Database:    b.Database,
		Records:     b.Records,
	}
	return hd.description(source)
}

// Fields stay nil without record blocks, so Build reports missing "fields".
func (b *hclDescription) description(source string) (Description, error) {
	d := Description{
		Database: b.Database,
		Source:   source,
	}
	if b.Identifier != nil {
		if err := d.Identifier.setInts(b.Identifier); err != nil {
			return d, d.annotate(errors.Annotate(err, "identifier"))
		}
	}
	switch {
	case b.Secret != "" && b.SecretBytes != nil:
		return d, d.annotate(errors.Annotate(ErrConfig, "secret and secret_bytes are mutually exclusive"))
	case b.Secret != "":
		d.Secret = Bytes(b.Secret)
	case b.SecretBytes != nil:
		if err := d.Secret.setInts(b.SecretBytes); err != nil {
			return d, d.annotate(errors.Annotate(err, "secret_bytes"))
		}
	}
	for _, br := range b.Records {
		rd := RecordDescription{Name: br.Name, Fields: make([]FieldDescription, 0, len(br.Fields))}
		for _, spec := range br.Fields {
			fd, err := ParseFieldSpec(spec)
			if err != nil {
				return d, d.annotate(errors.Annotatef(err, "record=%s", br.Name))
			}
			rd.Fields = append(rd.Fields, fd)
		}
		d.Fields = append(d.Fields, rd)
	}
	return d, nil
}

type tomlDescription struct {
	Identifier Bytes        `toml:"identifier"`
	Secret     Bytes        `toml:"secret"`
	Database   string       `toml:"database"`
	Records    []tomlRecord `toml:"record"`
}

type tomlRecord struct {
	Name   string     `toml:"name"`
	Fields [][]string `toml:"fields"`
}

// ParseDescription decodes one schema document in given format.
func ParseDescription(format string, b []byte, source string) (Description, error) {
	d := Description{Source: source}
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(b, &d); err != nil {
			return d, d.annotate(errors.Annotate(err, "json"))
		}
		d.Source = source
		return d, nil

	case FormatTOML:
		var td tomlDescription
		if _, err := toml.Decode(string(b), &td); err != nil {
			return d, d.annotate(errors.Annotate(err, "toml"))
		}
		d.Identifier, d.Secret, d.Database = td.Identifier, td.Secret, td.Database
		for _, tr := range td.Records {
			rd := RecordDescription{Name: tr.Name, Fields: make([]FieldDescription, 0, len(tr.Fields))}
			for _, pair := range tr.Fields {
				if len(pair) != 2 {
					return d, d.annotate(errors.Annotatef(ErrConfig, "record=%s field=%v expected [name, type]", tr.Name, pair))
				}
				rd.Fields = append(rd.Fields, FieldDescription{Name: pair[0], Type: pair[1]})
			}
			d.Fields = append(d.Fields, rd)
		}
		return d, nil

	case FormatHCL:
		var hd hclDescription
		if err := hcl.Unmarshal(b, &hd); err != nil {
			return d, d.annotate(errors.Annotate(err, "hcl"))
		}
		return hd.description(source)
	}
	return d, errors.NotSupportedf("schema format=%s source=%s", format, source)
}

func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".js":
		return FormatJSON
	case ".toml":
		return FormatTOML
	case ".hcl":
		return FormatHCL
	}
	return ""
}

func ReadDescriptionFile(path string) (Description, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return Description{Source: path}, errors.Annotatef(err, "read schema file")
	}
	return ParseDescription(FormatFromPath(path), b, path)
}

// LoadGlob reads and registers schema files matching patterns.
// One broken file does not prevent loading others, all errors are returned folded.
func LoadGlob(r *Registry, log *log2.Log, patterns ...string) error {
	errs := make([]error, 0)
	for _, pattern := range patterns {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			errs = append(errs, errors.Annotatef(err, "pattern=%s", pattern))
			continue
		}
		sort.Strings(paths)
		for _, path := range paths {
			log.Infof("add message format from file=%s", path)
			d, err := ReadDescriptionFile(path)
			if err == nil {
				_, err = r.AddDescription(d)
			}
			if err != nil {
				log.Errorf("schema file=%s err=%v", path, err)
				errs = append(errs, err)
			}
		}
	}
	return helpers.FoldErrors(errs)
}
