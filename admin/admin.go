// Package admin serves read-only HTTP introspection of running receiver.
package admin

import (
	"encoding/hex"
	"encoding/json"
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/temoto/udpinsert/log2"
	"github.com/temoto/udpinsert/schema"
)

type Options struct {
	Log      *log2.Log
	Registry *schema.Registry
	// Stats are rendered under their keys in /stats, values must be JSON.
	Stats      map[string]fmt.Stringer
	LastAccept func() time.Time
}

type schemaView struct {
	Identifier string       `json:"identifier"`
	Database   string       `json:"database"`
	Size       int          `json:"size"`
	Records    []recordView `json:"records"`
}

type recordView struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

func NewRouter(opt Options) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/stats", opt.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/schemas", opt.handleSchemas).Methods(http.MethodGet)
	r.HandleFunc("/schemas/{identifier:[0-9a-fA-F]{6}}", opt.handleSchema).Methods(http.MethodGet)
	r.HandleFunc("/health", opt.handleHealth).Methods(http.MethodGet)
	r.Handle("/debug/vars", expvar.Handler())
	return r
}

// PublishStats registers stats in expvar, visible in /debug/vars.
// expvar panics on duplicate names, so call once per process.
func PublishStats(prefix string, stats map[string]fmt.Stringer) {
	for k, v := range stats {
		v := v
		expvar.Publish(prefix+k, expvar.Func(func() interface{} { return json.RawMessage(v.String()) }))
	}
}

func (opt *Options) handleStats(w http.ResponseWriter, r *http.Request) {
	keys := make([]string, 0, len(opt.Stats))
	for k := range opt.Stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i != 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q:%s", k, opt.Stats[k].String())
	}
	b.WriteByte('}')
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(b.String()))
}

func (opt *Options) handleSchemas(w http.ResponseWriter, r *http.Request) {
	ss := opt.Registry.Schemas()
	views := make([]schemaView, 0, len(ss))
	for _, s := range ss {
		views = append(views, newSchemaView(s))
	}
	opt.writeJSON(w, views)
}

func (opt *Options) handleSchema(w http.ResponseWriter, r *http.Request) {
	// route pattern guarantees 6 hex digits
	b, _ := hex.DecodeString(mux.Vars(r)["identifier"])
	id, _ := schema.IdentifierFromBytes(b)
	s, err := opt.Registry.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	opt.writeJSON(w, newSchemaView(s))
}

func (opt *Options) handleHealth(w http.ResponseWriter, r *http.Request) {
	last := time.Time{}
	if opt.LastAccept != nil {
		last = opt.LastAccept()
	}
	resp := struct {
		Schemas    int    `json:"schemas"`
		LastAccept string `json:"last_accept,omitempty"`
	}{Schemas: opt.Registry.Len()}
	if !last.IsZero() {
		resp.LastAccept = last.UTC().Format(time.RFC3339)
	}
	opt.writeJSON(w, resp)
}

func (opt *Options) writeJSON(w http.ResponseWriter, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		opt.Log.Errorf("admin json err=%v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
}

func newSchemaView(s *schema.Schema) schemaView {
	v := schemaView{
		Identifier: s.Identifier().String(),
		Database:   s.Database(),
		Size:       s.Size(),
	}
	for _, r := range s.Records() {
		rv := recordView{Name: r.Name, Fields: make([]string, 0, len(r.Fields))}
		for _, f := range r.Fields {
			rv.Fields = append(rv.Fields, f.Name+":"+f.Type.String())
		}
		v.Records = append(v.Records, rv)
	}
	return v
}
