package host

import (
	"time"

	evo "github.com/juoon/evo-sub000/core"
)

// Trace records one eval request handled by the server.
type Trace struct {
	Src         string
	Fingerprint string
	Result      evo.Value
	Output      string // text written by print
	Error       string // non-empty on error
	Duration    time.Duration
	Timestamp   string // RFC 3339
}

// ToValue converts a Trace to a dict for the traces op.
func (t *Trace) ToValue() evo.Value {
	m := map[string]evo.Value{
		"src":         evo.StringVal(t.Src),
		"fingerprint": evo.StringVal(t.Fingerprint),
		"output":      evo.StringVal(t.Output),
		"duration_us": evo.IntVal(t.Duration.Microseconds()),
		"timestamp":   evo.StringVal(t.Timestamp),
	}
	if t.Error != "" {
		m["error"] = evo.StringVal(t.Error)
		m["result"] = evo.NullVal()
	} else {
		m["error"] = evo.NullVal()
		m["result"] = t.Result
	}
	return evo.DictVal(m)
}
