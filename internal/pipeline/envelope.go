package pipeline

import (
	json "github.com/goccy/go-json"

	"github.com/JonMunkholm/connectorgw/internal/connector"
	"github.com/JonMunkholm/connectorgw/internal/core"
)

// StatusOK is the status of a successful envelope.
const StatusOK = "ok"

// Envelope is the outcome of a run. Data is set only when Status is "ok";
// Message only otherwise.
type Envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// OK reports whether the run succeeded.
func (e Envelope) OK() bool {
	return e.Status == StatusOK
}

// Failure builds the envelope for err.
func Failure(err error) Envelope {
	kind := core.KindOf(err)
	msg := err.Error()
	if kind == core.KindInternal {
		msg = core.FormatUserError(err)
	}
	return Envelope{Status: string(kind), Message: msg}
}

// Success renders exports: a single export becomes its row array, several
// become an object keyed by export name in declaration order.
func Success(exports connector.Ordered[core.Projection]) (Envelope, error) {
	var (
		data []byte
		err  error
	)
	if exports.Len() == 1 {
		p, _ := exports.Get(exports.Keys()[0])
		data, err = json.Marshal(p)
	} else {
		data, err = json.Marshal(exports)
	}
	if err != nil {
		return Envelope{}, core.Wrap(core.KindInternal, "encode exports", err)
	}
	return Envelope{Status: StatusOK, Data: data}, nil
}
