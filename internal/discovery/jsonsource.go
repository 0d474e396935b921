package discovery

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/hostgate/hostgate/internal/logging"
)

// Container lifecycle label keys. These match what a deployment sets on its
// containers so the proxy can route to them:
//
//	hostgate.host    virtual host served by the container (the pool id)
//	hostgate.address host:port the proxy should dial
//	hostgate.weight  optional balancing weight
const (
	LabelHost    = "hostgate.host"
	LabelAddress = "hostgate.address"
	LabelWeight  = "hostgate.weight"
)

// containerEvent mirrors the JSON shape of `docker events --format '{{json .}}'`
type containerEvent struct {
	Type   string `json:"Type"`
	Action string `json:"Action"`
	Actor  struct {
		ID         string            `json:"ID"`
		Attributes map[string]string `json:"Attributes"`
	} `json:"Actor"`
}

// JSONSource decodes newline-delimited container lifecycle events from a
// reader (typically a pipe from the container runtime's event feed) into
// discovery events. It is runtime-agnostic beyond the JSON shape: anything
// that emits start/stop events with label attributes can feed it.
type JSONSource struct {
	r      io.Reader
	logger *logging.Logger
}

// NewJSONSource creates a source reading from r
func NewJSONSource(r io.Reader, logger *logging.Logger) *JSONSource {
	return &JSONSource{r: r, logger: logger}
}

// Events decodes the stream in a background goroutine
func (j *JSONSource) Events(ctx context.Context) (<-chan Event, error) {
	out := make(chan Event)

	go func() {
		defer close(out)

		scanner := bufio.NewScanner(j.r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var ce containerEvent
			if err := json.Unmarshal(line, &ce); err != nil {
				j.logger.Warn("event_decode_failed", "error", err.Error())
				continue
			}

			ev, ok := translate(ce)
			if !ok {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- ev:
			}
		}
		if err := scanner.Err(); err != nil {
			j.logger.Error("event_stream_read_failed", "error", err.Error())
		}
	}()

	return out, nil
}

// translate maps a container event onto a discovery event
func translate(ce containerEvent) (Event, bool) {
	if ce.Type != "container" {
		return Event{}, false
	}

	attrs := ce.Actor.Attributes
	address := attrs[LabelAddress]
	if address == "" {
		return Event{}, false
	}

	switch ce.Action {
	case "start":
		metadata := map[string]string{}
		if w := attrs[LabelWeight]; w != "" {
			metadata["weight"] = w
		}
		return Event{
			Kind:     BackendUp,
			PoolID:   attrs[LabelHost],
			Address:  address,
			Metadata: metadata,
		}, true

	case "die", "stop", "kill":
		return Event{Kind: BackendDown, Address: address}, true
	}

	return Event{}, false
}
