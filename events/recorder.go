package events

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Proto renders the event as a protobuf Struct so it can go through
// protojson (the recorder) or logger.DebugJSON.
func (e Event) Proto() *structpb.Struct {
	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			"kind":    structpb.NewStringValue(string(e.Kind)),
			"payload": structpb.NewStringValue(e.Payload),
			"time":    structpb.NewStringValue(e.Time.UTC().Format(time.RFC3339Nano)),
			"seq":     structpb.NewNumberValue(float64(e.Seq)),
		},
	}
}

// EventFromProto is the inverse of Event.Proto.
func EventFromProto(s *structpb.Struct) Event {
	f := s.GetFields()
	e := Event{
		Kind:    Kind(f["kind"].GetStringValue()),
		Payload: f["payload"].GetStringValue(),
		Seq:     uint64(f["seq"].GetNumberValue()),
	}
	if ts := f["time"].GetStringValue(); ts != "" {
		e.Time, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return e
}

// Recorder writes one compact protojson object per line. It is a diagnostic
// trace, not state: nothing reads it back on startup. ReadRecording loads it
// for replay.
type Recorder struct {
	mu  sync.Mutex
	w   io.Writer
	opt protojson.MarshalOptions
}

// NewRecorder returns a Recorder writing to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: w, opt: protojson.MarshalOptions{}}
}

// Observe implements Observer.
func (r *Recorder) Observe(e Event) error {
	b, err := r.opt.Marshal(e.Proto())
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.w.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// ReadRecording parses a file written by Recorder. Blank lines are skipped.
func ReadRecording(r io.Reader) ([]Event, error) {
	var out []Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		s := &structpb.Struct{}
		if err := protojson.Unmarshal(sc.Bytes(), s); err != nil {
			return out, fmt.Errorf("events: recording line %d: %w", line, err)
		}
		out = append(out, EventFromProto(s))
	}
	return out, sc.Err()
}
