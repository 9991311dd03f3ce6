// Package document implements the Bluesky-derived document taxonomy that is
// the wire format between acquisition and storage (spec.md §3.2, §4.5).
// Documents are value types: emitting one is by ownership transfer or copy,
// and no document ever points to another by pointer — cross-references are
// always by UID. Field names are lowercase underscore to match spec.md §6.1
// directly on the wire.
package document

import (
	"time"

	"github.com/google/uuid"
)

// NewRunUID returns a fresh 128-bit run identifier rendered as a lowercase
// hyphenated string (spec.md §3.1, §6.1).
func NewRunUID() string { return uuid.NewString() }

// NewDocUID returns a fresh document identifier. Every document has one
// except Start, whose UID coincides with its Run UID (spec.md §3.1).
func NewDocUID() string { return uuid.NewString() }

// NowNS returns the current time as nanoseconds since the Unix epoch, the
// timestamp unit used throughout the document model (spec.md §6.1).
func NowNS() int64 { return time.Now().UnixNano() }

// ExitStatus is Stop's terminal classification.
type ExitStatus string

const (
	ExitSuccess ExitStatus = "success"
	ExitAbort   ExitStatus = "abort"
	ExitFail    ExitStatus = "fail"
)

// Start opens a run. Its UID is the run's UID (spec.md §3.1).
type Start struct {
	UID       string            `json:"uid"`
	PlanType  string            `json:"plan_type"`
	PlanName  string            `json:"plan_name"`
	PlanArgs  map[string]string `json:"plan_args"`
	Metadata  map[string]string `json:"metadata"`
	Hints     []string          `json:"hints"`
	TimeNS    int64             `json:"time_ns"`
}

// Manifest snapshots device parameters at run start.
type Manifest struct {
	UID      string                       `json:"uid"`
	RunUID   string                       `json:"run_uid"`
	Devices  map[string]map[string]string `json:"devices"` // device id -> param name -> value
	TimeNS   int64                        `json:"time_ns"`
}

// DType is a data-key's declared dtype (spec.md §3.2).
type DType string

const (
	DTypeNumber  DType = "number"
	DTypeInteger DType = "integer"
	DTypeString  DType = "string"
	DTypeArray   DType = "array"
)

// DataKey describes one field's schema within a Descriptor.
type DataKey struct {
	DType     DType    `json:"dtype"`
	Shape     []int    `json:"shape,omitempty"`
	Source    string   `json:"source"` // device ID
	Unit      string   `json:"unit"`
	Precision *int     `json:"precision,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
}

// Descriptor declares the schema of one measurement stream within a run.
type Descriptor struct {
	UID          string             `json:"uid"`
	RunUID       string             `json:"run_uid"`
	StreamName   string             `json:"stream_name"`
	DataKeys     map[string]DataKey `json:"data_keys"`
	DeviceConfig map[string]map[string]string `json:"device_config"`
	TimeNS       int64              `json:"time_ns"`
}

// Event carries one tuple of measurements within a stream.
type Event struct {
	UID           string             `json:"uid"`
	RunUID        string             `json:"run_uid"`
	DescriptorUID string             `json:"descriptor_uid"`
	SeqNum        int                `json:"seq_num"`
	TimeNS        int64              `json:"time_ns"`
	Data          map[string]float64 `json:"data"`
	Timestamps    map[string]int64   `json:"timestamps"`
	Positions     map[string]float64 `json:"positions"`
}

// Stop closes a run.
type Stop struct {
	UID        string     `json:"uid"`
	RunUID     string     `json:"run_uid"`
	ExitStatus ExitStatus `json:"exit_status"`
	Reason     string     `json:"reason"`
	TimeNS     int64      `json:"time_ns"`
	NumEvents  int        `json:"num_events"`
}

// Kind tags a document's wire type, matching spec.md §6.1.
type Kind string

const (
	KindStart      Kind = "start"
	KindManifest   Kind = "manifest"
	KindDescriptor Kind = "descriptor"
	KindEvent      Kind = "event"
	KindStop       Kind = "stop"
)

// Envelope is the self-describing record spec.md §6.1 puts on the wire: a
// type tag plus a payload matching one of the document kinds above.
type Envelope struct {
	Kind    Kind        `json:"kind"`
	Payload interface{} `json:"payload"`
}
