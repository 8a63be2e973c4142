package topic

// Standard MQTT wildcard definitions.
const (
	// Wildcard is the single-level wildcard "+".
	// It matches exactly one topic level.
	Wildcard = "+"

	// MultiWildcard is the multi-level wildcard "#".
	// It must be the last character in the topic filter.
	MultiWildcard = "#"

	// SharePrefix marks a shared subscription: $share/<group>/<filter>.
	SharePrefix = "$share"
)

// DefaultRoot is the namespace every device topic lives under.
const DefaultRoot = "roidota"

// Topic segments. These are the wire contract with device firmware.
const (
	// SegmentRequest is the device announcement / firmware request topic (Device -> Hub).
	// Structure: {root}/request
	SegmentRequest = "request"

	// SegmentStatus carries periodic telemetry (Device -> Hub).
	// Structure: {root}/status/{deviceID}
	SegmentStatus = "status"

	// SegmentLogs carries device log lines (Device -> Hub).
	// Structure: {root}/logs/{deviceID}
	SegmentLogs = "logs"

	// SegmentAck carries deployment acknowledgements (Device -> Hub).
	// Structure: {root}/ack/{deviceID}
	SegmentAck = "ack"

	// SegmentResponse carries the firmware response envelope (Hub -> Device).
	// Structure: {root}/response/{deviceID}
	SegmentResponse = "response"

	// SegmentCommand carries command envelopes (Hub -> Device).
	// Structure: {root}/cmd/{deviceID}
	SegmentCommand = "cmd"
)

// Kind identifies which inbound or outbound channel a topic belongs to.
type Kind string

const (
	KindUnknown  Kind = ""
	KindRequest  Kind = SegmentRequest
	KindStatus   Kind = SegmentStatus
	KindLogs     Kind = SegmentLogs
	KindAck      Kind = SegmentAck
	KindResponse Kind = SegmentResponse
	KindCommand  Kind = SegmentCommand
)
