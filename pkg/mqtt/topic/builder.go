package topic

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrForeignTopic is returned by Parse for topics outside the builder's root.
	ErrForeignTopic = errors.New("topic outside root namespace")

	// ErrUnknownTopic is returned by Parse for topics under the root that match no channel.
	ErrUnknownTopic = errors.New("unknown topic")
)

// Builder constructs and parses topic strings under a fixed root.
type Builder struct {
	root string
}

// NewBuilder creates a Builder rooted at root (e.g. "roidota").
func NewBuilder(root string) *Builder {
	root = strings.Trim(root, "/")
	if root == "" {
		root = DefaultRoot
	}
	return &Builder{root: root}
}

// Root returns the namespace prefix without a trailing slash.
func (b *Builder) Root() string {
	return b.root
}

// Request returns the single topic every device announces itself on.
func (b *Builder) Request() string {
	return b.root + "/" + SegmentRequest
}

func (b *Builder) Status(deviceID string) string   { return b.build(SegmentStatus, deviceID) }
func (b *Builder) Logs(deviceID string) string     { return b.build(SegmentLogs, deviceID) }
func (b *Builder) Ack(deviceID string) string      { return b.build(SegmentAck, deviceID) }
func (b *Builder) Response(deviceID string) string { return b.build(SegmentResponse, deviceID) }
func (b *Builder) Command(deviceID string) string  { return b.build(SegmentCommand, deviceID) }

func (b *Builder) StatusWildcard() string { return b.build(SegmentStatus, Wildcard) }
func (b *Builder) LogsWildcard() string   { return b.build(SegmentLogs, Wildcard) }
func (b *Builder) AckWildcard() string    { return b.build(SegmentAck, Wildcard) }

// Shared wraps filter in a shared-subscription prefix so that several hub
// replicas in the same group split the inbound load. An empty group returns
// filter unchanged.
func Shared(group, filter string) string {
	if group == "" {
		return filter
	}
	return fmt.Sprintf("%s/%s/%s", SharePrefix, group, filter)
}

// Parse classifies topic and extracts the device identifier. Request topics
// carry no identifier in the path and yield an empty id.
func (b *Builder) Parse(topic string) (Kind, string, error) {
	rest, ok := strings.CutPrefix(topic, b.root+"/")
	if !ok {
		return KindUnknown, "", fmt.Errorf("%w: %s", ErrForeignTopic, topic)
	}

	if rest == SegmentRequest {
		return KindRequest, "", nil
	}

	segment, id, found := strings.Cut(rest, "/")
	if !found || id == "" || strings.Contains(id, "/") {
		return KindUnknown, "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}

	switch Kind(segment) {
	case KindStatus, KindLogs, KindAck, KindResponse, KindCommand:
		return Kind(segment), id, nil
	default:
		return KindUnknown, "", fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
}

// build constructs {root}/{segment}/{identifier}.
func (b *Builder) build(segment, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, segment, id)
}

// StripShare removes a "$share/<group>/" prefix from filter.
func StripShare(filter string) string {
	rest, ok := strings.CutPrefix(filter, SharePrefix+"/")
	if !ok {
		return filter
	}
	if _, f, found := strings.Cut(rest, "/"); found {
		return f
	}
	return filter
}

// Match reports whether topic matches filter, honoring the + and #
// wildcards. A $share prefix on filter is ignored.
func Match(filter, topic string) bool {
	filter = StripShare(filter)
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, Wildcard+MultiWildcard) {
		return false
	}

	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, part := range fp {
		if part == MultiWildcard {
			return true
		}
		if i >= len(tp) || (part != Wildcard && part != tp[i]) {
			return false
		}
	}
	return len(fp) == len(tp)
}
