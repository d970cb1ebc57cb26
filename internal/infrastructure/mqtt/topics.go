package mqtt

import "strings"

// DefaultTopicPrefix is used when mqtt.topic_prefix is empty.
const DefaultTopicPrefix = "feederpull"

// Topics builds the feederpull topic tree under a prefix:
//
//	{prefix}/status                       retained online/offline
//	{prefix}/run/started                  one per run
//	{prefix}/run/finished                 one per run
//	{prefix}/feeder/{circuit_id}/written  per feeder file
//	{prefix}/feeder/{circuit_id}/failed   per failed aggregation
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix, trimming surrounding slashes.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of the topic tree.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Status returns the retained status topic, also used for the Last Will.
func (t Topics) Status() string {
	return t.Prefix() + "/status"
}

// RunStarted returns the topic announcing a new run.
func (t Topics) RunStarted() string {
	return t.Prefix() + "/run/started"
}

// RunFinished returns the topic carrying a run's final counters.
func (t Topics) RunFinished() string {
	return t.Prefix() + "/run/finished"
}

// FeederWritten returns the topic for a successfully written feeder file.
func (t Topics) FeederWritten(circuitID string) string {
	return t.Prefix() + "/feeder/" + topicSegment(circuitID) + "/written"
}

// FeederFailed returns the topic for a feeder whose aggregation failed.
func (t Topics) FeederFailed(circuitID string) string {
	return t.Prefix() + "/feeder/" + topicSegment(circuitID) + "/failed"
}

// topicSegment makes an identifier safe to use as one topic level.
func topicSegment(id string) string {
	if id == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', 0:
			return '_'
		}
		return r
	}, id)
}
