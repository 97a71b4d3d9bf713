package stats

import (
	"fmt"
	"strings"
	"time"

	statsd "github.com/smira/go-statsd"

	"github.com/quillvault/syncwire/events"
	"github.com/quillvault/syncwire/synclib"
)

type statsdProcessor struct {
	conns  map[string]*connInfo
	client *statsd.Client
}

func (s statsdProcessor) EventConnectionOpened(evt synclib.EventConnectionOpened) {
	info := acquireConnInfo()
	info.startTime = time.Now()
	info.tags[TagIPFamily] = ipFamilyTag(evt.RemoteIP.To4() != nil)

	s.conns[evt.ConnID()] = info

	s.client.GaugeDelta(MetricClientConnections, 1, info.T(TagIPFamily))
}

func (s statsdProcessor) EventConnectionClosed(evt synclib.EventConnectionClosed) {
	info, ok := s.conns[evt.ConnID()]
	if !ok {
		return
	}

	defer func() {
		delete(s.conns, evt.ConnID())
		releaseConnInfo(info)
	}()

	if !info.startTime.IsZero() {
		s.client.PrecisionTiming(MetricSessionDuration, time.Since(info.startTime))
	}

	s.client.GaugeDelta(MetricClientConnections, -1, info.T(TagIPFamily))

	if info.tags[tagAuthenticated] != "" {
		s.client.GaugeDelta(MetricAuthenticatedSessions, -1)
	}
}

func (s statsdProcessor) EventAuthenticated(evt synclib.EventAuthenticated) {
	s.client.Incr(MetricAuthResults, 1, statsd.StringTag(TagAuthResult, TagAuthResultOK))

	info, ok := s.conns[evt.ConnID()]
	if !ok {
		return
	}

	info.tags[tagAuthenticated] = TagAuthResultOK

	s.client.GaugeDelta(MetricAuthenticatedSessions, 1)
}

func (s statsdProcessor) EventAuthFailed(_ synclib.EventAuthFailed) {
	s.client.Incr(MetricAuthResults, 1, statsd.StringTag(TagAuthResult, TagAuthResultFailed))
}

func (s statsdProcessor) EventRateLimited(_ synclib.EventRateLimited) {
	s.client.Incr(MetricRateLimited, 1)
}

func (s statsdProcessor) EventConcurrencyLimited(_ synclib.EventConcurrencyLimited) {
	s.client.Incr(MetricConcurrencyLimited, 1)
}

func (s statsdProcessor) EventReplayAttack(_ synclib.EventReplayAttack) {
	s.client.Incr(MetricReplayAttacks, 1)
}

func (s statsdProcessor) EventBroadcast(evt synclib.EventBroadcast) {
	frame := statsd.StringTag(TagFrame, evt.MessageType)

	s.client.Incr(MetricBroadcasts, 1, frame)
	s.client.Incr(MetricBroadcastDeliveries, int64(evt.Delivered), frame)
}

func (s statsdProcessor) Shutdown() {
	for k, v := range s.conns {
		releaseConnInfo(v)
		delete(s.conns, k)
	}
}

// StatsdFactory is a factory of observers which send events to a
// statsd daemon.
type StatsdFactory struct {
	client *statsd.Client
}

// Close stops sending metrics and flushes a client buffer.
func (s StatsdFactory) Close() error {
	return s.client.Close() //nolint: wrapcheck
}

// Make builds a new observer.
func (s StatsdFactory) Make() events.Observer {
	return statsdProcessor{
		conns:  make(map[string]*connInfo),
		client: s.client,
	}
}

// NewStatsd builds a factory which delivers metrics to a statsd daemon
// on a given UDP address. tagFormat is either 'datadog', 'influxdb' or
// 'graphite'.
func NewStatsd(address, metricPrefix, tagFormat string) (StatsdFactory, error) {
	options := []statsd.Option{
		statsd.MetricPrefix(metricPrefix),
	}

	switch strings.ToLower(tagFormat) {
	case "datadog":
		options = append(options, statsd.TagStyle(statsd.TagFormatDatadog))
	case "influxdb":
		options = append(options, statsd.TagStyle(statsd.TagFormatInfluxDB))
	case "graphite":
		options = append(options, statsd.TagStyle(statsd.TagFormatGraphite))
	default:
		return StatsdFactory{}, fmt.Errorf("unknown tag format %s", tagFormat)
	}

	return StatsdFactory{
		client: statsd.NewClient(address, options...),
	}, nil
}
