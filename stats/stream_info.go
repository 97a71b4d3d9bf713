package stats

import (
	"sync"
	"time"

	statsd "github.com/smira/go-statsd"
)

const (
	TagIPFamily = "ip_family"
	TagFrame    = "frame"

	TagIPFamilyIPv4 = "ipv4"
	TagIPFamilyIPv6 = "ipv6"

	TagAuthResultOK     = "ok"
	TagAuthResultFailed = "failed"
)

// connInfo is a per-connection record the processors keep between the
// opened and closed events.
type connInfo struct {
	tags      map[string]string
	startTime time.Time
}

func (c connInfo) T(key string) statsd.Tag {
	return statsd.StringTag(key, c.tags[key])
}

func (c *connInfo) Reset() {
	c.startTime = time.Time{}

	for k := range c.tags {
		delete(c.tags, k)
	}
}

var connInfoPool = sync.Pool{
	New: func() interface{} {
		return &connInfo{
			tags: make(map[string]string),
		}
	},
}

func acquireConnInfo() *connInfo {
	return connInfoPool.Get().(*connInfo) //nolint: forcetypeassert
}

func releaseConnInfo(info *connInfo) {
	info.Reset()
	connInfoPool.Put(info)
}

func ipFamilyTag(isIPv4 bool) string {
	if isIPv4 {
		return TagIPFamilyIPv4
	}

	return TagIPFamilyIPv6
}
