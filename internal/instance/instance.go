package instance

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultConnectTimeout is used when an instance carries no positive override.
const DefaultConnectTimeout = 3 * time.Second

// Instance is a read-only snapshot of one checkable endpoint as known by the
// registry at the time it was fetched.
type Instance struct {
	GroupID        string        `json:"group_id"`
	MemberKey      string        `json:"member_key"`
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	Status         Status        `json:"status"`
}

// Key returns the flat "<group>/<member>" identity of the instance.
func (i Instance) Key() string {
	return Key(i.GroupID, i.MemberKey)
}

// Address returns host:port.
func (i Instance) Address() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

// Timeout returns the connect timeout override, or fallback when the
// override is unset or non-positive.
func (i Instance) Timeout(fallback time.Duration) time.Duration {
	if i.ConnectTimeout > 0 {
		return i.ConnectTimeout
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultConnectTimeout
}

// Checkable reports whether liveness checks apply to the instance.
// UNKNOWN and OFFLINE instances are administratively excluded.
func (i Instance) Checkable() bool {
	return i.Status == StatusUp || i.Status == StatusDown
}

// Key composes a group id and a member key into an instance key.
func Key(groupID, memberKey string) string {
	return groupID + "/" + memberKey
}

// SplitKey is the inverse of Key. The member part is everything after the
// last slash, so group ids may themselves be slash separated paths.
func SplitKey(key string) (groupID, memberKey string, ok bool) {
	idx := strings.LastIndex(key, "/")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", false
	}
	return key[:idx], key[idx+1:], true
}

// ParseMember splits a "host:port" member key.
func ParseMember(memberKey string) (host string, port int, err error) {
	host, portStr, err := net.SplitHostPort(memberKey)
	if err != nil {
		return "", 0, err
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// StatusChangeEvent is handed to the update pipeline once per observed
// transition.
type StatusChangeEvent struct {
	Key       string    `json:"key"`
	Status    Status    `json:"status"`
	Previous  Status    `json:"previous"`
	Attempts  int       `json:"attempts"`
	Timestamp time.Time `json:"timestamp"`
}
