package risk

import (
	"strings"
	"time"
)

// ProtocolInfo is static risk metadata for one protocol.
type ProtocolInfo struct {
	Audits    int
	LastAudit time.Time
	Launched  time.Time
	// Tier is 1 for blue-chip, 3 for experimental. Zero means unknown.
	Tier int
}

// Metadata is keyed by lowercase protocol name.
type Metadata struct {
	Protocols map[string]ProtocolInfo
	Blacklist []string
}

func (m Metadata) protocol(name string) (ProtocolInfo, bool) {
	info, ok := m.Protocols[strings.ToLower(strings.TrimSpace(name))]
	return info, ok
}

func (m Metadata) blacklisted(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	for _, entry := range m.Blacklist {
		if strings.ToLower(strings.TrimSpace(entry)) == name {
			return true
		}
	}
	return false
}
