package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"poolScope/internal/model"
	"poolScope/internal/risk"
)

// ParseWatchlist parses entries of the form chain:address[:protocol[:type]].
func ParseWatchlist(entries []string) ([]model.PoolRef, error) {
	refs := make([]model.PoolRef, 0, len(entries))
	for _, entry := range cleanStrings(entries) {
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 4 {
			return nil, fmt.Errorf("watch pool %q: want chain:address[:protocol[:type]]", entry)
		}
		ref := model.PoolRef{Chain: strings.TrimSpace(parts[0]), Address: strings.TrimSpace(parts[1])}
		if ref.Chain == "" || !common.IsHexAddress(ref.Address) {
			return nil, fmt.Errorf("watch pool %q: bad chain or address", entry)
		}
		if len(parts) > 2 {
			ref.Protocol = strings.TrimSpace(parts[2])
		}
		if len(parts) > 3 {
			hint, ok := model.ParsePoolType(parts[3])
			if !ok {
				return nil, fmt.Errorf("watch pool %q: unknown pool type %q", entry, parts[3])
			}
			ref.TypeHint = hint
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// RiskMetadata converts the risk section into scoring metadata.
func (c Config) RiskMetadata() (risk.Metadata, error) {
	meta := risk.Metadata{
		Protocols: make(map[string]risk.ProtocolInfo, len(c.Risk.Protocols)),
		Blacklist: cleanStrings(c.Risk.Blacklist),
	}
	for name, p := range c.Risk.Protocols {
		launched, err := ParseDate(p.Launched)
		if err != nil {
			return risk.Metadata{}, fmt.Errorf("risk protocol %s: launched: %w", name, err)
		}
		lastAudit, err := ParseDate(p.LastAudit)
		if err != nil {
			return risk.Metadata{}, fmt.Errorf("risk protocol %s: last_audit: %w", name, err)
		}
		meta.Protocols[strings.ToLower(name)] = risk.ProtocolInfo{
			Audits:    p.Audits,
			LastAudit: lastAudit,
			Launched:  launched,
			Tier:      p.Tier,
		}
	}
	return meta, nil
}

// ParseDate parses unix seconds, RFC3339 or YYYY-MM-DD. Empty input yields the zero time.
func ParseDate(input string) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseInt(input, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(val, 0).UTC(), nil
	}

	if tm, err := time.Parse(time.RFC3339, input); err == nil {
		return tm.UTC(), nil
	}
	return time.Parse(time.DateOnly, input)
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
