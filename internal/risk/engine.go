// Package risk scores pools on six weighted factors. Higher scores are safer.
package risk

import (
	"fmt"
	"math"
	"sort"
	"time"

	"poolScope/internal/model"
)

const (
	FactorTVLStability      = "tvl_stability"
	FactorProtocolAge       = "protocol_age"
	FactorAuditStatus       = "audit_status"
	FactorConcentration     = "concentration"
	FactorAPYSustainability = "apy_sustainability"
	FactorContractTier      = "contract_tier"
)

// Weights sum to 1.
var Weights = map[string]float64{
	FactorTVLStability:      0.20,
	FactorProtocolAge:       0.15,
	FactorAuditStatus:       0.20,
	FactorConcentration:     0.10,
	FactorAPYSustainability: 0.15,
	FactorContractTier:      0.20,
}

const (
	lowTVLUSD       = 500_000
	highAPYPercent  = 50
	tvlDisagreement = 0.20
	staleAudit      = 2 * 365 * 24 * time.Hour
	crowdedRatio    = 0.95
	warnBelowScore  = 50
)

// Input is everything the engine needs about one pool.
type Input struct {
	PoolID      string
	Protocol    string
	PoolType    model.PoolType
	TVLUSD      float64
	SourceTVLs  []float64
	APYPercent  float64
	APYStatus   model.APYStatus
	StakedRatio *float64
	AsOf        time.Time
}

// Engine is a pure scorer over Input and static metadata.
type Engine struct {
	meta Metadata
}

func NewEngine(meta Metadata) *Engine {
	return &Engine{meta: meta}
}

// Score computes the weighted score. Blacklisted protocols short-circuit to zero.
func (e *Engine) Score(in Input) model.RiskScore {
	if e.meta.blacklisted(in.Protocol) {
		return model.RiskScore{
			PoolID:   in.PoolID,
			Overall:  0,
			Level:    model.RiskCritical,
			Warnings: []string{fmt.Sprintf("protocol %s is blacklisted", in.Protocol)},
		}
	}

	info, known := e.meta.protocol(in.Protocol)
	factors := map[string]model.RiskFactor{
		FactorTVLStability:      tvlFactor(in),
		FactorProtocolAge:       ageFactor(info, known, in.AsOf),
		FactorAuditStatus:       auditFactor(info, in.AsOf),
		FactorConcentration:     concentrationFactor(in),
		FactorAPYSustainability: apyFactor(in),
		FactorContractTier:      tierFactor(info),
	}

	names := make([]string, 0, len(factors))
	for name := range factors {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := 0.0
	for _, name := range names {
		f := factors[name]
		f.Weight = Weights[name]
		factors[name] = f
		overall += f.Score * f.Weight
	}
	overall = math.Round(clamp(overall, 0, 100)*100) / 100

	warnings := []string{}
	for _, name := range names {
		if f := factors[name]; f.Score < warnBelowScore {
			warnings = append(warnings, f.Reason)
		}
	}
	if in.APYStatus != model.APYUnknown && in.APYPercent > highAPYPercent {
		warnings = append(warnings, fmt.Sprintf("apy %.2f%% above %d%%", in.APYPercent, highAPYPercent))
	}
	if in.TVLUSD < lowTVLUSD {
		warnings = append(warnings, fmt.Sprintf("tvl $%.0f below $%d", in.TVLUSD, lowTVLUSD))
	}

	return model.RiskScore{
		PoolID:   in.PoolID,
		Overall:  overall,
		Level:    Level(overall),
		Factors:  factors,
		Warnings: warnings,
	}
}

// Level buckets an overall score.
func Level(overall float64) model.RiskLevel {
	switch {
	case overall >= 45:
		return model.RiskLow
	case overall >= 35:
		return model.RiskMedium
	case overall >= 25:
		return model.RiskHigh
	default:
		return model.RiskCritical
	}
}

func tvlFactor(in Input) model.RiskFactor {
	var score float64
	switch tvl := in.TVLUSD; {
	case tvl >= 100_000_000:
		score = 90
	case tvl >= 10_000_000:
		score = 75
	case tvl >= 1_000_000:
		score = 60
	case tvl >= lowTVLUSD:
		score = 45
	default:
		score = 20
	}
	reason := fmt.Sprintf("tvl $%.0f", in.TVLUSD)
	if spread := tvlSpread(in.SourceTVLs); spread > tvlDisagreement {
		score -= 15
		reason += fmt.Sprintf(", sources disagree by %.0f%%", spread*100)
	}
	return model.RiskFactor{Score: clamp(score, 0, 100), Reason: reason}
}

// tvlSpread is (max-min)/max over positive values.
func tvlSpread(values []float64) float64 {
	lo, hi := math.Inf(1), 0.0
	for _, v := range values {
		if v <= 0 {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == 0 {
		return 0
	}
	return (hi - lo) / hi
}

func ageFactor(info ProtocolInfo, known bool, asOf time.Time) model.RiskFactor {
	if !known || info.Launched.IsZero() {
		return model.RiskFactor{Score: 30, Reason: "protocol launch date unknown"}
	}
	age := asOf.Sub(info.Launched)
	days := int(age.Hours() / 24)
	var score float64
	switch {
	case days >= 3*365:
		score = 90
	case days >= 2*365:
		score = 80
	case days >= 365:
		score = 65
	case days >= 180:
		score = 45
	default:
		score = 25
	}
	return model.RiskFactor{Score: score, Reason: fmt.Sprintf("protocol live for %d days", days)}
}

func auditFactor(info ProtocolInfo, asOf time.Time) model.RiskFactor {
	var score float64
	switch {
	case info.Audits <= 0:
		return model.RiskFactor{Score: 10, Reason: "no known audits"}
	case info.Audits == 1:
		score = 55
	case info.Audits == 2:
		score = 70
	default:
		score = 85
	}
	reason := fmt.Sprintf("%d audits", info.Audits)
	if !info.LastAudit.IsZero() && asOf.Sub(info.LastAudit) > staleAudit {
		score -= 10
		reason += ", newest older than 2 years"
	}
	return model.RiskFactor{Score: score, Reason: reason}
}

func concentrationFactor(in Input) model.RiskFactor {
	var score float64
	switch in.PoolType {
	case model.PoolTypeLending:
		score = 80
	case model.PoolTypeVault:
		score = 70
	case model.PoolTypeConstantProduct:
		score = 65
	case model.PoolTypeConcentrated:
		score = 50
	default:
		score = 30
	}
	reason := fmt.Sprintf("%s pool", in.PoolType)
	if in.PoolType == model.PoolTypeConcentrated && in.StakedRatio != nil && *in.StakedRatio > crowdedRatio {
		score -= 10
		reason += fmt.Sprintf(", staked ratio %.2f crowds the active tick", *in.StakedRatio)
	}
	return model.RiskFactor{Score: score, Reason: reason}
}

func apyFactor(in Input) model.RiskFactor {
	if in.APYStatus == model.APYUnknown || in.APYStatus == "" {
		return model.RiskFactor{Score: 40, Reason: "apy unknown"}
	}
	var score float64
	switch a := in.APYPercent; {
	case a <= 10:
		score = 90
	case a <= 25:
		score = 75
	case a <= 50:
		score = 55
	case a <= 100:
		score = 35
	default:
		score = 15
	}
	reason := fmt.Sprintf("apy %.2f%%", in.APYPercent)
	if in.APYStatus == model.APYEstimated {
		score -= 10
		reason += " (estimated)"
	}
	return model.RiskFactor{Score: clamp(score, 0, 100), Reason: reason}
}

func tierFactor(info ProtocolInfo) model.RiskFactor {
	switch info.Tier {
	case 1:
		return model.RiskFactor{Score: 90, Reason: "tier 1 contracts"}
	case 2:
		return model.RiskFactor{Score: 70, Reason: "tier 2 contracts"}
	case 3:
		return model.RiskFactor{Score: 45, Reason: "tier 3 contracts"}
	default:
		return model.RiskFactor{Score: 30, Reason: "contract tier unknown"}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
