package authz

import (
	"net/netip"
	"strings"
	"time"

	"github.com/entgrid/authz/logger"
)

// ConditionConfig tunes the dynamic condition evaluator.
type ConditionConfig struct {
	BusinessHoursStart int      `json:"business_hours_start" yaml:"business_hours_start"`
	BusinessHoursEnd   int      `json:"business_hours_end" yaml:"business_hours_end"`
	AllowedIPRanges    []string `json:"allowed_ip_ranges,omitempty" yaml:"allowed_ip_ranges,omitempty"`
}

// DynamicConditionEvaluator vetoes a request on environmental constraints
// before any policy evaluation runs. The four gates are independent; any
// single failing gate denies, an absent constraint flag skips its gate.
type DynamicConditionEvaluator struct {
	hoursStart    int
	hoursEnd      int
	allowedRanges []string
	now           func() time.Time
	logger        logger.Logger
}

func NewDynamicConditionEvaluator(cfg ConditionConfig, log logger.Logger) *DynamicConditionEvaluator {
	if cfg.BusinessHoursStart == 0 && cfg.BusinessHoursEnd == 0 {
		cfg.BusinessHoursStart = 9
		cfg.BusinessHoursEnd = 17
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &DynamicConditionEvaluator{
		hoursStart:    cfg.BusinessHoursStart,
		hoursEnd:      cfg.BusinessHoursEnd,
		allowedRanges: cfg.AllowedIPRanges,
		now:           time.Now,
		logger:        log,
	}
}

// Evaluate returns whether the request passes all environmental gates, and
// the reason for the first failing gate otherwise.
func (e *DynamicConditionEvaluator) Evaluate(ac *AuthorizationContext) (bool, string) {
	env := ac.EnvAttrs

	if attrBool(env, "businessHoursOnly") {
		hour := attrInt(env, "currentHour", e.now().Hour())
		if hour < e.hoursStart || hour >= e.hoursEnd {
			return false, "Request outside business hours"
		}
	}

	if attrBool(env, "ipRestricted") {
		ranges := attrStrings(env, "allowedIpRanges")
		if len(ranges) == 0 {
			ranges = e.allowedRanges
		}
		ip := attrString(env, "clientIp")
		if ip == "" || !ipInAnyRange(ip, ranges) {
			return false, "Client IP not in allowed ranges"
		}
	}

	if attrBool(env, "requireManagedDevice") && !attrBool(env, "managedDevice") {
		return false, "Managed device required"
	}

	if attrBool(env, "requireVpn") && !attrBool(env, "vpnConnected") {
		return false, "VPN connection required"
	}

	return true, ""
}

// ipInAnyRange matches CIDR entries with real prefix arithmetic and bare
// addresses exactly.
func ipInAnyRange(ip string, ranges []string) bool {
	addr, addrErr := netip.ParseAddr(ip)
	for _, r := range ranges {
		if strings.Contains(r, "/") {
			prefix, err := netip.ParsePrefix(r)
			if err != nil || addrErr != nil {
				continue
			}
			if prefix.Contains(addr) {
				return true
			}
			continue
		}
		if r == ip {
			return true
		}
	}
	return false
}

func attrBool(m map[string]any, key string) bool {
	v, ok := m[key]
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}

func attrInt(m map[string]any, key string, fallback int) int {
	v, ok := m[key]
	if !ok {
		return fallback
	}
	if f, ok := toFloat(v); ok {
		return int(f)
	}
	return fallback
}

func attrString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func attrStrings(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
