package metering

import (
	"net/url"
	"path"
	"strings"
)

// DefaultThreshold matches the default I/O buffer size.
const DefaultThreshold int64 = 8192

// Policy decides metering per operation and supplies the notification threshold.
type Policy interface {
	// ShouldMeter reports whether the operation on resource with method is tracked.
	ShouldMeter(resource, method string) bool
	// UpdateThreshold returns the bytes per notification bucket.
	UpdateThreshold() int64
}

// DefaultPolicy never meters and uses DefaultThreshold.
type DefaultPolicy struct{}

// ShouldMeter always returns false; metering is opt-in.
func (DefaultPolicy) ShouldMeter(string, string) bool {
	return false
}

// UpdateThreshold returns DefaultThreshold.
func (DefaultPolicy) UpdateThreshold() int64 {
	return DefaultThreshold
}

// ClampThreshold guards bucket arithmetic against non-positive thresholds.
func ClampThreshold(n int64) int64 {
	if n < 1 {
		return 1
	}
	return n
}

// Rules configures a RulesPolicy.
//   - Enabled: master switch; when false nothing is metered.
//   - Threshold: bytes per bucket (DefaultThreshold when <= 0).
//   - Methods: allowed methods, case-insensitive. Empty allows all.
//   - Hosts: path.Match glob patterns on the lowercase host. Empty allows all.
type Rules struct {
	Enabled   bool
	Threshold int64
	Methods   []string
	Hosts     []string
}

// RulesPolicy meters operations matching a method and host allow list.
type RulesPolicy struct {
	enabled   bool
	threshold int64
	methods   map[string]struct{}
	hosts     []string
}

// NewRulesPolicy normalizes the rules into a Policy.
func NewRulesPolicy(r Rules) *RulesPolicy {
	threshold := r.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	p := &RulesPolicy{
		enabled:   r.Enabled,
		threshold: threshold,
	}
	if len(r.Methods) > 0 {
		p.methods = make(map[string]struct{}, len(r.Methods))
		for _, m := range r.Methods {
			p.methods[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
		}
	}
	for _, h := range r.Hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			p.hosts = append(p.hosts, h)
		}
	}
	return p
}

// ShouldMeter applies the method and host allow lists.
func (p *RulesPolicy) ShouldMeter(resource, method string) bool {
	if p == nil || !p.enabled {
		return false
	}
	if p.methods != nil {
		if _, ok := p.methods[strings.ToUpper(method)]; !ok {
			return false
		}
	}
	if len(p.hosts) == 0 {
		return true
	}
	host := hostOf(resource)
	if host == "" {
		return false
	}
	for _, pattern := range p.hosts {
		if matched, _ := path.Match(pattern, host); matched {
			return true
		}
	}
	return false
}

// UpdateThreshold returns the configured threshold.
func (p *RulesPolicy) UpdateThreshold() int64 {
	if p == nil {
		return DefaultThreshold
	}
	return p.threshold
}

func hostOf(resource string) string {
	if !strings.Contains(resource, "://") {
		resource = "http://" + resource
	}
	u, err := url.Parse(resource)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
