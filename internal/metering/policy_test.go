package metering

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()

	var p Policy = DefaultPolicy{}
	require.False(t, p.ShouldMeter("https://example.com/file", "GET"))
	require.Equal(t, int64(8192), p.UpdateThreshold())
}

func TestClampThreshold(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(1), ClampThreshold(0))
	require.Equal(t, int64(1), ClampThreshold(-42))
	require.Equal(t, int64(4096), ClampThreshold(4096))
}

func TestRulesPolicyShouldMeter(t *testing.T) {
	t.Parallel()

	p := NewRulesPolicy(Rules{
		Enabled: true,
		Methods: []string{"get", " PUT "},
		Hosts:   []string{"*.example.com", "files.internal"},
	})

	tests := []struct {
		name     string
		resource string
		method   string
		want     bool
	}{
		{name: "matching subdomain", resource: "https://cdn.example.com/a.bin", method: "GET", want: true},
		{name: "exact host", resource: "http://files.internal:8080/x", method: "put", want: true},
		{name: "bare host", resource: "cdn.example.com/a.bin", method: "GET", want: true},
		{name: "method not allowed", resource: "https://cdn.example.com/a.bin", method: "POST", want: false},
		{name: "host not allowed", resource: "https://other.org/a.bin", method: "GET", want: false},
		{name: "unparseable", resource: "http://[::1", method: "GET", want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, p.ShouldMeter(tt.resource, tt.method))
		})
	}
}

func TestRulesPolicyDisabledAndDefaults(t *testing.T) {
	t.Parallel()

	disabled := NewRulesPolicy(Rules{Enabled: false, Threshold: 10})
	require.False(t, disabled.ShouldMeter("https://example.com", "GET"))
	require.Equal(t, int64(10), disabled.UpdateThreshold())

	open := NewRulesPolicy(Rules{Enabled: true})
	require.True(t, open.ShouldMeter("https://anything.test/x", "DELETE"))
	require.Equal(t, DefaultThreshold, open.UpdateThreshold())

	var nilPolicy *RulesPolicy
	require.False(t, nilPolicy.ShouldMeter("https://example.com", "GET"))
	require.Equal(t, DefaultThreshold, nilPolicy.UpdateThreshold())
}
