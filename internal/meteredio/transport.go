package meteredio

import (
	"net/http"

	"github.com/JakeFAU/progress-monitor/internal/progress"
)

// Transport is an http.RoundTripper that wraps response bodies in a Reader
// whenever the monitor's policy meters the request URL and method.
type Transport struct {
	// Base performs the request. http.DefaultTransport when nil.
	Base http.RoundTripper
	// Monitor owns the created sources. progress.Default() when nil.
	Monitor *progress.Monitor
}

// NewTransport wraps base with metering against m.
func NewTransport(base http.RoundTripper, m *progress.Monitor) *Transport {
	return &Transport{Base: base, Monitor: m}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err != nil || resp == nil || resp.Body == nil || resp.Body == http.NoBody {
		return resp, err //nolint:wrapcheck
	}
	m := t.Monitor
	if m == nil {
		m = progress.Default()
	}
	resource := req.URL.String()
	if !m.ShouldMeter(resource, req.Method) {
		return resp, nil
	}
	expected := resp.ContentLength
	if expected < 0 {
		expected = progress.UnknownTotal
	}
	src := m.NewSource(resource, req.Method, expected)
	src.SetContentType(resp.Header.Get("Content-Type"))
	resp.Body = NewReader(src, resp.Body)
	return resp, nil
}

// Client returns an http.Client using a metering Transport over base.
func Client(base *http.Client, m *progress.Monitor) *http.Client {
	c := &http.Client{}
	if base != nil {
		*c = *base
	}
	c.Transport = NewTransport(c.Transport, m)
	return c
}
