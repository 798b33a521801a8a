// Package meteredio drives progress sources from byte streams. Reader and
// Writer report cumulative counts as data moves, and Transport meters HTTP
// response bodies according to the monitor's policy.
package meteredio
