package logparse

import "strings"

// DefaultMask groups events by protocol, local port, remote address and
// remote port.
const DefaultMask = "%proto:%lport:[%addr]:%rport"

// Mask turns connection fields into an endpoint key. The placeholders
// %proto, %lport, %addr and %rport are replaced in a single pass; other
// characters are kept as they are.
type Mask string

// Key substitutes the placeholders.
func (m Mask) Key(proto, lport, addr, rport string) string {
	if m == "" {
		m = DefaultMask
	}
	r := strings.NewReplacer(
		"%proto", proto,
		"%lport", lport,
		"%addr", addr,
		"%rport", rport,
	)
	return r.Replace(string(m))
}
