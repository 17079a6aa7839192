// Package util holds small helpers shared across layers.
package util

import "strings"

// MaskEmail redacts a mailbox address before it reaches logs or API
// responses. Connected-account addresses show up on nearly every log line in
// this service; only the first character of the local part and of the domain
// survive.
func MaskEmail(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	if addr == "" {
		return ""
	}

	local, domain, ok := strings.Cut(addr, "@")
	if !ok || local == "" {
		// Not address-shaped. Redact it anyway; it was meant to be one.
		if len(addr) <= 3 {
			return "***"
		}
		return addr[:1] + "…" + addr[len(addr)-1:]
	}

	if len(local) > 1 {
		local = local[:1] + "…"
	}
	labels := strings.SplitN(domain, ".", 2)
	if len(labels[0]) > 1 {
		labels[0] = labels[0][:1] + "…"
	}
	return local + "@" + strings.Join(labels, ".")
}
