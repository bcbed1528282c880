// Package privacy masks personal data before it reaches logs.
package privacy

import (
	"net"
	"strings"
)

// AnonymizeIP zeroes the host part of an address: the last octet for IPv4 and
// the last 80 bits for IPv6. Unparseable input is returned as "invalid".
func AnonymizeIP(ip string) string {
	if ip == "" {
		return ""
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "invalid"
	}
	if v4 := parsed.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], v4[2], 0).String()
	}
	return parsed.Mask(net.CIDRMask(48, 128)).String()
}

// MaskEmail keeps the first rune of the local part and the domain.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at+1:]
	return string([]rune(local)[0]) + "***@" + domain
}
