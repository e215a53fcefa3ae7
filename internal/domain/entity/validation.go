package entity

import (
	"fmt"
	"net"
	"net/url"
)

// maxURLLength bounds provider endpoint URLs.
const maxURLLength = 2048

// ValidateEndpointURL checks a provider endpoint URL. It must be http or https
// with a host. When allowPrivate is false, hosts resolving to loopback,
// link-local or private ranges are rejected.
func ValidateEndpointURL(rawURL string, allowPrivate bool) error {
	if rawURL == "" {
		return &ValidationError{Field: "base_url", Message: "URL is required"}
	}
	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   "base_url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: "base_url", Message: fmt.Sprintf("parse URL: %v", err)}
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Field: "base_url", Message: "URL must use http or https scheme"}
	}
	if parsedURL.Host == "" {
		return &ValidationError{Field: "base_url", Message: "URL must have a valid host"}
	}
	if allowPrivate {
		return nil
	}

	host := parsedURL.Hostname()
	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		resolved, err := net.LookupIP(host)
		if err != nil {
			// Unresolvable hosts are left to fail at call time.
			return nil
		}
		ips = resolved
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return &ValidationError{Field: "base_url", Message: "url cannot point to private network"}
		}
	}
	return nil
}

var privateIPv4Ranges = func() []*net.IPNet {
	cidrs := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "169.254.0.0/16"}
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, _ := net.ParseCIDR(c)
		out = append(out, n)
	}
	return out
}()

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return true
	}
	for _, subnet := range privateIPv4Ranges {
		if subnet.Contains(ip) {
			return true
		}
	}
	return false
}
