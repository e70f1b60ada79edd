// Package pseudo_reverse_dns names socket peers seen in a trace by matching
// them against endpoints mentioned on traced command lines.
//
// With -yyy, strace annotates socket descriptors with their addresses, e.g.
// 4<TCP:[10.0.0.1:40000->10.0.0.5:5432]>. The raw IP says little on its own,
// but programs usually receive their important endpoints as arguments
// (psql -h db.example.com, curl https://api.example.com/v1, --redis=cache:6379).
//
// Every exec's argument vector is scanned for hostnames, IP addresses and
// hostname:port pairs. Hostnames are resolved once and cached, building a
// reverse lookup map from IP to the names that produced it. Socket
// descriptors in I/O events are then matched against that map.
package pseudo_reverse_dns

import (
	"net"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// HostMapping stores the original endpoint names that resolved to an IP.
type HostMapping struct {
	Originals []string
}

// LookupFunc resolves a hostname to addresses.
type LookupFunc func(host string) ([]net.IP, error)

// Resolver extracts network endpoints from strings and builds reverse IP
// lookups. Data ingestion happens via IngestEndpoints(); resolution via
// Lookup() and LookupDescriptor().
//
// Usage:
//
//	r := New()
//	r.IngestEndpoints(execArgs...)          // while ingesting the trace
//	names := r.LookupDescriptor(descriptor) // when rendering I/O events
type Resolver struct {
	mu             sync.RWMutex
	ipToHosts      map[string]*HostMapping
	processedHosts map[string]bool
	lookup         LookupFunc

	hostnameRegex   *regexp.Regexp
	ipv4Regex       *regexp.Regexp
	ipv6Regex       *regexp.Regexp
	hostnamePortReg *regexp.Regexp
	socketRegex     *regexp.Regexp
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookup replaces DNS resolution, e.g. to keep tests offline.
func WithLookup(fn LookupFunc) Option {
	return func(r *Resolver) {
		r.lookup = fn
	}
}

// New creates a new Resolver with compiled regexes.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		ipToHosts:       make(map[string]*HostMapping),
		processedHosts:  make(map[string]bool),
		lookup:          net.LookupIP,
		hostnameRegex:   regexp.MustCompile(`(?i)(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}`),
		ipv4Regex:       regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`),
		ipv6Regex:       regexp.MustCompile(`(?i)(?:\[)?(?:[0-9a-f]{0,4}:){2,7}[0-9a-f]{0,4}(?:\])?`),
		hostnamePortReg: regexp.MustCompile(`(?i)(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}:\d{1,5}`),
		// TCP:[10.0.0.1:40000->10.0.0.5:5432], UDPv6:[[::1]:53->[::1]:40000]
		socketRegex: regexp.MustCompile(`^(?:TCP|UDP|TCPv6|UDPv6):\[(.*)->(.*)\]$`),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IngestEndpoints scans each string for hostnames, IPs and hostname:port
// combinations.
func (r *Resolver) IngestEndpoints(endpoints ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, endpoint := range endpoints {
		r.extractEndpoints(endpoint)
	}
}

func (r *Resolver) extractEndpoints(s string) {
	for _, match := range r.hostnamePortReg.FindAllString(s, -1) {
		r.addHostnamePort(match)
	}
	for _, match := range r.hostnameRegex.FindAllString(s, -1) {
		r.addHostname(match)
	}
	for _, match := range r.ipv4Regex.FindAllString(s, -1) {
		r.addIP(match)
	}
	for _, match := range r.ipv6Regex.FindAllString(s, -1) {
		if isValidIPv6(match) {
			r.addIP(strings.Trim(match, "[]"))
		}
	}
}

func isValidIPv6(s string) bool {
	ip := net.ParseIP(strings.Trim(s, "[]"))
	return ip != nil && ip.To4() == nil
}

func (r *Resolver) addHostnamePort(hostPort string) {
	host, portStr, ok := strings.Cut(hostPort, ":")
	if !ok {
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return
	}
	r.addHostname(host)
}

func (r *Resolver) addHostname(hostname string) {
	hostname = strings.Trim(strings.ToLower(hostname), "[]")
	if r.processedHosts[hostname] {
		return
	}
	r.processedHosts[hostname] = true

	ips, err := r.lookup(hostname)
	if err != nil {
		return
	}
	for _, ip := range ips {
		r.addIPMapping(ip.String(), hostname)
	}
}

func (r *Resolver) addIP(ipStr string) {
	if ip := net.ParseIP(ipStr); ip != nil {
		r.addIPMapping(ip.String(), ipStr)
	}
}

func (r *Resolver) addIPMapping(ip, hostname string) {
	mapping, ok := r.ipToHosts[ip]
	if !ok {
		mapping = &HostMapping{}
		r.ipToHosts[ip] = mapping
	}
	if !slices.Contains(mapping.Originals, hostname) {
		mapping.Originals = append(mapping.Originals, hostname)
	}
}

// Lookup returns possible hostnames for a given IP address.
func (r *Resolver) Lookup(ip string) []string {
	parsed := net.ParseIP(strings.Trim(ip, "[]"))
	if parsed == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if mapping, ok := r.ipToHosts[parsed.String()]; ok {
		return slices.Clone(mapping.Originals)
	}
	return nil
}

// LookupDescriptor returns names for the remote peer of a strace socket
// annotation such as "TCP:[10.0.0.1:40000->10.0.0.5:5432]". Other
// descriptors yield nil.
func (r *Resolver) LookupDescriptor(desc string) []string {
	m := r.socketRegex.FindStringSubmatch(desc)
	if m == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(m[2])
	if err != nil {
		return nil
	}
	return r.Lookup(host)
}
