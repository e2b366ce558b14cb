package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// ProxyProtocol is a supported proxy scheme.
type ProxyProtocol string

const (
	ProxyProtocolHTTP   ProxyProtocol = "http"
	ProxyProtocolHTTPS  ProxyProtocol = "https"
	ProxyProtocolSOCKS5 ProxyProtocol = "socks5"
)

// defaultProxyPorts fills in the port when a proxy URL omits it.
var defaultProxyPorts = map[ProxyProtocol]int{
	ProxyProtocolHTTP:   8080,
	ProxyProtocolHTTPS:  443,
	ProxyProtocolSOCKS5: 1080,
}

// ProxyStrategy picks an endpoint from a pool.
type ProxyStrategy string

const (
	ProxyStrategyRoundRobin ProxyStrategy = "round_robin"
	ProxyStrategyRandom     ProxyStrategy = "random"
	ProxyStrategySticky     ProxyStrategy = "sticky"
)

// ProxyStickyScope is what a sticky pool pins an endpoint to.
type ProxyStickyScope string

const (
	// ProxyStickyDomain pins per request host.
	ProxyStickyDomain ProxyStickyScope = "domain"
	// ProxyStickyOrigin pins per scheme+host+port.
	ProxyStickyOrigin ProxyStickyScope = "origin"
)

// ProxyEndpoint is one proxy the discovery crawler can dial.
//
// In config files an endpoint is either a mapping of these fields or a
// URL string such as "socks5://user:pw@10.0.0.2:1080".
type ProxyEndpoint struct {
	Protocol ProxyProtocol `json:"protocol" yaml:"protocol"`
	Host     string        `json:"host" yaml:"host"`
	Port     int           `json:"port" yaml:"port"`
	Username string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password string        `json:"password,omitempty" yaml:"password,omitempty"`
}

// ParseProxyEndpoint parses the URL form of an endpoint. A missing port
// takes the protocol default.
func ParseProxyEndpoint(raw string) (ProxyEndpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ProxyEndpoint{}, fmt.Errorf("invalid proxy URL %q: %w", raw, err)
	}
	if u.Path != "" && u.Path != "/" {
		return ProxyEndpoint{}, fmt.Errorf("invalid proxy URL %q: unexpected path", raw)
	}

	ep := ProxyEndpoint{
		Protocol: ProxyProtocol(u.Scheme),
		Host:     u.Hostname(),
	}
	if p := u.Port(); p != "" {
		if ep.Port, err = strconv.Atoi(p); err != nil {
			return ProxyEndpoint{}, fmt.Errorf("invalid proxy URL %q: bad port", raw)
		}
	} else {
		ep.Port = defaultProxyPorts[ep.Protocol]
	}
	if u.User != nil {
		ep.Username = u.User.Username()
		ep.Password, _ = u.User.Password()
	}
	return ep, ep.Validate()
}

// UnmarshalText accepts the URL form. Mapping forms decode field by field.
func (p *ProxyEndpoint) UnmarshalText(text []byte) error {
	ep, err := ParseProxyEndpoint(string(text))
	if err != nil {
		return err
	}
	*p = ep
	return nil
}

// UnmarshalJSON accepts either a URL string or an object.
func (p *ProxyEndpoint) UnmarshalJSON(data []byte) error {
	var raw string
	if json.Unmarshal(data, &raw) == nil {
		return p.UnmarshalText([]byte(raw))
	}
	type fields ProxyEndpoint
	return json.Unmarshal(data, (*fields)(p))
}

// Validate checks protocol, host, port and the credential pair.
func (p *ProxyEndpoint) Validate() error {
	if _, ok := defaultProxyPorts[p.Protocol]; !ok {
		return fmt.Errorf("invalid protocol %q: must be http, https, or socks5", p.Protocol)
	}
	if p.Host == "" {
		return errors.New("host is required")
	}
	if p.Port < 1 || p.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", p.Port)
	}
	if (p.Username == "") != (p.Password == "") {
		return errors.New("username and password must be provided together")
	}
	return nil
}

// URL returns the endpoint as a proxy URL, credentials included.
func (p *ProxyEndpoint) URL() *url.URL {
	u := &url.URL{
		Scheme: string(p.Protocol),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// String is the URL with the password removed, safe for logs.
func (p *ProxyEndpoint) String() string {
	u := p.URL()
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.String()
}

// ProxySticky configures sticky assignment.
type ProxySticky struct {
	Scope ProxyStickyScope `json:"scope" yaml:"scope"`
	// TTL is a Go duration string ("90s", "10m"). Empty never expires.
	TTL string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// Expiry parses TTL. Zero means assignments never expire.
func (s *ProxySticky) Expiry() (time.Duration, error) {
	if s == nil || s.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid sticky ttl %q: %w", s.TTL, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("sticky ttl must be positive, got %s", s.TTL)
	}
	return d, nil
}

// ProxyPool is a named set of endpoints and how to rotate them.
type ProxyPool struct {
	Name      string          `json:"name" yaml:"name"`
	Strategy  ProxyStrategy   `json:"strategy" yaml:"strategy"`
	Endpoints []ProxyEndpoint `json:"endpoints" yaml:"endpoints"`
	Sticky    *ProxySticky    `json:"sticky,omitempty" yaml:"sticky,omitempty"`
}

// Validate validates the pool and every endpoint in it.
func (p *ProxyPool) Validate() error {
	if p.Name == "" {
		return errors.New("pool name is required")
	}
	switch p.Strategy {
	case ProxyStrategyRoundRobin, ProxyStrategyRandom, ProxyStrategySticky:
	default:
		return fmt.Errorf("invalid strategy %q: must be round_robin, random, or sticky", p.Strategy)
	}
	if len(p.Endpoints) == 0 {
		return errors.New("pool must have at least one endpoint")
	}
	for i := range p.Endpoints {
		if err := p.Endpoints[i].Validate(); err != nil {
			return fmt.Errorf("endpoints[%d]: %w", i, err)
		}
	}
	if p.Sticky == nil {
		return nil
	}
	if p.Sticky.Scope != ProxyStickyDomain && p.Sticky.Scope != ProxyStickyOrigin {
		return fmt.Errorf("invalid sticky scope %q: must be domain or origin", p.Sticky.Scope)
	}
	_, err := p.Sticky.Expiry()
	return err
}

// Warnings lists settings that work but are probably not intended.
func (p *ProxyPool) Warnings() []string {
	var warnings []string
	if p.Sticky != nil && p.Strategy != ProxyStrategySticky {
		warnings = append(warnings, fmt.Sprintf("pool %q has sticky settings but strategy %s; they are ignored", p.Name, p.Strategy))
	}
	for _, ep := range p.Endpoints {
		if ep.Protocol == ProxyProtocolSOCKS5 && ep.Username != "" {
			warnings = append(warnings, fmt.Sprintf("pool %q has authenticated socks5 endpoints; the rendered fetcher cannot pass socks5 credentials", p.Name))
			break
		}
	}
	return warnings
}
