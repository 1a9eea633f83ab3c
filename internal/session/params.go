package session

import (
	"errors"
	"fmt"
	"strings"
)

// Protocol selects plain HTTP or HTTPS for the base URL.
type Protocol int

const (
	ProtoHTTPS Protocol = iota
	ProtoHTTP
)

// Scheme returns the URL scheme for p.
func (p Protocol) Scheme() string {
	if p == ProtoHTTP {
		return "http"
	}
	return "https"
}

func (p Protocol) String() string {
	return p.Scheme()
}

// ParseProtocol maps "http" or "https" (case-insensitive) to a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "https":
		return ProtoHTTPS, nil
	case "http":
		return ProtoHTTP, nil
	default:
		return ProtoHTTPS, fmt.Errorf("unknown protocol %q", s)
	}
}

// DefaultPort is the port pveproxy listens on.
const DefaultPort uint16 = 8006

// Params are the connection parameters of a Session. They are fixed for the
// lifetime of the session.
type Params struct {
	Hostname  string
	Port      uint16
	Username  string
	Password  string
	Realm     string
	VerifyTLS bool
	Protocol  Protocol
}

// DefaultParams fills the port, TLS verification and protocol defaults.
func DefaultParams(hostname, username, password, realm string) Params {
	return Params{
		Hostname:  hostname,
		Port:      DefaultPort,
		Username:  username,
		Password:  password,
		Realm:     realm,
		VerifyTLS: true,
		Protocol:  ProtoHTTPS,
	}
}

// Validate rejects parameters a session cannot be built from.
func (p Params) Validate() error {
	var errs []error
	host := strings.TrimSpace(p.Hostname)
	switch {
	case host == "":
		errs = append(errs, errors.New("hostname is required"))
	case strings.Contains(host, "://"):
		errs = append(errs, fmt.Errorf("hostname %q must not include a protocol", p.Hostname))
	case strings.HasSuffix(host, "/"):
		errs = append(errs, fmt.Errorf("hostname %q must not end with a slash", p.Hostname))
	}
	if p.Port == 0 {
		errs = append(errs, errors.New("port is required"))
	}
	if p.Protocol != ProtoHTTPS && p.Protocol != ProtoHTTP {
		errs = append(errs, fmt.Errorf("unknown protocol %d", int(p.Protocol)))
	}
	return errors.Join(errs...)
}

// UserAtRealm returns the fully qualified login name.
func (p Params) UserAtRealm() string {
	return p.Username + "@" + p.Realm
}
