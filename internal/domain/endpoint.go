package domain

import (
	"net"
	"strconv"
)

// Endpoint identifies one Pi-hole instance. Identity is (Host, Port).
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
	// Credential is the resolved API password or app password.
	Credential string
	// CredentialRef points to a secret-store entry, e.g. "pass:pihole/main".
	CredentialRef string
}

func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// BaseURL is the root of the REST API, e.g. "https://pi.hole:443/api".
func (e Endpoint) BaseURL() string {
	scheme := e.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + e.Address() + "/api"
}

func (e Endpoint) SameAs(other Endpoint) bool {
	return e.Host == other.Host && e.Port == other.Port
}
