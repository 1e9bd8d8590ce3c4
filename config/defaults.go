package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultFeedURL serves the VPN Gate relay list in its iPhone CSV
	// flavour: two header lines, then one record per relay whose last
	// column is a base64 OpenVPN profile.
	DefaultFeedURL = "https://www.vpngate.net/api/iphone/"

	// DefaultProbeURL reports the caller's public address as plain text.
	DefaultProbeURL = "http://api.ipify.org"

	// DefaultProbeMethod selects the HTTP egress probe.
	DefaultProbeMethod = "http"

	// DefaultDNSServer and DefaultDNSName form the DNS egress probe:
	// OpenDNS answers an A query for myip.opendns.com with the address
	// the query came from.
	DefaultDNSServer = "resolver1.opendns.com:53"
	DefaultDNSName   = "myip.opendns.com"

	// DefaultSTUNServer is used by the STUN egress probe.
	DefaultSTUNServer = "stun.l.google.com:19302"

	// DefaultOpenVPNBinary is the tunnel client executable.
	DefaultOpenVPNBinary = "openvpn"

	// DefaultDataCiphers is passed as --data-ciphers; VPN Gate relays
	// still negotiate AES-128-CBC, which modern OpenVPN no longer
	// offers by default.
	DefaultDataCiphers = "AES-128-CBC"

	// DefaultConfigDir and DefaultLogDir hold per-candidate files.
	DefaultConfigDir = "./configs"
	DefaultLogDir    = "./logs"

	// DefaultPassBudget is spread evenly across all candidates of a pass
	// to derive the per-stage timeout when none is set explicitly.
	DefaultPassBudget = time.Hour

	// MinStageTimeout is the floor for a derived stage timeout so huge
	// lists never produce a zero deadline.
	MinStageTimeout = 5 * time.Second

	// DefaultPollInterval is the delay between feed re-fetches.
	DefaultPollInterval = 5 * time.Minute

	// DefaultRegistry selects the registry backend.
	DefaultRegistry = "wiki"

	// DefaultWikiAPI and DefaultWikiPage locate the registry document.
	DefaultWikiAPI  = "https://en.wikipedia.org/w/api.php"
	DefaultWikiPage = "User:MolecularBot/IPData.json"

	// DefaultRegistryFile is used with --registry file.
	DefaultRegistryFile = "./IPData.json"

	// DefaultSaveAttempts bounds registry write retries per sighting.
	DefaultSaveAttempts = 3

	// DefaultBreakerFailures is how many consecutive failed saves open
	// the registry circuit breaker.
	DefaultBreakerFailures = 5

	// DefaultBreakerReset is how long the breaker stays open.
	DefaultBreakerReset = 10 * time.Minute

	// DefaultSSHPort is the standard SSH port for --feed-via.
	DefaultSSHPort = 22

	// DefaultConnTimeout bounds HTTP and SSH connection establishment.
	DefaultConnTimeout = 30 * time.Second
)
