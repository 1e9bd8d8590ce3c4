package probe

import (
	"context"
	"fmt"

	"github.com/miekg/dns"

	ncerr "gateslam/internal/errors"
)

// DNSProber asks a resolver that answers a special name with the
// querying client's address (OpenDNS myip.opendns.com and similar).
type DNSProber struct {
	Server string // host:port of the echoing resolver
	Name   string
	Client *dns.Client
}

// NewDNSProber returns a prober that queries server for name's A record.
func NewDNSProber(server, name string) *DNSProber {
	return &DNSProber{Server: server, Name: name, Client: &dns.Client{Net: "udp"}}
}

// EgressIP implements Prober.
func (p *DNSProber) EgressIP(ctx context.Context) (string, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(p.Name), dns.TypeA)
	m.RecursionDesired = false

	r, _, err := p.Client.ExchangeContext(ctx, m, p.Server)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ncerr.Wrap("probe", p.Server, err)
	}
	if r.Rcode != dns.RcodeSuccess {
		return "", ncerr.Wrap("probe", p.Server,
			fmt.Errorf("%s: rcode %s", p.Name, dns.RcodeToString[r.Rcode]))
	}

	for _, rr := range r.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A.String(), nil
		}
	}
	return "", ncerr.Wrap("probe", p.Server, fmt.Errorf("%s: no A record in answer", p.Name))
}
