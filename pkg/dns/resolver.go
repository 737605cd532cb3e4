package dns

import (
	"net"
	"strings"

	"github.com/cuemby/ztgateway/pkg/storage"
	"github.com/cuemby/ztgateway/pkg/types"
	"github.com/miekg/dns"
)

// answerTTL is the fixed, small TTL used for every private-zone answer.
const answerTTL = 60

// Resolver answers queries against the gateway's private-zone data,
// enforcing per-zone access lists before returning any record.
type Resolver struct {
	store storage.Store
}

// NewResolver creates a Resolver backed by store.
func NewResolver(store storage.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve handles the first question in query on behalf of cn, the
// authenticated peer's CN. When the name falls in a private zone it
// returns a private-zone answer, REFUSED, or NXDOMAIN with ok true; a
// query with no question gets FORMERR. ok is false and resp is nil
// when the query did not match any private zone, in which case the
// caller should forward the original query upstream.
func (r *Resolver) Resolve(query *dns.Msg, cn string) (resp *dns.Msg, ok bool) {
	if len(query.Question) == 0 {
		resp = new(dns.Msg)
		resp.SetRcode(query, dns.RcodeFormatError)
		return resp, true
	}

	q := query.Question[0]
	name := normalizeName(q.Name)

	zone, err := r.store.FindZoneForName(name)
	if err != nil || zone == nil {
		return nil, false
	}

	resp = new(dns.Msg)
	resp.SetReply(query)
	resp.Authoritative = true
	resp.RecursionAvailable = false

	if !zone.AccessList[cn] {
		resp.Rcode = dns.RcodeRefused
		return resp, true
	}

	records, found := lookupRecords(zone, name, q.Qtype)
	if !found {
		resp.Rcode = dns.RcodeNameError
		return resp, true
	}

	for _, rec := range records {
		rr := buildRR(q.Name, rec)
		if rr != nil {
			resp.Answer = append(resp.Answer, rr)
		}
	}
	return resp, true
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}

// lookupRecords finds the records for name within zone: the exact
// label if present, else the wildcard "*" label. found is false only
// when neither the label nor the wildcard has any record.
func lookupRecords(zone *types.Zone, name string, qtype uint16) ([]types.Record, bool) {
	label := "@"
	if name != zone.Name {
		label = strings.TrimSuffix(name, "."+zone.Name)
	}

	if records, ok := zone.Records[label]; ok && len(records) > 0 {
		return filterByType(records, qtype), true
	}
	if records, ok := zone.Records["*"]; ok && len(records) > 0 {
		return filterByType(records, qtype), true
	}
	return nil, false
}

func filterByType(records []types.Record, qtype uint16) []types.Record {
	if qtype != dns.TypeA && qtype != dns.TypeCNAME {
		return records
	}
	want := types.RecordTypeA
	if qtype == dns.TypeCNAME {
		want = types.RecordTypeCNAME
	}
	var out []types.Record
	for _, rec := range records {
		if rec.Type == want {
			out = append(out, rec)
		}
	}
	return out
}

func buildRR(queriedName string, rec types.Record) dns.RR {
	hdr := dns.RR_Header{
		Name:  queriedName,
		Class: dns.ClassINET,
		Ttl:   answerTTL,
	}

	switch rec.Type {
	case types.RecordTypeA:
		ip := net.ParseIP(rec.Value)
		if ip == nil {
			return nil
		}
		hdr.Rrtype = dns.TypeA
		return &dns.A{Hdr: hdr, A: ip.To4()}
	case types.RecordTypeCNAME:
		hdr.Rrtype = dns.TypeCNAME
		return &dns.CNAME{Hdr: hdr, Target: dns.Fqdn(rec.Value)}
	default:
		return nil
	}
}
