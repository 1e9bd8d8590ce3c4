// Package registry keeps the shared list of confirmed relay egress
// addresses: one entry per IP with a sighting count and the time it was
// last seen.  The list is always stored and replaced as a whole.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	ncerr "gateslam/internal/errors"
)

// Kind classifies an entry.  Only one kind exists today.
type Kind string

// KindConfirmedEgress marks an address observed as the egress of a
// working relay.
const KindConfirmedEgress Kind = "confirmed-vpngate-egress"

// UnmarshalJSON rejects kinds this version does not know, so a document
// written by a newer tool is never silently rewritten.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch Kind(s) {
	case KindConfirmedEgress:
		*k = Kind(s)
		return nil
	}
	return fmt.Errorf("unknown entry type %q", s)
}

// Entry is one registry record.
type Entry struct {
	IP           string `json:"ip"`
	Kind         Kind   `json:"type"`
	LastSighting int64  `json:"last-sighting"` // unix seconds
	Sightings    uint32 `json:"sightings"`
}

// Document is the ordered list of entries.  The most recently updated
// entry is last.
type Document []Entry

// Find returns the position of ip, or -1.
func (d Document) Find(ip string) int {
	for i, e := range d {
		if e.IP == ip {
			return i
		}
	}
	return -1
}

// Parse decodes a registry document.  Empty input is an empty document.
func Parse(name string, data []byte) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ncerr.RegistryError{Op: "parse", Doc: name, Err: err}
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Marshal encodes d as compact JSON.  A nil document encodes as [].
func (d Document) Marshal() ([]byte, error) {
	if d == nil {
		d = Document{}
	}
	return json.Marshal(d)
}

// Change describes what Reconcile did.
type Change struct {
	IP        string
	Novel     bool   // first sighting of IP
	Sightings uint32 // count after the change
}

// Summary is the edit message recorded with the save.
func (c Change) Summary() string {
	if c.Novel {
		return fmt.Sprintf("Create listing for %s - novel sighting", c.IP)
	}
	return fmt.Sprintf("Update listing for %s - new sighting", c.IP)
}

// Reconcile records a sighting of ip at now and returns the new
// document; doc itself is not modified.  Every existing entry for ip is
// removed and a single entry is re-appended with the largest prior count
// incremented, so the order reflects recency.  Counts saturate at
// math.MaxUint32.
func Reconcile(doc Document, ip string, now time.Time) (Document, Change) {
	out := make(Document, 0, len(doc)+1)
	var (
		seen bool
		best uint32
	)
	for _, e := range doc {
		if e.IP != ip {
			out = append(out, e)
			continue
		}
		if !seen || e.Sightings > best {
			best = e.Sightings
		}
		seen = true
	}

	e := Entry{IP: ip, Kind: KindConfirmedEgress, LastSighting: now.Unix(), Sightings: 1}
	if seen {
		e.Sightings = best
		if best < math.MaxUint32 {
			e.Sightings++
		}
	}
	out = append(out, e)

	return out, Change{IP: ip, Novel: !seen, Sightings: e.Sightings}
}
