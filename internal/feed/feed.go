// Package feed decodes the VPN Gate relay list into tunnel candidates.
//
// The list is a CSV document whose first two lines are headers
// ("*vpn_servers" and the "#HostName,IP,..." column line).  Every other
// line is a relay record whose last column holds a base64-encoded
// OpenVPN profile; a line holding a lone "*" closes a section.
package feed

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"

	ncerr "gateslam/internal/errors"
)

// headerLines is the number of leading non-data lines.
const headerLines = 2

// fullRecordFields is the column count of a complete VPN Gate record:
// HostName,IP,Score,Ping,Speed,CountryLong,CountryShort,NumVpnSessions,
// Uptime,TotalUsers,TotalTraffic,LogType,Operator,Message,OpenVPN_ConfigData_Base64
const fullRecordFields = 15

// Candidate is one relay to verify.
type Candidate struct {
	Index  int    // ordinal among data records, 0-based
	Config string // decoded OpenVPN profile

	// Informational metadata, filled only for full-width records.
	Host    string
	RelayIP string
	Country string
}

// Label returns a short human-readable name for logs.
func (c Candidate) Label() string {
	if c.Host == "" {
		return fmt.Sprintf("#%d", c.Index)
	}
	return fmt.Sprintf("#%d (%s, %s)", c.Index, c.Host, c.Country)
}

// Snapshot is the decoded result of one feed fetch.
type Snapshot struct {
	Candidates  []Candidate
	Fingerprint string // BLAKE2b-256 of the raw feed, hex
}

// Fingerprint returns a digest of the entire raw feed, so a change to
// any column (scores, session counts) is detected, not just profiles.
func Fingerprint(raw []byte) string {
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Decode parses raw feed bytes.  Any undecodable record rejects the
// whole feed with a *errors.FeedFormatError; no partial result is
// returned.
func Decode(raw []byte) (*Snapshot, error) {
	sc := bufio.NewScanner(bytes.NewReader(raw))
	// Profiles embed certificates, so records run to several KiB.
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		candidates []Candidate
		lineNo     int
	)
	for sc.Scan() {
		lineNo++
		if lineNo <= headerLines {
			continue
		}
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "*" || strings.TrimSpace(line) == "" {
			continue
		}

		c, err := decodeRecord(line)
		if err != nil {
			return nil, &ncerr.FeedFormatError{Line: lineNo, Err: err}
		}
		c.Index = len(candidates)
		candidates = append(candidates, c)
	}
	if err := sc.Err(); err != nil {
		return nil, &ncerr.FeedFormatError{Line: lineNo + 1, Err: err}
	}

	return &Snapshot{
		Candidates:  candidates,
		Fingerprint: Fingerprint(raw),
	}, nil
}

func decodeRecord(line string) (Candidate, error) {
	fields := strings.Split(line, ",")
	encoded := fields[len(fields)-1]

	profile, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Candidate{}, fmt.Errorf("decode base64: %w", err)
	}
	if !utf8.Valid(profile) {
		return Candidate{}, fmt.Errorf("profile is not valid UTF-8")
	}

	c := Candidate{Config: string(profile)}
	if len(fields) == fullRecordFields {
		c.Host = fields[0]
		c.RelayIP = fields[1]
		c.Country = fields[6]
	}
	return c, nil
}
