package feed

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ncerr "gateslam/internal/errors"
)

const header = "*vpn_servers\r\n" +
	"#HostName,IP,Score,Ping,Speed,CountryLong,CountryShort,NumVpnSessions,Uptime,TotalUsers,TotalTraffic,LogType,Operator,Message,OpenVPN_ConfigData_Base64\r\n"

func profile(remote string) string {
	return "client\ndev tun\nproto tcp\nremote " + remote + " 443\ncipher AES-128-CBC\n"
}

func record(host, ip, country, cfg string) string {
	return strings.Join([]string{
		host, ip, "1234567", "12", "98765432", "Japan", country, "20", "3600000",
		"1000", "123456789", "2weeks", "Daiyuu Nobori_ Japan. Academic Use Only.", "",
		base64.StdEncoding.EncodeToString([]byte(cfg)),
	}, ",") + "\r\n"
}

func buildFeed(records ...string) []byte {
	return []byte(header + strings.Join(records, "") + "*\r\n")
}

func TestDecode_FullRecords(t *testing.T) {
	raw := buildFeed(
		record("public-vpn-1", "219.100.37.1", "JP", profile("219.100.37.1")),
		record("vpn482", "198.51.100.9", "KR", profile("198.51.100.9")),
	)

	snap, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, snap.Candidates, 2)

	first := snap.Candidates[0]
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, profile("219.100.37.1"), first.Config)
	assert.Equal(t, "public-vpn-1", first.Host)
	assert.Equal(t, "219.100.37.1", first.RelayIP)
	assert.Equal(t, "JP", first.Country)
	assert.Equal(t, "#0 (public-vpn-1, JP)", first.Label())

	assert.Equal(t, 1, snap.Candidates[1].Index)
	assert.Equal(t, "KR", snap.Candidates[1].Country)
	assert.Len(t, snap.Fingerprint, 64)
}

func TestDecode_ShortRecordKeepsOnlyProfile(t *testing.T) {
	raw := []byte("h1\nh2\nfoo," + base64.StdEncoding.EncodeToString([]byte("dev tun\n")) + "\n")

	snap, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, snap.Candidates, 1)
	assert.Equal(t, "dev tun\n", snap.Candidates[0].Config)
	assert.Empty(t, snap.Candidates[0].Host)
	assert.Equal(t, "#0", snap.Candidates[0].Label())
}

func TestDecode_Deterministic(t *testing.T) {
	raw := buildFeed(
		record("a", "192.0.2.1", "JP", profile("192.0.2.1")),
		record("b", "192.0.2.2", "US", profile("192.0.2.2")),
	)

	first, err := Decode(raw)
	require.NoError(t, err)
	second, err := Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Candidates, second.Candidates)
}

func TestDecode_StarLineIgnored(t *testing.T) {
	a := record("a", "192.0.2.1", "JP", profile("192.0.2.1"))
	b := record("b", "192.0.2.2", "US", profile("192.0.2.2"))
	c := record("c", "192.0.2.3", "DE", profile("192.0.2.3"))

	plain, err := Decode([]byte(header + a + b + c))
	require.NoError(t, err)

	for _, variant := range []string{
		header + "*\r\n" + a + b + c,
		header + a + "*\r\n" + b + c,
		header + a + b + "*\n" + c,
		header + a + b + c + "*\r\n",
	} {
		withStar, err := Decode([]byte(variant))
		require.NoError(t, err)
		assert.Equal(t, plain.Candidates, withStar.Candidates)
	}
}

func TestDecode_HeadersAreNotRecords(t *testing.T) {
	// Header lines hold no base64 and would fail to decode if they were
	// treated as data.
	snap, err := Decode([]byte(header))
	require.NoError(t, err)
	assert.Empty(t, snap.Candidates)
}

func TestDecode_BadBase64RejectsWholeFeed(t *testing.T) {
	good1 := record("a", "192.0.2.1", "JP", profile("192.0.2.1"))
	good2 := record("b", "192.0.2.2", "US", profile("192.0.2.2"))
	bad := "c,192.0.2.3,1,1,1,Germany,DE,1,1,1,1,2weeks,op,,!!!not-base64!!!\r\n"

	for name, body := range map[string]string{
		"bad last":   good1 + good2 + bad,
		"bad middle": good1 + bad + good2,
		"bad first":  bad + good1 + good2,
	} {
		t.Run(name, func(t *testing.T) {
			snap, err := Decode([]byte(header + body + "*\r\n"))
			require.Error(t, err)
			assert.Nil(t, snap)
			assert.ErrorIs(t, err, ncerr.ErrFeedFormat)

			var fe *ncerr.FeedFormatError
			require.ErrorAs(t, err, &fe)
			assert.Greater(t, fe.Line, 2)
		})
	}
}

func TestDecode_InvalidUTF8(t *testing.T) {
	blob := base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0xfd})
	_, err := Decode([]byte("h1\nh2\nx," + blob + "\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ncerr.ErrFeedFormat)
	assert.Contains(t, err.Error(), "line 3")
}

func TestFingerprint_CoversMetadata(t *testing.T) {
	cfg := profile("192.0.2.1")
	before := buildFeed(record("a", "192.0.2.1", "JP", cfg))
	after := buildFeed(record("a", "192.0.2.1", "KR", cfg))

	s1, err := Decode(before)
	require.NoError(t, err)
	s2, err := Decode(after)
	require.NoError(t, err)

	assert.Equal(t, s1.Candidates[0].Config, s2.Candidates[0].Config)
	assert.NotEqual(t, s1.Fingerprint, s2.Fingerprint)
	assert.Equal(t, Fingerprint(before), s1.Fingerprint)
}
