package ldap

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"slices"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// Record is a directory entry with printable attribute values.
type Record struct {
	DN         string              `json:"dn" yaml:"dn"`
	Attributes map[string][]string `json:"attributes" yaml:"attributes"`
}

// NewRecord converts e, decoding the binary AD identifiers.
func NewRecord(e *ldap.Entry) Record {
	r := Record{DN: e.DN, Attributes: make(map[string][]string, len(e.Attributes))}
	for _, a := range e.Attributes {
		switch strings.ToLower(a.Name) {
		case "objectsid":
			for _, b := range a.ByteValues {
				r.Attributes[a.Name] = append(r.Attributes[a.Name], DecodeSID(b))
			}
		case "objectguid":
			for _, b := range a.ByteValues {
				r.Attributes[a.Name] = append(r.Attributes[a.Name], DecodeGUID(b))
			}
		default:
			r.Attributes[a.Name] = append([]string(nil), a.Values...)
		}
	}
	return r
}

// Names returns the attribute names sorted case-insensitively.
func (r Record) Names() []string {
	names := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		names = append(names, k)
	}
	slices.SortFunc(names, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return names
}

// Row flattens the record for tables, joining multi-values with ", ".
func (r Record) Row() map[string]any {
	row := make(map[string]any, len(r.Attributes)+1)
	row["dn"] = r.DN
	for k, v := range r.Attributes {
		row[k] = strings.Join(v, ", ")
	}
	return row
}

// IsListAttribute marks attributes printed one value per line.
func IsListAttribute(name string) bool {
	switch strings.ToLower(name) {
	case "memberof", "objectclass", "member":
		return true
	}
	return false
}

// DecodeSID renders a binary objectSid as S-1-5-21-...
func DecodeSID(b []byte) string {
	if len(b) < 8 || len(b) < 8+4*int(b[1]) {
		return fmt.Sprintf("%x", b)
	}
	return objectsid.Decode(b).String()
}

// DecodeGUID renders an AD objectGUID. The first three fields are stored
// little-endian.
func DecodeGUID(b []byte) string {
	if len(b) != 16 {
		return fmt.Sprintf("%x", b)
	}
	var swapped [16]byte
	copy(swapped[:], b)
	slices.Reverse(swapped[0:4])
	slices.Reverse(swapped[4:6])
	slices.Reverse(swapped[6:8])
	return uuid.UUID(swapped).String()
}

// ADTimestamp converts a local YYYY-MM-DD date into the 100ns ticks since
// 1601 that accountExpires holds.
func ADTimestamp(date string) (string, error) {
	t, err := time.ParseInLocation(time.DateOnly, date, time.Local)
	if err != nil {
		return "", fmt.Errorf("expiry date %q: want YYYY-MM-DD", date)
	}
	ticks := (t.Unix() + 11644473600) * 10_000_000
	return fmt.Sprintf("%d", ticks), nil
}

// EncodeADPassword builds the unicodePwd value: the quoted password in
// UTF-16LE.
func EncodeADPassword(password string) string {
	units := utf16.Encode([]rune(`"` + password + `"`))
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	return string(b)
}

const passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()"

// RandomPassword returns n characters from passwordAlphabet.
func RandomPassword(n int) (string, error) {
	limit := big.NewInt(int64(len(passwordAlphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = passwordAlphabet[idx.Int64()]
	}
	return string(out), nil
}
