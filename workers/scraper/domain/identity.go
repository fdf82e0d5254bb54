package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Identity is the stable, content-derived key of a registry document: the
// lowercase hex SHA-256 of its normalized metadata.
type Identity string

const identityHexLen = sha256.Size * 2

// lockKeyHexDigits is the identity prefix mapped onto the 64-bit lock key domain.
const lockKeyHexDigits = 16

// Normalize applies the identity normalization to one field: NFKD decomposition,
// surrounding whitespace trimmed, lowercased, non-breaking spaces turned into spaces.
func Normalize(s string) string {
	s = norm.NFKD.String(s)
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "\u00a0", " ")
}

// NewIdentity derives the identity of a document. Fields are normalized one by one
// and concatenated without a separator in this fixed order.
func NewIdentity(companyID, docType, name, periodFrom, periodTo string) Identity {
	var b strings.Builder
	for _, field := range [...]string{companyID, docType, name, periodFrom, periodTo} {
		b.WriteString(Normalize(field))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return Identity(hex.EncodeToString(sum[:]))
}

// ParseIdentity validates a client-supplied identity. Uppercase hex is accepted
// and folded to lowercase.
func ParseIdentity(s string) (Identity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != identityHexLen {
		return "", Errorf(KindInvalidParameter, "identity %q must be %d hex characters", s, identityHexLen)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", Errorf(KindInvalidParameter, "identity %q is not hexadecimal", s)
	}
	return Identity(s), nil
}

// ParseIdentities parses and de-duplicates a list of identities, keeping the
// first occurrence order.
func ParseIdentities(raw []string) ([]Identity, error) {
	if len(raw) == 0 {
		return nil, Errorf(KindInvalidParameter, "at least one identity is required")
	}
	seen := make(map[Identity]struct{}, len(raw))
	out := make([]Identity, 0, len(raw))
	for _, r := range raw {
		id, err := ParseIdentity(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// LockKey maps the identity onto the signed 64-bit key space of the store's
// advisory locks. The first 16 hex digits are read as an unsigned 64-bit value and
// reinterpreted in two's complement, so values at or above 2^63 wrap to negative
// keys. Distinct identities sharing a prefix only contend on the same lock.
func (id Identity) LockKey() int64 {
	if len(id) < lockKeyHexDigits {
		return 0
	}
	u, err := strconv.ParseUint(string(id[:lockKeyHexDigits]), 16, 64)
	if err != nil {
		return 0
	}
	return int64(u)
}

func (id Identity) String() string {
	return string(id)
}

// Short is a log-friendly prefix of the identity.
func (id Identity) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}

// ValidateCompanyID checks the registry company number: exactly ten ASCII digits.
func ValidateCompanyID(companyID string) error {
	if len(companyID) != 10 {
		return Errorf(KindInvalidParameter, "company id %q must be exactly 10 digits", companyID)
	}
	for _, r := range companyID {
		if r < '0' || r > '9' {
			return Errorf(KindInvalidParameter, "company id %q must contain only digits", companyID)
		}
	}
	return nil
}
