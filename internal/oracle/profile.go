package oracle

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/RowanDark/cipherlab/internal/blockcipher"
	"github.com/RowanDark/cipherlab/internal/modes"
	"github.com/RowanDark/cipherlab/internal/observability/metrics"
)

// Field is one key=value pair of an encoded profile record.
type Field struct {
	Key   string
	Value string
}

// ErrMalformedRecord is returned when a record is not a list of key=value pairs.
var ErrMalformedRecord = errors.New("malformed profile record")

// ProfileFor encodes a user profile for email. The metacharacters '&' and '='
// are stripped from the email before encoding.
func ProfileFor(email string) string {
	email = strings.NewReplacer("&", "", "=", "").Replace(email)
	return "email=" + email + "&uid=10&role=user"
}

// ParseProfile splits a record of the form k1=v1&k2=v2 into ordered fields.
func ParseProfile(record string) ([]Field, error) {
	pairs := strings.Split(record, "&")
	fields := make([]Field, 0, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", ErrMalformedRecord, pair)
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	return fields, nil
}

// ExpandProfile renders fields as an object literal, one field per line.
func ExpandProfile(fields []Field) string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, fmt.Sprintf("\t'%s': '%s'", f.Key, f.Value))
	}
	if len(lines) == 0 {
		return "{\n}"
	}
	return "{\n" + strings.Join(lines, ",\n") + "\n}"
}

// Lookup returns the value of the last field named key.
func Lookup(fields []Field, key string) (string, bool) {
	for i := len(fields) - 1; i >= 0; i-- {
		if fields[i].Key == key {
			return fields[i].Value, true
		}
	}
	return "", false
}

// ProfileOracle encrypts profile records under an ECB key fixed at
// construction. Encrypt takes the attacker-controlled email.
type ProfileOracle struct {
	cipher *blockcipher.Adapter
}

// NewProfileOracle draws a key from r (crypto/rand when nil).
func NewProfileOracle(r io.Reader) (*ProfileOracle, error) {
	if r == nil {
		r = rand.Reader
	}
	key := make([]byte, blockcipher.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("entropy source: %w", err)
	}
	c, err := blockcipher.NewAES(key)
	if err != nil {
		return nil, err
	}
	return &ProfileOracle{cipher: c}, nil
}

// Name identifies the oracle in metrics and logs.
func (p *ProfileOracle) Name() string { return "profile" }

// Encrypt returns the ECB encryption of ProfileFor(email).
func (p *ProfileOracle) Encrypt(ctx context.Context, email []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metrics.RecordOracleQuery(p.Name())
	return modes.ECBEncryptBlocks(p.cipher, []byte(ProfileFor(string(email))))
}

// Decrypt recovers and parses the record behind ct.
func (p *ProfileOracle) Decrypt(ct []byte) ([]Field, error) {
	pt, err := modes.ECBDecryptBlocks(p.cipher, ct)
	if err != nil {
		return nil, err
	}
	return ParseProfile(string(pt))
}

// Role returns the role field of the record behind ct.
func (p *ProfileOracle) Role(ct []byte) (string, error) {
	fields, err := p.Decrypt(ct)
	if err != nil {
		return "", err
	}
	role, ok := Lookup(fields, "role")
	if !ok {
		return "", fmt.Errorf("%w: no role field", ErrMalformedRecord)
	}
	return role, nil
}
