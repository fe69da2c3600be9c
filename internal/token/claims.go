// AngelaMos | 2026
// claims.go

package token

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const TypeAccess = "access"

// Claims is the access-token payload. Every trust source decodes into it,
// so validation never depends on which source matched.
type Claims struct {
	Subject     string      `json:"sub"`
	Issuer      string      `json:"iss"`
	Audience    Audience    `json:"aud"`
	IssuedAt    NumericDate `json:"iat"`
	NotBefore   NumericDate `json:"nbf"`
	ExpiresAt   NumericDate `json:"exp"`
	ID          string      `json:"jti"`
	Username    string      `json:"username"`
	Email       string      `json:"email"`
	Roles       []string    `json:"roles"`
	Authorities []string    `json:"authorities"`
	Type        string      `json:"type"`
}

// Audience accepts both the string and array forms of "aud".
type Audience []string

func (a *Audience) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("decode aud: %w", err)
		}
		*a = Audience{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("decode aud: %w", err)
	}
	*a = many
	return nil
}

// NumericDate is seconds since the epoch, possibly fractional.
type NumericDate struct {
	time.Time
}

func (d *NumericDate) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		d.Time = time.Time{}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode numeric date: %w", err)
	}

	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("decode numeric date: %w", err)
	}

	sec, frac := math.Modf(f)
	d.Time = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	return nil
}

func (d NumericDate) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%d", d.Unix())), nil
}

func parseClaims(payload []byte) (*Claims, error) {
	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
