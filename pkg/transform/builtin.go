// pkg/transform/builtin.go
package transform

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind names a built-in transform
type Kind string

const (
	KindBoolean         Kind = "boolean"
	KindGender          Kind = "gender"
	KindDate            Kind = "date"
	KindPlural          Kind = "plural"
	KindPassword        Kind = "password"
	KindNow             Kind = "now"
	KindFacebookProfile Kind = "facebook_profile"
)

// OutputLayout is the timestamp format accepted by the entity store (UTC)
const OutputLayout = "2006-01-02 15:04:05"

// Gender values accepted by the entity store
const (
	GenderMale         = "male"
	GenderFemale       = "female"
	GenderOther        = "other"
	GenderNotSpecified = "not specified"
)

// Options configures the built-in transforms
type Options struct {
	// Go layout of legacy date columns
	DateLayout string
	// Algorithm tag attached to password credentials
	PasswordType string
	// Salt prefix length of base64 salted password blobs; 0 means plain re-wrap
	PasswordSaltBytes int
	// Clock used by the "now" transform
	Now func() time.Time
}

// DefaultOptions returns options matching the legacy exports
func DefaultOptions() Options {
	return Options{
		DateLayout:   "1/2/2006",
		PasswordType: "password-phpass-md5",
		Now:          time.Now,
	}
}

// Build returns the Func for kind
func (o Options) Build(kind Kind) (Func, error) {
	switch kind {
	case KindBoolean:
		return Boolean, nil
	case KindGender:
		return Gender, nil
	case KindDate:
		if o.DateLayout == "" {
			return nil, fmt.Errorf("date transform requires a layout")
		}
		return Date(o.DateLayout), nil
	case KindPlural:
		return Plural, nil
	case KindPassword:
		if o.PasswordType == "" {
			return nil, fmt.Errorf("password transform requires a type tag")
		}
		if o.PasswordSaltBytes > 0 {
			return SaltedPassword(o.PasswordType, o.PasswordSaltBytes), nil
		}
		return Password(o.PasswordType), nil
	case KindNow:
		now := o.Now
		if now == nil {
			now = time.Now
		}
		return Now(now), nil
	case KindFacebookProfile:
		return FacebookProfile, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
}

// Boolean maps {true,t,1} and {false,f,0} case-insensitively; anything else is nil
func Boolean(raw string) (interface{}, error) {
	switch strings.ToLower(raw) {
	case "true", "t", "1":
		return true, nil
	case "false", "f", "0":
		return false, nil
	default:
		return nil, nil
	}
}

var genderVocabulary = map[string]string{
	"m":                 GenderMale,
	"male":              GenderMale,
	"man":               GenderMale,
	"f":                 GenderFemale,
	"female":            GenderFemale,
	"woman":             GenderFemale,
	"o":                 GenderOther,
	"other":             GenderOther,
	"u":                 GenderNotSpecified,
	"n":                 GenderNotSpecified,
	"ns":                GenderNotSpecified,
	"unknown":           GenderNotSpecified,
	"not specified":     GenderNotSpecified,
	"prefer not to say": GenderNotSpecified,
}

// Gender normalizes legacy gender codes. Unrecognized non-empty values map to "not specified".
func Gender(raw string) (interface{}, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return nil, nil
	}
	if g, ok := genderVocabulary[v]; ok {
		return g, nil
	}
	return GenderNotSpecified, nil
}

// Date parses raw with layout and re-emits it in OutputLayout (UTC)
func Date(layout string) Func {
	return func(raw string) (interface{}, error) {
		v := strings.ToUpper(strings.TrimSpace(raw))
		if v == "" {
			return nil, nil
		}
		t, err := time.Parse(layout, v)
		if err != nil {
			return nil, fmt.Errorf("could not parse date %q", raw)
		}
		return t.UTC().Format(OutputLayout), nil
	}
}

// Plural decodes an embedded JSON array; empty becomes an empty array
func Plural(raw string) (interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return []interface{}{}, nil
	}
	var items []interface{}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("invalid plural JSON: %w", err)
	}
	if items == nil {
		items = []interface{}{}
	}
	return items, nil
}

// Password wraps a legacy hash with its algorithm tag
func Password(algorithm string) Func {
	return func(raw string) (interface{}, error) {
		v := strings.TrimSpace(raw)
		if v == "" {
			return nil, nil
		}
		return map[string]interface{}{
			"type":  algorithm,
			"value": v,
		}, nil
	}
}

// SaltedPassword splits a base64 blob of salt||digest into its parts
func SaltedPassword(algorithm string, saltBytes int) Func {
	return func(raw string) (interface{}, error) {
		v := strings.TrimSpace(raw)
		if v == "" {
			return nil, nil
		}
		blob, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid password blob: %w", err)
		}
		if len(blob) <= saltBytes {
			return nil, fmt.Errorf("password blob is %d bytes, need more than %d salt bytes", len(blob), saltBytes)
		}
		return map[string]interface{}{
			"type": algorithm,
			"value": map[string]interface{}{
				"salt":   hex.EncodeToString(blob[:saltBytes]),
				"digest": hex.EncodeToString(blob[saltBytes:]),
			},
		}, nil
	}
}

// Now ignores the input and stamps the current time
func Now(clock func() time.Time) Func {
	return func(string) (interface{}, error) {
		return clock().UTC().Format(OutputLayout), nil
	}
}

// FacebookProfile builds a profiles plural from a bare facebook user id
func FacebookProfile(raw string) (interface{}, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return []interface{}{}, nil
	}
	return []interface{}{
		map[string]interface{}{
			"identifier": "http://www.facebook.com/profile.php?id=" + id,
			"domain":     "facebook.com",
		},
	}, nil
}
