package feature

import "strings"

// CatalogEntry is one feature in the tenant-wide catalog. The catalog is
// global per tenant, not per user.
type CatalogEntry struct {
	ID             string `json:"id"`
	Key            string `json:"feature_key"`
	Label          string `json:"label"`
	Group          string `json:"group"`
	DefaultEnabled bool   `json:"default_enabled"`
}

// Tri is the decoded state of an override's allowed value. Storage holds the
// value loosely (bool, "true"/"false", 1/0, or nothing), so the decode happens
// once at the storage boundary instead of everywhere the value is consulted.
type Tri int

const (
	Unset Tri = iota
	Denied
	Allowed
)

func (t Tri) String() string {
	switch t {
	case Allowed:
		return "true"
	case Denied:
		return "false"
	default:
		return ""
	}
}

// DecodeAllowed collapses the loose storage representations into a Tri.
// "false", false, and 0 decode to Denied; "true", true, and 1 to Allowed; a
// missing value to Unset; anything else falls back to generic truthiness.
// A naive boolean cast would treat the string "false" as truthy.
func DecodeAllowed(v any) Tri {
	switch t := v.(type) {
	case nil:
		return Unset
	case bool:
		if t {
			return Allowed
		}
		return Denied
	case string:
		s := strings.TrimSpace(strings.ToLower(t))
		switch s {
		case "":
			return Unset
		case "true", "1":
			return Allowed
		case "false", "0":
			return Denied
		default:
			return Allowed
		}
	case int:
		return decodeNumeric(float64(t))
	case int32:
		return decodeNumeric(float64(t))
	case int64:
		return decodeNumeric(float64(t))
	case float64:
		return decodeNumeric(t)
	default:
		return Unset
	}
}

func decodeNumeric(f float64) Tri {
	if f == 0 {
		return Denied
	}
	return Allowed
}

// Override is a per-user exception to a catalog default. At most one override
// exists per (user, feature) pair.
type Override struct {
	UserID    string
	FeatureID string
	Allowed   Tri
}

// EffectivePermission is the merged allow/deny decision for one feature.
// Derived per request; never persisted.
type EffectivePermission struct {
	FeatureKey     string `json:"featureKey"`
	Allowed        bool   `json:"allowed"`
	DefaultEnabled bool   `json:"defaultEnabled"`
}
