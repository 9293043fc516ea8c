// Package fingerprint derives a stable device identity from client-reported
// signals. The hash is an identity key for correlating logins, not a
// security boundary: all inputs are untrusted and the resulting fingerprint
// only raises or lowers risk, it never authenticates on its own.
package fingerprint

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Signals are the raw client inputs. Only the user agent is always present;
// the rest are optional probes collected by the web tier.
type Signals struct {
	UserAgent  string `json:"user_agent"`
	Screen     string `json:"screen,omitempty"`   // e.g. "1920x1080x24"
	Timezone   string `json:"timezone,omitempty"` // e.g. "Europe/Berlin"
	Language   string `json:"language,omitempty"` // e.g. "en-US"
	CanvasHash string `json:"canvas_hash,omitempty"`
	GPUHash    string `json:"gpu_hash,omitempty"`
}

// Fingerprint is the derived device identity. It is recomputed from signals
// on every request and compared by hash equality or similarity score, never
// persisted on its own.
type Fingerprint struct {
	Hash        string
	Browser     string
	OS          string
	DeviceClass string
	Screen      string
	Timezone    string
	Language    string
	CanvasHash  string
	GPUHash     string
}

// uaRule maps a user-agent substring to a classification. Rules are ordered
// and the first match wins, so more specific tokens must come first
// (e.g. Edge before Chrome, iPad before iPhone-style mobile tokens).
type uaRule struct {
	token string
	value string
}

var browserRules = []uaRule{
	{"edg/", "Edge"},
	{"opr/", "Opera"},
	{"samsungbrowser", "Samsung Internet"},
	{"firefox/", "Firefox"},
	{"chrome/", "Chrome"},
	{"safari/", "Safari"},
}

var osRules = []uaRule{
	{"windows nt", "Windows"},
	{"android", "Android"},
	{"iphone", "iOS"},
	{"ipad", "iPadOS"},
	{"mac os x", "macOS"},
	{"cros", "ChromeOS"},
	{"linux", "Linux"},
}

var deviceClassRules = []uaRule{
	{"ipad", "Tablet"},
	{"tablet", "Tablet"},
	{"mobile", "Mobile"},
	{"android", "Mobile"},
	{"iphone", "Mobile"},
}

// Derive computes a fingerprint from raw signals. Pure function, no external
// calls.
func Derive(s Signals) Fingerprint {
	ua := strings.ToLower(s.UserAgent)

	fp := Fingerprint{
		Browser:     matchFirst(browserRules, ua, "Unknown"),
		OS:          matchFirst(osRules, ua, "Unknown"),
		DeviceClass: matchFirst(deviceClassRules, ua, "Desktop"),
		Screen:      normalize(s.Screen),
		Timezone:    normalize(s.Timezone),
		Language:    normalizeLanguage(s.Language),
		CanvasHash:  normalize(s.CanvasHash),
		GPUHash:     normalize(s.GPUHash),
	}
	fp.Hash = hashComponents(ua, fp)

	return fp
}

// Compare returns a 0-100 similarity score between two fingerprints, used to
// distinguish "same device with minor signal drift" from "different device".
// Weights: browser 25, os 25, device class 15, screen 15, timezone 10,
// language 10. Components unknown on both sides do not count toward the
// score.
func Compare(a, b Fingerprint) int {
	if a.Hash == b.Hash && a.Hash != "" {
		return 100
	}

	type component struct {
		av, bv string
		weight int
	}
	components := []component{
		{a.Browser, b.Browser, 25},
		{a.OS, b.OS, 25},
		{a.DeviceClass, b.DeviceClass, 15},
		{a.Screen, b.Screen, 15},
		{a.Timezone, b.Timezone, 10},
		{a.Language, b.Language, 10},
	}

	score := 0
	total := 0
	for _, c := range components {
		if c.av == "" && c.bv == "" {
			continue
		}
		total += c.weight
		if c.av == c.bv && c.av != "Unknown" {
			score += c.weight
		}
	}

	if total == 0 {
		return 0
	}
	return score * 100 / total
}

func matchFirst(rules []uaRule, ua, fallback string) string {
	for _, r := range rules {
		if strings.Contains(ua, r.token) {
			return r.value
		}
	}
	return fallback
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// normalizeLanguage reduces "en-US,en;q=0.9" style values to the primary tag.
func normalizeLanguage(v string) string {
	v = normalize(v)
	if i := strings.IndexAny(v, ",;"); i >= 0 {
		v = v[:i]
	}
	return v
}

// hashComponents concatenates the normalized components and hashes with
// FNV-1a. Fast non-cryptographic hashing is deliberate here.
func hashComponents(ua string, fp Fingerprint) string {
	h := fnv.New64a()
	for _, part := range []string{
		ua,
		fp.Screen,
		fp.Timezone,
		fp.Language,
		fp.CanvasHash,
		fp.GPUHash,
	} {
		h.Write([]byte(part))
		h.Write([]byte{'|'})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
