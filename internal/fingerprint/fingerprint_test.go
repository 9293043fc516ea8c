package fingerprint_test

import (
	"testing"

	"github.com/lumenclass/authcore/internal/fingerprint"
	"github.com/stretchr/testify/assert"
)

const chromeWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
const safariIPhoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
const edgeWindowsUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0"

func TestDerive_StableHash(t *testing.T) {
	signals := fingerprint.Signals{
		UserAgent: chromeWindowsUA,
		Screen:    "1920x1080x24",
		Timezone:  "America/New_York",
		Language:  "en-US",
	}

	first := fingerprint.Derive(signals)
	second := fingerprint.Derive(signals)

	assert.Equal(t, first.Hash, second.Hash)
	assert.NotEmpty(t, first.Hash)
}

func TestDerive_ClassifiesUserAgent(t *testing.T) {
	tests := []struct {
		name        string
		ua          string
		browser     string
		os          string
		deviceClass string
	}{
		{"chrome on windows", chromeWindowsUA, "Chrome", "Windows", "Desktop"},
		{"safari on iphone", safariIPhoneUA, "Safari", "iOS", "Mobile"},
		{"edge before chrome", edgeWindowsUA, "Edge", "Windows", "Desktop"},
		{"unmatched", "curl/8.4.0", "Unknown", "Unknown", "Desktop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := fingerprint.Derive(fingerprint.Signals{UserAgent: tt.ua})
			assert.Equal(t, tt.browser, fp.Browser)
			assert.Equal(t, tt.os, fp.OS)
			assert.Equal(t, tt.deviceClass, fp.DeviceClass)
		})
	}
}

func TestDerive_DifferentSignalsDifferentHash(t *testing.T) {
	a := fingerprint.Derive(fingerprint.Signals{UserAgent: chromeWindowsUA, Screen: "1920x1080x24"})
	b := fingerprint.Derive(fingerprint.Signals{UserAgent: chromeWindowsUA, Screen: "2560x1440x24"})

	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestCompare_IdenticalFingerprints(t *testing.T) {
	signals := fingerprint.Signals{
		UserAgent: chromeWindowsUA,
		Screen:    "1920x1080x24",
		Timezone:  "America/New_York",
		Language:  "en-US",
	}

	a := fingerprint.Derive(signals)
	b := fingerprint.Derive(signals)

	assert.Equal(t, 100, fingerprint.Compare(a, b))
}

func TestCompare_MinorDrift(t *testing.T) {
	// Same device, browser updated: hash changes but similarity stays high
	a := fingerprint.Derive(fingerprint.Signals{
		UserAgent: chromeWindowsUA,
		Screen:    "1920x1080x24",
		Timezone:  "America/New_York",
		Language:  "en-US",
	})
	b := fingerprint.Derive(fingerprint.Signals{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		Screen:    "1920x1080x24",
		Timezone:  "America/New_York",
		Language:  "en-US",
	})

	assert.NotEqual(t, a.Hash, b.Hash)
	assert.Equal(t, 100, fingerprint.Compare(a, b))
}

func TestCompare_DifferentDevices(t *testing.T) {
	a := fingerprint.Derive(fingerprint.Signals{
		UserAgent: chromeWindowsUA,
		Screen:    "1920x1080x24",
		Timezone:  "America/New_York",
		Language:  "en-US",
	})
	b := fingerprint.Derive(fingerprint.Signals{
		UserAgent: safariIPhoneUA,
		Screen:    "390x844x32",
		Timezone:  "Europe/Berlin",
		Language:  "de-DE",
	})

	assert.Less(t, fingerprint.Compare(a, b), 50)
}

func TestCompare_LanguageNormalization(t *testing.T) {
	a := fingerprint.Derive(fingerprint.Signals{UserAgent: chromeWindowsUA, Language: "en-US,en;q=0.9"})
	b := fingerprint.Derive(fingerprint.Signals{UserAgent: chromeWindowsUA, Language: "en-US"})

	assert.Equal(t, 100, fingerprint.Compare(a, b))
}
