package auth

import (
	"net/url"
)

// CookieSettings contains cookie security settings derived from base URL.
type CookieSettings struct {
	// Secure indicates whether the cookie should only be sent over HTTPS.
	Secure bool
	// Domain is the cookie domain scope. Empty means host-only.
	Domain string
}

// DeriveCookieSettings determines cookie security settings from the public base URL:
//   - http://localhost:3443 → Secure: false, Domain: ""
//   - https://maps.example.com → Secure: true, Domain: ""
//   - https://maps.example.com with cookie_domain ".example.com" → Secure: true, Domain: ".example.com"
//
// Unparseable or empty base URLs get Secure: true.
func DeriveCookieSettings(baseURL string, configCookieDomain string) CookieSettings {
	if baseURL == "" {
		return CookieSettings{Secure: true, Domain: configCookieDomain}
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return CookieSettings{Secure: true, Domain: configCookieDomain}
	}

	secure := parsedURL.Scheme != "http"
	if configCookieDomain != "" {
		return CookieSettings{Secure: secure, Domain: configCookieDomain}
	}

	// Browsers reject a Domain attribute for localhost and IP hosts
	return CookieSettings{Secure: secure}
}
