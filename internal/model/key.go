package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DomainCacheKey separates cache key digests from any other hashed identity.
const DomainCacheKey = "todosync/cache-key/v1"

// NormalizeURL returns a canonical form of rawURL used for cache lookups.
//
// Scheme and host are lower-cased, default ports dropped, the fragment removed,
// query parameters sorted and the path NFC-normalized.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host = host + ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""

	path := norm.NFC.String(u.Path)
	if path == "" && u.Host != "" {
		path = "/"
	}
	u.Path = path
	u.RawPath = ""

	if u.RawQuery != "" {
		// Encode sorts by key; values keep their original order.
		u.RawQuery = u.Query().Encode()
	}

	return u.String(), nil
}

// CacheKey builds the lookup key for a request: "METHOD normalized-url".
func CacheKey(method, rawURL string) (string, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return "", err
	}
	if method == "" {
		method = "GET"
	}
	return strings.ToUpper(method) + " " + normalized, nil
}

// KeyDigest returns a fixed-length digest of a cache key.
// Format: SHA256(domain + 0x00 + key), hex encoded.
func KeyDigest(key string) string {
	h := sha256.New()
	h.Write([]byte(DomainCacheKey))
	h.Write([]byte{0x00})
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}
