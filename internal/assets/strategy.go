package assets

import (
	"net/http"
	"path"
	"strings"
)

// Strategy decides the order in which cache and network are consulted.
type Strategy string

const (
	// CacheFirst answers from cache and falls back to the network
	CacheFirst Strategy = "cache-first"
	// NetworkFirst answers from the network and falls back to cache
	NetworkFirst Strategy = "network-first"
	// StaleWhileRevalidate answers from cache and refreshes it in the background
	StaleWhileRevalidate Strategy = "stale-while-revalidate"
)

// Destination returns the request destination as reported by the browser
// in Sec-Fetch-Dest, e.g. "document", "script" or "image".
func Destination(r *http.Request) string {
	return strings.ToLower(r.Header.Get("Sec-Fetch-Dest"))
}

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".svg": {},
}

// StrategyFor picks the strategy for r. Rules are checked in order: static
// assets and images, API and backend hosts, documents, then network first.
func StrategyFor(r *http.Request) Strategy {
	dest := Destination(r)
	p := r.URL.Path
	ext := strings.ToLower(path.Ext(p))

	switch {
	case dest == "script" || dest == "style" || dest == "manifest":
		return CacheFirst
	case ext == ".js" || ext == ".css" || ext == ".json":
		return CacheFirst
	case dest == "image":
		return CacheFirst
	}
	if _, ok := imageExtensions[ext]; ok {
		return CacheFirst
	}

	host := r.URL.Hostname()
	if host == "" {
		host = r.Host
	}
	if strings.Contains(p, "/api/") || strings.Contains(host, "firebase") || strings.Contains(host, "googleapis") {
		return NetworkFirst
	}
	if dest == "document" {
		return StaleWhileRevalidate
	}
	return NetworkFirst
}
