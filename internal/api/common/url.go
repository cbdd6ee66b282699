package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dsiportal/placement-sync/internal/portal"
)

// IDParam extracts the route parameter name as a notification id. Ids are
// path-unescaped and may not contain whitespace.
func IDParam(r *http.Request, name string) (portal.ID, error) {
	raw, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", name)
	}
	if strings.ContainsAny(strings.TrimSpace(raw), " \t\n\r") {
		return "", fmt.Errorf("%s cannot contain whitespace", name)
	}
	id, ok := portal.ParseID(raw)
	if !ok {
		return "", fmt.Errorf("%s cannot be empty", name)
	}
	return id, nil
}

// IntParam extracts the route parameter name as an integer id, such as a
// job id. Leading zeros are accepted.
func IntParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
