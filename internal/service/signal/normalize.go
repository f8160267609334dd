package signal

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ignite/outreach-engine/internal/domain"
)

// trackingParams are query parameters dropped during normalization.
var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "mc_cid": true, "mc_eid": true, "ref": true,
}

// NormalizeURL canonicalizes a source URL so the same article reached
// through different links de-duplicates: lowercase scheme and host, no
// "www." prefix, no fragment, no tracking parameters, sorted query, no
// trailing slash.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: source_url: %v", domain.ErrValidation, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: source_url must be http(s)", domain.ErrValidation)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return "", fmt.Errorf("%w: source_url has no host", domain.ErrValidation)
	}
	if p := u.Port(); p != "" && !(scheme == "http" && p == "80") && !(scheme == "https" && p == "443") {
		host += ":" + p
	}

	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "utm_") || trackingParams[lk] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var qs []string
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			qs = append(qs, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	out := scheme + "://" + host + path
	if len(qs) > 0 {
		out += "?" + strings.Join(qs, "&")
	}
	return out, nil
}
