package douyin

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	errs "douyindl/pkg/errors"
	"douyindl/pkg/logger"
)

// LinkKind classifies what a link points at
type LinkKind string

const (
	LinkUser  LinkKind = "user"
	LinkItem  LinkKind = "item"
	LinkMix   LinkKind = "mix"
	LinkMusic LinkKind = "music"
	LinkLive  LinkKind = "live"
)

// Link is a resolved link: the kind of resource and its identifier
type Link struct {
	Kind LinkKind
	// ID is the resource identifier: sec_uid for users, aweme_id for
	// items, mix_id, music_id, or web_rid/room_id for live rooms
	ID string
}

// linkPattern maps a URL regexp to a link kind. The table is ordered:
// collection patterns must match before the user pattern because
// /user/<id>?showTab=... pages can also carry collection fragments.
type linkPattern struct {
	re   *regexp.Regexp
	kind LinkKind
}

var linkPatterns = []linkPattern{
	{regexp.MustCompile(`/mix/detail/([^/?#]+)`), LinkMix},
	{regexp.MustCompile(`/collection/([^/?#]+)`), LinkMix},
	{regexp.MustCompile(`/video/(\d+)`), LinkItem},
	{regexp.MustCompile(`/note/(\d+)`), LinkItem},
	{regexp.MustCompile(`/slides/(\d+)`), LinkItem},
	{regexp.MustCompile(`/music/(\d+)`), LinkMusic},
	{regexp.MustCompile(`/webcast/reflow/(\d+)`), LinkLive},
	{regexp.MustCompile(`/user/([^/?#]+)`), LinkUser},
}

// shortLinkHosts are hosts that only serve redirects to the real page
var shortLinkHosts = map[string]bool{
	"v.douyin.com":  true,
	"v.ixigua.com":  true,
	"iesdouyin.com": true,
}

// liveHost serves live rooms addressed by web rid
const liveHost = "live.douyin.com"

var webRIDPattern = regexp.MustCompile(`^/(\d+)`)

// urlPattern finds the first URL inside free-form share text. Share
// messages wrap the link in prose and emoji.
var urlPattern = regexp.MustCompile(`https?://[A-Za-z0-9$\-_@.&+!*(),%/?#=:;~]+`)

// ExtractURL returns the first URL substring in text, or empty when
// there is none
func ExtractURL(text string) string {
	return urlPattern.FindString(text)
}

// ParseURL classifies a fully resolved URL. Short links must be resolved
// first; use Resolver.Resolve for the combined operation.
func ParseURL(raw string) (Link, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Link{}, errs.Newf(errs.ErrorTypeUnrecognizedLink, "cannot parse link %q: %v", raw, err)
	}

	// modal_id pages embed the item id in the query
	if modalID := u.Query().Get("modal_id"); modalID != "" {
		return Link{Kind: LinkItem, ID: modalID}, nil
	}

	host := strings.TrimPrefix(u.Hostname(), "www.")

	if host == liveHost {
		if m := webRIDPattern.FindStringSubmatch(u.Path); m != nil {
			return Link{Kind: LinkLive, ID: m[1]}, nil
		}
	}

	target := u.Path
	for _, p := range linkPatterns {
		if m := p.re.FindStringSubmatch(target); m != nil {
			return Link{Kind: p.kind, ID: m[1]}, nil
		}
	}

	return Link{}, errs.Newf(errs.ErrorTypeUnrecognizedLink, "unrecognized link %q", raw)
}

// ShareResolver resolves a short share link to its final URL
type ShareResolver interface {
	ResolveShareURL(ctx context.Context, shareURL string) (string, error)
}

// Resolver turns raw user input into classified links, resolving short
// share links through the client when needed
type Resolver struct {
	shares ShareResolver
	logger logger.Logger
}

// NewResolver creates a resolver. The share resolver may be nil, in
// which case short links fail with an unrecognized-link error.
func NewResolver(shares ShareResolver, log logger.Logger) *Resolver {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Resolver{shares: shares, logger: log}
}

// IsShortLink reports whether the URL needs redirect resolution before
// it can be classified
func IsShortLink(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	return shortLinkHosts[host]
}

// Resolve classifies a link: extract the URL from the surrounding
// share text, follow share-link redirects, then match the pattern table
func (r *Resolver) Resolve(ctx context.Context, raw string) (Link, error) {
	target := ExtractURL(raw)
	if target == "" {
		return Link{}, errs.Newf(errs.ErrorTypeUnrecognizedLink, "no link found in %q", raw)
	}

	if IsShortLink(target) {
		if r.shares == nil {
			return Link{}, errs.Newf(errs.ErrorTypeUnrecognizedLink, "cannot resolve short link %q without a client", target)
		}

		resolved, err := r.shares.ResolveShareURL(ctx, target)
		if err != nil {
			return Link{}, err
		}

		r.logger.DebugWithFields("resolved share link", map[string]interface{}{
			"short": target,
			"final": resolved,
		})
		target = resolved
	}

	link, err := ParseURL(target)
	if err != nil {
		return Link{}, err
	}

	r.logger.DebugWithFields("classified link", map[string]interface{}{
		"url":  target,
		"kind": string(link.Kind),
		"id":   link.ID,
	})

	return link, nil
}
