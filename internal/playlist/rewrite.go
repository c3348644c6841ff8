// Package playlist rewrites HLS manifests so every referenced URI is fetched
// back through the proxy's /resource endpoint.
package playlist

import (
	"net/url"
	"regexp"
	"strings"
)

// ContentType is the media type of rewritten manifests.
const ContentType = "application/vnd.apple.mpegurl; charset=utf-8"

var absoluteURL = regexp.MustCompile(`(?i)^https?://`)

// Rewrite maps each URI line of manifest to a proxied /resource URL under
// origin. Empty lines and '#' directives are kept as is. Absolute http(s)
// lines become /resource?url=..., anything else is treated as relative to the
// channel and becomes /resource?channel=...&uri=....
//
// Lines may end in "\n" or "\r\n"; the output always uses "\n".
func Rewrite(manifest, channel, origin string) string {
	lines := strings.Split(manifest, "\n")
	last := len(lines) - 1

	var b strings.Builder
	b.Grow(len(manifest) * 2)

	for i, line := range lines {
		if i < last {
			line = strings.TrimSuffix(line, "\r")
		}
		b.WriteString(RewriteLine(line, channel, origin))
		if i < last {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// RewriteLine applies the manifest rewrite rules to a single line.
func RewriteLine(line, channel, origin string) string {
	switch {
	case line == "" || strings.HasPrefix(line, "#"):
		return line
	case absoluteURL.MatchString(line):
		return origin + "/resource?url=" + EncodeComponent(line)
	default:
		return origin + "/resource?channel=" + EncodeComponent(channel) + "&uri=" + EncodeComponent(line)
	}
}

// EncodeComponent percent-encodes s for use as a query value. Spaces become
// %20 rather than '+' so the result reads the same to any URL decoder.
func EncodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
