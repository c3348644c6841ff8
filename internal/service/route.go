package service

import (
	"net/http"
	"net/url"

	"iptv-hls-proxy/internal/model"
)

// ResourcePath is the proxy endpoint that relays segments and absolute URLs.
const ResourcePath = "/resource"

// Classify maps an inbound request to exactly one Shape. It is total: every
// method/path/query combination yields a shape, Unmatched being the fallback.
//
// Presence of a parameter is what counts for url, channel+uri; a playlist
// request needs a non-empty channel.
func Classify(method, path string, query url.Values) model.Shape {
	if method == http.MethodOptions {
		return model.ShapePreflight
	}

	hasURL := query.Has("url")
	hasChannelURI := query.Has("channel") && query.Has("uri")

	if path == ResourcePath || hasURL || hasChannelURI {
		switch {
		case hasURL:
			return model.ShapeResourceAbsolute
		case hasChannelURI:
			return model.ShapeResourceChannelRelative
		default:
			return model.ShapeBadResource
		}
	}

	if query.Get("channel") != "" {
		return model.ShapePlaylistByChannel
	}
	return model.ShapeUnmatched
}
