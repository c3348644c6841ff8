// Package model defines shared types for the proxy.
package model

import (
	"io"
	"net/url"
)

// Shape classifies an inbound request into exactly one routing outcome.
type Shape int

const (
	ShapeUnmatched Shape = iota
	ShapePreflight
	ShapeResourceAbsolute
	ShapeResourceChannelRelative
	ShapePlaylistByChannel
	ShapeBadResource
)

var shapeNames = map[Shape]string{
	ShapeUnmatched:               "unmatched",
	ShapePreflight:               "preflight",
	ShapeResourceAbsolute:        "resource_absolute",
	ShapeResourceChannelRelative: "resource_channel",
	ShapePlaylistByChannel:       "playlist",
	ShapeBadResource:             "bad_resource",
}

// String returns the metric/log label for the shape.
func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return "unknown"
}

// TargetKind records which request shape produced a ResolvedTarget.
type TargetKind int

const (
	TargetAbsolute TargetKind = iota + 1
	TargetChannelRelative
	TargetChannelPlaylist
)

// String returns the metric label for the kind.
func (k TargetKind) String() string {
	switch k {
	case TargetAbsolute:
		return "absolute"
	case TargetChannelRelative:
		return "channel"
	case TargetChannelPlaylist:
		return "playlist"
	}
	return "unknown"
}

// ResolvedTarget is the fully qualified upstream URL for one request.
type ResolvedTarget struct {
	URL  string
	Kind TargetKind
}

// ProxyRequestContext is derived once per inbound request and read-only afterwards.
type ProxyRequestContext struct {
	PublicOrigin string // scheme://host of the proxy as seen by the client
	Method       string
	Path         string
	Query        url.Values
}

// ProxyResponse represents the upstream response while it is relayed to the client.
type ProxyResponse struct {
	StatusCode  int
	ContentType string // empty when upstream sent none
	Body        io.ReadCloser
}

// Playlist is a rewritten manifest ready to be sent to the client.
type Playlist struct {
	StatusCode int
	Body       string
}

// ShapeContextKey is the echo.Context key under which the handler stores the
// request's Shape for logging.
const ShapeContextKey = "route_shape"
