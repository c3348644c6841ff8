package service

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"iptv-hls-proxy/internal/config"
	"iptv-hls-proxy/internal/model"
)

// ErrBadResource is returned when a resource request carries neither a usable
// url nor a channel+uri pair.
var ErrBadResource = errors.New("bad resource request")

// Resolve maps query parameters to an upstream URL. Precedence is fixed:
//
//  1. url          -> the value itself (must be an absolute http(s) URL)
//  2. channel+uri  -> {host}/live/{user}/{pass}/{channel}/{uri}
//  3. channel      -> {host}/live/{user}/{pass}/{channel}.m3u8
//
// uri is appended verbatim after query decoding; it is not re-escaped.
func Resolve(query url.Values, up config.UpstreamConfig) (model.ResolvedTarget, error) {
	switch {
	case query.Has("url"):
		raw := query.Get("url")
		if err := validateAbsolute(raw); err != nil {
			return model.ResolvedTarget{}, fmt.Errorf("%w: %w", ErrBadResource, err)
		}
		return model.ResolvedTarget{URL: raw, Kind: model.TargetAbsolute}, nil

	case query.Has("channel") && query.Has("uri"):
		return model.ResolvedTarget{
			URL:  liveBase(up) + query.Get("channel") + "/" + query.Get("uri"),
			Kind: model.TargetChannelRelative,
		}, nil

	case query.Get("channel") != "":
		return model.ResolvedTarget{
			URL:  liveBase(up) + query.Get("channel") + ".m3u8",
			Kind: model.TargetChannelPlaylist,
		}, nil
	}
	return model.ResolvedTarget{}, ErrBadResource
}

// ResolveResource is Resolve restricted to the resource endpoint's shapes:
// a bare channel is a playlist request and is rejected here.
func ResolveResource(query url.Values, up config.UpstreamConfig) (model.ResolvedTarget, error) {
	t, err := Resolve(query, up)
	if err != nil {
		return model.ResolvedTarget{}, err
	}
	if t.Kind == model.TargetChannelPlaylist {
		return model.ResolvedTarget{}, ErrBadResource
	}
	return t, nil
}

// liveBase returns "{host}/live/{user}/{pass}/".
func liveBase(up config.UpstreamConfig) string {
	return strings.TrimRight(up.Host, "/") + "/live/" + up.Username + "/" + up.Password + "/"
}

func validateAbsolute(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host in url")
	}
	return nil
}
