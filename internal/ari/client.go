// Copyright (c) 2023-2025 Voxrelay
//
// Licensed under GPL-2.0 with Voxrelay Additional Terms.

// Package ari is the call-control collaborator: a REST client for the
// switch's channel/bridge/playback operations and a typed WebSocket
// event stream, modeled on an Asterisk-REST-Interface-shaped API. The
// orchestrator is the only caller; this package has no state of its
// own beyond the HTTP/WS connections.
package ari

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/voxrelay/voxrelay/internal/commons"
)

// Config is the connection information for one switch instance,
// built once at startup from the process-wide configuration; per-call
// APP_VAR_ARI_* overrides do not reach it.
type Config struct {
	URL      string
	Username string
	Password string
	AppName  string
}

// Client is the REST half of the call-control collaborator.
type Client struct {
	logger commons.Logger
	http   *resty.Client
	appName string
}

// NewClient builds a REST client authenticated with HTTP basic auth
// against the switch's ARI-shaped base URL.
func NewClient(logger commons.Logger, cfg Config) *Client {
	http := resty.New().
		SetBaseURL(cfg.URL).
		SetBasicAuth(cfg.Username, cfg.Password).
		SetHeader("Content-Type", "application/json")

	return &Client{
		logger:  logger.With("component", "ari.Client"),
		http:    http,
		appName: cfg.AppName,
	}
}

// Answer answers an inbound channel.
func (c *Client) Answer(ctx context.Context, channelID string) error {
	resp, err := c.http.R().SetContext(ctx).Post(fmt.Sprintf("/channels/%s/answer", channelID))
	return wrapStatus("answer channel", resp, err)
}

// Hangup terminates a channel. Best-effort: callers in cleanup paths
// should log and swallow the error rather than propagate it.
func (c *Client) Hangup(ctx context.Context, channelID string) error {
	resp, err := c.http.R().SetContext(ctx).Delete(fmt.Sprintf("/channels/%s", channelID))
	return wrapStatus("hangup channel", resp, err)
}

// GetVariable reads one channel variable by name.
func (c *Client) GetVariable(ctx context.Context, channelID, name string) (string, error) {
	var out struct {
		Value string `json:"value"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("variable", name).
		SetResult(&out).
		Get(fmt.Sprintf("/channels/%s/variable", channelID))
	if err := wrapStatus("get variable", resp, err); err != nil {
		return "", err
	}
	return out.Value, nil
}

// SetVariable writes one channel variable.
func (c *Client) SetVariable(ctx context.Context, channelID, name, value string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"variable": name, "value": value}).
		Post(fmt.Sprintf("/channels/%s/variable", channelID))
	return wrapStatus("set variable", resp, err)
}

// GetAllVariables attempts a bulk variable read. Not every switch
// version supports this; callers should fall back to per-name
// GetVariable against a fixed allow-list when it errors.
func (c *Client) GetAllVariables(ctx context.Context, channelID string) (map[string]string, error) {
	var out map[string]string
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get(fmt.Sprintf("/channels/%s/variables", channelID))
	if err := wrapStatus("get all variables", resp, err); err != nil {
		return nil, err
	}
	return out, nil
}

// ContinueScript releases the channel back to the switch's call
// script so dialplan execution can resume past this step.
func (c *Client) ContinueScript(ctx context.Context, channelID string) error {
	resp, err := c.http.R().SetContext(ctx).Post(fmt.Sprintf("/channels/%s/continue", channelID))
	return wrapStatus("continue script", resp, err)
}

// CreateBridge creates a mixing bridge and returns its id.
func (c *Client) CreateBridge(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("type", "mixing").
		SetResult(&out).
		Post("/bridges")
	if err := wrapStatus("create bridge", resp, err); err != nil {
		return "", err
	}
	return out.ID, nil
}

// AddChannelToBridge adds channelID as a member of bridgeID.
func (c *Client) AddChannelToBridge(ctx context.Context, bridgeID, channelID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("channel", channelID).
		Post(fmt.Sprintf("/bridges/%s/addChannel", bridgeID))
	return wrapStatus("add channel to bridge", resp, err)
}

// DestroyBridge tears down a bridge. Best-effort.
func (c *Client) DestroyBridge(ctx context.Context, bridgeID string) error {
	resp, err := c.http.R().SetContext(ctx).Delete(fmt.Sprintf("/bridges/%s", bridgeID))
	return wrapStatus("destroy bridge", resp, err)
}

// CreateSnoopChannel creates a read-only spy channel on channelID
// (spy=in) with the given out-of-band args marker, returning the new
// channel's id.
func (c *Client) CreateSnoopChannel(ctx context.Context, channelID, args string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"spy":     "in",
			"app":     c.appName,
			"appArgs": args,
		}).
		SetResult(&out).
		Post(fmt.Sprintf("/channels/%s/snoop", channelID))
	if err := wrapStatus("create snoop channel", resp, err); err != nil {
		return "", err
	}
	return out.ID, nil
}

// ExternalMediaSpec describes the media endpoint the switch should
// stream G.711 RTP frames toward.
type ExternalMediaSpec struct {
	Host   string
	Port   int
	Format string
	Args   string
}

// CreateExternalMediaChannel creates a channel whose media endpoint is
// the given UDP address, returning the new channel's id.
func (c *Client) CreateExternalMediaChannel(ctx context.Context, spec ExternalMediaSpec) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"app":            c.appName,
			"external_host":  fmt.Sprintf("%s:%d", spec.Host, spec.Port),
			"format":         spec.Format,
			"appArgs":        spec.Args,
			"transport":      "udp",
		}).
		SetResult(&out).
		Post("/channels/externalMedia")
	if err := wrapStatus("create external media channel", resp, err); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreatePlayback starts playback of mediaRef on the given bridge and
// returns the new playback's id.
func (c *Client) CreatePlayback(ctx context.Context, bridgeID, mediaRef string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("media", mediaRef).
		SetResult(&out).
		Post(fmt.Sprintf("/bridges/%s/play", bridgeID))
	if err := wrapStatus("create playback", resp, err); err != nil {
		return "", err
	}
	return out.ID, nil
}

// StopPlayback requests the switch halt an in-flight playback, used
// for barge-in.
func (c *Client) StopPlayback(ctx context.Context, playbackID string) error {
	resp, err := c.http.R().SetContext(ctx).Delete(fmt.Sprintf("/playbacks/%s", playbackID))
	return wrapStatus("stop playback", resp, err)
}

func wrapStatus(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("ari: %s: %w", op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("ari: %s: unexpected status %d: %s", op, resp.StatusCode(), resp.String())
	}
	return nil
}
