package main

import (
	"context"
	"net/http"
	"strconv"
)

type groupRequest struct {
	GroupBy1 string `json:"group_by1"`
	GroupBy2 string `json:"group_by2,omitempty"`
	Follow   string `json:"follow,omitempty"`
	Force    bool   `json:"force"`
	Async    bool   `json:"async,omitempty"`
}

func doGroupsList(ctx context.Context, cfg cliConfig, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "groups.list", nil, out)
	}
	client := newAPIClient(cfg.Server)
	return client.request(ctx, http.MethodGet, "/api/groups", nil, out)
}

// doGroupsCompute over HTTP always returns once the computation has started.
func doGroupsCompute(ctx context.Context, cfg cliConfig, req groupRequest, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "groups.compute", req, out)
	}
	req.Async = false
	client := newAPIClient(cfg.Server)
	return client.request(ctx, http.MethodPost, "/api/groups", req, out)
}

func doGroupsShow(ctx context.Context, cfg cliConfig, id uint, out any) error {
	if cfg.Transport == "uds" {
		client := newRPCClient(cfg.Socket)
		return client.call(ctx, "groups.get", map[string]any{"id": id}, out)
	}
	client := newAPIClient(cfg.Server)
	return client.request(ctx, http.MethodGet, "/api/groups/"+strconv.FormatUint(uint64(id), 10), nil, out)
}
