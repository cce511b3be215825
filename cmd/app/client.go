package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
)

type cliConfig struct {
	Transport string
	Server    string
	Socket    string
}

// clientConfig resolves where a running server listens: explicit flags first,
// then the http.addr and rpc.socket settings.
func clientConfig(c *cli.Command) (cliConfig, error) {
	cfg, err := loadConfig(c, nil)
	if err != nil {
		return cliConfig{}, err
	}
	out := cliConfig{
		Transport: c.String("transport"),
		Server:    c.String("server"),
		Socket:    c.String("socket"),
	}
	if out.Server == "" {
		out.Server = "http://" + cfg.HTTP.Addr
	}
	if out.Socket == "" {
		out.Socket = cfg.RPC.Socket
	}
	switch out.Transport {
	case "uds", "http":
	default:
		return cliConfig{}, fmt.Errorf("unknown transport %q", out.Transport)
	}
	return out, nil
}

type apiClient struct {
	httpClient *http.Client
	server     string
}

func newAPIClient(server string) *apiClient {
	return &apiClient{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		server:     strings.TrimRight(server, "/"),
	}
}

func (c *apiClient) request(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.server+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
