package rpcjson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/zallek/galaxy/internal/domain"
)

// AnalysisService is the part of application.AnalysisService exposed to the CLI.
type AnalysisService interface {
	Info(ctx context.Context) (domain.Analysis, error)
	ComputeGroup(ctx context.Context, dims domain.Dimensions, force bool) (uint, error)
	ComputeGroupAsync(ctx context.Context, dims domain.Dimensions, force bool) (domain.GroupState, error)
	GroupStates() []domain.GroupState
	GetGroup(ctx context.Context, id uint) (domain.Group, domain.GroupGraph, error)
}

type Server struct {
	service  AnalysisService
	logger   logrus.FieldLogger
	listener net.Listener
	path     string
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type groupParams struct {
	GroupBy1 string `json:"group_by1"`
	GroupBy2 string `json:"group_by2"`
	Follow   string `json:"follow"`
	Force    bool   `json:"force"`
	Async    bool   `json:"async"`
}

func (p groupParams) dimensions() domain.Dimensions {
	return domain.Dimensions{GroupBy1: p.GroupBy1, GroupBy2: p.GroupBy2, Follow: domain.FollowFilter(p.Follow)}
}

type GroupResult struct {
	Group domain.Group       `json:"group"`
	Nodes []domain.GroupNode `json:"nodes"`
	Links []domain.GroupLink `json:"links"`
}

func Start(path string, service AnalysisService, logger logrus.FieldLogger) (*Server, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rpc socket path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, err
	}

	s := &Server{service: service, logger: logger, listener: ln, path: path}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			_ = enc.Encode(response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}, ID: nil})
			return
		}

		resp := s.dispatch(context.Background(), req)
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32600, Message: "invalid request"}, ID: req.ID}
	}
	s.logger.WithField("method", req.Method).Debug("rpc call")

	switch req.Method {
	case "analysis.info":
		analysis, err := s.service.Info(ctx)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: analysis, ID: req.ID}
	case "groups.list":
		return response{JSONRPC: "2.0", Result: s.service.GroupStates(), ID: req.ID}
	case "groups.compute":
		var p groupParams
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		if p.Async {
			state, err := s.service.ComputeGroupAsync(ctx, p.dimensions(), p.Force)
			if err != nil {
				return appError(req.ID, err)
			}
			return response{JSONRPC: "2.0", Result: state, ID: req.ID}
		}
		id, err := s.service.ComputeGroup(ctx, p.dimensions(), p.Force)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: domain.GroupState{Dimensions: p.dimensions(), Status: domain.GroupSuccess, ID: id}, ID: req.ID}
	case "groups.get":
		var p struct {
			ID uint `json:"id"`
		}
		if !decodeParams(req.Params, &p) || p.ID == 0 {
			return invalidParams(req.ID)
		}
		group, graph, err := s.service.GetGroup(ctx, p.ID)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: GroupResult{Group: group, Nodes: graph.Nodes, Links: graph.Links}, ID: req.ID}
	default:
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32601, Message: "method not found"}, ID: req.ID}
	}
}

func decodeParams(raw json.RawMessage, out any) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func invalidParams(id any) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: -32602, Message: "invalid params"}, ID: id}
}

func appError(id any, err error) response {
	code := 50000
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = 40400
	case errors.Is(err, domain.ErrUnknownDimension):
		code = 40000
	case errors.Is(err, domain.ErrGroupComputing), errors.Is(err, domain.ErrNotReady):
		code = 40900
	case errors.Is(err, domain.ErrTooManyNodes):
		code = 42200
	}
	if code == 50000 {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: code, Message: fmt.Sprintf("internal error: %v", err)}, ID: id}
	}
	return response{JSONRPC: "2.0", Error: &rpcError{Code: code, Message: err.Error()}, ID: id}
}
