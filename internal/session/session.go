package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marcus-qen/pvego/internal/codec"
	"github.com/marcus-qen/pvego/internal/metrics"
	"github.com/marcus-qen/pvego/internal/redact"
	"github.com/marcus-qen/pvego/internal/telemetry"
)

// Session is a connection to one PVE server.
type Session struct {
	params Params

	engine           Engine
	logger           *zap.Logger
	timeout          time.Duration
	maxResponseBytes int

	mu        sync.Mutex
	handle    Handle
	connected bool
	baseURL   string
}

// New builds a session and connects it. A failed connect is logged and left
// observable through IsConnectionOk; Connect may be retried.
func New(p Params, opts ...Option) *Session {
	s := &Session{
		params:           p,
		engine:           HTTPEngine{},
		logger:           zap.NewNop(),
		maxResponseBytes: DefaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Connect(); err != nil {
		s.logger.Warn("Initial connect failed",
			zap.String("host", p.Hostname),
			zap.Uint16("port", p.Port),
			zap.Error(err))
	}
	return s
}

// Params returns the connection parameters.
func (s *Session) Params() Params {
	return s.params
}

// Connect opens a transport handle. It is a no-op when already connected.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected && s.handle != nil {
		return nil
	}
	if err := s.params.Validate(); err != nil {
		return fmt.Errorf("invalid session params: %w", err)
	}

	h, err := s.engine.Open(TLSOptions{Verify: s.params.VerifyTLS})
	if err != nil {
		s.handle, s.connected = nil, false
		return fmt.Errorf("open transport handle: %w", err)
	}
	if h == nil {
		s.handle, s.connected = nil, false
		return errors.New("open transport handle: engine returned no handle")
	}

	s.handle = h
	s.connected = true
	s.baseURL = s.params.Protocol.Scheme() + "://" +
		net.JoinHostPort(strings.TrimSpace(s.params.Hostname), strconv.Itoa(int(s.params.Port)))
	metrics.SessionOpened()

	s.logger.Debug("Session connected", zap.String("base_url", s.baseURL))
	return nil
}

// Disconnect releases the handle. Safe to call repeatedly or before any
// successful connect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
		metrics.SessionClosed()
		s.logger.Debug("Session disconnected", zap.String("base_url", s.baseURL))
	}
	s.connected = false
}

// Close implements io.Closer.
func (s *Session) Close() error {
	s.Disconnect()
	return nil
}

// IsConnectionOk reports whether a transport handle is held.
func (s *Session) IsConnectionOk() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// BaseURL returns the URL derived on the last successful connect.
func (s *Session) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseURL
}

// DoGet issues a GET request.
func (s *Session) DoGet(ctx context.Context, path string, body map[string]any, headers, cookies codec.Pairs) Response {
	return s.Do(ctx, Request{Method: http.MethodGet, Path: path, Body: body, Headers: headers, Cookies: cookies})
}

// DoPost issues a POST request.
func (s *Session) DoPost(ctx context.Context, path string, body map[string]any, headers, cookies codec.Pairs) Response {
	return s.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Headers: headers, Cookies: cookies})
}

// DoPut issues a PUT request.
func (s *Session) DoPut(ctx context.Context, path string, body map[string]any, headers, cookies codec.Pairs) Response {
	return s.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body, Headers: headers, Cookies: cookies})
}

// DoDelete issues a DELETE request.
func (s *Session) DoDelete(ctx context.Context, path string, body map[string]any, headers, cookies codec.Pairs) Response {
	return s.Do(ctx, Request{Method: http.MethodDelete, Path: path, Body: body, Headers: headers, Cookies: cookies})
}

// Do executes req while holding the session mutex. It never returns an error;
// failures are reported through the envelope.
func (s *Session) Do(ctx context.Context, req Request) Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected || s.handle == nil {
		return failure(CodeNotConnected, http.StatusBadRequest, notConnectedMsg)
	}

	requestID := uuid.New().String()
	ctx, span := telemetry.StartRequestSpan(ctx, req.Method, req.Path, requestID)
	start := time.Now()

	resp := s.perform(ctx, req)

	elapsed := time.Since(start)
	transportErr := resp.Error && resp.code != CodeParseError
	errMsg := ""
	if resp.Error {
		errMsg = resp.ErrorMsg
	}
	telemetry.EndRequestSpan(span, resp.StatusCode, errMsg)
	metrics.ObserveRequest(req.Method, resp.StatusCode, elapsed, transportErr)

	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", elapsed),
	}
	if resp.Error {
		s.logger.Warn("Request failed", append(fields, zap.String("error", redact.String(resp.ErrorMsg)))...)
	} else if ce := s.logger.Check(zap.DebugLevel, "Request completed"); ce != nil {
		ce.Write(append(fields,
			zap.Strings("headers", redact.Pairs(req.Headers)),
			zap.Strings("cookies", redact.Pairs(req.Cookies)),
			zap.Strings("body_keys", redact.BodyKeys(req.Body)),
		)...)
	}
	return resp
}

func (s *Session) perform(ctx context.Context, req Request) Response {
	body, err := s.encodeBody(req.Body)
	if err != nil {
		return failure(CodeRequestInvalid, 0, fmt.Sprintf("encode request body: %v", err))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, s.baseURL+req.Path, bytes.NewReader(body))
	if err != nil {
		return failure(CodeRequestInvalid, 0, fmt.Sprintf("build request: %v", err))
	}
	for _, line := range codec.EncodeHeaders(req.Headers) {
		if key, value, ok := codec.SplitHeaderLine(line); ok {
			httpReq.Header.Add(key, value)
		}
	}
	if cookie := codec.EncodeCookies(req.Cookies); cookie != "" {
		httpReq.Header.Set("Cookie", cookie)
	}

	httpResp, err := s.handle.Do(httpReq)
	if err != nil {
		return failure(CodeTransport, 0, err.Error())
	}
	defer httpResp.Body.Close()

	status := httpResp.StatusCode
	sink := codec.NewSink(s.maxResponseBytes)
	if _, err := io.Copy(sink, httpResp.Body); err != nil {
		if errors.Is(err, io.ErrShortWrite) {
			return failure(CodeTransport, status, fmt.Sprintf("response body exceeds %d bytes", s.maxResponseBytes))
		}
		return failure(CodeTransport, status, fmt.Sprintf("read response body: %v", err))
	}

	data, err := decodePayload(sink.String())
	if err != nil {
		return failure(CodeParseError, status, fmt.Sprintf("parse response body: %v", err))
	}
	return Response{Data: data, StatusCode: status}
}

// encodeBody injects the session credentials. Keys the caller already set
// are kept.
func (s *Session) encodeBody(body map[string]any) ([]byte, error) {
	out := make(map[string]any, len(body)+2)
	maps.Copy(out, body)
	if _, ok := out["username"]; !ok {
		out["username"] = s.params.UserAtRealm()
	}
	if _, ok := out["password"]; !ok {
		out["password"] = s.params.Password
	}
	return json.Marshal(out)
}

func decodePayload(raw string) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	if v == nil {
		return map[string]any{}, nil
	}
	return v, nil
}
