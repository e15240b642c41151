package gateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxErrorBody = 64 << 10

// HTTPClient implements Client against the JSON auth API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewHTTPClient returns a client for the API at baseURL. insecureSkipVerify disables TLS verification (development only).
func NewHTTPClient(baseURL string, insecureSkipVerify bool) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSClientConfig:     &tls.Config{InsecureSkipVerify: insecureSkipVerify},
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		tracer: otel.Tracer("authsession/gateway"),
	}
}

// WithHTTPClient replaces the underlying http.Client (tests, custom transports).
func (c *HTTPClient) WithHTTPClient(hc *http.Client) *HTTPClient {
	c.httpClient = hc
	return c
}

type outboundRequest struct {
	op          string
	path        string
	bearer      string
	body        interface{}
	respObj     interface{}
	successCode int
	// authFailure is the sentinel used for 401/403 on this endpoint.
	authFailure error
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Login authenticates with email and password.
func (c *HTTPClient) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.execute(ctx, outboundRequest{
		op:          "login",
		path:        "/v1/auth/login",
		body:        req,
		respObj:     &resp,
		successCode: http.StatusOK,
		authFailure: ErrInvalidCredentials,
	})
	if err != nil {
		return nil, err
	}
	if err := checkIssued("login", resp.AccessToken, resp.RefreshToken, resp.User != nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account and signs it in.
func (c *HTTPClient) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	var resp RegisterResponse
	err := c.execute(ctx, outboundRequest{
		op:          "register",
		path:        "/v1/auth/register",
		body:        req,
		respObj:     &resp,
		successCode: http.StatusCreated,
		authFailure: ErrInvalidCredentials,
	})
	if err != nil {
		return nil, err
	}
	if err := checkIssued("register", resp.AccessToken, resp.RefreshToken, resp.User != nil); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh rotates the token pair.
func (c *HTTPClient) Refresh(ctx context.Context, req RefreshRequest) (*RefreshResponse, error) {
	var resp RefreshResponse
	err := c.execute(ctx, outboundRequest{
		op:          "refresh",
		path:        "/v1/auth/refresh",
		body:        req,
		respObj:     &resp,
		successCode: http.StatusOK,
		authFailure: ErrUnauthorized,
	})
	if err != nil {
		return nil, err
	}
	if err := checkIssued("refresh", resp.AccessToken, resp.RefreshToken, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout revokes the session (or every session of the user when AllDevices is set).
func (c *HTTPClient) Logout(ctx context.Context, req LogoutRequest) error {
	return c.execute(ctx, outboundRequest{
		op:          "logout",
		path:        "/v1/auth/logout",
		bearer:      req.AccessToken,
		body:        req,
		authFailure: ErrUnauthorized,
	})
}

func checkIssued(op, access, refresh string, hasUser bool) error {
	if access == "" || refresh == "" || !hasUser {
		return &StatusError{Op: op, Message: "response is missing tokens or user", Err: ErrMalformedResponse}
	}
	return nil
}

func (c *HTTPClient) execute(ctx context.Context, r outboundRequest) (err error) {
	ctx, span := c.tracer.Start(ctx, "gateway."+r.op, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("gateway %s: marshal request: %w", r.op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+r.path, body)
	if err != nil {
		return fmt.Errorf("gateway %s: build request: %w", r.op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &StatusError{Op: r.op, Message: err.Error(), Err: ErrUnavailable}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	success := resp.StatusCode == r.successCode || (r.successCode == 0 && resp.StatusCode/100 == 2)
	if !success {
		return decodeError(r, resp)
	}
	if r.respObj == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(r.respObj); err != nil {
		if ctx.Err() != nil {
			return &StatusError{Op: r.op, Message: ctx.Err().Error(), Err: ErrUnavailable}
		}
		return &StatusError{Op: r.op, Status: resp.StatusCode, Message: err.Error(), Err: ErrMalformedResponse}
	}
	return nil
}

func decodeError(r outboundRequest, resp *http.Response) error {
	se := &StatusError{Op: r.op, Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		se.Code, se.Message = eb.Code, eb.Message
	}
	if se.Message == "" {
		se.Message = http.StatusText(resp.StatusCode)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		se.Err = r.authFailure
	case resp.StatusCode >= 500:
		se.Err = ErrServer
	default:
		se.Err = ErrRejected
	}
	return se
}

// IsTransient reports whether err is a connectivity failure rather than a refusal.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
