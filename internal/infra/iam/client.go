package iam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/Maryam-Bagia/StudyNest/internal/core/domain"
	"github.com/Maryam-Bagia/StudyNest/internal/core/port"
	"github.com/Maryam-Bagia/StudyNest/internal/infra/config"
	"github.com/Maryam-Bagia/StudyNest/internal/infra/logger"
	"github.com/Maryam-Bagia/StudyNest/internal/repository"
)

const (
	loginPath    = "/api/v1/auth/login"
	registerPath = "/api/v1/auth/register"
	logoutPath   = "/api/v1/auth/logout"
	validatePath = "/api/v1/sessions/validate"

	messageUnavailable = "identity service unavailable"
	messageTimeout     = "timeout"
)

// Client talks to the IAM REST API and remembers the issued session in a
// credential store so it can be resumed later.
type Client struct {
	baseURL        string
	http           *http.Client
	store          port.CredentialStore
	deviceID       string
	deviceLabel    string
	validateRemote bool
	logger         *zap.Logger
	tracer         trace.Tracer
	propagator     propagation.TextMapPropagator
	now            func() time.Time
}

// NewClient builds an IAM client for deviceID.
func NewClient(cfg config.IAMSettings, deviceID string, store port.CredentialStore, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		http:           &http.Client{Timeout: cfg.Timeout},
		store:          store,
		deviceID:       deviceID,
		deviceLabel:    cfg.DeviceLabel,
		validateRemote: cfg.ValidateRemote,
		logger:         log,
		tracer:         noop.NewTracerProvider().Tracer("iam"),
		propagator:     otel.GetTextMapPropagator(),
		now:            time.Now,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(client *http.Client) *Client {
	if client != nil {
		c.http = client
	}
	return c
}

// WithTracer enables spans around IAM calls.
func (c *Client) WithTracer(tracer trace.Tracer) *Client {
	if tracer != nil {
		c.tracer = tracer
	}
	return c
}

// WithClock overrides the time source used for expiry checks.
func (c *Client) WithClock(now func() time.Time) *Client {
	if now != nil {
		c.now = now
	}
	return c
}

type loginRequest struct {
	Identifier  string `json:"identifier"`
	Password    string `json:"password"`
	DeviceID    string `json:"device_id,omitempty"`
	DeviceLabel string `json:"device_label,omitempty"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type validateRequest struct {
	SessionID string `json:"session_id"`
}

type userPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type sessionPayload struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type tokenResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int64          `json:"expires_in"`
	User         userPayload    `json:"user"`
	Session      sessionPayload `json:"session"`
}

type registerResponse struct {
	User                 userPayload `json:"user"`
	RequiresVerification bool        `json:"requires_verification"`
}

type validateResponse struct {
	Valid   bool           `json:"valid"`
	Session sessionPayload `json:"session"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// VerifyCredentials signs in and remembers the issued session.
func (c *Client) VerifyCredentials(ctx context.Context, identifier, credential string) (domain.Identity, error) {
	return c.login(ctx, domain.OpLogin, identifier, credential)
}

// CreateAccount registers a new account and signs it in. The username is
// derived from the identifier.
func (c *Client) CreateAccount(ctx context.Context, identifier, credential string) (domain.Identity, error) {
	req := registerRequest{
		Username: usernameFor(identifier),
		Email:    identifier,
		Password: credential,
	}
	var registered registerResponse
	if _, err := c.do(ctx, domain.OpSignup, http.MethodPost, registerPath, "", req, &registered); err != nil {
		return domain.Identity{}, err
	}

	c.logger.Info("account registered",
		zap.String("user_id", registered.User.ID),
		zap.String("email", logger.MaskEmail(identifier)),
		zap.Bool("requires_verification", registered.RequiresVerification),
	)

	return c.login(ctx, domain.OpSignup, identifier, credential)
}

func (c *Client) login(ctx context.Context, op domain.Operation, identifier, credential string) (domain.Identity, error) {
	req := loginRequest{
		Identifier:  identifier,
		Password:    credential,
		DeviceID:    c.deviceID,
		DeviceLabel: c.deviceLabel,
	}
	var tokens tokenResponse
	if _, err := c.do(ctx, op, http.MethodPost, loginPath, "", req, &tokens); err != nil {
		return domain.Identity{}, err
	}

	creds := c.credentialsFrom(tokens)
	if creds.Identity.IsZero() {
		return domain.Identity{}, &domain.BackendError{
			Op:      op,
			Message: messageUnavailable,
			Err:     errors.New("token response carries no user id"),
		}
	}

	// A caller that gave up must not find the session remembered later.
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, err
	}

	if c.store != nil {
		if err := c.store.SaveCredentials(ctx, creds); err != nil {
			c.logger.Warn("failed to remember credentials",
				zap.String("user_id", creds.Identity.ID),
				zap.Error(err),
			)
		}
	}

	return creds.Identity, nil
}

// ClearSession logs the remembered session out and forgets it locally. The
// local credentials are removed even when the remote call fails.
func (c *Client) ClearSession(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	creds, err := c.store.LoadCredentials(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	var remoteErr error
	status, err := c.do(ctx, domain.OpSignout, http.MethodPost, logoutPath, creds.AccessToken, nil, nil)
	if err != nil && status != http.StatusUnauthorized {
		remoteErr = err
	}

	if err := c.store.DeleteCredentials(ctx); err != nil {
		return errors.Join(remoteErr, fmt.Errorf("delete credentials: %w", err))
	}
	return remoteErr
}

// CurrentIdentity returns the remembered account, or domain.ErrNoSession when
// nothing usable is remembered.
func (c *Client) CurrentIdentity(ctx context.Context) (domain.Identity, error) {
	if c.store == nil {
		return domain.Identity{}, domain.ErrNoSession
	}

	creds, err := c.store.LoadCredentials(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Identity{}, domain.ErrNoSession
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("load credentials: %w", err)
	}

	if creds.Expired(c.now()) {
		c.logger.Info("remembered session expired",
			zap.String("user_id", creds.Identity.ID),
			zap.Time("expires_at", creds.ExpiresAt),
		)
		c.forget(ctx)
		return domain.Identity{}, domain.ErrNoSession
	}

	if !c.validateRemote || creds.SessionID == "" {
		return creds.Identity, nil
	}

	var validated validateResponse
	status, err := c.do(ctx, domain.OpResume, http.MethodPost, validatePath, creds.AccessToken,
		validateRequest{SessionID: creds.SessionID}, &validated)
	if status == http.StatusUnauthorized || (err == nil && !validated.Valid) {
		c.forget(ctx)
		return domain.Identity{}, domain.ErrNoSession
	}
	if err != nil {
		return domain.Identity{}, err
	}
	return creds.Identity, nil
}

func (c *Client) forget(ctx context.Context) {
	if err := c.store.DeleteCredentials(ctx); err != nil {
		c.logger.Warn("failed to forget credentials", zap.Error(err))
	}
}

func (c *Client) credentialsFrom(tokens tokenResponse) domain.Credentials {
	issuedAt := c.now().UTC()
	creds := domain.Credentials{
		Identity: domain.Identity{
			ID:       tokens.User.ID,
			Username: tokens.User.Username,
			Email:    tokens.User.Email,
		},
		SessionID:    tokens.Session.ID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		IssuedAt:     issuedAt,
	}
	if tokens.ExpiresIn > 0 {
		creds.ExpiresAt = issuedAt.Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}

	userID, expiresAt, ok := tokenClaims(tokens.AccessToken)
	if ok {
		if creds.Identity.ID == "" {
			creds.Identity.ID = userID
		}
		if !expiresAt.IsZero() {
			creds.ExpiresAt = expiresAt
		}
	}
	return creds
}

// tokenClaims reads the subject and expiry of an access token without
// verifying its signature. Only the issuer can verify it.
func tokenClaims(token string) (string, time.Time, bool) {
	if token == "" {
		return "", time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", time.Time{}, false
	}

	userID, _ := claims["uid"].(string)
	if userID == "" {
		userID, _ = claims.GetSubject()
	}

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time.UTC()
	}
	return userID, expiresAt, true
}

// do performs one JSON call. The returned status is zero when no response was received.
func (c *Client) do(ctx context.Context, op domain.Operation, method, path, bearer string, body, out any) (int, error) {
	ctx, span := c.tracer.Start(ctx, "iam."+string(op), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		semconv.HTTPRequestMethodKey.String(method),
		attribute.String("iam.path", path),
	)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	c.propagator.Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return 0, c.transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(semconv.HTTPResponseStatusCode(resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		message := http.StatusText(resp.StatusCode)
		var payload errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
			message = payload.Error
		}
		span.SetStatus(codes.Error, message)
		c.logger.Debug("iam call rejected",
			zap.String("op", string(op)),
			zap.Int("status", resp.StatusCode),
			zap.String("message", message),
		)
		return resp.StatusCode, &domain.BackendError{
			Op:      op,
			Message: message,
			Err:     fmt.Errorf("iam %s %s: status %d", method, path, resp.StatusCode),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, &domain.BackendError{
				Op:      op,
				Message: messageUnavailable,
				Err:     fmt.Errorf("decode %s response: %w", op, err),
			}
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) transportError(ctx context.Context, op domain.Operation, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.BackendError{Op: op, Message: messageTimeout, Err: errors.Join(domain.ErrTimeout, err)}
	}
	c.logger.Warn("iam unreachable", zap.String("op", string(op)), zap.Error(err))
	return &domain.BackendError{Op: op, Message: messageUnavailable, Err: err}
}

func usernameFor(identifier string) string {
	if at := strings.IndexByte(identifier, '@'); at > 0 {
		return identifier[:at]
	}
	return identifier
}

var (
	_ port.IdentityBackend = (*Client)(nil)
	_ port.SessionResumer  = (*Client)(nil)
)
