package requester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/brizzai/postman/internal/httpcache"
	"github.com/brizzai/postman/internal/logger"
	"github.com/brizzai/postman/internal/notify"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// ConnectTimeout bounds establishing a connection
	ConnectTimeout = 5 * time.Second
	// ReadTimeout bounds waiting for the response headers and any idle
	// stretch while reading the body
	ReadTimeout = 10 * time.Second
)

// authChallengeMessage is what some OAuth stacks report when the server
// rejects a token without sending WWW-Authenticate.
const authChallengeMessage = "No authentication challenges found"

// RequestExecutor runs commands
type RequestExecutor interface {
	Execute(ctx context.Context, cmd *Command) error
}

// Doer sends HTTP requests
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Signer is the signing service: it signs req in place with the credentials
// registered as signerID. Unknown ids must yield an error wrapping
// ErrSignerNotRegistered.
type Signer interface {
	Sign(ctx context.Context, signerID string, req *http.Request) error
}

// UnauthorizedHook is called when a signed call is rejected for its
// credentials: on 401 responses and on authentication-challenge failures.
// It is the place to invalidate stored tokens; none is installed by default.
type UnauthorizedHook func(ctx context.Context, signerID string, err error)

// HTTPRequesterParams holds the parameters for creating an HTTPRequester
type HTTPRequesterParams struct {
	fx.In

	Sink           notify.Sink
	Signer         Signer           `optional:"true"`
	Cache          httpcache.Store  `optional:"true"`
	Doer           Doer             `optional:"true"`
	OnUnauthorized UnauthorizedHook `optional:"true"`
}

// HTTPRequester executes commands: it runs each strategy's call in order,
// classifies the responses and reports a single result to the sink.
type HTTPRequester struct {
	client         *http.Client
	doer           Doer
	signer         Signer
	sink           notify.Sink
	cache          httpcache.Store
	cacheOnce      sync.Once
	onUnauthorized UnauthorizedHook
	readTimeout    time.Duration
}

// NewHTTPClient returns a client with the fixed connect and read timeouts
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = ConnectTimeout
	transport.ResponseHeaderTimeout = ReadTimeout
	return &http.Client{Transport: transport}
}

// NewHTTPRequester creates a new HTTPRequester. When params.Doer is set it
// replaces the built-in client and no response cache is installed.
func NewHTTPRequester(params HTTPRequesterParams) *HTTPRequester {
	r := &HTTPRequester{
		signer:         params.Signer,
		sink:           params.Sink,
		cache:          params.Cache,
		onUnauthorized: params.OnUnauthorized,
		readTimeout:    ReadTimeout,
	}
	if r.sink == nil {
		r.sink = notify.NewLogSink()
	}
	if params.Doer != nil {
		r.doer = params.Doer
	} else {
		r.client = NewHTTPClient()
		r.doer = r.client
	}
	return r
}

// Execute runs cmd and reports exactly one notification: "Ok" when every
// strategy succeeded, otherwise the message of the first failure. Strategies
// after a failure are not attempted. The returned error is the failure, if any.
func (r *HTTPRequester) Execute(ctx context.Context, cmd *Command) error {
	if cmd == nil || cmd.Primary == nil {
		return ErrNoPrimaryStrategy
	}
	r.enableCache()

	log := logger.With(zap.String("command", cmd.ID))
	start := time.Now()

	err := r.run(ctx, cmd)

	n := notify.Notification{CommandID: cmd.ID, Success: err == nil, Message: notify.OkMessage}
	if err != nil {
		n.Message = err.Error()
		log.Warn("Command failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	} else {
		log.Debug("Command succeeded", zap.Duration("elapsed", time.Since(start)))
	}
	r.sink.Notify(ctx, n)
	return err
}

func (r *HTTPRequester) run(ctx context.Context, cmd *Command) error {
	for i, s := range cmd.Strategies() {
		if err := r.ExecuteRequest(ctx, s); err != nil {
			logger.Debug("Stopping command",
				zap.String("command", cmd.ID),
				zap.Int("strategy", i),
			)
			return err
		}
	}
	return nil
}

// enableCache installs the response cache into the built-in client. Only the
// first call has an effect.
func (r *HTTPRequester) enableCache() {
	r.cacheOnce.Do(func() {
		if r.cache == nil || r.client == nil {
			return
		}
		r.client.Transport = httpcache.NewTransport(r.cache, r.client.Transport)
		logger.Debug("Installed HTTP response cache")
	})
}

// ExecuteRequest performs the call of a single strategy and dispatches its outcome
func (r *HTTPRequester) ExecuteRequest(ctx context.Context, s Strategy) error {
	spec := s.Request()

	httpReq, err := BuildHTTPRequest(ctx, spec)
	if err != nil {
		return r.transportFailure(ctx, s, spec, &TransportError{Err: err})
	}

	if spec.Signer != "" {
		if err := r.sign(ctx, spec.Signer, httpReq); err != nil {
			return r.transportFailure(ctx, s, spec, &SigningError{Signer: spec.Signer, Err: err})
		}
	}

	logger.Info("Executing request",
		zap.String("method", httpReq.Method),
		zap.String("url", httpReq.URL.Redacted()),
	)

	resp, err := r.send(httpReq)
	if err != nil {
		return r.transportFailure(ctx, s, spec, &TransportError{Err: err})
	}

	return r.handleResponse(ctx, s, spec, resp)
}

func (r *HTTPRequester) sign(ctx context.Context, signerID string, req *http.Request) error {
	if r.signer == nil {
		return ErrSignerNotRegistered
	}
	return r.signer.Sign(ctx, signerID, req)
}

// send performs the HTTP round trip and reads the whole body. The body read
// is cancelled when it stalls for longer than the read timeout.
func (r *HTTPRequester) send(req *http.Request) (*Response, error) {
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	resp, err := r.doer.Do(req.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reader := newIdleTimeoutReader(resp.Body, r.readTimeout, cancel)
	defer reader.stop()

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}, nil
}

func (r *HTTPRequester) transportFailure(ctx context.Context, s Strategy, spec Request, err error) error {
	logger.Error("Exception while executing request",
		zap.String("url", spec.URL),
		zap.Error(err),
	)
	s.OnTransportError(ctx, err)

	if isAuthChallenge(err) {
		logger.Debug(authChallengeMessage, zap.String("signer", spec.Signer))
		r.unauthorized(ctx, spec.Signer, err)
	}
	return err
}

func (r *HTTPRequester) handleResponse(ctx context.Context, s Strategy, spec Request, resp *Response) error {
	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		if err := s.OnSuccess(ctx, resp); err != nil {
			logger.Error("Result parse failed",
				zap.String("url", spec.URL),
				zap.Int("status", code),
				zap.Error(err),
			)
			return &ParseError{Err: err}
		}
		return nil

	case code >= 400 && code < 600:
		s.OnHTTPError(ctx, resp)
		statusErr := &HTTPStatusError{Code: code}
		if code == http.StatusUnauthorized {
			r.unauthorized(ctx, spec.Signer, statusErr)
		}
		return statusErr

	default:
		logger.Error("Unexpected http result", zap.Int("status", code), zap.String("url", spec.URL))
		return &HTTPStatusError{Code: code}
	}
}

func (r *HTTPRequester) unauthorized(ctx context.Context, signerID string, err error) {
	if r.onUnauthorized != nil && signerID != "" {
		r.onUnauthorized(ctx, signerID, err)
	}
}

// isAuthChallenge reports whether err means the server refused the
// credentials while they were being used or obtained.
func isAuthChallenge(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
		retrieveErr.Response.StatusCode == http.StatusUnauthorized {
		return true
	}
	return strings.Contains(err.Error(), authChallengeMessage)
}
