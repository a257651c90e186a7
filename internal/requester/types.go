package requester

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// Verb is the HTTP method of a request
type Verb string

const (
	GET     Verb = http.MethodGet
	POST    Verb = http.MethodPost
	PUT     Verb = http.MethodPut
	DELETE  Verb = http.MethodDelete
	PATCH   Verb = http.MethodPatch
	HEAD    Verb = http.MethodHead
	OPTIONS Verb = http.MethodOptions
)

// Valid reports whether v is one of the supported verbs
func (v Verb) Valid() bool {
	switch v {
	case GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS:
		return true
	}
	return false
}

// carriesForm reports whether parameters travel in a form body rather than
// in the query string.
func (v Verb) carriesForm() bool {
	return v == POST || v == PUT || v == PATCH
}

// Param is a single request parameter. Parameters keep their order.
type Param struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// Request describes one HTTP call
type Request struct {
	Verb   Verb
	URL    string
	Params []Param
	// Signer names the registered signer used to sign the call. Empty means unsigned.
	Signer      string
	Headers     map[string]string
	Body        []byte
	ContentType string
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Strategy is one step of a command: the call to make plus the callbacks
// that consume its outcome.
type Strategy interface {
	// Request describes the call. It is invoked once per execution.
	Request() Request
	// OnSuccess receives 2xx responses. A returned error is reported as a
	// parse failure.
	OnSuccess(ctx context.Context, resp *Response) error
	// OnHTTPError receives 4xx and 5xx responses before the command fails.
	OnHTTPError(ctx context.Context, resp *Response)
	// OnTransportError receives signing and network failures before the
	// command fails.
	OnTransportError(ctx context.Context, err error)
}

// BaseStrategy is a Strategy with no-op callbacks, meant for embedding
type BaseStrategy struct {
	Req Request
}

func (b BaseStrategy) Request() Request { return b.Req }

func (BaseStrategy) OnSuccess(context.Context, *Response) error { return nil }

func (BaseStrategy) OnHTTPError(context.Context, *Response) {}

func (BaseStrategy) OnTransportError(context.Context, error) {}

// ErrNoPrimaryStrategy is returned when a command is built without a primary strategy
var ErrNoPrimaryStrategy = errors.New("command requires a primary strategy")

// Command is an ordered group of strategies executed as one operation
type Command struct {
	ID      string
	Primary Strategy
	Rest    []Strategy
}

// NewCommand creates a command with a fresh ID
func NewCommand(primary Strategy, rest ...Strategy) (*Command, error) {
	if primary == nil {
		return nil, ErrNoPrimaryStrategy
	}
	for _, s := range rest {
		if s == nil {
			return nil, errors.New("command strategies must not be nil")
		}
	}
	return &Command{
		ID:      uuid.NewString(),
		Primary: primary,
		Rest:    rest,
	}, nil
}

// Strategies returns the execution order: primary first, then the rest
func (c *Command) Strategies() []Strategy {
	out := make([]Strategy, 0, len(c.Rest)+1)
	out = append(out, c.Primary)
	return append(out, c.Rest...)
}
