// Package commandfile loads commands declared in YAML files
package commandfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/brizzai/postman/internal/logger"
	"github.com/brizzai/postman/internal/requester"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a command file
type File struct {
	ID       string        `yaml:"id"`
	Requests []RequestSpec `yaml:"requests"`
}

// RequestSpec is one request of a command file. Expect set to "json" makes a
// body that is not valid JSON a parse failure.
type RequestSpec struct {
	Verb        string            `yaml:"verb"`
	URL         string            `yaml:"url"`
	Signer      string            `yaml:"signer"`
	Params      []requester.Param `yaml:"params"`
	Headers     map[string]string `yaml:"headers"`
	Body        string            `yaml:"body"`
	ContentType string            `yaml:"content_type"`
	Expect      string            `yaml:"expect"`
}

const expectJSON = "json"

// Load reads and parses the command file at path. Response bodies are
// written to out.
func Load(path string, out io.Writer) (*requester.Command, error) {
	if path == "" {
		return nil, errors.New("command file path is required")
	}

	logger.Info("Loading command file", zap.String("file", path))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, out)
}

// Parse builds a command from YAML data
func Parse(data []byte, out io.Writer) (*requester.Command, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing command file: %w", err)
	}
	if len(f.Requests) == 0 {
		return nil, errors.New("command file declares no requests")
	}

	var mu sync.Mutex
	strategies := make([]requester.Strategy, 0, len(f.Requests))
	for i, spec := range f.Requests {
		req, err := spec.toRequest()
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i+1, err)
		}
		strategies = append(strategies, &PrintStrategy{
			BaseStrategy: requester.BaseStrategy{Req: req},
			Out:          out,
			ExpectJSON:   strings.EqualFold(spec.Expect, expectJSON),
			mu:           &mu,
		})
	}

	cmd, err := requester.NewCommand(strategies[0], strategies[1:]...)
	if err != nil {
		return nil, err
	}
	if f.ID != "" {
		cmd.ID = f.ID
	}
	return cmd, nil
}

func (s RequestSpec) toRequest() (requester.Request, error) {
	verb := requester.Verb(strings.ToUpper(s.Verb))
	if verb == "" {
		verb = requester.GET
	}
	if !verb.Valid() {
		return requester.Request{}, fmt.Errorf("unsupported verb: %s", s.Verb)
	}
	if s.URL == "" {
		return requester.Request{}, errors.New("url is required")
	}
	switch strings.ToLower(s.Expect) {
	case "", expectJSON:
	default:
		return requester.Request{}, fmt.Errorf("unsupported expect: %s", s.Expect)
	}

	req := requester.Request{
		Verb:        verb,
		URL:         s.URL,
		Params:      s.Params,
		Signer:      s.Signer,
		Headers:     s.Headers,
		ContentType: s.ContentType,
	}
	if s.Body != "" {
		req.Body = []byte(s.Body)
	}
	return req, nil
}

// PrintStrategy writes successful response bodies to Out
type PrintStrategy struct {
	requester.BaseStrategy
	Out        io.Writer
	ExpectJSON bool

	// shared by the strategies of one command so bodies are not interleaved
	mu *sync.Mutex
}

func (s *PrintStrategy) OnSuccess(_ context.Context, resp *requester.Response) error {
	body := resp.Body
	if s.ExpectJSON {
		var buf bytes.Buffer
		if err := json.Indent(&buf, resp.Body, "", "  "); err != nil {
			return err
		}
		body = buf.Bytes()
	}
	if s.Out == nil || len(body) == 0 {
		return nil
	}

	if s.mu != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if _, err := s.Out.Write(body); err != nil {
		return err
	}
	if body[len(body)-1] != '\n' {
		_, err := io.WriteString(s.Out, "\n")
		return err
	}
	return nil
}

func (s *PrintStrategy) OnHTTPError(_ context.Context, resp *requester.Response) {
	logger.Warn("Request failed",
		zap.String("url", s.Req.URL),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", resp.Body))
}

func (s *PrintStrategy) OnTransportError(_ context.Context, err error) {
	logger.Warn("Request could not be sent", zap.String("url", s.Req.URL), zap.Error(err))
}
