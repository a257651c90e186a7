package requester

import (
	"context"
	"encoding/json"
)

// JSONStrategy decodes successful response bodies into T and hands the
// value to Handle. Decode failures surface as parse errors.
type JSONStrategy[T any] struct {
	BaseStrategy
	Handle func(ctx context.Context, v T) error
}

// NewJSONStrategy creates a JSONStrategy for req
func NewJSONStrategy[T any](req Request, handle func(ctx context.Context, v T) error) *JSONStrategy[T] {
	return &JSONStrategy[T]{
		BaseStrategy: BaseStrategy{Req: req},
		Handle:       handle,
	}
}

func (s *JSONStrategy[T]) OnSuccess(ctx context.Context, resp *Response) error {
	var v T
	if err := json.Unmarshal(resp.Body, &v); err != nil {
		return err
	}
	if s.Handle == nil {
		return nil
	}
	return s.Handle(ctx, v)
}
