package action

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"reflect"

	"github.com/artpar/actionkit/core/schema"
	"github.com/artpar/actionkit/pkg/apierr"
)

// Response lets a handler choose the status and headers of a successful
// result. A nil Value with no Status answers 204.
type Response struct {
	Status  int
	Headers http.Header
	Value   any
}

// Created wraps v in a 201 response.
func Created(v any) Response { return Response{Status: http.StatusCreated, Value: v} }

// Raw is a pre-rendered response written without schema or negotiation.
type Raw struct {
	Status      int
	ContentType string
	Body        []byte
}

// ServeHTTP implements http.Handler.
func (r Raw) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	if r.ContentType != "" {
		w.Header().Set("Content-Type", r.ContentType)
	}
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(r.Body)
}

// materialize writes the result held by ctx.
func (e *Executor) materialize(ctx *Context, w http.ResponseWriter) error {
	value := ctx.result.Get()
	status := ctx.Status

	if resp, ok := value.(Response); ok {
		value = resp.Value
		if resp.Status != 0 {
			status = resp.Status
		}
		for k, vs := range resp.Headers {
			for _, v := range vs {
				ctx.Header.Add(k, v)
			}
		}
	}

	if h, ok := value.(http.Handler); ok {
		copyHeader(w.Header(), ctx.Header)
		h.ServeHTTP(w, ctx.Request)
		return nil
	}

	if value == nil {
		if status == 0 || status == http.StatusOK {
			status = http.StatusNoContent
		}
		copyHeader(w.Header(), ctx.Header)
		w.WriteHeader(status)
		return nil
	}
	if status == 0 {
		status = http.StatusOK
	}

	sel, err := ctx.Negotiator.SelectRenderer(ctx.Request.Header.Get("Accept"), ctx.Renderers, false)
	if err != nil {
		return err
	}

	data, err := e.dump(ctx, value)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := sel.Renderer.Render(&buf, data, sel.MediaType.Params); err != nil {
		return fmt.Errorf("render %s: %w", sel.Renderer.Name(), err)
	}
	copyHeader(w.Header(), ctx.Header)
	w.Header().Set("Content-Type", sel.ContentType())
	w.WriteHeader(status)
	_, err = w.Write(buf.Bytes())
	return err
}

// dump runs the route schema, narrowed by ?fields= when present.
func (e *Executor) dump(ctx *Context, value any) (any, error) {
	s := ctx.Descriptor.Schema()
	if s == nil {
		return value, nil
	}
	if names := ctx.Fields(); names != nil {
		narrowed, err := s.WithOnly(names...)
		if err != nil {
			if errors.Is(err, schema.ErrUnknownField) {
				return nil, apierr.New(http.StatusBadRequest, "invalid_fields", "Invalid fields parameter.").
					Extra("detail", err.Error()).Build()
			}
			return nil, err
		}
		s = narrowed
	}
	if isCollection(value) {
		return s.DumpMany(value)
	}
	return s.Dump(value)
}

func isCollection(v any) bool {
	switch v.(type) {
	case []byte, string:
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}
