// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asix

import (
	"errors"
	"fmt"
)

// Kinds of errors reported by this package.
// Use errors.Is to classify an error.
var (
	ErrIO       = errors.New("asix: I/O error")
	ErrProtocol = errors.New("asix: protocol error")
	ErrConfig   = errors.New("asix: invalid configuration")
	ErrTimeout  = errors.New("asix: timeout")
)

type kindError struct {
	kind error
	msg  string
	err  error
}

func (e *kindError) Error() string { return "asix: " + e.text() }

func (e *kindError) text() string {
	switch err := e.err.(type) {
	case nil:
		return e.msg
	case *kindError:
		return e.msg + ": " + err.text()
	default:
		return e.msg + ": " + err.Error()
	}
}

func (e *kindError) Unwrap() error { return e.err }

func (e *kindError) Is(target error) bool { return target == e.kind }

func ioErrorf(err error, format string, args ...interface{}) error {
	return &kindError{kind: ErrIO, msg: fmt.Sprintf(format, args...), err: err}
}

func protocolErrorf(format string, args ...interface{}) error {
	return &kindError{kind: ErrProtocol, msg: fmt.Sprintf(format, args...)}
}

func configErrorf(format string, args ...interface{}) error {
	return &kindError{kind: ErrConfig, msg: fmt.Sprintf(format, args...)}
}

func timeoutErrorf(format string, args ...interface{}) error {
	return &kindError{kind: ErrTimeout, msg: fmt.Sprintf(format, args...)}
}

// wrapf adds context to an error produced by this package,
// preserving its kind.
func wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var ke *kindError
	if errors.As(err, &ke) {
		return &kindError{kind: ke.kind, msg: fmt.Sprintf(format, args...), err: err}
	}
	return ioErrorf(err, format, args...)
}
