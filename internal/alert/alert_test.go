// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package alert

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"

	mail "gopkg.in/gomail.v2"
)

type sendCloser struct {
	mail.SendFunc
	closed int
}

func (sc *sendCloser) Close() error {
	sc.closed++
	return nil
}

func TestNewMailer(t *testing.T) {
	t.Setenv("MAIL_USERNAME", "daq@example.com")
	t.Setenv("MAIL_PASSWORD", "s3cr3t")
	t.Setenv("MAIL_SERVER", "smtp.example.com")
	t.Setenv("MAIL_PORT", "587")
	t.Setenv("MAIL_TGTS", "a@example.com, b@example.com,")

	m := NewMailer("sigma-daq")
	if got, want := m.Port, 587; got != want {
		t.Fatalf("invalid port: got=%d, want=%d", got, want)
	}
	if got, want := m.Tgts, []string{"a@example.com", "b@example.com"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid targets: got=%q, want=%q", got, want)
	}
	if !m.configured() {
		t.Fatalf("mailer should be configured")
	}
}

func TestSendNoConfig(t *testing.T) {
	t.Setenv("MAIL_USERNAME", "")
	t.Setenv("MAIL_TGTS", "")

	for _, m := range []*Mailer{nil, NewMailer("sigma-daq"), {Usr: "u", Pwd: "p", Srv: "s", Port: 25}} {
		ok, err := m.Send("subject", "body")
		if !errors.Is(err, ErrNoConfig) {
			t.Fatalf("invalid error: got=%v, want=%v", err, ErrNoConfig)
		}
		if ok {
			t.Fatalf("alert should not have been sent")
		}
	}
}

func TestSend(t *testing.T) {
	var (
		from string
		to   []string
		body = new(bytes.Buffer)
		snd  = &sendCloser{}
	)
	snd.SendFunc = func(f string, t []string, msg io.WriterTo) error {
		from = f
		to = t
		body.Reset()
		_, err := msg.WriteTo(body)
		return err
	}

	m := &Mailer{
		Name: "sigma-daq",
		Usr:  "daq@example.com",
		Pwd:  "s3cr3t",
		Srv:  "smtp.example.com",
		Port: 587,
		Tgts: []string{"a@example.com"},
		dial: func(*Mailer) (mail.SendCloser, error) { return snd, nil },
	}

	for i := 0; i < MaxAlerts+2; i++ {
		ok, err := m.Send("acquisition failed", "device a6010001: timeout")
		if err != nil {
			t.Fatalf("could not send alert %d: %+v", i, err)
		}
		if got, want := ok, i < MaxAlerts; got != want {
			t.Fatalf("alert %d: got=%v, want=%v", i, got, want)
		}
	}

	if got, want := snd.closed, MaxAlerts; got != want {
		t.Fatalf("invalid number of mails: got=%d, want=%d", got, want)
	}
	if got, want := from, "daq@example.com"; got != want {
		t.Fatalf("invalid sender: got=%q, want=%q", got, want)
	}
	if got, want := to, []string{"a@example.com"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid recipients: got=%q, want=%q", got, want)
	}
	for _, want := range []string{
		"Subject: [sigma-daq] acquisition failed",
		"device a6010001: timeout",
	} {
		if !strings.Contains(body.String(), want) {
			t.Fatalf("missing %q in mail:\n%s", want, body.String())
		}
	}

	ok, err := m.Send("another failure", "boom")
	if err != nil || !ok {
		t.Fatalf("could not send alert with a new subject: ok=%v, err=%+v", ok, err)
	}
}

func TestSendDialError(t *testing.T) {
	m := &Mailer{
		Usr:  "u",
		Pwd:  "p",
		Srv:  "smtp.example.com",
		Port: 25,
		Tgts: []string{"a@example.com"},
		dial: func(*Mailer) (mail.SendCloser, error) { return nil, errors.New("refused") },
	}
	_, err := m.Send("subject", "body")
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := err.Error(), "alert: could not dial mail server smtp.example.com:25: refused"; got != want {
		t.Fatalf("invalid error:\ngot= %q\nwant=%q", got, want)
	}
}
