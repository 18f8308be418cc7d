// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alert sends e-mail alerts about failing acquisitions.
package alert // import "github.com/go-lpc/sigma/internal/alert"

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	mail "gopkg.in/gomail.v2"
)

// ErrNoConfig is returned when sending an alert with a mailer that
// lacks credentials, a server or recipients.
var ErrNoConfig = errors.New("alert: missing mail configuration")

// MaxAlerts is the number of alerts sent per subject.
const MaxAlerts = 5

// Mailer sends alerts by e-mail.
type Mailer struct {
	Name string // name of the process sending alerts

	Usr  string
	Pwd  string
	Srv  string
	Port int
	Tgts []string

	mu     sync.Mutex
	alerts map[string]int // number of alerts sent, per subject
	dial   func(m *Mailer) (mail.SendCloser, error)
}

// NewMailer creates a mailer configured from the MAIL_USERNAME,
// MAIL_PASSWORD, MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment
// variables. MAIL_TGTS is a comma separated list of recipients.
func NewMailer(name string) *Mailer {
	port, _ := strconv.Atoi(os.Getenv("MAIL_PORT"))
	return &Mailer{
		Name: name,
		Usr:  os.Getenv("MAIL_USERNAME"),
		Pwd:  os.Getenv("MAIL_PASSWORD"),
		Srv:  os.Getenv("MAIL_SERVER"),
		Port: port,
		Tgts: splitTargets(os.Getenv("MAIL_TGTS")),
	}
}

func splitTargets(txt string) []string {
	var tgts []string
	for _, v := range strings.Split(txt, ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		tgts = append(tgts, v)
	}
	return tgts
}

func (m *Mailer) configured() bool {
	return m.Usr != "" && m.Pwd != "" &&
		m.Srv != "" && m.Port != 0 &&
		len(m.Tgts) != 0
}

// Send sends an alert with the given subject and body.
// Alerts sharing a subject are sent at most MaxAlerts times;
// Send reports whether the alert was sent.
func (m *Mailer) Send(subject, body string) (bool, error) {
	if m == nil || !m.configured() {
		return false, ErrNoConfig
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.alerts == nil {
		m.alerts = make(map[string]int)
	}
	if m.alerts[subject] >= MaxAlerts {
		return false, nil
	}
	m.alerts[subject]++

	msg := mail.NewMessage()
	msg.SetHeader("From", m.Usr)
	msg.SetHeader("Bcc", m.Tgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[%s] %s", m.Name, subject))
	msg.SetBody("text/plain", body)

	dial := m.dial
	if dial == nil {
		dial = dialSMTP
	}
	snd, err := dial(m)
	if err != nil {
		return false, fmt.Errorf("alert: could not dial mail server %s:%d: %w", m.Srv, m.Port, err)
	}
	defer snd.Close()

	err = mail.Send(snd, msg)
	if err != nil {
		return false, fmt.Errorf("alert: could not send mail: %w", err)
	}

	return true, nil
}

func dialSMTP(m *Mailer) (mail.SendCloser, error) {
	dial := mail.NewDialer(m.Srv, m.Port, m.Usr, m.Pwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	return dial.Dial()
}
