package testing

import (
	"context"
	"sync"
)

// SentMail is a message captured by MockMailer.
type SentMail struct {
	To      string
	Subject string
	Body    string
}

// MockMailer records outgoing mail instead of delivering it.
type MockMailer struct {
	mu   sync.Mutex
	sent []SentMail
	err  error
}

// NewMockMailer creates a new mock mailer
func NewMockMailer() *MockMailer {
	return &MockMailer{}
}

// SetError makes subsequent sends fail with err.
func (m *MockMailer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Send records the message.
func (m *MockMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, SentMail{To: to, Subject: subject, Body: body})
	return nil
}

// Sent returns a copy of every recorded message.
func (m *MockMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMail, len(m.sent))
	copy(out, m.sent)
	return out
}
