package core

import (
	"errors"
	"strings"
)

var (
	ErrConnectivity  = errors.New("connection error")
	ErrBusiness      = errors.New("business error")
	ErrAuth          = errors.New("invalid credentials")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrEmptyName     = errors.New("empty client name")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Fallback messages used when the server gives no reason.
const (
	MsgFetchClients      = "error fetching clients"
	MsgFetchTransactions = "error fetching transactions"
	MsgSaveClient        = "error saving client"
	MsgDeleteClient      = "error deleting client"
	MsgSaveTransaction   = "error saving transaction"
	MsgMonthlySummary    = "error fetching monthly summary"
	MsgLogin             = "login service error"
	MsgAgent             = "agent error"
)

// ConnectivityError means the remote API could not be reached.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	if e.Err == nil {
		return ErrConnectivity.Error()
	}
	return ErrConnectivity.Error() + ": " + shortDiagnostic(e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

func (e *ConnectivityError) Is(target error) bool { return target == ErrConnectivity }

// BusinessError means the API answered but reported a failure. Message is
// suitable for direct display.
type BusinessError struct {
	Op      string
	Message string
}

func (e *BusinessError) Error() string { return e.Message }

func (e *BusinessError) Is(target error) bool { return target == ErrBusiness }

// NewBusinessError uses the server text when present, the fallback otherwise.
func NewBusinessError(op, serverMsg, fallback string) *BusinessError {
	msg := strings.TrimSpace(serverMsg)
	if msg == "" {
		msg = fallback
	}
	return &BusinessError{Op: op, Message: msg}
}

// AuthError is a rejected login. Reason is the optional server explanation.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return ErrAuth.Error()
	}
	return ErrAuth.Error() + ": " + e.Reason
}

func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// shortDiagnostic keeps only the innermost part of a transport error chain,
// e.g. "connection refused" instead of the full dial trace.
func shortDiagnostic(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 && i+2 < len(msg) {
		return msg[i+2:]
	}
	return msg
}
