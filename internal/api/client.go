// Package api talks to the exchange back office over its JSON operation
// endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"cambista/internal/core"
	applog "cambista/internal/log"
)

const (
	DefaultBaseURL = "https://api.amorettiexchange.tech/"
	DefaultTimeout = 30 * time.Second

	operationsPath = "api/GestionarOperaciones"
	agentPath      = "api/AgenteChat"

	maxResponseBytes = 10 << 20
	dateTimeLayout   = "2006-01-02 15:04:05"
)

// Remote operation names.
const (
	OpLogin            = "SP_LoginUsuario"
	OpListClients      = "SP_ListarClientes"
	OpSaveClient       = "SP_GestionarCliente"
	OpDeleteClient     = "SP_EliminarCliente"
	OpListTransactions = "SP_ListarTransacciones"
	OpSaveTransaction  = "SP_RegistrarTransaccion"
	OpMonthlySummary   = "SP_ResumenMensual"
)

const (
	opAgent             = "AgenteChat"
	emptyAgentReplyText = "the agent replied with an empty message"
)

// TokenSource yields the bearer token attached to every request. An empty
// token means the request goes out unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Client calls the remote API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient builds a client. A nil httpClient gets the pooled default with
// DefaultTimeout; a nil tokens source sends no Authorization header.
func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/",
		http:    httpClient,
		tokens:  tokens,
		logger:  slog.Default().With(applog.FieldComponent, applog.ComponentAPI),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPClient returns a client with connection pooling and the given
// overall timeout applied to connect, read and write.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

type operationRequest struct {
	Operation string `json:"operation"`
	Payload   any    `json:"payload"`
}

// envelope is the common response shape of the operation endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Token   string          `json:"token"`
	User    json.RawMessage `json:"user"`
	ID      json.RawMessage `json:"id"`
}

func (e *envelope) reason() string {
	if strings.TrimSpace(e.Error) != "" {
		return e.Error
	}
	return e.Message
}

// post sends body to path and decodes the JSON response into out. Only
// transport failures are returned as errors; the status code is returned for
// the caller to judge. decodeErr reports a body that was not valid JSON.
func (c *Client) post(ctx context.Context, op, path string, body, out any) (status int, decodeErr error, err error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			c.logger.WarnContext(ctx, "Token lookup failed, sending unauthenticated request",
				applog.FieldOperation, op, applog.FieldError, err)
		} else if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Remote call failed",
			applog.FieldOperation, op, applog.FieldError, err,
			applog.FieldDuration, time.Since(start).Milliseconds())
		return 0, nil, &core.ConnectivityError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, &core.ConnectivityError{Op: op, Err: err}
	}

	c.logger.DebugContext(ctx, "Remote call completed",
		applog.FieldOperation, op,
		applog.FieldStatus, resp.StatusCode,
		applog.FieldDuration, time.Since(start).Milliseconds())

	if len(bytes.TrimSpace(raw)) > 0 {
		decodeErr = json.Unmarshal(raw, out)
	} else {
		decodeErr = errors.New("empty response body")
	}
	return resp.StatusCode, decodeErr, nil
}

func isSuccessStatus(code int) bool { return code >= 200 && code < 300 }

// operation runs one stored procedure and returns its envelope once it is
// known to be successful.
func (c *Client) operation(ctx context.Context, op string, payload any, fallback string) (*envelope, error) {
	var env envelope
	status, decodeErr, err := c.post(ctx, op, operationsPath, operationRequest{Operation: op, Payload: payload}, &env)
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		if isSuccessStatus(status) {
			c.logger.WarnContext(ctx, "Undecodable response body", applog.FieldOperation, op, applog.FieldError, decodeErr)
		}
		return nil, core.NewBusinessError(op, "", fallback)
	}
	if !isSuccessStatus(status) || !env.Success {
		return nil, core.NewBusinessError(op, env.reason(), fallback)
	}
	return &env, nil
}

// decodeList decodes a data array. null or missing data is an empty list.
func decodeList[T any](op string, data json.RawMessage, fallback string) ([]T, error) {
	out := []T{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, nil
	}
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, core.NewBusinessError(op, "", fallback)
	}
	return out, nil
}

// decodeOne accepts either a single object or a list, taking the first row.
func decodeOne[T any](data json.RawMessage) (T, bool) {
	var zero T
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return zero, false
	}
	if trimmed[0] == '[' {
		var rows []T
		if err := json.Unmarshal(trimmed, &rows); err != nil || len(rows) == 0 {
			return zero, false
		}
		return rows[0], true
	}
	var one T
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return zero, false
	}
	return one, true
}

// LoginResult is a successful authentication.
type LoginResult struct {
	User  core.User
	Token string
}

// Login authenticates an operator. A rejection is an *core.AuthError.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	payload := map[string]any{"Email": email, "PasswordHash": password}

	var env envelope
	status, decodeErr, err := c.post(ctx, OpLogin, operationsPath, operationRequest{Operation: OpLogin, Payload: payload}, &env)
	if err != nil {
		return LoginResult{}, err
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return LoginResult{}, &core.AuthError{Reason: strings.TrimSpace(env.reason())}
	case decodeErr != nil || !isSuccessStatus(status):
		return LoginResult{}, core.NewBusinessError(OpLogin, env.reason(), core.MsgLogin)
	case !env.Success:
		return LoginResult{}, &core.AuthError{Reason: strings.TrimSpace(env.reason())}
	}

	user, ok := decodeOne[core.User](env.Data)
	if !ok {
		user, ok = decodeOne[core.User](env.User)
	}
	if !ok {
		return LoginResult{}, &core.AuthError{}
	}
	return LoginResult{User: user, Token: env.Token}, nil
}

// ListClients returns the full client roster.
func (c *Client) ListClients(ctx context.Context) ([]core.Client, error) {
	env, err := c.operation(ctx, OpListClients, map[string]any{"Busqueda": ""}, core.MsgFetchClients)
	if err != nil {
		return nil, err
	}
	return decodeList[core.Client](OpListClients, env.Data, core.MsgFetchClients)
}

type clientPayload struct {
	ID       *int   `json:"IdCliente"`
	Name     string `json:"RazonSocial"`
	Document string `json:"DocumentoIdentidad"`
	Phone    string `json:"TelefonoContacto"`
	AuxPhone string `json:"TelefonoAuxiliar"`
	Account  string `json:"NumeroCuenta"`
	Address  string `json:"Direccion"`
}

func newClientPayload(id *int, in core.ClientInput) clientPayload {
	return clientPayload{
		ID:       id,
		Name:     in.Name,
		Document: in.Document,
		Phone:    in.Phone,
		AuxPhone: in.AuxPhone,
		Account:  in.Account,
		Address:  in.Address,
	}
}

// SaveClient creates a client and returns the server-assigned id, 0 when the
// server does not echo one.
func (c *Client) SaveClient(ctx context.Context, in core.ClientInput) (int, error) {
	env, err := c.operation(ctx, OpSaveClient, newClientPayload(nil, in), core.MsgSaveClient)
	if err != nil {
		return 0, err
	}
	return env.intID(), nil
}

// EditClient updates client id.
func (c *Client) EditClient(ctx context.Context, id int, in core.ClientInput) error {
	_, err := c.operation(ctx, OpSaveClient, newClientPayload(&id, in), core.MsgSaveClient)
	return err
}

// DeleteClient removes client id. The server refuses when the client still
// has transactions, and its message is returned verbatim.
func (c *Client) DeleteClient(ctx context.Context, id int) error {
	_, err := c.operation(ctx, OpDeleteClient, map[string]any{"IdCliente": id}, core.MsgDeleteClient)
	return err
}

// ListTransactions returns every transaction.
func (c *Client) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	payload := map[string]any{"Busqueda": "", "IdTipoMovimiento": nil}
	env, err := c.operation(ctx, OpListTransactions, payload, core.MsgFetchTransactions)
	if err != nil {
		return nil, err
	}
	return decodeList[core.Transaction](OpListTransactions, env.Data, core.MsgFetchTransactions)
}

type transactionPayload struct {
	ClientID      int         `json:"IdCliente"`
	UserID        int         `json:"IdUsuario"`
	Date          string      `json:"FechaOperacion"`
	KindID        int         `json:"IdTipoMovimiento"`
	CurrencyID    int         `json:"IdMoneda"`
	PaymentID     int         `json:"IdTipoPago"`
	ForeignAmount json.Number `json:"MontoDivisa"`
	Rate          json.Number `json:"TasaCambio"`
	Detail        string      `json:"Detalle"`
	StatusID      int         `json:"IdEstado"`
}

// SaveTransaction registers a movement.
func (c *Client) SaveTransaction(ctx context.Context, in core.TransactionInput) (int64, error) {
	date := in.Date
	if date.IsZero() {
		date = time.Now()
	}
	payload := transactionPayload{
		ClientID:      in.ClientID,
		UserID:        in.UserID,
		Date:          date.Format(dateTimeLayout),
		KindID:        in.Kind.ID(),
		CurrencyID:    core.CurrencyID(in.Currency),
		PaymentID:     core.PaymentMethodID(in.PaymentMethod),
		ForeignAmount: json.Number(in.Amount.String()),
		Rate:          json.Number(in.Rate.String()),
		Detail:        in.Detail,
		StatusID:      in.Status.ID(),
	}
	env, err := c.operation(ctx, OpSaveTransaction, payload, core.MsgSaveTransaction)
	if err != nil {
		return 0, err
	}
	return env.int64ID(), nil
}

// MonthlySummary asks the server for its own cash balance of p.
func (c *Client) MonthlySummary(ctx context.Context, p core.Period) (core.MonthlySummary, error) {
	if err := p.Validate(); err != nil {
		return core.MonthlySummary{}, err
	}
	env, err := c.operation(ctx, OpMonthlySummary, map[string]any{"Anio": p.Year, "Mes": p.Month}, core.MsgMonthlySummary)
	if err != nil {
		return core.MonthlySummary{}, err
	}
	summary, ok := decodeOne[core.MonthlySummary](env.Data)
	if !ok {
		return core.MonthlySummary{}, core.NewBusinessError(OpMonthlySummary, "", core.MsgMonthlySummary)
	}
	return summary, nil
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Success bool   `json:"success"`
	Reply   string `json:"reply"`
	Error   string `json:"error"`
}

// Chat sends one message to the assistant agent and returns its reply.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	var resp chatResponse
	status, decodeErr, err := c.post(ctx, opAgent, agentPath, chatRequest{Message: message}, &resp)
	if err != nil {
		return "", err
	}
	if decodeErr != nil || !isSuccessStatus(status) || !resp.Success {
		return "", core.NewBusinessError(opAgent, resp.Error, core.MsgAgent)
	}
	if strings.TrimSpace(resp.Reply) == "" {
		return emptyAgentReplyText, nil
	}
	return resp.Reply, nil
}

// intID is int64ID narrowed for client ids.
func (e *envelope) intID() int {
	return int(e.int64ID())
}

// int64ID reads the echoed id, which the server sends as a number or a string.
func (e *envelope) int64ID() int64 {
	trimmed := bytes.TrimSpace(e.ID)
	if len(trimmed) == 0 {
		return 0
	}
	var n json.Number
	if trimmed[0] == '"' {
		var s string
		if json.Unmarshal(trimmed, &s) != nil {
			return 0
		}
		n = json.Number(s)
	} else if json.Unmarshal(trimmed, &n) != nil {
		return 0
	}
	v, err := n.Int64()
	if err != nil {
		return 0
	}
	return v
}
