package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cambista/internal/core"
)

type recorded struct {
	Path          string
	Authorization string
	Operation     string
	Payload       map[string]any
	Message       string
}

// newTestServer answers every request with handler's status and body and
// records what it received.
func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req struct {
			Operation string         `json:"operation"`
			Payload   map[string]any `json:"payload"`
			Message   string         `json:"message"`
		}
		_ = json.Unmarshal(raw, &req)
		calls = append(calls, recorded{
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Operation:     req.Operation,
			Payload:       req.Payload,
			Message:       req.Message,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func staticToken(token string) TokenSource {
	return TokenFunc(func(context.Context) (string, error) { return token, nil })
}

func TestListClients(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"success":true,"data":[
		{"IdCliente":1,"RazonSocial":"ACME SAC","DocumentoIdentidad":"20123456789","TelefonoContacto":null,"Direccion":null},
		{"IdCliente":2,"RazonSocial":"Juan Pérez","DocumentoIdentidad":"45678912","TelefonoContacto":"999888777","Direccion":"Av. Arequipa 123"}
	]}`)
	c := NewClient(srv.URL, nil, staticToken("tok-1"))

	clients, err := c.ListClients(context.Background())
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if len(clients) != 2 || clients[0].Phone != "" || clients[1].Address != "Av. Arequipa 123" {
		t.Fatalf("unexpected clients: %+v", clients)
	}

	got := (*calls)[0]
	if got.Path != "/api/GestionarOperaciones" || got.Operation != OpListClients {
		t.Errorf("unexpected request %+v", got)
	}
	if got.Authorization != "Bearer tok-1" {
		t.Errorf("Authorization = %q", got.Authorization)
	}
	if q, ok := got.Payload["Busqueda"]; !ok || q != "" {
		t.Errorf("payload = %v", got.Payload)
	}
}

func TestNoTokenNoHeader(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"success":true,"data":null}`)
	c := NewClient(srv.URL+"/", nil, staticToken(""))

	clients, err := c.ListClients(context.Background())
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	if clients == nil || len(clients) != 0 {
		t.Errorf("expected empty non-nil list, got %v", clients)
	}
	if (*calls)[0].Authorization != "" {
		t.Errorf("unexpected Authorization header %q", (*calls)[0].Authorization)
	}
	if (*calls)[0].Path != "/api/GestionarOperaciones" {
		t.Errorf("double slash not collapsed: %q", (*calls)[0].Path)
	}
}

func TestBusinessErrorVerbatim(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"success":false,"error":"DNI duplicado"}`)
	c := NewClient(srv.URL, nil, nil)

	_, err := c.SaveClient(context.Background(), core.ClientInput{Name: "Juan", Document: "45678912"})
	var be *core.BusinessError
	if !errors.As(err, &be) {
		t.Fatalf("expected BusinessError, got %T %v", err, err)
	}
	if be.Error() != "DNI duplicado" {
		t.Errorf("message = %q", be.Error())
	}
	if !errors.Is(err, core.ErrBusiness) {
		t.Error("errors.Is(ErrBusiness) should hold")
	}
}

func TestBusinessErrorFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		call   func(*Client) error
		want   string
	}{
		{
			name:   "success false without message",
			status: http.StatusOK,
			body:   `{"success":false,"error":null}`,
			call:   func(c *Client) error { _, err := c.ListTransactions(context.Background()); return err },
			want:   core.MsgFetchTransactions,
		},
		{
			name:   "server error status",
			status: http.StatusInternalServerError,
			body:   `oops`,
			call:   func(c *Client) error { return c.DeleteClient(context.Background(), 7) },
			want:   core.MsgDeleteClient,
		},
		{
			name:   "non-2xx with message field",
			status: http.StatusConflict,
			body:   `{"success":false,"message":"El cliente tiene transacciones"}`,
			call:   func(c *Client) error { return c.DeleteClient(context.Background(), 7) },
			want:   "El cliente tiene transacciones",
		},
		{
			name:   "undecodable data",
			status: http.StatusOK,
			body:   `{"success":true,"data":{"not":"a list"}}`,
			call:   func(c *Client) error { _, err := c.ListClients(context.Background()); return err },
			want:   core.MsgFetchClients,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.status, tt.body)
			err := tt.call(NewClient(srv.URL, nil, nil))
			var be *core.BusinessError
			if !errors.As(err, &be) {
				t.Fatalf("expected BusinessError, got %T %v", err, err)
			}
			if be.Message != tt.want {
				t.Errorf("message = %q, want %q", be.Message, tt.want)
			}
		})
	}
}

func TestConnectivityError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, NewHTTPClient(2*time.Second), nil)
	_, err := c.ListClients(context.Background())
	if !errors.Is(err, core.ErrConnectivity) {
		t.Fatalf("expected connectivity error, got %T %v", err, err)
	}
	if !strings.HasPrefix(err.Error(), "connection error: ") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestLogin(t *testing.T) {
	t.Run("success takes first user and token", func(t *testing.T) {
		srv, calls := newTestServer(t, http.StatusOK, `{"success":true,"token":"abc",
			"data":[{"IdUsuario":3,"NombreCompleto":"Eduardo Amoretti","Email":"e@x.pe"},{"IdUsuario":4}]}`)
		res, err := NewClient(srv.URL, nil, nil).Login(context.Background(), "e@x.pe", "secret")
		if err != nil {
			t.Fatalf("Login: %v", err)
		}
		if res.User.ID != 3 || res.User.FullName != "Eduardo Amoretti" || res.Token != "abc" {
			t.Errorf("unexpected result %+v", res)
		}
		p := (*calls)[0].Payload
		if p["Email"] != "e@x.pe" || p["PasswordHash"] != "secret" {
			t.Errorf("payload = %v", p)
		}
	})

	t.Run("empty user list is invalid credentials", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusOK, `{"success":true,"data":[]}`)
		_, err := NewClient(srv.URL, nil, nil).Login(context.Background(), "e@x.pe", "bad")
		if !errors.Is(err, core.ErrAuth) {
			t.Fatalf("expected AuthError, got %v", err)
		}
		if err.Error() != "invalid credentials" {
			t.Errorf("message = %q", err.Error())
		}
	})

	t.Run("rejection carries reason", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusOK, `{"success":false,"error":"Usuario bloqueado"}`)
		_, err := NewClient(srv.URL, nil, nil).Login(context.Background(), "e@x.pe", "bad")
		var ae *core.AuthError
		if !errors.As(err, &ae) || ae.Reason != "Usuario bloqueado" {
			t.Fatalf("unexpected error %v", err)
		}
	})

	t.Run("unauthorized status", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusUnauthorized, ``)
		_, err := NewClient(srv.URL, nil, nil).Login(context.Background(), "e@x.pe", "bad")
		if !errors.Is(err, core.ErrAuth) {
			t.Fatalf("expected AuthError, got %v", err)
		}
	})

	t.Run("server failure is a business error", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusBadGateway, `<html>`)
		_, err := NewClient(srv.URL, nil, nil).Login(context.Background(), "e@x.pe", "x")
		var be *core.BusinessError
		if !errors.As(err, &be) || be.Message != core.MsgLogin {
			t.Fatalf("unexpected error %v", err)
		}
	})
}

func TestSaveAndEditClientPayload(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"success":true,"id":"15"}`)
	c := NewClient(srv.URL, nil, nil)
	in := core.ClientInput{Name: "ACME", Document: "20123456789", Phone: "999", Account: "191-123"}

	id, err := c.SaveClient(context.Background(), in)
	if err != nil || id != 15 {
		t.Fatalf("SaveClient = %d, %v", id, err)
	}
	if err := c.EditClient(context.Background(), 9, in); err != nil {
		t.Fatalf("EditClient: %v", err)
	}

	create, edit := (*calls)[0].Payload, (*calls)[1].Payload
	if v, ok := create["IdCliente"]; !ok || v != nil {
		t.Errorf("create IdCliente = %v, want null", v)
	}
	if edit["IdCliente"] != float64(9) {
		t.Errorf("edit IdCliente = %v", edit["IdCliente"])
	}
	if create["RazonSocial"] != "ACME" || create["NumeroCuenta"] != "191-123" || create["TelefonoAuxiliar"] != "" {
		t.Errorf("create payload = %v", create)
	}
}

func TestSaveTransactionPayload(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"success":true,"id":101}`)
	c := NewClient(srv.URL, nil, nil)

	in := core.TransactionInput{
		ClientID:      5,
		UserID:        3,
		Date:          time.Date(2025, 11, 3, 14, 5, 0, 0, time.UTC),
		Kind:          core.Sale,
		Currency:      "Euros",
		PaymentMethod: "Yape/Plin",
		Status:        core.StatusPending,
		Amount:        decimal.RequireFromString("100.50"),
		Rate:          decimal.RequireFromString("3.80"),
		Detail:        "ventanilla",
	}
	id, err := c.SaveTransaction(context.Background(), in)
	if err != nil || id != 101 {
		t.Fatalf("SaveTransaction = %d, %v", id, err)
	}

	p := (*calls)[0].Payload
	want := map[string]any{
		"IdCliente":        float64(5),
		"IdUsuario":        float64(3),
		"FechaOperacion":   "2025-11-03 14:05:00",
		"IdTipoMovimiento": float64(2),
		"IdMoneda":         float64(2),
		"IdTipoPago":       float64(3),
		"MontoDivisa":      100.5,
		"TasaCambio":       3.8,
		"Detalle":          "ventanilla",
		"IdEstado":         float64(3),
	}
	for k, v := range want {
		if p[k] != v {
			t.Errorf("%s = %v (%T), want %v", k, p[k], p[k], v)
		}
	}
}

func TestListTransactions(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"success":true,"data":[
		{"IdTransaccion":1,"NombreCliente":"ACME","FechaOperacion":"2025-11-03T10:00:00","TipoMovimiento":"Compra",
		 "MonedaSimbolo":"$","MontoDivisa":100,"MontoLocal":"375.50","MetodoPago":"Efectivo","Estado":"Completada"}
	]}`)
	txs, err := NewClient(srv.URL, nil, nil).ListTransactions(context.Background())
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Kind != core.Purchase || !txs[0].LocalAmount.Equal(decimal.RequireFromString("375.5")) {
		t.Fatalf("unexpected transactions %+v", txs)
	}
	p := (*calls)[0].Payload
	if v, ok := p["IdTipoMovimiento"]; !ok || v != nil {
		t.Errorf("IdTipoMovimiento = %v, want null", v)
	}
}

func TestMonthlySummary(t *testing.T) {
	srv, calls := newTestServer(t, http.StatusOK, `{"success":true,"data":[
		{"TotalCompraUSD":100,"TotalCompraSoles":375,"TotalVentaUSD":50,"TotalVentaSoles":190,"Utilidad":-185,"TasaPromedio":3.77}
	]}`)
	c := NewClient(srv.URL, nil, nil)

	s, err := c.MonthlySummary(context.Background(), core.Period{Year: 2025, Month: 11})
	if err != nil {
		t.Fatalf("MonthlySummary: %v", err)
	}
	if !s.Profit.Equal(decimal.NewFromInt(-185)) || !s.AverageRate.Equal(decimal.RequireFromString("3.77")) {
		t.Errorf("unexpected summary %+v", s)
	}
	p := (*calls)[0].Payload
	if p["Anio"] != float64(2025) || p["Mes"] != float64(11) {
		t.Errorf("payload = %v", p)
	}

	if _, err := c.MonthlySummary(context.Background(), core.Period{Year: 2025, Month: 13}); !errors.Is(err, core.ErrInvalidMonth) {
		t.Errorf("expected ErrInvalidMonth, got %v", err)
	}
	if len(*calls) != 1 {
		t.Errorf("invalid period should not reach the server")
	}
}

func TestChat(t *testing.T) {
	t.Run("reply", func(t *testing.T) {
		srv, calls := newTestServer(t, http.StatusOK, `{"success":true,"reply":"Tienes 3 clientes."}`)
		reply, err := NewClient(srv.URL, nil, nil).Chat(context.Background(), "¿cuántos clientes?")
		if err != nil || reply != "Tienes 3 clientes." {
			t.Fatalf("Chat = %q, %v", reply, err)
		}
		if (*calls)[0].Path != "/api/AgenteChat" || (*calls)[0].Message != "¿cuántos clientes?" {
			t.Errorf("unexpected request %+v", (*calls)[0])
		}
	})

	t.Run("empty reply", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusOK, `{"success":true,"reply":""}`)
		reply, err := NewClient(srv.URL, nil, nil).Chat(context.Background(), "hola")
		if err != nil || reply != emptyAgentReplyText {
			t.Fatalf("Chat = %q, %v", reply, err)
		}
	})

	t.Run("failure", func(t *testing.T) {
		srv, _ := newTestServer(t, http.StatusOK, `{"success":false,"error":"modelo no disponible"}`)
		_, err := NewClient(srv.URL, nil, nil).Chat(context.Background(), "hola")
		var be *core.BusinessError
		if !errors.As(err, &be) || be.Message != "modelo no disponible" {
			t.Fatalf("unexpected error %v", err)
		}
	})
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL, nil, nil).ListClients(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
	if !errors.Is(err, core.ErrConnectivity) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
}

func TestMonthlySummaryUnreadableData(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing data", `{"success":true}`},
		{"null data", `{"success":true,"data":null}`},
		{"empty list", `{"success":true,"data":[]}`},
		{"bad amount", `{"success":true,"data":{"TotalCompraUSD":"abc"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, http.StatusOK, tt.body)
			_, err := NewClient(srv.URL, nil, nil).MonthlySummary(context.Background(), core.Period{Year: 2025, Month: 11})
			if !errors.Is(err, core.ErrBusiness) {
				t.Fatalf("expected business error, got %v", err)
			}
			if err.Error() != core.MsgMonthlySummary {
				t.Errorf("message = %q, want %q", err.Error(), core.MsgMonthlySummary)
			}
		})
	}
}

func TestSaveTransactionKeepsWideID(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"success":true,"id":"9007199254740993"}`)
	id, err := NewClient(srv.URL, nil, nil).SaveTransaction(context.Background(), core.TransactionInput{
		ClientID: 1,
		Kind:     core.Purchase,
		Amount:   decimal.NewFromInt(1),
		Rate:     decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("SaveTransaction: %v", err)
	}
	if id != 9007199254740993 {
		t.Errorf("id = %d, want 9007199254740993", id)
	}
}
