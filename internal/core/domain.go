package core

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Movement kinds as the backend spells them.
const (
	Purchase MovementKind = "Compra"
	Sale     MovementKind = "Venta"
)

// Transaction statuses as the backend spells them.
const (
	StatusCompleted Status = "Completada"
	StatusPending   Status = "Pendiente"
	StatusVoided    Status = "Anulada"
)

type (
	// MovementKind tells whether the business bought or sold foreign currency.
	MovementKind string

	// Status is compared by exact string equality.
	Status string

	Client struct {
		ID       int    `json:"IdCliente"`
		Name     string `json:"RazonSocial"`
		Document string `json:"DocumentoIdentidad"`
		Phone    string `json:"TelefonoContacto"`
		Address  string `json:"Direccion"`
	}

	Transaction struct {
		ID            int64           `json:"IdTransaccion"`
		ClientName    string          `json:"NombreCliente"`
		Date          string          `json:"FechaOperacion"`
		Kind          MovementKind    `json:"TipoMovimiento"`
		Currency      string          `json:"MonedaSimbolo"`
		ForeignAmount decimal.Decimal `json:"MontoDivisa"`
		LocalAmount   decimal.Decimal `json:"MontoLocal"`
		PaymentMethod string          `json:"MetodoPago"`
		Status        Status          `json:"Estado"`
	}

	User struct {
		ID       int    `json:"IdUsuario"`
		FullName string `json:"NombreCompleto"`
		Email    string `json:"Email"`
	}

	// ClientInput carries the editable fields of a client.
	ClientInput struct {
		Name     string
		Document string
		Phone    string
		AuxPhone string
		Account  string
		Address  string
	}

	// TransactionInput is what an operator fills in to register a movement.
	TransactionInput struct {
		ClientID      int
		UserID        int
		Date          time.Time
		Kind          MovementKind
		Currency      string
		PaymentMethod string
		Status        Status
		Amount        decimal.Decimal // foreign currency
		Rate          decimal.Decimal
		Detail        string
	}
)

// ParseMovementKind matches the localized or English name, ignoring case.
func ParseMovementKind(s string) (MovementKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "compra", "purchase":
		return Purchase, true
	case "venta", "sale":
		return Sale, true
	}
	return MovementKind(s), false
}

// UnmarshalJSON normalizes known kinds and keeps unknown text verbatim.
func (k *MovementKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*k, _ = ParseMovementKind(s)
	return nil
}

// IsKnown reports whether k is Purchase or Sale.
func (k MovementKind) IsKnown() bool {
	return k == Purchase || k == Sale
}

// ID is the backend catalog identifier of the kind.
func (k MovementKind) ID() int {
	if k == Sale {
		return 2
	}
	return 1
}

// ID is the backend catalog identifier of the status.
func (s Status) ID() int {
	switch s {
	case StatusVoided:
		return 2
	case StatusPending:
		return 3
	default:
		return 1
	}
}

// CurrencyID maps the currency names offered to operators to catalog IDs.
func CurrencyID(name string) int {
	switch name {
	case "Euros":
		return 2
	case "Soles":
		return 3
	default:
		return 1
	}
}

// PaymentMethodID maps payment method names to catalog IDs.
func PaymentMethodID(name string) int {
	switch name {
	case "Efectivo":
		return 1
	case "Transferencia":
		return 2
	case "Yape/Plin":
		return 3
	default:
		return 4
	}
}

// UnmarshalJSON accepts null for the optional fields.
func (c *Client) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       int     `json:"IdCliente"`
		Name     string  `json:"RazonSocial"`
		Document *string `json:"DocumentoIdentidad"`
		Phone    *string `json:"TelefonoContacto"`
		Address  *string `json:"Direccion"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = Client{
		ID:       raw.ID,
		Name:     raw.Name,
		Document: deref(raw.Document),
		Phone:    deref(raw.Phone),
		Address:  deref(raw.Address),
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ImpliedRate is local over foreign amount, zero when foreign is zero.
func (t Transaction) ImpliedRate() decimal.Decimal {
	if t.ForeignAmount.IsZero() {
		return decimal.Zero
	}
	return t.LocalAmount.Div(t.ForeignAmount)
}

// LocalAmount is the amount converted at the entered rate.
func (in TransactionInput) LocalAmount() decimal.Decimal {
	return in.Amount.Mul(in.Rate).Round(2)
}

// FilterClients keeps clients whose name contains query (any case) or whose
// document contains it.
func FilterClients(clients []Client, query string) []Client {
	if query == "" {
		return clients
	}
	q := strings.ToLower(query)
	out := make([]Client, 0, len(clients))
	for _, c := range clients {
		if strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(c.Document, query) {
			out = append(out, c)
		}
	}
	return out
}

// FilterTransactions keeps transactions of the given kind (nil for any)
// whose client name contains query, ignoring case.
func FilterTransactions(txs []Transaction, kind *MovementKind, query string) []Transaction {
	q := strings.ToLower(query)
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if kind != nil && t.Kind != *kind {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(t.ClientName), q) {
			continue
		}
		out = append(out, t)
	}
	return out
}
