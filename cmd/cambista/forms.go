package main

import (
	"errors"
	"flag"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"cambista/internal/core"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their flag names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("flag")
	})
	return v
}

type loginForm struct {
	Email    string `flag:"email" validate:"required"`
	Password string `flag:"password" validate:"required" trim:"-"`
}

type clientForm struct {
	Name     string `flag:"name" validate:"required"`
	Document string `flag:"doc"`
	Phone    string `flag:"phone" validate:"omitempty,len=9"`
	AuxPhone string `flag:"aux-phone"`
	Account  string `flag:"account"`
	Address  string `flag:"address"`
}

func (f *clientForm) bind(fs *flag.FlagSet) {
	fs.StringVar(&f.Name, "name", "", "legal or display name (required)")
	fs.StringVar(&f.Document, "doc", "", "identity document")
	fs.StringVar(&f.Phone, "phone", "", "contact phone, 9 digits")
	fs.StringVar(&f.AuxPhone, "aux-phone", "", "secondary phone")
	fs.StringVar(&f.Account, "account", "", "bank account")
	fs.StringVar(&f.Address, "address", "", "address")
}

func (f *clientForm) input() core.ClientInput {
	return core.ClientInput{
		Name:     f.Name,
		Document: f.Document,
		Phone:    f.Phone,
		AuxPhone: f.AuxPhone,
		Account:  f.Account,
		Address:  f.Address,
	}
}

type transactionForm struct {
	ClientID int    `flag:"client" validate:"gt=0"`
	Kind     string `flag:"kind" validate:"required"`
	Currency string `flag:"currency" validate:"required"`
	Method   string `flag:"method" validate:"required"`
	Status   string `flag:"status" validate:"oneof=Completada Pendiente Anulada"`
	Amount   string `flag:"amount" validate:"required"`
	Rate     string `flag:"rate" validate:"required"`
	Detail   string `flag:"detail"`
}

// validateForm trims every string field not tagged trim:"-", then checks the rules and reports
// the first broken one as a usage error.
func validateForm(form any) error {
	trimStrings(form)
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	return usageError{msg: fieldMessage(verrs[0])}
}

func fieldMessage(fe validator.FieldError) string {
	name := fe.Field()
	switch fe.Tag() {
	case "required":
		if name == "name" {
			return core.ErrEmptyName.Error()
		}
		return fmt.Sprintf("-%s is required", name)
	case "gt":
		return fmt.Sprintf("-%s is required", name)
	case "len":
		return fmt.Sprintf("-%s must be %s characters long", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("-%s must be one of: %s", name, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("-%s is invalid", name)
	}
}

func trimStrings(form any) {
	v := reflect.ValueOf(form)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return
	}
	v = v.Elem()
	for i := 0; i < v.NumField(); i++ {
		if v.Type().Field(i).Tag.Get("trim") == "-" {
			continue
		}
		if f := v.Field(i); f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
}
