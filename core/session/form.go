package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/shopspring/decimal"

	"github.com/membo/vtubot/core/catalog"
)

// ErrFormMismatch is returned when a form is stored under a state that expects another shape.
var ErrFormMismatch = errors.New("session: form does not match state")

// Form is the scratch data carried between consecutive states of one flow.
// The concrete type is selected by the session state.
type Form interface {
	isForm()
}

// Blank is the empty form of resting and single-step states.
type Blank struct{}

// Registration collects sign-up fields.
type Registration struct {
	FullName string `json:"fullName"`
	Email    string `json:"email,omitempty"`
}

// Login remembers the email entered before the password prompt.
type Login struct {
	Email string `json:"email"`
}

// Airtime collects an airtime purchase.
type Airtime struct {
	Network   catalog.Network `json:"network"`
	Recipient string          `json:"toPhone,omitempty"`
}

// Data collects a data bundle purchase.
type Data struct {
	Network    catalog.Network `json:"network"`
	PlanCode   string          `json:"planCode,omitempty"`
	PlanLabel  string          `json:"planLabel,omitempty"`
	PlanAmount decimal.Decimal `json:"planAmount"`
}

// Credit remembers the phone number an administrator is crediting.
type Credit struct {
	TargetPhone string `json:"userPhone"`
}

func (Blank) isForm()        {}
func (Registration) isForm() {}
func (Login) isForm()        {}
func (Airtime) isForm()      {}
func (Data) isForm()         {}
func (Credit) isForm()       {}

// emptyFormFor returns the zero form of the shape that state carries.
func emptyFormFor(s State) Form {
	switch s {
	case StateRegisterEmail, StateRegisterPassword:
		return Registration{}
	case StateLoginPassword:
		return Login{}
	case StateBuyAirtimePhone, StateBuyAirtimeAmount:
		return Airtime{}
	case StateBuyDataPlan, StateBuyDataPhone:
		return Data{}
	case StateAdminCreditAmount:
		return Credit{}
	default:
		return Blank{}
	}
}

// checkForm verifies that f may be stored under s. Blank is accepted everywhere.
func checkForm(s State, f Form) error {
	if _, ok := f.(Blank); ok {
		return nil
	}
	if reflect.TypeOf(f) != reflect.TypeOf(emptyFormFor(s)) {
		return fmt.Errorf("%w: %T under %s", ErrFormMismatch, f, s)
	}
	return nil
}

func encodeForm(f Form) (string, error) {
	if f == nil {
		f = Blank{}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("session: encode form: %w", err)
	}
	return string(data), nil
}

// decodeForm rebuilds the form shape selected by s from its stored JSON.
func decodeForm(s State, raw string) (Form, error) {
	if raw == "" {
		raw = "{}"
	}
	var err error
	switch f := emptyFormFor(s).(type) {
	case Registration:
		err = json.Unmarshal([]byte(raw), &f)
		return f, wrapDecode(err)
	case Login:
		err = json.Unmarshal([]byte(raw), &f)
		return f, wrapDecode(err)
	case Airtime:
		err = json.Unmarshal([]byte(raw), &f)
		return f, wrapDecode(err)
	case Data:
		err = json.Unmarshal([]byte(raw), &f)
		return f, wrapDecode(err)
	case Credit:
		err = json.Unmarshal([]byte(raw), &f)
		return f, wrapDecode(err)
	default:
		return Blank{}, nil
	}
}

func wrapDecode(err error) error {
	if err != nil {
		return fmt.Errorf("session: decode form: %w", err)
	}
	return nil
}
