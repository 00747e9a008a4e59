package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// PaymentMethod is the out-of-band channel a student used to pay.
type PaymentMethod string

// Supported payment channels.
const (
	PaymentMethodJazzCash  PaymentMethod = "jazzcash"
	PaymentMethodEasypaisa PaymentMethod = "easypaisa"
	PaymentMethodCard      PaymentMethod = "card"
	PaymentMethodBank      PaymentMethod = "bank"
)

// PaymentMethods lists channels in display order.
var PaymentMethods = []PaymentMethod{PaymentMethodJazzCash, PaymentMethodEasypaisa, PaymentMethodCard, PaymentMethodBank}

// Valid reports whether m is a supported channel.
func (m PaymentMethod) Valid() bool {
	_, ok := paymentFields[m]
	return ok
}

// PaymentField describes one method-specific input.
type PaymentField struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Pattern string `json:"pattern,omitempty"`
}

// PaymentDetailsMethodKey tags payment_details with the method the fields belong to.
const PaymentDetailsMethodKey = "method"

var (
	mobileAccountPattern = `^03\d{2}-?\d{7}$`
	transactionPattern   = `^[A-Za-z0-9-]{6,32}$`

	paymentFields = map[PaymentMethod][]PaymentField{
		PaymentMethodJazzCash: {
			{Key: "sender_account", Label: "JazzCash mobile number", Pattern: mobileAccountPattern},
			{Key: "transaction_id", Label: "Transaction ID", Pattern: transactionPattern},
		},
		PaymentMethodEasypaisa: {
			{Key: "sender_account", Label: "Easypaisa mobile number", Pattern: mobileAccountPattern},
			{Key: "transaction_id", Label: "Transaction ID", Pattern: transactionPattern},
		},
		PaymentMethodCard: {
			{Key: "cardholder_name", Label: "Cardholder name"},
			{Key: "card_last4", Label: "Last 4 digits", Pattern: `^\d{4}$`},
			{Key: "transaction_reference", Label: "Receipt reference", Pattern: transactionPattern},
		},
		PaymentMethodBank: {
			{Key: "bank_name", Label: "Sending bank"},
			{Key: "account_holder", Label: "Account holder"},
			{Key: "transaction_reference", Label: "Transfer reference", Pattern: transactionPattern},
		},
	}

	patternCache = map[string]*regexp.Regexp{}
)

func init() {
	for _, fields := range paymentFields {
		for _, f := range fields {
			if f.Pattern != "" {
				patternCache[f.Pattern] = regexp.MustCompile(f.Pattern)
			}
		}
	}
}

// RequiredPaymentFields returns a copy of the inputs required for m, or nil when m is unknown.
func RequiredPaymentFields(m PaymentMethod) []PaymentField {
	fields, ok := paymentFields[m]
	if !ok {
		return nil
	}
	out := make([]PaymentField, len(fields))
	copy(out, fields)
	return out
}

// PaymentDetails holds the selected method's fields plus the method tag.
type PaymentDetails map[string]string

// NewPaymentDetails keeps only the fields declared for m and stamps the method tag.
func NewPaymentDetails(m PaymentMethod, values map[string]string) PaymentDetails {
	details := PaymentDetails{PaymentDetailsMethodKey: string(m)}
	for _, f := range paymentFields[m] {
		if v := strings.TrimSpace(values[f.Key]); v != "" {
			details[f.Key] = v
		}
	}
	return details
}

// Method returns the tagged payment method.
func (d PaymentDetails) Method() PaymentMethod {
	return PaymentMethod(d[PaymentDetailsMethodKey])
}

// Validate checks d against the fields required for m and returns per-field messages.
func (d PaymentDetails) Validate(m PaymentMethod) map[string]string {
	problems := map[string]string{}
	if !m.Valid() {
		problems[PaymentDetailsMethodKey] = "unsupported payment method"
		return problems
	}
	if d.Method() != m {
		problems[PaymentDetailsMethodKey] = "payment details do not match the selected method"
	}
	for _, f := range paymentFields[m] {
		v := strings.TrimSpace(d[f.Key])
		switch {
		case v == "":
			problems[f.Key] = f.Label + " is required"
		case f.Pattern != "" && !patternCache[f.Pattern].MatchString(v):
			problems[f.Key] = f.Label + " is invalid"
		}
	}
	return problems
}

// Value implements driver.Valuer for JSONB columns.
func (d PaymentDetails) Value() (driver.Value, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner for JSONB columns.
func (d *PaymentDetails) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = PaymentDetails{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan payment details: unsupported type %T", src)
	}
	out := PaymentDetails{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan payment details: %w", err)
	}
	*d = out
	return nil
}
