package enrollflow

import (
	"fmt"

	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/pkg/config"
)

// PaymentMethodProfile is the static description of one payment channel.
type PaymentMethodProfile struct {
	Method   models.PaymentMethod
	Label    string
	Fields   []models.PaymentField
	Receiver string
	steps    string
}

// PaymentMethodSelector maps a channel to its required fields and instructions.
type PaymentMethodSelector struct {
	currency string
	profiles map[models.PaymentMethod]PaymentMethodProfile
}

// NewPaymentMethodSelector builds the profiles from the configured receiving accounts.
func NewPaymentMethodSelector(cfg config.PaymentsConfig) *PaymentMethodSelector {
	currency := cfg.Currency
	if currency == "" {
		currency = "PKR"
	}
	profiles := map[models.PaymentMethod]PaymentMethodProfile{
		models.PaymentMethodJazzCash: {
			Label:    "JazzCash",
			Receiver: fmt.Sprintf("%s (%s)", cfg.JazzCashNumber, cfg.JazzCashTitle),
			steps:    "Send %s via JazzCash to %s, then enter your JazzCash number and the transaction ID.",
		},
		models.PaymentMethodEasypaisa: {
			Label:    "Easypaisa",
			Receiver: fmt.Sprintf("%s (%s)", cfg.EasypaisaNumber, cfg.EasypaisaTitle),
			steps:    "Send %s via Easypaisa to %s, then enter your Easypaisa number and the transaction ID.",
		},
		models.PaymentMethodCard: {
			Label:    "Debit/Credit card",
			Receiver: fmt.Sprintf("%s, merchant ID %s", cfg.CardMerchantLabel, cfg.CardMerchantID),
			steps:    "Pay %s by card to %s, then enter the cardholder name, the last 4 digits and the receipt reference.",
		},
		models.PaymentMethodBank: {
			Label:    "Bank transfer",
			Receiver: fmt.Sprintf("%s, %s, IBAN %s", cfg.BankName, cfg.BankAccountTitle, cfg.BankIBAN),
			steps:    "Transfer %s to %s, then enter the sending bank, the account holder and the transfer reference.",
		},
	}
	for method, profile := range profiles {
		profile.Method = method
		profile.Fields = models.RequiredPaymentFields(method)
		profiles[method] = profile
	}
	return &PaymentMethodSelector{currency: currency, profiles: profiles}
}

// Methods returns the profiles in display order.
func (s *PaymentMethodSelector) Methods() []PaymentMethodProfile {
	out := make([]PaymentMethodProfile, 0, len(models.PaymentMethods))
	for _, m := range models.PaymentMethods {
		out = append(out, s.profiles[m])
	}
	return out
}

// Profile looks up the profile of m.
func (s *PaymentMethodSelector) Profile(m models.PaymentMethod) (PaymentMethodProfile, bool) {
	profile, ok := s.profiles[m]
	return profile, ok
}

// Instructions renders the payment steps for m. Unknown methods render nothing.
func (s *PaymentMethodSelector) Instructions(m models.PaymentMethod, amount float64) string {
	profile, ok := s.profiles[m]
	if !ok {
		return ""
	}
	return fmt.Sprintf(profile.steps, s.FormatAmount(amount), profile.Receiver)
}

// FormatAmount prefixes amount with the configured currency.
func (s *PaymentMethodSelector) FormatAmount(amount float64) string {
	return fmt.Sprintf("%s %.2f", s.currency, amount)
}

// Validate checks the values required by m.
func (s *PaymentMethodSelector) Validate(m models.PaymentMethod, values map[string]string) FieldErrors {
	if _, ok := s.profiles[m]; !ok {
		return FieldErrors{models.PaymentDetailsMethodKey: "select a payment method"}
	}
	problems := models.NewPaymentDetails(m, values).Validate(m)
	if len(problems) == 0 {
		return nil
	}
	return FieldErrors(problems)
}

// owns reports whether key is one of m's fields.
func (s *PaymentMethodSelector) owns(m models.PaymentMethod, key string) bool {
	for _, f := range s.profiles[m].Fields {
		if f.Key == key {
			return true
		}
	}
	return false
}
