// Package validate checks an inbound PaymentEvent against the §3.1
// invariants before it ever reaches feature computation or scoring.
package validate

import (
	"fmt"
	"strings"

	"github.com/riskcore/fraudengine/internal/models"
	"github.com/riskcore/fraudengine/internal/pipelineerr"
)

// Event checks event against every §3.1 invariant, returning a
// pipelineerr.Validation error describing the first violation found, or nil
// if the event is well-formed.
func Event(event *models.PaymentEvent) error {
	if event.TransactionID == "" {
		return fail("transaction_id is required")
	}
	if event.AmountCents < 0 {
		return fail("amount_cents must be non-negative")
	}
	if len(event.Currency) != 3 || !isUpperAlpha(event.Currency) {
		return fail(fmt.Sprintf("currency %q must be exactly three uppercase letters", event.Currency))
	}
	if event.CardToken == "" {
		return fail("card_token is required")
	}
	if event.CardBIN != "" && !isDigits(event.CardBIN) {
		return fail(fmt.Sprintf("card_bin %q must contain only digits", event.CardBIN))
	}
	if event.Geo.Latitude < -90 || event.Geo.Latitude > 90 {
		return fail(fmt.Sprintf("latitude %.4f out of range [-90,90]", event.Geo.Latitude))
	}
	if event.Geo.Longitude < -180 || event.Geo.Longitude > 180 {
		return fail(fmt.Sprintf("longitude %.4f out of range [-180,180]", event.Geo.Longitude))
	}
	if event.ServiceType != "" && event.ServiceType != models.ServiceMobile && event.ServiceType != models.ServiceBroadband {
		return fail(fmt.Sprintf("service_type %q is not one of mobile, broadband", event.ServiceType))
	}
	if !event.SubtypeMatchesServiceType() {
		return fail(fmt.Sprintf("event_subtype %q is not valid for service_type %q", event.EventSubtype, event.ServiceType))
	}
	if event.EventType != "" {
		switch event.EventType {
		case models.EventAuthorization, models.EventCapture, models.EventRefund, models.EventChargeback:
		default:
			return fail(fmt.Sprintf("event_type %q is not one of authorization, capture, refund, chargeback", event.EventType))
		}
	}
	return nil
}

func fail(message string) error {
	return pipelineerr.New(pipelineerr.Validation, "validate", message, nil)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isUpperAlpha(s string) bool {
	return isAlpha(s) && s == strings.ToUpper(s)
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
