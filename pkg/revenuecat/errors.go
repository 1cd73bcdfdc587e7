/**
 * @description
 * Error types and classification for the RevenueCat API client. The vendor
 * returns a structured error body with a numeric code; classification is done
 * on the code first and falls back to message-substring matching only when no
 * code is available. Every fallback decision is logged so ambiguous vendor
 * signals stay observable in production.
 */
package revenuecat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
)

// ErrorClass buckets vendor failures into the user-guidance categories the
// app surfaces.
type ErrorClass string

const (
	ClassInvalidKey   ErrorClass = "invalid_key"    // key rejected by the vendor
	ClassWrongKeyType ErrorClass = "wrong_key_type" // secret key used where a public key belongs
	ClassNetwork      ErrorClass = "network"
	ClassTimeout      ErrorClass = "timeout"
	ClassUnknown      ErrorClass = "unknown"
)

// PurchaseErrorClass buckets purchase-specific failures for user messaging.
type PurchaseErrorClass string

const (
	PurchaseCancelled      PurchaseErrorClass = "cancelled"
	PurchasePaymentPending PurchaseErrorClass = "payment_pending"
	PurchaseNetwork        PurchaseErrorClass = "network"
	PurchaseOther          PurchaseErrorClass = "other"
)

// Vendor error codes observed from the RevenueCat backend.
const (
	CodeInvalidAPIKey       = 7225
	CodeSecretKeyRequired   = 7243
	CodePurchaseCancelled   = 7280
	CodePaymentPending      = 7281
	CodeStoreProblem        = 7282
	CodeReceiptAlreadyInUse = 7263
)

// APIError represents a structured error from the RevenueCat API.
type APIError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("revenuecat api error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("revenuecat api error (status %d): %s", e.HTTPStatus, e.Message)
}

// Classify maps a vendor call failure into an ErrorClass. Structured codes
// win; message matching is a monitored fallback for responses without one.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		switch apiErr.Code {
		case CodeInvalidAPIKey:
			return ClassInvalidKey
		case CodeSecretKeyRequired:
			return ClassWrongKeyType
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassNetwork
	}

	return classifyByMessage(err.Error())
}

// classifyByMessage is the legacy substring heuristic. It exists for vendor
// responses that omit the structured code; every hit is logged because an
// ambiguous signal is worth monitoring, not guessing at.
func classifyByMessage(msg string) ErrorClass {
	lower := strings.ToLower(msg)

	class := ClassUnknown
	switch {
	case strings.Contains(lower, "secret api key"), strings.Contains(lower, "wrong key type"):
		class = ClassWrongKeyType
	case strings.Contains(lower, "invalid api key"), strings.Contains(lower, "unauthorized"):
		class = ClassInvalidKey
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		class = ClassTimeout
	case strings.Contains(lower, "network"), strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"):
		class = ClassNetwork
	}

	if class != ClassUnknown {
		log.Printf("level=warn component=revenuecat_client msg=\"error classified by message fallback\" class=%s err=%q", class, msg)
	}
	return class
}

// UserMessage renders the diagnostic message the app shows for a failed
// initialization, per error class. Unclassified errors propagate the raw
// vendor message.
func UserMessage(err error) string {
	switch Classify(err) {
	case ClassWrongKeyType:
		return "Purchases are misconfigured: a secret API key was used where a public key is required."
	case ClassInvalidKey:
		return "Purchases are unavailable: the store API key was rejected."
	case ClassNetwork:
		return "Purchases are unavailable: network error reaching the store."
	case ClassTimeout:
		return "Purchases are unavailable: the store took too long to respond."
	default:
		if err == nil {
			return ""
		}
		return err.Error()
	}
}

// ClassifyPurchase maps a purchase/restore failure into the four purchase
// buckets used for modal messaging.
func ClassifyPurchase(err error) PurchaseErrorClass {
	if err == nil {
		return PurchaseOther
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		switch apiErr.Code {
		case CodePurchaseCancelled:
			return PurchaseCancelled
		case CodePaymentPending:
			return PurchasePaymentPending
		case CodeStoreProblem:
			return PurchaseNetwork
		}
	}

	switch Classify(err) {
	case ClassNetwork, ClassTimeout:
		return PurchaseNetwork
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "cancel"):
		log.Printf("level=warn component=revenuecat_client msg=\"purchase error classified by message fallback\" class=cancelled err=%q", err)
		return PurchaseCancelled
	case strings.Contains(lower, "pending"):
		log.Printf("level=warn component=revenuecat_client msg=\"purchase error classified by message fallback\" class=payment_pending err=%q", err)
		return PurchasePaymentPending
	}
	return PurchaseOther
}
