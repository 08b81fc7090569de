// Package billing reconciles consultation completion with the bill it
// produces: the appointment's terminal transition and the payment upsert
// commit as one atomic unit.
package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/oakwellcare/clinic-engagement/internal/faults"
)

// BillStatus is the settlement state of a payment. Amounts are integer
// cents throughout; money never touches floats.
type BillStatus string

const (
	BillUnpaid  BillStatus = "UNPAID"
	BillPartial BillStatus = "PARTIAL"
	BillPaid    BillStatus = "PAID"
)

// OutcomeType classifies how a consultation ended.
type OutcomeType string

const (
	OutcomeConsultationOnly     OutcomeType = "CONSULTATION_ONLY"
	OutcomeProcedureRecommended OutcomeType = "PROCEDURE_RECOMMENDED"
	OutcomeFollowUpNeeded       OutcomeType = "FOLLOW_UP_CONSULTATION_NEEDED"
	OutcomePatientDeciding      OutcomeType = "PATIENT_DECIDING"
	OutcomeReferralNeeded       OutcomeType = "REFERRAL_NEEDED"
)

// PatientDecision is the patient's answer to a recommended procedure.
type PatientDecision string

const (
	DecisionYes       PatientDecision = "YES"
	DecisionNo        PatientDecision = "NO"
	DecisionUndecided PatientDecision = "UNDECIDED"
)

// Payment is the bill attached to a completed appointment. Items are
// replaced wholesale on every reconcile so stale lines cannot linger.
// AmountPaidCents is written by the external settlement flow; it backs the
// UNPAID/PARTIAL/PAID distinction and survives bill revisions.
type Payment struct {
	ID              uuid.UUID  `json:"id"`
	AppointmentID   uuid.UUID  `json:"appointment_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	TotalCents      int64      `json:"total_cents"`
	DiscountCents   int64      `json:"discount_cents"`
	CustomTotal     *int64     `json:"custom_total_cents,omitempty"`
	AmountPaidCents int64      `json:"amount_paid_cents"`
	Status          BillStatus `json:"status"`
	Items           []BillItem `json:"items"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// BillItem is one line on a bill.
type BillItem struct {
	ID        uuid.UUID `json:"id"`
	PaymentID uuid.UUID `json:"payment_id"`
	ServiceID string    `json:"service_id"`
	Quantity  int       `json:"quantity"`
	UnitCents int64     `json:"unit_cents"`
}

// Settled reports whether the bill can no longer be revised.
func (p *Payment) Settled() bool {
	return p.Status == BillPaid
}

func (p *Payment) clone() *Payment {
	out := *p
	out.Items = append([]BillItem(nil), p.Items...)
	return &out
}

// ItemInput is a bill line as submitted by the clinician.
type ItemInput struct {
	ServiceID string `json:"service_id"`
	Quantity  int    `json:"quantity"`
	UnitCents int64  `json:"unit_cents"`
}

// ValidateItems checks every line has a positive quantity and a
// non-negative unit cost.
func ValidateItems(items []ItemInput) error {
	for i, item := range items {
		if item.ServiceID == "" {
			return faults.Validation("billing item %d: serviceId is required", i)
		}
		if item.Quantity <= 0 {
			return faults.Validation("billing item %d: quantity must be positive", i)
		}
		if item.UnitCents < 0 {
			return faults.Validation("billing item %d: unit cost cannot be negative", i)
		}
	}
	return nil
}

// FinalTotal computes the bill total in cents:
// max(0, (customTotal ?? sum(quantity*unitCost)) - discount).
func FinalTotal(items []ItemInput, discountCents int64, customTotal *int64) int64 {
	total := int64(0)
	for _, item := range items {
		total += int64(item.Quantity) * item.UnitCents
	}
	if customTotal != nil {
		total = *customTotal
	}
	total -= discountCents
	if total < 0 {
		return 0
	}
	return total
}
