package stripe

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func epochPtr(sec int64) *int64 {
	if sec == 0 {
		return nil
	}
	return &sec
}

func productFromStripe(prod *stripe.Product, slug string) *mirror.Product {
	return &mirror.Product{
		StripeID:    prod.ID,
		Name:        prod.Name,
		Description: prod.Description,
		Active:      prod.Active,
		Type:        string(prod.Type),
		Slug:        slug,
		Created:     unixTime(prod.Created),
		Updated:     unixTime(prod.Updated),
	}
}

func priceFromStripe(pr *stripe.Price, productID, productStripeID, slug string) *mirror.Price {
	price := &mirror.Price{
		StripeID:        pr.ID,
		ProductID:       productID,
		ProductStripeID: productStripeID,
		Active:          pr.Active,
		Currency:        string(pr.Currency),
		BillingScheme:   string(pr.BillingScheme),
		Type:            string(pr.Type),
		Slug:            slug,
		Created:         unixTime(pr.Created),
	}
	// Tiered prices carry no flat unit amount; everything else does, even if
	// the amount is zero.
	if pr.BillingScheme == "" || pr.BillingScheme == stripe.PriceBillingSchemePerUnit {
		amount := pr.UnitAmount
		price.UnitAmount = &amount
	}
	if pr.Recurring != nil {
		price.Interval = string(pr.Recurring.Interval)
		price.IntervalCount = pr.Recurring.IntervalCount
	}
	return price
}

func cardFromStripe(pm *stripe.PaymentMethod) *mirror.Card {
	if pm.Card == nil {
		return nil
	}
	return &mirror.Card{
		Brand:    string(pm.Card.Brand),
		Last4:    pm.Card.Last4,
		ExpMonth: pm.Card.ExpMonth,
		ExpYear:  pm.Card.ExpYear,
	}
}

func paymentMethodFromStripe(pm *stripe.PaymentMethod, cust *mirror.Customer, isDefault bool) *mirror.PaymentMethod {
	return &mirror.PaymentMethod{
		StripeID:         pm.ID,
		CustomerID:       cust.ID,
		CustomerStripeID: cust.StripeID,
		UserID:           cust.UserID,
		Type:             string(pm.Type),
		Card:             cardFromStripe(pm),
		Default:          isDefault,
		Created:          unixTime(pm.Created),
	}
}

// subscriptionPeriod extracts the current billing period. Newer API versions
// carry the period on the subscription items; older webhook payloads carry it
// at the top level, which is only visible in the raw event JSON.
func subscriptionPeriod(sub *stripe.Subscription, raw []byte) (start, end int64) {
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.CurrentPeriodStart != 0 || item.CurrentPeriodEnd != 0 {
			return item.CurrentPeriodStart, item.CurrentPeriodEnd
		}
	}
	if len(raw) == 0 {
		return 0, 0
	}
	var top struct {
		CurrentPeriodStart int64 `json:"current_period_start"`
		CurrentPeriodEnd   int64 `json:"current_period_end"`
	}
	if err := json.Unmarshal(raw, &top); err != nil {
		return 0, 0
	}
	return top.CurrentPeriodStart, top.CurrentPeriodEnd
}

// firstItemPriceID returns the price id of the subscription's first line
// item, or empty when the subscription has no priced item.
func firstItemPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if sub.Items.Data[0].Price == nil {
		return ""
	}
	return sub.Items.Data[0].Price.ID
}

func subscriptionFromStripe(
	sub *stripe.Subscription, cust *mirror.Customer, price *mirror.Price, productSlug string, raw []byte,
) *mirror.Subscription {
	periodStart, periodEnd := subscriptionPeriod(sub, raw)
	s := &mirror.Subscription{
		StripeID:           sub.ID,
		CustomerID:         cust.ID,
		CustomerStripeID:   cust.StripeID,
		UserID:             cust.UserID,
		Status:             string(sub.Status),
		ProductSlug:        productSlug,
		Currency:           string(sub.Currency),
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CanceledAt:         epochPtr(sub.CanceledAt),
		EndedAt:            epochPtr(sub.EndedAt),
		TrialStart:         epochPtr(sub.TrialStart),
		TrialEnd:           epochPtr(sub.TrialEnd),
		Created:            unixTime(sub.Created),
	}
	if price != nil {
		s.PriceID = price.ID
		s.PriceStripeID = price.StripeID
	} else if id := firstItemPriceID(sub); id != "" {
		// Price not mirrored locally; keep the remote reference so a later
		// price sync can repair the linkage.
		s.PriceStripeID = id
	}
	return s
}

// invoiceSubscriptionID digs the subscription reference out of the raw
// invoice JSON. Depending on API version it appears as a top-level
// "subscription" (string or object) or nested under
// "parent.subscription_details.subscription".
func invoiceSubscriptionID(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return ""
	}
	if id := refID(data["subscription"]); id != "" {
		return id
	}
	parent, _ := data["parent"].(map[string]interface{})
	if parent == nil {
		return ""
	}
	details, _ := parent["subscription_details"].(map[string]interface{})
	if details == nil {
		return ""
	}
	return refID(details["subscription"])
}

// invoiceTax reads the optional tax amount from the raw invoice JSON; the
// typed field moved between SDK versions.
func invoiceTax(raw []byte) *int64 {
	if len(raw) == 0 {
		return nil
	}
	var top struct {
		Tax *int64 `json:"tax"`
	}
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil
	}
	return top.Tax
}

// refID unwraps an expandable reference that may be a bare id string or an
// object with an "id" field.
func refID(v interface{}) string {
	switch ref := v.(type) {
	case string:
		return ref
	case map[string]interface{}:
		if id, ok := ref["id"].(string); ok {
			return id
		}
	}
	return ""
}

func invoiceFromStripe(inv *stripe.Invoice, cust *mirror.Customer, raw []byte) *mirror.Invoice {
	i := &mirror.Invoice{
		StripeID:         inv.ID,
		CustomerID:       cust.ID,
		CustomerStripeID: cust.StripeID,
		UserID:           cust.UserID,
		Status:           string(inv.Status),
		Currency:         string(inv.Currency),
		AmountDue:        inv.AmountDue,
		AmountPaid:       inv.AmountPaid,
		AmountRemaining:  inv.AmountRemaining,
		Subtotal:         inv.Subtotal,
		Total:            inv.Total,
		Tax:              invoiceTax(raw),
		PDFURL:           inv.InvoicePDF,
		HostedURL:        inv.HostedInvoiceURL,
		BillingReason:    string(inv.BillingReason),
		PeriodStart:      inv.PeriodStart,
		PeriodEnd:        inv.PeriodEnd,
		DueDate:          epochPtr(inv.DueDate),
		Created:          unixTime(inv.Created),
	}
	if inv.StatusTransitions != nil {
		i.PaidAt = epochPtr(inv.StatusTransitions.PaidAt)
	}
	return i
}
