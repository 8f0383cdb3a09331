// Package payload interprets the loosely structured JSON a user submits with
// a consent decision.
package payload

import (
	"strings"

	"github.com/tidwall/gjson"

	"obconsent/internal/authorize/consenterr"
	consentmodels "obconsent/internal/consent/models"
)

// Field names read from the persist payload.
const (
	FieldPaymentAccount = "paymentAccount"
	FieldCOFAccount     = "cofAccount"
	FieldAccountIDs     = "accountIds"
)

// Error descriptions for rejected selections.
const (
	ErrAccountIDNotFound = "account id not found"
	ErrAccountIDFormat   = "account id format error"
)

// RejectedAccountPlaceholder replaces blank ids when the user rejects.
const RejectedAccountPlaceholder = "n/a"

// SelectionKind tags an AccountSelection.
type SelectionKind int

const (
	SelectionInvalid SelectionKind = iota
	SelectionSingle
	SelectionList
)

// AccountSelection is the parsed account choice from a persist payload.
//
// For SelectionSingle, Account holds the one chosen id and Source names the
// field it came from. For SelectionList, Accounts holds the string elements
// that precede any non-string element; FormatErrorAt is the index of the
// first non-string element or -1. For SelectionInvalid, Reason says why.
type AccountSelection struct {
	Kind          SelectionKind
	Source        string
	Account       string
	Accounts      []string
	FormatErrorAt int
	Reason        string
}

// ParseSelection applies the field precedence once: a non-blank payment
// account, then a non-blank confirmation-of-funds account, then the
// accountIds array.
func ParseSelection(raw []byte) AccountSelection {
	if len(raw) > 0 && !gjson.ValidBytes(raw) {
		return invalid(ErrAccountIDNotFound)
	}

	for _, field := range []string{FieldPaymentAccount, FieldCOFAccount} {
		sel, ok := single(raw, field)
		if ok {
			return sel
		}
	}

	ids := gjson.GetBytes(raw, FieldAccountIDs)
	if !ids.IsArray() {
		return invalid(ErrAccountIDNotFound)
	}

	sel := AccountSelection{Kind: SelectionList, Source: FieldAccountIDs, FormatErrorAt: -1}
	for i, el := range ids.Array() {
		if el.Type != gjson.String {
			sel.FormatErrorAt = i
			break
		}
		sel.Accounts = append(sel.Accounts, el.Str)
	}
	return sel
}

// single resolves a one-account field. ok is false when the field is absent,
// null, or a blank string, so the next rule applies.
func single(raw []byte, field string) (AccountSelection, bool) {
	v := gjson.GetBytes(raw, field)
	if !v.Exists() || v.Type == gjson.Null {
		return AccountSelection{}, false
	}
	if v.Type != gjson.String {
		return invalid(ErrAccountIDNotFound), true
	}
	if strings.TrimSpace(v.Str) == "" {
		return AccountSelection{}, false
	}
	return AccountSelection{Kind: SelectionSingle, Source: field, Account: v.Str, FormatErrorAt: -1}, true
}

func invalid(reason string) AccountSelection {
	return AccountSelection{Kind: SelectionInvalid, Reason: reason, FormatErrorAt: -1}
}

// ConsentedAccounts turns a selection into the account binding map. Every
// account is bound with the primary permission. A blank list element is
// substituted with "n/a" when the user rejected and refused when approved.
func ConsentedAccounts(sel AccountSelection, approved bool) (consentmodels.AccountBindings, *consenterr.Error) {
	primary := func() []string { return []string{consentmodels.PermissionPrimary} }

	switch sel.Kind {
	case SelectionSingle:
		return consentmodels.AccountBindings{sel.Account: primary()}, nil
	case SelectionList:
		bindings := consentmodels.AccountBindings{}
		for _, account := range sel.Accounts {
			if account == "" {
				if approved {
					return nil, consenterr.BadRequest(ErrAccountIDNotFound)
				}
				account = RejectedAccountPlaceholder
			}
			bindings[account] = primary()
		}
		if sel.FormatErrorAt >= 0 {
			return nil, consenterr.BadRequest(ErrAccountIDFormat)
		}
		return bindings, nil
	default:
		reason := sel.Reason
		if reason == "" {
			reason = ErrAccountIDNotFound
		}
		return nil, consenterr.BadRequest(reason)
	}
}
