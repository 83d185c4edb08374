package service

import "errors"

var (
	ErrInvalidOrderID        = errors.New("invalid order id")
	ErrInvalidFlag           = errors.New("invalid order flag")
	ErrInvalidState          = errors.New("invalid order state")
	ErrInvalidPaymentID      = errors.New("invalid payment id")
	ErrResourceNotAllowed    = errors.New("resource not allowed")
	ErrInvalidResourceID     = errors.New("invalid resource id")
	ErrEmptyUpdate           = errors.New("no fields to update")
	ErrCartItemInvalid       = errors.New("invalid cart item")
	ErrCheckoutUnavailable   = errors.New("checkout unavailable")
	ErrCheckoutFailed        = errors.New("checkout failed")
	ErrVoucherInvalid        = errors.New("voucher invalid")
	ErrVoucherTooLarge       = errors.New("voucher too large")
	ErrVoucherTypeNotAllowed = errors.New("voucher type not allowed")
	ErrPaymentWaitTimeout    = errors.New("payment confirmation wait timed out")
	ErrNotificationInvalid   = errors.New("payment notification invalid")
	ErrSignatureInvalid      = errors.New("payment notification signature invalid")
	ErrNotificationLookup    = errors.New("payment notification lookup failed")
	ErrNotificationNotFound  = errors.New("payment notification not found")
	ErrNotificationForward   = errors.New("payment notification forward failed")
	ErrLedgerUnavailable     = errors.New("notification ledger unavailable")
)
