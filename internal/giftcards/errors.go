package giftcards

import (
	"errors"

	"github.com/richxcame/giftcard-ledger/internal/pricing"
)

var (
	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrNotFound            = errors.New("not found")
	ErrSupplyExhausted     = errors.New("template supply exhausted")
	ErrInsufficientPayment = errors.New("payment below required amount")
	ErrInvalidOracleRate   = pricing.ErrInvalidOracleRate
	ErrOracleUnavailable   = errors.New("price oracle unavailable")
	ErrInsufficientBalance = errors.New("card balance too low")
	ErrExpired             = errors.New("gift card expired")
	ErrNotYetActivatable   = errors.New("gift card not yet activatable")
	ErrNotOwner            = errors.New("caller does not own the card")
	ErrTemplateInactive    = errors.New("template is not active")
	ErrInvalidQuantity     = errors.New("quantity must be positive")
	ErrInvalidRecipient    = errors.New("invalid recipient")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientCustody = errors.New("custody balance too low")
	ErrCorruptJournal      = errors.New("journal does not match ledger state")
	ErrJournalUnavailable  = errors.New("ledger journal unavailable")
)
