package wallet

import (
	"errors"
	"time"

	"github.com/cedar-wallet/cedar_wallet/internal/currency"
)

var (
	// ErrWalletNotFound is returned when no wallet matches the lookup.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrDuplicateAddress is returned when the address is already registered.
	ErrDuplicateAddress = errors.New("wallet address already registered")
	// ErrInvalidWallet is returned for missing fields or an unknown wallet kind.
	ErrInvalidWallet = errors.New("invalid wallet")
	// ErrNotOwner indicates the caller does not own the wallet.
	ErrNotOwner = errors.New("not owner of wallet")
)

// Kind decides which currencies a wallet can hold.
type Kind string

const (
	KindLBPDigital Kind = "LBP_DIGITAL"
	KindUSDT       Kind = "USDT"
	KindHybrid     Kind = "HYBRID"
)

// SystemOwnerID owns the platform counterparty wallet used for deposits,
// withdrawals and exchanges.
const SystemOwnerID = "system"

// Currencies lists the balances a wallet of this kind carries.
func (k Kind) Currencies() []currency.Code {
	switch k {
	case KindLBPDigital:
		return []currency.Code{currency.LBP}
	case KindUSDT:
		return []currency.Code{currency.USDT}
	case KindHybrid:
		return []currency.Code{currency.LBP, currency.USDT}
	default:
		return nil
	}
}

func (k Kind) Valid() bool { return len(k.Currencies()) > 0 }

// Wallet is a user-owned container of per-currency balances.
type Wallet struct {
	ID                  string    `json:"id"`
	OwnerID             string    `json:"owner_id"`
	Address             string    `json:"address"`
	Kind                Kind      `json:"wallet_type"`
	PublicKey           string    `json:"public_key"`
	EncryptedPrivateKey string    `json:"-"`
	Active              bool      `json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Supports reports whether the wallet holds a balance in code.
func (w Wallet) Supports(code currency.Code) bool {
	for _, c := range w.Kind.Currencies() {
		if c == code {
			return true
		}
	}
	return false
}
