package ton

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

var ErrInvalidAddress = errors.New("invalid address")

// ParseAddress accepts both raw ("0:<hex>") and user-friendly ("EQ..", "UQ..") forms.
func ParseAddress(s string) (*address.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if strings.Contains(s, ":") {
		addr, err := address.ParseRawAddr(s)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidAddress, s, err)
		}
		return addr, nil
	}
	addr, err := address.ParseAddr(s)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidAddress, s, err)
	}
	return addr, nil
}

// Friendly renders addr in the non-bounceable user-friendly form wallets show.
func Friendly(addr *address.Address, testnet bool) string {
	a := addr.Copy()
	a.SetBounce(false)
	a.SetTestnetOnly(testnet)
	return a.String()
}

func IsTestnet(network string) bool {
	switch strings.ToLower(network) {
	case "testnet", "-3":
		return true
	}
	return false
}

// NormalizeNetwork maps TON Connect chain ids to network names.
func NormalizeNetwork(network string) string {
	switch strings.ToLower(network) {
	case "-239", "mainnet":
		return "mainnet"
	case "-3", "testnet":
		return "testnet"
	}
	return strings.ToLower(network)
}
