package services

import (
	"sync"
	"sync/atomic"

	"github.com/viral-platform/miniapp/internal/models"
)

// WalletConnection is the read side of the wallet-connection provider.
type WalletConnection interface {
	Account() (address string, ok bool)
}

// ConnectionState holds the currently connected account of one user.
// It is written by WalletService and read by WalletGuard.
type ConnectionState struct {
	addr atomic.Pointer[string]
}

func (c *ConnectionState) Account() (string, bool) {
	p := c.addr.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

func (c *ConnectionState) Set(address string) {
	if address == "" {
		c.addr.Store(nil)
		return
	}
	c.addr.Store(&address)
}

func (c *ConnectionState) Clear() {
	c.addr.Store(nil)
}

// WalletGuard gates actions on a connected wallet. It never connects a
// wallet itself; a missing connection only raises the prompt flag.
type WalletGuard struct {
	conn WalletConnection

	mu         sync.Mutex
	showPrompt bool
}

func NewWalletGuard(conn WalletConnection) *WalletGuard {
	return &WalletGuard{conn: conn}
}

// ExecuteWithWallet runs action synchronously when a wallet is connected and
// reports whether it ran. Without a wallet it sets the prompt flag instead.
func (g *WalletGuard) ExecuteWithWallet(action func()) bool {
	if _, ok := g.conn.Account(); !ok {
		g.SetShowPrompt(true)
		return false
	}
	if action != nil {
		action()
	}
	return true
}

func (g *WalletGuard) ShowPrompt() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.showPrompt
}

func (g *WalletGuard) SetShowPrompt(v bool) {
	g.mu.Lock()
	g.showPrompt = v
	g.mu.Unlock()
}

func (g *WalletGuard) State() models.WalletGuardState {
	addr, ok := g.conn.Account()
	return models.WalletGuardState{
		ShowPrompt: g.ShowPrompt(),
		Connected:  ok,
		Address:    addr,
	}
}
