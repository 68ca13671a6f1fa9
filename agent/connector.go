package agent

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pilacorp/go-trackback-agent/did"
	"github.com/pilacorp/go-trackback-agent/did/signer"
)

// DefaultAccountLabel is the account returned when no label is given.
const DefaultAccountLabel = "Alice"

// Account is an authorization principal.
type Account struct {
	Label   string
	Address string
}

type account struct {
	Account
	km *signer.KeyManager
}

// Connector hands out accounts by label. The same label always yields the
// same account for the lifetime of the Connector.
type Connector struct {
	mu       sync.Mutex
	accounts map[string]*account
	closed   bool
}

// NewConnector returns a Connector without accounts.
func NewConnector() *Connector {
	return &Connector{accounts: make(map[string]*account)}
}

// GetDefaultAccount returns the account for label, creating it on first use.
// Without a label it returns the "Alice" account.
func (c *Connector) GetDefaultAccount(label ...string) (*Account, error) {
	a, err := c.lookup(label...)
	if err != nil {
		return nil, err
	}

	acc := a.Account
	return &acc, nil
}

// Signer returns the signing key of the account for label.
func (c *Connector) Signer(label ...string) (signer.Signer, error) {
	a, err := c.lookup(label...)
	if err != nil {
		return nil, err
	}
	return a.km, nil
}

// Close zeroes every account key.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, a := range c.accounts {
		errs = append(errs, a.km.Close())
	}
	c.closed = true

	return errors.Join(errs...)
}

func (c *Connector) lookup(label ...string) (*account, error) {
	name := DefaultAccountLabel
	if len(label) > 0 && label[0] != "" {
		name = label[0]
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, fmt.Errorf("connector is closed")
	}
	if a, ok := c.accounts[name]; ok {
		return a, nil
	}

	km, err := signer.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to create account %s: %w", name, err)
	}
	address, err := did.AddressFromPublicKey(km.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("failed to derive address of account %s: %w", name, err)
	}

	a := &account{Account: Account{Label: name, Address: address}, km: km}
	c.accounts[name] = a

	return a, nil
}
