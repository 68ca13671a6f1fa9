// Package agent provides the collaborators that issuers and verifiers run
// against: a Connector handing out accounts, and an Agent exposing the DID
// registry as its resolution procedure.
package agent

import (
	"errors"
	"fmt"

	"github.com/pilacorp/go-trackback-agent/config"
	"github.com/pilacorp/go-trackback-agent/registry"
	"github.com/pilacorp/go-trackback-agent/registry/httpbackend"
	"github.com/pilacorp/go-trackback-agent/registry/memory"
)

// ErrInvalidContext is returned when a Context lacks its agent.
var ErrInvalidContext = errors.New("invalid agent context")

// Agent owns the registry used for saving and resolving DIDs.
type Agent struct {
	connector *Connector
	procedure *registry.Registry
}

// AgentOpt configures an Agent.
type AgentOpt func(*agentOptions)

type agentOptions struct {
	backend registry.Backend
}

// WithBackend sets the registry backend. Defaults to a fresh in-memory backend.
func WithBackend(b registry.Backend) AgentOpt {
	return func(o *agentOptions) {
		o.backend = b
	}
}

// New creates an Agent. connector may be nil for verify-only agents.
func New(connector *Connector, opts ...AgentOpt) *Agent {
	o := &agentOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.backend == nil {
		o.backend = memory.New()
	}

	return &Agent{
		connector: connector,
		procedure: registry.New(o.backend),
	}
}

// NewFromConfig creates an Agent whose backend follows cfg: the HTTP registry
// at cfg.RegistryURL, or in-memory when it is empty.
func NewFromConfig(connector *Connector, cfg config.Config) *Agent {
	if cfg.RegistryURL == "" {
		return New(connector)
	}

	return New(connector, WithBackend(httpbackend.NewClient(cfg.RegistryURL, httpbackend.WithMaxRetries(cfg.RegistryRetries))))
}

// Procedure returns the DID registry of the agent.
func (a *Agent) Procedure() *registry.Registry {
	return a.procedure
}

// Connector returns the connector the agent was created with.
func (a *Agent) Connector() *Connector {
	return a.connector
}

// Context bundles an agent with the account acting through it.
type Context struct {
	Agent   *Agent
	Account *Account
}

// NewContext returns a Context for account on agent.
func NewContext(agent *Agent, account *Account) Context {
	return Context{Agent: agent, Account: account}
}

// Owner returns the address of the acting account, or "" when there is none.
func (c Context) Owner() string {
	if c.Account == nil {
		return ""
	}
	return c.Account.Address
}

// Validate checks that the context can reach a registry.
func (c Context) Validate() error {
	if c.Agent == nil || c.Agent.procedure == nil {
		return fmt.Errorf("%w: agent is nil", ErrInvalidContext)
	}
	return nil
}
