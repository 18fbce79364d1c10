package persona

import (
	"context"
	"strings"

	"gopkg.in/yaml.v3"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// Persona is the configured identity a chat turn responds as.
type Persona struct {
	ID                   string     `json:"id" yaml:"id"`
	Name                 string     `json:"name" yaml:"name"`
	Bio                  Lines      `json:"bio,omitempty" yaml:"bio"`
	Lore                 Lines      `json:"lore,omitempty" yaml:"lore"`
	Knowledge            string     `json:"knowledge,omitempty" yaml:"knowledge"`
	SystemPrompt         string     `json:"system_prompt,omitempty" yaml:"system_prompt"`
	Style                string     `json:"style,omitempty" yaml:"style"`
	Visibility           Visibility `json:"visibility" yaml:"visibility"`
	OwnerID              string     `json:"owner_id,omitempty" yaml:"owner_id"`
	ProvidePriceData     bool       `json:"provide_price_data" yaml:"provide_price_data"`
	ProvidePortfolioData bool       `json:"provide_portfolio_data" yaml:"provide_portfolio_data"`
}

// Caller is the authenticated user of a turn. A nil *Caller is anonymous.
type Caller struct {
	ID            string `json:"id"`
	WalletAddress string `json:"wallet_address,omitempty"`
	ChainID       int64  `json:"chain_id,omitempty"`
}

func (c *Caller) HasWallet() bool {
	return c != nil && strings.TrimSpace(c.WalletAddress) != ""
}

// CanAccess reports whether caller may chat with p. Private personas are
// only usable by their owner.
func CanAccess(p *Persona, caller *Caller) bool {
	if p == nil {
		return false
	}
	if p.Visibility != VisibilityPrivate {
		return true
	}
	return caller != nil && caller.ID != "" && caller.ID == p.OwnerID
}

type Store interface {
	Get(ctx context.Context, id string) (*Persona, error)
	List(ctx context.Context) ([]Persona, error)
}

// Lines is a list of non-empty text lines. In YAML it may be written as a
// sequence or as a single block of newline-separated text.
type Lines []string

func SplitLines(text string) Lines {
	var out Lines
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (l *Lines) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = SplitLines(node.Value)
		return nil
	}
	var items []string
	if err := node.Decode(&items); err != nil {
		return err
	}
	*l = SplitLines(strings.Join(items, "\n"))
	return nil
}
