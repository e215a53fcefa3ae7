package provider

import (
	"fmt"

	"survey-offers/internal/domain/entity"
)

// NewClient builds the client for cfg.ID.
func NewClient(cfg Config) (Client, error) {
	switch cfg.ID {
	case entity.ProviderCPX:
		return NewCPXClient(cfg)
	case entity.ProviderBitLabs:
		return NewBitLabsClient(cfg)
	case entity.ProviderTheoremReach:
		return NewTheoremReachClient(cfg)
	case entity.ProviderPollfish:
		return NewPollfishClient(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownProvider, cfg.ID)
	}
}

// NewClients builds one client per config. Duplicate ids are rejected.
func NewClients(cfgs []Config) (map[entity.ProviderID]Client, error) {
	clients := make(map[entity.ProviderID]Client, len(cfgs))
	for _, cfg := range cfgs {
		if _, dup := clients[cfg.ID]; dup {
			return nil, fmt.Errorf("%w: provider %s configured twice", entity.ErrInvalidConfig, cfg.ID)
		}
		c, err := NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("build %s client: %w", cfg.ID, err)
		}
		clients[cfg.ID] = c
	}
	return clients, nil
}
