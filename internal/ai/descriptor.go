package ai

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/llmgram/llmgram/internal/config"
	"github.com/llmgram/llmgram/internal/logger"
)

// ProviderDescriptor is the static metadata of one upstream LLM integration.
// Immutable after load; runtime state (temporary disable, rate windows) is
// owned by the dispatcher and the stats tracker.
type ProviderDescriptor struct {
	ID               string
	DisplayName      string
	Type             string
	Model            string
	Capabilities     []string
	Weight           int
	RequestsPerMin   int
	MaxContextTokens int
	Timeout          time.Duration
	MaxRetries       int
	CredentialRef    string
	Enabled          bool
}

func (d *ProviderDescriptor) HasCapability(tag string) bool {
	return slices.Contains(d.Capabilities, tag)
}

// ModelTier is a named ordered fallback list of provider ids.
type ModelTier struct {
	Name                  string
	Providers             []string
	AllowFilteredFailover bool
}

// DescriptorSet holds all descriptors and tiers, read-only after
// construction.
type DescriptorSet struct {
	descriptors map[string]*ProviderDescriptor
	tiers       map[string]*ModelTier
	order       []string
}

func NewDescriptorSet(providers []config.ProviderConfig, tiers []config.TierConfig, defaultTimeout time.Duration, log logger.Logger) (*DescriptorSet, error) {
	set := &DescriptorSet{
		descriptors: make(map[string]*ProviderDescriptor, len(providers)),
		tiers:       make(map[string]*ModelTier, len(tiers)),
	}

	for _, providerCfg := range providers {
		if _, exists := set.descriptors[providerCfg.ID]; exists {
			return nil, fmt.Errorf("duplicate provider id: %s", providerCfg.ID)
		}
		timeout := providerCfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		displayName := providerCfg.DisplayName
		if displayName == "" {
			displayName = providerCfg.ID
		}
		set.descriptors[providerCfg.ID] = &ProviderDescriptor{
			ID:               providerCfg.ID,
			DisplayName:      displayName,
			Type:             providerCfg.Type,
			Model:            providerCfg.Model,
			Capabilities:     providerCfg.Capabilities,
			Weight:           providerCfg.Weight,
			RequestsPerMin:   providerCfg.RequestsPerMin,
			MaxContextTokens: providerCfg.MaxContextTokens,
			Timeout:          timeout,
			MaxRetries:       providerCfg.MaxRetries,
			CredentialRef:    providerCfg.EnvAPIKey,
			Enabled:          providerCfg.Enabled,
		}
	}

	for _, tierCfg := range tiers {
		enabled := 0
		for _, id := range tierCfg.Providers {
			descriptor, exists := set.descriptors[id]
			if !exists {
				return nil, fmt.Errorf("tier %s references unknown provider: %s", tierCfg.Name, id)
			}
			if descriptor.Enabled {
				enabled++
			}
		}
		if enabled == 0 {
			log.WithField("tier", tierCfg.Name).Warn("Tier has no enabled providers and is unusable")
		}
		set.tiers[tierCfg.Name] = &ModelTier{
			Name:                  tierCfg.Name,
			Providers:             slices.Clone(tierCfg.Providers),
			AllowFilteredFailover: tierCfg.AllowFilteredFailover,
		}
		set.order = append(set.order, tierCfg.Name)
	}

	return set, nil
}

func (s *DescriptorSet) Get(id string) (*ProviderDescriptor, error) {
	if descriptor, ok := s.descriptors[id]; ok {
		return descriptor, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
}

func (s *DescriptorSet) Tier(name string) (*ModelTier, error) {
	if tier, ok := s.tiers[name]; ok {
		return tier, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrTierNotFound, name)
}

// TierCandidates returns the tier's descriptors in dispatch order:
// descending weight, declaration order for equal weights.
func (s *DescriptorSet) TierCandidates(name string) ([]*ProviderDescriptor, error) {
	tier, err := s.Tier(name)
	if err != nil {
		return nil, err
	}
	candidates := make([]*ProviderDescriptor, 0, len(tier.Providers))
	for _, id := range tier.Providers {
		candidates = append(candidates, s.descriptors[id])
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Weight > candidates[j].Weight
	})
	return candidates, nil
}

func (s *DescriptorSet) Descriptors() []*ProviderDescriptor {
	out := make([]*ProviderDescriptor, 0, len(s.descriptors))
	for _, descriptor := range s.descriptors {
		out = append(out, descriptor)
	}
	return out
}

func (s *DescriptorSet) Tiers() []string {
	return slices.Clone(s.order)
}
