package service

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"go.uber.org/zap"
)

// FeatureGate decides whether a notification capability is active for a subscriber.
type FeatureGate struct {
	features repository.FeatureRepository
	logger   *zap.Logger
}

func NewFeatureGate(features repository.FeatureRepository, logger *zap.Logger) *FeatureGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeatureGate{features: features, logger: logger}
}

// Check loads the gate inputs for subscriberID and resolves them.
func (g *FeatureGate) Check(ctx context.Context, subscriberID string, planID string, feature domain.Feature) (domain.GateDecision, error) {
	inputs, err := g.features.Inputs(ctx, subscriberID, planID, feature)
	if err != nil {
		return domain.GateDecision{}, fmt.Errorf("failed to load feature gate inputs for %s: %w", feature, err)
	}

	decision := ResolveFeature(inputs)
	g.logger.Debug("feature gate resolved",
		zap.String("subscriberId", subscriberID),
		zap.String("feature", feature.String()),
		zap.Bool("allowed", decision.Allowed),
		zap.String("reason", decision.Reason),
	)
	return decision, nil
}

// ResolveFeature applies the precedence: subscriber disable, then admin override,
// then plan default. A subscriber opt-in never overrides an admin or plan denial.
func ResolveFeature(inputs domain.FeatureInputs) domain.GateDecision {
	feature := inputs.Feature.String()

	if inputs.SubscriberOptIn != nil && !*inputs.SubscriberOptIn {
		return domain.GateDecision{Allowed: false, Reason: fmt.Sprintf("%s disabled by subscriber", feature)}
	}

	switch inputs.Override {
	case domain.OverrideForceOn:
		return domain.GateDecision{Allowed: true, Reason: fmt.Sprintf("%s forced on by admin override", feature)}
	case domain.OverrideForceOff:
		return domain.GateDecision{Allowed: false, Reason: fmt.Sprintf("%s forced off by admin override", feature)}
	}

	if inputs.PlanDefault {
		return domain.GateDecision{Allowed: true, Reason: fmt.Sprintf("%s allowed by plan default", feature)}
	}
	return domain.GateDecision{Allowed: false, Reason: fmt.Sprintf("%s not included in plan", feature)}
}
