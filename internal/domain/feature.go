package domain

import (
	"fmt"
	"strings"
)

// Feature names a notification capability that can be gated per subscriber.
type Feature string

const (
	FeatureRentReminders Feature = "rent_reminders"
	FeatureEscalations   Feature = "escalations"
	FeatureEmailChannel  Feature = "email_channel"
	FeatureSMSChannel    Feature = "sms_channel"
	FeatureInAppChannel  Feature = "in_app_channel"
)

func (f Feature) String() string { return string(f) }

func (f Feature) IsValid() bool {
	switch f {
	case FeatureRentReminders, FeatureEscalations, FeatureEmailChannel, FeatureSMSChannel, FeatureInAppChannel:
		return true
	}
	return false
}

func ParseFeatureFromString(s string) (Feature, error) {
	f := Feature(strings.ToLower(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("%w: invalid feature %q", ErrValidation, s)
	}
	return f, nil
}

// OverrideMode is the admin-forced override for a subscriber feature.
type OverrideMode string

const (
	OverrideInherit  OverrideMode = "INHERIT"
	OverrideForceOn  OverrideMode = "FORCE_ON"
	OverrideForceOff OverrideMode = "FORCE_OFF"
)

func (m OverrideMode) String() string { return string(m) }

func (m OverrideMode) IsValid() bool {
	switch m {
	case OverrideInherit, OverrideForceOn, OverrideForceOff:
		return true
	}
	return false
}

func ParseOverrideModeFromString(s string) (OverrideMode, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	if normalized == "" {
		return OverrideInherit, nil
	}
	m := OverrideMode(strings.ReplaceAll(normalized, "-", "_"))
	if !m.IsValid() {
		return "", fmt.Errorf("%w: invalid override mode %q", ErrValidation, s)
	}
	return m, nil
}

// FeatureInputs carries everything the feature gate needs for one decision.
type FeatureInputs struct {
	Feature Feature
	// PlanDefault is the plan-level allow flag.
	PlanDefault bool
	// Override is the admin-forced override; empty means inherit.
	Override OverrideMode
	// SubscriberOptIn is the subscriber's own flag; nil means never set.
	SubscriberOptIn *bool
}

// GateDecision is the result of a feature gate evaluation.
type GateDecision struct {
	Allowed bool
	Reason  string
}
