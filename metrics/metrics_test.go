package metrics

import (
	"testing"

	"github.com/kasuganosora/nickfinder/social"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveDecision(t *testing.T) {
	allowed := GateDecisions.WithLabelValues(GatePoke, "allowed")
	cooldown := GateDecisions.WithLabelValues(GatePoke, social.CodeCooldown)
	beforeA := testutil.ToFloat64(allowed)
	beforeC := testutil.ToFloat64(cooldown)

	ObserveDecision(GatePoke, social.Allow())
	ObserveDecision(GatePoke, social.Deny(social.CodeCooldown, "wait"))
	ObserveDecision(GatePoke, social.Deny(social.CodeCooldown, "wait"))

	assert.Equal(t, beforeA+1, testutil.ToFloat64(allowed))
	assert.Equal(t, beforeC+2, testutil.ToFloat64(cooldown))
}
