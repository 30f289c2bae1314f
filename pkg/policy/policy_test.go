package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_NoPIIRedacts(t *testing.T) {
	reg := NewRegistry(NoPII{})
	out, evidence, err := Apply(context.Background(), reg, []string{"no_pii"}, []byte("contact me@example.com please"), Context{})
	require.NoError(t, err)
	assert.Contains(t, string(out), "EMAIL_REDACTED")
	assert.Contains(t, evidence, "no_pii")
}

func TestApply_TTLDeniesAfterExpiry(t *testing.T) {
	reg := NewRegistry(TTL{})
	start := time.Now().Add(-10 * time.Minute)
	ectx := Context{
		StartTime: start,
		Now:       time.Now(),
		Attrs:     map[string]interface{}{"ttl_max_seconds": 60},
	}
	_, _, err := Apply(context.Background(), reg, []string{"ttl_60"}, []byte("x"), ectx)
	require.Error(t, err)
}

func TestApply_TTLAllowsWithinWindow(t *testing.T) {
	reg := NewRegistry(TTL{})
	start := time.Now().Add(-5 * time.Second)
	ectx := Context{
		StartTime: start,
		Now:       time.Now(),
		Attrs:     map[string]interface{}{"ttl_max_seconds": 60},
	}
	_, evidence, err := Apply(context.Background(), reg, []string{"ttl_60"}, []byte("x"), ectx)
	require.NoError(t, err)
	assert.Contains(t, evidence, "ttl_60")
}

func TestApply_DeclarativeUnregisteredIDSkipped(t *testing.T) {
	reg := NewRegistry(NoPII{})
	out, evidence, err := Apply(context.Background(), reg, []string{"eu_region", "no_pii"}, []byte("hi"), Context{})
	require.NoError(t, err)
	assert.Equal(t, "hi", string(out))
	assert.NotContains(t, evidence, "eu_region")
}

func TestApply_NoRetentionAttachesKeyErasureEvidence(t *testing.T) {
	reg := NewRegistry(NoRetention{})
	_, evidence, err := Apply(context.Background(), reg, []string{"no_retention"}, []byte("secret payload"), Context{})
	require.NoError(t, err)
	ev, ok := evidence["no_retention"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "zeroed-buffer", ev["scheme"])
}

func TestCELEngine_RegionDeny(t *testing.T) {
	engine, err := NewCELEngine()
	require.NoError(t, err)
	require.NoError(t, engine.Load("region_eu_only", `attrs["region"] == "eu"`))

	reg := NewRegistry(engine.Enforcer("region_eu_only"))

	_, _, err = Apply(context.Background(), reg, []string{"region_eu_only"}, []byte("x"), Context{
		Attrs: map[string]interface{}{"region": "us"},
	})
	require.Error(t, err)

	_, _, err = Apply(context.Background(), reg, []string{"region_eu_only"}, []byte("x"), Context{
		Attrs: map[string]interface{}{"region": "eu"},
	})
	require.NoError(t, err)
}
