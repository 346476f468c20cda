package description

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadPrefIsPrimary(t *testing.T) {
	assert.True(t, (*ReadPref)(nil).IsPrimary())

	primary := &ReadPref{Mode: PrimaryMode}
	assert.True(t, primary.IsPrimary())

	secondary := &ReadPref{Mode: SecondaryMode}
	assert.False(t, secondary.IsPrimary())
}

func TestSupportsSessions(t *testing.T) {
	sd := StreamDescription{LogicalSessionTimeout: true, SessionTimeoutMinutes: 30}
	assert.True(t, sd.SupportsSessions())

	noTimeout := StreamDescription{LogicalSessionTimeout: true, SessionTimeoutMinutes: 0}
	assert.False(t, noTimeout.SupportsSessions())

	unsupported := StreamDescription{}
	assert.False(t, unsupported.SupportsSessions())
}

func TestSupportsRetryableWrites(t *testing.T) {
	sd := StreamDescription{
		LogicalSessionTimeout: true,
		SessionTimeoutMinutes: 30,
		WireVersion:           8,
		Kind:                  RSPrimary,
	}
	assert.True(t, sd.SupportsRetryableWrites())

	standalone := sd
	standalone.Kind = Standalone
	assert.False(t, standalone.SupportsRetryableWrites())

	oldWireVersion := sd
	oldWireVersion.WireVersion = 2
	assert.False(t, oldWireVersion.SupportsRetryableWrites())
}

func TestServerKindString(t *testing.T) {
	assert.Equal(t, "RSPrimary", RSPrimary.String())
	assert.Equal(t, "Unknown", ServerKind(999).String())
}
