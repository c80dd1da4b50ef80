package rowfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Read(t *testing.T) {
	p, err := NewPolicy()
	require.NoError(t, err)

	tests := []struct {
		name      string
		settings  Settings
		rowTenant string
		want      bool
	}{
		{"own tenant", Settings{TenantID: "t1"}, "t1", true},
		{"other tenant", Settings{TenantID: "t1"}, "t2", false},
		{"neutral session", Neutral(), "t1", false},
		{"neutral session, unowned row", Neutral(), "", false},
		{"admin reads other tenant", Settings{TenantID: "t1", IsAdmin: true}, "t2", true},
		{"admin without tenant", Settings{IsAdmin: true}, "t2", true},
		{"admin never reads unowned row", Settings{TenantID: "t1", IsAdmin: true}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Allows(tt.settings, OpRead, tt.rowTenant))
		})
	}
}

func TestPolicy_WriteBlockedDuringAdminOverride(t *testing.T) {
	p := MustPolicy()
	override := Settings{TenantID: "t1", IsAdmin: true}

	assert.ErrorIs(t, p.Check(override, OpWrite, "t2"), ErrWriteDenied)
	assert.ErrorIs(t, p.Check(override, OpWrite, "t1"), ErrWriteDenied)
	assert.NoError(t, p.Check(override, OpRead, "t2"))
}

func TestPolicy_Write(t *testing.T) {
	p := MustPolicy()

	assert.NoError(t, p.Check(Settings{TenantID: "t1"}, OpWrite, "t1"))
	assert.ErrorIs(t, p.Check(Settings{TenantID: "t1"}, OpWrite, "t2"), ErrWriteDenied)
	assert.ErrorIs(t, p.Check(Neutral(), OpWrite, ""), ErrWriteDenied)
}

func TestFilterReadable(t *testing.T) {
	type row struct{ tenant, name string }
	rows := []row{{"t1", "a"}, {"t2", "b"}, {"t1", "c"}, {"", "d"}}

	got := FilterReadable(MustPolicy(), Settings{TenantID: "t1"}, rows, func(r row) string { return r.tenant })

	assert.Equal(t, []row{{"t1", "a"}, {"t1", "c"}}, got)
}
