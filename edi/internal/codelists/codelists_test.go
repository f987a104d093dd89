package codelists

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, DefaultPlatformNumber, c.PlatformNumber())
	assert.Equal(t, "DDZ", c.PlatformRole())
	assert.Equal(t, models.RoleMeteringPointAdministrator, c.PlatformActor().Role)

	name, ok := c.RoleName("ddq")
	require.True(t, ok)
	assert.Equal(t, "electricalsupplier", name)

	code, ok := c.RoleCodeForName("GridOperator")
	require.True(t, ok)
	assert.Equal(t, "DDM", code)

	_, ok = c.RoleName("XYZ")
	assert.False(t, ok)

	assert.True(t, c.MessageTypeAllowed(models.DocumentRequestAggregatedMeasureData, "E74"))
	assert.False(t, c.MessageTypeAllowed(models.DocumentRequestAggregatedMeasureData, "D21"))
	assert.True(t, c.BusinessReasonAllowed(models.DocumentRequestWholesaleSettlement, "D05"))
	assert.False(t, c.BusinessReasonAllowed(models.DocumentRequestWholesaleSettlement, "D04"))
	assert.True(t, c.BusinessTypeAllowed(models.DocumentForwardMeteredData, "23"))
	assert.False(t, c.SupportsDocument(models.DocumentNotifyWholesaleServices))
}

func TestDefaultDefinitionIsACopy(t *testing.T) {
	def := DefaultDefinition()
	c, err := New(def)
	require.NoError(t, err)

	def.Roles["DDQ"] = "changed"
	name, _ := c.RoleName("DDQ")
	assert.Equal(t, "electricalsupplier", name)
}

func TestNew_Invalid(t *testing.T) {
	def := DefaultDefinition()
	def.PlatformRole = "NOPE"
	_, err := New(def)
	assert.Error(t, err)

	def = DefaultDefinition()
	def.PlatformNumber = ""
	_, err = New(def)
	assert.Error(t, err)

	def = DefaultDefinition()
	def.Delegations = []Delegation{{Delegate: "1"}}
	_, err = New(def)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codelists.yaml")
	content := `
platform_number: "5790001330584"
delegations:
  - delegated_by: "5790000000001"
    delegate: "5790000000002"
    role: DDM
    grid_areas: ["804"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "5790001330584", c.PlatformNumber())
	assert.Equal(t, "DDZ", c.PlatformRole())
	assert.True(t, c.MessageTypeAllowed(models.DocumentRequestAggregatedMeasureData, "E74"))

	assert.True(t, c.IsDelegate("5790000000002", "5790000000001", "ddm", "804"))
	assert.False(t, c.IsDelegate("5790000000002", "5790000000001", "DDM", "805"))
	assert.False(t, c.IsDelegate("5790000000002", "5790000000001", "DDQ", "804"))
	assert.False(t, c.IsDelegate("5790000000001", "5790000000002", "DDM", "804"))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles: [unclosed"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPlatformNumber, c.PlatformNumber())
}
