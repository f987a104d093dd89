// Package codelists holds the immutable lookup tables the validators and
// writers are constructed with: platform identity, role codes, allowed
// message codes per document and delegations.
package codelists

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/edi-stack/edi/internal/models"
)

// DefaultPlatformNumber is the GLN of the platform (DataHub).
const DefaultPlatformNumber = "5790001330583"

// DocumentRules lists the codes accepted for one incoming document type.
type DocumentRules struct {
	MessageTypes    []string `yaml:"message_types"`
	BusinessReasons []string `yaml:"business_reasons"`
	BusinessTypes   []string `yaml:"business_types"`
}

// Delegation lets Delegate send on behalf of DelegatedBy in Role. An empty
// GridAreas list covers every grid area.
type Delegation struct {
	DelegatedBy string   `yaml:"delegated_by"`
	Delegate    string   `yaml:"delegate"`
	Role        string   `yaml:"role"`
	GridAreas   []string `yaml:"grid_areas"`
}

// Definition is the serialisable form of the code lists.
type Definition struct {
	PlatformNumber string                                `yaml:"platform_number"`
	PlatformRole   string                                `yaml:"platform_role"`
	Roles          map[string]string                     `yaml:"roles"`
	Documents      map[models.DocumentType]DocumentRules `yaml:"documents"`
	Delegations    []Delegation                          `yaml:"delegations"`
}

// DefaultDefinition returns the compiled-in code lists.
func DefaultDefinition() Definition {
	return Definition{
		PlatformNumber: DefaultPlatformNumber,
		PlatformRole:   models.RoleMeteringPointAdministrator.Code(),
		Roles: map[string]string{
			models.RoleEnergySupplier.Code():          "electricalsupplier",
			models.RoleBalanceResponsibleParty.Code(): "balanceresponsibleparty",
			models.RoleGridOperator.Code():            "gridoperator",
			models.RoleMeteredDataResponsible.Code():  "meteredataresponsible",
			models.RoleSystemOperator.Code():          "systemoperator",
			models.RoleDanishEnergyAgency.Code():      "danishenergyagency",
		},
		Documents: map[models.DocumentType]DocumentRules{
			models.DocumentRequestAggregatedMeasureData: {
				MessageTypes:    []string{"E74"},
				BusinessReasons: []string{"D03", "D04", "D05", "D32"},
				BusinessTypes:   []string{"23"},
			},
			models.DocumentRequestWholesaleSettlement: {
				MessageTypes:    []string{"D21"},
				BusinessReasons: []string{"D05", "D32"},
				BusinessTypes:   []string{"23"},
			},
			models.DocumentForwardMeteredData: {
				MessageTypes:    []string{"E66"},
				BusinessReasons: []string{"E23"},
				BusinessTypes:   []string{"23"},
			},
		},
	}
}

// CodeLists is a validated, read-only view of a Definition.
type CodeLists struct {
	platformNumber string
	platformRole   string
	roles          map[string]string
	documents      map[models.DocumentType]DocumentRules
	delegations    []Delegation
}

// New validates def and returns an immutable CodeLists.
func New(def Definition) (*CodeLists, error) {
	if def.PlatformNumber == "" {
		return nil, fmt.Errorf("platform_number is required")
	}
	if _, err := models.ActorRoleFromCode(def.PlatformRole); err != nil {
		return nil, fmt.Errorf("platform_role: %w", err)
	}

	c := &CodeLists{
		platformNumber: def.PlatformNumber,
		platformRole:   strings.ToUpper(def.PlatformRole),
		roles:          make(map[string]string, len(def.Roles)),
		documents:      make(map[models.DocumentType]DocumentRules, len(def.Documents)),
		delegations:    slices.Clone(def.Delegations),
	}
	for code, name := range def.Roles {
		c.roles[strings.ToUpper(code)] = name
	}
	for dt, rules := range def.Documents {
		if !dt.Valid() {
			return nil, &models.UnknownCodeError{Kind: "document type", Value: string(dt), ByName: true}
		}
		c.documents[dt] = DocumentRules{
			MessageTypes:    slices.Clone(rules.MessageTypes),
			BusinessReasons: slices.Clone(rules.BusinessReasons),
			BusinessTypes:   slices.Clone(rules.BusinessTypes),
		}
	}
	for i, d := range c.delegations {
		if d.Delegate == "" || d.DelegatedBy == "" || d.Role == "" {
			return nil, fmt.Errorf("delegation %d: delegate, delegated_by and role are required", i)
		}
	}
	return c, nil
}

// Default returns the compiled-in code lists.
func Default() *CodeLists {
	c, err := New(DefaultDefinition())
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a YAML file and overlays it on the defaults. Sections present in
// the file replace the default section entirely.
func Load(path string) (*CodeLists, error) {
	def := DefaultDefinition()
	if path == "" {
		return New(def)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read code lists: %w", err)
	}

	var file Definition
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse code lists: %w", err)
	}

	if file.PlatformNumber != "" {
		def.PlatformNumber = file.PlatformNumber
	}
	if file.PlatformRole != "" {
		def.PlatformRole = file.PlatformRole
	}
	if file.Roles != nil {
		def.Roles = file.Roles
	}
	if file.Documents != nil {
		def.Documents = file.Documents
	}
	if file.Delegations != nil {
		def.Delegations = file.Delegations
	}
	return New(def)
}

// PlatformNumber is the receiver number incoming messages must address.
func (c *CodeLists) PlatformNumber() string { return c.platformNumber }

// PlatformRole is the receiver role code incoming messages must address.
func (c *CodeLists) PlatformRole() string { return c.platformRole }

// PlatformActor is the sender of every outgoing document.
func (c *CodeLists) PlatformActor() models.Actor {
	role, _ := models.ActorRoleFromCode(c.platformRole)
	return models.Actor{Number: c.platformNumber, Role: role}
}

// RoleName maps a role code such as "DDQ" to the role name held by actors.
func (c *CodeLists) RoleName(code string) (string, bool) {
	name, ok := c.roles[strings.ToUpper(code)]
	return name, ok
}

// RoleCodeForName maps a held role name back to its role code.
func (c *CodeLists) RoleCodeForName(name string) (string, bool) {
	for code, n := range c.roles {
		if strings.EqualFold(n, name) {
			return code, true
		}
	}
	return "", false
}

// SupportsDocument reports whether incoming documents of dt are accepted.
func (c *CodeLists) SupportsDocument(dt models.DocumentType) bool {
	_, ok := c.documents[dt]
	return ok
}

func (c *CodeLists) MessageTypeAllowed(dt models.DocumentType, code string) bool {
	return slices.Contains(c.documents[dt].MessageTypes, code)
}

func (c *CodeLists) BusinessReasonAllowed(dt models.DocumentType, code string) bool {
	return slices.Contains(c.documents[dt].BusinessReasons, code)
}

func (c *CodeLists) BusinessTypeAllowed(dt models.DocumentType, code string) bool {
	return slices.Contains(c.documents[dt].BusinessTypes, code)
}

// IsDelegate reports whether delegate may act for delegatedBy in roleCode
// within gridArea.
func (c *CodeLists) IsDelegate(delegate, delegatedBy, roleCode, gridArea string) bool {
	for _, d := range c.delegations {
		if !strings.EqualFold(d.Delegate, delegate) || !strings.EqualFold(d.DelegatedBy, delegatedBy) {
			continue
		}
		if !strings.EqualFold(d.Role, roleCode) {
			continue
		}
		if len(d.GridAreas) == 0 || slices.Contains(d.GridAreas, gridArea) {
			return true
		}
	}
	return false
}
