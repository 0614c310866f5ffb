package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tablelandnetwork/arak/pkg/descriptor"
	"github.com/tablelandnetwork/arak/pkg/schema"
	"github.com/tablelandnetwork/arak/pkg/signature"
)

func mustPlan(t *testing.T, name, decl string) schema.Tables {
	t.Helper()
	desc, err := signature.Parse(decl)
	require.NoError(t, err)
	tables, err := schema.Plan(name, desc)
	require.NoError(t, err)
	return tables
}

func TestPlanPlainFieldsAllGoToPrimaryTable(t *testing.T) {
	tables := mustPlan(t, "transfers", "event Transfer(address indexed from, address indexed to, uint256 value)")
	require.Equal(t, "transfers", tables.Primary.Name)
	require.Len(t, tables.Primary.Columns, 3)
	require.Empty(t, tables.DynamicArrays)
	require.Equal(t, descriptor.KindAddress, tables.Primary.Columns[0].Kind)
	require.Equal(t, descriptor.KindUint, tables.Primary.Columns[2].Kind)
	require.Equal(t, 256, tables.Primary.Columns[2].Size)
}

func TestPlanAnonymousTupleFlattensIntoPrimaryTable(t *testing.T) {
	tables := mustPlan(t, "e", "event E((uint256,address) p)")
	require.Len(t, tables.Primary.Columns, 2)
	require.Equal(t, descriptor.KindUint, tables.Primary.Columns[0].Kind)
	require.Equal(t, descriptor.KindAddress, tables.Primary.Columns[1].Kind)
}

func TestPlanNamedTupleUsesComponentNames(t *testing.T) {
	tables := mustPlan(t, "e", "event E((uint256 amount, address who) p)")
	names := []string{tables.Primary.Columns[0].Name, tables.Primary.Columns[1].Name}
	require.Equal(t, []string{"amount_0", "who_1"}, names)
}

func TestPlanFixedArrayFlattensElementsIntoPrimaryTable(t *testing.T) {
	tables := mustPlan(t, "e", "event E(uint256[3] vals)")
	require.Len(t, tables.Primary.Columns, 3)
	for _, c := range tables.Primary.Columns {
		require.Equal(t, descriptor.KindUint, c.Kind)
	}
}

func TestPlanDynamicArrayGetsItsOwnTable(t *testing.T) {
	tables := mustPlan(t, "e", "event E(uint256[] vals)")
	require.Empty(t, tables.Primary.Columns)
	require.Len(t, tables.DynamicArrays, 1)
	require.Equal(t, "e_vals_0", tables.DynamicArrays[0].Name)
	require.Len(t, tables.DynamicArrays[0].Columns, 1)
}

func TestPlanDynamicArrayOfTuplesNamesColumnsFromComponents(t *testing.T) {
	tables := mustPlan(t, "e", "event E((uint256 amount, address who)[] items)")
	require.Len(t, tables.DynamicArrays, 1)
	require.Len(t, tables.DynamicArrays[0].Columns, 2)
	require.Equal(t, "amount_0", tables.DynamicArrays[0].Columns[0].Name)
	require.Equal(t, "who_1", tables.DynamicArrays[0].Columns[1].Name)
}

func TestPlanNestedTuplesFlattenDepthFirst(t *testing.T) {
	tables := mustPlan(t, "e", "event E((uint256 a, (address b, bool c) inner) outer)")
	require.Len(t, tables.Primary.Columns, 3)
	require.Equal(t, descriptor.KindUint, tables.Primary.Columns[0].Kind)
	require.Equal(t, descriptor.KindAddress, tables.Primary.Columns[1].Kind)
	require.Equal(t, descriptor.KindBool, tables.Primary.Columns[2].Kind)
}

func TestPlanNestedFixedArrayFlattensAllElements(t *testing.T) {
	tables := mustPlan(t, "e", "event E(uint256[2][3] vals)")
	require.Len(t, tables.Primary.Columns, 6)
}

func TestPlanNestedFixedArrayOfTuplesFlattensAllLeaves(t *testing.T) {
	tables := mustPlan(t, "e", "event E((uint256 a, bool b)[2] items)")
	require.Len(t, tables.Primary.Columns, 4)
}

func TestPlanRejectsDynamicArrayNestedInsideDynamicArray(t *testing.T) {
	desc, err := signature.Parse("event E(uint256[][] vals)")
	require.NoError(t, err)
	_, err = schema.Plan("e", desc)
	require.Error(t, err)
}

func TestPlanRejectsUnsanitizedName(t *testing.T) {
	desc, err := signature.Parse("event E(uint256 v)")
	require.NoError(t, err)
	_, err = schema.Plan("select", desc)
	require.Error(t, err)
}

func TestSanitizeNameDropsIllegalCharsAndEscapesKeywords(t *testing.T) {
	require.Equal(t, "foo_bar", schema.SanitizeName("foo-bar"))
	require.Equal(t, "_123", schema.SanitizeName("123"))
	require.Equal(t, "select_", schema.SanitizeName("select"))
	require.Equal(t, "SELECT_", schema.SanitizeName("SELECT"))
}

func TestSanitizeNameIsIdempotent(t *testing.T) {
	for _, in := range []string{"foo-bar", "123", "select", "clean_name"} {
		once := schema.SanitizeName(in)
		twice := schema.SanitizeName(once)
		require.Equal(t, once, twice)
	}
}
