package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/analyzer"
	"github.com/jogakdal/tbeg/pkg/tbeg/model"
	"github.com/jogakdal/tbeg/pkg/tbeg/position"
	"github.com/jogakdal/tbeg/pkg/tbeg/provider"
)

type employee struct {
	Name string
	Age  int
}

// buildCtx bypasses the analyzer and builds the WorkbookSpec directly, so
// the renderer is exercised in isolation from marker parsing.
func buildCtx(t *testing.T, templateBytes []byte, employees []employee) *model.ProcessingContext {
	t.Helper()
	sheetName := "Sheet1"
	sheet := model.NewSheetSpec(sheetName)
	sheet.Set(model.CellCoord{Row: 0, Col: 0}, model.Variable("companyName"))
	sheet.Set(model.CellCoord{Row: 1, Col: 0}, model.ItemField("Name"))
	sheet.Set(model.CellCoord{Row: 1, Col: 1}, model.ItemField("Age"))
	sheet.Set(model.CellCoord{Row: 3, Col: 0}, model.StaticString("footer"))
	sheet.Repeats = []model.RepeatRegionSpec{{
		Collection: "employees",
		Sheet:      sheetName,
		Area:       model.NewCellArea(1, 0, 1, 1),
		Variable:   "emp",
		Direction:  model.DirectionDown,
	}}

	wb := &model.WorkbookSpec{Sheets: []*model.SheetSpec{sheet}}

	items := make([]interface{}, len(employees))
	for i, e := range employees {
		items[i] = e
	}
	p := provider.NewStatic().WithValue("companyName", "Acme Inc").WithSlice("employees", items)

	sizes := model.CollectionSizes{"employees": len(employees)}
	calc := position.NewCalculator(sheet, sizes)

	ctx := model.NewProcessingContext(templateBytes, p, model.DefaultConfig())
	ctx.WorkbookSpec = wb
	ctx.CollectionSizes = sizes
	ctx.Calculators[sheetName] = calc
	return ctx
}

func minimalTemplateBytes(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return buf.Bytes()
}

func TestInMemory_RendersVariableAndRepeat(t *testing.T) {
	ctx := buildCtx(t, minimalTemplateBytes(t), []employee{{Name: "Alice", Age: 30}, {Name: "Bob", Age: 40}})

	out, err := (InMemory{}).Render(ctx)
	require.NoError(t, err)

	f, err := excelize.OpenReader(byteReader(out))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue("Sheet1", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Inc", v)

	name1, _ := f.GetCellValue("Sheet1", "A2")
	age1, _ := f.GetCellValue("Sheet1", "B2")
	name2, _ := f.GetCellValue("Sheet1", "A3")
	age2, _ := f.GetCellValue("Sheet1", "B3")
	assert.Equal(t, "Alice", name1)
	assert.Equal(t, "30", age1)
	assert.Equal(t, "Bob", name2)
	assert.Equal(t, "40", age2)

	// The footer, originally at row 4, must have shifted down by the one
	// extra row the second employee introduced.
	footer, _ := f.GetCellValue("Sheet1", "A5")
	assert.Equal(t, "footer", footer)
}

// TestInMemory_MarkerDrivenItemFieldStripsVariablePrefix exercises the
// real analyzer/marker path, where an ItemField's path carries the
// repeat's bound variable name as written by a template author
// (${emp.Name}), rather than buildCtx's hand-built bare paths.
func TestInMemory_MarkerDrivenItemFieldStripsVariablePrefix(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "D1", "${repeat(employees, A2:B2, emp, DOWN)}"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "${emp.Name}"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "${emp.Age}"))

	wb, _, err := analyzer.New(model.DefaultConfig()).Analyze(f)
	require.NoError(t, err)
	tmpl, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	items := []interface{}{employee{Name: "Alice", Age: 30}, employee{Name: "Bob", Age: 40}}
	p := provider.NewStatic().WithSlice("employees", items)

	sheet, _ := wb.Sheet("Sheet1")
	sizes := model.CollectionSizes{"employees": len(items)}
	calc := position.NewCalculator(sheet, sizes)

	ctx := model.NewProcessingContext(tmpl.Bytes(), p, model.DefaultConfig())
	ctx.WorkbookSpec = wb
	ctx.CollectionSizes = sizes
	ctx.Calculators["Sheet1"] = calc

	out, err := (InMemory{}).Render(ctx)
	require.NoError(t, err)

	out2, err := excelize.OpenReader(byteReader(out))
	require.NoError(t, err)
	defer out2.Close()

	name1, _ := out2.GetCellValue("Sheet1", "A2")
	age1, _ := out2.GetCellValue("Sheet1", "B2")
	name2, _ := out2.GetCellValue("Sheet1", "A3")
	age2, _ := out2.GetCellValue("Sheet1", "B3")
	assert.Equal(t, "Alice", name1)
	assert.Equal(t, "30", age1)
	assert.Equal(t, "Bob", name2)
	assert.Equal(t, "40", age2)
}

// TestInMemory_SideBySideRepeatsExpandIndependently exercises two DOWN
// repeats on disjoint columns of the same sheet, sized differently: each
// must grow to its own item count without being stretched or truncated
// by the other, and static content in a column that belongs to neither
// repeat's band (but lies after the deepest one) must clear the deeper
// of the two.
func TestInMemory_SideBySideRepeatsExpandIndependently(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "${repeat(employees, A2, emp, DOWN)}"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "${emp.Name}"))
	require.NoError(t, f.SetCellValue("Sheet1", "C1", "${repeat(managers, C2, mgr, DOWN)}"))
	require.NoError(t, f.SetCellValue("Sheet1", "C2", "${mgr.Name}"))
	require.NoError(t, f.SetCellValue("Sheet1", "E10", "deepest-footer"))

	wb, _, err := analyzer.New(model.DefaultConfig()).Analyze(f)
	require.NoError(t, err)
	tmpl, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	employees := []interface{}{employee{Name: "Alice"}, employee{Name: "Bob"}}
	managers := []interface{}{employee{Name: "Carol"}, employee{Name: "Dana"}, employee{Name: "Erin"}, employee{Name: "Finn"}}
	p := provider.NewStatic().WithSlice("employees", employees).WithSlice("managers", managers)

	sheet, _ := wb.Sheet("Sheet1")
	sizes := model.CollectionSizes{"employees": len(employees), "managers": len(managers)}
	calc := position.NewCalculator(sheet, sizes)

	ctx := model.NewProcessingContext(tmpl.Bytes(), p, model.DefaultConfig())
	ctx.WorkbookSpec = wb
	ctx.CollectionSizes = sizes
	ctx.Calculators["Sheet1"] = calc

	out, err := (InMemory{}).Render(ctx)
	require.NoError(t, err)

	out2, err := excelize.OpenReader(byteReader(out))
	require.NoError(t, err)
	defer out2.Close()

	// employees: 2 items starting at A2 -> A2, A3.
	name1, _ := out2.GetCellValue("Sheet1", "A2")
	name2, _ := out2.GetCellValue("Sheet1", "A3")
	assert.Equal(t, "Alice", name1)
	assert.Equal(t, "Bob", name2)

	// managers: 4 items starting at C2 -> C2..C5, unaffected by employees'
	// shorter column.
	for i, want := range []string{"Carol", "Dana", "Erin", "Finn"} {
		cell, _ := excelize.CoordinatesToCellName(3, 2+i)
		got, _ := out2.GetCellValue("Sheet1", cell)
		assert.Equal(t, want, got, "cell %s", cell)
	}

	// column E belongs to neither band's zone, so it must shift down by
	// the deepest band's expansion (managers, 3 extra rows), not
	// employees' (1 extra row) nor their sum.
	footer, _ := out2.GetCellValue("Sheet1", "E13")
	assert.Equal(t, "deepest-footer", footer)
}

func TestInMemory_EmptyCollectionClearsBlock(t *testing.T) {
	ctx := buildCtx(t, minimalTemplateBytes(t), nil)

	out, err := (InMemory{}).Render(ctx)
	require.NoError(t, err)

	f, err := excelize.OpenReader(byteReader(out))
	require.NoError(t, err)
	defer f.Close()

	name, _ := f.GetCellValue("Sheet1", "A2")
	assert.Empty(t, name)
}
