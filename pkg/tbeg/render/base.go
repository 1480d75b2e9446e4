// Package render implements the two RenderingStrategy implementations
// (spec §4.5): an in-memory strategy that edits a fully loaded
// excelize.File, and a streaming strategy built on excelize.StreamWriter
// for templates whose expanded row count would make in-memory editing
// too slow/memory-heavy. Both share resolveItemValue's cell-content
// resolution (base.go), keeping the only real difference between the two
// strategies to "how a resolved value gets written to the sheet".
package render

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
)

// byteReader wraps a byte slice as an io.Reader for excelize.OpenReader.
func byteReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

// Strategy renders an analyzed WorkbookSpec, with its repeats already
// sized, into an output workbook.
type Strategy interface {
	Render(ctx *model.ProcessingContext) ([]byte, error)
}

// resolveItemValue looks up a dotted path (e.g. "employee.name" or just
// "name") against the current repeat item, falling back to reflection
// for struct fields and map keys — the same two shapes the teacher's
// SliceDataProvider accepts via reflect.Value.Index/Interface.
func resolveItemValue(item interface{}, path string) (model.Value, bool) {
	if item == nil {
		return model.Nil, false
	}
	segments := strings.Split(path, ".")
	cur := reflect.ValueOf(item)
	// The first segment names the repeat's bound variable (e.g. "emp" in
	// repeat(..., emp, ...)); callers pass the path with it already
	// stripped, so segments[0] is the first real field.
	for _, seg := range segments {
		cur = derefValue(cur)
		if !cur.IsValid() {
			return model.Nil, false
		}
		switch cur.Kind() {
		case reflect.Map:
			v := cur.MapIndex(reflect.ValueOf(seg))
			if !v.IsValid() {
				return model.Nil, false
			}
			cur = v
		case reflect.Struct:
			v := cur.FieldByName(seg)
			if !v.IsValid() {
				return model.Nil, false
			}
			cur = v
		default:
			return model.Nil, false
		}
	}
	cur = derefValue(cur)
	if !cur.IsValid() {
		return model.Nil, false
	}
	return model.ValueOf(cur.Interface()), true
}

func derefValue(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// resolveScalar resolves a non-repeat cell's content (Variable, static
// values) against the provider; ItemField/Repeat/Image/Size variants are
// handled by the caller in repeat-item or marker-specific context.
func resolveScalar(ctx *model.ProcessingContext, content model.CellContent) (model.Value, error) {
	switch content.Kind {
	case model.ContentStaticString:
		return model.StringValue(content.StaticString), nil
	case model.ContentStaticNumber:
		return model.NumberValue(content.StaticNumber), nil
	case model.ContentStaticBoolean:
		return model.BoolValue(content.StaticBool), nil
	case model.ContentVariable:
		return resolveVariable(ctx, content.VariableName)
	case model.ContentSizeMarker:
		n := ctx.CollectionSizes.Get(content.Size.Collection)
		return model.NumberValue(float64(n)), nil
	default:
		return model.Nil, fmt.Errorf("resolveScalar: unsupported content kind %v", content.Kind)
	}
}

// resolveVariable resolves a scalar variable, applying the configured
// MissingDataBehavior when the provider doesn't know it.
func resolveVariable(ctx *model.ProcessingContext, name string) (model.Value, error) {
	v, ok := ctx.DataProvider.Value(name)
	if ok {
		return v, nil
	}
	switch ctx.Config.MissingDataBehavior {
	case model.MissingDataThrow:
		return model.Nil, &model.MissingTemplateDataError{Variables: []string{name}}
	case model.MissingDataWarn:
		log.Warn().Str("variable", name).Msg("template variable not provided")
		return model.Nil, nil
	default:
		return model.Nil, nil
	}
}

// substituteFormulaVariables replaces every ${name} token in a formula
// string with its resolved value's literal text, leaving cell/range
// references untouched (they are rewritten separately by the formula
// package once positions are final).
func substituteFormulaVariables(ctx *model.ProcessingContext, text string, item interface{}, itemVar string) string {
	var b strings.Builder
	for {
		start := strings.Index(text, "${")
		if start < 0 {
			b.WriteString(text)
			break
		}
		b.WriteString(text[:start])
		end := strings.Index(text[start:], "}")
		if end < 0 {
			b.WriteString(text[start:])
			break
		}
		name := text[start+2 : start+end]
		b.WriteString(formulaLiteral(ctx, name, item, itemVar))
		text = text[start+end+1:]
	}
	return b.String()
}

// itemFieldPath strips a leading itemVar segment from an ItemField's
// dotted path (e.g. "emp.Name" with itemVar "emp" becomes "Name"), so
// resolveItemValue sees only the field path within the item itself.
func itemFieldPath(path, itemVar string) string {
	if itemVar == "" {
		return path
	}
	if path == itemVar {
		return ""
	}
	if strings.HasPrefix(path, itemVar+".") {
		return strings.TrimPrefix(path, itemVar+".")
	}
	return path
}

func formulaLiteral(ctx *model.ProcessingContext, name string, item interface{}, itemVar string) string {
	if itemVar != "" && (name == itemVar || strings.HasPrefix(name, itemVar+".")) {
		path := itemFieldPath(name, itemVar)
		if path == "" {
			return fmt.Sprintf("%v", item)
		}
		v, ok := resolveItemValue(item, path)
		if !ok {
			return ""
		}
		return v.String()
	}
	v, err := resolveVariable(ctx, name)
	if err != nil || v.IsNil() {
		return ""
	}
	return v.String()
}

// styleCache caches created style IDs keyed by the source cell they were
// copied from, so repeated repeat items reuse one style ID instead of
// registering a fresh one per row (mirrors the teacher's createStyle
// caching in streamer.go, generalized from a fixed StyleTemplateV3 key to
// "origin cell" since the template's own formatting is the source of
// truth here).
type styleCache struct {
	f      *excelize.File
	bySrc  map[string]int
}

func newStyleCache(f *excelize.File) *styleCache {
	return &styleCache{f: f, bySrc: make(map[string]int)}
}

// styleFor returns the style ID of the template cell at srcSheet!srcCell,
// loading and caching it on first use.
func (c *styleCache) styleFor(srcSheet, srcCell string) (int, error) {
	key := srcSheet + "!" + srcCell
	if id, ok := c.bySrc[key]; ok {
		return id, nil
	}
	id, err := c.f.GetCellStyle(srcSheet, srcCell)
	if err != nil {
		return 0, err
	}
	c.bySrc[key] = id
	return id, nil
}
