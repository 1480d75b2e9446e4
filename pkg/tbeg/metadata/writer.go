// Package metadata implements the MetadataWriter (spec §4.10): the
// rendered workbook's document properties (title, author, ...) are set
// from whatever the DataProvider exposes, via excelize.SetDocProps.
package metadata

import (
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
)

// Writer applies a model.DocumentMetadata to an open workbook.
type Writer struct{}

// Write is a no-op when meta is the zero value (no provider metadata was
// available), since overwriting a template's existing properties with
// blanks would be a regression, not a preservation.
func (Writer) Write(f *excelize.File, meta model.DocumentMetadata) error {
	if isZero(meta) {
		return nil
	}
	props := &excelize.DocProperties{
		Title:       meta.Title,
		Creator:     meta.Author,
		Subject:     meta.Subject,
		Keywords:    strings.Join(meta.Keywords, ", "),
		Description: meta.Description,
		Category:    meta.Category,
	}
	if err := f.SetDocProps(props); err != nil {
		return &model.PackageIoError{Op: "SetDocProps", Cause: err}
	}
	if meta.Company != "" || meta.Manager != "" {
		if err := setCompanyAndManager(f, meta.Company, meta.Manager); err != nil {
			return err
		}
	}
	return nil
}

func isZero(m model.DocumentMetadata) bool {
	return m.Title == "" && m.Author == "" && m.Subject == "" && len(m.Keywords) == 0 &&
		m.Description == "" && m.Category == "" && m.Company == "" && m.Manager == ""
}

// setCompanyAndManager handles the two properties excelize.DocProperties
// doesn't carry (they live in docProps/app.xml, not core.xml). Company is
// written via SetAppProps; manager is not written.
func setCompanyAndManager(f *excelize.File, company, manager string) error {
	if company != "" {
		if err := f.SetAppProps(&excelize.AppProperties{Company: company}); err != nil {
			return &model.PackageIoError{Op: "SetAppProps", Cause: err}
		}
	}
	_ = manager // excelize has no first-class "manager" app property slot as of this module's target version
	return nil
}
