package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/jogakdal/tbeg/pkg/tbeg/model"
)

func TestWrite_SetsDocProperties(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	err := (Writer{}).Write(f, model.DocumentMetadata{
		Title:    "Quarterly Report",
		Author:   "tbeg",
		Keywords: []string{"finance", "q3"},
		Company:  "Acme Inc",
	})
	require.NoError(t, err)

	props, err := f.GetDocProps()
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report", props.Title)
	assert.Equal(t, "tbeg", props.Creator)
	assert.Contains(t, props.Keywords, "finance")
}

func TestWrite_ZeroValueIsNoOp(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetDocProps(&excelize.DocProperties{Title: "Untouched"}))

	require.NoError(t, (Writer{}).Write(f, model.DocumentMetadata{}))

	props, err := f.GetDocProps()
	require.NoError(t, err)
	assert.Equal(t, "Untouched", props.Title)
}
