package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spring-Family-IT/aiqc-spring/internal/mapping"
	"github.com/Spring-Family-IT/aiqc-spring/internal/sheet"
)

func referenceRow() sheet.ReferenceRow {
	return sheet.ReferenceRow{
		mapping.ColumnSKU:         "1234",
		mapping.ColumnAgeMark:     "6+",
		mapping.ColumnDependency:  "V1",
		mapping.ColumnPieceCount:  120.0,
		mapping.ColumnComponent:   "6500001",
		mapping.ColumnEAN:         "012345678905",
		mapping.ColumnItemNumber:  "  ",
		mapping.ColumnDescription: "MA",
	}
}

func extractedFields() map[string]string {
	return map[string]string{
		"SKU_Number_Front":   "1234",
		"SKU_Number_Left":    "NA",
		"Age_Mark":           "6+",
		"Piece_Count":        "120 PCS/PZS",
		"Material_Number_MA": "6500001",
		"Barcodes_barcode":   "0123 4567 8905",
		"DataMatrix":         "",
	}
}

func TestBuildSelectedInputs(t *testing.T) {
	t.Parallel()

	got := BuildSelectedInputs(referenceRow(), mapping.PKGv2CombinedMapping())
	assert.Equal(t, []SelectedInput{
		{Column: mapping.ColumnSKU, Value: "1234"},
		{Column: mapping.ColumnAgeMark, Value: "6+"},
		{Column: mapping.ColumnDependency, Value: "V1"},
		{Column: mapping.ColumnPieceCount, Value: "120 pcs/pzs"},
		{Column: mapping.ColumnComponent, Value: "6500001"},
		{Column: mapping.ColumnEAN, Value: "012345678905"},
	}, got)
}

func TestCompareRow_Lenient(t *testing.T) {
	t.Parallel()

	verdicts := New(ListLenient).CompareRow(referenceRow(), mapping.PKGv2CombinedMapping(), extractedFields())

	assert.Equal(t, []Verdict{
		{Field: "Communication no. (SKU_Number_Front)", PDFValue: "1234", ExcelValue: "1234", Status: StatusCorrect},
		{Field: mapping.ColumnAgeMark, PDFValue: "6+", ExcelValue: "6+", Status: StatusCorrect},
		{Field: mapping.ColumnDependency, PDFValue: NotFoundInPDF, ExcelValue: "V1", Status: StatusNotFound, MatchDetails: "Expected Label: Version"},
		{Field: mapping.ColumnPieceCount, PDFValue: "120 PCS/PZS", ExcelValue: "120 pcs/pzs", Status: StatusCorrect},
		{Field: "Component (Material_Number_MA)", PDFValue: "6500001", ExcelValue: "6500001", Status: StatusCorrect},
		{Field: "EAN/UPC (UPCA)", PDFValue: "0123 4567 8905", ExcelValue: "012345678905", Status: StatusCorrect},
	}, verdicts)

	assert.Equal(t, Summary{Total: 6, Correct: 5, NotFound: 1}, Summarize(verdicts))
}

func TestCompareRow_StrictEmitsMissingPlacements(t *testing.T) {
	t.Parallel()

	verdicts := New(ListStrict).CompareRow(referenceRow(), mapping.PKGv2CombinedMapping(), extractedFields())
	s := Summarize(verdicts)

	// 5 个 SKU 位置 + 2 个物料号位置 + Barcode/DataMatrix
	assert.Equal(t, 15, s.Total)
	assert.Equal(t, 5, s.Correct)
	assert.Equal(t, 10, s.NotFound)

	var left *Verdict
	for i := range verdicts {
		if verdicts[i].Field == "Communication no. (SKU_Number_Left)" {
			left = &verdicts[i]
		}
	}
	require.NotNil(t, left)
	assert.Equal(t, StatusNotFound, left.Status)
	assert.Equal(t, "Expected Label: SKU_Number_Left", left.MatchDetails)
}

func TestCompare_UnmappedColumn(t *testing.T) {
	t.Parallel()

	verdicts := New("").Compare(
		[]SelectedInput{{Column: mapping.ColumnDescription, Value: "MA"}},
		mapping.LP5Mapping(),
		map[string]string{"Description": "MA"},
	)
	require.Len(t, verdicts, 1)
	assert.Equal(t, Verdict{Field: mapping.ColumnDescription, ExcelValue: "MA", Status: StatusNotFound}, verdicts[0])
}

func TestCompare_Incorrect(t *testing.T) {
	t.Parallel()

	verdicts := New(ListLenient).Compare(
		[]SelectedInput{
			{Column: mapping.ColumnAgeMark, Value: "6+"},
			{Column: mapping.ColumnPieceCount, Value: "120"},
		},
		mapping.LP5Mapping(),
		map[string]string{"AgeMark": "4+", "PieceCount": "121 pcs/pzs"},
	)
	require.Len(t, verdicts, 2)
	assert.Equal(t, StatusIncorrect, verdicts[0].Status)
	assert.Equal(t, "4+", verdicts[0].PDFValue)
	assert.Equal(t, StatusIncorrect, verdicts[1].Status)
	assert.Equal(t, "120 pcs/pzs", verdicts[1].ExcelValue)
}

func TestCompare_BarcodeRuleOnExpectedSide(t *testing.T) {
	t.Parallel()

	verdicts := New(ListLenient).Compare(
		[]SelectedInput{{Column: mapping.ColumnEAN, Value: "0 12345 67890 5"}},
		mapping.LP5Mapping(),
		map[string]string{"Barcode": "012345678905", "upca": "012345 678905"},
	)
	require.Len(t, verdicts, 2)
	for _, v := range verdicts {
		assert.Equal(t, StatusCorrect, v.Status, v.Field)
	}
	assert.Equal(t, "EAN/UPC (Barcode)", verdicts[0].Field)
	assert.Equal(t, "EAN/UPC (UPCA)", verdicts[1].Field)
}

func TestSummary_Add(t *testing.T) {
	t.Parallel()

	var s Summary
	s.Add(Summary{Total: 3, Correct: 2, Incorrect: 1})
	s.Add(Summary{Total: 2, NotFound: 2})
	assert.Equal(t, Summary{Total: 5, Correct: 2, Incorrect: 1, NotFound: 2}, s)
}

func TestParseListPolicy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ListStrict, ParseListPolicy("STRICT"))
	assert.Equal(t, ListLenient, ParseListPolicy(""))
	assert.Equal(t, ListLenient, New("").Policy())
}
