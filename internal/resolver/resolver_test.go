package resolver

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spring-Family-IT/aiqc-spring/internal/filename"
	"github.com/Spring-Family-IT/aiqc-spring/internal/sheet"
)

func rows() []sheet.ReferenceRow {
	return []sheet.ReferenceRow{
		{"Communication no.": " 1234 ", "Name of Dependency": "v1", "Description": "ma", "id": "r0"},
		{"Communication no.": "1234", "Name of Dependency": "V2", "Description": "SA", "id": "r1"},
		{"Communication no.": "1234", "Name of Dependency": "V2", "Description": "MA-BOX", "id": "r2"},
		{"Communication no.": "1234", "Name of Dependency": "V2", "Description": "MA", "id": "r3"},
		{"Communication no.": "5678", "Name of Dependency": nil, "Product Version no.": "V9", "Description": "SEMI FINISHED", "id": "r4"},
		{"Communication no.": 4242.0, "Name of Dependency": "V1", "Description": "SA", "id": "r5"},
	}
}

func key(sku, version string, typ filename.DocumentType) filename.DocumentKey {
	return filename.DocumentKey{SKU: sku, Version: version, Type: typ}
}

func TestResolve_FirstMatchWins(t *testing.T) {
	t.Parallel()

	r := New(Options{})

	row, err := r.Resolve(key("1234", "V2", filename.TypeMABox), rows())
	require.NoError(t, err)
	assert.Equal(t, "r2", row["id"])

	// 版本大小写无关，SKU 去除首尾空白
	row, err = r.Resolve(key("1234", "V1", filename.TypeMABox), rows())
	require.NoError(t, err)
	assert.Equal(t, "r0", row["id"])

	row, err = r.Resolve(key("1234", "V2", filename.TypeSemi), rows())
	require.NoError(t, err)
	assert.Equal(t, "r1", row["id"])

	// 数值 SKU 单元格
	row, err = r.Resolve(key("4242", "V1", filename.TypeSemi), rows())
	require.NoError(t, err)
	assert.Equal(t, "r5", row["id"])
}

func TestResolve_FallbackVersionColumn(t *testing.T) {
	t.Parallel()

	r := New(Options{Policy: DescriptionContains})
	row, err := r.Resolve(key("5678", "V9", filename.TypeSemi), rows())
	require.NoError(t, err)
	assert.Equal(t, "r4", row["id"])

	// exact 策略下 "SEMI FINISHED" 不等于 SEMI
	_, err = New(Options{}).Resolve(key("5678", "V9", filename.TypeSemi), rows())
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, StageDescription, f.Stage)
	assert.Equal(t, []string{"SEMI FINISHED"}, f.Candidates)
}

func TestResolve_FailureStages(t *testing.T) {
	t.Parallel()

	r := New(DefaultOptions())

	_, err := r.Resolve(key("0000", "V1", filename.TypeMABox), rows())
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, StageSKU, f.Stage)
	assert.Contains(t, err.Error(), `no row with SKU "0000"`)

	_, err = r.Resolve(key("1234", "V7", filename.TypeMABox), rows())
	require.True(t, errors.As(err, &f))
	assert.Equal(t, StageVersion, f.Stage)
	assert.Equal(t, []string{"v1", "V2"}, f.Candidates)

	_, err = r.Resolve(key("4242", "V1", filename.TypeMABox), rows())
	require.True(t, errors.As(err, &f))
	assert.Equal(t, StageDescription, f.Stage)
	assert.Equal(t, []string{"SA"}, f.Candidates)

	_, err = r.Resolve(key("1234", "V2", filename.TypeMABox), nil)
	require.True(t, errors.As(err, &f))
	assert.Equal(t, StageSKU, f.Stage)
}

func TestNormalizeDescription(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "MA-BOX", NormalizeDescription(" ma "))
	assert.Equal(t, "SEMI", NormalizeDescription("SA"))
	assert.Equal(t, "MA-BOX", NormalizeDescription("ma-box"))
	assert.Equal(t, "", NormalizeDescription(""))
}

func TestParseDescriptionPolicy(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DescriptionContains, ParseDescriptionPolicy(" Contains "))
	assert.Equal(t, DescriptionExact, ParseDescriptionPolicy("exact"))
	assert.Equal(t, DescriptionExact, ParseDescriptionPolicy("whatever"))
}
