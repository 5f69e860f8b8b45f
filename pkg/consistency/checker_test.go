package consistency

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/azuminxx/simple-redger-sub000/pkg/models"
)

func record(rows ...models.RawRow) *models.MergedRecord {
	m := &models.MergedRecord{Rows: map[models.Store]*models.RawRow{}}
	for i := range rows {
		m.Rows[rows[i].Store] = &rows[i]
	}
	return m
}

func row(store models.Store, links map[models.LinkingField]string) models.RawRow {
	return models.RawRow{Store: store, ID: 1, Links: links}
}

func TestCheckSingleStore(t *testing.T) {
	report := Check(record(row(models.StorePC, map[models.LinkingField]string{
		models.FieldPCNo:   "PC9",
		models.FieldSeatNo: "101",
	})))
	assert.True(t, report.Consistent)
	assert.Empty(t, report.Fields)
}

func TestCheckAbsenceIsNotConflict(t *testing.T) {
	report := Check(record(
		row(models.StoreSeat, map[models.LinkingField]string{models.FieldSeatNo: "101", models.FieldPCNo: "PC9"}),
		row(models.StorePC, map[models.LinkingField]string{models.FieldPCNo: "PC9", models.FieldSeatNo: ""}),
		row(models.StoreExtension, map[models.LinkingField]string{models.FieldExtNo: "55"}),
	))
	assert.True(t, report.Consistent)
	assert.Empty(t, FlaggedFields(report))
}

func TestCheckFlagsDisagreement(t *testing.T) {
	report := Check(record(
		row(models.StoreSeat, map[models.LinkingField]string{models.FieldSeatNo: "101", models.FieldExtNo: "55"}),
		row(models.StorePC, map[models.LinkingField]string{models.FieldSeatNo: "102", models.FieldExtNo: "56"}),
		row(models.StoreExtension, map[models.LinkingField]string{models.FieldExtNo: "55"}),
	))
	assert.False(t, report.Consistent)
	assert.Equal(t, []models.LinkingField{models.FieldSeatNo, models.FieldExtNo}, FlaggedFields(report))
	assert.Equal(t, []models.Observation{
		{Store: models.StoreSeat, Value: "55"},
		{Store: models.StorePC, Value: "56"},
		{Store: models.StoreExtension, Value: "55"},
	}, report.Fields[models.FieldExtNo])
}

func TestCheckIsSymmetric(t *testing.T) {
	seat := row(models.StoreSeat, map[models.LinkingField]string{models.FieldSeatNo: "101"})
	pc := row(models.StorePC, map[models.LinkingField]string{models.FieldSeatNo: "102"})

	forward := record(seat, pc)
	backward := record(pc, seat)
	assert.Equal(t, Check(forward), Check(backward))
	assert.False(t, Check(forward).Consistent)
}
