package store

import (
	"database/sql"

	"github.com/gamma-omg/timewise-go/internal/services/timewise/internal/model"
)

// punchRow is the nullable column form of a model.Punch.
type punchRow struct {
	at  sql.NullTime
	lat sql.NullFloat64
	lng sql.NullFloat64
	acc sql.NullFloat64
}

func newPunchRow(p *model.Punch) punchRow {
	var r punchRow
	if p == nil {
		return r
	}

	r.at = sql.NullTime{Time: p.At, Valid: true}
	if p.Fix != nil {
		r.lat = sql.NullFloat64{Float64: p.Fix.Lat, Valid: true}
		r.lng = sql.NullFloat64{Float64: p.Fix.Lng, Valid: true}
		if p.Fix.Accuracy != nil {
			r.acc = sql.NullFloat64{Float64: *p.Fix.Accuracy, Valid: true}
		}
	}

	return r
}

func (r punchRow) punch() *model.Punch {
	if !r.at.Valid {
		return nil
	}

	p := &model.Punch{At: r.at.Time}
	if r.lat.Valid && r.lng.Valid {
		p.Fix = &model.GeoFix{Lat: r.lat.Float64, Lng: r.lng.Float64}
		if r.acc.Valid {
			acc := r.acc.Float64
			p.Fix.Accuracy = &acc
		}
	}

	return p
}
