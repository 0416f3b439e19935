package diff

import (
	"math"
	"strconv"
	"strings"

	"github.com/pgdelta/pgdelta/internal/ir"
	"github.com/pgdelta/pgdelta/internal/sqlbuild"
)

func (d *differ) sequenceHandler() handler[*ir.Sequence] {
	return handler[*ir.Sequence]{
		key: func(s *ir.Sequence) string { return s.Key() },
		// column-owned sequences follow their serial column
		manage: func(s *ir.Sequence) bool { return !s.OwnedByColumnSerial() },
		equal:  sequencesEqual,
		create: func(s *ir.Sequence) error {
			d.plan.Add(sequenceSQL("CREATE SEQUENCE", s))
			return nil
		},
		drop: func(s *ir.Sequence) error {
			d.plan.Add(sqlbuild.New().
				Phrase("DROP SEQUENCE").Table(s.Schema, s.Name).
				Terminate())
			return nil
		},
		update: func(desired, current *ir.Sequence) error {
			d.plan.Add(sequenceSQL("ALTER SEQUENCE", desired))
			return nil
		},
	}
}

func (d *differ) upsertSequences() {
	_ = d.sequenceHandler().applyCreatesAndUpdates(d.desired.Sequences, d.current.Sequences)
}

func (d *differ) dropSequences() {
	_ = d.sequenceHandler().applyDrops(d.desired.Sequences, d.current.Sequences)
}

// sequencesEqual compares through the effective bounds, since the
// desired side usually leaves min/max/type implicit while the catalogs
// always report concrete values.
func sequencesEqual(a, b *ir.Sequence) bool {
	return ir.TypesEquivalent(seqType(a), seqType(b)) &&
		a.Increment == b.Increment &&
		effectiveMin(a) == effectiveMin(b) &&
		effectiveMax(a) == effectiveMax(b) &&
		a.Start == b.Start &&
		a.Cache == b.Cache &&
		a.Cycle == b.Cycle
}

func seqType(s *ir.Sequence) string {
	if s.DataType == "" {
		return "bigint"
	}
	return s.DataType
}

func typeBounds(s *ir.Sequence) (int64, int64) {
	switch ir.NormalizeType(seqType(s)) {
	case "INT2":
		return math.MinInt16, math.MaxInt16
	case "INT4":
		return math.MinInt32, math.MaxInt32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

func effectiveMin(s *ir.Sequence) int64 {
	if s.MinValue != nil {
		return *s.MinValue
	}
	if s.Increment < 0 {
		lo, _ := typeBounds(s)
		return lo
	}
	return 1
}

func effectiveMax(s *ir.Sequence) int64 {
	if s.MaxValue != nil {
		return *s.MaxValue
	}
	if s.Increment < 0 {
		return -1
	}
	_, hi := typeBounds(s)
	return hi
}

// sequenceSQL renders the full option list; re-asserting unchanged
// options in ALTER SEQUENCE is harmless and keeps the generator simple.
func sequenceSQL(verb string, s *ir.Sequence) string {
	b := sqlbuild.New().Phrase(verb).Table(s.Schema, s.Name)
	if s.DataType != "" && verb == "CREATE SEQUENCE" {
		b.Phrase("AS").Phrase(s.DataType)
	}
	b.Phrase("INCREMENT BY").Phrase(strconv.FormatInt(s.Increment, 10))
	b.Phrase("MINVALUE").Phrase(strconv.FormatInt(effectiveMin(s), 10))
	b.Phrase("MAXVALUE").Phrase(strconv.FormatInt(effectiveMax(s), 10))
	b.Phrase("START WITH").Phrase(strconv.FormatInt(s.Start, 10))
	b.Phrase("CACHE").Phrase(strconv.FormatInt(s.Cache, 10))
	if s.Cycle {
		b.Phrase("CYCLE")
	} else if verb != "CREATE SEQUENCE" {
		b.Phrase("NO CYCLE")
	}
	return strings.TrimSpace(b.Terminate())
}
