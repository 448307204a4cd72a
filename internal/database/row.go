package database

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindBool
	KindTime
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is one column value: null, text, number, boolean, timestamp, or an
// embedded row attached by the embed resolver.
type Value struct {
	kind Kind
	text string
	num  decimal.Decimal
	b    bool
	t    time.Time
	obj  *Row
}

func Null() Value { return Value{} }
func Text(s string) Value { return Value{kind: KindText, text: s} }
func Number(d decimal.Decimal) Value { return Value{kind: KindNumber, num: d} }
func Int(i int64) Value { return Number(decimal.NewFromInt(i)) }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Object wraps an embedded row. A nil row is Null.
func Object(r *Row) Value {
	if r == nil {
		return Null()
	}
	return Value{kind: KindObject, obj: r}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// String renders the value as text. Null renders as "".
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return v.num.String()
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindTime:
		return v.t.Format(time.RFC3339Nano)
	case KindObject:
		b, _ := v.obj.MarshalJSON()
		return string(b)
	default:
		return ""
	}
}

func (v Value) Decimal() decimal.Decimal { return v.num }
func (v Value) Bool() bool { return v.b }
func (v Value) Time() time.Time { return v.t }
func (v Value) Object() *Row { return v.obj }

// Key identifies the value for lookups. Values of different kinds never
// share a key, so the text "1" and the number 1 stay distinct.
func (v Value) Key() string {
	switch v.kind {
	case KindNumber:
		return "n:" + v.num.String()
	case KindTime:
		return "t:" + v.t.UTC().Format(time.RFC3339Nano)
	default:
		return v.kind.String() + ":" + v.String()
	}
}

// Any returns a Go value suitable as a statement argument. Integral numbers
// become int64; other numbers are sent as text and cast by the server.
func (v Value) Any() any {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		if v.num.IsInteger() && v.num.Cmp(decimal.NewFromInt(math.MaxInt64)) <= 0 &&
			v.num.Cmp(decimal.NewFromInt(math.MinInt64)) >= 0 {
			return v.num.IntPart()
		}
		return v.num.String()
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	case KindObject:
		return v.obj.Map()
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindTime:
		return json.Marshal(v.t.Format(time.RFC3339Nano))
	case KindObject:
		return v.obj.MarshalJSON()
	default:
		return []byte("null"), nil
	}
}

// ValueOf converts a Go value, typically one returned by pgx.Rows.Values,
// into a Value.
func ValueOf(src any) Value {
	switch v := src.(type) {
	case nil:
		return Null()
	case Value:
		return v
	case *Row:
		return Object(v)
	case string:
		return Text(v)
	case []byte:
		return Text(string(v))
	case bool:
		return Bool(v)
	case int:
		return Int(int64(v))
	case int8:
		return Int(int64(v))
	case int16:
		return Int(int64(v))
	case int32:
		return Int(int64(v))
	case int64:
		return Int(v)
	case uint8:
		return Int(int64(v))
	case uint16:
		return Int(int64(v))
	case uint32:
		return Int(int64(v))
	case uint64:
		return Number(decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0))
	case float32:
		return Number(decimal.NewFromFloat32(v))
	case float64:
		return Number(decimal.NewFromFloat(v))
	case decimal.Decimal:
		return Number(v)
	case time.Time:
		return Time(v)
	case [16]byte:
		return Text(uuid.UUID(v).String())
	case uuid.UUID:
		return Text(v.String())
	case pgtype.Numeric:
		return numericValue(v)
	case pgtype.Time:
		if !v.Valid {
			return Null()
		}
		clock := time.Time{}.Add(time.Duration(v.Microseconds) * time.Microsecond)
		return Text(clock.Format("15:04:05.999999"))
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return Text(fmt.Sprint(v))
		}
		return Text(string(b))
	case fmt.Stringer:
		return Text(v.String())
	default:
		return Text(fmt.Sprint(v))
	}
}

func numericValue(n pgtype.Numeric) Value {
	switch {
	case !n.Valid:
		return Null()
	case n.NaN:
		return Text("NaN")
	case n.InfinityModifier == pgtype.Infinity:
		return Text("Infinity")
	case n.InfinityModifier == pgtype.NegativeInfinity:
		return Text("-Infinity")
	default:
		return Number(decimal.NewFromBigInt(n.Int, n.Exp))
	}
}

// Row is an ordered mapping from column name to Value. Column order follows
// the statement's result columns, then any columns set afterwards.
type Row struct {
	cols []string
	vals map[string]Value
}

func NewRow() *Row {
	return &Row{vals: map[string]Value{}}
}

// RowOf builds a row from alternating column/value pairs. Values go through
// ValueOf. Mostly useful in tests.
func RowOf(pairs ...any) *Row {
	r := NewRow()
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(fmt.Sprint(pairs[i]), ValueOf(pairs[i+1]))
	}
	return r
}

// Get returns the value of col and whether the column exists.
func (r *Row) Get(col string) (Value, bool) {
	v, ok := r.vals[col]
	return v, ok
}

// Value returns the value of col, or Null when the column is absent.
func (r *Row) Value(col string) Value {
	return r.vals[col]
}

func (r *Row) Has(col string) bool {
	_, ok := r.vals[col]
	return ok
}

// Set assigns col, appending it to the column order if it is new.
func (r *Row) Set(col string, v Value) {
	if _, ok := r.vals[col]; !ok {
		r.cols = append(r.cols, col)
	}
	r.vals[col] = v
}

func (r *Row) Delete(col string) {
	if _, ok := r.vals[col]; !ok {
		return
	}
	delete(r.vals, col)
	for i, c := range r.cols {
		if c == col {
			r.cols = append(r.cols[:i:i], r.cols[i+1:]...)
			break
		}
	}
}

func (r *Row) Columns() []string {
	out := make([]string, len(r.cols))
	copy(out, r.cols)
	return out
}

func (r *Row) Len() int { return len(r.cols) }

// Map converts the row into plain Go values, recursing into embedded rows.
func (r *Row) Map() map[string]any {
	if r == nil {
		return nil
	}
	out := make(map[string]any, len(r.cols))
	for _, c := range r.cols {
		out[c] = r.vals[c].Any()
	}
	return out
}

// MarshalJSON writes the columns in order.
func (r *Row) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := r.vals[c].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
