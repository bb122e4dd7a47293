package cache

import (
	"bytes"
	"crypto/sha256"
	stderrors "errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"

	apperrors "github.com/socialchef/ttlcache/internal/errors"
)

// ErrUnsupportedArgument is wrapped by key derivation failures. Funcs,
// channels, unsafe pointers and self-referencing values have no stable
// value encoding.
var ErrUnsupportedArgument = stderrors.New("argument cannot be encoded as a cache key")

var timeType = reflect.TypeOf(time.Time{})

// DeriveKey builds a memoization key from a function name and its arguments.
//
// Arguments are encoded by value: two pointers to equal values produce the
// same key. Every value is tagged with its type and every variable-length
// part is length-prefixed, so distinct argument lists never share an
// encoding. The key is "<name>:<hex sha256 of the encoding>".
func DeriveKey(name string, args ...any) (string, error) {
	enc := keyEncoder{
		seen: make(map[visit]struct{}),
	}
	enc.writeLen(len(args))
	for i, arg := range args {
		if err := enc.encode(reflect.ValueOf(arg)); err != nil {
			return "", apperrors.NewKeyDerivationError(
				fmt.Sprintf("cannot derive cache key for %s: argument %d", name, i),
				"KEY_UNSUPPORTED_ARGUMENT",
				err,
			)
		}
	}

	sum := sha256.Sum256(enc.buf.Bytes())
	return fmt.Sprintf("%s:%x", name, sum), nil
}

// visit identifies a reference on the current encoding path.
type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

type keyEncoder struct {
	buf  bytes.Buffer
	seen map[visit]struct{}
}

func (e *keyEncoder) writeLen(n int) {
	e.buf.WriteString(strconv.Itoa(n))
	e.buf.WriteByte(':')
}

func (e *keyEncoder) writeString(s string) {
	e.writeLen(len(s))
	e.buf.WriteString(s)
}

func (e *keyEncoder) writeType(t reflect.Type) {
	e.writeString(t.PkgPath() + "|" + t.String())
}

func (e *keyEncoder) encode(v reflect.Value) error {
	if !v.IsValid() {
		e.buf.WriteByte('N')
		return nil
	}

	t := v.Type()
	e.buf.WriteByte('T')
	e.writeType(t)

	if t == timeType {
		e.encodeTime(v)
		return nil
	}

	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			e.buf.WriteByte('1')
		} else {
			e.buf.WriteByte('0')
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.writeString(strconv.FormatInt(v.Int(), 10))

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.writeString(strconv.FormatUint(v.Uint(), 10))

	case reflect.Float32, reflect.Float64:
		e.writeFloat(v.Float())

	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		e.writeFloat(real(c))
		e.writeFloat(imag(c))

	case reflect.String:
		e.writeString(v.String())

	case reflect.Array:
		e.writeLen(v.Len())
		for i := 0; i < v.Len(); i++ {
			if err := e.encode(v.Index(i)); err != nil {
				return err
			}
		}

	case reflect.Slice:
		if v.IsNil() {
			e.buf.WriteByte('N')
			return nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			e.writeLen(v.Len())
			e.buf.Write(v.Bytes())
			return nil
		}
		return e.enter(v, v.Len(), func() error {
			e.writeLen(v.Len())
			for i := 0; i < v.Len(); i++ {
				if err := e.encode(v.Index(i)); err != nil {
					return err
				}
			}
			return nil
		})

	case reflect.Map:
		if v.IsNil() {
			e.buf.WriteByte('N')
			return nil
		}
		return e.enter(v, 0, func() error { return e.encodeMap(v) })

	case reflect.Struct:
		e.writeLen(v.NumField())
		for i := 0; i < v.NumField(); i++ {
			e.writeString(t.Field(i).Name)
			if err := e.encode(v.Field(i)); err != nil {
				return err
			}
		}

	case reflect.Pointer:
		if v.IsNil() {
			e.buf.WriteByte('N')
			return nil
		}
		return e.enter(v, 0, func() error { return e.encode(v.Elem()) })

	case reflect.Interface:
		if v.IsNil() {
			e.buf.WriteByte('N')
			return nil
		}
		return e.encode(v.Elem())

	default:
		return fmt.Errorf("%w: kind %s (%s)", ErrUnsupportedArgument, v.Kind(), t)
	}
	return nil
}

// enter guards against reference cycles on the current path.
func (e *keyEncoder) enter(v reflect.Value, n int, fn func() error) error {
	id := visit{ptr: v.Pointer(), typ: v.Type(), len: n}
	if _, ok := e.seen[id]; ok {
		return fmt.Errorf("%w: cyclic value of type %s", ErrUnsupportedArgument, v.Type())
	}
	e.seen[id] = struct{}{}
	defer delete(e.seen, id)
	return fn()
}

// encodeMap writes entries sorted by their encoded key.
func (e *keyEncoder) encodeMap(v reflect.Value) error {
	type pair struct{ k, v []byte }
	pairs := make([]pair, 0, v.Len())

	iter := v.MapRange()
	for iter.Next() {
		sub := keyEncoder{seen: e.seen}
		if err := sub.encode(iter.Key()); err != nil {
			return err
		}
		k := append([]byte(nil), sub.buf.Bytes()...)

		sub.buf.Reset()
		if err := sub.encode(iter.Value()); err != nil {
			return err
		}
		pairs = append(pairs, pair{k: k, v: append([]byte(nil), sub.buf.Bytes()...)})
	}

	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].k, pairs[j].k) < 0 })

	e.writeLen(len(pairs))
	for _, p := range pairs {
		e.writeLen(len(p.k))
		e.buf.Write(p.k)
		e.writeLen(len(p.v))
		e.buf.Write(p.v)
	}
	return nil
}

// encodeTime writes the instant and zone name. The Location value itself
// carries lookup caches that change over time, so it is never walked.
func (e *keyEncoder) encodeTime(v reflect.Value) {
	if v.CanInterface() {
		ts := v.Interface().(time.Time)
		e.writeString(ts.Format(time.RFC3339Nano))
		e.writeString(ts.Location().String())
		return
	}

	// unexported field: decode wall and ext into seconds and nanoseconds so
	// a monotonic clock reading does not change the key
	sec, nsec := timeInstant(v.Field(0).Uint(), v.Field(1).Int())
	e.writeString(strconv.FormatInt(sec, 10))
	e.writeString(strconv.FormatUint(nsec, 10))
	if loc := v.Field(2); !loc.IsNil() {
		e.writeString(loc.Elem().FieldByName("name").String())
	} else {
		e.writeString("UTC")
	}
}

// Layout of time.Time's wall and ext fields.
const (
	wallHasMonotonic = 1 << 63
	wallNsecShift    = 30
	wallNsecMask     = 1<<wallNsecShift - 1
	wallToInternal   = (1884*365 + 1884/4 - 1884/100 + 1884/400) * 24 * 60 * 60
)

// timeInstant returns seconds since year 1 and the nanosecond part.
func timeInstant(wall uint64, ext int64) (int64, uint64) {
	nsec := wall & wallNsecMask
	if wall&wallHasMonotonic != 0 {
		return wallToInternal + int64(wall<<1>>(wallNsecShift+1)), nsec
	}
	return ext, nsec
}

func (e *keyEncoder) writeFloat(f float64) {
	if math.IsNaN(f) {
		e.writeString("NaN")
		return
	}
	if f == 0 {
		f = 0 // -0 == 0
	}
	e.writeString(strconv.FormatFloat(f, 'g', -1, 64))
}
