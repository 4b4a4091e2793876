package odim

import (
	"fmt"
	"reflect"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// HDF5 scalar attributes frequently surface as one-element slices; these
// helpers accept both scalars and singletons, and coerce numeric widths.

func attrString(am api.AttributeMap, key string) (string, error) {
	val, ok := am.Get(key)
	if !ok {
		return "", fmt.Errorf("odim: missing attribute %q", key)
	}
	switch v := val.(type) {
	case string:
		return v, nil
	case []string:
		if len(v) == 1 {
			return v[0], nil
		}
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("odim: attribute %q is %T, want string", key, val)
}

func attrFloat(am api.AttributeMap, key string) (float64, error) {
	val, ok := am.Get(key)
	if !ok {
		return 0, fmt.Errorf("odim: missing attribute %q", key)
	}
	f, err := toFloat(val)
	if err != nil {
		return 0, fmt.Errorf("odim: attribute %q: %w", key, err)
	}
	return f, nil
}

func attrInt(am api.AttributeMap, key string) (int, error) {
	f, err := attrFloat(am, key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func toFloat(val interface{}) (float64, error) {
	rv := reflect.ValueOf(val)
	if rv.Kind() == reflect.Slice {
		if rv.Len() != 1 {
			return 0, fmt.Errorf("value is a %d-element slice, want scalar", rv.Len())
		}
		rv = rv.Index(0)
	}
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return 0, fmt.Errorf("value is %T, want numeric", val)
}

// flatten converts an arbitrarily nested numeric slice (as returned by the
// HDF5 reader for N-dimensional datasets) into a flat float64 slice plus
// its shape.
func flatten(val interface{}) ([]float64, []int, error) {
	var shape []int
	rv := reflect.ValueOf(val)
	for v := rv; v.Kind() == reflect.Slice; v = v.Index(0) {
		shape = append(shape, v.Len())
		if v.Len() == 0 {
			return nil, nil, fmt.Errorf("odim: empty dimension in dataset")
		}
	}
	if len(shape) == 0 {
		return nil, nil, fmt.Errorf("odim: dataset is %T, want slice", val)
	}
	n := 1
	for _, s := range shape {
		n *= s
	}
	out := make([]float64, 0, n)
	var walk func(v reflect.Value) error
	walk = func(v reflect.Value) error {
		if v.Kind() != reflect.Slice {
			f, err := toFloat(v.Interface())
			if err != nil {
				return err
			}
			out = append(out, f)
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := walk(v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(rv); err != nil {
		return nil, nil, err
	}
	if len(out) != n {
		return nil, nil, fmt.Errorf("odim: ragged dataset: %d values for shape %v", len(out), shape)
	}
	return out, shape, nil
}
