// Package bitfield packs and unpacks tagged struct fields into a single
// integer. Adapted from mazboot's bitfield helper (itself modeled on
// golang.org/x/text/internal/gen/bitfield) so the kernel can describe a
// page's flags, a slab arena's header, or a PTE's attribute bits as a
// plain Go struct instead of hand-rolled shift/mask constants scattered
// through the allocator and MMU code.
package bitfield

import (
	"fmt"
	"reflect"
)

// Config determines settings for packing and unpacking.
type Config struct {
	// NumBits fixes the maximum allowed bits for the integer representation.
	NumBits uint
}

// Pack packs the annotated bit ranges of struct x into an integer, in
// field declaration order starting at bit 0. Only fields tagged
// `bitfield:",n"` participate; n is the field's width in bits.
func Pack(x interface{}, c *Config) (packed uint64, err error) {
	if c == nil {
		c = &Config{NumBits: 64}
	}

	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0, fmt.Errorf("bitfield.Pack: expected struct, got %v", v.Kind())
	}

	t := v.Type()
	var bitOffset uint
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("bitfield")
		if tag == "" {
			continue
		}

		var bits uint
		if _, err := fmt.Sscanf(tag, ",%d", &bits); err != nil {
			return 0, fmt.Errorf("bitfield.Pack: invalid tag %q on field %s", tag, field.Name)
		}
		if bits == 0 {
			continue
		}

		fieldValue := v.Field(i)
		var fieldBits uint64
		switch fieldValue.Kind() {
		case reflect.Bool:
			if fieldValue.Bool() {
				fieldBits = 1
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fieldBits = fieldValue.Uint()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			val := fieldValue.Int()
			if val < 0 {
				return 0, fmt.Errorf("bitfield.Pack: negative value %d for field %s", val, field.Name)
			}
			fieldBits = uint64(val)
		default:
			return 0, fmt.Errorf("bitfield.Pack: unsupported kind %v for field %s", fieldValue.Kind(), field.Name)
		}

		maxValue := uint64((uint64(1) << bits) - 1)
		if fieldBits > maxValue {
			return 0, fmt.Errorf("bitfield.Pack: value %d exceeds %d bits for field %s", fieldBits, bits, field.Name)
		}

		packed |= fieldBits << bitOffset
		bitOffset += bits
	}

	if c.NumBits > 0 && bitOffset > c.NumBits {
		return 0, fmt.Errorf("bitfield.Pack: total bits %d exceeds NumBits %d", bitOffset, c.NumBits)
	}
	return packed, nil
}

// Unpack reverses Pack, writing the bit ranges of packed back into the
// tagged fields of the struct pointed to by x.
func Unpack(packed uint64, x interface{}, c *Config) error {
	v := reflect.ValueOf(x)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bitfield.Unpack: expected pointer to struct")
	}
	v = v.Elem()
	t := v.Type()

	var bitOffset uint
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("bitfield")
		if tag == "" {
			continue
		}

		var bits uint
		if _, err := fmt.Sscanf(tag, ",%d", &bits); err != nil {
			return fmt.Errorf("bitfield.Unpack: invalid tag %q on field %s", tag, field.Name)
		}
		if bits == 0 {
			continue
		}

		mask := uint64((uint64(1) << bits) - 1)
		fieldBits := (packed >> bitOffset) & mask
		bitOffset += bits

		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.Bool:
			fv.SetBool(fieldBits != 0)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fv.SetUint(fieldBits)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fv.SetInt(int64(fieldBits))
		default:
			return fmt.Errorf("bitfield.Unpack: unsupported kind %v for field %s", fv.Kind(), field.Name)
		}
	}
	return nil
}
