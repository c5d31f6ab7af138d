package model

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Custom column serializers. Both slices are stored comma-joined which is
// safe here: hashes are hex and indices are decimal, neither can contain
// a comma.

type StringSlice []string

// Value implements the driver.Valuer interface.
// This defines how the slice is stored in the database.
func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "", nil
	}

	for _, v := range s {
		if strings.Contains(v, ",") {
			return "", fmt.Errorf("unsafe string, %s", s)
		}
	}

	return strings.Join(s, ","), nil
}

// Scan implements the sql.Scanner interface.
// This defines how the database value is converted back into go.
func (s *StringSlice) Scan(value interface{}) error {
	str, err := scanString(value, "StringSlice")
	if err != nil {
		return err
	}

	if str == "" {
		*s = []string{}
	} else {
		*s = strings.Split(str, ",")
	}

	return nil
}

type IntSlice []int

func (s IntSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "", nil
	}

	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.Itoa(v)
	}

	return strings.Join(parts, ","), nil
}

func (s *IntSlice) Scan(value interface{}) error {
	str, err := scanString(value, "IntSlice")
	if err != nil {
		return err
	}

	if str == "" {
		*s = []int{}
		return nil
	}

	parts := strings.Split(str, ",")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("failed to scan IntSlice, %w", err)
		}
		out[i] = n
	}

	*s = out
	return nil
}

// Contains reports whether idx is already part of the set
func (s IntSlice) Contains(idx int) bool {
	for _, v := range s {
		if v == idx {
			return true
		}
	}
	return false
}

func scanString(value interface{}, kind string) (string, error) {
	if value == nil {
		return "", nil
	}

	str, ok := value.(string)
	if !ok {
		b, ok := value.([]byte)
		if !ok {
			return "", fmt.Errorf("failed to scan %s, %v", kind, value)
		}

		str = string(b)
	}

	return str, nil
}
