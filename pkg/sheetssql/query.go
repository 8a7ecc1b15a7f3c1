package sheetssql

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// GetTableAs retrieves all rows from a table and maps them to structs of type T
// Skips the first two rows (headers and types). Headers are matched without
// regard to case or surrounding space.
func GetTableAs[T any](db *DB, tableName string) ([]T, error) {
	values, err := db.client.GetValues(db.spreadsheetID, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get table %s: %w", tableName, err)
	}

	if len(values) < 3 {
		// Need at least headers, types, and one data row
		return []T{}, nil
	}

	headers := values[0]
	dataRows := values[2:]

	var model T
	t := reflect.TypeOf(model)

	// Build mapping of column index to struct field
	fieldMap := make(map[string]reflect.StructField)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		columnName := field.Tag.Get("ssql_header")
		if columnName != "" {
			fieldMap[columnName] = field
		}
	}
	columns := make(map[int]reflect.StructField)
	for i, header := range headers {
		if field, ok := fieldMap[normalizeHeader(header)]; ok {
			columns[i] = field
		}
	}

	results := make([]T, 0, len(dataRows))
	for rowIdx, row := range dataRows {
		if isBlankRow(row) {
			continue
		}
		result := reflect.New(t).Elem()

		for colIdx, field := range columns {
			if colIdx >= len(row) || row[colIdx] == nil {
				continue
			}

			if err := setFieldValue(result.FieldByName(field.Name), row[colIdx]); err != nil {
				return nil, fmt.Errorf("row %d, column %s: %w", rowIdx+3, field.Tag.Get("ssql_header"), err)
			}
		}

		results = append(results, result.Interface().(T))
	}

	return results, nil
}

func normalizeHeader(v interface{}) string {
	return strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
}

func isBlankRow(row []interface{}) bool {
	for _, cell := range row {
		if cell != nil && strings.TrimSpace(fmt.Sprint(cell)) != "" {
			return false
		}
	}
	return true
}

// setFieldValue converts a sheet cell value to the appropriate Go type and sets it on the field
func setFieldValue(field reflect.Value, cellValue interface{}) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	// Cells come back as strings unless the sheet was read unformatted
	cellStr, ok := cellValue.(string)
	if !ok {
		cellStr = fmt.Sprint(cellValue)
	}
	cellStr = strings.TrimSpace(cellStr)

	// Pointer fields stay nil for an empty cell
	if field.Kind() == reflect.Ptr {
		if cellStr == "" {
			return nil
		}
		elem := reflect.New(field.Type().Elem())
		if err := setFieldValue(elem.Elem(), cellStr); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(cellStr)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if cellStr == "" {
			field.SetInt(0)
		} else {
			intVal, err := strconv.ParseInt(cellStr, 10, 64)
			if err != nil {
				return fmt.Errorf("failed to parse int: %w", err)
			}
			field.SetInt(intVal)
		}

	case reflect.Float32, reflect.Float64:
		if cellStr == "" {
			field.SetFloat(0)
		} else {
			floatVal, err := strconv.ParseFloat(cellStr, 64)
			if err != nil {
				return fmt.Errorf("failed to parse float: %w", err)
			}
			field.SetFloat(floatVal)
		}

	case reflect.Bool:
		boolVal, err := parseBool(cellStr)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// parseBool accepts the spellings people type into a sheet as well as
// strconv's
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "n", "no":
		return false, nil
	case "y", "yes":
		return true, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("failed to parse bool: %w", err)
	}
	return b, nil
}

// rowFrom builds a sheet row from a struct's writable columns
func rowFrom(v reflect.Value) []interface{} {
	t := v.Type()
	row := make([]interface{}, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Tag.Get("ssql_header") == "" || field.Tag.Get("ssql_type") == TypeReadOnly {
			continue
		}
		value := v.Field(i)
		if value.Kind() == reflect.Ptr {
			if value.IsNil() {
				row = append(row, "")
				continue
			}
			value = value.Elem()
		}
		row = append(row, value.Interface())
	}
	return row
}

// InsertModel appends a struct as a row to its corresponding table
func InsertModel[T any](db *DB, model T) error {
	return db.InsertRow(TableName(reflect.TypeOf(model)), rowFrom(reflect.ValueOf(model)))
}

// InsertModels appends multiple structs as rows to their corresponding table
func InsertModels[T any](db *DB, models []T) error {
	if len(models) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(models))
	for _, model := range models {
		rows = append(rows, rowFrom(reflect.ValueOf(model)))
	}

	return db.InsertRows(TableName(reflect.TypeOf(models[0])), rows)
}
