package schema

import (
	"fmt"
	"strings"
)

// Field captures one column of a persisted output table.
type Field struct {
	Name     string
	Type     string
	Nullable bool
}

// TableContract is the logical schema contract a sink writes against.
type TableContract struct {
	Name   string
	Fields []Field
}

// Merged returns the stable contract for the weather-joined city table.
//
// Column order here is the wire order: sinks insert values positionally
// against Columns().
func Merged(name string) TableContract {
	return TableContract{
		Name: name,
		Fields: []Field{
			{Name: "city", Type: "VARCHAR", Nullable: false},
			{Name: "country", Type: "VARCHAR", Nullable: true},
			{Name: "population", Type: "BIGINT", Nullable: true},
			{Name: "temperature", Type: "DOUBLE", Nullable: true},
			{Name: "weather_description", Type: "VARCHAR", Nullable: true},
			{Name: "humidity", Type: "DOUBLE", Nullable: true},
			{Name: "pressure", Type: "DOUBLE", Nullable: true},
			{Name: "wind_speed", Type: "DOUBLE", Nullable: true},
			{Name: "clouds", Type: "BIGINT", Nullable: true},
		},
	}
}

// Columns returns the field names in wire order.
func (c TableContract) Columns() []string {
	cols := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// CreateDDL renders a CREATE TABLE statement for the given table name.
func (c TableContract) CreateDDL(tableName string) string {
	defs := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		def := f.Name + " " + f.Type
		if !f.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", tableName, strings.Join(defs, ", "))
}

// Placeholders returns "(?, ?, ...)" matching the column count.
func (c TableContract) Placeholders() string {
	marks := make([]string, len(c.Fields))
	for i := range marks {
		marks[i] = "?"
	}
	return "(" + strings.Join(marks, ", ") + ")"
}
