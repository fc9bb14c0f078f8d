package schema

import (
	"regexp"
	"strings"
)

// typeAliases maps engine-specific type spellings onto one canonical form.
// Parametrized types keep their parameters: varchar(255) stays varchar(255).
var typeAliases = map[string]string{
	"integer":                     "int",
	"int4":                        "int",
	"mediumint":                   "int",
	"int8":                        "bigint",
	"int2":                        "smallint",
	"tinyint":                     "smallint",
	"serial":                      "int",
	"bigserial":                   "bigint",
	"character varying":           "varchar",
	"character":                   "char",
	"bool":                        "boolean",
	"tinyint(1)":                  "boolean",
	"float4":                      "real",
	"float":                       "real",
	"float8":                      "double precision",
	"double":                      "double precision",
	"decimal":                     "numeric",
	"timestamp without time zone": "timestamp",
	"timestamp with time zone":    "timestamptz",
	"datetime":                    "timestamp",
	"time without time zone":      "time",
	"clob":                        "text",
	"blob":                        "bytea",
	"varbinary":                   "bytea",
	"bytes":                       "bytea",
}

var typeParams = regexp.MustCompile(`^([a-z ]+?)\s*\((\s*\d+\s*(?:,\s*\d+\s*)?)\)$`)

// CanonicalType reduces a reported column type to its canonical logical
// form so that structurally equivalent schemas compare as equal across
// engines and engine versions. Unknown types pass through lowercased.
func CanonicalType(t string) string {
	v := strings.ToLower(strings.TrimSpace(t))
	v = strings.Join(strings.Fields(v), " ")

	if mapped, ok := typeAliases[v]; ok {
		return mapped
	}

	if m := typeParams.FindStringSubmatch(v); m != nil {
		base := strings.TrimSpace(m[1])
		params := strings.ReplaceAll(m[2], " ", "")
		if mapped, ok := typeAliases[base]; ok {
			base = mapped
		}
		return base + "(" + params + ")"
	}

	return v
}
