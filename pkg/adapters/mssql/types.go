package mssql

import "github.com/ruslano69/dbcon/pkg/record"

// Type mapping for MS SQL Server 2012+
//
// Tag        SQL Server Type   Notes
// ────────────────────────────────────────────────────
// integer    BIGINT
// boolean    BIT              0/1
// text       NVARCHAR(MAX)    Unicode (preferred)
// decimal    FLOAT            DECIMAL without scale would drop the fraction
// datetime   DATETIME2        High precision (preferred)

// DefaultTypes returns the SQL Server column type per value tag.
func DefaultTypes() map[record.Tag]string {
	return map[record.Tag]string{
		record.TagInteger:  "BIGINT",
		record.TagBoolean:  "BIT",
		record.TagText:     "NVARCHAR(MAX)",
		record.TagDecimal:  "FLOAT",
		record.TagDatetime: "DATETIME2",
	}
}
