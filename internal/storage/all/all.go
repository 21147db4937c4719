// Package all registers every warehouse backend and the SQL Server driver.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "analyticsetl/internal/storage/mssql"
	_ "analyticsetl/internal/storage/postgres"
	_ "analyticsetl/internal/storage/sqlite"
)
