// Package odbc регистрирует диалект "odbc" поверх github.com/alexbrainman/odbc.
//
// На Linux драйвер требует cgo и unixODBC, поэтому пакет собирается только
// при включенном cgo (или под Windows).
package odbc
