// Package db 内嵌数据库迁移脚本
package db

import "embed"

// Migrations 以 <版本>_<名称>_up.sql / _down.sql 命名
//
//go:embed migrations/*.sql
var Migrations embed.FS
