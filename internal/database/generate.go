package database

// The schema file is derived from the migrations, and the sqlc package from
// the schema plus sqlc/queries.sql. After adding a migration or changing a
// query run:
//
//	go generate ./internal/database

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go"
//go:generate sh -c "cd ../.. && sqlc generate -f internal/database/sqlc/sqlc.yaml"
