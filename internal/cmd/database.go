package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

func setupDatabase(config *Config) (*sql.DB, error) {
	database, err := sql.Open("postgres", config.databaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := database.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return database, nil
}
