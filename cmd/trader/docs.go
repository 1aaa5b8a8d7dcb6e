package main

//go:generate swag init -g cmd/trader/main.go -o docs

// @title           Trading Safety Core API
// @version         0.1.0
// @description     Idempotent order execution, position reconciliation, and resilient exchange connectivity.
// @host            localhost:8002
// @BasePath        /
// @schemes         http
