// Package config loads typed configuration structs from environment
// variables and optional .env files.
//
// Every package that needs settings owns a struct with `env` tags (see
// pg.Config, redis.Config, stripe.Config). The daemon loads them with Load,
// which parses each type once and caches it.
package config
