// Package repository provides a generic repository built on Bun for CRUD,
// filtering and pagination over the session carried by a context.
package repository
