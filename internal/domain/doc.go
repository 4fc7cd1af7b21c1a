// Package domain defines the core job entities and errors.
package domain
