package id

import "github.com/google/uuid"

// Generator issues random UUIDs, optionally behind a fixed prefix such as "ord_".
type Generator struct {
	Prefix string
}

func New(prefix string) Generator { return Generator{Prefix: prefix} }

func (g Generator) NewID() string {
	return g.Prefix + uuid.NewString()
}
