// Package di contains dependency injection tokens for the venue context.
package di

import (
	"github.com/fd1az/crossarb/business/venue/app"
	"github.com/fd1az/crossarb/business/venue/infra/paper"
	"github.com/fd1az/crossarb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Registry = di.NewToken[*app.Registry]("venue.Registry")
)

// Private dependency tokens - internal to venue module
var (
	PaperNetwork = di.NewToken[*paper.Network]("venue:paperNetwork")
)

// Helper functions for type-safe access
func GetRegistry(c di.ServiceRegistry) *app.Registry {
	return di.GetToken(c, Registry)
}

func GetPaperNetwork(c di.ServiceRegistry) *paper.Network {
	return di.GetToken(c, PaperNetwork)
}
