// Package di contains dependency injection tokens for the funds context.
package di

import (
	"github.com/fd1az/crossarb/business/funds/app"
	"github.com/fd1az/crossarb/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Manager = di.NewToken[*app.Manager]("funds.Manager")
)

// Helper functions for type-safe access
func GetManager(c di.ServiceRegistry) *app.Manager {
	return di.GetToken(c, Manager)
}
