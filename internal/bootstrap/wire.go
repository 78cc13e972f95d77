//go:build wireinject
// +build wireinject

//go:generate wire

package bootstrap

import (
	"context"

	"github.com/google/wire"
)

// InitializeApp builds the *App from ProviderSet. The returned cleanup closes
// stores and connections in reverse construction order.
func InitializeApp(ctx context.Context) (*App, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}
