package deploy

import (
	"context"

	"github.com/stableswap-ng/pool-deployer/deployer"
	"github.com/stableswap-ng/pool-deployer/network"
	"github.com/stableswap-ng/pool-deployer/pool"
)

// DeployFunc runs one deployment against the networks of registry.
type DeployFunc func(
	ctx context.Context,
	registry *network.Registry,
	req deployer.Request,
	opts ...deployer.Option,
) (deployer.Result, error)

// RegistryLoaderFunc loads the network registry, layering manifest files over the built-in one.
type RegistryLoaderFunc func(paths []string) (*network.Registry, error)

// TableLoaderFunc loads the pool table from files, or the built-in table when there are none.
type TableLoaderFunc func(paths []string) (*pool.Table, error)

// defaultDeploy is the production implementation that creates a pool through the factory.
func defaultDeploy(
	ctx context.Context,
	registry *network.Registry,
	req deployer.Request,
	opts ...deployer.Option,
) (deployer.Result, error) {
	return deployer.New(registry, opts...).Deploy(ctx, req)
}

// defaultRegistryLoader merges the manifest files over the built-in registry.
func defaultRegistryLoader(paths []string) (*network.Registry, error) {
	return network.LoadOverDefault(paths...)
}

// defaultTableLoader loads the pool table files, or the built-in table.
func defaultTableLoader(paths []string) (*pool.Table, error) {
	if len(paths) == 0 {
		return pool.DefaultTable()
	}

	return pool.LoadTable(paths...)
}

// Deps holds the injectable dependencies of the deploy command.
// All fields are optional; nil values will use production defaults.
type Deps struct {
	// Deploy runs the deployment.
	// Default: deployer.New(registry, opts...).Deploy
	Deploy DeployFunc

	// RegistryLoader loads the network registry.
	// Default: network.LoadOverDefault
	RegistryLoader RegistryLoaderFunc

	// TableLoader loads the pool table.
	// Default: pool.LoadTable, or pool.DefaultTable without files
	TableLoader TableLoaderFunc
}

// applyDefaults fills in nil dependencies with production defaults.
func (d *Deps) applyDefaults() {
	if d.Deploy == nil {
		d.Deploy = defaultDeploy
	}
	if d.RegistryLoader == nil {
		d.RegistryLoader = defaultRegistryLoader
	}
	if d.TableLoader == nil {
		d.TableLoader = defaultTableLoader
	}
}
