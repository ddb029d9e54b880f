package deployer

import (
	"errors"
	"fmt"

	"github.com/stableswap-ng/pool-deployer/chain/evm/provider"
	"github.com/stableswap-ng/pool-deployer/network"
	"github.com/stableswap-ng/pool-deployer/pool"
	"github.com/stableswap-ng/pool-deployer/verify"
)

// Error categories. The leaf packages own the sentinels, they are re-exported here so callers
// only need this package to classify a failed deployment.
var (
	ErrUnknownNetwork      = network.ErrUnknownNetwork
	ErrFactoryUnavailable  = network.ErrFactoryUnavailable
	ErrInvalidParameters   = pool.ErrInvalidParameters
	ErrMissingCredentials  = provider.ErrMissingCredentials
	ErrEndpointUnreachable = provider.ErrEndpointUnreachable
	ErrRateSourceFailure   = verify.ErrRateSourceFailure
	ErrParameterMismatch   = verify.ErrParameterMismatch

	// ErrUnsupportedVariant is returned for pool variants the deployer has no creation call for.
	ErrUnsupportedVariant = errors.New("unsupported pool variant")
	// ErrDeployment is returned when the creation call reverts, cannot be submitted or leaves no
	// pool behind.
	ErrDeployment = errors.New("deployment error")
	// ErrVerification is returned when the deployed pool cannot be read back.
	ErrVerification = errors.New("verification error")
)

// categories is ordered from the most to the least specific.
var categories = []struct {
	name string
	err  error
}{
	{"UnknownNetwork", ErrUnknownNetwork},
	{"FactoryUnavailable", ErrFactoryUnavailable},
	{"InvalidParameters", ErrInvalidParameters},
	{"UnsupportedVariant", ErrUnsupportedVariant},
	{"MissingCredentials", ErrMissingCredentials},
	{"EndpointUnreachable", ErrEndpointUnreachable},
	{"DeploymentError", ErrDeployment},
	{"RateSourceFailure", ErrRateSourceFailure},
	{"ParameterMismatch", ErrParameterMismatch},
	{"VerificationError", ErrVerification},
}

// Category returns the name of the error category err belongs to, "" for a nil error and
// "Unknown" for an error outside the taxonomy.
func Category(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range categories {
		if errors.Is(err, c.err) {
			return c.name
		}
	}

	return "Unknown"
}

// Step names a stage of the deployment pipeline.
type Step string

const (
	StepValidate     Step = "validate-parameters"
	StepResolve      Step = "resolve-factory"
	StepBind         Step = "bind-entry-point"
	StepConfigure    Step = "configure-environment"
	StepSimulate     Step = "simulate-creation"
	StepSubmit       Step = "submit-creation"
	StepConfirm      Step = "confirm-pool"
	StepVerification Step = "verify-pool"
)

// Error is the error of a failed deployment. It names the network, the variant and the step
// that failed.
type Error struct {
	Network string
	Variant pool.Variant
	Step    Step
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("deploy %s pool on %s: %s: %v", e.Variant, e.Network, e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
