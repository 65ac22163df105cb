// Package storage defines the persistence boundary for contracts, their
// pay-to-contract tweaks, invoices, blinding reveals, operation history,
// and identity/signer records, and ships a walletdb-backed implementation.
package storage

import (
	"fmt"
	"sync"

	"github.com/mycitadel/citadel-runtime/model"
)

// Driver is the capability interface the runtime depends on for durable
// storage. All mutation happens inside a single dispatcher request; a
// Driver implementation need not guard against concurrent callers, per the
// single-threaded dispatcher model.
type Driver interface {
	// AddContract persists a newly created contract. Returns an error if
	// a contract with the same ContractId already exists.
	AddContract(contract *model.Contract) error

	// Contract returns the contract for id, or an error if unknown.
	Contract(id model.ContractID) (*model.Contract, error)

	// ListContracts returns every stored contract's metadata.
	ListContracts() ([]*model.Contract, error)

	// RenameContract updates a contract's human-readable name.
	RenameContract(id model.ContractID, name string) error

	// DeleteContract removes a contract and all of its dependent data
	// (invoices, operations, tweaks, reveals).
	DeleteContract(id model.ContractID) error

	// AddTweak records a pay-to-contract tweak produced by a successful
	// RGB transfer.
	AddTweak(id model.ContractID, tweak model.TweakedOutput) error

	// AddBlindingReveal records the preimage of a blind-UTXO hash issued
	// by BlindUtxo.
	AddBlindingReveal(id model.ContractID, reveal model.OutpointReveal) error

	// AddInvoice records a newly issued invoice against a contract.
	AddInvoice(id model.ContractID, invoice model.Invoice) error

	// ListInvoices returns every invoice recorded against a contract.
	ListInvoices(id model.ContractID) ([]model.Invoice, error)

	// AddOperation appends an immutable history record.
	AddOperation(id model.ContractID, op model.Operation) error

	// ListOperations returns every operation recorded against a
	// contract, in append order.
	ListOperations(id model.ContractID) ([]model.Operation, error)

	// AddIdentity records a counterparty identity. Identities are global,
	// not scoped to any contract.
	AddIdentity(identity model.Identity) error

	// ListIdentities returns every recorded identity, in insertion order.
	ListIdentities() ([]model.Identity, error)

	// AddSigner records an external signer account.
	AddSigner(signer model.Signer) error

	// ListSigners returns every recorded signer, in insertion order.
	ListSigners() ([]model.Signer, error)

	// Close releases any resources (file handles, connections) held by
	// the driver.
	Close() error
}

// Driver registration mirrors the teacher's WalletController/WalletDriver
// pattern (lnwallet/interface.go): implementations self-register under a
// name at package init, and callers look the constructor up by name
// instead of importing a concrete type directly.

// DriverCreator opens (creating if necessary) a Driver instance rooted at
// dataDir.
type DriverCreator func(dataDir string) (Driver, error)

// RegisteredDriver pairs a driver name with its constructor.
type RegisteredDriver struct {
	Name   string
	Create DriverCreator
}

var (
	driversMtx sync.Mutex
	drivers    = make(map[string]*RegisteredDriver)
)

// RegisterDriver makes a storage driver available under name. Typically
// called from a driver package's init function.
func RegisterDriver(name string, create DriverCreator) error {
	driversMtx.Lock()
	defer driversMtx.Unlock()

	if _, ok := drivers[name]; ok {
		return fmt.Errorf("storage: driver %q already registered", name)
	}
	drivers[name] = &RegisteredDriver{Name: name, Create: create}
	return nil
}

// RegisteredDrivers returns every driver registered so far.
func RegisteredDrivers() []*RegisteredDriver {
	driversMtx.Lock()
	defer driversMtx.Unlock()

	out := make([]*RegisteredDriver, 0, len(drivers))
	for _, d := range drivers {
		out = append(out, d)
	}
	return out
}

// Open looks up a registered driver by name and opens it against dataDir.
func Open(name, dataDir string) (Driver, error) {
	driversMtx.Lock()
	d, ok := drivers[name]
	driversMtx.Unlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown driver %q", name)
	}
	return d.Create(dataDir)
}

// ErrContractNotFound is returned by Contract/RenameContract/DeleteContract
// when the requested ContractId is unknown.
var ErrContractNotFound = fmt.Errorf("storage: contract not found")

// ErrContractExists is returned by AddContract when the ContractId already
// has a stored contract.
var ErrContractExists = fmt.Errorf("storage: contract already exists")
