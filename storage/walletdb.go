package storage

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb" // registers the "bdb" backend
	"github.com/mycitadel/citadel-runtime/model"
)

const dbDriverName = "bdb"
const dbFileName = "citadel-storage.db"

// dbOpenTimeout bounds how long opening the backing bolt file may block on
// another process holding its lock.
const dbOpenTimeout = 60 * time.Second

var (
	contractsBucketKey  = []byte("contracts")
	operationsBucketKey = []byte("operations")
	identitiesBucketKey = []byte("identities")
	signersBucketKey    = []byte("signers")
)

// WalletDBDriver is the default Driver implementation, backed by
// btcsuite/btcwallet/walletdb (a bbolt-style embedded key/value store),
// matching the teacher's own practice of layering wallet persistence on
// walletdb rather than a bespoke file format.
type WalletDBDriver struct {
	db walletdb.DB
}

func init() {
	if err := RegisterDriver(dbDriverName, newWalletDBDriver); err != nil {
		panic(err)
	}
}

func newWalletDBDriver(dataDir string) (Driver, error) {
	db, err := walletdb.Create(dbDriverName, dataDir+"/"+dbFileName, true, dbOpenTimeout)
	if err != nil {
		return nil, fmt.Errorf("storage: open walletdb: %w", err)
	}

	err = walletdb.Update(db, func(tx walletdb.ReadWriteTx) error {
		for _, key := range [][]byte{
			contractsBucketKey, operationsBucketKey,
			identitiesBucketKey, signersBucketKey,
		} {
			if _, err := tx.CreateTopLevelBucket(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: init buckets: %w", err)
	}

	return &WalletDBDriver{db: db}, nil
}

func (d *WalletDBDriver) Close() error {
	return d.db.Close()
}

func (d *WalletDBDriver) AddContract(contract *model.Contract) error {
	return walletdb.Update(d.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(contractsBucketKey)
		if bucket.Get(contract.ID[:]) != nil {
			return ErrContractExists
		}
		data, err := model.StrictSerialize(*contract)
		if err != nil {
			return err
		}
		if err := bucket.Put(contract.ID[:], data); err != nil {
			return err
		}
		_, err = tx.ReadWriteBucket(operationsBucketKey).CreateBucket(contract.ID[:])
		return err
	})
}

func (d *WalletDBDriver) Contract(id model.ContractID) (*model.Contract, error) {
	var contract model.Contract
	err := walletdb.View(d.db, func(tx walletdb.ReadTx) error {
		data := tx.ReadBucket(contractsBucketKey).Get(id[:])
		if data == nil {
			return ErrContractNotFound
		}
		return model.StrictDeserialize(&contract, data)
	})
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

func (d *WalletDBDriver) ListContracts() ([]*model.Contract, error) {
	var out []*model.Contract
	err := walletdb.View(d.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(contractsBucketKey)
		return bucket.ForEach(func(k, v []byte) error {
			var contract model.Contract
			if err := model.StrictDeserialize(&contract, v); err != nil {
				return err
			}
			out = append(out, &contract)
			return nil
		})
	})
	return out, err
}

func (d *WalletDBDriver) mutateContract(id model.ContractID, mutate func(*model.Contract) error) error {
	return walletdb.Update(d.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(contractsBucketKey)
		data := bucket.Get(id[:])
		if data == nil {
			return ErrContractNotFound
		}
		var contract model.Contract
		if err := model.StrictDeserialize(&contract, data); err != nil {
			return err
		}
		if err := mutate(&contract); err != nil {
			return err
		}
		newData, err := model.StrictSerialize(contract)
		if err != nil {
			return err
		}
		return bucket.Put(id[:], newData)
	})
}

func (d *WalletDBDriver) RenameContract(id model.ContractID, name string) error {
	return d.mutateContract(id, func(c *model.Contract) error {
		c.Name = name
		return nil
	})
}

func (d *WalletDBDriver) DeleteContract(id model.ContractID) error {
	return walletdb.Update(d.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(contractsBucketKey)
		if bucket.Get(id[:]) == nil {
			return ErrContractNotFound
		}
		if err := bucket.Delete(id[:]); err != nil {
			return err
		}
		return tx.ReadWriteBucket(operationsBucketKey).DeleteNestedBucket(id[:])
	})
}

func (d *WalletDBDriver) AddTweak(id model.ContractID, tweak model.TweakedOutput) error {
	return d.mutateContract(id, func(c *model.Contract) error {
		c.AddTweak(tweak)
		return nil
	})
}

func (d *WalletDBDriver) AddBlindingReveal(id model.ContractID, reveal model.OutpointReveal) error {
	return d.mutateContract(id, func(c *model.Contract) error {
		c.Data.BlindingReveals = append(c.Data.BlindingReveals, reveal)
		return nil
	})
}

func (d *WalletDBDriver) AddInvoice(id model.ContractID, invoice model.Invoice) error {
	return d.mutateContract(id, func(c *model.Contract) error {
		c.Data.Invoices = append(c.Data.Invoices, invoice)
		return nil
	})
}

func (d *WalletDBDriver) ListInvoices(id model.ContractID) ([]model.Invoice, error) {
	contract, err := d.Contract(id)
	if err != nil {
		return nil, err
	}
	return contract.Data.Invoices, nil
}

func (d *WalletDBDriver) AddOperation(id model.ContractID, op model.Operation) error {
	return walletdb.Update(d.db, func(tx walletdb.ReadWriteTx) error {
		opsBucket := tx.ReadWriteBucket(operationsBucketKey).NestedReadWriteBucket(id[:])
		if opsBucket == nil {
			return ErrContractNotFound
		}
		seq, err := opsBucket.NextSequence()
		if err != nil {
			return err
		}
		data, err := model.StrictSerialize(op)
		if err != nil {
			return err
		}
		return opsBucket.Put(sequenceKey(seq), data)
	})
}

func (d *WalletDBDriver) ListOperations(id model.ContractID) ([]model.Operation, error) {
	var out []model.Operation
	err := walletdb.View(d.db, func(tx walletdb.ReadTx) error {
		opsBucket := tx.ReadBucket(operationsBucketKey).NestedReadBucket(id[:])
		if opsBucket == nil {
			return ErrContractNotFound
		}
		return opsBucket.ForEach(func(k, v []byte) error {
			var op model.Operation
			if err := model.StrictDeserialize(&op, v); err != nil {
				return err
			}
			out = append(out, op)
			return nil
		})
	})
	return out, err
}

func (d *WalletDBDriver) appendRecord(bucketKey []byte, v model.StrictEncoder) error {
	return walletdb.Update(d.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(bucketKey)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		data, err := model.StrictSerialize(v)
		if err != nil {
			return err
		}
		return bucket.Put(sequenceKey(seq), data)
	})
}

func (d *WalletDBDriver) AddIdentity(identity model.Identity) error {
	return d.appendRecord(identitiesBucketKey, identity)
}

func (d *WalletDBDriver) ListIdentities() ([]model.Identity, error) {
	var out []model.Identity
	err := walletdb.View(d.db, func(tx walletdb.ReadTx) error {
		return tx.ReadBucket(identitiesBucketKey).ForEach(func(k, v []byte) error {
			var identity model.Identity
			if err := model.StrictDeserialize(&identity, v); err != nil {
				return err
			}
			out = append(out, identity)
			return nil
		})
	})
	return out, err
}

func (d *WalletDBDriver) AddSigner(signer model.Signer) error {
	return d.appendRecord(signersBucketKey, signer)
}

func (d *WalletDBDriver) ListSigners() ([]model.Signer, error) {
	var out []model.Signer
	err := walletdb.View(d.db, func(tx walletdb.ReadTx) error {
		return tx.ReadBucket(signersBucketKey).ForEach(func(k, v []byte) error {
			var signer model.Signer
			if err := model.StrictDeserialize(&signer, v); err != nil {
				return err
			}
			out = append(out, signer)
			return nil
		})
	})
	return out, err
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	for i := 0; i < 8; i++ {
		key[i] = byte(seq >> (56 - 8*i))
	}
	return key
}
